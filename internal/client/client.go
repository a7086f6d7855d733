package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cornelgit/415-ASG3/internal/protocol"
)

// DefaultTimeout bounds a single request/response exchange
const DefaultTimeout = 5 * time.Second

// ErrUnexpectedResponse is returned when the server replies with something other than a RESPONSE
var ErrUnexpectedResponse = errors.New("unexpected response")

// Client talks to one PRS server over UDP
type Client struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// Dial creates a client for the server at address (host:port)
func Dial(address string, timeout time.Duration) (*Client, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server address %s: %w", address, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{conn: conn, timeout: timeout}, nil
}

// Close releases the client socket
func (c *Client) Close() error {
	return c.conn.Close()
}

// RequestPort asks for the lowest free port for serviceName
func (c *Client) RequestPort(ctx context.Context, serviceName string) (*protocol.Message, error) {
	return c.Exchange(ctx, protocol.NewRequest(protocol.RequestPort, serviceName, 0))
}

// KeepAlive renews the reservation of port
func (c *Client) KeepAlive(ctx context.Context, serviceName string, port uint16) (*protocol.Message, error) {
	return c.Exchange(ctx, protocol.NewRequest(protocol.KeepAlive, serviceName, port))
}

// ClosePort releases the reservation of port
func (c *Client) ClosePort(ctx context.Context, serviceName string, port uint16) (*protocol.Message, error) {
	return c.Exchange(ctx, protocol.NewRequest(protocol.ClosePort, serviceName, port))
}

// LookupPort finds the port reserved by serviceName
func (c *Client) LookupPort(ctx context.Context, serviceName string) (*protocol.Message, error) {
	return c.Exchange(ctx, protocol.NewRequest(protocol.LookupPort, serviceName, 0))
}

// Stop tells the server to stop serving
func (c *Client) Stop(ctx context.Context) (*protocol.Message, error) {
	return c.Exchange(ctx, protocol.NewRequest(protocol.Stop, "", 0))
}

// Exchange sends one request and waits for its response.
// The wait ends at the earlier of the context deadline and the client timeout.
func (c *Client) Exchange(ctx context.Context, req *protocol.Message) (*protocol.Message, error) {
	deadline := time.Now().Add(c.timeout)
	ctxDeadline := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
		ctxDeadline = true
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if _, err := c.conn.Write(protocol.Encode(req)); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", req.Type, err)
	}

	buf := make([]byte, protocol.MessageSize+1)
	n, err := c.conn.Read(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if ctxDeadline && errors.As(err, &netErr) && netErr.Timeout() {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("failed to receive response to %s: %w", req.Type, err)
	}

	resp, err := protocol.Decode(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("failed to decode response to %s: %w", req.Type, err)
	}

	if resp.Type != protocol.Response {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp)
	}

	return resp, nil
}

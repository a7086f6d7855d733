package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cornelgit/415-ASG3/internal/config"
	"github.com/cornelgit/415-ASG3/internal/metrics"
	"github.com/cornelgit/415-ASG3/internal/protocol"
	"github.com/cornelgit/415-ASG3/internal/registry"
)

// UDPServer receives PRS requests and answers each one from the registry
type UDPServer struct {
	conn     *net.UDPConn
	config   *config.ServerConfig
	logger   *slog.Logger
	registry *registry.Registry
	metrics  *metrics.Metrics

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once

	// Basic counters
	datagramsReceived uint64
	requestsHandled   uint64
	decodeErrors      uint64
	sendErrors        uint64
	mu                sync.RWMutex
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, reg *registry.Registry, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:   cfg,
		logger:   logger,
		registry: reg,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start binds the socket and begins serving requests
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.GetUDPAddress())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound local address, or nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Done is closed once the receive loop has exited, either after a STOP request or Stop
func (s *UDPServer) Done() <-chan struct{} {
	return s.done
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()
	s.closeConn()
	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("requests_handled", stats.RequestsHandled),
		slog.Uint64("decode_errors", stats.DecodeErrors),
	)

	return nil
}

func (s *UDPServer) closeConn() {
	s.closeOnce.Do(func() {
		if s.conn == nil {
			return
		}
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	})
}

// receiveLoop reads and handles one datagram at a time until STOP or shutdown
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()
	defer close(s.done)
	defer s.closeConn()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Read deadline lets the loop notice cancellation
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		s.datagramsReceived++
		s.mu.Unlock()
		s.metrics.RecordDatagramReceived()

		response, stop := s.handleDatagram(buffer[:n], remoteAddr)
		s.send(response, remoteAddr)

		if stop {
			s.logger.Info("STOP received, closing listener",
				slog.String("remote_addr", remoteAddr.String()),
			)
			return
		}
	}
}

// handleDatagram decodes one datagram and produces the response to send back.
// The second return value reports whether the registry has been stopped.
func (s *UDPServer) handleDatagram(data []byte, remoteAddr *net.UDPAddr) (*protocol.Message, bool) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.mu.Lock()
		s.decodeErrors++
		s.mu.Unlock()
		s.metrics.RecordDecodeError()

		s.logger.Warn("Failed to decode datagram",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("datagram_size", len(data)),
			slog.String("error", err.Error()),
		)
		return undefinedError(), false
	}

	start := time.Now()
	response := s.registry.HandleMessage(msg)
	duration := time.Since(start).Seconds()

	if response == nil {
		s.logger.Error("Unsupported request type",
			slog.String("remote_addr", remoteAddr.String()),
			slog.String("message", msg.String()),
		)
		s.metrics.RecordRequest(msg.Type.String(), protocol.StatusUndefinedError.String(), duration)
		return undefinedError(), false
	}

	s.mu.Lock()
	s.requestsHandled++
	s.mu.Unlock()
	s.metrics.RecordRequest(msg.Type.String(), response.Status.String(), duration)

	s.logger.Debug("Request handled",
		slog.String("remote_addr", remoteAddr.String()),
		slog.String("request", msg.String()),
		slog.String("response", response.String()),
	)

	return response, msg.Type == protocol.Stop
}

// send writes a response, logging rather than failing on errors
func (s *UDPServer) send(msg *protocol.Message, remoteAddr *net.UDPAddr) {
	if _, err := s.conn.WriteToUDP(protocol.Encode(msg), remoteAddr); err != nil {
		s.mu.Lock()
		s.sendErrors++
		s.mu.Unlock()
		s.metrics.RecordSendError()

		s.logger.Error("Failed to send response",
			slog.String("remote_addr", remoteAddr.String()),
			slog.String("response", msg.String()),
			slog.String("error", err.Error()),
		)
	}
}

func undefinedError() *protocol.Message {
	return protocol.NewResponse("", 0, protocol.StatusUndefinedError)
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		DatagramsReceived: s.datagramsReceived,
		RequestsHandled:   s.requestsHandled,
		DecodeErrors:      s.decodeErrors,
		SendErrors:        s.sendErrors,
	}
}

// ServerStatistics represents server traffic counters
type ServerStatistics struct {
	DatagramsReceived uint64 `json:"datagrams_received"`
	RequestsHandled   uint64 `json:"requests_handled"`
	DecodeErrors      uint64 `json:"decode_errors"`
	SendErrors        uint64 `json:"send_errors"`
}

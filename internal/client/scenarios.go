package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cornelgit/415-ASG3/internal/protocol"
)

// Scenario is one scripted conversation with a server started with
// -s 40000 -e 40100 -t 10 and an empty table.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, c *Client, sleep func(time.Duration)) error
}

// step is one request with the exact response it must produce
type step struct {
	req      *protocol.Message
	expected string
}

func req(t protocol.MessageType, name string, port uint16) *protocol.Message {
	return protocol.NewRequest(t, name, port)
}

func runSteps(ctx context.Context, c *Client, steps ...step) error {
	for _, s := range steps {
		resp, err := c.Exchange(ctx, s.req)
		if err != nil {
			return err
		}
		if got := resp.String(); got != s.expected {
			return fmt.Errorf("%s: expected %s, got %s", s.req, s.expected, got)
		}
	}
	return nil
}

// Scenarios returns the scripted conversations in the order they must run
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "TestCase 1",
			Description: "SVC1 requests a port, keeps it alive and then closes it",
			Run: func(ctx context.Context, c *Client, _ func(time.Duration)) error {
				return runSteps(ctx, c,
					step{req(protocol.RequestPort, "SVC1", 0), "{RESPONSE, SVC1, 40000, SUCCESS}"},
					step{req(protocol.KeepAlive, "SVC1", 40000), "{RESPONSE, SVC1, 40000, SUCCESS}"},
					step{req(protocol.ClosePort, "SVC1", 40000), "{RESPONSE, SVC1, 40000, SUCCESS}"},
				)
			},
		},
		{
			Name:        "TestCase 2",
			Description: "SVC1 requests a port and another client looks it up",
			Run: func(ctx context.Context, c *Client, _ func(time.Duration)) error {
				return runSteps(ctx, c,
					step{req(protocol.RequestPort, "SVC1", 0), "{RESPONSE, SVC1, 40000, SUCCESS}"},
					step{req(protocol.LookupPort, "SVC1", 0), "{RESPONSE, SVC1, 40000, SUCCESS}"},
					step{req(protocol.ClosePort, "SVC1", 40000), "{RESPONSE, SVC1, 40000, SUCCESS}"},
				)
			},
		},
		{
			Name:        "TestCase 3",
			Description: "SVC1 and SVC2 each receive their own port",
			Run: func(ctx context.Context, c *Client, _ func(time.Duration)) error {
				return runSteps(ctx, c,
					step{req(protocol.RequestPort, "SVC1", 0), "{RESPONSE, SVC1, 40000, SUCCESS}"},
					step{req(protocol.RequestPort, "SVC2", 0), "{RESPONSE, SVC2, 40001, SUCCESS}"},
					step{req(protocol.ClosePort, "SVC1", 40000), "{RESPONSE, SVC1, 40000, SUCCESS}"},
					step{req(protocol.ClosePort, "SVC2", 40001), "{RESPONSE, SVC2, 40001, SUCCESS}"},
				)
			},
		},
		{
			Name:        "TestCase 4",
			Description: "SVC1 lets its port expire and SVC2 receives it",
			Run: func(ctx context.Context, c *Client, sleep func(time.Duration)) error {
				if err := runSteps(ctx, c,
					step{req(protocol.RequestPort, "SVC1", 0), "{RESPONSE, SVC1, 40000, SUCCESS}"},
				); err != nil {
					return err
				}
				sleep(15 * time.Second)
				return runSteps(ctx, c,
					step{req(protocol.RequestPort, "SVC2", 0), "{RESPONSE, SVC2, 40000, SUCCESS}"},
					step{req(protocol.ClosePort, "SVC2", 40000), "{RESPONSE, SVC2, 40000, SUCCESS}"},
				)
			},
		},
		{
			Name:        "TestCase 5",
			Description: "SVC1 keeps its port alive so SVC2 receives the next one",
			Run: func(ctx context.Context, c *Client, sleep func(time.Duration)) error {
				if err := runSteps(ctx, c,
					step{req(protocol.RequestPort, "SVC1", 0), "{RESPONSE, SVC1, 40000, SUCCESS}"},
				); err != nil {
					return err
				}
				sleep(8 * time.Second)
				if err := runSteps(ctx, c,
					step{req(protocol.KeepAlive, "SVC1", 40000), "{RESPONSE, SVC1, 40000, SUCCESS}"},
				); err != nil {
					return err
				}
				sleep(8 * time.Second)
				return runSteps(ctx, c,
					step{req(protocol.RequestPort, "SVC2", 0), "{RESPONSE, SVC2, 40001, SUCCESS}"},
					step{req(protocol.ClosePort, "SVC1", 40000), "{RESPONSE, SVC1, 40000, SUCCESS}"},
					step{req(protocol.ClosePort, "SVC2", 40001), "{RESPONSE, SVC2, 40001, SUCCESS}"},
				)
			},
		},
		{
			Name:        "TestCase 6",
			Description: "a client tells the server to stop",
			Run: func(ctx context.Context, c *Client, _ func(time.Duration)) error {
				return runSteps(ctx, c,
					step{req(protocol.Stop, "", 0), "{RESPONSE, , 0, SUCCESS}"},
				)
			},
		},
	}
}

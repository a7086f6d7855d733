package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cornelgit/415-ASG3/internal/client"
	"github.com/cornelgit/415-ASG3/internal/protocol"
)

var version = "1.0.0"

func main() {
	var serverAddr string
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:   "prs-client",
		Short: "Client for the port reservation service",
		Long: `prs-client sends single PRS requests to a server, or runs the scripted
selftest against a server started with -s 40000 -e 40100 -t 10.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:30000", "PRS server address (ip:port)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Response timeout")

	dial := func() (*client.Client, error) {
		return client.Dial(serverAddr, timeout)
	}

	rootCmd.AddCommand(newRequestCmd(dial))
	rootCmd.AddCommand(newKeepAliveCmd(dial))
	rootCmd.AddCommand(newCloseCmd(dial))
	rootCmd.AddCommand(newLookupCmd(dial))
	rootCmd.AddCommand(newStopCmd(dial))
	rootCmd.AddCommand(newSelftestCmd(dial))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type dialFunc func() (*client.Client, error)

// exchange runs one call and prints the response, colored by status
func exchange(dial dialFunc, call func(context.Context, *client.Client) (*protocol.Message, error)) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := call(context.Background(), c)
	if err != nil {
		return err
	}

	if resp.Status == protocol.StatusSuccess {
		color.Green(resp.String())
	} else {
		color.Yellow(resp.String())
	}
	return nil
}

func parsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(port), nil
}

func newRequestCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "request SERVICE",
		Short: "Reserve the lowest free port for SERVICE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exchange(dial, func(ctx context.Context, c *client.Client) (*protocol.Message, error) {
				return c.RequestPort(ctx, args[0])
			})
		},
	}
}

func newKeepAliveCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive SERVICE PORT",
		Short: "Renew the reservation of PORT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			return exchange(dial, func(ctx context.Context, c *client.Client) (*protocol.Message, error) {
				return c.KeepAlive(ctx, args[0], port)
			})
		},
	}
}

func newCloseCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "close SERVICE PORT",
		Short: "Release the reservation of PORT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			return exchange(dial, func(ctx context.Context, c *client.Client) (*protocol.Message, error) {
				return c.ClosePort(ctx, args[0], port)
			})
		},
	}
}

func newLookupCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup SERVICE",
		Short: "Find the port reserved by SERVICE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exchange(dial, func(ctx context.Context, c *client.Client) (*protocol.Message, error) {
				return c.LookupPort(ctx, args[0])
			})
		},
	}
}

func newStopCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Tell the server to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exchange(dial, func(ctx context.Context, c *client.Client) (*protocol.Message, error) {
				return c.Stop(ctx)
			})
		},
	}
}

func newSelftestCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run the scripted test cases against a fresh server",
		Long: `Runs six scripted conversations, including real sleeps of up to 16 seconds.
The last case stops the server. Start it with: prs-server -p 30000 -s 40000 -e 40100 -t 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			sleep := func(d time.Duration) {
				fmt.Printf("  Sleeping for %s...\n", d)
				time.Sleep(d)
			}

			for _, sc := range client.Scenarios() {
				fmt.Printf("%s started: %s\n", sc.Name, sc.Description)
				if err := sc.Run(context.Background(), c, sleep); err != nil {
					fmt.Printf("%s %s\n\n", sc.Name, red("failed: "+err.Error()))
					return fmt.Errorf("%s failed", sc.Name)
				}
				fmt.Printf("%s %s\n\n", sc.Name, green("passed!"))
			}
			return nil
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voxpro/internal/ipc"
	"voxpro/internal/logging"
	"voxpro/pkg/protocol"
)

// NewCtlCmd builds voxpro-ctl, the client for a running daemon.
func NewCtlCmd() *cobra.Command {
	var (
		socket   string
		timeout  time.Duration
		logLevel string
	)

	root := &cobra.Command{
		Use:   "voxpro-ctl",
		Short: "Control a running voxpro daemon",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(cmd.ErrOrStderr(), logLevel)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&socket, "socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "Request timeout")
	root.PersistentFlags().StringVarP(&logLevel, "log", "l", "warn", "Log level")

	send := func(cmd *cobra.Command, req ipc.Request) (ipc.Response, error) {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return ipc.Send(ctx, socket, req)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "trigger",
			Short: "Listen on the daemon's microphone and answer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := send(cmd, ipc.Request{Cmd: ipc.CmdTrigger})
				if err != nil {
					return err
				}
				printInteraction(cmd.OutOrStdout(), *resp.Interaction)
				return nil
			},
		},
		&cobra.Command{
			Use:   "ask [text]",
			Short: "Send a text request to the daemon",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := send(cmd, ipc.Request{Cmd: ipc.CmdAsk, Text: strings.Join(args, " ")})
				if err != nil {
					return err
				}
				printInteraction(cmd.OutOrStdout(), *resp.Interaction)
				return nil
			},
		},
		newCtlHistoryCmd(send),
		&cobra.Command{
			Use:   "status",
			Short: "Show which services the daemon has enabled",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := send(cmd, ipc.Request{Cmd: ipc.CmdStatus})
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), *resp.Status)
				return nil
			},
		},
		newWatchCmd(),
	)

	return root
}

func newCtlHistoryCmd(send func(*cobra.Command, ipc.Request) (ipc.Response, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent interactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(cmd, ipc.Request{Cmd: ipc.CmdHistory, Limit: limit})
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), resp.Records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Max entries to show (0 uses the daemon default)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow interactions as the daemon's web front end publishes them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			feed, err := protocol.NewFeed(ctx, protocol.FeedConfig{
				URL:    url,
				Reconn: 2 * time.Second,
				Emit: func(e protocol.Event) {
					switch e.Kind {
					case protocol.KindHello:
						fmt.Fprintf(out, "connected as %s\n", e.Client)
					case protocol.KindInteraction:
						printInteraction(out, *e.Interaction)
					}
				},
			})
			if err != nil {
				return fmt.Errorf("connect %s: %w", url, err)
			}
			defer feed.Close()

			return feed.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://127.0.0.1:8080/ws", "Daemon websocket feed")
	return cmd
}

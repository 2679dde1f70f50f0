package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/daemon"
	"github.com/spf13/cobra"
)

// NewAttachCmd returns the interactive session command.
func NewAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <session>",
		Short: "Chat with a session interactively",
		Long: `Attach to a session over a websocket. Each line read from stdin is sent as
a message; "/stop" stops the running turn and "/quit" detaches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, env, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ch, err := client.Attach(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer ch.Close()

			w := cmd.OutOrStdout()
			pretty := logging.NewPrettyLogger().WithWriter(w)
			pretty.InfoPretty(fmt.Sprintf("Attached to %s. /stop stops the turn, /quit detaches.", args[0]))

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case frame, ok := <-ch.Frames():
					if !ok {
						return fmt.Errorf("connection to %s closed", args[0])
					}
					switch frame.Type {
					case daemon.FrameEvent:
						if frame.Event != nil {
							renderEvent(w, pretty, env.opts.JSONOutput, *frame.Event)
						}
					case daemon.FrameError:
						pretty.ErrorPretty("daemon", fmt.Errorf("%s", frame.Error))
					}
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					switch text := strings.TrimSpace(line); text {
					case "":
					case "/quit":
						return nil
					case "/stop":
						if err := ch.Stop(); err != nil {
							return err
						}
					default:
						if err := ch.Send(text); err != nil {
							return err
						}
					}
				}
			}
		},
	}
}

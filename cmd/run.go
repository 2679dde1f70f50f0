package cmd

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/daemon"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/paths"
	"github.com/grovetools/relay/pkg/relay"
	"github.com/grovetools/relay/state"
	"github.com/spf13/cobra"
)

// NewRunCmd returns the one-shot command: start a session, send one
// message, print the turn and remove the session.
func NewRunCmd() *cobra.Command {
	var flags sessionFlags
	var command, id string
	var keep bool

	cmd := &cobra.Command{
		Use:   "run <message...>",
		Short: "Run a single turn and print the result",
		Long: `Run a single turn in a throwaway session. The daemon is used when it is
running; otherwise the session runs inside this process.`,
		Example: `relay run --family codex "summarize the failing tests"
relay run --command "gemini -y" --keep --session triage "look at issue 42"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			cfg, err := flags.config(command)
			if err != nil {
				return err
			}
			if command == "" && cfg.Family == "" {
				return errors.InvalidInput("give --command or --family")
			}

			client, err := daemon.New(env.socket(), func() (*relay.Registry, error) {
				opts := []relay.Option{
					relay.WithConfig(env.cfg),
					relay.WithHomesDir(paths.HomesDir()),
					relay.WithLogger(logging.NewLogger("relay")),
				}
				if keep {
					opts = append(opts, relay.WithStore(state.NewStore(paths.SnapshotDir())))
				}
				return relay.New(opts...), nil
			})
			if err != nil {
				return err
			}
			defer client.Close()

			if id == "" {
				id = "run-" + strings.SplitN(uuid.New().String(), "-", 2)[0]
			}
			ctx := cmd.Context()
			req := models.StartSessionRequest{SessionID: id, Command: command, Config: cfg}
			if err := client.StartSession(ctx, req); err != nil {
				return err
			}
			if !keep {
				defer client.RemoveSession(context.WithoutCancel(ctx), id)
			}

			stream, err := client.Stream(ctx, id)
			if err != nil {
				return err
			}
			if err := client.SendMessage(ctx, id, strings.Join(args, " ")); err != nil {
				return err
			}
			return followTurn(ctx, cmd.OutOrStdout(), stream, env.opts.JSONOutput)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&command, "command", "", "Agent command line (default: the family's configured command)")
	cmd.Flags().StringVar(&id, "session", "", "Session id (default: generated)")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the session after the turn")
	return cmd
}

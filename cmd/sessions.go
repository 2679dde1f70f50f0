package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/paths"
	"github.com/grovetools/relay/pkg/sessions"
	"github.com/grovetools/relay/util/pathutil"
	"github.com/spf13/cobra"
)

// sessionFlags collects the flags that build a SessionConfig.
type sessionFlags struct {
	family   string
	cwd      string
	model    string
	mode     string
	args     []string
	env      []string
	noStream bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.family, "family", "", "Agent family: gemini, codex, claude, or generic")
	cmd.Flags().StringVar(&f.cwd, "cwd", "", "Working directory (default: current directory)")
	cmd.Flags().StringVar(&f.model, "model", "", "Model passed to the agent")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Autonomy mode: regular, plan, or ask")
	cmd.Flags().StringArrayVar(&f.args, "arg", nil, "Extra agent argument (repeatable)")
	cmd.Flags().StringArrayVarP(&f.env, "env", "e", nil, "Environment override KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&f.noStream, "no-stream", false, "Treat agent output as plain text instead of JSON lines")
}

func (f *sessionFlags) config(command string) (models.SessionConfig, error) {
	cfg := models.SessionConfig{
		Command:   command,
		Args:      f.args,
		Model:     f.model,
		Mode:      models.Mode(f.mode),
		Streaming: !f.noStream,
	}

	if f.family != "" {
		family, ok := models.ParseFamily(f.family)
		if !ok {
			return cfg, errors.InvalidInput(fmt.Sprintf("unknown agent family %q", f.family))
		}
		cfg.Family = family
	}
	switch cfg.Mode {
	case "", models.ModeRegular, models.ModePlan, models.ModeAsk:
	default:
		return cfg, errors.InvalidInput(fmt.Sprintf("unknown mode %q", f.mode))
	}

	cwd, err := pathutil.Expand(f.cwd)
	if err != nil {
		return cfg, err
	}
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return cfg, err
		}
	}
	cwd, err = pathutil.CanonicalPath(cwd)
	if err != nil {
		return cfg, errors.InvalidInput(fmt.Sprintf("working directory: %v", err))
	}
	cfg.Cwd = cwd

	if len(f.env) > 0 {
		cfg.Env = make(map[string]string, len(f.env))
		for _, kv := range f.env {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return cfg, errors.InvalidInput(fmt.Sprintf("environment override %q is not KEY=VALUE", kv))
			}
			cfg.Env[key] = value
		}
	}
	return cfg, nil
}

// NewStartCmd returns the command that creates or resets a session.
func NewStartCmd() *cobra.Command {
	var flags sessionFlags
	var reset bool

	cmd := &cobra.Command{
		Use:   "start <session> [command]",
		Short: "Create a session",
		Long: `Create a session that talks to an agent CLI. The command defaults to the
one configured for the agent family. Starting an existing session resets it:
switching families starts a new conversation, otherwise it is kept.`,
		Example: `relay start review codex --model o4-mini
relay start docs --family gemini --cwd ~/src/site
relay start fix "claude --verbose" -e ANTHROPIC_LOG=debug`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			command := ""
			if len(args) > 1 {
				command = args[1]
			}
			cfg, err := flags.config(command)
			if err != nil {
				return err
			}
			if command == "" && cfg.Family == "" {
				return errors.InvalidInput("give a command or --family")
			}

			req := models.StartSessionRequest{SessionID: args[0], Command: command, Config: cfg, Reset: reset}
			if err := client.StartSession(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s ready in %s\n", args[0], cfg.Cwd)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&reset, "reset", false, "Reset the session, failing if it does not exist")
	return cmd
}

// NewSendCmd returns the command that submits a user turn.
func NewSendCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "send <session> <message...>",
		Short: "Send a message to a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, env, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			id, text := args[0], strings.Join(args[1:], " ")
			if !wait {
				return client.SendMessage(cmd.Context(), id, text)
			}

			stream, err := client.Stream(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := client.SendMessage(cmd.Context(), id, text); err != nil {
				return err
			}
			return followTurn(cmd.Context(), cmd.OutOrStdout(), stream, env.opts.JSONOutput)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Print agent output until the turn finishes")
	return cmd
}

// NewStopCmd returns the command that terminates a running turn.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <session>",
		Short: "Stop the running turn of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := client.StopSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", args[0])
			return nil
		},
	}
}

// NewRmCmd returns the command that removes sessions.
func NewRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <session>...",
		Aliases: []string{"remove"},
		Short:   "Stop and forget sessions",
		Long:    "Stop and forget sessions. Their snapshots are deleted; transcripts are kept.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			for _, id := range args {
				if _, err := client.RemoveSession(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			return nil
		},
	}
}

var (
	tableBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tableHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")).Padding(0, 1)
	tableCell   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorder).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return tableCell
		})
}

// NewLsCmd returns the command that lists daemon sessions.
func NewLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, env, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			list, err := client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if env.opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
				return nil
			}

			t := newTable("SESSION", "FAMILY", "STATE", "TURNS", "PID", "DIRECTORY", "FLAGS")
			for _, meta := range list {
				pid := ""
				if meta.Pid > 0 {
					pid = strconv.Itoa(meta.Pid)
				}
				t.Row(meta.ID, string(meta.Family), string(meta.State), strconv.Itoa(meta.MessageCount), pid, meta.Cwd, sessionFlagsSummary(meta))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

func sessionFlagsSummary(meta models.SessionMetadata) string {
	var flags []string
	if meta.ResumeToken != "" && !meta.InvalidResume {
		flags = append(flags, "resumable")
	}
	if meta.InvalidResume {
		flags = append(flags, "fresh")
	}
	if meta.ActiveWorktree != nil {
		flags = append(flags, "worktree:"+meta.ActiveWorktree.Branch)
	}
	if meta.PendingWorktree {
		flags = append(flags, "relocating")
	}
	if meta.PendingHandover {
		flags = append(flags, "handover")
	}
	return strings.Join(flags, " ")
}

// NewPsCmd returns the command that lists agent processes recorded on disk.
// It works without a daemon and reports processes orphaned by a crash.
func NewPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List agent processes started by relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			procs, err := sessions.Discover(paths.LiveDir())
			if err != nil {
				return err
			}
			if env.opts.JSONOutput {
				type row struct {
					sessions.ProcessMetadata
					Status string `json:"status"`
				}
				rows := make([]row, 0, len(procs))
				for _, p := range procs {
					rows = append(rows, row{p, p.Status})
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}
			if len(procs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No agent processes")
				return nil
			}

			t := newTable("SESSION", "FAMILY", "PID", "STATUS", "AGE", "COMMAND")
			for _, p := range procs {
				age := time.Since(p.StartedAt).Round(time.Second).String()
				t.Row(p.SessionID, p.Family, strconv.Itoa(p.PID), p.Status, age, p.Command)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

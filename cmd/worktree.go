package cmd

import (
	"fmt"
	"os"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/git"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/util/pathutil"
	"github.com/spf13/cobra"
)

// NewWorktreeCmd returns the command that relocates a session.
func NewWorktreeCmd() *cobra.Command {
	var branch, message string

	cmd := &cobra.Command{
		Use:   "worktree <session> [path]",
		Short: "Move a session into another git worktree",
		Long: `Move a session into another git worktree. A running turn gets a short grace
period, then is stopped and replayed in the new directory with a message
describing the move. The target defaults to the worktree containing the
current directory, or the worktree that has --branch checked out.`,
		Example: `relay worktree fix ../app-feature
relay worktree fix --branch feature/login`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, env, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			target, err := os.Getwd()
			if err != nil {
				return err
			}
			if len(args) > 1 {
				if target, err = pathutil.Expand(args[1]); err != nil {
					return err
				}
			}

			inspector := git.NewInspector(nil)
			if branch != "" && len(args) == 1 {
				found, err := inspector.Find(cmd.Context(), target, branch)
				if err != nil {
					return errors.WorktreeUnavailable(branch, err.Error())
				}
				target = found.Path
			}

			wt, err := inspector.Describe(cmd.Context(), target)
			if err != nil {
				// Not a git checkout; relocate to the plain directory.
				wt = models.WorktreeContext{Cwd: target, Branch: branch}
			}
			if canonical, err := pathutil.CanonicalPath(wt.Cwd); err == nil {
				wt.Cwd = canonical
			}

			req := models.WorktreeRequest{WorktreeContext: wt, ResumeMessage: message}
			accepted, err := client.RequestWorktree(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if !accepted {
				return errors.WorktreeUnavailable(wt.Cwd, "rejected by the session")
			}
			if env.opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), req)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s moving to %s", args[0], wt.Cwd)
			if wt.Branch != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", wt.Branch)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch checked out in the target worktree")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to replay instead of the generated one")
	return cmd
}

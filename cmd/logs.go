package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/paths"
	"github.com/grovetools/relay/pkg/transcript"
	"github.com/spf13/cobra"
)

// NewLogsCmd returns the command that prints session transcripts.
func NewLogsCmd() *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs <session>",
		Short: "Show a session transcript",
		Long: `Show the transcript the daemon records for a session. Transcripts outlive
the session and are read straight from disk, so no daemon is needed.`,
		Example: `relay logs fix -n 50
relay logs fix -f`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			path := transcript.Path(paths.TranscriptDir(), args[0])
			w := cmd.OutOrStdout()
			show := entryPrinter(w, env.opts.JSONOutput)

			entries, err := transcript.Read(path, lines)
			if err != nil && !(os.IsNotExist(err) && follow) {
				if os.IsNotExist(err) {
					return fmt.Errorf("no transcript for session %s", args[0])
				}
				return err
			}
			for _, entry := range entries {
				show(entry)
			}

			if !follow {
				return nil
			}
			return transcript.Follow(cmd.Context(), path, false, show)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Show only the last N entries")
	return cmd
}

func entryPrinter(w io.Writer, jsonOutput bool) func(transcript.Entry) {
	pretty := logging.NewPrettyLogger().WithWriter(w)
	return func(entry transcript.Entry) {
		if jsonOutput {
			if data, err := json.Marshal(entry); err == nil {
				fmt.Fprintln(w, string(data))
			}
			return
		}
		switch entry.Type {
		case transcript.TypeState:
			pretty.Field(entry.Time.Format("15:04:05")+" state", entry.State)
		default:
			pretty.Event(string(entry.Kind), entry.Data)
		}
	}
}

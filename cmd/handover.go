package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewHandoverCmd returns the command managing a session's handover slot.
func NewHandoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handover",
		Short: "Pass notes between agents through a session",
		Long: `Each session has one handover slot. Setting it replaces the previous text;
taking it returns the text and clears the slot. The slot survives resets.`,
	}
	cmd.AddCommand(newHandoverSetCmd(), newHandoverTakeCmd())
	return cmd
}

func newHandoverSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <session> [text...]",
		Short: "Store handover text (read from stdin when no text is given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			text := strings.Join(args[1:], " ")
			if len(args) == 1 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = strings.TrimRight(string(data), "\n")
			}
			return client.SetHandover(cmd.Context(), args[0], text)
		},
	}
}

func newHandoverTakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "take <session>",
		Short: "Print and clear the handover text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			text, err := client.TakeHandover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			return nil
		},
	}
}

package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/grovetools/relay/errors"
)

// ErrorHandler prints user-friendly messages for relay errors.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates an error handler writing to out.
func NewErrorHandler(out io.Writer, verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose, Out: out}
}

// Handle explains err and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	var relayErr *errors.RelayError
	if !stderrors.As(err, &relayErr) {
		fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Error:"), err)
		return err
	}

	switch relayErr.Code {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "%s Configuration not found.\n", errorStyle.Render("Error:"))
		fmt.Fprintln(h.Out, mutedStyle.Render("Create relay.yml or pass --config."))

	case errors.ErrCodeSessionNotFound:
		fmt.Fprintf(h.Out, "%s Session '%v' not found\n", errorStyle.Render("Error:"), relayErr.Details["session"])
		fmt.Fprintln(h.Out, mutedStyle.Render("Run 'relay ls' to see active sessions."))

	case errors.ErrCodeDaemonUnavailable:
		fmt.Fprintf(h.Out, "%s The relay daemon is not reachable.\n", errorStyle.Render("Error:"))
		fmt.Fprintln(h.Out, mutedStyle.Render("Start it with 'relay serve start'."))

	case errors.ErrCodeWorktreeUnavailable:
		fmt.Fprintf(h.Out, "%s %s\n", errorStyle.Render("Error:"), relayErr.Message)
		fmt.Fprintln(h.Out, mutedStyle.Render("Check that the directory exists and is a git worktree."))

	case errors.ErrCodeInvalidInput:
		fmt.Fprintf(h.Out, "%s %s\n", errorStyle.Render("Invalid input:"), relayErr.Message)

	default:
		fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Error:"), err)
	}

	if h.Verbose {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", relayErr.ToJSON())
	}
	return err
}

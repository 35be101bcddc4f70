package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/radial/internal/project"
	"github.com/josephgoksu/radial/internal/task"
	"github.com/josephgoksu/radial/internal/ui"
)

// Exit codes by error kind.
const (
	ExitError        = 1
	ExitNotFound     = 2
	ExitInvalidState = 3
	ExitConflict     = 4
	ExitValidation   = 5
	ExitStorage      = 6
)

// errorKind names the category of err for exit codes and JSON output.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return "not_found", ExitNotFound
	case errors.Is(err, task.ErrInvalidState):
		return "invalid_state", ExitInvalidState
	case errors.Is(err, task.ErrConflict):
		return "conflict", ExitConflict
	case errors.Is(err, task.ErrValidation):
		return "validation", ExitValidation
	case errors.Is(err, task.ErrStorage):
		return "storage", ExitStorage
	case errors.Is(err, project.ErrNoWorkspace):
		return "no_workspace", ExitError
	}
	return "error", ExitError
}

// ErrorPayload is the JSON form of a failed command.
type ErrorPayload struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// reportError prints err for the user and returns the process exit code.
// With --json the error is written to stdout as {"error": {...}}.
func reportError(cmd *cobra.Command, err error) int {
	kind, code := errorKind(err)
	payload := ErrorPayload{Kind: kind, Message: err.Error(), Suggestion: task.Suggestion(err)}

	if isJSON() {
		if perr := writeJSON(cmd.OutOrStdout(), map[string]ErrorPayload{"error": payload}); perr == nil {
			return code
		}
	}
	printError(cmd.ErrOrStderr(), payload)
	return code
}

func printError(w io.Writer, p ErrorPayload) {
	fmt.Fprintf(w, "%s %s\n", ui.StyleError.Bold(true).Render("Error:"), p.Message)
	if p.Suggestion != "" {
		fmt.Fprintf(w, "%s %s\n", ui.StyleSubtle.Render("Did you mean:"), p.Suggestion)
	}
}

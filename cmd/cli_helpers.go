package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/josephgoksu/radial/internal/app"
	"github.com/josephgoksu/radial/internal/memory"
	"github.com/josephgoksu/radial/internal/project"
	"github.com/josephgoksu/radial/internal/ui"
)

func isJSON() bool {
	return viper.GetBool("json")
}

func isVerbose() bool {
	return viper.GetBool("verbose")
}

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	return writeJSON(cmd.OutOrStdout(), v)
}

// openApp opens the workspace store and returns the app context over it.
// Callers must close the returned store.
func openApp() (*app.Context, memory.Store, error) {
	if currentWorkspace == nil {
		return nil, nil, project.ErrNoWorkspace
	}
	cfg := GetConfig()
	s, err := memory.Open(memory.Options{
		Backend:     cfg.Store.Backend,
		Dir:         currentWorkspace.StoreDir,
		LockTimeout: cfg.Store.LockTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return app.NewContext(s), s, nil
}

// withApp runs fn against an open store and closes it afterwards.
func withApp(fn func(ac *app.Context) error) error {
	ac, s, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(ac)
}

// confirm asks a y/N question on w and reads the answer from r.
// Non-interactive sessions answer no.
func confirm(w io.Writer, r *bufio.Reader, prompt string) bool {
	if !ui.IsInteractive() {
		return false
	}
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	response, _ := r.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

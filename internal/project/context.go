// Package project locates the .radial workspace for the current project.
//
// Resolution:
//  1. Walk up from the start directory until a directory containing .radial/ is found.
//  2. If .radial/redirect exists, its first line names the directory that actually
//     holds the store (absolute, or relative to the project root). This lets
//     several checkouts share one store.
//  3. Otherwise the store lives in .radial/ itself.
package project

import (
	"errors"

	"github.com/spf13/afero"
)

// Names inside a project.
const (
	DirName          = ".radial"
	RedirectFileName = "redirect"
	ConfigFileName   = "config.yaml"
	CrashLogDirName  = "crash_logs"
)

// ErrNoWorkspace is returned when no .radial directory exists above the start path.
var ErrNoWorkspace = errors.New("no .radial directory found (run 'rd init' first)")

// Workspace describes a located .radial directory.
type Workspace struct {
	// ProjectRoot is the directory containing .radial/.
	ProjectRoot string
	// Dir is ProjectRoot/.radial.
	Dir string
	// StoreDir holds the store files. It differs from Dir when redirected.
	StoreDir string
	// Redirected reports whether a redirect file was followed.
	Redirected bool
}

// Locator finds and initializes workspaces on a filesystem.
type Locator struct {
	fs afero.Fs
}

// NewLocator creates a Locator over fs.
func NewLocator(fs afero.Fs) *Locator {
	return &Locator{fs: fs}
}

// NewOsLocator creates a Locator over the real filesystem.
func NewOsLocator() *Locator {
	return NewLocator(afero.NewOsFs())
}

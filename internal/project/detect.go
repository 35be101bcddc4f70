package project

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Find walks up from startPath and returns the first ProjectRoot/.radial directory.
func (l *Locator) Find(startPath string) (string, error) {
	dir, err := filepath.Abs(startPath)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if ok, _ := afero.IsDir(l.fs, candidate); ok {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkspace
		}
		dir = parent
	}
}

// Resolve follows radialDir/redirect if present and returns the store directory.
func (l *Locator) Resolve(radialDir string) (string, bool, error) {
	redirectPath := filepath.Join(radialDir, RedirectFileName)
	data, err := afero.ReadFile(l.fs, redirectPath)
	if errors.Is(err, os.ErrNotExist) {
		return radialDir, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read redirect: %w", err)
	}

	target := firstLine(data)
	if target == "" {
		return radialDir, false, nil
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(radialDir), target)
	}
	target = filepath.Clean(target)

	ok, err := afero.IsDir(l.fs, target)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("stat redirect target %s: %w", target, err)
	}
	if !ok {
		return "", false, fmt.Errorf("redirect target %s is not a directory", target)
	}
	return target, true, nil
}

// Locate finds the workspace above startPath and resolves its store directory.
// An explicit override (e.g. --dir) skips the walk and is used as the store directory.
func (l *Locator) Locate(startPath, override string) (*Workspace, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return nil, err
		}
		return &Workspace{ProjectRoot: filepath.Dir(abs), Dir: abs, StoreDir: abs}, nil
	}

	dir, err := l.Find(startPath)
	if err != nil {
		return nil, err
	}
	storeDir, redirected, err := l.Resolve(dir)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		ProjectRoot: filepath.Dir(dir),
		Dir:         dir,
		StoreDir:    storeDir,
		Redirected:  redirected,
	}, nil
}

// InitOptions configures Init.
type InitOptions struct {
	// Stealth adds .radial/ to .git/info/exclude instead of leaving it visible to git.
	Stealth bool
	// Config, when non-nil, is written as .radial/config.yaml unless one exists.
	Config any
	// Ignore lists store artifacts written to .radial/.gitignore unless one exists.
	Ignore []string
}

// Init creates projectRoot/.radial. It is safe to run on an existing workspace.
func (l *Locator) Init(projectRoot string, opts InitOptions) (*Workspace, bool, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, false, err
	}
	dir := filepath.Join(root, DirName)
	existed, _ := afero.DirExists(l.fs, dir)

	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create %s: %w", dir, err)
	}

	if opts.Config != nil {
		cfgPath := filepath.Join(dir, ConfigFileName)
		if ok, _ := afero.Exists(l.fs, cfgPath); !ok {
			data, err := yaml.Marshal(opts.Config)
			if err != nil {
				return nil, false, fmt.Errorf("marshal config: %w", err)
			}
			if err := afero.WriteFile(l.fs, cfgPath, data, 0o644); err != nil {
				return nil, false, fmt.Errorf("write config: %w", err)
			}
		}
	}

	if len(opts.Ignore) > 0 {
		ignorePath := filepath.Join(dir, ".gitignore")
		if ok, _ := afero.Exists(l.fs, ignorePath); !ok {
			content := strings.Join(opts.Ignore, "\n") + "\n"
			if err := afero.WriteFile(l.fs, ignorePath, []byte(content), 0o644); err != nil {
				return nil, false, fmt.Errorf("write .gitignore: %w", err)
			}
		}
	}

	if opts.Stealth {
		if err := l.excludeFromGit(root); err != nil {
			return nil, false, err
		}
	}

	storeDir, redirected, err := l.Resolve(dir)
	if err != nil {
		return nil, false, err
	}
	return &Workspace{ProjectRoot: root, Dir: dir, StoreDir: storeDir, Redirected: redirected}, existed, nil
}

// excludeFromGit appends .radial/ to .git/info/exclude once.
func (l *Locator) excludeFromGit(root string) error {
	gitDir := filepath.Join(root, ".git")
	if ok, _ := afero.IsDir(l.fs, gitDir); !ok {
		return fmt.Errorf("stealth mode needs a git repository at %s", root)
	}
	infoDir := filepath.Join(gitDir, "info")
	if err := l.fs.MkdirAll(infoDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", infoDir, err)
	}

	excludePath := filepath.Join(infoDir, "exclude")
	existing, err := afero.ReadFile(l.fs, excludePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read git exclude: %w", err)
	}
	entry := DirName + "/"
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(entry + "\n")
	if err := afero.WriteFile(l.fs, excludePath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write git exclude: %w", err)
	}
	return nil
}

func firstLine(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}

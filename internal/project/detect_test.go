package project

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupFS creates an in-memory filesystem and the specified directory structure.
// dirs should be absolute paths. files map absolute paths to contents.
func setupFS(t *testing.T, dirs []string, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()

	for _, dir := range dirs {
		err := fs.MkdirAll(dir, 0755)
		require.NoError(t, err, "failed to create dir: %s", dir)
	}
	for path, content := range files {
		err := afero.WriteFile(fs, path, []byte(content), 0644)
		require.NoError(t, err, "failed to create file: %s", path)
	}
	return fs
}

func TestLocate_WalksUp(t *testing.T) {
	fs := setupFS(t, []string{"/project/.radial", "/project/src/pkg"}, nil)

	ws, err := NewLocator(fs).Locate("/project/src/pkg", "")
	require.NoError(t, err)
	assert.Equal(t, "/project", ws.ProjectRoot)
	assert.Equal(t, "/project/.radial", ws.Dir)
	assert.Equal(t, "/project/.radial", ws.StoreDir)
	assert.False(t, ws.Redirected)
}

func TestLocate_NearestWins(t *testing.T) {
	fs := setupFS(t, []string{"/outer/.radial", "/outer/inner/.radial", "/outer/inner/src"}, nil)

	ws, err := NewLocator(fs).Locate("/outer/inner/src", "")
	require.NoError(t, err)
	assert.Equal(t, "/outer/inner/.radial", ws.Dir)
}

func TestLocate_NotFound(t *testing.T) {
	fs := setupFS(t, []string{"/project/src"}, nil)

	_, err := NewLocator(fs).Locate("/project/src", "")
	assert.ErrorIs(t, err, ErrNoWorkspace)
}

func TestLocate_IgnoresRadialFile(t *testing.T) {
	fs := setupFS(t, []string{"/project/src"}, map[string]string{"/project/.radial": "not a dir"})

	_, err := NewLocator(fs).Locate("/project/src", "")
	assert.ErrorIs(t, err, ErrNoWorkspace)
}

func TestLocate_Override(t *testing.T) {
	fs := setupFS(t, nil, nil)

	ws, err := NewLocator(fs).Locate("/anywhere", "/data/store")
	require.NoError(t, err)
	assert.Equal(t, "/data/store", ws.StoreDir)
}

func TestResolve_Redirect(t *testing.T) {
	tests := []struct {
		name     string
		dirs     []string
		redirect string
		want     string
		wantErr  bool
	}{
		{
			name:     "absolute target",
			dirs:     []string{"/checkout/.radial", "/shared/.radial"},
			redirect: "/shared/.radial\n",
			want:     "/shared/.radial",
		},
		{
			name:     "relative to project root",
			dirs:     []string{"/work/checkout/.radial", "/work/main/.radial"},
			redirect: "../main/.radial",
			want:     "/work/main/.radial",
		},
		{
			name:     "blank redirect ignored",
			dirs:     []string{"/checkout/.radial"},
			redirect: "\n  \n",
			want:     "",
		},
		{
			name:     "missing target",
			dirs:     []string{"/checkout/.radial"},
			redirect: "/nowhere",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			radialDir := tt.dirs[0]
			fs := setupFS(t, tt.dirs, map[string]string{radialDir + "/redirect": tt.redirect})

			got, redirected, err := NewLocator(fs).Resolve(radialDir)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Equal(t, radialDir, got)
				assert.False(t, redirected)
				return
			}
			assert.Equal(t, tt.want, got)
			assert.True(t, redirected)
		})
	}
}

func TestInit_CreatesWorkspaceAndConfig(t *testing.T) {
	fs := setupFS(t, []string{"/project"}, nil)
	l := NewLocator(fs)

	cfg := map[string]any{"store": map[string]any{"backend": "sqlite"}}
	ws, existed, err := l.Init("/project", InitOptions{Config: cfg})
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, "/project/.radial", ws.Dir)

	data, err := afero.ReadFile(fs, "/project/.radial/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: sqlite")

	// Existing config is left alone on re-init.
	require.NoError(t, afero.WriteFile(fs, "/project/.radial/config.yaml", []byte("custom: true\n"), 0644))
	_, existed, err = l.Init("/project", InitOptions{Config: cfg})
	require.NoError(t, err)
	assert.True(t, existed)
	data, _ = afero.ReadFile(fs, "/project/.radial/config.yaml")
	assert.Equal(t, "custom: true\n", string(data))
}

func TestInit_WritesGitignoreOnce(t *testing.T) {
	fs := setupFS(t, []string{"/project"}, nil)
	l := NewLocator(fs)

	_, _, err := l.Init("/project", InitOptions{Ignore: []string{"radial.db-wal", "radial.lock"}})
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, "/project/.radial/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, "radial.db-wal\nradial.lock\n", string(data))

	_, _, err = l.Init("/project", InitOptions{Ignore: []string{"other"}})
	require.NoError(t, err)
	data, _ = afero.ReadFile(fs, "/project/.radial/.gitignore")
	assert.NotContains(t, string(data), "other")
}

func TestInit_Stealth(t *testing.T) {
	fs := setupFS(t, []string{"/project/.git/info"}, map[string]string{"/project/.git/info/exclude": "*.log"})
	l := NewLocator(fs)

	_, _, err := l.Init("/project", InitOptions{Stealth: true})
	require.NoError(t, err)
	_, _, err = l.Init("/project", InitOptions{Stealth: true})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/project/.git/info/exclude")
	require.NoError(t, err)
	assert.Equal(t, "*.log\n.radial/\n", string(data))
}

func TestInit_StealthWithoutGit(t *testing.T) {
	fs := setupFS(t, []string{"/project"}, nil)

	_, _, err := NewLocator(fs).Init("/project", InitOptions{Stealth: true})
	assert.Error(t, err)
}

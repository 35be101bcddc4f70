package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/josephgoksu/radial/internal/config"
	"github.com/josephgoksu/radial/internal/logger"
	"github.com/josephgoksu/radial/internal/project"
	"github.com/josephgoksu/radial/types"
)

// GlobalAppConfig holds the configuration loaded for the running command.
var GlobalAppConfig types.AppConfig

// currentWorkspace is the located .radial directory, nil when none exists yet.
var currentWorkspace *project.Workspace

// InitConfig reads .env, RADIAL_* environment variables and the workspace config file.
// Flags win over environment, which wins over the file, which wins over defaults.
func InitConfig() error {
	// It's okay if .env file doesn't exist.
	_ = godotenv.Load()

	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	ws, err := locateWorkspace(v.GetString("store.dir"))
	if err != nil && !errors.Is(err, project.ErrNoWorkspace) {
		return fmt.Errorf("locate workspace: %w", err)
	}
	currentWorkspace = ws

	var searchDirs []string
	if ws != nil {
		searchDirs = append(searchDirs, ws.Dir)
		logger.SetWorkspaceDir(ws.Dir)
	}
	if _, err := config.ReadFile(v, cfgFile, searchDirs...); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	GlobalAppConfig = *cfg
	return nil
}

// GetConfig returns a pointer to the global types.AppConfig instance.
func GetConfig() *types.AppConfig {
	return &GlobalAppConfig
}

func locateWorkspace(override string) (*project.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return project.NewOsLocator().Locate(cwd, override)
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/josephgoksu/radial/types"
	"github.com/spf13/viper"
)

// validate is a single instance of Validate, it caches struct info
var validate = validator.New()

// SetDefaults registers every known key so env overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("verbose", false)
	v.SetDefault("json", false)
	v.SetDefault("store.dir", "")
	v.SetDefault("store.backend", DefaultBackend)
	v.SetDefault("store.lock_timeout", DefaultLockTimeout)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}

// BindEnv wires RADIAL_* environment variables, e.g. RADIAL_STORE_LOCK_TIMEOUT.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile reads configFile if given, otherwise looks for config.yaml in searchDirs.
// A missing file is not an error; it returns "" as the used path.
func ReadFile(v *viper.Viper, configFile string, searchDirs ...string) (string, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if len(searchDirs) == 0 {
			return "", nil
		}
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configFile == "" {
			return "", nil
		}
		return "", fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
	}
	return v.ConfigFileUsed(), nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*types.AppConfig, error) {
	var cfg types.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags and reports the first bad field.
func Validate(cfg *types.AppConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid config %s: %v fails %q", strings.ToLower(fe.Namespace()), fe.Value(), fe.Tag()+paramSuffix(fe.Param()))
	}
	return fmt.Errorf("invalid config: %w", err)
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

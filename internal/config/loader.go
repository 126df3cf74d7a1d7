package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "deckhand.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/deckhand"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. DECKHAND_PROBE_TIMEOUT.
	EnvPrefix = "DECKHAND"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read "+p,
				"Check that every line is KEY=VALUE")
		}
	}
	return nil
}

// Load reads config from the specified path. An empty path yields defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Create deckhand.yaml, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. deckhand.yaml in current directory
// 3. ~/.config/deckhand/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, _ := os.UserHomeDir(); home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault loads .env, finds the config file and loads it. Without a
// config file the defaults plus environment overrides are returned.
func LoadOrDefault(explicit string) (*Config, string, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, "", err
	}

	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "your environment overrides"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerGrant)
	}

	expandConfig(cfg)
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("probe.timeout", d.Probe.Timeout.String())
	v.SetDefault("status.show_node_status", d.Status.ShowNodeStatus)
	v.SetDefault("status.show_load_usage", d.Status.ShowLoadUsage)
	v.SetDefault("status.show_individual_nodes", d.Status.ShowIndividualNodes)
	v.SetDefault("session.stats_interval", d.Session.StatsInterval.String())
	v.SetDefault("session.action_fallback", d.Session.ActionFallback.String())
	v.SetDefault("session.auth_timeout", d.Session.AuthTimeout.String())
	v.SetDefault("session.reconnect_delay", d.Session.ReconnectDelay.String())
	v.SetDefault("session.max_reconnect_attempts", d.Session.MaxReconnectAttempts)
	v.SetDefault("session.history_size", d.Session.HistorySize)
	v.SetDefault("panel.url", "")
	v.SetDefault("panel.api_key", "")
	v.SetDefault("filters.path", d.Filters.Path)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
}

package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/fleet"
)

// ConfigFileCheck reports which config file is in use. Running without one
// is allowed but only useful with environment overrides.
type ConfigFileCheck struct {
	ConfigPath string // Explicit path, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return "CONFIG" }

func (c *ConfigFileCheck) Run(ctx context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("Error finding config: %v", err),
			Suggestion: "Check the --config path and file permissions",
		}
	}
	if path == "" {
		return CheckResult{
			Status:     StatusWarn,
			Message:    "No config file found, using defaults",
			Suggestion: "Create ./" + config.ConfigFileName + " or ~/" + config.GlobalConfigDir + "/" + config.GlobalConfigFile,
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: "Config file: " + path,
	}
}

// ConfigSchemaCheck loads and validates the config, node entries included.
type ConfigSchemaCheck struct {
	ConfigPath string
}

func (c *ConfigSchemaCheck) Name() string     { return "config_schema" }
func (c *ConfigSchemaCheck) Category() string { return "CONFIG" }

func (c *ConfigSchemaCheck) Run(ctx context.Context) CheckResult {
	cfg, _, err := config.LoadOrDefault(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("Failed to load config: %v", err),
			Suggestion: "Check the YAML syntax in your config file",
		}
	}
	if err := config.Validate(cfg); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("Config is invalid: %v", err),
		}
	}
	if _, err := fleet.FromConfig(cfg.Nodes); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("Node entry is invalid: %v", err),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("Config is valid (%d nodes, %d static servers)", len(cfg.Nodes), len(cfg.Servers)),
	}
}

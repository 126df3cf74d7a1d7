package config

import "time"

// Config represents the complete deckhand.yaml configuration file.
type Config struct {
	Nodes   []NodeConfig           `yaml:"nodes" mapstructure:"nodes"`
	Probe   ProbeConfig            `yaml:"probe" mapstructure:"probe"`
	Status  StatusConfig           `yaml:"status" mapstructure:"status"`
	Session SessionConfig          `yaml:"session" mapstructure:"session"`
	Panel   PanelConfig            `yaml:"panel" mapstructure:"panel"`
	Servers map[string]ServerGrant `yaml:"servers" mapstructure:"servers"`
	Filters FiltersConfig          `yaml:"filters" mapstructure:"filters"`
	Server  ServerConfig           `yaml:"server" mapstructure:"server"`
	Log     LogConfig              `yaml:"log" mapstructure:"log"`
}

// NodeConfig describes one daemon host in the fleet.
type NodeConfig struct {
	ID     int    `yaml:"id" mapstructure:"id"`
	Name   string `yaml:"name" mapstructure:"name"`
	FQDN   string `yaml:"fqdn" mapstructure:"fqdn"`
	Port   int    `yaml:"port" mapstructure:"port"`
	Scheme string `yaml:"scheme" mapstructure:"scheme"`

	// Token is the daemon's bearer secret. Supports ${VAR} references.
	Token string `yaml:"token" mapstructure:"token"`
}

// ProbeConfig controls utilization probing.
type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// StatusConfig holds the three fleet summary visibility flags.
type StatusConfig struct {
	ShowNodeStatus      bool `yaml:"show_node_status" mapstructure:"show_node_status"`
	ShowLoadUsage       bool `yaml:"show_load_usage" mapstructure:"show_load_usage"`
	ShowIndividualNodes bool `yaml:"show_individual_nodes" mapstructure:"show_individual_nodes"`
}

// SessionConfig tunes the daemon session state machine.
type SessionConfig struct {
	StatsInterval        time.Duration `yaml:"stats_interval" mapstructure:"stats_interval"`
	ActionFallback       time.Duration `yaml:"action_fallback" mapstructure:"action_fallback"`
	AuthTimeout          time.Duration `yaml:"auth_timeout" mapstructure:"auth_timeout"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts"`
	HistorySize          int           `yaml:"history_size" mapstructure:"history_size"`
}

// PanelConfig points at the panel API that issues daemon session tokens.
type PanelConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// ServerGrant is a statically configured socket URL and token for one server,
// used instead of asking the panel.
type ServerGrant struct {
	Socket string `yaml:"socket" mapstructure:"socket"`
	Token  string `yaml:"token" mapstructure:"token"`
}

// FiltersConfig locates the console filter rule file.
type FiltersConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP status server.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures the rotating log file used by serve.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Nodes: []NodeConfig{},
		Probe: ProbeConfig{
			Timeout: 10 * time.Second,
		},
		Status: StatusConfig{
			ShowNodeStatus:      true,
			ShowLoadUsage:       true,
			ShowIndividualNodes: false,
		},
		Session: SessionConfig{
			StatsInterval:        5 * time.Second,
			ActionFallback:       2 * time.Second,
			AuthTimeout:          10 * time.Second,
			ReconnectDelay:       5 * time.Second,
			MaxReconnectAttempts: 5,
			HistorySize:          60,
		},
		Servers: make(map[string]ServerGrant),
		Filters: FiltersConfig{
			Path: "~/.config/deckhand/filters.yaml",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8089",
		},
		Log: LogConfig{
			File:       "~/.local/state/deckhand/deckhand.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

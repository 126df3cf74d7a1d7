package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax - just ~ for the current user.
func ExpandTilde(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}

	return path
}

// Expand replaces ${NAME} references with environment variable values.
// References to unset variables are left untouched so the failure is visible
// where the value is used. Bare $NAME is not expanded; tokens may contain '$'.
func Expand(s string) string {
	if s == "" || !strings.Contains(s, "${") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return ref
	})
}

// ExpandPath expands ${NAME} references and then a leading ~.
func ExpandPath(s string) string {
	return ExpandTilde(Expand(s))
}

func expandConfig(cfg *Config) {
	for i := range cfg.Nodes {
		cfg.Nodes[i].Token = Expand(cfg.Nodes[i].Token)
		cfg.Nodes[i].FQDN = Expand(cfg.Nodes[i].FQDN)
	}
	for id, grant := range cfg.Servers {
		grant.Token = Expand(grant.Token)
		grant.Socket = Expand(grant.Socket)
		cfg.Servers[id] = grant
	}
	cfg.Panel.URL = Expand(cfg.Panel.URL)
	cfg.Panel.APIKey = Expand(cfg.Panel.APIKey)
	cfg.Filters.Path = ExpandPath(cfg.Filters.Path)
	cfg.Log.File = ExpandPath(cfg.Log.File)
}

// Package config loads the typed configuration object for the terminal
// session manager: a YAML file overlaid with `.env`/environment variables,
// optionally hot-reloaded when the file changes on disk.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/loopwire/termsession/src/hooks"
)

// CORS mirrors server.cors.
type CORS struct {
	Origin      []string `yaml:"origin"`
	Credentials bool     `yaml:"credentials"`
}

// Server mirrors the server block.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	CORS CORS   `yaml:"cors"`
}

// Terminal mirrors the terminal block.
type Terminal struct {
	DefaultShell     string `yaml:"defaultShell"`
	FontSize         int    `yaml:"fontSize,omitempty"`
	FontFamily       string `yaml:"fontFamily,omitempty"`
	MaxBufferSize    int    `yaml:"maxBufferSize"`
	MaxBufferBytes   int    `yaml:"maxBufferBytes"`
	SessionTimeoutMs int    `yaml:"sessionTimeoutMs"`
}

// HookRule is the YAML-facing shape of one hooks.Rule.
type HookRule struct {
	Match   string `yaml:"match"` // exact | prefix | regex
	Pattern string `yaml:"pattern"`
	Payload string `yaml:"payload"`
	Message string `yaml:"message,omitempty"`
	Scope   string `yaml:"scope,omitempty"`
}

// Hooks mirrors the hooks block.
type Hooks struct {
	PreScripts     []HookRule `yaml:"preScripts"`
	PostScripts    []HookRule `yaml:"postScripts"`
	PrefixCommands []HookRule `yaml:"prefixCommands"`
	SuffixCommands []HookRule `yaml:"suffixCommands"`
	Annotations    []HookRule `yaml:"annotations"`
	Blacklist      []HookRule `yaml:"blacklist"`
}

// Spinner mirrors the spinner block.
type Spinner struct {
	Enabled    bool `yaml:"enabled"`
	ThrottleMs int  `yaml:"throttleMs"`
}

// MCP mirrors the mcp block.
type MCP struct {
	EnableDNSRebindingProtection bool     `yaml:"enableDnsRebindingProtection"`
	AllowedHosts                 []string `yaml:"allowedHosts"`
}

// Config is the top-level configuration object.
type Config struct {
	Server   Server   `yaml:"server"`
	Terminal Terminal `yaml:"terminal"`
	Hooks    Hooks    `yaml:"hooks"`
	Spinner  Spinner  `yaml:"spinner"`
	MCP      MCP      `yaml:"mcp"`
}

// Defaults returns the built-in fallback configuration, applied before a
// YAML file or env vars are layered on top.
func Defaults() Config {
	return Config{
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
			CORS: CORS{Origin: []string{"*"}},
		},
		Terminal: Terminal{
			DefaultShell:     "/bin/bash",
			MaxBufferSize:    5000,
			MaxBufferBytes:   4 << 20,
			SessionTimeoutMs: int((30 * time.Minute).Milliseconds()),
		},
		Spinner: Spinner{Enabled: true, ThrottleMs: 100},
		MCP:     MCP{EnableDNSRebindingProtection: false},
	}
}

// Load builds a Config from defaults, an optional YAML file at yamlPath,
// a `.env` file in the working directory (best-effort, matching the
// teacher's main.go), and environment variable overrides.
func Load(yamlPath string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, continuing with process environment")
	}

	cfg := Defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides layers the recognized environment variable overrides
// on top of defaults and any loaded YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MCP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("FRONTEND_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("MAX_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Terminal.MaxBufferSize = n
		}
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Terminal.SessionTimeoutMs = n
		}
	}
	if v := os.Getenv("COMPACT_ANIMATIONS"); v != "" {
		cfg.Spinner.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ANIMATION_THROTTLE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Spinner.ThrottleMs = n
		}
	}
}

func toMatchKind(v string) hooks.MatchKind {
	switch v {
	case "exact":
		return hooks.MatchExact
	case "regex":
		return hooks.MatchRegex
	default:
		return hooks.MatchPrefix
	}
}

func expand(rules []HookRule, kind hooks.Kind) []hooks.Rule {
	out := make([]hooks.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, hooks.Rule{
			Kind:    kind,
			Match:   toMatchKind(r.Match),
			Pattern: r.Pattern,
			Payload: r.Payload,
			Message: r.Message,
			Scope:   r.Scope,
		})
	}
	return out
}

// HookRules flattens the config's hooks block into hooks.Engine's rule
// list, tagging each with its Kind.
func (c Config) HookRules() []hooks.Rule {
	var all []hooks.Rule
	all = append(all, expand(c.Hooks.PreScripts, hooks.KindPreScript)...)
	all = append(all, expand(c.Hooks.PostScripts, hooks.KindPostScript)...)
	all = append(all, expand(c.Hooks.PrefixCommands, hooks.KindPreCommand)...)
	all = append(all, expand(c.Hooks.SuffixCommands, hooks.KindPostCommand)...)
	all = append(all, expand(c.Hooks.Annotations, hooks.KindAIAnnotation)...)
	all = append(all, expand(c.Hooks.Blacklist, hooks.KindBlacklist)...)
	return all
}

// WatchHookFile reloads engine's rules from yamlPath whenever the file
// changes on disk. Runs until stop is closed.
func WatchHookFile(yamlPath string, engine *hooks.Engine, stop <-chan struct{}) error {
	if yamlPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(yamlPath); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(yamlPath)
				if err != nil {
					logrus.WithError(err).Warn("hook config reload failed")
					continue
				}
				if err := engine.Reload(cfg.HookRules()); err != nil {
					logrus.WithError(err).Warn("hook rule reload failed")
					continue
				}
				logrus.Info("hook rules reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("hook config watcher error")
			}
		}
	}()
	return nil
}

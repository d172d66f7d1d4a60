package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopwire/termsession/src/hooks"
)

func TestDefaultsAreSane(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.Terminal.DefaultShell == "" {
		t.Fatal("expected a default shell")
	}
	if !cfg.Spinner.Enabled {
		t.Fatal("expected spinner compaction enabled by default")
	}
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != Defaults().Server.Port {
		t.Fatalf("expected defaults when no file given, got %+v", cfg)
	}
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "server:\n  port: 9999\nterminal:\n  defaultShell: /bin/zsh\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected YAML port override, got %d", cfg.Server.Port)
	}
	if cfg.Terminal.DefaultShell != "/bin/zsh" {
		t.Fatalf("expected YAML shell override, got %q", cfg.Terminal.DefaultShell)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load should not error on a missing file: %v", err)
	}
	if cfg.Server.Port != Defaults().Server.Port {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 1111\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("MCP_PORT", "2222")
	t.Setenv("COMPACT_ANIMATIONS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 2222 {
		t.Fatalf("expected env override to win, got %d", cfg.Server.Port)
	}
	if cfg.Spinner.Enabled {
		t.Fatal("expected COMPACT_ANIMATIONS=false to disable the spinner")
	}
}

func TestHookRulesFlattensAndTags(t *testing.T) {
	cfg := Config{
		Hooks: Hooks{
			Blacklist:      []HookRule{{Match: "exact", Pattern: "rm -rf /"}},
			PrefixCommands: []HookRule{{Match: "prefix", Pattern: "deploy", Payload: "echo start"}},
		},
	}
	rules := cfg.HookRules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	var sawBlacklist, sawPrefix bool
	for _, r := range rules {
		switch r.Kind {
		case hooks.KindBlacklist:
			sawBlacklist = true
			if r.Match != hooks.MatchExact {
				t.Fatalf("expected exact match kind, got %v", r.Match)
			}
		case hooks.KindPreCommand:
			sawPrefix = true
		}
	}
	if !sawBlacklist || !sawPrefix {
		t.Fatalf("expected both rule kinds represented, got %+v", rules)
	}
}

func TestWatchHookFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	initial := "hooks:\n  blacklist:\n    - match: exact\n      pattern: one\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	engine, err := hooks.New(cfg.HookRules())
	if err != nil {
		t.Fatalf("hooks.New: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	if err := WatchHookFile(path, engine, stop); err != nil {
		t.Fatalf("WatchHookFile: %v", err)
	}

	updated := "hooks:\n  blacklist:\n    - match: exact\n      pattern: two\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := engine.Apply("sess", "two"); err != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("timed out waiting for hook file reload to take effect")
}

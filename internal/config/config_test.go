package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Browser.ChromePath != nil || cfg.HTTP.Timeout != nil {
		t.Errorf("LoadConfig() = %+v, want zero config", cfg)
	}
	if _, err := LoadConfig(""); err == nil {
		t.Error("LoadConfig(\"\") expected error")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[browser]
chrome-path = "/usr/bin/chromium"
headless = false
user-agent = "cpstats-test/1.0"
codechef-settle = "3s"
gfg-settle = "200ms"

[http]
timeout = "45s"
codeforces-delay = "2s"

[store]
path = "/tmp/stats.db"

[token]
secret = "from-file"
ttl = "720h"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got := Or(cfg.Browser.ChromePath, ""); got != "/usr/bin/chromium" {
		t.Errorf("chrome-path = %q", got)
	}
	if got := Or(cfg.Browser.Headless, true); got {
		t.Error("headless = true, want false")
	}
	if got := Or(cfg.Browser.UserAgent, ""); got != "cpstats-test/1.0" {
		t.Errorf("user-agent = %q", got)
	}
	if got := Or(cfg.Browser.CodeChefSettle, 0); got != 3*time.Second {
		t.Errorf("codechef-settle = %s, want 3s", got)
	}
	if got := Or(cfg.Browser.GFGSettle, 0); got != 200*time.Millisecond {
		t.Errorf("gfg-settle = %s, want 200ms", got)
	}
	if got := Or(cfg.Browser.GFGScoreWait, 20*time.Second); got != 20*time.Second {
		t.Errorf("gfg-score-wait default = %s, want 20s", got)
	}
	if got := Or(cfg.HTTP.CodeforcesDelay, 0); got != 2*time.Second {
		t.Errorf("codeforces-delay = %s, want 2s", got)
	}
	if got := Or(cfg.Token.TTL, 0); got != 720*time.Hour {
		t.Errorf("token ttl = %s, want 720h", got)
	}

	env := map[string]string{EnvDB: "/data/override.db", EnvTokenSecret: "from-env"}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if got := Or(cfg.Store.Path, ""); got != "/data/override.db" {
		t.Errorf("store path after env = %q", got)
	}
	if got := Or(cfg.Token.Secret, ""); got != "from-env" {
		t.Errorf("token secret after env = %q", got)
	}
	if got := Or(cfg.Browser.ChromePath, ""); got != "/usr/bin/chromium" {
		t.Errorf("chrome-path changed by empty env: %q", got)
	}
}

func TestLoadConfigUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[browser]\nheadles = true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() expected error for misspelled key")
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "cpstats", "config.toml") {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "cpstats", "cpstats.db") {
		t.Errorf("DefaultDBPath() = %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when the config file is missing.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:3000" {
		t.Errorf("Server.Addr() = %q, want 0.0.0.0:3000", cfg.Server.Addr())
	}
	if cfg.Apify.BaseURL != "https://api.apify.com/v2" {
		t.Errorf("Apify.BaseURL = %q", cfg.Apify.BaseURL)
	}
	if cfg.Apify.RateLimit != 10 || cfg.Apify.RateBurst != 5 {
		t.Errorf("rate = %v/%d, want 10/5", cfg.Apify.RateLimit, cfg.Apify.RateBurst)
	}
	if cfg.Apify.RequestTimeout != 30*time.Second {
		t.Errorf("Apify.RequestTimeout = %v", cfg.Apify.RequestTimeout)
	}
	if cfg.Queue.PollInterval != 500*time.Millisecond {
		t.Errorf("Queue.PollInterval = %v", cfg.Queue.PollInterval)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" || cfg.Log.File != "" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Apify.Token != "" || cfg.Server.APIToken != "" {
		t.Error("secrets should default to empty")
	}
}

// TestFileParsing verifies that every non-secret key is read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
		"server.host": "127.0.0.1",
		"server.port": 8080,
		"apify.base_url": "http://localhost:9999/v2",
		"apify.rate_limit": 2.5,
		"apify.rate_burst": "3",
		"apify.request_timeout": "5s",
		"storage.data_dir": "/tmp/jobrelay-test",
		"queue.poll_interval": "2s",
		"log.level": "debug",
		"log.format": "json",
		"log.file": "/tmp/jobrelay.log",
		"apify.token": "ignored-from-file"
	}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Apify.BaseURL != "http://localhost:9999/v2" {
		t.Errorf("Apify.BaseURL = %q", cfg.Apify.BaseURL)
	}
	if cfg.Apify.RateLimit != 2.5 || cfg.Apify.RateBurst != 3 {
		t.Errorf("rate = %v/%d", cfg.Apify.RateLimit, cfg.Apify.RateBurst)
	}
	if cfg.Apify.RequestTimeout != 5*time.Second || cfg.Queue.PollInterval != 2*time.Second {
		t.Errorf("durations = %v, %v", cfg.Apify.RequestTimeout, cfg.Queue.PollInterval)
	}
	if cfg.Storage.DataDir != "/tmp/jobrelay-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.File != "/tmp/jobrelay.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Apify.Token != "" {
		t.Errorf("secret read from file: %q", cfg.Apify.Token)
	}
}

// TestEnvOverride verifies that environment variables override file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 8080, "queue.poll_interval": "2s"}`)

	t.Setenv("JOBRELAY_SERVER_PORT", "9090")
	t.Setenv("JOBRELAY_QUEUE_POLL_INTERVAL", "not-a-duration")
	t.Setenv("JOBRELAY_APIFY_TOKEN", "apify-secret")
	t.Setenv("JOBRELAY_API_TOKEN", "api-secret")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Queue.PollInterval != 2*time.Second {
		t.Errorf("unparsable env should keep file value, got %v", cfg.Queue.PollInterval)
	}
	if cfg.Apify.Token != "apify-secret" || cfg.Server.APIToken != "api-secret" {
		t.Errorf("secrets = %q, %q", cfg.Apify.Token, cfg.Server.APIToken)
	}
}

func TestValidation(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 70000, "apify.rate_limit": -1}`)

	_, err := loadWith(newFileBackend(path))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "apify.rate_limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "jobrelay", "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "server.port", "4444"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, "apify.request_timeout", "45s"); err != nil {
		t.Fatalf("setKey timeout: %v", err)
	}
	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKey(b, "apify.token", "x"); err == nil || !strings.Contains(err.Error(), "JOBRELAY_APIFY_TOKEN") {
		t.Errorf("setting a secret err = %v", err)
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4444 || cfg.Apify.RequestTimeout != 45*time.Second {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Apify.Token = "super-secret"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "super-secret") {
			t.Errorf("%s leaks secret", ki.Key)
		}
		switch ki.Key {
		case "apify.token":
			if ki.Value != "(set)" {
				t.Errorf("apify.token = %q, want (set)", ki.Value)
			}
		case "server.api_token":
			if ki.Value != "(unset)" {
				t.Errorf("server.api_token = %q, want (unset)", ki.Value)
			}
		}
	}

	for _, k := range ValidKeys() {
		if k == "apify.token" || k == "server.api_token" {
			t.Errorf("ValidKeys includes secret %s", k)
		}
	}
}

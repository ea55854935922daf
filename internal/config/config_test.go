package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Database.SSLMode != "disable" {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	data := `
[server]
port = "9000"

[database]
host = "db.internal"
name = "metal"

[auth]
jwt_secret = "file-secret-0123456789"

[rules]
path = "/etc/metal/ruleset.json"

[cors]
allowed_origins = ["https://app.example.com"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DB_NAME", "metal_test")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("port = %q, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Name != "metal_test" {
		t.Errorf("database = %+v, want file host and env name", cfg.Database)
	}
	if cfg.Database.Port != "5432" {
		t.Errorf("database port = %q, want default 5432", cfg.Database.Port)
	}
	if cfg.Rules.Path != "/etc/metal/ruleset.json" {
		t.Errorf("rules path = %q", cfg.Rules.Path)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Errorf("origins = %v, want %v", cfg.CORS.AllowedOrigins, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\nport = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded on malformed TOML")
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Validate() = %v, want jwt_secret problem", err)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: "1", User: "u", Password: "p", Name: "n", SSLMode: "require"}
	want := "host=h port=1 user=u password=p dbname=n sslmode=require"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

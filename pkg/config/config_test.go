package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Driver != DriverSQLite {
		t.Errorf("driver: got %q, want %q", cfg.Driver, DriverSQLite)
	}
	if cfg.DBPath != "foodspend.db" {
		t.Errorf("db path: got %q", cfg.DBPath)
	}
	if cfg.Timezone != "Asia/Kolkata" {
		t.Errorf("timezone: got %q", cfg.Timezone)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	content := `{"db_path": "from-file.db", "timezone": "UTC", "services": ["swiggy", "zomato"]}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FOODSPEND_DB_PATH", "from-env.db")
	t.Setenv("FOODSPEND_LOG_JSON", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DBPath != "from-env.db" {
		t.Errorf("env should override file: got %q", cfg.DBPath)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("timezone: got %q, want UTC", cfg.Timezone)
	}
	if !cfg.LogJSON {
		t.Error("log_json: expected true from environment")
	}
	if len(cfg.Services) != 2 || cfg.Services[0] != "swiggy" {
		t.Errorf("services: got %v", cfg.Services)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default is valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Driver = "mysql" },
			wantErr: "Driver",
		},
		{
			name:    "postgres needs host",
			mutate:  func(c *Config) { c.Driver = DriverPostgres; c.PostgresDB = "x"; c.PostgresUser = "u" },
			wantErr: "PostgresHost",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "timezone",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %v should mention %q", err, tc.wantErr)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Addr != ":8010" {
		t.Errorf("Server.Addr = %q, want :8010", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "sqlite3" {
		t.Errorf("Storage.Driver = %q, want sqlite3", cfg.Storage.Driver)
	}
	if cfg.Sync.Atomic || cfg.Sync.MultiRow || cfg.Sync.SanitizeUpdates {
		t.Errorf("Sync = %+v, want all flags off", cfg.Sync)
	}
	if len(cfg.Fields.Excluded) != 8 {
		t.Errorf("len(Fields.Excluded) = %d, want 8", len(cfg.Fields.Excluded))
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, "ganttsync.yaml", `
server:
  addr: ":9000"
  read_timeout: 3s
storage:
  driver: sqlite
  path: /tmp/x.db
sync:
  atomic: true
log:
  level: DEBUG
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 3s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if !cfg.Sync.Atomic {
		t.Error("Sync.Atomic = false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Storage.MaxOpenConns != 25 {
		t.Errorf("Storage.MaxOpenConns = %d, want default 25", cfg.Storage.MaxOpenConns)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GANTTSYNC_STORAGE_PATH", "/var/lib/gantt.db")
	t.Setenv("GANTTSYNC_SYNC_MULTI_ROW", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Storage.Path != "/var/lib/gantt.db" {
		t.Errorf("Storage.Path = %q, want env value", cfg.Storage.Path)
	}
	if !cfg.Sync.MultiRow {
		t.Error("Sync.MultiRow = false, want true from env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mysql" }, true},
		{"empty path", func(c *Config) { c.Storage.Path = " " }, true},
		{"no collections", func(c *Config) { c.Storage.Collections = nil }, true},
		{"bad schedule", func(c *Config) { c.Storage.CheckpointSchedule = "sometimes" }, true},
		{"empty schedule", func(c *Config) { c.Storage.CheckpointSchedule = "" }, false},
		{"cert without key", func(c *Config) { c.Server.TLSCert = "cert.pem" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDB(t *testing.T) {
	cfg := Default()
	cfg.Sync.SanitizeUpdates = true
	dbc := cfg.DB()
	if dbc.Path != cfg.Storage.Path || !dbc.SanitizeUpdates {
		t.Errorf("DB() = %+v", dbc)
	}
}

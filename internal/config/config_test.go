package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite3")
	}
	if cfg.Database.Path != "./fish_landings.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.QueryRowLimit != 1000 {
		t.Errorf("Server.QueryRowLimit = %d, want 1000", cfg.Server.QueryRowLimit)
	}
	if cfg.Pipeline.FirstYear != 2014 || cfg.Pipeline.LastYear != 2024 {
		t.Errorf("Pipeline years = %d-%d, want 2014-2024", cfg.Pipeline.FirstYear, cfg.Pipeline.LastYear)
	}
	if cfg.Pipeline.FilePattern != "{year}.csv" {
		t.Errorf("Pipeline.FilePattern = %q", cfg.Pipeline.FilePattern)
	}
	if !cfg.Pipeline.StrictYear {
		t.Error("Pipeline.StrictYear should default to true")
	}
	if cfg.Database.ConnMaxLifetime != 30*time.Minute {
		t.Errorf("Database.ConnMaxLifetime = %v", cfg.Database.ConnMaxLifetime)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PIPELINE_WORKERS", "8")
	t.Setenv("PIPELINE_STRICT_YEAR", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Pipeline.Workers = %d, want 8", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.StrictYear {
		t.Error("Pipeline.StrictYear = true, want false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/mmo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.DataDir != "/srv/mmo" {
		t.Errorf("Pipeline.DataDir = %q, want %q", cfg.Pipeline.DataDir, "/srv/mmo")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "many")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail on a non-integer")
	}
	if !strings.Contains(err.Error(), "PIPELINE_WORKERS") {
		t.Errorf("error %q should name the variable", err)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("PIPELINE_LAST_YEAR=2021\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIPELINE_LAST_YEAR", "")
	// godotenv does not override variables that are already set.
	os.Unsetenv("PIPELINE_LAST_YEAR")
	t.Cleanup(func() { os.Unsetenv("PIPELINE_LAST_YEAR") })

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Pipeline.LastYear != 2021 {
		t.Errorf("Pipeline.LastYear = %d, want 2021", cfg.Pipeline.LastYear)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"postgres without host", func(c *Config) {
			c.Database.Driver = "postgres"
			c.Database.Host = ""
		}, "DB_HOST"},
		{"idle above open", func(c *Config) { c.Database.MaxIdleConns = 50 }, "DB_MAX_IDLE_CONNS"},
		{"pattern without year", func(c *Config) { c.Pipeline.FilePattern = "landings.csv" }, "PIPELINE_FILE_PATTERN"},
		{"inverted years", func(c *Config) { c.Pipeline.FirstYear = 2025 }, "PIPELINE_FIRST_YEAR"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "PIPELINE_WORKERS"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg.Server.Port = 0
	cfg.Pipeline.BatchSize = 0

	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"SERVER_PORT", "PIPELINE_BATCH_SIZE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}

func TestConfig_StringMasksPassword(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg.Database.Password = "hunter2"

	s := cfg.String()
	if strings.Contains(s, "hunter2") {
		t.Errorf("String() leaked password: %s", s)
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() = %s, want masked password", s)
	}
}

func TestDatabaseConfig_Connection(t *testing.T) {
	d := DatabaseConfig{Driver: "sqlite3", Path: "/tmp/l.db", MaxOpenConns: 3, MaxIdleConns: 1, ConnMaxLifetime: time.Minute}
	conn := d.Connection()

	if conn.Driver != "sqlite3" || conn.Path != "/tmp/l.db" {
		t.Errorf("Connection() = %+v", conn)
	}
	if conn.MaxOpenConns != 3 || conn.MaxIdleConns != 1 || conn.ConnMaxLifetime != time.Minute {
		t.Errorf("Connection() pool settings = %+v", conn)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
bridge:
  id: "control4"
director:
  host: "192.168.1.50"
account:
  username: "user@example.com"
  password: "hunter2"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8084
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Director.Host != "192.168.1.50" {
		t.Errorf("Director.Host = %q, want %q", cfg.Director.Host, "192.168.1.50")
	}

	if cfg.Director.Port != 443 {
		t.Errorf("Director.Port = %d, want default 443", cfg.Director.Port)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// No director host, no credentials
	content := `
bridge:
  id: "control4"
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing director.host, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Bridge:   BridgeConfig{ID: "control4"},
			Director: DirectorConfig{Host: "192.168.1.50", Port: 443},
			Account:  AccountConfig{Username: "user@example.com", Password: "hunter2"},
			Database: DatabaseConfig{Path: "/data/c4bridge.db"},
			MQTT:     MQTTConfig{QoS: 1},
			API:      APIConfig{Enabled: true, Port: 8084},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing bridge ID",
			mutate:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing director host",
			mutate:  func(c *Config) { c.Director.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid director port",
			mutate:  func(c *Config) { c.Director.Port = 0 },
			wantErr: true,
		},
		{
			name:    "missing account username",
			mutate:  func(c *Config) { c.Account.Username = "" },
			wantErr: true,
		},
		{
			name:    "missing account password",
			mutate:  func(c *Config) { c.Account.Password = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid api port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "api disabled skips port check",
			mutate:  func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("C4BRIDGE_DIRECTOR_HOST", "10.0.0.5")
	t.Setenv("C4BRIDGE_DIRECTOR_PORT", "8443")
	t.Setenv("C4BRIDGE_ACCOUNT_USERNAME", "user@example.com")
	t.Setenv("C4BRIDGE_ACCOUNT_PASSWORD", "hunter2")
	t.Setenv("C4BRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("C4BRIDGE_MQTT_BROKER", "mqtt.example.com")
	t.Setenv("C4BRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("C4BRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("C4BRIDGE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Director.Host != "10.0.0.5" {
		t.Errorf("Director.Host = %q, want %q", cfg.Director.Host, "10.0.0.5")
	}

	if cfg.Director.Port != 8443 {
		t.Errorf("Director.Port = %d, want 8443", cfg.Director.Port)
	}

	if cfg.Account.Username != "user@example.com" {
		t.Errorf("Account.Username = %q, want %q", cfg.Account.Username, "user@example.com")
	}

	if cfg.Account.Password != "hunter2" {
		t.Errorf("Account.Password = %q, want %q", cfg.Account.Password, "hunter2")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID == "" {
		t.Error("defaultConfig should have non-empty Bridge.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Director.Port != 443 {
		t.Errorf("defaultConfig Director.Port = %d, want 443", cfg.Director.Port)
	}

	if cfg.Director.VerifyTLS {
		t.Error("defaultConfig Director.VerifyTLS should be false for self-signed certs")
	}
}

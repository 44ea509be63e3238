package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("AUTHD_CONFIG")
	defer os.Setenv("AUTHD_CONFIG", originalEnv)

	os.Setenv("AUTHD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingJWTSecret verifies run fails when no signing secret is
// configured. The service must never start with forgeable tokens.
func TestRun_MissingJWTSecret(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
service:
  name: authd-test

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18085
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalConfig := os.Getenv("AUTHD_CONFIG")
	originalSecret := os.Getenv("AUTHD_JWT_SECRET")
	defer os.Setenv("AUTHD_CONFIG", originalConfig)
	defer os.Setenv("AUTHD_JWT_SECRET", originalSecret)
	os.Setenv("AUTHD_CONFIG", configPath)
	os.Unsetenv("AUTHD_JWT_SECRET")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a JWT secret")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("AUTHD_CONFIG")
	defer os.Setenv("AUTHD_CONFIG", originalEnv)

	os.Unsetenv("AUTHD_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("AUTHD_CONFIG")
	defer os.Setenv("AUTHD_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("AUTHD_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_StartupAndShutdown tests full startup with MQTT and InfluxDB
// disabled, then clean shutdown on context cancellation.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
service:
  name: authd-test

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18086
  timeouts:
    read: 30
    write: 30
    idle: 60

security:
  jwt:
    secret: "test-secret-at-least-32-characters-long"
    access_token_ttl: 15
    refresh_token_ttl: 10080
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("AUTHD_CONFIG")
	defer os.Setenv("AUTHD_CONFIG", originalEnv)
	os.Setenv("AUTHD_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
}

// TestRun_AdminSeed verifies the initial admin account is created from
// environment variables during startup.
func TestRun_AdminSeed(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
service:
  name: authd-test

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18087
  timeouts:
    read: 30
    write: 30
    idle: 60

security:
  jwt:
    secret: "test-secret-at-least-32-characters-long"
    access_token_ttl: 15
    refresh_token_ttl: 10080
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	for k, v := range map[string]string{
		"AUTHD_CONFIG":         configPath,
		"AUTHD_ADMIN_EMAIL":    "admin@example.com",
		"AUTHD_ADMIN_PASSWORD": "seed-admin-password",
	} {
		original := os.Getenv(k)
		os.Setenv(k, v)
		defer os.Setenv(k, original) //nolint:gocritic // restore after test
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
}

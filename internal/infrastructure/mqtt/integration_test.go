//go:build integration

package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/finchsec/authd/internal/infrastructure/config"
)

// Integration tests for broker connectivity.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "authd-integration-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_ConnectPublishClose(t *testing.T) {
	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.PublishJSON(Topics{}.SecurityEvents(), []byte(`{"action":"login"}`)); err != nil {
		t.Errorf("PublishJSON() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Publish("authd/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("publish after close: got %v, want ErrNotConnected", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

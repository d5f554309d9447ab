package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
)

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "c4bridge-test",
		},
		Auth: config.MQTTAuthConfig{Username: "user", Password: "pass"},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1883" {
		t.Errorf("broker servers = %v", opts.Servers)
	}
	if opts.ClientID != "c4bridge-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect should be enabled")
	}
}

func TestConfigureLWT_HealthTopic(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker.local", Port: 1883, ClientID: "c4bridge-test"},
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	if !opts.WillEnabled {
		t.Fatal("will not registered")
	}
	if opts.WillTopic != (Topics{}).Health() {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, Topics{}.Health())
	}
	if opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("will qos/retained = %d/%v", opts.WillQos, opts.WillRetained)
	}

	var will struct {
		Bridge string `json:"bridge"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("unmarshal will payload: %v", err)
	}
	if will.Status != "offline" || will.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", will)
	}
	if will.Bridge != "c4bridge-test" {
		t.Errorf("will bridge = %q", will.Bridge)
	}
}

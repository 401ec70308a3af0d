package mqtt

import (
	"encoding/json"
	"errors"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "panel-1",
		},
		QoS:         1,
		TopicPrefix: "mcuctrl",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("/site/mcuctrl/", "panel-1")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.Status(), "site/mcuctrl/panel-1/status"},
		{"state", topics.State(), "site/mcuctrl/panel-1/state"},
		{"correction", topics.CorrectionEvent(), "site/mcuctrl/panel-1/event/correction"},
		{"write event", topics.WriteEvent(), "site/mcuctrl/panel-1/event/write"},
		{"write command", topics.WriteCommand("brightness"), "site/mcuctrl/panel-1/command/write/brightness"},
		{"all writes", topics.AllWriteCommands(), "site/mcuctrl/panel-1/command/write/+"},
		{"reconcile", topics.ReconcileCommand(), "site/mcuctrl/panel-1/command/reconcile"},
		{"ack", topics.Ack("pwm_min"), "site/mcuctrl/panel-1/ack/pwm_min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}

	if got := NewTopics("", "x").Base(); got != "mcuctrl/x" {
		t.Errorf("NewTopics(\"\", \"x\").Base() = %q, want %q", got, "mcuctrl/x")
	}
}

func TestRegisterFromWriteCommand(t *testing.T) {
	topics := NewTopics("mcuctrl", "panel-1")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"mcuctrl/panel-1/command/write/brightness", "brightness", true},
		{"mcuctrl/panel-1/command/write/", "", false},
		{"mcuctrl/panel-1/command/write/a/b", "", false},
		{"mcuctrl/panel-2/command/write/brightness", "", false},
		{"mcuctrl/panel-1/command/reconcile", "", false},
	}

	for _, tt := range tests {
		got, ok := topics.RegisterFromWriteCommand(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("RegisterFromWriteCommand(%q) = %q, %v, want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "mcu"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "panel-1" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "panel-1")
	}
	if opts.Username != "mcu" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want mcu/secret", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil, want configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, NewTopics("mcuctrl", "panel-1"), "panel-1")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Error("will should be enabled and retained")
	}
	if opts.WillTopic != "mcuctrl/panel-1/status" {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, "mcuctrl/panel-1/status")
	}

	var payload statusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.Status != "offline" || payload.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v, want offline/unexpected_disconnect", payload)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := newClient(testConfig())
	c.client = pahomqtt.NewClient(buildClientOptions(testConfig()))

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"bad qos", "t", 3, nil, ErrInvalidQoS},
		{"oversized", "t", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"not connected", "t", 1, []byte("{}"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("t", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

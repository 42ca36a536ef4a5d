package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "fpbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "fpbridge-test",
	}
}

// requireBroker skips the test when no broker listens on the test address.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}
	conn.Close()
}

// disconnectedClient returns a Client backed by a paho client that never
// connected, for exercising validation paths.
func disconnectedClient() *Client {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	c := newClient(cfg, opts)
	c.client = pahomqtt.NewClient(opts)
	return c
}

func TestTopics(t *testing.T) {
	topics := NewTopics("lab")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"events", topics.Events(), "lab/events"},
		{"command", topics.Command(), "lab/command"},
		{"users", topics.Users(), "lab/users"},
		{"system status", topics.SystemStatus(), "lab/system/status"},
		{"health", topics.Health(), "lab/health"},
		{"all", topics.All(), "lab/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopics_Normalises(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", DefaultTopicPrefix},
		{"  ", DefaultTopicPrefix},
		{"/site/a/", "site/a"},
		{"bridge", "bridge"},
	}

	for _, tt := range tests {
		if got := NewTopics(tt.prefix).Prefix; got != tt.want {
			t.Errorf("NewTopics(%q).Prefix = %q, want %q", tt.prefix, got, tt.want)
		}
	}

	// Zero value still produces valid topics.
	if got := (Topics{}).Events(); got != DefaultTopicPrefix+"/events" {
		t.Errorf("Topics{}.Events() = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "fpbridge-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.CleanSession {
		t.Error("CleanSession should be true")
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("auto reconnect should be enabled")
	}
	if opts.ConnectRetryInterval != time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 1s", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && cfg.Broker.TLS {
		t.Error("unexpected TLS config")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config should enforce minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, NewTopics("lab"), "bridge-1")

	if !opts.WillEnabled {
		t.Fatal("will should be enabled")
	}
	if opts.WillTopic != "lab/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want retained qos 1", opts.WillRetained, opts.WillQos)
	}

	var payload statusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload.Status != StatusOffline || payload.Reason != "unexpected_disconnect" || payload.ClientID != "bridge-1" {
		t.Errorf("will payload = %+v", payload)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("c1"), StatusOnline, ""},
		{"offline", buildOfflinePayload("c1"), StatusOffline, "graceful_shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p statusPayload
			if err := json.Unmarshal(tt.data, &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.Status != tt.wantStatus || p.Reason != tt.wantReason || p.ClientID != "c1" {
				t.Errorf("payload = %+v", p)
			}
			if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
				t.Errorf("timestamp %q: %v", p.Timestamp, err)
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"single-level wildcard", "fpbridge/+/events", []byte("x"), 1, ErrInvalidTopic},
		{"multi-level wildcard", "fpbridge/#", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "fpbridge/events", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "fpbridge/events", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "fpbridge/events", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishHelpers_Validation(t *testing.T) {
	c := disconnectedClient()

	if err := c.PublishString("", "x", 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishString() empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.PublishString("fpbridge/events", "x", 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishString() error = %v, want ErrNotConnected", err)
	}
	if err := c.PublishRetained("fpbridge/#", []byte("x")); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishRetained() wildcard error = %v, want ErrInvalidTopic", err)
	}
	if err := c.PublishRetained("fpbridge/users", []byte("[]")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishRetained() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("a/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty topic error = %v", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := disconnectedClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

type recordingLogger struct {
	errors chan string
	warns  chan string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors <- msg }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns <- msg }

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestWrapHandler_RecoversPanics(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{errors: make(chan string, 1), warns: make(chan string, 1)}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(string, []byte) error { panic("boom") })
	wrapped(nil, fakeMessage{topic: "t", payload: []byte("p")})

	select {
	case msg := <-logger.errors:
		if msg != "mqtt handler panic recovered" {
			t.Errorf("logged %q", msg)
		}
	default:
		t.Error("expected panic to be logged")
	}

	wrapped = c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	wrapped(nil, fakeMessage{topic: "t"})

	select {
	case <-logger.warns:
	default:
		t.Error("expected handler error to be logged")
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = "fpbridge-test-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	cfg.Broker.ClientID = "fpbridge-test-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	topic := sub.Topics().Events()
	received := make(chan string, 1)
	err = sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(topic) {
		t.Error("subscription should be tracked")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishString(topic, "STATUS:CONNECTED", 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if payload != "STATUS:CONNECTED" {
			t.Errorf("received %q", payload)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}

	if err := sub.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after unsubscribe", sub.SubscriptionCount())
	}
}

func TestSystemStatusRetained(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = "fpbridge-test-status"
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	cfg.Broker.ClientID = "fpbridge-test-status-watch"
	watcher, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() watcher error = %v", err)
	}
	defer watcher.Close()

	statuses := make(chan statusPayload, 4)
	err = watcher.Subscribe(watcher.Topics().SystemStatus(), 1, func(_ string, payload []byte) error {
		var p statusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		statuses <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case p := <-statuses:
		if p.Status != StatusOnline && p.Status != StatusOffline {
			t.Errorf("unexpected status %q", p.Status)
		}
	case <-time.After(5 * time.Second):
		t.Error("expected retained status message")
	}
}

func TestPublishRetained_ReachesLateSubscriber(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = "fpbridge-test-retained"
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := client.Topics().Users()
	if err := client.PublishRetained(topic, []byte(`[{"ID_No":1,"roll":"R1"}]`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	got := make(chan string, 1)
	if err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case got <- string(payload):
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case p := <-got:
		if p != `[{"ID_No":1,"roll":"R1"}]` {
			t.Errorf("retained payload = %q", p)
		}
	case <-time.After(5 * time.Second):
		t.Error("expected retained users message")
	}
}

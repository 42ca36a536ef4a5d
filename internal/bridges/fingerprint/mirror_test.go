package fingerprint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/mqtt"
)

type publishedMessage struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakeBroker is an in-memory BrokerClient and HealthPublisher.
type fakeBroker struct {
	mu           sync.Mutex
	connected    bool
	published    []publishedMessage
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	subErr       error
	pubErr       error

	// qos is the client's configured QoS, used for retained publishes.
	qos byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true, handlers: make(map[string]mqtt.MessageHandler), qos: 1}
}

func (f *fakeBroker) record(topic, payload string, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (f *fakeBroker) PublishString(topic string, payload string, qos byte, retained bool) error {
	return f.record(topic, payload, qos, retained)
}

func (f *fakeBroker) PublishRetained(topic string, payload []byte) error {
	return f.record(topic, string(payload), f.qos, true)
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBroker) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) inject(topic, payload string) error {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return errors.New("no handler for " + topic)
	}
	return h(topic, []byte(payload))
}

func (f *fakeBroker) Published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeBroker) on(topic string) []publishedMessage {
	var out []publishedMessage
	for _, m := range f.Published() {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMirror_PublishesBroadcasts(t *testing.T) {
	env := newTestEnv(t, true)
	broker := newFakeBroker()
	topics := mqtt.NewTopics("lab")
	mirror := NewMirror(MirrorConfig{Client: broker, Topics: topics, QoS: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mirror.Start(ctx, env.ctrl); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer mirror.Stop()

	waitFor(t, "greeting", func() bool { return len(broker.on("lab/events")) == 1 })
	if got := broker.on("lab/events")[0].payload; got != StatusConnected {
		t.Errorf("greeting = %q, want %q", got, StatusConnected)
	}

	env.ctrl.HandleDeviceLine("ENROLL_SUCCESS:R100")

	waitFor(t, "users snapshot", func() bool { return len(broker.on("lab/users")) == 1 })

	events := broker.on("lab/events")
	if len(events) != 3 || events[1].payload != MsgJSONUpdated || events[1].retained {
		t.Errorf("events = %+v", events)
	}
	users := broker.on("lab/users")[0]
	if !users.retained {
		t.Error("users topic should be retained")
	}
	if users.payload[0] != '[' {
		t.Errorf("users payload = %q, want bare JSON array", users.payload)
	}
}

func TestMirror_CommandIngress(t *testing.T) {
	env := newTestEnv(t, true)
	env.ctrl.HandleDeviceLine("ENROLL_SUCCESS:A")
	broker := newFakeBroker()
	mirror := NewMirror(MirrorConfig{Client: broker, Topics: mqtt.NewTopics("lab"), QoS: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mirror.Start(ctx, env.ctrl); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer mirror.Stop()

	ws := env.attach("ws")

	if err := broker.inject("lab/command", "DELETE:A"); err != nil {
		t.Fatalf("inject: %v", err)
	}

	if env.reg.Contains("A") {
		t.Error("DELETE over MQTT should remove A")
	}
	if got := env.link.Writes(); len(got) != 1 || got[0] != "DELETE:A" {
		t.Errorf("device writes = %v", got)
	}
	if got := ws.Frames(); len(got) != 2 || got[0] != MsgDeleteUpdated {
		t.Errorf("websocket session frames = %v", got)
	}

	// LIST_USERS over MQTT answers on the events topic only.
	if err := broker.inject("lab/command", "LIST_USERS"); err != nil {
		t.Fatalf("inject: %v", err)
	}
	waitFor(t, "LIST_USERS reply", func() bool {
		for _, m := range broker.on("lab/events") {
			if m.payload == "USERS:[]" {
				return true
			}
		}
		return false
	})
	if got := ws.Frames(); len(got) != 2 {
		t.Errorf("LIST_USERS should not reach other sessions, frames = %v", got)
	}
}

func TestMirror_StopDetaches(t *testing.T) {
	env := newTestEnv(t, true)
	broker := newFakeBroker()
	mirror := NewMirror(MirrorConfig{Client: broker, Topics: mqtt.NewTopics("lab")})

	if err := mirror.Start(context.Background(), env.ctrl); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if env.hub.Count() != 1 {
		t.Fatalf("hub count = %d, want 1", env.hub.Count())
	}

	mirror.Stop()
	mirror.Stop()

	if env.hub.Count() != 0 {
		t.Errorf("hub count = %d after Stop, want 0", env.hub.Count())
	}
	if len(broker.unsubscribed) != 1 || broker.unsubscribed[0] != "lab/command" {
		t.Errorf("unsubscribed = %v", broker.unsubscribed)
	}
	if err := mirror.Deliver("late"); err == nil {
		t.Error("Deliver after Stop should fail")
	}
}

func TestMirror_ExcludedFromClientCount(t *testing.T) {
	env := newTestEnv(t, true)
	broker := newFakeBroker()
	mirror := NewMirror(MirrorConfig{Client: broker, Topics: mqtt.NewTopics("lab")})

	if got := env.ctrl.GetMetrics(); got.Clients != 0 || got.MQTTMirror {
		t.Fatalf("before Start: clients = %d, mirror = %v", got.Clients, got.MQTTMirror)
	}

	if err := mirror.Start(context.Background(), env.ctrl); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer mirror.Stop()

	got := env.ctrl.GetMetrics()
	if got.Clients != 0 {
		t.Errorf("Clients = %d with only the mirror attached, want 0", got.Clients)
	}
	if !got.MQTTMirror {
		t.Error("MQTTMirror = false, want true")
	}

	env.hub.Add(newMockSession("browser"))
	if got := env.ctrl.GetMetrics(); got.Clients != 1 {
		t.Errorf("Clients = %d with one browser, want 1", got.Clients)
	}
}

func TestMirror_StartErrors(t *testing.T) {
	env := newTestEnv(t, true)

	if err := NewMirror(MirrorConfig{}).Start(context.Background(), env.ctrl); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("Start() without client error = %v", err)
	}

	broker := newFakeBroker()
	broker.subErr = mqtt.ErrNotConnected
	mirror := NewMirror(MirrorConfig{Client: broker, Topics: mqtt.NewTopics("lab")})
	if err := mirror.Start(context.Background(), env.ctrl); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
	if env.hub.Count() != 0 {
		t.Error("failed Start should not register the mirror")
	}
}

func TestMirror_SkipsWhileBrokerDown(t *testing.T) {
	env := newTestEnv(t, true)
	broker := newFakeBroker()
	mirror := NewMirror(MirrorConfig{Client: broker, Topics: mqtt.NewTopics("lab")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mirror.Start(ctx, env.ctrl); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "greeting", func() bool { return len(broker.Published()) == 1 })

	broker.mu.Lock()
	broker.connected = false
	broker.mu.Unlock()

	env.ctrl.HandleDeviceLine("hello")
	mirror.Stop()

	if got := len(broker.Published()); got != 1 {
		t.Errorf("published %d messages, want only the greeting", got)
	}
}

package fingerprint

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/fingerprint-bridge/internal/hub"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/mqtt"
)

// MirrorSessionID identifies the MQTT mirror in the hub.
const MirrorSessionID = "mqtt-mirror"

// BrokerClient is the MQTT surface the mirror needs.
// Satisfied by *mqtt.Client.
type BrokerClient interface {
	PublishString(topic string, payload string, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// MirrorConfig configures an MQTT mirror session.
type MirrorConfig struct {
	Client BrokerClient
	Topics mqtt.Topics
	QoS    byte

	// QueueSize bounds frames waiting to be published. Default: hub.DefaultQueueSize.
	QueueSize int

	Logger Logger
}

// Mirror is a hub session backed by an MQTT broker.
//
// Every frame the hub delivers is published to the events topic, and
// USERS frames additionally refresh the retained users topic. Payloads
// arriving on the command topic are handled exactly like client messages.
type Mirror struct {
	client BrokerClient
	topics mqtt.Topics
	qos    byte
	queue  *hub.Queue
	logger Logger

	ctrl *Controller

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMirror creates a mirror session. Call Start to attach it.
func NewMirror(cfg MirrorConfig) *Mirror {
	return &Mirror{
		client: cfg.Client,
		topics: cfg.Topics,
		qos:    cfg.QoS,
		queue:  hub.NewQueue(cfg.QueueSize),
		logger: cfg.Logger,
	}
}

// ID implements hub.Session.
func (m *Mirror) ID() string {
	return MirrorSessionID
}

// Deliver implements hub.Session. It only queues the frame.
func (m *Mirror) Deliver(text string) error {
	return m.queue.Push(text)
}

// Start subscribes to the command topic, registers the mirror with ctrl
// and begins publishing queued frames.
func (m *Mirror) Start(ctx context.Context, ctrl *Controller) error {
	if ctrl == nil || m.client == nil {
		return fmt.Errorf("%w: mirror needs a controller and a broker client", ErrMissingDependency)
	}
	m.ctrl = ctrl

	m.wg.Add(1)
	go m.publishLoop(ctx)

	if err := m.client.Subscribe(m.topics.Command(), m.qos, m.handleCommand); err != nil {
		m.queue.Close()
		m.wg.Wait()
		return fmt.Errorf("subscribing to %s: %w", m.topics.Command(), err)
	}

	ctrl.Connect(m)
	return nil
}

// Stop detaches the mirror and waits for queued frames to be published.
// Safe to call multiple times.
func (m *Mirror) Stop() {
	m.stopOnce.Do(func() {
		if m.ctrl != nil {
			m.ctrl.Disconnect(m)
			if m.client.IsConnected() {
				if err := m.client.Unsubscribe(m.topics.Command()); err != nil {
					m.logWarn("mqtt unsubscribe failed", "error", err)
				}
			}
		}
		m.queue.Close()
		m.wg.Wait()
	})
}

func (m *Mirror) handleCommand(_ string, payload []byte) error {
	m.ctrl.HandleCommand(m, string(payload))
	return nil
}

func (m *Mirror) publishLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-m.queue.C():
			if !ok {
				return
			}
			m.publish(text)
		}
	}
}

func (m *Mirror) publish(text string) {
	if !m.client.IsConnected() {
		m.logDebug("mqtt disconnected, frame not mirrored", "frame", text)
		return
	}
	if err := m.client.PublishString(m.topics.Events(), text, m.qos, false); err != nil {
		m.logWarn("mirroring frame failed", "error", err)
	}
	if users, ok := strings.CutPrefix(text, usersPrefix); ok {
		if err := m.client.PublishRetained(m.topics.Users(), []byte(users)); err != nil {
			m.logWarn("publishing users snapshot failed", "error", err)
		}
	}
}

func (m *Mirror) logDebug(msg string, keysAndValues ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, keysAndValues...)
	}
}

func (m *Mirror) logWarn(msg string, keysAndValues ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, keysAndValues...)
	}
}

package fingerprint

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus is the overall bridge state published on the health topic.
type HealthStatus string

// Health states.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// defaultHealthInterval is used when HealthReporterConfig.Interval is zero.
const defaultHealthInterval = 30 * time.Second

// HealthMessage is the retained health payload.
type HealthMessage struct {
	Status          HealthStatus `json:"status"`
	Reason          string       `json:"reason,omitempty"`
	Version         string       `json:"version"`
	DeviceConnected bool         `json:"device_connected"`
	Clients         int          `json:"clients"`
	Users           int          `json:"users"`
	UptimeSeconds   int64        `json:"uptime_seconds"`
	Timestamp       time.Time    `json:"timestamp"`
}

// HealthPublisher publishes health messages, typically an MQTT client.
type HealthPublisher interface {
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
}

// MetricsSource supplies the numbers in a health report.
// Satisfied by *Controller.
type MetricsSource interface {
	GetMetrics() Metrics
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version string

	// Topic is where reports are published, retained at the client QoS.
	Topic string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Source    MetricsSource
	Logger    Logger
}

// HealthReporter publishes periodic health reports.
type HealthReporter struct {
	version   string
	topic     string
	interval  time.Duration
	publisher HealthPublisher
	source    MetricsSource
	logger    Logger
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		version:   cfg.Version,
		topic:     cfg.Topic,
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		logger:    cfg.Logger,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start publishes a report immediately and then every interval.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" report.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(HealthStopping, "bridge stopping")
	})
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logWarn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logWarn("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "mqtt disconnected"
	}
	if h.source == nil || !h.source.GetMetrics().DeviceConnected {
		return HealthDegraded, "device disconnected"
	}
	return HealthHealthy, ""
}

// build assembles a report for status.
func (h *HealthReporter) build(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
	}
	if h.source != nil {
		m := h.source.GetMetrics()
		msg.DeviceConnected = m.DeviceConnected
		msg.Clients = m.Clients
		msg.Users = m.Users
	}
	return msg
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.build(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.PublishRetained(h.topic, payload)
}

func (h *HealthReporter) logWarn(msg string, keysAndValues ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, keysAndValues...)
	}
}

package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fingerprint-bridge/internal/hub"
	"github.com/nerrad567/fingerprint-bridge/internal/registry"
)

// Controller operation constants.
const (
	// defaultPollInterval is the device loop's idle delay when none is configured.
	defaultPollInterval = 50 * time.Millisecond

	// activityQueueSize bounds activities waiting for sinks.
	activityQueueSize = 256

	// sinkTimeout bounds a single sink call.
	sinkTimeout = 5 * time.Second
)

// DeviceLink is the serial connection as the controller sees it.
// Satisfied by *serialport.Link.
type DeviceLink interface {
	IsConnected() bool
	WriteLine(text string) error
	PollLine() (string, bool)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds the collaborators for a Controller.
type Options struct {
	Registry *registry.Registry
	Link     DeviceLink
	Hub      *hub.Hub

	// PollInterval is the device loop's idle delay. Default: 50ms.
	PollInterval time.Duration

	// Sinks receive every Activity. Optional.
	Sinks []ActivitySink

	// Logger is optional.
	Logger Logger

	// Clock overrides time.Now for enrolment timestamps.
	Clock func() time.Time
}

// Controller ties the device, the registry and the connected clients
// together.
//
// A single device loop (Run) consumes serial lines; each client session
// feeds its messages to HandleCommand. Every registry mutation and the
// broadcasts it triggers happen under one mutex, so clients never see a
// USERS snapshot from a half-applied dispatch.
//
// Thread Safety: All methods are safe for concurrent use.
type Controller struct {
	registry     *registry.Registry
	link         DeviceLink
	hub          *hub.Hub
	pollInterval time.Duration
	sinks        []ActivitySink
	logger       Logger
	clock        func() time.Time

	// mu serialises dispatches.
	mu sync.Mutex

	activities chan Activity
	startTime  time.Time

	deviceLines   atomic.Uint64
	commands      atomic.Uint64
	droppedWrites atomic.Uint64
	droppedEvents atomic.Uint64
}

// NewController validates opts and returns a Controller.
// Call Run to start the device loop.
func NewController(opts Options) (*Controller, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	}
	if opts.Link == nil {
		return nil, fmt.Errorf("%w: device link", ErrMissingDependency)
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("%w: hub", ErrMissingDependency)
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Controller{
		registry:     opts.Registry,
		link:         opts.Link,
		hub:          opts.Hub,
		pollInterval: interval,
		sinks:        opts.Sinks,
		logger:       opts.Logger,
		clock:        clock,
		activities:   make(chan Activity, activityQueueSize),
		startTime:    time.Now(),
	}, nil
}

// Run drains the device link until ctx is cancelled.
//
// There must be exactly one Run per Controller: every device line is
// acted on once regardless of how many clients are connected.
func (c *Controller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.activityLoop(ctx)
	}()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.logInfo("device loop started", "poll_interval", c.pollInterval, "device_connected", c.link.IsConnected())

	for {
		c.drainDevice()

		select {
		case <-ctx.Done():
			wg.Wait()
			c.logInfo("device loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// drainDevice dispatches every line currently waiting on the link.
func (c *Controller) drainDevice() {
	for {
		line, ok := c.link.PollLine()
		if !ok {
			return
		}
		c.HandleDeviceLine(line)
	}
}

// HandleDeviceLine parses and dispatches a single device line.
func (c *Controller) HandleDeviceLine(line string) {
	c.deviceLines.Add(1)
	event := ParseDeviceLine(line)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := event.(type) {
	case EnrollSucceeded:
		c.handleEnrollSucceeded(ev.Roll)

	case EnrollFailedDuplicateRoll:
		c.logInfo("device rejected enrolment: roll exists")
		c.hub.Broadcast(EncodeLCD(LCDRollExists))
		c.emit(Activity{Kind: ActivityEnrollDuplicateRoll, Source: SourceDevice})

	case EnrollFailedDuplicateFinger:
		c.logInfo("device rejected enrolment: finger already enrolled")
		c.hub.Broadcast(EncodeLCD(LCDFingerExists))
		c.emit(Activity{Kind: ActivityEnrollDuplicateFinger, Source: SourceDevice})

	case DeleteSucceeded:
		removed := c.registry.Remove(ev.Roll)
		c.logInfo("device confirmed delete", "roll", ev.Roll, "removed", removed)
		c.hub.Broadcast(MsgDeleteUpdated)
		c.hub.Broadcast(EncodeUsers(c.registry.Snapshot()))
		c.emit(Activity{Kind: ActivityDeleted, Roll: ev.Roll, Source: SourceDevice, Detail: removedDetail(removed)})

	case Raw:
		c.logDebug("forwarding device line", "line", ev.Text)
		c.hub.Broadcast(ev.Text)
	}
}

// handleEnrollSucceeded must be called with c.mu held.
func (c *Controller) handleEnrollSucceeded(roll string) {
	rec, err := c.registry.Add(roll, c.clock())
	switch {
	case err == nil:
		c.logInfo("user enrolled", "roll", rec.Roll, "id", rec.ID)
		c.hub.Broadcast(MsgJSONUpdated)
		c.emit(Activity{Kind: ActivityEnrolled, Roll: rec.Roll, Source: SourceDevice, Detail: fmt.Sprintf("ID_No=%d", rec.ID)})
	case errors.Is(err, registry.ErrAlreadyExists):
		c.logDebug("enrolment for existing roll, resending users", "roll", roll)
		c.emit(Activity{Kind: ActivityEnrollDuplicate, Roll: roll, Source: SourceDevice})
	default:
		c.logWarn("enrolment not recorded", "roll", roll, "error", err)
	}
	c.hub.Broadcast(EncodeUsers(c.registry.Snapshot()))
}

// Connect registers a new client session and tells it the device status.
func (c *Controller) Connect(s hub.Session) {
	c.hub.Add(s)
	c.hub.Send(s, EncodeStatus(c.link.IsConnected())) //nolint:errcheck // Logged by hub
	c.logDebug("client connected", "session_id", s.ID(), "clients", c.hub.Count())
}

// Disconnect forgets a client session. Safe to call more than once.
func (c *Controller) Disconnect(s hub.Session) {
	c.hub.Remove(s)
	c.logDebug("client disconnected", "session_id", s.ID(), "clients", c.hub.Count())
}

// HandleCommand acts on one message from session s. Unknown messages are
// ignored.
func (c *Controller) HandleCommand(s hub.Session, text string) {
	c.commands.Add(1)
	cmd := ParseCommand(text)

	switch cmd.Kind {
	case CommandGetStatus:
		c.mu.Lock()
		c.hub.Broadcast(EncodeStatus(c.link.IsConnected()))
		c.mu.Unlock()

	case CommandEnroll:
		c.writeDevice(EnrollLine(cmd.Roll))
		c.emit(Activity{Kind: ActivityEnrollRequested, Roll: cmd.Roll, Source: SourceClient, SessionID: s.ID()})

	case CommandEnrollCancel:
		c.writeDevice(CmdEnrollCancel)
		c.emit(Activity{Kind: ActivityEnrollCancelled, Source: SourceClient, SessionID: s.ID()})

	case CommandListUsers:
		c.mu.Lock()
		users := EncodeUsers(c.registry.Snapshot())
		c.mu.Unlock()
		c.hub.Send(s, users) //nolint:errcheck // Logged by hub

	case CommandDelete:
		c.mu.Lock()
		removed := c.registry.Remove(cmd.Roll)
		c.hub.Broadcast(MsgDeleteUpdated)
		c.hub.Broadcast(EncodeUsers(c.registry.Snapshot()))
		c.emit(Activity{Kind: ActivityDeleteRequested, Roll: cmd.Roll, Source: SourceClient, SessionID: s.ID(), Detail: removedDetail(removed)})
		c.mu.Unlock()

		c.logInfo("client deleted user", "roll", cmd.Roll, "removed", removed, "session_id", s.ID())
		c.writeDevice(DeleteLine(cmd.Roll))

	default:
		c.logDebug("ignoring client message", "session_id", s.ID(), "message", text)
	}
}

// writeDevice sends a line if the device is connected and drops it otherwise.
func (c *Controller) writeDevice(line string) {
	if !c.link.IsConnected() {
		c.droppedWrites.Add(1)
		c.logWarn("device not connected, command dropped", "line", line)
		return
	}
	if err := c.link.WriteLine(line); err != nil {
		c.droppedWrites.Add(1)
		c.logWarn("device write failed", "line", line, "error", err)
	}
}

// emit queues an activity for the sinks without blocking.
func (c *Controller) emit(a Activity) {
	if len(c.sinks) == 0 {
		return
	}
	if a.At.IsZero() {
		a.At = c.clock()
	}
	a.RegistrySize = c.registry.Count()

	select {
	case c.activities <- a:
	default:
		c.droppedEvents.Add(1)
		c.logWarn("activity dropped", "kind", a.Kind, "error", ErrActivityQueueFull)
	}
}

// activityLoop hands queued activities to the sinks until ctx is done.
func (c *Controller) activityLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.activities:
			for _, sink := range c.sinks {
				sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
				if err := sink.RecordActivity(sinkCtx, a); err != nil {
					c.logWarn("activity sink failed", "kind", a.Kind, "error", err)
				}
				cancel()
			}
		}
	}
}

// Metrics is a snapshot of controller state for health and metrics endpoints.
//
// Clients counts browser sessions only; the MQTT mirror is reported
// separately.
type Metrics struct {
	DeviceConnected bool    `json:"device_connected"`
	Clients         int     `json:"clients"`
	MQTTMirror      bool    `json:"mqtt_mirror"`
	Users           int     `json:"users"`
	DeviceLines     uint64  `json:"device_lines"`
	Commands        uint64  `json:"commands"`
	DroppedWrites   uint64  `json:"dropped_writes"`
	DroppedEvents   uint64  `json:"dropped_events"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// GetMetrics returns current controller metrics.
func (c *Controller) GetMetrics() Metrics {
	clients := c.hub.Count()
	mirrored := c.hub.Contains(MirrorSessionID)
	if mirrored {
		clients--
	}

	return Metrics{
		DeviceConnected: c.link.IsConnected(),
		Clients:         clients,
		MQTTMirror:      mirrored,
		Users:           c.registry.Count(),
		DeviceLines:     c.deviceLines.Load(),
		Commands:        c.commands.Load(),
		DroppedWrites:   c.droppedWrites.Load(),
		DroppedEvents:   c.droppedEvents.Load(),
		UptimeSeconds:   time.Since(c.startTime).Seconds(),
	}
}

// DeviceConnected reports the current link state.
func (c *Controller) DeviceConnected() bool {
	return c.link.IsConnected()
}

// Users returns the registry snapshot.
func (c *Controller) Users() []registry.UserRecord {
	return c.registry.Snapshot()
}

func removedDetail(removed bool) string {
	if removed {
		return "removed"
	}
	return "not_found"
}

func (c *Controller) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}

package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementActivity = "fpbridge_activity"
	MeasurementBridge   = "fpbridge_bridge"
)

// BridgeSample is a point-in-time view of the bridge.
type BridgeSample struct {
	DeviceConnected bool
	Clients         int
	Users           int
	DeviceLines     uint64
	Commands        uint64
	DroppedWrites   uint64
}

// WriteActivity records one bridge activity.
//
// Example:
//
//	client.WriteActivity("enrolled", "device", 12, time.Now())
func (c *Client) WriteActivity(kind, source string, registrySize int, at time.Time) {
	c.writePoint(write.NewPoint(
		MeasurementActivity,
		map[string]string{
			"kind":   kind,
			"source": source,
		},
		map[string]any{
			"count":         1,
			"registry_size": registrySize,
		},
		at,
	))
}

// WriteBridgeSample records the current bridge state.
func (c *Client) WriteBridgeSample(s BridgeSample, at time.Time) {
	c.writePoint(write.NewPoint(
		MeasurementBridge,
		nil,
		map[string]any{
			"device_connected": s.DeviceConnected,
			"clients":          s.Clients,
			"users":            s.Users,
			"device_lines":     s.DeviceLines,
			"commands":         s.Commands,
			"dropped_writes":   s.DroppedWrites,
		},
		at,
	))
}

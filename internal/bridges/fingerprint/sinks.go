package fingerprint

import (
	"context"
	"time"

	"github.com/nerrad567/fingerprint-bridge/internal/history"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/influxdb"
)

// HistorySink journals activities to a history repository.
type HistorySink struct {
	Repo history.Repository
}

// RecordActivity implements ActivitySink.
func (s HistorySink) RecordActivity(ctx context.Context, a Activity) error {
	return s.Repo.Record(ctx, history.Entry{
		Kind:         string(a.Kind),
		Roll:         a.Roll,
		Detail:       a.Detail,
		Source:       a.Source,
		SessionID:    a.SessionID,
		RegistrySize: a.RegistrySize,
		CreatedAt:    a.At,
	})
}

// ActivityWriter is the telemetry side of an activity, satisfied by
// *influxdb.Client.
type ActivityWriter interface {
	WriteActivity(kind, source string, registrySize int, at time.Time)
}

// TelemetrySink forwards activities to a time-series writer.
// Writes are batched by the writer, so this never fails.
type TelemetrySink struct {
	Writer ActivityWriter
}

// RecordActivity implements ActivitySink.
func (s TelemetrySink) RecordActivity(_ context.Context, a Activity) error {
	s.Writer.WriteActivity(string(a.Kind), a.Source, a.RegistrySize, a.At)
	return nil
}

// SampleWriter records periodic bridge samples, satisfied by *influxdb.Client.
type SampleWriter interface {
	WriteBridgeSample(s influxdb.BridgeSample, at time.Time)
}

// RunSampler writes a bridge sample every interval until ctx is done.
func RunSampler(ctx context.Context, src MetricsSource, w SampleWriter, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			m := src.GetMetrics()
			w.WriteBridgeSample(influxdb.BridgeSample{
				DeviceConnected: m.DeviceConnected,
				Clients:         m.Clients,
				Users:           m.Users,
				DeviceLines:     m.DeviceLines,
				Commands:        m.Commands,
				DroppedWrites:   m.DroppedWrites,
			}, at)
		}
	}
}

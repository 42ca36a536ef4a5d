// Package influxdb writes fpbridge telemetry to InfluxDB v2.
//
// It wraps influxdb-client-go's non-blocking, batched write API. Two
// measurements are written:
//
//   - fpbridge_activity: one point per journal activity, tagged by kind
//     and source, with the registry size after the event
//   - fpbridge_bridge: a periodic sample of device connectivity, client
//     count and enrolled users
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteActivity("enrolled", "device", 12, time.Now())
//
// Write errors surface asynchronously through SetOnError.
package influxdb

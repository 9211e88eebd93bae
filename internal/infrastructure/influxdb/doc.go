// Package influxdb records session activity as InfluxDB time series.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//   - session_events: one point per lifecycle event, tagged by kind and
//     device, with user_id, session_id and count fields.
//   - session_stats: a snapshot after each cleanup run (active sessions,
//     sessions today, unique users today, average duration), plus one
//     point per device bucket.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	recorder := influxdb.NewSessionEvents(client)
//	manager := auth.NewSessionManager(store, sessCfg, logger, auth.WithEventPublisher(recorder))
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb

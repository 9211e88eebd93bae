// Package mqtt publishes session lifecycle events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - A retained online/offline status topic
//
// # Topics
//
// Everything lives under the configured prefix (default "leitura"):
//
//	leitura/system/status              retained, online/offline
//	leitura/auth/session/created       session.created events
//	leitura/auth/session/refreshed     session.refreshed events
//	leitura/auth/session/revoked       session.revoked events
//	leitura/auth/session/revoked_all   session.revoked_all events
//	leitura/auth/session/purged        session.purged events
//
// Event payloads are the JSON encoding of auth.Event. They never carry
// session or refresh tokens.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	events := mqtt.NewSessionEvents(client, client.Topics(), byte(cfg.MQTT.QoS))
//	manager := auth.NewSessionManager(store, sessCfg, logger, auth.WithEventPublisher(events))
package mqtt

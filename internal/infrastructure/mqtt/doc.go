// Package mqtt provides MQTT client connectivity for authd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// authd publishes to the bus and never subscribes. Two concerns ride on it:
// the email hand-off (reset and verification tokens are handed to a
// separate mailer service via authd/notify/email) and the security event
// stream (authd/events/security), which SIEM tooling and dashboards
// consume.
//
//	authd → MQTT Broker → mailer / monitoring
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Notification payloads contain live tokens; broker ACLs must restrict
//     the notify topic to the mailer
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.SecurityEvents()
//	client.PublishJSON(topic, payload)
package mqtt

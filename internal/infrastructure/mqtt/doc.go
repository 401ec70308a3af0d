// Package mqtt provides the MQTT client used to publish reconciler state and
// receive remote register commands.
//
// Features:
//   - Retained status with a Last Will so crashes are visible to subscribers
//   - Automatic reconnection with subscription restore
//   - Panic recovery and error logging around message handlers
//   - A per-instance topic namespace (see Topics)
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.PublishJSON(client.Topics().State(), snapshot, true)
package mqtt

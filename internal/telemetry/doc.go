// Package telemetry fans reconciler results and register writes out to MQTT
// and InfluxDB, and accepts register commands over MQTT.
//
// MQTTPublisher and InfluxRecorder implement both reconcile.Observer and
// mcu.WriteObserver. CommandHandler subscribes to the command topics and
// drives the MCU client and reconciler in response.
package telemetry

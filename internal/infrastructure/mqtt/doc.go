// Package mqtt wraps paho.mqtt.golang for the Switchyard state mirror.
//
// It provides connection management with automatic reconnection and
// subscription restoration, a Last Will and Testament on the hub
// status topic, and validated publish/subscribe operations over the
// small Switchyard topic hierarchy (see Topics).
package mqtt

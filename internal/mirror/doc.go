// Package mirror connects the hub to the MQTT bus: outbound, the full
// state document retained on switchyard/state after every change;
// inbound, hardware status reports from switchyard/status merged into
// the hub as if they had arrived on the duplex connection.
package mirror

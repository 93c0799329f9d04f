// Package telemetry records switch transitions and hardware signal
// strength to InfluxDB.
//
// Writes are batched and non-blocking: a metric write never delays the
// realtime path, and failures surface through the async error callback
// rather than the caller. The whole package is optional; when disabled
// in config, the hub runs without it.
package telemetry

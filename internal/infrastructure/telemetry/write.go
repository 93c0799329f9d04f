package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSwitchMetric records a switch transition. The value is written
// as 0/1 so dashboards can plot duty cycles directly.
func (c *Client) WriteSwitchMetric(switchID string, on bool) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if on {
		value = 1.0
	}

	point := write.NewPoint(
		"switch_state",
		map[string]string{
			"switch_id": switchID,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSignalStrength records the hardware controller's reported RSSI
// in dBm.
func (c *Client) WriteSignalStrength(rssi float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"hardware_signal",
		map[string]string{
			"source": "controller",
		},
		map[string]interface{}{
			"rssi_dbm": rssi,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom measurement with full control over tags
// and fields, for anything the helpers do not cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteVentilationReading records one poll result for a ventilation unit.
//
// The transport tag records which path produced the reading (cloud or
// modbus), which makes transport fallback visible in dashboards. Writes
// are non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "hru-400")
//   - transport: Transport that produced the reading ("cloud" or "modbus")
//   - fields: Numeric telemetry (fan speed, temperatures, bypass position)
func (c *Client) WriteVentilationReading(deviceID, transport string, fields map[string]interface{}) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"ventilation",
		map[string]string{
			"device_id": deviceID,
			"transport": transport,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceMetric writes a single named measurement for a device.
//
// Example:
//
//	client.WriteDeviceMetric("hru-400", "supply_temperature_c", 18.5)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteHumidityDecision records a humidity controller action.
//
// Parameters:
//   - deviceID: The controlled ventilation device
//   - mode: The mode the controller switched to
//   - observed: The observed humidity (max across linked sensors, %RH)
func (c *Client) WriteHumidityDecision(deviceID, mode string, observed float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"humidity_control",
		map[string]string{
			"device_id": deviceID,
			"mode":      mode,
		},
		map[string]interface{}{
			"observed_humidity": observed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Package mqtt provides MQTT client connectivity for Alnor Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Alnor Core exposes ventilation devices to home-automation consumers
// (typically Home Assistant) over MQTT. Retained state and availability
// topics give new subscribers the current picture immediately; command
// topics accept mode/speed requests which are acknowledged per command.
//
//	Home Assistant ↔ MQTT Broker ↔ Alnor Core ↔ Cloud / Modbus-TCP
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to commands for all devices
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(topic, payload)
//	    })
//
//	// Publish retained device state
//	client.PublishRetained(mqtt.Topics{}.DeviceState("hru-400"), stateJSON)
package mqtt

package transport

import "github.com/alnorlabs/alnor-core/internal/device"

// Holding register map for Alnor HRU units.
//
// The poll block covers registers 0-31 in a single read; command writes
// target individual registers. Temperatures are signed, scaled by 10.
// The sentinel 0x7FFF marks a value the unit cannot provide (for example
// humidity on units without a built-in sensor).
const (
	regPower uint16 = 0
	regMode  uint16 = 1
	regSpeed uint16 = 2

	regIndoorTemp  uint16 = 10
	regOutdoorTemp uint16 = 11
	regSupplyTemp  uint16 = 12
	regExhaustTemp uint16 = 13
	regHumidity    uint16 = 14

	regPreheaterDemand uint16 = 20
	regBypassPosition  uint16 = 21
	regSupplyFanSpeed  uint16 = 22
	regExhaustFanSpeed uint16 = 23

	regFilterDays uint16 = 30
	regFaultCode  uint16 = 31

	regFilterReset uint16 = 40

	// pollBase and pollCount define the single block read per poll.
	pollBase  uint16 = 0
	pollCount uint16 = 32

	// regUnavailable marks a register the unit cannot provide.
	regUnavailable uint16 = 0x7FFF

	// temperatureScale divides raw temperature registers into Celsius.
	temperatureScale = 10.0
)

// modeRegisterValues maps ventilation modes onto their register encoding.
var modeRegisterValues = map[device.VentilationMode]uint16{
	device.ModeStandby:  0,
	device.ModeAway:     1,
	device.ModeHome:     2,
	device.ModeHomePlus: 3,
	device.ModeAuto:     4,
	device.ModeParty:    5,
}

// registerModeValues is the reverse of modeRegisterValues.
var registerModeValues = func() map[uint16]device.VentilationMode {
	m := make(map[uint16]device.VentilationMode, len(modeRegisterValues))
	for mode, v := range modeRegisterValues {
		m[v] = mode
	}
	return m
}()

// decodeTemperature converts a raw register into Celsius, treating the
// sentinel as absent.
func decodeTemperature(raw uint16) *float64 {
	if raw == regUnavailable {
		return nil
	}
	v := float64(int16(raw)) / temperatureScale
	return &v
}

// decodeOptionalInt converts a raw register into an int, treating the
// sentinel as absent.
func decodeOptionalInt(raw uint16) *int {
	if raw == regUnavailable {
		return nil
	}
	v := int(raw)
	return &v
}

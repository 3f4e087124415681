package device

import "time"

// VentilationMode is a named operating preset of a ventilation unit.
type VentilationMode string

// Ventilation modes supported by Alnor HRU units.
const (
	ModeStandby  VentilationMode = "standby"
	ModeAway     VentilationMode = "away"
	ModeHome     VentilationMode = "home"
	ModeHomePlus VentilationMode = "home_plus"
	ModeAuto     VentilationMode = "auto"
	ModeParty    VentilationMode = "party"
)

// ValidModes lists every recognised ventilation mode.
var ValidModes = []VentilationMode{
	ModeStandby, ModeAway, ModeHome, ModeHomePlus, ModeAuto, ModeParty,
}

// IsValid reports whether the mode is one of the recognised presets.
func (m VentilationMode) IsValid() bool {
	for _, v := range ValidModes {
		if m == v {
			return true
		}
	}
	return false
}

// PowersOn reports whether selecting this mode implies the unit runs.
// Every mode except standby switches the unit on; standby switches it off.
func (m VentilationMode) PowersOn() bool {
	return m != ModeStandby
}

// SpeedTier is a coarse fan-speed request. Tiers map onto the unit's
// percentage scale for consumers that don't want to pick an exact value.
type SpeedTier string

// Speed tiers and their percentage equivalents.
const (
	SpeedLow    SpeedTier = "low"
	SpeedMedium SpeedTier = "medium"
	SpeedHigh   SpeedTier = "high"
)

// Percent returns the fan-speed percentage a tier maps to.
// Unknown tiers return -1.
func (s SpeedTier) Percent() int {
	switch s {
	case SpeedLow:
		return 30
	case SpeedMedium:
		return 60
	case SpeedHigh:
		return 100
	default:
		return -1
	}
}

// IsValid reports whether the tier is recognised.
func (s SpeedTier) IsValid() bool {
	return s.Percent() >= 0
}

// Transport identifies which path a reading or command travelled.
type Transport string

// Transports.
const (
	TransportCloud  Transport = "cloud"
	TransportModbus Transport = "modbus"
)

// ProductType classifies a catalogued device. The enum is closed: each
// variant exposes only the operations valid for it, checked through the
// capability methods below rather than per-call-site type switches.
type ProductType string

// Product types.
const (
	// ProductHRU is a heat-recovery ventilation unit.
	ProductHRU ProductType = "hru"

	// ProductExhaustFan is a standalone exhaust fan. Speed and power
	// only; no preset modes.
	ProductExhaustFan ProductType = "exhaust_fan"

	// ProductSensor is a standalone humidity/temperature sensor.
	ProductSensor ProductType = "sensor"
)

// IsValid reports whether the product type is recognised.
func (p ProductType) IsValid() bool {
	switch p {
	case ProductHRU, ProductExhaustFan, ProductSensor:
		return true
	default:
		return false
	}
}

// Controllable reports whether the product accepts commands at all.
// Sensors are read-only.
func (p ProductType) Controllable() bool {
	return p == ProductHRU || p == ProductExhaustFan
}

// SupportsModes reports whether the product understands preset
// ventilation modes. Exhaust fans only take power and speed.
func (p ProductType) SupportsModes() bool {
	return p == ProductHRU
}

// SupportsFilterReset reports whether the product tracks filter life.
func (p ProductType) SupportsFilterReset() bool {
	return p == ProductHRU
}

// Device is one catalogued unit: identity and addressing, not live state.
// Live readings flow through the coordinator's snapshot and are never
// persisted here.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Classification
	ProductType ProductType `json:"product_type"`

	// Firmware version as reported by cloud discovery.
	Firmware string `json:"firmware,omitempty"`

	// LocalIP is the address for the Modbus-TCP transport. Empty means
	// the device is cloud-only. Installer config overrides the value
	// reported by discovery.
	LocalIP string `json:"local_ip,omitempty"`

	// Timestamps
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// DeepCopy creates an independent copy of the Device.
// Devices currently hold only value fields, but callers must still go
// through DeepCopy so cache isolation survives future pointer fields.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// HasLocalTransport reports whether the device can be polled over Modbus-TCP.
func (d *Device) HasLocalTransport() bool {
	return d.LocalIP != ""
}

// Reading is one telemetry snapshot from a device, via either transport.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	Transport Transport `json:"transport"`
	Timestamp time.Time `json:"timestamp"`

	// Operating state
	Mode  VentilationMode `json:"mode,omitempty"`
	Power bool            `json:"power"`
	// Speed is the fan speed in percent (0-100).
	Speed int `json:"speed"`

	// Temperatures in degrees Celsius.
	IndoorTemp  *float64 `json:"indoor_temp,omitempty"`
	OutdoorTemp *float64 `json:"outdoor_temp,omitempty"`
	SupplyTemp  *float64 `json:"supply_temp,omitempty"`
	ExhaustTemp *float64 `json:"exhaust_temp,omitempty"`

	// Humidity is the relative humidity in percent, when the device
	// carries a humidity sensor.
	Humidity *float64 `json:"humidity,omitempty"`

	// Unit internals
	PreheaterDemand *int `json:"preheater_demand,omitempty"`
	BypassPosition  *int `json:"bypass_position,omitempty"`
	SupplyFanSpeed  *int `json:"supply_fan_speed,omitempty"`
	ExhaustFanSpeed *int `json:"exhaust_fan_speed,omitempty"`

	// Maintenance
	FilterDaysRemaining *int `json:"filter_days_remaining,omitempty"`
	FaultCode           *int `json:"fault_code,omitempty"`
}

// DeepCopy creates an independent copy of the Reading, cloning every
// pointer field so a cached reading can never be mutated by callers.
func (r *Reading) DeepCopy() *Reading {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.IndoorTemp = copyFloat(r.IndoorTemp)
	cpy.OutdoorTemp = copyFloat(r.OutdoorTemp)
	cpy.SupplyTemp = copyFloat(r.SupplyTemp)
	cpy.ExhaustTemp = copyFloat(r.ExhaustTemp)
	cpy.Humidity = copyFloat(r.Humidity)
	cpy.PreheaterDemand = copyInt(r.PreheaterDemand)
	cpy.BypassPosition = copyInt(r.BypassPosition)
	cpy.SupplyFanSpeed = copyInt(r.SupplyFanSpeed)
	cpy.ExhaustFanSpeed = copyInt(r.ExhaustFanSpeed)
	cpy.FilterDaysRemaining = copyInt(r.FilterDaysRemaining)
	cpy.FaultCode = copyInt(r.FaultCode)
	return &cpy
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}

// Command is one requested change to a device. Exactly which fields are
// set determines what the transport writes; ValidateCommand rejects
// commands with no action at all.
type Command struct {
	// ID correlates the command with its acknowledgement.
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`

	// Mode selects an operating preset. Selecting any mode other than
	// standby also powers the unit on; standby powers it off.
	Mode *VentilationMode `json:"mode,omitempty"`

	// Speed sets the fan speed in percent (0-100).
	Speed *int `json:"speed,omitempty"`

	// SpeedTier sets the fan speed by tier instead of exact percent.
	SpeedTier *SpeedTier `json:"speed_tier,omitempty"`

	// Power switches the unit on or off without changing the preset.
	Power *bool `json:"power,omitempty"`

	// ResetFilter clears the filter maintenance counter.
	ResetFilter bool `json:"reset_filter,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// HasAction reports whether the command requests at least one change.
func (c *Command) HasAction() bool {
	return c.Mode != nil || c.Speed != nil || c.SpeedTier != nil || c.Power != nil || c.ResetFilter
}

// EffectiveSpeed resolves the requested fan speed in percent, preferring
// an exact Speed over a SpeedTier. Returns -1 when no speed is requested.
func (c *Command) EffectiveSpeed() int {
	if c.Speed != nil {
		return *c.Speed
	}
	if c.SpeedTier != nil {
		return c.SpeedTier.Percent()
	}
	return -1
}

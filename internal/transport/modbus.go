package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/config"
)

// Modbus protocol constants.
const (
	// mbapHeaderSize is the size of the MBAP header (transaction ID,
	// protocol ID, length, unit ID).
	mbapHeaderSize = 7

	// modbusProtocolID is always zero for Modbus-TCP.
	modbusProtocolID = 0

	// Function codes.
	fcReadHoldingRegisters = 0x03
	fcWriteSingleRegister  = 0x06

	// exceptionFlag marks an exception response (function code | 0x80).
	exceptionFlag = 0x80

	// maxRegistersPerRead is the protocol limit for FC 3.
	maxRegistersPerRead = 125
)

// ModbusClient polls devices over Modbus-TCP on the local network.
//
// Each call dials a fresh connection. HRU units accept a single
// concurrent connection at most, and polls are 30 seconds apart, so
// connection reuse buys nothing and a stale half-open connection after a
// device reboot would cost a full timeout.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The coordinator
//     serialises writes per device at a higher level.
type ModbusClient struct {
	port    int
	unitID  byte
	timeout time.Duration
	logger  Logger

	// txn generates MBAP transaction IDs.
	txn atomic.Uint32
}

// NewModbusClient creates a Modbus-TCP transport from configuration.
func NewModbusClient(cfg config.ModbusConfig) *ModbusClient {
	return &ModbusClient{
		port:    cfg.Port,
		unitID:  byte(cfg.UnitID),
		timeout: time.Duration(cfg.Timeout) * time.Second,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *ModbusClient) SetLogger(logger Logger) {
	c.logger = logger
}

// Kind identifies this transport.
func (c *ModbusClient) Kind() device.Transport {
	return device.TransportModbus
}

// Poll reads the full telemetry block from one device.
func (c *ModbusClient) Poll(ctx context.Context, dev *device.Device) (*device.Reading, error) {
	if !dev.HasLocalTransport() {
		return nil, fmt.Errorf("%w: %s", ErrNoLocalAddress, dev.ID)
	}

	conn, err := c.dial(ctx, dev.LocalIP)
	if err != nil {
		return nil, fmt.Errorf("polling %s: %w", dev.ID, err)
	}
	defer conn.Close()

	regs, err := c.readHoldingRegisters(ctx, conn, pollBase, pollCount)
	if err != nil {
		return nil, fmt.Errorf("polling %s: %w", dev.ID, err)
	}

	return decodeReading(dev.ID, regs), nil
}

// Apply writes a command to one device, register by register.
func (c *ModbusClient) Apply(ctx context.Context, dev *device.Device, cmd *device.Command) error {
	if !dev.HasLocalTransport() {
		return fmt.Errorf("%w: %s", ErrNoLocalAddress, dev.ID)
	}

	conn, err := c.dial(ctx, dev.LocalIP)
	if err != nil {
		return fmt.Errorf("applying command to %s: %w", dev.ID, err)
	}
	defer conn.Close()

	write := func(reg, value uint16) error {
		if err := c.writeSingleRegister(ctx, conn, reg, value); err != nil {
			return fmt.Errorf("applying command to %s: %w", dev.ID, err)
		}
		return nil
	}

	if cmd.Power != nil {
		v := uint16(0)
		if *cmd.Power {
			v = 1
		}
		if err := write(regPower, v); err != nil {
			return err
		}
	}

	if cmd.Mode != nil {
		v, ok := modeRegisterValues[*cmd.Mode]
		if !ok {
			return fmt.Errorf("%w: mode %q has no register encoding", ErrUnsupported, *cmd.Mode)
		}
		if err := write(regMode, v); err != nil {
			return err
		}
	}

	if speed := cmd.EffectiveSpeed(); speed >= 0 {
		if err := write(regSpeed, uint16(speed)); err != nil {
			return err
		}
	}

	if cmd.ResetFilter {
		if err := write(regFilterReset, 1); err != nil {
			return err
		}
	}

	return nil
}

// dial opens a connection to the device with the configured timeout.
func (c *ModbusClient) dial(ctx context.Context, host string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	addr := net.JoinHostPort(host, strconv.Itoa(c.port))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUnreachable, addr, err)
	}
	return conn, nil
}

// readHoldingRegisters issues FC 3 and returns the register values.
func (c *ModbusClient) readHoldingRegisters(ctx context.Context, conn net.Conn, start, count uint16) ([]uint16, error) {
	if count == 0 || count > maxRegistersPerRead {
		return nil, fmt.Errorf("%w: invalid register count %d", ErrProtocol, count)
	}

	pdu := make([]byte, 5)
	pdu[0] = fcReadHoldingRegisters
	binary.BigEndian.PutUint16(pdu[1:3], start)
	binary.BigEndian.PutUint16(pdu[3:5], count)

	resp, err := c.roundTrip(ctx, conn, pdu)
	if err != nil {
		return nil, err
	}

	if len(resp) < 2 || resp[0] != fcReadHoldingRegisters {
		return nil, fmt.Errorf("%w: unexpected read response", ErrProtocol)
	}
	byteCount := int(resp[1])
	if byteCount != int(count)*2 || len(resp) < 2+byteCount {
		return nil, fmt.Errorf("%w: short read response (%d bytes for %d registers)", ErrProtocol, byteCount, count)
	}

	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(resp[2+i*2 : 4+i*2])
	}
	return regs, nil
}

// writeSingleRegister issues FC 6 and verifies the echoed response.
func (c *ModbusClient) writeSingleRegister(ctx context.Context, conn net.Conn, reg, value uint16) error {
	pdu := make([]byte, 5)
	pdu[0] = fcWriteSingleRegister
	binary.BigEndian.PutUint16(pdu[1:3], reg)
	binary.BigEndian.PutUint16(pdu[3:5], value)

	resp, err := c.roundTrip(ctx, conn, pdu)
	if err != nil {
		return err
	}

	// FC 6 echoes the request PDU on success.
	if len(resp) < 5 || resp[0] != fcWriteSingleRegister ||
		binary.BigEndian.Uint16(resp[1:3]) != reg ||
		binary.BigEndian.Uint16(resp[3:5]) != value {
		return fmt.Errorf("%w: write to register %d not confirmed", ErrProtocol, reg)
	}
	return nil
}

// roundTrip frames a PDU with an MBAP header, sends it, and returns the
// response PDU. The connection deadline is set from the configured
// timeout and any earlier ctx deadline.
func (c *ModbusClient) roundTrip(ctx context.Context, conn net.Conn, pdu []byte) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: setting deadline: %w", ErrUnreachable, err)
	}

	txnID := uint16(c.txn.Add(1))

	frame := make([]byte, mbapHeaderSize+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], txnID)
	binary.BigEndian.PutUint16(frame[2:4], modbusProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], uint16(1+len(pdu)))
	frame[6] = c.unitID
	copy(frame[mbapHeaderSize:], pdu)

	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: write: %w", ErrUnreachable, err)
	}

	header := make([]byte, mbapHeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrUnreachable, err)
	}

	if binary.BigEndian.Uint16(header[0:2]) != txnID {
		return nil, fmt.Errorf("%w: transaction ID mismatch", ErrProtocol)
	}
	if binary.BigEndian.Uint16(header[2:4]) != modbusProtocolID {
		return nil, fmt.Errorf("%w: unexpected protocol ID", ErrProtocol)
	}

	length := binary.BigEndian.Uint16(header[4:6])
	if length < 2 {
		return nil, fmt.Errorf("%w: response too short", ErrProtocol)
	}

	resp := make([]byte, length-1) // length includes the unit ID byte
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnreachable, err)
	}

	if resp[0]&exceptionFlag != 0 {
		code := byte(0)
		if len(resp) > 1 {
			code = resp[1]
		}
		return nil, fmt.Errorf("%w: exception code %d for function %d", ErrProtocol, code, resp[0]&^byte(exceptionFlag))
	}

	return resp, nil
}

// decodeReading converts the poll block into a Reading.
func decodeReading(deviceID string, regs []uint16) *device.Reading {
	r := &device.Reading{
		DeviceID:  deviceID,
		Transport: device.TransportModbus,
		Timestamp: time.Now(),
		Power:     regs[regPower] != 0,
		Speed:     int(regs[regSpeed]),
	}

	if mode, ok := registerModeValues[regs[regMode]]; ok {
		r.Mode = mode
	}

	r.IndoorTemp = decodeTemperature(regs[regIndoorTemp])
	r.OutdoorTemp = decodeTemperature(regs[regOutdoorTemp])
	r.SupplyTemp = decodeTemperature(regs[regSupplyTemp])
	r.ExhaustTemp = decodeTemperature(regs[regExhaustTemp])

	if h := decodeOptionalInt(regs[regHumidity]); h != nil {
		v := float64(*h)
		r.Humidity = &v
	}

	r.PreheaterDemand = decodeOptionalInt(regs[regPreheaterDemand])
	r.BypassPosition = decodeOptionalInt(regs[regBypassPosition])
	r.SupplyFanSpeed = decodeOptionalInt(regs[regSupplyFanSpeed])
	r.ExhaustFanSpeed = decodeOptionalInt(regs[regExhaustFanSpeed])
	r.FilterDaysRemaining = decodeOptionalInt(regs[regFilterDays])
	r.FaultCode = decodeOptionalInt(regs[regFaultCode])

	return r
}

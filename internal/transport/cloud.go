package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/config"
)

// maxResponseSize bounds how much of a cloud response is read (1MB).
const maxResponseSize = 1 << 20

// CloudClient talks to the vendor cloud REST API.
//
// Authentication is a bearer token obtained from the login endpoint.
// The token is refreshed transparently: a 401 on any call triggers one
// re-login and retry before the error is surfaced.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Token refresh is
//     serialised so concurrent 401s produce a single login.
type CloudClient struct {
	baseURL  string
	username string
	password string

	httpClient *http.Client
	logger     Logger

	token   string
	tokenMu sync.Mutex
}

// NewCloudClient creates a cloud transport from configuration.
// No network traffic happens until Login or the first Poll.
func NewCloudClient(cfg config.CloudConfig) *CloudClient {
	return &CloudClient{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *CloudClient) SetLogger(logger Logger) {
	c.logger = logger
}

// Kind identifies this transport.
func (c *CloudClient) Kind() device.Transport {
	return device.TransportCloud
}

// cloudDevice is the discovery payload for one device.
type cloudDevice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProductType string `json:"product_type"`
	Firmware    string `json:"firmware"`
	LocalIP     string `json:"local_ip"`
}

// cloudState is the telemetry payload for one device.
type cloudState struct {
	Online bool   `json:"online"`
	Mode   string `json:"mode"`
	Power  bool   `json:"power"`
	Speed  int    `json:"speed"`

	IndoorTemp  *float64 `json:"indoor_temperature"`
	OutdoorTemp *float64 `json:"outdoor_temperature"`
	SupplyTemp  *float64 `json:"supply_temperature"`
	ExhaustTemp *float64 `json:"exhaust_temperature"`
	Humidity    *float64 `json:"humidity"`

	PreheaterDemand *int `json:"preheater_demand"`
	BypassPosition  *int `json:"bypass_position"`
	SupplyFanSpeed  *int `json:"supply_fan_speed"`
	ExhaustFanSpeed *int `json:"exhaust_fan_speed"`

	FilterDaysRemaining *int `json:"filter_days_remaining"`
	FaultCode           *int `json:"fault_code"`
}

// cloudCommand is the write payload for device state changes.
type cloudCommand struct {
	Mode        *string `json:"mode,omitempty"`
	Power       *bool   `json:"power,omitempty"`
	Speed       *int    `json:"speed,omitempty"`
	ResetFilter bool    `json:"reset_filter,omitempty"`
}

// Login authenticates against the cloud and stores the bearer token.
// Called once on startup; later calls refresh the token on 401.
func (c *CloudClient) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: login rejected (status %d)", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login returned status %d", ErrProtocol, resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return fmt.Errorf("%w: decoding login response: %w", ErrProtocol, err)
	}
	if result.Token == "" {
		return fmt.Errorf("%w: login response carried no token", ErrProtocol)
	}

	c.tokenMu.Lock()
	c.token = result.Token
	c.tokenMu.Unlock()

	return nil
}

// Discover lists all devices registered to the account.
// Used on startup to sync the local catalogue.
func (c *CloudClient) Discover(ctx context.Context) ([]device.Device, error) {
	var payload []cloudDevice
	if err := c.getJSON(ctx, "/v1/devices", &payload); err != nil {
		return nil, fmt.Errorf("discovering devices: %w", err)
	}

	now := time.Now()
	devices := make([]device.Device, 0, len(payload))
	for _, cd := range payload {
		devices = append(devices, device.Device{
			ID:          cd.ID,
			Name:        cd.Name,
			ProductType: device.ProductType(cd.ProductType),
			Firmware:    cd.Firmware,
			LocalIP:     cd.LocalIP,
			FirstSeen:   now,
			LastSeen:    now,
		})
	}
	return devices, nil
}

// Poll fetches the current telemetry of one device via the cloud.
// A device the cloud reports as offline counts as unreachable.
func (c *CloudClient) Poll(ctx context.Context, dev *device.Device) (*device.Reading, error) {
	var state cloudState
	if err := c.getJSON(ctx, "/v1/devices/"+dev.ID+"/state", &state); err != nil {
		return nil, fmt.Errorf("polling %s: %w", dev.ID, err)
	}

	if !state.Online {
		return nil, fmt.Errorf("%w: cloud reports %s offline", ErrUnreachable, dev.ID)
	}

	return &device.Reading{
		DeviceID:            dev.ID,
		Transport:           device.TransportCloud,
		Timestamp:           time.Now(),
		Mode:                device.VentilationMode(state.Mode),
		Power:               state.Power,
		Speed:               state.Speed,
		IndoorTemp:          state.IndoorTemp,
		OutdoorTemp:         state.OutdoorTemp,
		SupplyTemp:          state.SupplyTemp,
		ExhaustTemp:         state.ExhaustTemp,
		Humidity:            state.Humidity,
		PreheaterDemand:     state.PreheaterDemand,
		BypassPosition:      state.BypassPosition,
		SupplyFanSpeed:      state.SupplyFanSpeed,
		ExhaustFanSpeed:     state.ExhaustFanSpeed,
		FilterDaysRemaining: state.FilterDaysRemaining,
		FaultCode:           state.FaultCode,
	}, nil
}

// Apply writes a command to one device via the cloud.
func (c *CloudClient) Apply(ctx context.Context, dev *device.Device, cmd *device.Command) error {
	payload := cloudCommand{
		Power:       cmd.Power,
		ResetFilter: cmd.ResetFilter,
	}
	if cmd.Mode != nil {
		mode := string(*cmd.Mode)
		payload.Mode = &mode
	}
	if speed := cmd.EffectiveSpeed(); speed >= 0 {
		payload.Speed = &speed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	if err := c.doAuthenticated(ctx, http.MethodPut, "/v1/devices/"+dev.ID+"/state", body, nil); err != nil {
		return fmt.Errorf("applying command to %s: %w", dev.ID, err)
	}
	return nil
}

// getJSON performs an authenticated GET and decodes the response into out.
func (c *CloudClient) getJSON(ctx context.Context, path string, out any) error {
	return c.doAuthenticated(ctx, http.MethodGet, path, nil, out)
}

// doAuthenticated performs a request with the bearer token, re-logging
// in once on 401 before giving up.
func (c *CloudClient) doAuthenticated(ctx context.Context, method, path string, body []byte, out any) error {
	status, err := c.doOnce(ctx, method, path, body, out)
	if err == nil && status != http.StatusUnauthorized {
		return nil
	}
	if err != nil && status != http.StatusUnauthorized {
		return err
	}

	// Token expired; refresh and retry once.
	c.logger.Debug("cloud token rejected, re-authenticating")
	if err := c.Login(ctx); err != nil {
		return err
	}

	status, err = c.doOnce(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: request rejected after re-login", ErrAuthFailed)
	}
	return nil
}

// doOnce performs a single authenticated request.
// Returns the HTTP status so the caller can react to 401 specifically.
func (c *CloudClient) doOnce(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.tokenMu.Lock()
	token := c.token
	c.tokenMu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return http.StatusUnauthorized, fmt.Errorf("%w: status 401", ErrAuthFailed)
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, fmt.Errorf("%w: status 404", ErrProtocol)
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%w: cloud returned status %d", ErrUnreachable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return resp.StatusCode, fmt.Errorf("%w: cloud returned status %d", ErrProtocol, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decoding response: %w", ErrProtocol, err)
		}
	}
	return resp.StatusCode, nil
}

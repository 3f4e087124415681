package humidity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alnorlabs/alnor-core/internal/device"
)

// ControlState is the persisted record of the controller's switch
// position and last automatic action. Persisting it keeps the switch
// and the cooldown honest across service restarts.
type ControlState struct {
	DeviceID     string
	Enabled      bool
	LastMode     device.VentilationMode
	LastChangeAt time.Time
}

// StateStore persists controller state.
type StateStore interface {
	// Load returns the state for one device, or nil if none is stored.
	Load(ctx context.Context, deviceID string) (*ControlState, error)

	// Save writes the state for one device, replacing any previous row.
	Save(ctx context.Context, state *ControlState) error
}

// SQLiteStateStore implements StateStore on the humidity_control_state table.
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore creates a store backed by the given database.
func NewSQLiteStateStore(db *sql.DB) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

// Load returns the state for one device, or nil if none is stored.
func (s *SQLiteStateStore) Load(ctx context.Context, deviceID string) (*ControlState, error) {
	var enabled bool
	var lastMode, lastChangeAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT enabled, last_mode, last_change_at FROM humidity_control_state WHERE device_id = ?",
		deviceID,
	).Scan(&enabled, &lastMode, &lastChangeAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading humidity control state for %s: %w", deviceID, err)
	}

	state := &ControlState{
		DeviceID: deviceID,
		Enabled:  enabled,
		LastMode: device.VentilationMode(lastMode),
	}
	state.LastChangeAt, _ = time.Parse(time.RFC3339, lastChangeAt) //nolint:errcheck // Format is controlled
	return state, nil
}

// Save writes the state for one device, replacing any previous row.
func (s *SQLiteStateStore) Save(ctx context.Context, state *ControlState) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO humidity_control_state (device_id, enabled, last_mode, last_change_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			enabled = excluded.enabled,
			last_mode = excluded.last_mode,
			last_change_at = excluded.last_change_at,
			updated_at = excluded.updated_at
	`,
		state.DeviceID,
		state.Enabled,
		string(state.LastMode),
		state.LastChangeAt.UTC().Format(time.RFC3339),
		now,
	)
	if err != nil {
		return fmt.Errorf("saving humidity control state for %s: %w", state.DeviceID, err)
	}
	return nil
}

package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device catalogue persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all catalogued devices.
	List(ctx context.Context) ([]Device, error)

	// Upsert inserts a device or updates the existing row.
	// Cloud discovery runs on every startup, so insert-or-update is the
	// natural write primitive; FirstSeen is preserved on update.
	Upsert(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateLastSeen records a successful contact with the device.
	UpdateLastSeen(ctx context.Context, id string, seen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "id, name, product_type, firmware, local_ip, first_seen, last_seen"

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return d, nil
}

// List retrieves all catalogued devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Upsert inserts a device or updates the existing row, preserving FirstSeen.
func (r *SQLiteRepository) Upsert(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, product_type, firmware, local_ip, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			product_type = excluded.product_type,
			firmware = excluded.firmware,
			local_ip = excluded.local_ip,
			last_seen = excluded.last_seen
	`,
		device.ID,
		device.Name,
		string(device.ProductType),
		device.Firmware,
		device.LocalIP,
		device.FirstSeen.UTC().Format(time.RFC3339),
		device.LastSeen.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", device.ID, err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return nil
}

// UpdateLastSeen records a successful contact with the device.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, id string, seen time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_seen = ? WHERE id = ?",
		seen.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating last_seen for %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one devices row into a Device.
func scanDevice(s scanner) (*Device, error) {
	var d Device
	var productType, firstSeen, lastSeen string

	if err := s.Scan(&d.ID, &d.Name, &productType, &d.Firmware, &d.LocalIP, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}

	d.ProductType = ProductType(productType)
	d.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen) //nolint:errcheck // Format is controlled
	d.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)   //nolint:errcheck // Format is controlled

	return &d, nil
}

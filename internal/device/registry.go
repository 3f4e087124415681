package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device catalogue access with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating write operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup and after cloud discovery.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// List retrieves all devices, sorted by nothing in particular.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
		r.cacheMu.RUnlock()
		return devices, nil
	}
	r.cacheMu.RUnlock()

	devices, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}
	r.cacheMu.Unlock()

	return devices, nil
}

// ListControllable retrieves all ventilation units, excluding read-only
// sensors.
func (r *Registry) ListControllable(ctx context.Context) ([]Device, error) {
	devices, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	units := devices[:0]
	for _, d := range devices {
		if d.ProductType.Controllable() {
			units = append(units, d)
		}
	}
	return units, nil
}

// Upsert writes a device to the repository and updates the cache.
// Used by cloud discovery to sync the catalogue on startup.
func (r *Registry) Upsert(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	if err := r.repo.Upsert(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Debug("device upserted", "device_id", device.ID, "product_type", device.ProductType)
	return nil
}

// Delete removes a device from the repository and the cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "device_id", id)
	return nil
}

// MarkSeen records a successful contact with the device, updating both
// the cache and the repository.
func (r *Registry) MarkSeen(ctx context.Context, id string, seen time.Time) error {
	if err := r.repo.UpdateLastSeen(ctx, id, seen); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		cached.LastSeen = seen
	}
	r.cacheMu.Unlock()

	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

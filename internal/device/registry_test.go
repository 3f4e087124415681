package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

// MockRepository implements Repository for testing without a database.
type MockRepository struct {
	devices map[string]*Device

	// Call counters for verifying cache behaviour.
	getCalls  int
	listCalls int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.getCalls++
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.listCalls++
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *MockRepository) Upsert(_ context.Context, d *Device) error {
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *MockRepository) UpdateLastSeen(_ context.Context, id string, seen time.Time) error {
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.LastSeen = seen
	return nil
}

func seedDevice(t *testing.T, repo *MockRepository, id string, pt ProductType) {
	t.Helper()
	now := time.Now()
	if err := repo.Upsert(context.Background(), &Device{
		ID:          id,
		Name:        "Device " + id,
		ProductType: pt,
		FirstSeen:   now,
		LastSeen:    now,
	}); err != nil {
		t.Fatalf("seeding device %s: %v", id, err)
	}
}

func TestRegistryGetUsesCache(t *testing.T) {
	repo := NewMockRepository()
	seedDevice(t, repo, "hru-1", ProductHRU)

	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	for range 3 {
		if _, err := reg.Get(ctx, "hru-1"); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}

	if repo.getCalls != 0 {
		t.Errorf("expected cache hits, repository saw %d GetByID calls", repo.getCalls)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	if _, err := reg.Get(context.Background(), "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistryCacheIsolation(t *testing.T) {
	repo := NewMockRepository()
	seedDevice(t, repo, "hru-1", ProductHRU)

	reg := NewRegistry(repo)
	ctx := context.Background()
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	d, err := reg.Get(ctx, "hru-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	d.Name = "mutated"

	again, err := reg.Get(ctx, "hru-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Name == "mutated" {
		t.Error("cache must not observe caller mutations")
	}
}

func TestRegistryListControllable(t *testing.T) {
	repo := NewMockRepository()
	seedDevice(t, repo, "hru-1", ProductHRU)
	seedDevice(t, repo, "fan-1", ProductExhaustFan)
	seedDevice(t, repo, "rh-bathroom", ProductSensor)

	reg := NewRegistry(repo)
	ctx := context.Background()
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	units, err := reg.ListControllable(ctx)
	if err != nil {
		t.Fatalf("ListControllable() error = %v", err)
	}
	if len(units) != 2 {
		t.Errorf("ListControllable() returned %d devices, want 2", len(units))
	}
	for _, d := range units {
		if !d.ProductType.Controllable() {
			t.Errorf("ListControllable() returned read-only device %s", d.ID)
		}
	}
}

func TestRegistryUpsertInvalidatesNothingButUpdatesCache(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	now := time.Now()
	d := &Device{ID: "hru-1", Name: "New HRU", ProductType: ProductHRU, FirstSeen: now, LastSeen: now}
	if err := reg.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := reg.Get(ctx, "hru-1")
	if err != nil {
		t.Fatalf("Get() after Upsert error = %v", err)
	}
	if got.Name != "New HRU" {
		t.Errorf("Get() name = %q, want %q", got.Name, "New HRU")
	}
	if repo.getCalls != 0 {
		t.Error("Get() after Upsert should be served from cache")
	}
}

func TestRegistryUpsertRejectsInvalid(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	err := reg.Upsert(context.Background(), &Device{ID: "", Name: "x", ProductType: ProductHRU})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Upsert() error = %v, want ErrInvalidDevice", err)
	}
}

func TestRegistryMarkSeen(t *testing.T) {
	repo := NewMockRepository()
	seedDevice(t, repo, "hru-1", ProductHRU)

	reg := NewRegistry(repo)
	ctx := context.Background()
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	seen := time.Now().Add(time.Hour)
	if err := reg.MarkSeen(ctx, "hru-1", seen); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	d, err := reg.Get(ctx, "hru-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !d.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, seen)
	}
}

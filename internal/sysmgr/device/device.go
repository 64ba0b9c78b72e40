// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     device
// Description: Registry of devices announced by services, backed by a
//              pluggable store
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package device

import (
	"context"
	"sort"
	"sync"
	"time"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Device is one registered device
type Device struct {
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Owner        string    `json:"owner"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Store persists devices
type Store interface {
	Save(ctx context.Context, d *Device) error
	Get(ctx context.Context, name string) (*Device, error)
	List(ctx context.Context) ([]*Device, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// Manager records device registrations
type Manager struct {
	store  Store
	now    func() time.Time
	logger *logging.Logger
}

// NewManager creates a manager over store
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now, logger: logging.New("device")}
}

// Register records a device announced by owner. Registering an existing
// name replaces the entry.
func (m *Manager) Register(ctx context.Context, owner, name, kind string) error {
	if name == "" {
		return mserror.New("device name is required").WithCode(mserror.CodeInvalidInput)
	}
	d := &Device{Name: name, Kind: kind, Owner: owner, RegisteredAt: m.now()}
	if err := m.store.Save(ctx, d); err != nil {
		return mserror.Wrap(err, "failed to register device").
			WithCode(mserror.CodeStorageError).
			WithDetail("device", name)
	}
	m.logger.Info("device registered", "device", name, "kind", kind, "owner", owner)
	return nil
}

// Lookup returns a registered device
func (m *Manager) Lookup(ctx context.Context, name string) (*Device, error) {
	return m.store.Get(ctx, name)
}

// Devices returns every registered device ordered by name
func (m *Manager) Devices(ctx context.Context) ([]*Device, error) {
	return m.store.List(ctx)
}

// Close releases the store
func (m *Manager) Close() error {
	return m.store.Close()
}

// MemoryStore keeps devices in memory
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]Device)}
}

func (s *MemoryStore) Save(_ context.Context, d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.Name] = *d
	return nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[name]
	if !ok {
		return nil, notFound(name)
	}
	return &d, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Device, 0, len(s.devices))
	for _, d := range s.devices {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[name]; !ok {
		return notFound(name)
	}
	delete(s.devices, name)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func notFound(name string) error {
	return mserror.New("device not found").
		WithCode(mserror.CodeNotFound).
		WithDetail("device", name)
}

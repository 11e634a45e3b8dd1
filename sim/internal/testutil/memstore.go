// Package testutil provides test doubles shared by the package tests.
package testutil

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/pasim/pasim/sim"
)

// MemStore is an in-memory sim.Store for tests that must not depend on the
// HDF5 cgo bindings. Volumes are deep-copied on save and load.
type MemStore struct {
	mu      sync.Mutex
	volumes map[string]*sim.Volume
	scalars map[string]float64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		volumes: make(map[string]*sim.Volume),
		scalars: make(map[string]float64),
	}
}

func key(stage sim.Stage, wavelengthNM int, field string) string {
	return fmt.Sprintf("%s/%s/wl_%d", stage, field, wavelengthNM)
}

// SaveVolumes implements sim.Store.
func (m *MemStore) SaveVolumes(stage sim.Stage, wavelengthNM int, fields map[string]*sim.Volume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for field, vol := range fields {
		m.volumes[key(stage, wavelengthNM, field)] = vol.Clone()
	}
	return nil
}

// LoadVolume implements sim.Store.
func (m *MemStore) LoadVolume(stage sim.Stage, wavelengthNM int, field string) (*sim.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vol, ok := m.volumes[key(stage, wavelengthNM, field)]
	if !ok {
		return nil, errors.Errorf("no volume %s", key(stage, wavelengthNM, field))
	}
	return vol.Clone(), nil
}

// SaveScalar implements sim.Store.
func (m *MemStore) SaveScalar(stage sim.Stage, wavelengthNM int, name string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scalars[key(stage, wavelengthNM, name)] = value
	return nil
}

// LoadScalar implements sim.Store.
func (m *MemStore) LoadScalar(stage sim.Stage, wavelengthNM int, name string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.scalars[key(stage, wavelengthNM, name)]
	if !ok {
		return 0, errors.Errorf("no scalar %s", key(stage, wavelengthNM, name))
	}
	return v, nil
}

// VolumeCount returns how many volumes have been saved.
func (m *MemStore) VolumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.volumes)
}

var _ sim.Store = (*MemStore)(nil)

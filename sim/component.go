package sim

import (
	"context"

	"github.com/pasim/pasim/sim/journal"
)

// Component is one stage of the simulation pipeline. Implementations live in
// this package (volume creation) and in sub-packages (forward model adapters,
// reconstruction, processing).
type Component interface {
	// Stage names the pipeline stage this component belongs to. It doubles
	// as the HDF5 group the component writes its outputs to.
	Stage() Stage
	// Name identifies the concrete implementation, e.g. "mcx" or "kwave".
	Name() string
	// Run executes the component. Blocking; must honor ctx cancellation.
	Run(ctx context.Context, rc *RunContext) error
}

// Store persists the data exchanged between pipeline stages. The single
// implementation is the HDF5 container in sim/hdf5store; the interface keeps
// the modelling code free of the cgo dependency and lets tests substitute an
// in-memory store.
type Store interface {
	// SaveVolumes writes the named volumes under stage and wavelength.
	SaveVolumes(stage Stage, wavelengthNM int, fields map[string]*Volume) error
	// LoadVolume reads a single named volume.
	LoadVolume(stage Stage, wavelengthNM int, field string) (*Volume, error)
	// SaveScalar writes a named scalar, e.g. the acoustic time step.
	SaveScalar(stage Stage, wavelengthNM int, name string, value float64) error
	// LoadScalar reads a named scalar.
	LoadScalar(stage Stage, wavelengthNM int, name string) (float64, error)
}

// RunContext carries everything a component may need during a run. One
// RunContext lives for exactly one simulation.
type RunContext struct {
	Settings *Settings
	Store    Store
	RNG      *PartitionedRNG
	Device   *Device
	Journal  *journal.Journal
}

// NewRunContext assembles a RunContext for the given settings. The RNG is
// derived from the master seed so that runs with equal settings are
// reproducible bit for bit.
func NewRunContext(settings *Settings, store Store) *RunContext {
	return &RunContext{
		Settings: settings,
		Store:    store,
		RNG:      NewPartitionedRNG(NewSimulationKey(settings.General.Seed)),
		Device:   NewDevice(settings),
		Journal:  journal.New(settings.General.RunID),
	}
}

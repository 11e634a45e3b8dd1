// Package sim provides the core photoacoustic simulation pipeline for pasim.
//
// # Reading Guide
//
// Start with these three files to understand the pipeline kernel:
//   - settings.go: Settings loaded from YAML, validation, grid derivation
//   - component.go: the Component interface and the RunContext passed between stages
//   - pipeline.go: ordered stage execution, journaling, failure semantics
//
// # Architecture
//
// The sim package defines interfaces and the in-repo modelling code; the
// adapters and infrastructure live in sub-packages:
//   - sim/pathmgr/: path_config.env resolution for external tool locations
//   - sim/hdf5store/: HDF5 container holding all intermediate and final data
//   - sim/optical/: Monte-Carlo photon transport adapter (external binary)
//   - sim/acoustic/: k-Wave adapter (external MATLAB toolbox)
//   - sim/recon/: delay-and-sum reconstruction
//   - sim/process/: noise and normalization post-processing
//   - sim/journal/: per-run stage journal
//
// A simulation is a fixed sequence of stages. Every stage reads its inputs
// from the HDF5 container and writes its outputs back, so external solvers
// and in-repo components compose through the same data contract.
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Component: one pipeline stage (volume creation, forward models, processing)
//   - Store: persistence of property volumes, fluence, time series and images
//   - Spectrum: wavelength-dependent optical absorption of a molecule
//   - Structure: a geometrical tissue structure filling voxels of the model
package sim

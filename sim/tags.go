package sim

// Stage identifies one step of the simulation pipeline. Stages always execute
// in the order given below; the pipeline rejects components wired out of order.
type Stage string

const (
	StageVolumeCreation  Stage = "simulation_properties"
	StageOpticalForward  Stage = "optical_forward_model"
	StageAcousticForward Stage = "acoustic_forward_model"
	StageReconstruction  Stage = "reconstruction"
	StageProcessing      Stage = "processing"
)

// stageRank fixes the pipeline order.
var stageRank = map[Stage]int{
	StageVolumeCreation:  0,
	StageOpticalForward:  1,
	StageAcousticForward: 2,
	StageReconstruction:  3,
	StageProcessing:      4,
}

// ValidStage returns true if s names a known pipeline stage.
func ValidStage(s Stage) bool {
	_, ok := stageRank[s]
	return ok
}

// Canonical field names of datasets inside the HDF5 container. Stage group
// and wavelength complete the dataset path, see sim/hdf5store.
const (
	FieldAbsorption      = "mua"
	FieldScattering      = "mus"
	FieldAnisotropy      = "g"
	FieldSpeedOfSound    = "sos"
	FieldDensity         = "density"
	FieldGruneisen       = "gamma"
	FieldOxygenation     = "oxy"
	FieldSegmentation    = "seg"
	FieldFluence         = "fluence"
	FieldInitialPressure = "initial_pressure"
	FieldTimeSeries      = "time_series_data"
	FieldReconstruction  = "reconstructed_data"
	FieldNoisyData       = "noisy_data"
)

// ScalarTimeStep is the acoustic solver's time step in seconds, stored as a
// scalar alongside the time series it belongs to.
const ScalarTimeStep = "dt"

// Spectrum names with special meaning: oxygenation is computed from the
// volume fractions of exactly these two chromophores.
const (
	SpectrumOxyhemoglobin   = "Oxyhemoglobin"
	SpectrumDeoxyhemoglobin = "Deoxyhemoglobin"
)

package sim

import (
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GeneralSettings groups run identity and the simulated volume extent.
type GeneralSettings struct {
	RunID        string  `yaml:"run_id"`         // generated when empty
	VolumeName   string  `yaml:"volume_name"`    // human readable label
	OutputDir    string  `yaml:"output_dir"`     // directory for the HDF5 container and journal
	SpacingMM    float64 `yaml:"spacing_mm"`     // isotropic voxel spacing
	DimXMM       float64 `yaml:"dim_x_mm"`       // volume extent along x
	DimYMM       float64 `yaml:"dim_y_mm"`       // volume extent along y
	DimZMM       float64 `yaml:"dim_z_mm"`       // volume extent along z (depth)
	Wavelengths  []int   `yaml:"wavelengths_nm"` // simulated illumination wavelengths
	Seed         int64   `yaml:"seed"`           // master seed for all randomized stages
	GPU          bool    `yaml:"gpu"`            // pass GPU acceleration flag to the optical solver
	OpticalUnits string  `yaml:"optical_units"`  // "cm" (default) property unit convention
}

// StructureSpec declares one tissue structure of the volume model. Structures
// are applied in order; later structures overwrite earlier voxels.
type StructureSpec struct {
	Name         string     `yaml:"name"`
	Type         string     `yaml:"type"`   // "background", "layer", "tube", "sphere"
	Tissue       string     `yaml:"tissue"` // tissue library key, see tissue.go
	Oxygenation  float64    `yaml:"oxygenation"`
	ZMinMM       float64    `yaml:"z_min_mm"`       // layer only
	ThicknessMM  float64    `yaml:"thickness_mm"`   // layer only
	DistortionMM float64    `yaml:"distortion_mm"`  // layer only, 0 disables
	CenterMM     [3]float64 `yaml:"center_mm"`      // tube and sphere
	RadiusMM     float64    `yaml:"radius_mm"`      // tube and sphere
	RadiusStdMM  float64    `yaml:"radius_std_mm"`  // tube and sphere, randomizes the radius, 0 = exact
}

// VolumeSettings configures the model-based volume creator.
type VolumeSettings struct {
	TemperatureCelsius float64         `yaml:"temperature_celsius"` // defaults to body temperature
	Structures         []StructureSpec `yaml:"structures"`
}

// OpticalSettings configures the Monte-Carlo forward model adapter.
type OpticalSettings struct {
	PhotonCount int64 `yaml:"photon_count"`
	Workers     int   `yaml:"workers"` // concurrent per-wavelength solver runs, min 1
}

// AcousticSettings configures the k-Wave forward model adapter.
type AcousticSettings struct {
	SamplingRateHz float64 `yaml:"sampling_rate_hz"`
	ScriptName     string  `yaml:"script_name"` // MATLAB entry function
}

// ReconstructionSettings configures delay-and-sum beamforming.
type ReconstructionSettings struct {
	SpeedOfSound float64 `yaml:"speed_of_sound"` // m/s, 0 = use mean of the sos property volume
}

// ProcessingSettings configures the post-processing stage.
type ProcessingSettings struct {
	NoiseStdDev float64 `yaml:"noise_std_dev"` // additive Gaussian, fraction of signal max, 0 disables
	Normalize   bool    `yaml:"normalize"`
}

// DeviceSettings describes the digital device twin.
type DeviceSettings struct {
	NumElements       int        `yaml:"num_elements"`
	PitchMM           float64    `yaml:"pitch_mm"`
	CenterFrequencyHz float64    `yaml:"center_frequency_hz"`
	IlluminationDirMM [3]float64 `yaml:"illumination_dir"`
}

// Settings is the complete configuration of one simulation run, loaded from a
// single YAML file and passed to every pipeline component via the RunContext.
type Settings struct {
	General        GeneralSettings        `yaml:"general"`
	Volume         VolumeSettings         `yaml:"volume_creation"`
	Optical        OpticalSettings        `yaml:"optical_model"`
	Acoustic       AcousticSettings       `yaml:"acoustic_model"`
	Reconstruction ReconstructionSettings `yaml:"reconstruction"`
	Processing     ProcessingSettings     `yaml:"processing"`
	Device         DeviceSettings         `yaml:"device"`
}

// BodyTemperatureCelsius is the default tissue temperature used for the
// Gruneisen parameter when the config does not override it.
const BodyTemperatureCelsius = 37.0

// LoadSettings reads and validates a YAML settings file, filling defaults.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read settings file %q", path)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parse settings file %q", path)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyDefaults fills zero-valued optional fields.
func (s *Settings) ApplyDefaults() {
	if s.General.RunID == "" {
		s.General.RunID = uuid.NewString()
	}
	if s.General.OutputDir == "" {
		s.General.OutputDir = "."
	}
	if len(s.General.Wavelengths) == 0 {
		s.General.Wavelengths = []int{800}
	}
	if s.Volume.TemperatureCelsius == 0 {
		s.Volume.TemperatureCelsius = BodyTemperatureCelsius
	}
	if s.Optical.PhotonCount == 0 {
		s.Optical.PhotonCount = 1e7
	}
	if s.Optical.Workers < 1 {
		s.Optical.Workers = 1
	}
	if s.Acoustic.SamplingRateHz == 0 {
		s.Acoustic.SamplingRateHz = 40e6
	}
	if s.Acoustic.ScriptName == "" {
		s.Acoustic.ScriptName = "simulate_2D"
	}
	if s.Device.NumElements == 0 {
		s.Device.NumElements = 128
	}
	if s.Device.PitchMM == 0 {
		s.Device.PitchMM = 0.3
	}
	if s.Device.CenterFrequencyHz == 0 {
		s.Device.CenterFrequencyHz = 5e6
	}
	if s.Device.IlluminationDirMM == [3]float64{} {
		s.Device.IlluminationDirMM = [3]float64{0, 0, 1}
	}
}

// Validate checks the settings as a whole and reports every violation, not
// just the first one.
func (s *Settings) Validate() error {
	var result *multierror.Error
	if s.General.SpacingMM <= 0 {
		result = multierror.Append(result, errors.New("general.spacing_mm must be > 0"))
	}
	if s.General.DimXMM <= 0 || s.General.DimYMM <= 0 || s.General.DimZMM <= 0 {
		result = multierror.Append(result, errors.New("general.dim_{x,y,z}_mm must all be > 0"))
	}
	for _, wl := range s.General.Wavelengths {
		if wl < 400 || wl > 1200 {
			result = multierror.Append(result, errors.Errorf("wavelength %d nm outside supported range [400, 1200]", wl))
		}
	}
	if len(s.Volume.Structures) == 0 {
		result = multierror.Append(result, errors.New("volume_creation.structures must not be empty"))
	}
	for i, spec := range s.Volume.Structures {
		switch spec.Type {
		case "background":
		case "layer":
			if spec.ThicknessMM <= 0 {
				result = multierror.Append(result, errors.Errorf("structure[%d] %q: layer thickness_mm must be > 0", i, spec.Name))
			}
		case "tube", "sphere":
			if spec.RadiusMM <= 0 {
				result = multierror.Append(result, errors.Errorf("structure[%d] %q: radius_mm must be > 0", i, spec.Name))
			}
		default:
			result = multierror.Append(result, errors.Errorf("structure[%d] %q: unknown type %q", i, spec.Name, spec.Type))
		}
		if spec.Oxygenation < 0 || spec.Oxygenation > 1 {
			result = multierror.Append(result, errors.Errorf("structure[%d] %q: oxygenation must be in [0, 1]", i, spec.Name))
		}
	}
	if s.Optical.PhotonCount < 0 {
		result = multierror.Append(result, errors.New("optical_model.photon_count must be >= 0"))
	}
	if s.Device.NumElements <= 0 {
		result = multierror.Append(result, errors.New("device.num_elements must be > 0"))
	}
	if s.Device.PitchMM <= 0 {
		result = multierror.Append(result, errors.New("device.pitch_mm must be > 0"))
	}
	if s.Processing.NoiseStdDev < 0 {
		result = multierror.Append(result, errors.New("processing.noise_std_dev must be >= 0"))
	}
	return result.ErrorOrNil()
}

// Grid describes the voxel discretization derived from the volume extent.
type Grid struct {
	NX, NY, NZ int
	SpacingMM  float64
}

// Grid derives the voxel grid from extents and spacing. Extents that are not
// an exact multiple of the spacing are rounded to the nearest voxel count.
func (s *Settings) Grid() Grid {
	round := func(mm float64) int {
		n := int(mm/s.General.SpacingMM + 0.5)
		if n < 1 {
			n = 1
		}
		return n
	}
	return Grid{
		NX:        round(s.General.DimXMM),
		NY:        round(s.General.DimYMM),
		NZ:        round(s.General.DimZMM),
		SpacingMM: s.General.SpacingMM,
	}
}

// VoxelCount returns the total number of voxels in the grid.
func (g Grid) VoxelCount() int {
	return g.NX * g.NY * g.NZ
}

package sim

import (
	"math"

	"github.com/pkg/errors"
)

// Molecule is one constituent of a molecular composition. Optical absorption
// comes from the spectrum; scattering follows the reduced-scattering power
// law mus'(λ) = ScatterAPerCM · (λ/500nm)^-ScatterB, converted to mus via the
// anisotropy factor.
type Molecule struct {
	Name           string
	Spectrum       Spectrum
	VolumeFraction float64
	ScatterAPerCM  float64 // reduced scattering at 500 nm, 1/cm
	ScatterB       float64 // scattering power
	Anisotropy     float64
	SpeedOfSound   float64 // m/s
	Density        float64 // kg/m^3
}

// ScatteringAt returns the scattering coefficient mus in 1/cm at the given
// wavelength.
func (m Molecule) ScatteringAt(wavelengthNM float64) float64 {
	musPrime := m.ScatterAPerCM * math.Pow(wavelengthNM/500.0, -m.ScatterB)
	if m.Anisotropy >= 1 {
		return musPrime
	}
	return musPrime / (1 - m.Anisotropy)
}

// MolecularComposition is a volume-fraction weighted mixture of molecules
// describing one tissue type.
type MolecularComposition struct {
	Name      string
	Molecules []Molecule
}

// Validate checks that the volume fractions form a partition of unity.
func (mc *MolecularComposition) Validate() error {
	var sum float64
	for _, m := range mc.Molecules {
		if m.VolumeFraction < 0 {
			return errors.Errorf("composition %q: molecule %q has negative volume fraction", mc.Name, m.Name)
		}
		sum += m.VolumeFraction
	}
	if math.Abs(sum-1) > 1e-6 {
		return errors.Errorf("composition %q: volume fractions sum to %g, want 1", mc.Name, sum)
	}
	return nil
}

// TissueProperties are the voxel properties of a composition at one
// wavelength. Optical coefficients are in 1/cm.
type TissueProperties struct {
	AbsorptionPerCM float64
	ScatteringPerCM float64
	Anisotropy      float64
	SpeedOfSound    float64
	Density         float64
	Gruneisen       float64
	Oxygenation     float64 // NaN when the composition carries no hemoglobin
}

// PropertiesAt mixes the molecular properties at the given wavelength.
// Acoustic properties are wavelength independent; the Gruneisen parameter is
// derived from the tissue temperature.
func (mc *MolecularComposition) PropertiesAt(wavelengthNM, temperatureCelsius float64) TissueProperties {
	p := TissueProperties{
		Gruneisen:   GruneisenFromTemperature(temperatureCelsius),
		Oxygenation: math.NaN(),
	}
	for _, m := range mc.Molecules {
		vf := m.VolumeFraction
		p.AbsorptionPerCM += vf * m.Spectrum.AbsorptionAt(wavelengthNM)
		p.ScatteringPerCM += vf * m.ScatteringAt(wavelengthNM)
		p.Anisotropy += vf * m.Anisotropy
		p.SpeedOfSound += vf * m.SpeedOfSound
		p.Density += vf * m.Density
	}
	if oxy, ok := CalculateOxygenation(mc.Molecules); ok {
		p.Oxygenation = oxy
	}
	return p
}

// Acoustic reference values for water-like soft tissue.
const (
	speedOfSoundWater  = 1480.0
	speedOfSoundTissue = 1540.0
	speedOfSoundBlood  = 1578.0
	densityWater       = 1000.0
	densityTissue      = 1060.0
	densityBlood       = 1050.0
)

// Blood returns a whole-blood composition with the given oxygen saturation.
func Blood(oxygenation float64) *MolecularComposition {
	return &MolecularComposition{
		Name: "blood",
		Molecules: []Molecule{
			{
				Name:           "oxyhemoglobin",
				Spectrum:       SpectrumLibraryOxyhemoglobin,
				VolumeFraction: oxygenation,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
			{
				Name:           "deoxyhemoglobin",
				Spectrum:       SpectrumLibraryDeoxyhemoglobin,
				VolumeFraction: 1 - oxygenation,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
		},
	}
}

// Muscle returns a generic muscle composition: mostly water with a small
// blood fraction and a fat background absorber.
func Muscle() *MolecularComposition {
	return &MolecularComposition{
		Name: "muscle",
		Molecules: []Molecule{
			{
				Name:           "water",
				Spectrum:       SpectrumLibraryWater,
				VolumeFraction: 0.64,
				ScatterAPerCM:  9.8, ScatterB: 2.82, Anisotropy: 0.9,
				SpeedOfSound: speedOfSoundWater, Density: densityWater,
			},
			{
				Name:           "oxyhemoglobin",
				Spectrum:       SpectrumLibraryOxyhemoglobin,
				VolumeFraction: 0.014,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
			{
				Name:           "deoxyhemoglobin",
				Spectrum:       SpectrumLibraryDeoxyhemoglobin,
				VolumeFraction: 0.006,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
			{
				Name:           "fat",
				Spectrum:       SpectrumLibraryFat,
				VolumeFraction: 0.34,
				ScatterAPerCM:  15.0, ScatterB: 1.0, Anisotropy: 0.9,
				SpeedOfSound: speedOfSoundTissue, Density: densityTissue,
			},
		},
	}
}

// Epidermis returns the melanin-dominated outer skin layer.
func Epidermis() *MolecularComposition {
	return &MolecularComposition{
		Name: "epidermis",
		Molecules: []Molecule{
			{
				Name:           "melanin",
				Spectrum:       SpectrumLibraryMelanin,
				VolumeFraction: 0.014,
				ScatterAPerCM:  66.7, ScatterB: 0.7, Anisotropy: 0.8,
				SpeedOfSound: speedOfSoundTissue, Density: densityTissue,
			},
			{
				Name:           "water",
				Spectrum:       SpectrumLibraryWater,
				VolumeFraction: 0.986,
				ScatterAPerCM:  46.0, ScatterB: 1.4, Anisotropy: 0.9,
				SpeedOfSound: speedOfSoundTissue, Density: densityTissue,
			},
		},
	}
}

// Dermis returns the vascularised skin layer underneath the epidermis.
func Dermis() *MolecularComposition {
	return &MolecularComposition{
		Name: "dermis",
		Molecules: []Molecule{
			{
				Name:           "oxyhemoglobin",
				Spectrum:       SpectrumLibraryOxyhemoglobin,
				VolumeFraction: 0.0039,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
			{
				Name:           "deoxyhemoglobin",
				Spectrum:       SpectrumLibraryDeoxyhemoglobin,
				VolumeFraction: 0.0011,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
			{
				Name:           "water",
				Spectrum:       SpectrumLibraryWater,
				VolumeFraction: 0.995,
				ScatterAPerCM:  40.0, ScatterB: 1.4, Anisotropy: 0.9,
				SpeedOfSound: speedOfSoundTissue, Density: densityTissue,
			},
		},
	}
}

// SoftTissue returns a generic background soft tissue composition.
func SoftTissue() *MolecularComposition {
	return &MolecularComposition{
		Name: "soft_tissue",
		Molecules: []Molecule{
			{
				Name:           "water",
				Spectrum:       SpectrumLibraryWater,
				VolumeFraction: 0.7,
				ScatterAPerCM:  12.0, ScatterB: 1.2, Anisotropy: 0.9,
				SpeedOfSound: speedOfSoundTissue, Density: densityTissue,
			},
			{
				Name:           "oxyhemoglobin",
				Spectrum:       SpectrumLibraryOxyhemoglobin,
				VolumeFraction: 0.008,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
			{
				Name:           "deoxyhemoglobin",
				Spectrum:       SpectrumLibraryDeoxyhemoglobin,
				VolumeFraction: 0.002,
				ScatterAPerCM:  22.0, ScatterB: 0.66, Anisotropy: 0.98,
				SpeedOfSound: speedOfSoundBlood, Density: densityBlood,
			},
			{
				Name:           "fat",
				Spectrum:       SpectrumLibraryFat,
				VolumeFraction: 0.29,
				ScatterAPerCM:  15.0, ScatterB: 1.0, Anisotropy: 0.9,
				SpeedOfSound: speedOfSoundTissue, Density: densityTissue,
			},
		},
	}
}

// Water returns a pure coupling-medium composition.
func Water() *MolecularComposition {
	return &MolecularComposition{
		Name: "water",
		Molecules: []Molecule{
			{
				Name:           "water",
				Spectrum:       SpectrumLibraryWater,
				VolumeFraction: 1.0,
				ScatterAPerCM:  0.1, ScatterB: 1.0, Anisotropy: 0.9,
				SpeedOfSound: speedOfSoundWater, Density: densityWater,
			},
		},
	}
}

// TissueByName maps tissue library keys used in settings files to their
// compositions. Blood honors the per-structure oxygenation setting.
func TissueByName(name string, oxygenation float64) (*MolecularComposition, error) {
	switch name {
	case "blood":
		return Blood(oxygenation), nil
	case "muscle":
		return Muscle(), nil
	case "epidermis":
		return Epidermis(), nil
	case "dermis":
		return Dermis(), nil
	case "soft_tissue":
		return SoftTissue(), nil
	case "water":
		return Water(), nil
	default:
		return nil, errors.Errorf("unknown tissue %q", name)
	}
}

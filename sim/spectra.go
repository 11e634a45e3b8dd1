package sim

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/interp"
)

// Spectrum models the wavelength-dependent optical absorption of a
// chromophore. Values are in 1/cm at unit volume fraction.
type Spectrum interface {
	Name() string
	// AbsorptionAt returns the absorption coefficient in 1/cm at the given
	// wavelength in nm. Wavelengths outside the tabulated range are clamped.
	AbsorptionAt(wavelengthNM float64) float64
}

// TabulatedSpectrum interpolates linearly between tabulated support points,
// matching how the published spectra are used in practice.
type TabulatedSpectrum struct {
	name   string
	minNM  float64
	maxNM  float64
	interp interp.PiecewiseLinear
}

// NewTabulatedSpectrum builds a spectrum from strictly increasing wavelengths
// and their absorption values.
func NewTabulatedSpectrum(name string, wavelengthsNM, valuesPerCM []float64) (*TabulatedSpectrum, error) {
	if len(wavelengthsNM) != len(valuesPerCM) {
		return nil, errors.Errorf("spectrum %q: %d wavelengths but %d values", name, len(wavelengthsNM), len(valuesPerCM))
	}
	if len(wavelengthsNM) < 2 {
		return nil, errors.Errorf("spectrum %q: need at least 2 support points", name)
	}
	s := &TabulatedSpectrum{
		name:  name,
		minNM: wavelengthsNM[0],
		maxNM: wavelengthsNM[len(wavelengthsNM)-1],
	}
	if err := s.interp.Fit(wavelengthsNM, valuesPerCM); err != nil {
		return nil, errors.Wrapf(err, "spectrum %q", name)
	}
	return s, nil
}

// Name implements Spectrum.
func (s *TabulatedSpectrum) Name() string { return s.name }

// AbsorptionAt implements Spectrum.
func (s *TabulatedSpectrum) AbsorptionAt(wavelengthNM float64) float64 {
	if wavelengthNM < s.minNM {
		wavelengthNM = s.minNM
	}
	if wavelengthNM > s.maxNM {
		wavelengthNM = s.maxNM
	}
	return s.interp.Predict(wavelengthNM)
}

// ConstantSpectrum is a wavelength-independent absorber.
type ConstantSpectrum struct {
	SpectrumName string
	ValuePerCM   float64
}

// Name implements Spectrum.
func (s ConstantSpectrum) Name() string { return s.SpectrumName }

// AbsorptionAt implements Spectrum.
func (s ConstantSpectrum) AbsorptionAt(float64) float64 { return s.ValuePerCM }

// Tabulated chromophore spectra, 450-1000 nm in 50 nm steps. Hemoglobin
// values are effective whole-blood absorption (150 g/l) after Prahl's
// compiled data; water after Hale & Querry; fat after van Veen.
var spectrumSupportNM = []float64{450, 500, 550, 600, 650, 700, 750, 800, 850, 900, 950, 1000}

var (
	oxyhemoglobinPerCM   = []float64{263, 112, 270, 16.6, 3.1, 2.0, 2.8, 4.4, 5.8, 6.5, 6.9, 6.0}
	deoxyhemoglobinPerCM = []float64{553, 112, 265, 53.3, 18.5, 9.1, 7.5, 4.6, 3.7, 3.9, 4.1, 3.5}
	waterPerCM           = []float64{0.00092, 0.00026, 0.00045, 0.0023, 0.0032, 0.0060, 0.026, 0.020, 0.043, 0.068, 0.38, 0.36}
	melaninPerCM         = []float64{1000, 695, 505, 380, 295, 235, 190, 155, 130, 110, 94, 81}
	fatPerCM             = []float64{0.011, 0.010, 0.009, 0.008, 0.007, 0.007, 0.009, 0.010, 0.012, 0.080, 0.100, 0.060}
)

func mustSpectrum(name string, values []float64) *TabulatedSpectrum {
	s, err := NewTabulatedSpectrum(name, spectrumSupportNM, values)
	if err != nil {
		panic(err) // tables above are package constants, a failure is a programming error
	}
	return s
}

// The chromophore spectra used by the tissue library.
var (
	SpectrumLibraryOxyhemoglobin   = mustSpectrum(SpectrumOxyhemoglobin, oxyhemoglobinPerCM)
	SpectrumLibraryDeoxyhemoglobin = mustSpectrum(SpectrumDeoxyhemoglobin, deoxyhemoglobinPerCM)
	SpectrumLibraryWater           = mustSpectrum("Water", waterPerCM)
	SpectrumLibraryMelanin         = mustSpectrum("Melanin", melaninPerCM)
	SpectrumLibraryFat             = mustSpectrum("Fat", fatPerCM)
)

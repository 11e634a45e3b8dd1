package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateOxygenation_MixedBlood(t *testing.T) {
	// GIVEN a composition with 30% oxy- and 70% deoxyhemoglobin
	molecules := []Molecule{
		{Spectrum: SpectrumLibraryOxyhemoglobin, VolumeFraction: 0.3},
		{Spectrum: SpectrumLibraryDeoxyhemoglobin, VolumeFraction: 0.7},
	}

	// WHEN oxygenation is computed
	oxy, ok := CalculateOxygenation(molecules)

	// THEN it equals the oxyhemoglobin share
	require.True(t, ok)
	assert.InDelta(t, 0.3, oxy, 1e-12)
}

func TestCalculateOxygenation_NoHemoglobin_NotComputable(t *testing.T) {
	molecules := []Molecule{{Spectrum: SpectrumLibraryWater, VolumeFraction: 1.0}}

	_, ok := CalculateOxygenation(molecules)

	assert.False(t, ok, "water-only composition has no oxygenation")
}

func TestCalculateOxygenation_ZeroTotalHemoglobin_NotComputable(t *testing.T) {
	// Hemoglobin present but with (approximately) zero total volume fraction.
	molecules := []Molecule{
		{Spectrum: SpectrumLibraryOxyhemoglobin, VolumeFraction: 0},
		{Spectrum: SpectrumLibraryDeoxyhemoglobin, VolumeFraction: 1e-12},
	}

	_, ok := CalculateOxygenation(molecules)

	assert.False(t, ok)
}

func TestGruneisenFromTemperature_BodyTemperature(t *testing.T) {
	// Wang & Wu heuristic at 37 degrees Celsius.
	assert.InDelta(t, 0.2004, GruneisenFromTemperature(37), 1e-9)
	assert.InDelta(t, 0.0043, GruneisenFromTemperature(0), 1e-12)
}

func TestRotation_IdentityAtZeroAngles(t *testing.T) {
	m := Rotation([3]float64{0, 0, 0})

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, m.At(i, j), 1e-12, "element (%d,%d)", i, j)
		}
	}
}

func TestRotationZ_QuarterTurn(t *testing.T) {
	// GIVEN a quarter turn around z
	m := RotationZ(math.Pi / 2)

	// THEN the x unit vector maps to y
	x := []float64{1, 0, 0}
	got := make([]float64, 3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			got[i] += m.At(i, j) * x[j]
		}
	}
	assert.InDelta(t, 0, got[0], 1e-12)
	assert.InDelta(t, 1, got[1], 1e-12)
	assert.InDelta(t, 0, got[2], 1e-12)
}

func TestRotationBetweenVectors_MapsAOntoB(t *testing.T) {
	a := [3]float64{1, 0, 0}
	b := [3]float64{0, 0, 1}

	m := RotationBetweenVectors(a, b)

	got := make([]float64, 3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			got[i] += m.At(i, j) * a[j]
		}
	}
	assert.InDelta(t, b[0], got[0], 1e-9)
	assert.InDelta(t, b[1], got[1], 1e-9)
	assert.InDelta(t, b[2], got[2], 1e-9)
}

func TestRotationBetweenVectors_Parallel_Identity(t *testing.T) {
	m := RotationBetweenVectors([3]float64{0, 0, 2}, [3]float64{0, 0, 5})

	assert.InDelta(t, 1, m.At(0, 0), 1e-12)
	assert.InDelta(t, 1, m.At(1, 1), 1e-12)
	assert.InDelta(t, 1, m.At(2, 2), 1e-12)
	assert.InDelta(t, 0, m.At(0, 1), 1e-12)
}

func TestMinMaxNormalize_SpansUnitInterval(t *testing.T) {
	data := []float64{-2, 0, 6}

	require.NoError(t, MinMaxNormalize(data))

	assert.InDelta(t, 0, data[0], 1e-12)
	assert.InDelta(t, 0.25, data[1], 1e-12)
	assert.InDelta(t, 1, data[2], 1e-12)
}

func TestMinMaxNormalize_RejectsEmptyAndConstant(t *testing.T) {
	assert.Error(t, MinMaxNormalize(nil))
	assert.Error(t, MinMaxNormalize([]float64{3, 3, 3}))
}

func TestPositiveNormal_AlwaysPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// Mean at zero forces frequent redraws.
	for i := 0; i < 1000; i++ {
		if v := PositiveNormal(rng, 0, 1); v <= 0 {
			t.Fatalf("draw %d: got non-positive sample %v", i, v)
		}
	}
}

func TestNewDistortion_ElevationsWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	d, err := NewDistortion(rng, 0, 10, 1.0, 0.1)
	require.NoError(t, err)

	for x := -1.0; x <= 11; x += 0.05 {
		e := d.ElevationAt(x)
		assert.LessOrEqual(t, e, 1e-9, "elevation above zero at x=%v", x)
		assert.GreaterOrEqual(t, e, -1.0-1e-9, "elevation below floor at x=%v", x)
	}
	assert.LessOrEqual(t, d.LowestElevationMM(), 0.0)
	assert.GreaterOrEqual(t, d.LowestElevationMM(), -1.0-1e-9)
}

func TestNewDistortion_DeterministicForSeed(t *testing.T) {
	d1, err := NewDistortion(rand.New(rand.NewSource(7)), 0, 10, 0.5, 0.1)
	require.NoError(t, err)
	d2, err := NewDistortion(rand.New(rand.NewSource(7)), 0, 10, 0.5, 0.1)
	require.NoError(t, err)

	for x := 0.0; x <= 10; x += 0.25 {
		assert.Equal(t, d1.ElevationAt(x), d2.ElevationAt(x), "x=%v", x)
	}
}

func TestNewDistortion_RejectsBadArguments(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := NewDistortion(rng, 5, 5, 1, 0.1)
	assert.Error(t, err, "empty range")

	_, err = NewDistortion(rng, 0, 10, 0, 0.1)
	assert.Error(t, err, "zero elevation")
}

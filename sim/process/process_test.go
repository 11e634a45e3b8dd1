package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/pasim/pasim/sim"
	"github.com/pasim/pasim/sim/internal/testutil"
)

func processSettings(noiseStd float64, normalize bool) *sim.Settings {
	s := &sim.Settings{}
	s.General.SpacingMM = 1.0
	s.General.DimXMM, s.General.DimYMM, s.General.DimZMM = 4, 1, 4
	s.General.Wavelengths = []int{800}
	s.Processing.NoiseStdDev = noiseStd
	s.Processing.Normalize = normalize
	s.ApplyDefaults()
	return s
}

func seedReconstruction(t *testing.T, store sim.Store) *sim.Volume {
	t.Helper()
	image := sim.NewVolume(4, 1, 4)
	for i := range image.Data {
		image.Data[i] = float64(i)
	}
	require.NoError(t, store.SaveVolumes(sim.StageReconstruction, 800, map[string]*sim.Volume{
		sim.FieldReconstruction: image,
	}))
	return image
}

func TestImageProcessing_NoiseChangesData(t *testing.T) {
	// GIVEN a reconstructed image and a noisy processing chain
	settings := processSettings(0.05, false)
	store := testutil.NewMemStore()
	image := seedReconstruction(t, store)
	rc := sim.NewRunContext(settings, store)

	// WHEN processing runs
	require.NoError(t, FromSettings(settings).Run(context.Background(), rc))

	// THEN the output differs from the input but stays close to it
	out, err := store.LoadVolume(sim.StageProcessing, 800, sim.FieldNoisyData)
	require.NoError(t, err)
	assert.NotEqual(t, image.Data, out.Data)
	maxStd := 0.05 * floats.Max(image.Data)
	for i := range out.Data {
		assert.InDelta(t, image.Data[i], out.Data[i], 10*maxStd)
	}
}

func TestImageProcessing_NoiseIsReproducible(t *testing.T) {
	// GIVEN two identical runs with the same seed
	run := func() []float64 {
		settings := processSettings(0.05, false)
		settings.General.Seed = 7
		store := testutil.NewMemStore()
		seedReconstruction(t, store)
		rc := sim.NewRunContext(settings, store)
		require.NoError(t, FromSettings(settings).Run(context.Background(), rc))
		out, err := store.LoadVolume(sim.StageProcessing, 800, sim.FieldNoisyData)
		require.NoError(t, err)
		return out.Data
	}

	// THEN they produce identical noise
	assert.Equal(t, run(), run())
}

func TestImageProcessing_Normalize(t *testing.T) {
	// GIVEN a noise-free chain with normalization
	settings := processSettings(0, true)
	store := testutil.NewMemStore()
	seedReconstruction(t, store)
	rc := sim.NewRunContext(settings, store)

	require.NoError(t, FromSettings(settings).Run(context.Background(), rc))

	// THEN the output spans exactly [0, 1]
	out, err := store.LoadVolume(sim.StageProcessing, 800, sim.FieldNoisyData)
	require.NoError(t, err)
	assert.Equal(t, 0.0, floats.Min(out.Data))
	assert.Equal(t, 1.0, floats.Max(out.Data))
}

func TestImageProcessing_PassThrough(t *testing.T) {
	// GIVEN no noise and no normalization
	settings := processSettings(0, false)
	store := testutil.NewMemStore()
	image := seedReconstruction(t, store)
	rc := sim.NewRunContext(settings, store)

	require.NoError(t, FromSettings(settings).Run(context.Background(), rc))

	out, err := store.LoadVolume(sim.StageProcessing, 800, sim.FieldNoisyData)
	require.NoError(t, err)
	assert.Equal(t, image.Data, out.Data)
}

func TestImageProcessing_MissingReconstruction(t *testing.T) {
	settings := processSettings(0.05, false)
	rc := sim.NewRunContext(settings, testutil.NewMemStore())

	err := FromSettings(settings).Run(context.Background(), rc)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconstruction")
}

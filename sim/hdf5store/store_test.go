package hdf5store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasim/pasim/sim"
)

func tempContainer(t *testing.T) *Container {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "run.hdf5"))
}

func TestContainer_VolumeRoundTrip(t *testing.T) {
	// GIVEN a volume with distinguishable content
	c := tempContainer(t)
	vol := sim.NewVolume(4, 3, 2)
	for i := range vol.Data {
		vol.Data[i] = float64(i) * 0.5
	}

	// WHEN saved and loaded
	require.NoError(t, c.SaveVolumes(sim.StageVolumeCreation, 800, map[string]*sim.Volume{
		sim.FieldAbsorption: vol,
	}))
	got, err := c.LoadVolume(sim.StageVolumeCreation, 800, sim.FieldAbsorption)
	require.NoError(t, err)

	// THEN shape and data survive
	assert.Equal(t, 4, got.NX)
	assert.Equal(t, 3, got.NY)
	assert.Equal(t, 2, got.NZ)
	assert.Equal(t, vol.Data, got.Data)
}

func TestContainer_MultipleWavelengthsAndStages(t *testing.T) {
	// GIVEN volumes at two wavelengths in two stages
	c := tempContainer(t)
	for _, wl := range []int{700, 800} {
		vol := sim.NewVolume(2, 2, 2)
		vol.Fill(float64(wl))
		require.NoError(t, c.SaveVolumes(sim.StageVolumeCreation, wl, map[string]*sim.Volume{
			sim.FieldAbsorption: vol,
		}))
		require.NoError(t, c.SaveVolumes(sim.StageOpticalForward, wl, map[string]*sim.Volume{
			sim.FieldFluence: vol,
		}))
	}

	// THEN each address holds its own data
	got, err := c.LoadVolume(sim.StageVolumeCreation, 700, sim.FieldAbsorption)
	require.NoError(t, err)
	assert.Equal(t, 700.0, got.Data[0])
	got, err = c.LoadVolume(sim.StageOpticalForward, 800, sim.FieldFluence)
	require.NoError(t, err)
	assert.Equal(t, 800.0, got.Data[0])
}

func TestContainer_ScalarRoundTrip(t *testing.T) {
	c := tempContainer(t)

	require.NoError(t, c.SaveScalar(sim.StageAcousticForward, 800, sim.ScalarTimeStep, 2.5e-8))
	got, err := c.LoadScalar(sim.StageAcousticForward, 800, sim.ScalarTimeStep)
	require.NoError(t, err)

	assert.Equal(t, 2.5e-8, got)
}

func TestContainer_LoadMissingDataset(t *testing.T) {
	c := tempContainer(t)
	vol := sim.NewVolume(1, 1, 1)
	require.NoError(t, c.SaveVolumes(sim.StageVolumeCreation, 800, map[string]*sim.Volume{
		sim.FieldAbsorption: vol,
	}))

	_, err := c.LoadVolume(sim.StageVolumeCreation, 700, sim.FieldAbsorption)
	assert.Error(t, err, "wavelength never written")

	_, err = c.LoadVolume(sim.StageProcessing, 800, sim.FieldNoisyData)
	assert.Error(t, err, "stage never written")
}

func TestContainer_LoadMissingFile(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "absent.hdf5"))
	_, err := c.LoadVolume(sim.StageVolumeCreation, 800, sim.FieldAbsorption)
	assert.Error(t, err)
}

func TestContainer_RejectsShapeMismatch(t *testing.T) {
	c := tempContainer(t)
	bad := &sim.Volume{NX: 2, NY: 2, NZ: 2, Data: make([]float64, 3)}

	err := c.SaveVolumes(sim.StageVolumeCreation, 800, map[string]*sim.Volume{
		sim.FieldAbsorption: bad,
	})
	assert.Error(t, err)
}

func TestDigest_DeterministicAndContentSensitive(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 2, 3}
	cSlice := []float64{1, 2, 4}

	assert.Equal(t, Digest(a), Digest(b))
	assert.NotEqual(t, Digest(a), Digest(cSlice))
}

func TestWriteFlatReadFlat_RoundTrip(t *testing.T) {
	// GIVEN a flat interchange file with a 2D dataset
	path := filepath.Join(t.TempDir(), "interchange.h5")
	data := []float64{1, 2, 3, 4, 5, 6}
	require.NoError(t, WriteFlat(path, map[string]Dataset{
		"sensor_data": {Dims: []uint{2, 3}, Data: data},
		"time_step":   {Dims: []uint{1}, Data: []float64{1e-8}},
	}))

	// WHEN reading it back
	sensor, err := ReadFlat(path, "sensor_data")
	require.NoError(t, err)
	step, err := ReadFlat(path, "time_step")
	require.NoError(t, err)

	// THEN dims and data survive
	assert.Equal(t, []uint{2, 3}, sensor.Dims)
	assert.Equal(t, data, sensor.Data)
	assert.Equal(t, 1e-8, step.Data[0])
}

func TestWriteFlat_RejectsDimMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.h5")
	err := WriteFlat(path, map[string]Dataset{
		"x": {Dims: []uint{2, 2}, Data: []float64{1}},
	})
	assert.Error(t, err)
}

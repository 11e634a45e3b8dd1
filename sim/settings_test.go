package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settingsYAML = `
general:
  volume_name: forearm
  spacing_mm: 0.2
  dim_x_mm: 20
  dim_y_mm: 10
  dim_z_mm: 15
  wavelengths_nm: [700, 800]
  seed: 42
volume_creation:
  structures:
    - name: background
      type: background
      tissue: soft_tissue
    - name: vessel
      type: tube
      tissue: blood
      oxygenation: 0.7
      center_mm: [10, 5, 8]
      radius_mm: 2
optical_model:
  photon_count: 500000
processing:
  normalize: true
`

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings_ParsesAndFillsDefaults(t *testing.T) {
	// GIVEN a minimal valid settings file
	path := writeSettingsFile(t, settingsYAML)

	// WHEN it is loaded
	s, err := LoadSettings(path)
	require.NoError(t, err)

	// THEN explicit values survive and defaults are filled
	assert.Equal(t, "forearm", s.General.VolumeName)
	assert.Equal(t, []int{700, 800}, s.General.Wavelengths)
	assert.Equal(t, int64(500000), s.Optical.PhotonCount)
	assert.NotEmpty(t, s.General.RunID, "run ID generated")
	assert.Equal(t, BodyTemperatureCelsius, s.Volume.TemperatureCelsius)
	assert.Equal(t, 128, s.Device.NumElements)
	assert.Equal(t, 1, s.Optical.Workers)
	assert.Equal(t, "simulate_2D", s.Acoustic.ScriptName)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadSettings_MalformedYAML(t *testing.T) {
	path := writeSettingsFile(t, "general: [not: a: mapping")
	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestSettings_Validate_AggregatesAllViolations(t *testing.T) {
	// GIVEN settings with several independent violations
	s := &Settings{}
	s.ApplyDefaults()
	s.General.SpacingMM = -1
	s.General.Wavelengths = []int{200}
	s.Volume.Structures = []StructureSpec{
		{Name: "v", Type: "tube", Tissue: "blood", RadiusMM: 0, Oxygenation: 2},
	}

	// WHEN validated
	err := s.Validate()
	require.Error(t, err)

	// THEN every violation is reported at once
	msg := err.Error()
	for _, want := range []string{"spacing_mm", "wavelength 200", "radius_mm", "oxygenation", "dim_"} {
		assert.True(t, strings.Contains(msg, want), "missing %q in: %s", want, msg)
	}
}

func TestSettings_Validate_RejectsBadDeviceGeometry(t *testing.T) {
	// GIVEN an otherwise valid config with a negative element count
	s := &Settings{}
	s.General.SpacingMM = 0.1
	s.General.DimXMM, s.General.DimYMM, s.General.DimZMM = 1, 1, 1
	s.Volume.Structures = []StructureSpec{{Name: "bg", Type: "background", Tissue: "water"}}
	s.ApplyDefaults()
	s.Device.NumElements = -5
	s.Device.PitchMM = -0.3

	// WHEN validated
	err := s.Validate()

	// THEN both device violations are reported; a negative element count must
	// never reach ElementPositionsMM, where it would be an allocation panic
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device.num_elements")
	assert.Contains(t, err.Error(), "device.pitch_mm")
}

func TestSettings_Grid_RoundsToNearestVoxel(t *testing.T) {
	s := &Settings{}
	s.General.SpacingMM = 0.3
	s.General.DimXMM = 1.0 // 3.33 voxels -> 3
	s.General.DimYMM = 0.2 // 0.67 voxels -> rounds to 1
	s.General.DimZMM = 0.9 // exact 3

	grid := s.Grid()

	assert.Equal(t, 3, grid.NX)
	assert.Equal(t, 1, grid.NY)
	assert.Equal(t, 3, grid.NZ)
	assert.Equal(t, 9, grid.VoxelCount())
}

func TestSettings_Validate_UnknownStructureType(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()
	s.General.SpacingMM = 0.1
	s.General.DimXMM, s.General.DimYMM, s.General.DimZMM = 1, 1, 1
	s.Volume.Structures = []StructureSpec{{Name: "x", Type: "torus", Tissue: "blood"}}

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "torus")
}

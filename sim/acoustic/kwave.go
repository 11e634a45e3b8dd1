// Package acoustic runs the external acoustic wave-propagation toolbox. The
// toolbox lives inside MATLAB: the adapter writes the initial pressure and
// the acoustic property maps into an interchange HDF5 file, starts MATLAB
// with a bootstrap command that calls the k-Wave entry script, and reads the
// simulated sensor time series back out of the result file.
package acoustic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pasim/pasim/sim"
	"github.com/pasim/pasim/sim/hdf5store"
	"github.com/pasim/pasim/sim/pathmgr"
)

// Interchange dataset names shared with the MATLAB side.
const (
	datasetInitialPressure = "p0"
	datasetSpeedOfSound    = "sos"
	datasetDensity         = "density"
	datasetSensorMask      = "sensor_mask"
	datasetSensorData      = "sensor_data"
	datasetTimeStep        = "time_step"
)

// DefaultResultWait bounds how long the adapter retries reading the solver's
// result file before giving up.
const DefaultResultWait = 30 * time.Second

// ErrResultUnreadable reports that the acoustic solver finished but its
// result file could not be read. The usual cause is a misconfigured binary
// path inside the MATLAB environment, in which case the solver exits cleanly
// without ever producing usable output.
type ErrResultUnreadable struct {
	Path  string
	Cause error
}

func (e *ErrResultUnreadable) Error() string {
	return fmt.Sprintf("acoustic result %q unreadable (check %s and %s in %s): %v",
		e.Path, pathmgr.KeyMatlabBinary, pathmgr.KeyAcousticScript, pathmgr.FileName, e.Cause)
}

func (e *ErrResultUnreadable) Unwrap() error { return e.Cause }

// Adapter invokes the acoustic forward model once per wavelength. Runs are
// sequential: MATLAB instances do not share well.
type Adapter struct {
	MatlabBinaryPath string
	ScriptDirectory  string
	ScriptName       string
	ResultWait       time.Duration
}

// New builds the adapter from resolved tool paths and run settings.
func New(paths *pathmgr.Config, settings *sim.Settings) *Adapter {
	return &Adapter{
		MatlabBinaryPath: paths.MatlabBinaryPath,
		ScriptDirectory:  paths.AcousticScriptDirectory,
		ScriptName:       settings.Acoustic.ScriptName,
		ResultWait:       DefaultResultWait,
	}
}

// Stage implements sim.Component.
func (a *Adapter) Stage() sim.Stage { return sim.StageAcousticForward }

// Name implements sim.Component.
func (a *Adapter) Name() string { return "kwave" }

// Run implements sim.Component.
func (a *Adapter) Run(ctx context.Context, rc *sim.RunContext) error {
	if a.MatlabBinaryPath == "" {
		return errors.Errorf("acoustic solver not configured, set %s", pathmgr.KeyMatlabBinary)
	}
	if a.ScriptDirectory == "" {
		return errors.Errorf("acoustic scripts not configured, set %s", pathmgr.KeyAcousticScript)
	}
	for _, wl := range rc.Settings.General.Wavelengths {
		if err := a.runWavelength(ctx, rc, wl); err != nil {
			return errors.Wrapf(err, "acoustic forward model at %d nm", wl)
		}
	}
	return nil
}

func (a *Adapter) runWavelength(ctx context.Context, rc *sim.RunContext, wavelengthNM int) error {
	p0, err := rc.Store.LoadVolume(sim.StageOpticalForward, wavelengthNM, sim.FieldInitialPressure)
	if err != nil {
		return errors.Wrap(err, "load initial pressure")
	}
	sos, err := rc.Store.LoadVolume(sim.StageVolumeCreation, wavelengthNM, sim.FieldSpeedOfSound)
	if err != nil {
		return errors.Wrap(err, "load speed of sound")
	}
	density, err := rc.Store.LoadVolume(sim.StageVolumeCreation, wavelengthNM, sim.FieldDensity)
	if err != nil {
		return errors.Wrap(err, "load density")
	}

	dir, err := os.MkdirTemp("", "pasim-acoustic-")
	if err != nil {
		return errors.Wrap(err, "create work dir")
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, uuid.NewString()+".h5")
	mask := SensorMask(rc.Settings, rc.Device, p0.NX, p0.NY, p0.NZ)
	sets := map[string]hdf5store.Dataset{
		datasetInitialPressure: asDataset(p0),
		datasetSpeedOfSound:    asDataset(sos),
		datasetDensity:         asDataset(density),
		datasetSensorMask:      asDataset(mask),
	}
	if err := hdf5store.WriteFlat(inputPath, sets); err != nil {
		return errors.Wrap(err, "write interchange file")
	}

	jsonPath := inputPath + ".json"
	settingsBlob, err := buildSettingsJSON(rc, wavelengthNM, inputPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(jsonPath, settingsBlob, 0o644); err != nil {
		return errors.Wrap(err, "write solver settings")
	}

	bootstrap := BuildBootstrap(a.ScriptDirectory, a.ScriptName, jsonPath, inputPath)
	logrus.Debugf("acoustic solver at %d nm: %s -r %q", wavelengthNM, a.MatlabBinaryPath, bootstrap)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.MatlabBinaryPath, "-nodisplay", "-nosplash", "-r", bootstrap)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "acoustic solver failed: %s", tail(stderr.String()))
	}

	resultPath := inputPath + "_output.h5"
	sensor, dt, err := a.readResult(ctx, resultPath)
	if err != nil {
		return err
	}

	series := seriesVolume(sensor)
	if err := rc.Store.SaveVolumes(sim.StageAcousticForward, wavelengthNM, map[string]*sim.Volume{
		sim.FieldTimeSeries: series,
	}); err != nil {
		return errors.Wrap(err, "save time series")
	}
	if err := rc.Store.SaveScalar(sim.StageAcousticForward, wavelengthNM, sim.ScalarTimeStep, dt); err != nil {
		return errors.Wrap(err, "save time step")
	}
	logrus.Infof("acoustic solver at %d nm: %d elements x %d samples, dt=%g s",
		wavelengthNM, series.NY, series.NX, dt)
	return nil
}

// readResult reads the solver output with bounded retries. Result files can
// lag the process exit (network filesystems, MATLAB flushing on teardown), so
// transient read failures are retried before the documented misconfiguration
// error is raised.
func (a *Adapter) readResult(ctx context.Context, path string) (hdf5store.Dataset, float64, error) {
	var sensor hdf5store.Dataset
	var dt float64

	op := func() error {
		var err error
		sensor, err = hdf5store.ReadFlat(path, datasetSensorData)
		if err != nil {
			return err
		}
		step, err := hdf5store.ReadFlat(path, datasetTimeStep)
		if err != nil {
			return err
		}
		if len(step.Data) == 0 {
			return errors.New("empty time_step dataset")
		}
		dt = step.Data[0]
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = a.resultWait()
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return sensor, 0, &ErrResultUnreadable{Path: path, Cause: err}
	}
	return sensor, dt, nil
}

// resultWait returns the configured retry budget. A zero budget would make
// backoff retry forever, so unset values fall back to the default.
func (a *Adapter) resultWait() time.Duration {
	if a.ResultWait <= 0 {
		return DefaultResultWait
	}
	return a.ResultWait
}

// BuildBootstrap assembles the MATLAB command string, mirroring how the
// toolbox expects to be called: add the script directory to the path, run the
// entry function on the settings and data files, exit.
func BuildBootstrap(scriptDir, script, jsonPath, dataPath string) string {
	return fmt.Sprintf("addpath('%s');%s('%s', '%s');exit;", scriptDir, script, jsonPath, dataPath)
}

// SensorMask rasterizes the detection geometry into a binary mask volume:
// ones at transducer element positions on the z=0 plane.
func SensorMask(settings *sim.Settings, device *sim.Device, nx, ny, nz int) *sim.Volume {
	mask := sim.NewVolume(nx, ny, nz)
	spacing := settings.General.SpacingMM
	yMid := ny / 2
	for _, pos := range device.Detection.ElementPositionsMM(settings.General.DimXMM) {
		x := int(pos[0] / spacing)
		if x < 0 || x >= nx {
			continue
		}
		mask.Set(x, yMid, 0, 1)
	}
	return mask
}

// acousticSettings is the JSON settings contract with the MATLAB entry script.
type acousticSettings struct {
	WavelengthNM   int     `json:"wavelength_nm"`
	SpacingMM      float64 `json:"spacing_mm"`
	SamplingRateHz float64 `json:"sampling_rate_hz"`
	NumElements    int     `json:"num_elements"`
	PitchMM        float64 `json:"pitch_mm"`
	CenterFreqHz   float64 `json:"center_frequency_hz"`
	DataFile       string  `json:"data_file"`
	ResultFile     string  `json:"result_file"`
}

func buildSettingsJSON(rc *sim.RunContext, wavelengthNM int, inputPath string) ([]byte, error) {
	blob, err := json.MarshalIndent(&acousticSettings{
		WavelengthNM:   wavelengthNM,
		SpacingMM:      rc.Settings.General.SpacingMM,
		SamplingRateHz: rc.Settings.Acoustic.SamplingRateHz,
		NumElements:    rc.Device.Detection.NumElements,
		PitchMM:        rc.Device.Detection.PitchMM,
		CenterFreqHz:   rc.Device.Detection.CenterFrequencyHz,
		DataFile:       inputPath,
		ResultFile:     inputPath + "_output.h5",
	}, "", "  ")
	return blob, errors.Wrap(err, "marshal acoustic settings")
}

// seriesVolume reshapes the sensor dataset into the store's volume
// convention: x = samples, y = elements.
func seriesVolume(sensor hdf5store.Dataset) *sim.Volume {
	elements, samples := 1, len(sensor.Data)
	if len(sensor.Dims) == 2 {
		elements = int(sensor.Dims[0])
		samples = int(sensor.Dims[1])
	}
	v := &sim.Volume{NX: samples, NY: elements, NZ: 1, Data: sensor.Data}
	return v
}

func asDataset(v *sim.Volume) hdf5store.Dataset {
	return hdf5store.Dataset{
		Dims: []uint{uint(v.NZ), uint(v.NY), uint(v.NX)},
		Data: v.Data,
	}
}

func tail(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

var _ sim.Component = (*Adapter)(nil)

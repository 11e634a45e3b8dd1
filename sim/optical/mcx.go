// Package optical runs the external Monte-Carlo photon transport solver and
// turns its fluence output into an initial pressure distribution.
//
// The solver is an mcx-style compiled binary: it takes a JSON configuration
// referencing a raw volume file, simulates photon transport, and writes a raw
// fluence volume plus a JSON run summary. The adapter owns the temp-file
// lifecycle around one solver invocation per wavelength.
package optical

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/pasim/pasim/sim"
	"github.com/pasim/pasim/sim/pathmgr"
)

// Adapter invokes the optical forward model binary once per wavelength.
type Adapter struct {
	BinaryPath  string
	PhotonCount int64
	UseGPU      bool
	Workers     int

	// storeMu serializes all container access: the HDF5 C library is not
	// thread-safe, and mixed read-only/read-write opens of the same file from
	// concurrent goroutines are rejected. Only the solver subprocesses run
	// outside the lock, concurrently up to Workers.
	storeMu sync.Mutex
}

// New builds the adapter from resolved tool paths and run settings.
func New(paths *pathmgr.Config, settings *sim.Settings) *Adapter {
	return &Adapter{
		BinaryPath:  paths.MCXBinaryPath,
		PhotonCount: settings.Optical.PhotonCount,
		UseGPU:      settings.General.GPU,
		Workers:     settings.Optical.Workers,
	}
}

// Stage implements sim.Component.
func (a *Adapter) Stage() sim.Stage { return sim.StageOpticalForward }

// Name implements sim.Component.
func (a *Adapter) Name() string { return "mcx" }

// Run implements sim.Component. Wavelengths fan out behind an errgroup
// bounded by Workers; the first failure cancels the remaining runs.
func (a *Adapter) Run(ctx context.Context, rc *sim.RunContext) error {
	if a.BinaryPath == "" {
		return errors.Errorf("optical solver binary not configured, set %s", pathmgr.KeyMCXBinary)
	}
	workers := a.Workers
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, wl := range rc.Settings.General.Wavelengths {
		wl := wl
		g.Go(func() error {
			return a.runWavelength(ctx, rc, wl)
		})
	}
	return g.Wait()
}

// loadProperties reads the four optical property volumes under the store
// lock, so concurrent wavelength runs never open the container in parallel.
func (a *Adapter) loadProperties(rc *sim.RunContext, wavelengthNM int) (mua, mus, g, gamma *sim.Volume, err error) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	if mua, err = rc.Store.LoadVolume(sim.StageVolumeCreation, wavelengthNM, sim.FieldAbsorption); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "load absorption")
	}
	if mus, err = rc.Store.LoadVolume(sim.StageVolumeCreation, wavelengthNM, sim.FieldScattering); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "load scattering")
	}
	if g, err = rc.Store.LoadVolume(sim.StageVolumeCreation, wavelengthNM, sim.FieldAnisotropy); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "load anisotropy")
	}
	if gamma, err = rc.Store.LoadVolume(sim.StageVolumeCreation, wavelengthNM, sim.FieldGruneisen); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "load gruneisen")
	}
	return mua, mus, g, gamma, nil
}

func (a *Adapter) runWavelength(ctx context.Context, rc *sim.RunContext, wavelengthNM int) error {
	mua, mus, g, gamma, err := a.loadProperties(rc, wavelengthNM)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "pasim-optical-")
	if err != nil {
		return errors.Wrap(err, "create work dir")
	}
	defer os.RemoveAll(dir)

	session := uuid.NewString()
	volumePath := filepath.Join(dir, "volume.bin")
	if err := writeVolumeFile(volumePath, mua, mus, g); err != nil {
		return err
	}
	cfgPath := filepath.Join(dir, "input.json")
	payload, err := BuildPayload(rc, session, volumePath, a.PhotonCount, mua.NX, mua.NY, mua.NZ)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, payload, 0o644); err != nil {
		return errors.Wrap(err, "write solver config")
	}

	args := BuildArgs(cfgPath, dir, session, a.UseGPU)
	logrus.Debugf("optical solver at %d nm: %s %v", wavelengthNM, a.BinaryPath, args)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.BinaryPath, args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "optical solver failed at %d nm: %s", wavelengthNM, tail(stderr.String()))
	}

	if summary, err := os.ReadFile(filepath.Join(dir, session+".json")); err == nil {
		runtimeMS := gjson.GetBytes(summary, "Summary.RuntimeMS")
		absorbed := gjson.GetBytes(summary, "Summary.AbsorbedFraction")
		logrus.Infof("optical solver at %d nm: runtime %.0f ms, absorbed fraction %.3f",
			wavelengthNM, runtimeMS.Float(), absorbed.Float())
	}

	fluence, err := readFluenceFile(filepath.Join(dir, session+"_fluence.bin"), mua.NX, mua.NY, mua.NZ)
	if err != nil {
		return errors.Wrapf(err, "fluence output at %d nm", wavelengthNM)
	}

	p0 := InitialPressure(gamma, mua, fluence)

	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	return rc.Store.SaveVolumes(sim.StageOpticalForward, wavelengthNM, map[string]*sim.Volume{
		sim.FieldFluence:         fluence,
		sim.FieldInitialPressure: p0,
	})
}

// BuildArgs assembles the solver command line.
func BuildArgs(cfgPath, outDir, session string, useGPU bool) []string {
	args := []string{"-f", cfgPath, "-s", session, "--outputdir", outDir, "-O", "F"}
	if useGPU {
		args = append(args, "-G", "1")
	}
	return args
}

// solverPayload is the JSON configuration handed to the solver.
type solverPayload struct {
	Session struct {
		ID      string `json:"ID"`
		Photons int64  `json:"Photons"`
	} `json:"Session"`
	Domain struct {
		Dim        [3]int  `json:"Dim"`
		SpacingMM  float64 `json:"LengthUnit"`
		VolumeFile string  `json:"VolumeFile"`
		// Media layout of VolumeFile: three little-endian float64 volumes
		// (mua, mus, g) back to back.
		MediaFormat string `json:"MediaFormat"`
	} `json:"Domain"`
	Optode struct {
		Source struct {
			Pos [3]float64 `json:"Pos"` // voxel coordinates
			Dir [3]float64 `json:"Dir"`
		} `json:"Source"`
	} `json:"Optode"`
}

// BuildPayload serializes the solver configuration for one run.
func BuildPayload(rc *sim.RunContext, session, volumePath string, photons int64, nx, ny, nz int) ([]byte, error) {
	var p solverPayload
	p.Session.ID = session
	p.Session.Photons = photons
	p.Domain.Dim = [3]int{nx, ny, nz}
	p.Domain.SpacingMM = rc.Settings.General.SpacingMM
	p.Domain.VolumeFile = volumePath
	p.Domain.MediaFormat = "muamusg_double"

	spacing := rc.Settings.General.SpacingMM
	pos := rc.Device.Illumination.PositionMM
	p.Optode.Source.Pos = [3]float64{pos[0] / spacing, pos[1] / spacing, pos[2] / spacing}
	p.Optode.Source.Dir = normalize(rc.Device.Illumination.DirectionMM)

	out, err := json.MarshalIndent(&p, "", "  ")
	return out, errors.Wrap(err, "marshal solver config")
}

// InitialPressure computes p0 = Gamma * mua * fluence voxel by voxel. Voxels
// where fluence or absorption is non-finite or negative contribute zero
// pressure; externally written containers carry no such guarantees.
func InitialPressure(gamma, mua, fluence *sim.Volume) *sim.Volume {
	p0 := sim.NewVolume(fluence.NX, fluence.NY, fluence.NZ)
	for i, phi := range fluence.Data {
		if math.IsNaN(phi) || math.IsInf(phi, 0) || phi < 0 {
			continue
		}
		absorption := mua.Data[i]
		if math.IsNaN(absorption) || math.IsInf(absorption, 0) || absorption < 0 {
			continue
		}
		p0.Data[i] = gamma.Data[i] * absorption * phi
	}
	return p0
}

func writeVolumeFile(path string, volumes ...*sim.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create volume file")
	}
	defer f.Close()
	for _, v := range volumes {
		if err := binary.Write(f, binary.LittleEndian, v.Data); err != nil {
			return errors.Wrap(err, "write volume file")
		}
	}
	return nil
}

func readFluenceFile(path string, nx, ny, nz int) (*sim.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open fluence file")
	}
	defer f.Close()
	vol := sim.NewVolume(nx, ny, nz)
	if err := binary.Read(f, binary.LittleEndian, vol.Data); err != nil {
		return nil, errors.Wrap(err, "read fluence file")
	}
	return vol, nil
}

func normalize(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return [3]float64{0, 0, 1}
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

func tail(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

var _ sim.Component = (*Adapter)(nil)

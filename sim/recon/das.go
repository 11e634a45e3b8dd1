// Package recon reconstructs images from simulated sensor time series.
package recon

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/pasim/pasim/sim"
)

// DelayAndSum is a textbook delay-and-sum beamformer over a linear array.
// It reconstructs the central x/z slice of the simulated volume.
type DelayAndSum struct {
	// SpeedOfSound in m/s used for delay computation. Zero means use the
	// mean of the simulated speed-of-sound property volume.
	SpeedOfSound float64
}

// Stage implements sim.Component.
func (d *DelayAndSum) Stage() sim.Stage { return sim.StageReconstruction }

// Name implements sim.Component.
func (d *DelayAndSum) Name() string { return "delay_and_sum" }

// Run implements sim.Component.
func (d *DelayAndSum) Run(ctx context.Context, rc *sim.RunContext) error {
	for _, wl := range rc.Settings.General.Wavelengths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.runWavelength(rc, wl); err != nil {
			return errors.Wrapf(err, "reconstruction at %d nm", wl)
		}
	}
	return nil
}

func (d *DelayAndSum) runWavelength(rc *sim.RunContext, wavelengthNM int) error {
	series, err := rc.Store.LoadVolume(sim.StageAcousticForward, wavelengthNM, sim.FieldTimeSeries)
	if err != nil {
		return errors.Wrap(err, "load time series")
	}
	dt, err := rc.Store.LoadScalar(sim.StageAcousticForward, wavelengthNM, sim.ScalarTimeStep)
	if err != nil {
		return errors.Wrap(err, "load time step")
	}
	if dt <= 0 {
		return errors.Errorf("non-positive time step %g", dt)
	}

	sos := d.SpeedOfSound
	if sos <= 0 {
		sosVol, err := rc.Store.LoadVolume(sim.StageVolumeCreation, wavelengthNM, sim.FieldSpeedOfSound)
		if err != nil {
			return errors.Wrap(err, "load speed of sound")
		}
		sos = floats.Sum(sosVol.Data) / float64(len(sosVol.Data))
	}

	image := Beamform(series, dt, sos, rc.Settings, rc.Device)
	logrus.Debugf("reconstructed %dx%d image at %d nm (sos=%.0f m/s)", image.NX, image.NZ, wavelengthNM, sos)
	return rc.Store.SaveVolumes(sim.StageReconstruction, wavelengthNM, map[string]*sim.Volume{
		sim.FieldReconstruction: image,
	})
}

// Beamform runs delay-and-sum over the series (x = samples, y = elements)
// and returns an (nx, 1, nz) image of the central slice.
func Beamform(series *sim.Volume, dt, speedOfSound float64, settings *sim.Settings, device *sim.Device) *sim.Volume {
	grid := settings.Grid()
	numSamples := series.NX
	elements := device.Detection.ElementPositionsMM(settings.General.DimXMM)

	image := sim.NewVolume(grid.NX, 1, grid.NZ)
	for z := 0; z < grid.NZ; z++ {
		zMM := (float64(z) + 0.5) * grid.SpacingMM
		for x := 0; x < grid.NX; x++ {
			xMM := (float64(x) + 0.5) * grid.SpacingMM
			var sum float64
			for e, pos := range elements {
				if e >= series.NY {
					break
				}
				dx := xMM - pos[0]
				distMM := math.Sqrt(dx*dx + zMM*zMM)
				// mm -> m, divide by c and dt to land on a sample index.
				s := distMM * 1e-3 / (speedOfSound * dt)
				s0 := int(s)
				if s0 < 0 || s0 >= numSamples-1 {
					continue
				}
				frac := s - float64(s0)
				v0 := series.At(s0, e, 0)
				v1 := series.At(s0+1, e, 0)
				sum += v0 + frac*(v1-v0)
			}
			image.Set(x, 0, z, sum/float64(len(elements)))
		}
	}
	return image
}

var _ sim.Component = (*DelayAndSum)(nil)

// Package process post-processes reconstructed images: additive Gaussian
// noise to mimic acquisition electronics, then optional min-max
// normalization.
package process

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/pasim/pasim/sim"
)

// ImageProcessing applies the configured processing chain to every
// reconstructed wavelength.
type ImageProcessing struct {
	NoiseStdDev float64 // fraction of the image maximum, 0 disables
	Normalize   bool
}

// FromSettings builds the component from run settings.
func FromSettings(settings *sim.Settings) *ImageProcessing {
	return &ImageProcessing{
		NoiseStdDev: settings.Processing.NoiseStdDev,
		Normalize:   settings.Processing.Normalize,
	}
}

// Stage implements sim.Component.
func (p *ImageProcessing) Stage() sim.Stage { return sim.StageProcessing }

// Name implements sim.Component.
func (p *ImageProcessing) Name() string { return "image_processing" }

// Run implements sim.Component. Noise draws from the noise RNG subsystem so
// that it is reproducible and independent of the volume-creation randomness.
func (p *ImageProcessing) Run(ctx context.Context, rc *sim.RunContext) error {
	rng := rc.RNG.ForSubsystem(sim.SubsystemNoise)
	for _, wl := range rc.Settings.General.Wavelengths {
		if err := ctx.Err(); err != nil {
			return err
		}
		image, err := rc.Store.LoadVolume(sim.StageReconstruction, wl, sim.FieldReconstruction)
		if err != nil {
			return errors.Wrapf(err, "load reconstruction at %d nm", wl)
		}

		out := image.Clone()
		if p.NoiseStdDev > 0 {
			std := p.NoiseStdDev * floats.Max(out.Data)
			for i := range out.Data {
				out.Data[i] += rng.NormFloat64() * std
			}
			logrus.Debugf("added noise (std=%g) at %d nm", std, wl)
		}
		if p.Normalize {
			if err := sim.MinMaxNormalize(out.Data); err != nil {
				return errors.Wrapf(err, "normalize at %d nm", wl)
			}
		}

		if err := rc.Store.SaveVolumes(sim.StageProcessing, wl, map[string]*sim.Volume{
			sim.FieldNoisyData: out,
		}); err != nil {
			return errors.Wrapf(err, "save processed image at %d nm", wl)
		}
	}
	return nil
}

var _ sim.Component = (*ImageProcessing)(nil)

package sim

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// CalculateOxygenation computes the blood oxygen saturation of a molecule
// list from the volume fractions of oxy- and deoxyhemoglobin. The second
// return value is false when the composition contains no hemoglobin or the
// total hemoglobin fraction is numerically zero.
func CalculateOxygenation(molecules []Molecule) (float64, bool) {
	var hb, hbO2 float64
	var seen bool
	for _, m := range molecules {
		switch m.Spectrum.Name() {
		case SpectrumDeoxyhemoglobin:
			hb = m.VolumeFraction
			seen = true
		case SpectrumOxyhemoglobin:
			hbO2 = m.VolumeFraction
			seen = true
		}
	}
	if !seen {
		return 0, false
	}
	// Division by (approximately) zero would produce nonsense saturations.
	if hb+hbO2 < 1e-10 {
		return 0, false
	}
	return hbO2 / (hb + hbO2), true
}

// GruneisenFromTemperature returns the dimensionless Gruneisen parameter of
// water-based tissue from an experimentally determined heuristic
// (Wang & Wu, Biomedical Optics: Principles and Imaging, 2012).
func GruneisenFromTemperature(temperatureCelsius float64) float64 {
	return 0.0043 + 0.0053*temperatureCelsius
}

// RotationX returns the rotation matrix around the x-axis with angle theta.
func RotationX(theta float64) *mat.Dense {
	s, c := math.Sin(theta), math.Cos(theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// RotationY returns the rotation matrix around the y-axis with angle theta.
func RotationY(theta float64) *mat.Dense {
	s, c := math.Sin(theta), math.Cos(theta)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// RotationZ returns the rotation matrix around the z-axis with angle theta.
func RotationZ(theta float64) *mat.Dense {
	s, c := math.Sin(theta), math.Cos(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// Rotation returns the combined rotation matrix Rx(ax) * Ry(ay) * Rz(az).
func Rotation(angles [3]float64) *mat.Dense {
	var tmp, out mat.Dense
	tmp.Mul(RotationX(angles[0]), RotationY(angles[1]))
	out.Mul(&tmp, RotationZ(angles[2]))
	return &out
}

// RotationBetweenVectors returns the rotation matrix that rotates vector a
// onto vector b (Rodrigues' formula). Parallel vectors yield the identity.
func RotationBetweenVectors(a, b [3]float64) *mat.Dense {
	an := normalize3(a)
	bn := normalize3(b)
	cross := [3]float64{
		an[1]*bn[2] - an[2]*bn[1],
		an[2]*bn[0] - an[0]*bn[2],
		an[0]*bn[1] - an[1]*bn[0],
	}
	s := math.Sqrt(cross[0]*cross[0] + cross[1]*cross[1] + cross[2]*cross[2])
	if s < 1e-10 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	dot := an[0]*bn[0] + an[1]*bn[1] + an[2]*bn[2]
	k := mat.NewDense(3, 3, []float64{
		0, -cross[2], cross[1],
		cross[2], 0, -cross[0],
		-cross[1], cross[0], 0,
	})
	var kk mat.Dense
	kk.Mul(k, k)
	kk.Scale((1-dot)/(s*s), &kk)
	out := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	out.Add(out, k)
	out.Add(out, &kk)
	return out
}

func normalize3(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return v
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

// MinMaxNormalize rescales data in place so that its values span [0, 1].
func MinMaxNormalize(data []float64) error {
	if len(data) == 0 {
		return errors.New("cannot normalize empty data")
	}
	lo := floats.Min(data)
	hi := floats.Max(data)
	if hi-lo < 1e-30 {
		return errors.New("cannot normalize constant data")
	}
	floats.AddConst(-lo, data)
	floats.Scale(1/(hi-lo), data)
	return nil
}

// PositiveNormal draws a strictly positive sample from N(mean, std) by
// redrawing non-positive samples.
func PositiveNormal(rng *rand.Rand, mean, std float64) float64 {
	for {
		v := rng.NormFloat64()*std + mean
		if v > 0 {
			return v
		}
	}
}

// Distortion describes a random elevation profile along the x-axis, used to
// deform otherwise flat tissue layers. Elevations are always in
// [-maxElevationMM, 0].
type Distortion struct {
	spline   interp.FritschButland
	xMinMM   float64
	xMaxMM   float64
	lowestMM float64
}

// NewDistortion fits a monotone cubic spline through randomly elevated knots
// between xMinMM and xMaxMM. maxElevationMM bounds how far the profile may
// dip below zero; spacingMM controls the sampling used to find the lowest
// point of the fitted profile.
func NewDistortion(rng *rand.Rand, xMinMM, xMaxMM, maxElevationMM, spacingMM float64) (*Distortion, error) {
	if xMaxMM <= xMinMM {
		return nil, errors.Errorf("invalid distortion range [%g, %g]", xMinMM, xMaxMM)
	}
	if maxElevationMM <= 0 {
		return nil, errors.Errorf("maximum elevation must be > 0, got %g", maxElevationMM)
	}
	floor := -maxElevationMM

	left := rng.Float64() * floor
	right := rng.Float64() * floor
	divisions := 1 + rng.Intn(4)

	locations := linspace(xMinMM, xMaxMM, divisions+1)
	knots := linspace(left, right, divisions+1)

	// Random per-knot perturbation, strongest in the middle of the range.
	half := float64(divisions) / 2
	for i := range knots {
		scaling := math.Sqrt(2 - math.Pow((float64(i)-half)/half, 2))
		knots[i] *= rng.NormFloat64()*0.2 + scaling
		if knots[i] < floor {
			knots[i] = floor
		}
		if knots[i] > 0 {
			knots[i] = 0
		}
	}
	// Anchor the highest knot at zero elevation.
	floats.AddConst(-floats.Max(knots), knots)

	d := &Distortion{xMinMM: xMinMM, xMaxMM: xMaxMM}
	if err := d.spline.Fit(locations, knots); err != nil {
		return nil, errors.Wrap(err, "fit distortion spline")
	}

	d.lowestMM = 0
	for x := xMinMM; x <= xMaxMM; x += spacingMM {
		if e := d.ElevationAt(x); e < d.lowestMM {
			d.lowestMM = e
		}
	}
	return d, nil
}

// ElevationAt evaluates the elevation profile at the given x position in mm.
// Positions outside the fitted range are clamped to its boundary.
func (d *Distortion) ElevationAt(xMM float64) float64 {
	if xMM < d.xMinMM {
		xMM = d.xMinMM
	}
	if xMM > d.xMaxMM {
		xMM = d.xMaxMM
	}
	return d.spline.Predict(xMM)
}

// LowestElevationMM returns the most negative elevation of the profile,
// sampled at the spacing passed to NewDistortion.
func (d *Distortion) LowestElevationMM() float64 {
	return d.lowestMM
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

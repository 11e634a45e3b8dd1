package sim

// IlluminationGeometry describes where and in which direction light enters
// the volume. The optical adapter translates this into the solver's source
// definition.
type IlluminationGeometry struct {
	PositionMM  [3]float64
	DirectionMM [3]float64 // unit-length preferred, normalized by the adapter
}

// DetectionGeometry is a linear transducer array on top of the volume
// (z = 0 plane), centered along x.
type DetectionGeometry struct {
	NumElements       int
	PitchMM           float64
	CenterFrequencyHz float64
	SamplingRateHz    float64
}

// ElementPositionsMM returns the (x, y, z) center positions of all array
// elements in mm, for a volume of the given x extent.
func (d DetectionGeometry) ElementPositionsMM(dimXMM float64) [][3]float64 {
	out := make([][3]float64, d.NumElements)
	apertureMM := float64(d.NumElements-1) * d.PitchMM
	x0 := (dimXMM - apertureMM) / 2
	for i := range out {
		out[i] = [3]float64{x0 + float64(i)*d.PitchMM, 0, 0}
	}
	return out
}

// Device is the digital twin of a photoacoustic imaging device: one
// illumination geometry plus one detection geometry.
type Device struct {
	Illumination IlluminationGeometry
	Detection    DetectionGeometry
}

// NewDevice derives the device twin from the settings. Illumination enters
// centered on the top surface, pointing into the volume.
func NewDevice(settings *Settings) *Device {
	return &Device{
		Illumination: IlluminationGeometry{
			PositionMM:  [3]float64{settings.General.DimXMM / 2, settings.General.DimYMM / 2, 0},
			DirectionMM: settings.Device.IlluminationDirMM,
		},
		Detection: DetectionGeometry{
			NumElements:       settings.Device.NumElements,
			PitchMM:           settings.Device.PitchMM,
			CenterFrequencyHz: settings.Device.CenterFrequencyHz,
			SamplingRateHz:    settings.Acoustic.SamplingRateHz,
		},
	}
}

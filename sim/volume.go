package sim

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Volume is a dense 3D scalar field in x-fastest layout.
type Volume struct {
	NX, NY, NZ int
	Data       []float64
}

// NewVolume allocates a zeroed volume of the given shape.
func NewVolume(nx, ny, nz int) *Volume {
	return &Volume{NX: nx, NY: ny, NZ: nz, Data: make([]float64, nx*ny*nz)}
}

// Index returns the flat index of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return x + v.NX*(y+v.NY*z)
}

// At returns the value of voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set assigns the value of voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Fill assigns value to every voxel.
func (v *Volume) Fill(value float64) {
	for i := range v.Data {
		v.Data[i] = value
	}
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	out := &Volume{NX: v.NX, NY: v.NY, NZ: v.NZ, Data: make([]float64, len(v.Data))}
	copy(out.Data, v.Data)
	return out
}

// Structure is a geometrical tissue structure of the volume model. Positions
// are voxel centers in mm.
type Structure interface {
	Name() string
	Contains(xMM, yMM, zMM float64) bool
	Composition() *MolecularComposition
}

// BackgroundStructure fills the entire volume.
type BackgroundStructure struct {
	StructureName string
	Tissue        *MolecularComposition
}

func (s *BackgroundStructure) Name() string                       { return s.StructureName }
func (s *BackgroundStructure) Contains(_, _, _ float64) bool      { return true }
func (s *BackgroundStructure) Composition() *MolecularComposition { return s.Tissue }

// LayerStructure is a horizontal slab between ZMinMM and ZMinMM+ThicknessMM,
// optionally deformed along x by a random distortion profile.
type LayerStructure struct {
	StructureName string
	Tissue        *MolecularComposition
	ZMinMM        float64
	ThicknessMM   float64
	Distortion    *Distortion // nil = flat layer
}

func (s *LayerStructure) Name() string { return s.StructureName }

func (s *LayerStructure) Contains(xMM, _, zMM float64) bool {
	var elevation float64
	if s.Distortion != nil {
		elevation = s.Distortion.ElevationAt(xMM)
	}
	top := s.ZMinMM + elevation
	return zMM >= top && zMM < top+s.ThicknessMM
}

func (s *LayerStructure) Composition() *MolecularComposition { return s.Tissue }

// TubeStructure is an infinite cylinder along the y-axis.
type TubeStructure struct {
	StructureName string
	Tissue        *MolecularComposition
	CenterMM      [3]float64 // y component ignored
	RadiusMM      float64
}

func (s *TubeStructure) Name() string { return s.StructureName }

func (s *TubeStructure) Contains(xMM, _, zMM float64) bool {
	dx := xMM - s.CenterMM[0]
	dz := zMM - s.CenterMM[2]
	return dx*dx+dz*dz <= s.RadiusMM*s.RadiusMM
}

func (s *TubeStructure) Composition() *MolecularComposition { return s.Tissue }

// SphereStructure is a ball around CenterMM.
type SphereStructure struct {
	StructureName string
	Tissue        *MolecularComposition
	CenterMM      [3]float64
	RadiusMM      float64
}

func (s *SphereStructure) Name() string { return s.StructureName }

func (s *SphereStructure) Contains(xMM, yMM, zMM float64) bool {
	dx := xMM - s.CenterMM[0]
	dy := yMM - s.CenterMM[1]
	dz := zMM - s.CenterMM[2]
	return dx*dx+dy*dy+dz*dz <= s.RadiusMM*s.RadiusMM
}

func (s *SphereStructure) Composition() *MolecularComposition { return s.Tissue }

// TissueModel is an ordered list of structures. Later structures overwrite
// earlier ones where they overlap.
type TissueModel struct {
	Structures []Structure
}

// BuildTissueModel converts structure specs from the settings file into a
// tissue model. Layer distortions draw from the distortion RNG subsystem, so
// the model is deterministic for a fixed master seed.
func BuildTissueModel(settings *Settings, rng *PartitionedRNG) (*TissueModel, error) {
	model := &TissueModel{}
	for i, spec := range settings.Volume.Structures {
		tissue, err := TissueByName(spec.Tissue, spec.Oxygenation)
		if err != nil {
			return nil, errors.Wrapf(err, "structure[%d] %q", i, spec.Name)
		}
		if err := tissue.Validate(); err != nil {
			return nil, errors.Wrapf(err, "structure[%d] %q", i, spec.Name)
		}
		switch spec.Type {
		case "background":
			model.Structures = append(model.Structures, &BackgroundStructure{
				StructureName: spec.Name, Tissue: tissue,
			})
		case "layer":
			layer := &LayerStructure{
				StructureName: spec.Name,
				Tissue:        tissue,
				ZMinMM:        spec.ZMinMM,
				ThicknessMM:   spec.ThicknessMM,
			}
			if spec.DistortionMM > 0 {
				d, err := NewDistortion(rng.ForSubsystem(SubsystemDistortion),
					0, settings.General.DimXMM, spec.DistortionMM, settings.General.SpacingMM)
				if err != nil {
					return nil, errors.Wrapf(err, "structure[%d] %q", i, spec.Name)
				}
				layer.Distortion = d
			}
			model.Structures = append(model.Structures, layer)
		case "tube":
			model.Structures = append(model.Structures, &TubeStructure{
				StructureName: spec.Name, Tissue: tissue,
				CenterMM: spec.CenterMM, RadiusMM: structureRadius(spec, rng),
			})
		case "sphere":
			model.Structures = append(model.Structures, &SphereStructure{
				StructureName: spec.Name, Tissue: tissue,
				CenterMM: spec.CenterMM, RadiusMM: structureRadius(spec, rng),
			})
		default:
			return nil, errors.Errorf("structure[%d] %q: unknown type %q", i, spec.Name, spec.Type)
		}
	}
	if len(model.Structures) == 0 {
		return nil, errors.New("tissue model has no structures")
	}
	return model, nil
}

// structureRadius draws a randomized radius from the volume RNG subsystem
// when the spec asks for it.
func structureRadius(spec StructureSpec, rng *PartitionedRNG) float64 {
	if spec.RadiusStdMM <= 0 {
		return spec.RadiusMM
	}
	return PositiveNormal(rng.ForSubsystem(SubsystemVolume), spec.RadiusMM, spec.RadiusStdMM)
}

// VolumeCreator is the first pipeline stage: it rasterizes the tissue model
// into per-wavelength optical and acoustic property volumes.
type VolumeCreator struct {
	Model *TissueModel // built lazily from settings when nil
}

// Stage implements Component.
func (vc *VolumeCreator) Stage() Stage { return StageVolumeCreation }

// Name implements Component.
func (vc *VolumeCreator) Name() string { return "model_based_volume_creator" }

// Run implements Component.
func (vc *VolumeCreator) Run(ctx context.Context, rc *RunContext) error {
	if vc.Model == nil {
		model, err := BuildTissueModel(rc.Settings, rc.RNG)
		if err != nil {
			return err
		}
		vc.Model = model
	}
	grid := rc.Settings.Grid()
	logrus.Infof("creating %dx%dx%d property volumes for %d structures",
		grid.NX, grid.NY, grid.NZ, len(vc.Model.Structures))

	// Structure assignment is wavelength independent, compute it once.
	assignment := make([]int, grid.VoxelCount())
	seg := NewVolume(grid.NX, grid.NY, grid.NZ)
	idx := 0
	for z := 0; z < grid.NZ; z++ {
		for y := 0; y < grid.NY; y++ {
			for x := 0; x < grid.NX; x++ {
				xMM := (float64(x) + 0.5) * grid.SpacingMM
				yMM := (float64(y) + 0.5) * grid.SpacingMM
				zMM := (float64(z) + 0.5) * grid.SpacingMM
				owner := -1
				for si, structure := range vc.Model.Structures {
					if structure.Contains(xMM, yMM, zMM) {
						owner = si
					}
				}
				if owner < 0 {
					return errors.Errorf("voxel (%d, %d, %d) not covered by any structure; add a background structure", x, y, z)
				}
				assignment[idx] = owner
				seg.Data[idx] = float64(owner)
				idx++
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	for _, wl := range rc.Settings.General.Wavelengths {
		props := make([]TissueProperties, len(vc.Model.Structures))
		for si, structure := range vc.Model.Structures {
			props[si] = structure.Composition().PropertiesAt(float64(wl), rc.Settings.Volume.TemperatureCelsius)
		}
		fields := map[string]*Volume{
			FieldAbsorption:   NewVolume(grid.NX, grid.NY, grid.NZ),
			FieldScattering:   NewVolume(grid.NX, grid.NY, grid.NZ),
			FieldAnisotropy:   NewVolume(grid.NX, grid.NY, grid.NZ),
			FieldSpeedOfSound: NewVolume(grid.NX, grid.NY, grid.NZ),
			FieldDensity:      NewVolume(grid.NX, grid.NY, grid.NZ),
			FieldGruneisen:    NewVolume(grid.NX, grid.NY, grid.NZ),
			FieldOxygenation:  NewVolume(grid.NX, grid.NY, grid.NZ),
		}
		for i, owner := range assignment {
			p := props[owner]
			fields[FieldAbsorption].Data[i] = p.AbsorptionPerCM
			fields[FieldScattering].Data[i] = p.ScatteringPerCM
			fields[FieldAnisotropy].Data[i] = p.Anisotropy
			fields[FieldSpeedOfSound].Data[i] = p.SpeedOfSound
			fields[FieldDensity].Data[i] = p.Density
			fields[FieldGruneisen].Data[i] = p.Gruneisen
			if !math.IsNaN(p.Oxygenation) {
				fields[FieldOxygenation].Data[i] = p.Oxygenation
			}
		}
		fields[FieldSegmentation] = seg
		if err := rc.Store.SaveVolumes(StageVolumeCreation, wl, fields); err != nil {
			return errors.Wrapf(err, "save property volumes at %d nm", wl)
		}
		logrus.Debugf("property volumes at %d nm written", wl)
	}
	return nil
}

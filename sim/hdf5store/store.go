// Package hdf5store persists all pipeline data in a single HDF5 container
// per simulation run. The dataset layout is
//
//	simulations/<stage>/<field>/wl_<wavelength>
//
// so external tools (and the acoustic toolbox in particular) can address
// intermediate results without knowing anything about this codebase. Every
// volume dataset carries an xxh64 content digest attribute that is verified
// on load, turning silently truncated files into explicit errors.
package hdf5store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/hdf5"

	"github.com/pasim/pasim/sim"
)

const (
	rootGroup  = "simulations"
	digestAttr = "xxh64"
)

// Container is an HDF5-backed implementation of sim.Store. It opens the file
// per operation, so a Container value itself holds no OS resources.
type Container struct {
	Path string
}

// New creates a Container for the given file path. The file is created on
// first write.
func New(path string) *Container {
	return &Container{Path: path}
}

// datasetName builds the wavelength-specific leaf name of a dataset.
func datasetName(wavelengthNM int) string {
	return fmt.Sprintf("wl_%d", wavelengthNM)
}

// SaveVolumes implements sim.Store.
func (c *Container) SaveVolumes(stage sim.Stage, wavelengthNM int, fields map[string]*sim.Volume) error {
	f, err := c.openWritable()
	if err != nil {
		return err
	}
	defer f.Close()

	for field, vol := range fields {
		group, err := ensureGroups(f, rootGroup, string(stage), field)
		if err != nil {
			return err
		}
		err = writeVolume(group, datasetName(wavelengthNM), vol)
		group.Close()
		if err != nil {
			return errors.Wrapf(err, "write %s/%s/%s", stage, field, datasetName(wavelengthNM))
		}
	}
	return nil
}

// LoadVolume implements sim.Store.
func (c *Container) LoadVolume(stage sim.Stage, wavelengthNM int, field string) (*sim.Volume, error) {
	f, err := hdf5.OpenFile(c.Path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.Wrapf(err, "open container %q", c.Path)
	}
	defer f.Close()

	path := fmt.Sprintf("%s/%s/%s/%s", rootGroup, stage, field, datasetName(wavelengthNM))
	dset, err := f.OpenDataset(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %q", path)
	}
	defer dset.Close()
	return readVolume(dset, path)
}

// SaveScalar implements sim.Store.
func (c *Container) SaveScalar(stage sim.Stage, wavelengthNM int, name string, value float64) error {
	f, err := c.openWritable()
	if err != nil {
		return err
	}
	defer f.Close()

	group, err := ensureGroups(f, rootGroup, string(stage), name)
	if err != nil {
		return err
	}
	defer group.Close()

	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return errors.Wrap(err, "create scalar dataspace")
	}
	defer space.Close()

	dset, err := group.CreateDataset(datasetName(wavelengthNM), hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return errors.Wrapf(err, "create scalar %s/%s", name, datasetName(wavelengthNM))
	}
	defer dset.Close()

	data := []float64{value}
	return errors.Wrap(dset.Write(&data), "write scalar")
}

// LoadScalar implements sim.Store.
func (c *Container) LoadScalar(stage sim.Stage, wavelengthNM int, name string) (float64, error) {
	f, err := hdf5.OpenFile(c.Path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return 0, errors.Wrapf(err, "open container %q", c.Path)
	}
	defer f.Close()

	path := fmt.Sprintf("%s/%s/%s/%s", rootGroup, stage, name, datasetName(wavelengthNM))
	dset, err := f.OpenDataset(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open scalar %q", path)
	}
	defer dset.Close()

	data := make([]float64, 1)
	if err := dset.Read(&data); err != nil {
		return 0, errors.Wrapf(err, "read scalar %q", path)
	}
	return data[0], nil
}

func (c *Container) openWritable() (*hdf5.File, error) {
	if _, err := os.Stat(c.Path); err == nil {
		f, err := hdf5.OpenFile(c.Path, hdf5.F_ACC_RDWR)
		return f, errors.Wrapf(err, "open container %q", c.Path)
	}
	f, err := hdf5.CreateFile(c.Path, hdf5.F_ACC_TRUNC)
	return f, errors.Wrapf(err, "create container %q", c.Path)
}

// commonFG is the subset of hdf5.File and hdf5.Group used for group creation.
type commonFG interface {
	CreateGroup(name string) (*hdf5.Group, error)
	OpenGroup(name string) (*hdf5.Group, error)
}

// ensureGroups opens or creates the nested group path and returns the leaf.
// Intermediate groups are closed before returning.
func ensureGroups(root commonFG, names ...string) (*hdf5.Group, error) {
	var current commonFG = root
	var currentGroup *hdf5.Group
	for _, name := range names {
		g, err := current.OpenGroup(name)
		if err != nil {
			g, err = current.CreateGroup(name)
			if err != nil {
				return nil, errors.Wrapf(err, "create group %q", name)
			}
		}
		if currentGroup != nil {
			currentGroup.Close()
		}
		currentGroup = g
		current = g
	}
	return currentGroup, nil
}

func writeVolume(group *hdf5.Group, name string, vol *sim.Volume) error {
	if len(vol.Data) != vol.NX*vol.NY*vol.NZ {
		return errors.Errorf("volume data length %d does not match shape %dx%dx%d",
			len(vol.Data), vol.NX, vol.NY, vol.NZ)
	}
	// Row-major with x fastest: dims are (z, y, x).
	dims := []uint{uint(vol.NZ), uint(vol.NY), uint(vol.NX)}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return errors.Wrap(err, "create dataspace")
	}
	defer space.Close()

	dset, err := group.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return errors.Wrap(err, "create dataset")
	}
	defer dset.Close()

	if err := dset.Write(&vol.Data); err != nil {
		return errors.Wrap(err, "write dataset")
	}

	attrSpace, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return errors.Wrap(err, "create digest dataspace")
	}
	defer attrSpace.Close()
	attr, err := dset.CreateAttribute(digestAttr, hdf5.T_NATIVE_UINT64, attrSpace)
	if err != nil {
		return errors.Wrap(err, "create digest attribute")
	}
	defer attr.Close()
	digest := Digest(vol.Data)
	return errors.Wrap(attr.Write(&digest, hdf5.T_NATIVE_UINT64), "write digest attribute")
}

func readVolume(dset *hdf5.Dataset, path string) (*sim.Volume, error) {
	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %q extent", path)
	}
	if len(dims) != 3 {
		return nil, errors.Errorf("dataset %q has rank %d, want 3", path, len(dims))
	}
	vol := sim.NewVolume(int(dims[2]), int(dims[1]), int(dims[0]))
	if err := dset.Read(&vol.Data); err != nil {
		return nil, errors.Wrapf(err, "read dataset %q", path)
	}

	attr, err := dset.OpenAttribute(digestAttr)
	if err != nil {
		// Containers written by external tools carry no digest; accept them.
		return vol, nil
	}
	defer attr.Close()
	var want uint64
	if err := attr.Read(&want, hdf5.T_NATIVE_UINT64); err != nil {
		return nil, errors.Wrapf(err, "read digest of %q", path)
	}
	if got := Digest(vol.Data); got != want {
		return nil, errors.Errorf("dataset %q digest mismatch: got %x, want %x", path, got, want)
	}
	return vol, nil
}

// Digest computes the xxh64 content digest of a float64 slice, as stored in
// the container's digest attributes.
func Digest(data []float64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		d.Write(buf[:])
	}
	return d.Sum64()
}

var _ sim.Store = (*Container)(nil)

package hdf5store

import (
	"github.com/pkg/errors"
	"gonum.org/v1/hdf5"
)

// Dataset is a raw dataset for flat interchange files, as consumed and
// produced by the external solvers (which know nothing about the container
// layout or digest attributes).
type Dataset struct {
	Dims []uint
	Data []float64
}

// WriteFlat writes root-level datasets into a fresh HDF5 file at path,
// replacing any existing file.
func WriteFlat(path string, sets map[string]Dataset) error {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return errors.Wrapf(err, "create %q", path)
	}
	defer f.Close()

	for name, set := range sets {
		if err := writeFlatDataset(f, name, set); err != nil {
			return errors.Wrapf(err, "write dataset %q to %q", name, path)
		}
	}
	return nil
}

func writeFlatDataset(f *hdf5.File, name string, set Dataset) error {
	want := uint(1)
	for _, d := range set.Dims {
		want *= d
	}
	if uint(len(set.Data)) != want {
		return errors.Errorf("data length %d does not match dims %v", len(set.Data), set.Dims)
	}
	space, err := hdf5.CreateSimpleDataspace(set.Dims, nil)
	if err != nil {
		return errors.Wrap(err, "create dataspace")
	}
	defer space.Close()

	dset, err := f.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return errors.Wrap(err, "create dataset")
	}
	defer dset.Close()
	return errors.Wrap(dset.Write(&set.Data), "write data")
}

// ReadFlat reads one root-level dataset from an HDF5 file written by an
// external tool.
func ReadFlat(path, name string) (Dataset, error) {
	var out Dataset
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return out, errors.Wrapf(err, "open %q", path)
	}
	defer f.Close()

	dset, err := f.OpenDataset(name)
	if err != nil {
		return out, errors.Wrapf(err, "open dataset %q in %q", name, path)
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return out, errors.Wrapf(err, "dataset %q extent", name)
	}
	n := uint(1)
	for _, d := range dims {
		n *= d
	}
	out.Dims = dims
	out.Data = make([]float64, n)
	if err := dset.Read(&out.Data); err != nil {
		return out, errors.Wrapf(err, "read dataset %q", name)
	}
	return out, nil
}

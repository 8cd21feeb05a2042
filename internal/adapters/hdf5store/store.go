// Package hdf5store reads TerraClimate variables from local netCDF4 files.
package hdf5store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scigolib/hdf5"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// dataset is the subset of *hdf5.Dataset the store needs.
type dataset interface {
	Read() ([]float64, error)
	ReadHyperslab(selection *hdf5.HyperslabSelection) (interface{}, error)
	ReadAttribute(name string) (interface{}, error)
}

// file is an open netCDF4 file.
type file interface {
	Dataset(name string) (dataset, error)
	Close() error
}

type opener func(path string) (file, error)

// Store implements extraction.ArrayStore over one netCDF4 file per variable.
type Store struct {
	pathTemplate string
	open         opener
}

// NewStore creates a store. pathTemplate takes the variable name as its only
// verb, e.g. "/data/TerraClimate_%s.nc".
func NewStore(pathTemplate string) *Store {
	return &Store{pathTemplate: pathTemplate, open: openHDF5}
}

// Path returns the file holding variable.
func (s *Store) Path(variable model.Variable) string {
	return fmt.Sprintf(s.pathTemplate, variable.String())
}

func (s *Store) ReadAxis(ctx context.Context, variable model.Variable, axis extraction.Axis) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.open(s.Path(variable))
	if err != nil {
		return nil, fmt.Errorf("hdf5store: open %s: %w", s.Path(variable), err)
	}
	defer f.Close()

	ds, err := f.Dataset(string(axis))
	if err != nil {
		return nil, fmt.Errorf("hdf5store: %w", err)
	}
	values, err := ds.Read()
	if err != nil {
		return nil, fmt.Errorf("hdf5store: read %s: %w", axis, err)
	}
	return values, nil
}

func (s *Store) ReadHyperslab(ctx context.Context, variable model.Variable, sel extraction.Hyperslab) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(variable)
	f, err := s.open(path)
	if err != nil {
		return nil, fmt.Errorf("hdf5store: open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := f.Dataset(variable.String())
	if err != nil {
		return nil, fmt.Errorf("hdf5store: %w", err)
	}

	selection := &hdf5.HyperslabSelection{
		Start:  make([]uint64, 3),
		Count:  make([]uint64, 3),
		Stride: make([]uint64, 3),
	}
	for i := range 3 {
		stride := max(sel.Stride[i], 1)
		selection.Start[i] = uint64(sel.Start[i])
		selection.Count[i] = uint64(sel.Count[i])
		selection.Stride[i] = uint64(stride)
	}

	slog.DebugContext(ctx, "reading local hyperslab", "path", path, "constraint", sel.Constraint())

	raw, err := ds.ReadHyperslab(selection)
	if err != nil {
		return nil, fmt.Errorf("hdf5store: read %s%s: %w", variable, sel.Constraint(), err)
	}
	values, err := toFloat64s(raw)
	if err != nil {
		return nil, fmt.Errorf("hdf5store: read %s: %w", variable, err)
	}
	if len(values) != sel.Len() {
		return nil, &extraction.BlockSizeError{Want: sel.Len(), Got: len(values)}
	}

	readPacking(ds).Unpack(values)
	return values, nil
}

// readPacking reads the CF packing attributes of ds.
func readPacking(ds dataset) extraction.Packing {
	p := extraction.NewPacking()
	for _, name := range []string{"_FillValue", "missing_value"} {
		if v, ok := scalarAttribute(ds, name); ok {
			p.Missing = append(p.Missing, v)
		}
	}
	if v, ok := scalarAttribute(ds, "scale_factor"); ok {
		p.ScaleFactor = v
	}
	if v, ok := scalarAttribute(ds, "add_offset"); ok {
		p.AddOffset = v
	}
	return p
}

// scalarAttribute returns a numeric attribute, or false when it is absent or
// not numeric.
func scalarAttribute(ds dataset, name string) (float64, bool) {
	raw, err := ds.ReadAttribute(name)
	if err != nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int16:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	}
	values, err := toFloat64s(raw)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

func toFloat64s(raw interface{}) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []float32:
		return convert(v), nil
	case []int64:
		return convert(v), nil
	case []int32:
		return convert(v), nil
	case []int16:
		return convert(v), nil
	case []int8:
		return convert(v), nil
	case []uint32:
		return convert(v), nil
	case []uint16:
		return convert(v), nil
	case []uint8:
		return convert(v), nil
	default:
		return nil, fmt.Errorf("unsupported element type %T", raw)
	}
}

func convert[T float32 | int64 | int32 | int16 | int8 | uint32 | uint16 | uint8](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// hdf5File adapts *hdf5.File to file.
type hdf5File struct {
	*hdf5.File
}

func openHDF5(path string) (file, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, err
	}
	return hdf5File{File: f}, nil
}

// Dataset finds the dataset called name anywhere in the file.
func (f hdf5File) Dataset(name string) (dataset, error) {
	var found *hdf5.Dataset
	f.Walk(func(path string, obj hdf5.Object) {
		if found != nil {
			return
		}
		if ds, ok := obj.(*hdf5.Dataset); ok && (ds.Name() == name || path == "/"+name) {
			found = ds
		}
	})
	if found == nil {
		return nil, &DatasetNotFoundError{Name: name}
	}
	return found, nil
}

// DatasetNotFoundError is returned when a file lacks a requested variable.
type DatasetNotFoundError struct {
	Name string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not found", e.Name)
}

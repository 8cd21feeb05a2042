package hdf5store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/scigolib/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

type fakeDataset struct {
	values     []float64
	slab       interface{}
	attrs      map[string]interface{}
	lastSelect *hdf5.HyperslabSelection
}

func (d *fakeDataset) Read() ([]float64, error) {
	return d.values, nil
}

func (d *fakeDataset) ReadHyperslab(selection *hdf5.HyperslabSelection) (interface{}, error) {
	d.lastSelect = selection
	return d.slab, nil
}

func (d *fakeDataset) ReadAttribute(name string) (interface{}, error) {
	v, ok := d.attrs[name]
	if !ok {
		return nil, errors.New("attribute not found")
	}
	return v, nil
}

type fakeFile struct {
	datasets map[string]*fakeDataset
	closed   bool
}

func (f *fakeFile) Dataset(name string) (dataset, error) {
	ds, ok := f.datasets[name]
	if !ok {
		return nil, &DatasetNotFoundError{Name: name}
	}
	return ds, nil
}

func (f *fakeFile) Close() error {
	f.closed = true
	return nil
}

func newFakeStore(f *fakeFile) (*Store, *[]string) {
	var opened []string
	store := NewStore("/data/TerraClimate_%s.nc")
	store.open = func(path string) (file, error) {
		opened = append(opened, path)
		return f, nil
	}
	return store, &opened
}

func TestStore_ReadAxis(t *testing.T) {
	f := &fakeFile{datasets: map[string]*fakeDataset{
		"lat": {values: []float64{52, 51.5}},
	}}
	store, opened := newFakeStore(f)

	values, err := store.ReadAxis(context.Background(), model.VariableTMax, extraction.AxisLat)
	require.NoError(t, err)

	assert.Equal(t, []float64{52, 51.5}, values)
	assert.Equal(t, []string{"/data/TerraClimate_tmax.nc"}, *opened)
	assert.True(t, f.closed)
}

func TestStore_ReadAxisMissingDataset(t *testing.T) {
	store, _ := newFakeStore(&fakeFile{datasets: map[string]*fakeDataset{}})

	_, err := store.ReadAxis(context.Background(), model.VariablePPT, extraction.AxisTime)

	var notFound *DatasetNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "time", notFound.Name)
}

func TestStore_ReadHyperslabUnpacks(t *testing.T) {
	ppt := &fakeDataset{
		slab: []int32{10, -32768, 255, 0},
		attrs: map[string]interface{}{
			"_FillValue":   int32(-32768),
			"scale_factor": float64(0.1),
			"add_offset":   float32(1),
		},
	}
	store, _ := newFakeStore(&fakeFile{datasets: map[string]*fakeDataset{"ppt": ppt}})
	sel := extraction.Hyperslab{Start: [3]int{3, 10, 20}, Count: [3]int{1, 2, 2}, Stride: [3]int{1, 1, 1}}

	values, err := store.ReadHyperslab(context.Background(), model.VariablePPT, sel)
	require.NoError(t, err)

	require.Len(t, values, 4)
	assert.InDelta(t, 2.0, values[0], 1e-9)
	assert.True(t, math.IsNaN(values[1]))
	assert.InDelta(t, 26.5, values[2], 1e-9)
	assert.InDelta(t, 1.0, values[3], 1e-9)

	assert.Equal(t, []uint64{3, 10, 20}, ppt.lastSelect.Start)
	assert.Equal(t, []uint64{1, 2, 2}, ppt.lastSelect.Count)
	assert.Equal(t, []uint64{1, 1, 1}, ppt.lastSelect.Stride)
}

func TestStore_ReadHyperslabUnsignedTypes(t *testing.T) {
	tests := []struct {
		name string
		slab interface{}
		fill interface{}
	}{
		{"uint16", []uint16{10, 65535}, uint16(65535)},
		{"uint32", []uint32{10, 4294967295}, uint32(4294967295)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ppt := &fakeDataset{
				slab:  tt.slab,
				attrs: map[string]interface{}{"_FillValue": tt.fill, "scale_factor": float64(0.5)},
			}
			store, _ := newFakeStore(&fakeFile{datasets: map[string]*fakeDataset{"ppt": ppt}})
			sel := extraction.Hyperslab{Count: [3]int{1, 1, 2}, Stride: [3]int{1, 1, 1}}

			values, err := store.ReadHyperslab(context.Background(), model.VariablePPT, sel)
			require.NoError(t, err)

			require.Len(t, values, 2)
			assert.InDelta(t, 5.0, values[0], 1e-9)
			assert.True(t, math.IsNaN(values[1]))
		})
	}
}

func TestStore_ReadHyperslabWrongSize(t *testing.T) {
	ppt := &fakeDataset{slab: []float64{1, 2, 3}}
	store, _ := newFakeStore(&fakeFile{datasets: map[string]*fakeDataset{"ppt": ppt}})
	sel := extraction.Hyperslab{Count: [3]int{1, 2, 2}, Stride: [3]int{1, 1, 1}}

	_, err := store.ReadHyperslab(context.Background(), model.VariablePPT, sel)

	var sizeErr *extraction.BlockSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 4, sizeErr.Want)
	assert.Equal(t, 3, sizeErr.Got)
}

func TestStore_ReadHyperslabUnsupportedType(t *testing.T) {
	ppt := &fakeDataset{slab: []string{"a"}}
	store, _ := newFakeStore(&fakeFile{datasets: map[string]*fakeDataset{"ppt": ppt}})
	sel := extraction.Hyperslab{Count: [3]int{1, 1, 1}, Stride: [3]int{1, 1, 1}}

	_, err := store.ReadHyperslab(context.Background(), model.VariablePPT, sel)
	assert.ErrorContains(t, err, "unsupported element type")
}

func TestStore_CancelledContext(t *testing.T) {
	store, opened := newFakeStore(&fakeFile{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ReadAxis(ctx, model.VariablePPT, extraction.AxisLat)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *opened)
}

// TestStore_RoundTrip writes a small netCDF4-style file and reads it back
// through the real HDF5 reader.
func TestStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file round trip in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "TerraClimate_ppt.nc")

	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	require.NoError(t, err)

	writeDataset := func(name string, dims []uint64, data []float64) *hdf5.DatasetWriter {
		ds, err := fw.CreateDataset(name, hdf5.Float64, dims)
		require.NoError(t, err)
		require.NoError(t, ds.Write(data))
		return ds
	}
	writeDataset("/lat", []uint64{2}, []float64{51.5, 51})
	writeDataset("/lon", []uint64{2}, []float64{-75.5, -75})
	writeDataset("/time", []uint64{2}, []float64{36524, 36555})
	ppt := writeDataset("/ppt", []uint64{2, 2, 2}, []float64{10, 20, 30, -9999, 50, 60, 70, 80})
	require.NoError(t, ppt.WriteAttribute("scale_factor", float64(0.5)))
	require.NoError(t, ppt.WriteAttribute("_FillValue", float64(-9999)))
	require.NoError(t, fw.Close())

	store := NewStore(filepath.Join(dir, "TerraClimate_%s.nc"))

	lat, err := store.ReadAxis(context.Background(), model.VariablePPT, extraction.AxisLat)
	require.NoError(t, err)
	assert.Equal(t, []float64{51.5, 51}, lat)

	sel := extraction.Hyperslab{Count: [3]int{2, 2, 2}, Stride: [3]int{1, 1, 1}}
	values, err := store.ReadHyperslab(context.Background(), model.VariablePPT, sel)
	require.NoError(t, err)
	require.Len(t, values, 8)
	assert.InDelta(t, 5.0, values[0], 1e-9)
	assert.True(t, math.IsNaN(values[3]))
	assert.InDelta(t, 40.0, values[7], 1e-9)
}

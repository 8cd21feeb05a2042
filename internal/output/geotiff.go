package output

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

// TIFF tags written by WriteGeoTIFF.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagSampleFormat              = 339
	tagModelPixelScale           = 33550
	tagModelTiepoint             = 33922
	tagGeoKeyDirectory           = 34735
	tagGDALNoData                = 42113
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// GeoKeys.
const (
	keyGTModelType      = 1024
	keyGTRasterType     = 1025
	keyGeographicType   = 2048
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
	epsgWGS84           = 4326
)

const (
	sampleFormatIEEEFloat  = 3
	photometricBlackIsZero = 1
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// WriteGeoTIFF writes m as a single-band float32 GeoTIFF in EPSG:4326. The
// raster covers extent exactly: each pixel spans (East-West)/cols degrees of
// longitude and (North-South)/rows degrees of latitude, and the top-left corner
// is pinned to (West, North). Rows are written north to south. A single-point
// bound has no width, so that axis is widened to the cells the map holds,
// centred on the requested coordinate.
func WriteGeoTIFF(w io.Writer, m *extraction.Map, extent model.Extent) error {
	m = m.NorthUp()
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("cannot write an empty %s", m)
	}
	extent = rasterExtent(m, extent)
	for j, row := range m.Values {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, expected %d", j, len(row), cols)
		}
	}

	le := binary.LittleEndian
	pixelBytes := uint32(rows * cols * 4)

	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(cols)),
		longEntry(tagImageLength, uint32(rows)),
		shortEntry(tagBitsPerSample, 32),
		shortEntry(tagCompression, 1),
		shortEntry(tagPhotometricInterpretation, photometricBlackIsZero),
		longEntry(tagStripOffsets, 0), // patched below
		shortEntry(tagSamplesPerPixel, 1),
		longEntry(tagRowsPerStrip, uint32(rows)),
		longEntry(tagStripByteCounts, pixelBytes),
		shortEntry(tagPlanarConfiguration, 1),
		shortEntry(tagSampleFormat, sampleFormatIEEEFloat),
		doubleEntry(tagModelPixelScale,
			(extent.East-extent.West)/float64(cols),
			(extent.North-extent.South)/float64(rows),
			0,
		),
		doubleEntry(tagModelTiepoint, 0, 0, 0, extent.West, extent.North, 0),
		shortEntry(tagGeoKeyDirectory,
			1, 1, 0, 3,
			keyGTModelType, 0, 1, modelTypeGeographic,
			keyGTRasterType, 0, 1, rasterPixelIsArea,
			keyGeographicType, 0, 1, epsgWGS84,
		),
		{tag: tagGDALNoData, typ: typeASCII, count: 4, data: []byte("nan\x00")},
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].tag < entries[b].tag })

	// Layout: header, IFD, out-of-line entry values, pixels.
	ifdSize := 2 + 12*len(entries) + 4
	extraOffset := 8 + ifdSize
	var extra bytes.Buffer
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) <= 4 {
			continue
		}
		offsets[i] = uint32(extraOffset + extra.Len())
		extra.Write(e.data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	pixelOffset := uint32(extraOffset + extra.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			le.PutUint32(entries[i].data, pixelOffset)
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(pixelOffset) + int(pixelBytes))
	buf.WriteString("II")
	_ = binary.Write(&buf, le, uint16(42))
	_ = binary.Write(&buf, le, uint32(8))

	_ = binary.Write(&buf, le, uint16(len(entries)))
	for i, e := range entries {
		_ = binary.Write(&buf, le, e.tag)
		_ = binary.Write(&buf, le, e.typ)
		_ = binary.Write(&buf, le, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			buf.Write(inline[:])
		} else {
			_ = binary.Write(&buf, le, offsets[i])
		}
	}
	_ = binary.Write(&buf, le, uint32(0)) // no further IFDs

	buf.Write(extra.Bytes())

	line := make([]byte, 4*cols)
	for _, row := range m.Values {
		for i, v := range row {
			le.PutUint32(line[4*i:], math.Float32bits(float32(v)))
		}
		buf.Write(line)
	}

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write GeoTIFF: %w", err)
	}
	return nil
}

// rasterExtent widens zero-width axes of extent to the cells of m.
func rasterExtent(m *extraction.Map, extent model.Extent) model.Extent {
	if extent.East <= extent.West {
		half := float64(len(m.Lon)) * cellSpacing(m.Lon) / 2
		extent.West, extent.East = extent.West-half, extent.West+half
	}
	if extent.North <= extent.South {
		half := float64(len(m.Lat)) * cellSpacing(m.Lat) / 2
		extent.South, extent.North = extent.South-half, extent.South+half
	}
	return extent
}

func cellSpacing(coords []float64) float64 {
	if len(coords) > 1 {
		return math.Abs(coords[1] - coords[0])
	}
	return model.GridSpacing
}

func shortEntry(tag uint16, values ...uint16) ifdEntry {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return ifdEntry{tag: tag, typ: typeShort, count: uint32(len(values)), data: data}
}

func longEntry(tag uint16, value uint32) ifdEntry {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, value)
	return ifdEntry{tag: tag, typ: typeLong, count: 1, data: data}
}

func doubleEntry(tag uint16, values ...float64) ifdEntry {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(values)), data: data}
}

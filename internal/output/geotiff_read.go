package output

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/model"
)

var ErrNotGeoTIFF = errors.New("not a single-band float32 GeoTIFF")

// GeoTIFFInfo describes the georeferencing of a raster.
type GeoTIFFInfo struct {
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	PixelScale [3]float64   `json:"pixel_scale"`
	Tiepoint   [6]float64   `json:"tiepoint"`
	EPSG       int          `json:"epsg"`
	NoData     string       `json:"nodata,omitempty"`
	Extent     model.Extent `json:"extent"`
}

// Raster is a decoded single-band GeoTIFF. Values are rows north to south.
type Raster struct {
	GeoTIFFInfo
	Values [][]float64
}

// ReadGeoTIFFInfo decodes the header of a GeoTIFF without its pixels.
func ReadGeoTIFFInfo(r io.Reader) (*GeoTIFFInfo, error) {
	raster, err := readGeoTIFF(r, false)
	if err != nil {
		return nil, err
	}
	return &raster.GeoTIFFInfo, nil
}

// ReadGeoTIFF decodes an uncompressed single-band float32 GeoTIFF.
func ReadGeoTIFF(r io.Reader) (*Raster, error) {
	return readGeoTIFF(r, true)
}

type tiffReader struct {
	data  []byte
	order binary.ByteOrder
}

type rawEntry struct {
	typ    uint16
	count  uint32
	offset uint32
	inline []byte
}

func readGeoTIFF(r io.Reader, withPixels bool) (*Raster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GeoTIFF: %w", err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: file too short", ErrNotGeoTIFF)
	}

	t := tiffReader{data: data}
	switch string(data[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark", ErrNotGeoTIFF)
	}
	if t.order.Uint16(data[2:]) != 42 {
		return nil, fmt.Errorf("%w: bad magic number", ErrNotGeoTIFF)
	}

	ifd := t.order.Uint32(data[4:])
	if int(ifd)+2 > len(data) {
		return nil, fmt.Errorf("%w: IFD offset out of range", ErrNotGeoTIFF)
	}
	n := int(t.order.Uint16(data[ifd:]))
	if int(ifd)+2+12*n > len(data) {
		return nil, fmt.Errorf("%w: truncated IFD", ErrNotGeoTIFF)
	}

	entries := make(map[uint16]rawEntry, n)
	for i := range n {
		p := int(ifd) + 2 + 12*i
		tag := t.order.Uint16(data[p:])
		entries[tag] = rawEntry{
			typ:    t.order.Uint16(data[p+2:]),
			count:  t.order.Uint32(data[p+4:]),
			offset: t.order.Uint32(data[p+8:]),
			inline: data[p+8 : p+12],
		}
	}

	raster := &Raster{}
	width, err := t.uints(entries, tagImageWidth)
	if err != nil {
		return nil, err
	}
	height, err := t.uints(entries, tagImageLength)
	if err != nil {
		return nil, err
	}
	raster.Width, raster.Height = int(width[0]), int(height[0])

	if scale, err := t.doubles(entries, tagModelPixelScale); err == nil && len(scale) >= 3 {
		copy(raster.PixelScale[:], scale)
	}
	if tie, err := t.doubles(entries, tagModelTiepoint); err == nil && len(tie) >= 6 {
		copy(raster.Tiepoint[:], tie)
	}
	if keys, err := t.uints(entries, tagGeoKeyDirectory); err == nil {
		raster.EPSG = geographicEPSG(keys)
	}
	if nodata, ok := t.ascii(entries, tagGDALNoData); ok {
		raster.NoData = nodata
	}

	west, north := raster.Tiepoint[3], raster.Tiepoint[4]
	raster.Extent = model.Extent{
		West:  west,
		North: north,
		East:  west + raster.PixelScale[0]*float64(raster.Width),
		South: north - raster.PixelScale[1]*float64(raster.Height),
	}

	if !withPixels {
		return raster, nil
	}
	if err := t.readPixels(entries, raster); err != nil {
		return nil, err
	}
	return raster, nil
}

func (t tiffReader) readPixels(entries map[uint16]rawEntry, raster *Raster) error {
	if v, err := t.uints(entries, tagCompression); err == nil && v[0] != 1 {
		return fmt.Errorf("%w: compression %d", ErrNotGeoTIFF, v[0])
	}
	if v, err := t.uints(entries, tagSampleFormat); err != nil || v[0] != sampleFormatIEEEFloat {
		return fmt.Errorf("%w: sample format is not IEEE float", ErrNotGeoTIFF)
	}
	if v, err := t.uints(entries, tagBitsPerSample); err != nil || v[0] != 32 {
		return fmt.Errorf("%w: bits per sample is not 32", ErrNotGeoTIFF)
	}

	offsets, err := t.uints(entries, tagStripOffsets)
	if err != nil {
		return err
	}
	counts, err := t.uints(entries, tagStripByteCounts)
	if err != nil {
		return err
	}
	if len(offsets) != len(counts) {
		return fmt.Errorf("%w: %d strip offsets, %d byte counts", ErrNotGeoTIFF, len(offsets), len(counts))
	}

	var pixels []byte
	for i := range offsets {
		end := uint64(offsets[i]) + uint64(counts[i])
		if end > uint64(len(t.data)) {
			return fmt.Errorf("%w: strip %d out of range", ErrNotGeoTIFF, i)
		}
		pixels = append(pixels, t.data[offsets[i]:end]...)
	}
	if len(pixels) < 4*raster.Width*raster.Height {
		return fmt.Errorf("%w: %d pixel bytes for %dx%d", ErrNotGeoTIFF, len(pixels), raster.Width, raster.Height)
	}

	raster.Values = make([][]float64, raster.Height)
	for j := range raster.Values {
		raster.Values[j] = make([]float64, raster.Width)
		for i := range raster.Values[j] {
			p := 4 * (j*raster.Width + i)
			raster.Values[j][i] = float64(math.Float32frombits(t.order.Uint32(pixels[p:])))
		}
	}
	return nil
}

// payload returns the bytes holding an entry's values.
func (t tiffReader) payload(e rawEntry, size int) ([]byte, error) {
	n := size * int(e.count)
	if n <= 4 {
		return e.inline[:n], nil
	}
	end := uint64(e.offset) + uint64(n)
	if end > uint64(len(t.data)) {
		return nil, fmt.Errorf("%w: tag data out of range", ErrNotGeoTIFF)
	}
	return t.data[e.offset:end], nil
}

func (t tiffReader) uints(entries map[uint16]rawEntry, tag uint16) ([]uint32, error) {
	e, ok := entries[tag]
	if !ok {
		return nil, fmt.Errorf("%w: missing tag %d", ErrNotGeoTIFF, tag)
	}
	if e.count == 0 {
		return nil, fmt.Errorf("%w: empty tag %d", ErrNotGeoTIFF, tag)
	}

	switch e.typ {
	case typeShort:
		raw, err := t.payload(e, 2)
		if err != nil {
			return nil, err
		}
		out := make([]uint32, e.count)
		for i := range out {
			out[i] = uint32(t.order.Uint16(raw[2*i:]))
		}
		return out, nil
	case typeLong:
		raw, err := t.payload(e, 4)
		if err != nil {
			return nil, err
		}
		out := make([]uint32, e.count)
		for i := range out {
			out[i] = t.order.Uint32(raw[4*i:])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: tag %d has type %d", ErrNotGeoTIFF, tag, e.typ)
	}
}

func (t tiffReader) doubles(entries map[uint16]rawEntry, tag uint16) ([]float64, error) {
	e, ok := entries[tag]
	if !ok || e.typ != typeDouble {
		return nil, fmt.Errorf("%w: missing tag %d", ErrNotGeoTIFF, tag)
	}
	raw, err := t.payload(e, 8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(t.order.Uint64(raw[8*i:]))
	}
	return out, nil
}

func (t tiffReader) ascii(entries map[uint16]rawEntry, tag uint16) (string, bool) {
	e, ok := entries[tag]
	if !ok || e.typ != typeASCII {
		return "", false
	}
	raw, err := t.payload(e, 1)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(string(bytes.TrimRight(raw, "\x00")), " "), true
}

// geographicEPSG returns the GeographicTypeGeoKey of a GeoKey directory.
func geographicEPSG(keys []uint32) int {
	if len(keys) < 4 {
		return 0
	}
	n := int(keys[3])
	for i := range n {
		p := 4 + 4*i
		if p+3 >= len(keys) {
			break
		}
		if keys[p] == keyGeographicType && keys[p+1] == 0 {
			return int(keys[p+3])
		}
	}
	return 0
}

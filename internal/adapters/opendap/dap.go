package opendap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	xdr "github.com/davecgh/go-xdr/xdr2"

	"github.com/kacper-wojtaszczyk/terraclimate/internal/extraction"
)

var errUnsupportedType = errors.New("unsupported DAP2 element type")

var (
	declPattern = regexp.MustCompile(`^\s*(Byte|Int16|UInt16|Int32|UInt32|Float32|Float64)\s+(\w+)((?:\s*\[[^\]]*\])*)\s*;`)
	dimPattern  = regexp.MustCompile(`\[\s*(?:(\w+)\s*=\s*)?(\d+)\s*\]`)
	dataMarker  = []byte("\nData:\n")
)

type dimension struct {
	Name string
	Size int
}

// arrayDecl is the single array declared in a DDS.
type arrayDecl struct {
	Type string
	Name string
	Dims []dimension
}

// Len returns the number of elements of the array.
func (d arrayDecl) Len() int {
	n := 1
	for _, dim := range d.Dims {
		n *= dim.Size
	}
	return n
}

// parseDDS returns the first array declared in dds. Responses to the
// constraints this client sends carry exactly one.
func parseDDS(dds string) (arrayDecl, error) {
	scanner := bufio.NewScanner(strings.NewReader(dds))
	for scanner.Scan() {
		m := declPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		decl := arrayDecl{Type: m[1], Name: m[2]}
		for _, dm := range dimPattern.FindAllStringSubmatch(m[3], -1) {
			size, err := strconv.Atoi(dm[2])
			if err != nil {
				return arrayDecl{}, &formatError{Message: fmt.Sprintf("dimension size %q", dm[2])}
			}
			decl.Dims = append(decl.Dims, dimension{Name: dm[1], Size: size})
		}
		return decl, nil
	}
	return arrayDecl{}, &formatError{Message: "no array declaration in DDS"}
}

// splitDODS separates the DDS header of a .dods response from its XDR payload.
func splitDODS(body []byte) (string, []byte, error) {
	i := bytes.Index(body, dataMarker)
	if i < 0 {
		if msg, ok := serverErrorMessage(body); ok {
			return "", nil, &formatError{Message: msg}
		}
		return "", nil, &formatError{Message: "missing Data section"}
	}
	return string(body[:i]), body[i+len(dataMarker):], nil
}

// decodeDODS decodes a .dods response holding one numeric array.
func decodeDODS(body []byte) (arrayDecl, []float64, error) {
	dds, payload, err := splitDODS(body)
	if err != nil {
		return arrayDecl{}, nil, err
	}
	decl, err := parseDDS(dds)
	if err != nil {
		return arrayDecl{}, nil, err
	}
	values, err := decodeArray(bytes.NewReader(payload), decl)
	if err != nil {
		return arrayDecl{}, nil, err
	}
	return decl, values, nil
}

// decodeArray reads an XDR-encoded DAP2 array: the element count twice, then
// the elements. 16-bit integers travel as 32-bit words.
func decodeArray(r io.Reader, decl arrayDecl) ([]float64, error) {
	dec := xdr.NewDecoder(r)

	count, _, err := dec.DecodeUint()
	if err != nil {
		return nil, &formatError{Message: fmt.Sprintf("array length: %v", err)}
	}
	repeated, _, err := dec.DecodeUint()
	if err != nil {
		return nil, &formatError{Message: fmt.Sprintf("array length: %v", err)}
	}
	if count != repeated || int(count) != decl.Len() {
		return nil, &formatError{Message: fmt.Sprintf("array %s has %d elements, declared %d", decl.Name, count, decl.Len())}
	}

	values := make([]float64, count)

	if decl.Type == "Byte" {
		raw, _, err := dec.DecodeFixedOpaque(int32(count))
		if err != nil {
			return nil, &formatError{Message: fmt.Sprintf("byte array %s: %v", decl.Name, err)}
		}
		for i, b := range raw {
			values[i] = float64(b)
		}
		return values, nil
	}

	var next func() (float64, error)
	switch decl.Type {
	case "Int16", "Int32":
		next = func() (float64, error) {
			v, _, err := dec.DecodeInt()
			return float64(v), err
		}
	case "UInt16", "UInt32":
		next = func() (float64, error) {
			v, _, err := dec.DecodeUint()
			return float64(v), err
		}
	case "Float32":
		next = func() (float64, error) {
			v, _, err := dec.DecodeFloat()
			return float64(v), err
		}
	case "Float64":
		next = func() (float64, error) {
			v, _, err := dec.DecodeDouble()
			return v, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedType, decl.Type)
	}

	for i := range values {
		v, err := next()
		if err != nil {
			return nil, &formatError{Message: fmt.Sprintf("element %d of %s: %v", i, decl.Name, err)}
		}
		values[i] = v
	}
	return values, nil
}

// parseDAS extracts the _FillValue, missing_value, scale_factor and
// add_offset attributes of variable from a DAS document.
func parseDAS(das, variable string) extraction.Packing {
	attrs := extraction.NewPacking()

	var stack []string
	scanner := bufio.NewScanner(strings.NewReader(das))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasSuffix(line, "{"):
			stack = append(stack, strings.TrimSpace(strings.TrimSuffix(line, "{")))
		case strings.HasPrefix(line, "}"):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case len(stack) == 2 && stack[1] == variable:
			fields := strings.Fields(strings.TrimSuffix(line, ";"))
			if len(fields) < 3 {
				continue
			}
			value, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], ","), 64)
			if err != nil {
				continue
			}
			switch fields[1] {
			case "_FillValue", "missing_value":
				attrs.Missing = append(attrs.Missing, value)
			case "scale_factor":
				attrs.ScaleFactor = value
			case "add_offset":
				attrs.AddOffset = value
			}
		}
	}
	return attrs
}

var serverErrorPattern = regexp.MustCompile(`message\s*=\s*"((?:[^"\\]|\\.)*)"`)

// serverErrorMessage extracts the message of a DAP2 "Error { ... };" body.
func serverErrorMessage(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if !bytes.HasPrefix(trimmed, []byte("Error")) {
		return "", false
	}
	if m := serverErrorPattern.FindSubmatch(trimmed); m != nil {
		return string(m[1]), true
	}
	return string(trimmed), true
}

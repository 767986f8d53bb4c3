package xdmf

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/notargets/dgxdmf/store"
)

// writeTarget is what every writer needs: the ranks and where arrays go
type writeTarget struct {
	c    comm.Communicator
	sink dataSink
}

// numberType returns the NumberType and Precision recorded for T
func numberType[T mesh.Value]() (string, int) {
	var z T
	switch any(z).(type) {
	case bool, int32:
		return "Int", 4
	case int64:
		return "Int", 8
	case uint64:
		return "UInt", 8
	}
	return "Float", 8
}

// toWire returns data in a type the store accepts; booleans become int32
func toWire[T mesh.Value](data []T) any {
	if b, ok := any(data).([]bool); ok {
		out := make([]int32, len(b))
		for i, v := range b {
			if v {
				out[i] = 1
			}
		}
		return out
	}
	return data
}

// writeDataItem appends a DataItem holding this rank's segment of a
// collective array. localShape[0] is the local row count; the recorded
// Dimensions are global.
func writeDataItem[T mesh.Value](ctx context.Context, w *writeTarget, parent *etree.Element,
	path string, data []T, localShape []int64) (*etree.Element, error) {

	var err error
	if n := shapeSize(localShape); int64(len(data)) != n {
		err = fmt.Errorf("%w: %s holds %d values, local shape %v needs %d",
			ErrDimensionMismatch, path, len(data), localShape, n)
	}
	if err := agree(ctx, w.c, err); err != nil {
		return nil, err
	}

	item := parent.CreateElement("DataItem")
	item.CreateAttr("Dimensions", "")
	nt, prec := numberType[T]()
	item.CreateAttr("NumberType", nt)
	item.CreateAttr("Precision", strconv.Itoa(prec))

	global, err := w.sink.put(ctx, item, path, toWire(data), localShape)
	if err != nil {
		return nil, err
	}
	item.CreateAttr("Dimensions", formatShape(global))
	return item, nil
}

func shapeSize(shape []int64) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}

func formatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, s := range shape {
		parts[i] = strconv.FormatInt(s, 10)
	}
	return strings.Join(parts, " ")
}

func parseShape(s string) ([]int64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty Dimensions", ErrFormat)
	}
	shape := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: bad Dimensions %q", ErrFormat, s)
		}
		shape[i] = v
	}
	return shape, nil
}

// readDataItem loads the array described by item. HDF references resolve
// relative to dir, the directory of the index file.
func readDataItem[T mesh.Value](item *etree.Element, dir string) ([]T, []int64, error) {
	if item == nil {
		return nil, nil, fmt.Errorf("%w: missing DataItem", ErrFormat)
	}
	dims := item.SelectAttr("Dimensions")
	if dims == nil {
		return nil, nil, fmt.Errorf("%w: DataItem without Dimensions", ErrFormat)
	}
	shape, err := parseShape(dims.Value)
	if err != nil {
		return nil, nil, err
	}
	nt := item.SelectAttrValue("NumberType", "")
	var isFloat bool
	switch nt {
	case "Float":
		isFloat = true
	case "Int", "UInt", "Char", "UChar":
	default:
		return nil, nil, fmt.Errorf("%w: unsupported NumberType %q", ErrFormat, nt)
	}
	n := shapeSize(shape)

	var out []T
	switch format := item.SelectAttrValue("Format", ""); format {
	case "XML":
		if out, err = parseValues[T](item.Text(), isFloat); err != nil {
			return nil, nil, err
		}
	case "HDF":
		file, path, ok := splitReference(item.Text())
		if !ok {
			return nil, nil, fmt.Errorf("%w: bad HDF reference %q", ErrFormat, strings.TrimSpace(item.Text()))
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		a, err := store.Read(file, path)
		if err != nil {
			return nil, nil, wrapStoreError(err)
		}
		if a.IsFloat() {
			out, err = castFloats[T](a.Float)
		} else {
			out, err = castInts[T](a.Int)
		}
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("%w: unsupported Format %q", ErrFormat, format)
	}

	if int64(len(out)) != n {
		return nil, nil, fmt.Errorf("%w: Dimensions %v declare %d values, found %d",
			ErrFormat, shape, n, len(out))
	}
	return out, shape, nil
}

// splitReference splits "<file>:<path>"
func splitReference(text string) (file, path string, ok bool) {
	text = strings.TrimSpace(text)
	i := strings.LastIndex(text, ":")
	if i <= 0 || i == len(text)-1 {
		return "", "", false
	}
	return text[:i], text[i+1:], true
}

func parseValues[T mesh.Value](text string, isFloat bool) ([]T, error) {
	fields := strings.Fields(text)
	if isFloat {
		vals := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: value %d: %v", ErrFormat, i, err)
			}
			vals[i] = v
		}
		return castFloats[T](vals)
	}
	vals := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			// values above MaxInt64 keep their bits
			u, uerr := strconv.ParseUint(f, 10, 64)
			if uerr != nil {
				return nil, fmt.Errorf("%w: value %d: %v", ErrFormat, i, err)
			}
			v = int64(u)
		}
		vals[i] = v
	}
	return castInts[T](vals)
}

func castInts[T mesh.Value](in []int64) ([]T, error) {
	out := make([]T, len(in))
	switch o := any(out).(type) {
	case []bool:
		for i, v := range in {
			o[i] = v != 0
		}
	case []int32:
		for i, v := range in {
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, fmt.Errorf("%w: value %d: %d overflows Int/4", ErrFormat, i, v)
			}
			o[i] = int32(v)
		}
	case []int64:
		copy(o, in)
	case []uint64:
		for i, v := range in {
			o[i] = uint64(v)
		}
	case []float64:
		for i, v := range in {
			o[i] = float64(v)
		}
	}
	return out, nil
}

func castFloats[T mesh.Value](in []float64) ([]T, error) {
	out := make([]T, len(in))
	switch o := any(out).(type) {
	case []bool:
		for i, v := range in {
			o[i] = v != 0
		}
	case []int32:
		for i, v := range in {
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, fmt.Errorf("%w: value %d: %g overflows Int/4", ErrFormat, i, v)
			}
			o[i] = int32(v)
		}
	case []int64:
		for i, v := range in {
			o[i] = int64(v)
		}
	case []uint64:
		for i, v := range in {
			o[i] = uint64(v)
		}
	case []float64:
		copy(o, in)
	}
	return out, nil
}

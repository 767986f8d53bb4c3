// Package store is the binary array store behind XDMF heavy data. Arrays
// are written collectively: every rank hands in its local segment and the
// segments are concatenated in rank order into one dataset.
package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnavailable is returned by every operation when the binary backend
	// is compiled out with the nohdf5 build tag.
	ErrUnavailable = errors.New("store: binary store not available in this build")
	// ErrNotFound is returned when a file or dataset does not exist.
	ErrNotFound = errors.New("store: not found")
)

// Array is a dataset read back from the store. Integer datasets fill Int,
// floating point datasets fill Float.
type Array struct {
	Shape []int64
	Int   []int64
	Float []float64
}

// Len returns the number of elements declared by Shape
func (a *Array) Len() int64 {
	n := int64(1)
	for _, s := range a.Shape {
		n *= s
	}
	return n
}

// IsFloat reports whether the dataset holds floating point values
func (a *Array) IsFloat() bool { return a.Float != nil }

// Filename returns the store file paired with an index file: the same base
// name with the extension replaced by .h5.
func Filename(indexPath string) string {
	return strings.TrimSuffix(indexPath, filepath.Ext(indexPath)) + ".h5"
}

// splitPath maps a logical path onto at most one group level. Components
// below the first are joined with '_', so /Mesh/0/topology lands in group
// Mesh as dataset 0_topology.
func splitPath(path string) (group, name string, err error) {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return "", "", fmt.Errorf("store: empty dataset path %q", path)
	case 1:
		return "", parts[0], nil
	}
	return parts[0], strings.Join(parts[1:], "_"), nil
}

// storePath is the dataset address produced by splitPath
func storePath(group, name string) string {
	if group == "" {
		return "/" + name
	}
	return "/" + group + "/" + name
}

// GlobalShape sums the outer extents of per-rank shapes and checks that
// the inner extents agree. offsets holds each rank's first row.
func GlobalShape(shapes [][]int64) (global, offsets []int64, err error) {
	var inner []int64
	offsets = make([]int64, len(shapes))
	var rows int64
	for r, s := range shapes {
		offsets[r] = rows
		if len(s) == 0 {
			continue
		}
		if inner == nil {
			inner = s[1:]
		} else if !equalShape(inner, s[1:]) {
			return nil, nil, fmt.Errorf("store: rank %d segment shape %v disagrees with %v", r, s[1:], inner)
		}
		rows += s[0]
	}
	return append([]int64{rows}, inner...), offsets, nil
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

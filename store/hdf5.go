//go:build !nohdf5

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/notargets/dgxdmf/comm"
	"gonum.org/v1/hdf5"
)

// Available reports whether the binary store is compiled in
const Available = true

// lib serialises calls into the HDF5 C library, which in-process ranks
// would otherwise enter from several goroutines
var lib sync.Mutex

// Writer is an open store file. Only rank 0 holds the file handle; the
// other ranks ship their segments to it.
type Writer struct {
	c        comm.Communicator
	filename string
	file     *hdf5.File
	groups   map[string]*hdf5.Group
	closed   bool
}

// Create truncates or creates filename for writing. It is collective.
func Create(ctx context.Context, c comm.Communicator, filename string) (*Writer, error) {
	w := &Writer{c: c, filename: filename, groups: map[string]*hdf5.Group{}}
	var msg string
	if c.Rank() == 0 {
		lib.Lock()
		f, err := hdf5.CreateFile(filename, hdf5.F_ACC_TRUNC)
		lib.Unlock()
		if err != nil {
			msg = fmt.Sprintf("creating %s: %v", filename, err)
		}
		w.file = f
	}
	if err := agree(ctx, c, msg); err != nil {
		if w.file != nil {
			lib.Lock()
			w.file.Close()
			lib.Unlock()
		}
		return nil, err
	}
	return w, nil
}

// Filename returns the path of the store file
func (w *Writer) Filename() string { return w.filename }

// Write stores this rank's segment of a collective array. data must be a
// flat []int32, []int64, []uint64 or []float64 of len product(localShape).
// Every rank must call Write with the same path and inner extents. The
// returned shape is the global one; storePath is the dataset address.
func (w *Writer) Write(ctx context.Context, path string, data any, localShape []int64) (global []int64, dsPath string, err error) {
	if w.closed {
		return nil, "", fmt.Errorf("store: write %s: writer closed", path)
	}
	group, name, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}

	shapes, err := comm.AllGather(ctx, w.c, localShape)
	if err != nil {
		return nil, "", err
	}
	global, offsets, err := GlobalShape(shapes)
	if err != nil {
		return nil, "", err
	}

	var msg string
	switch v := data.(type) {
	case []int32:
		msg, err = writeSegments(ctx, w, group, name, v, hdf5.T_NATIVE_INT32, global, offsets)
	case []int64:
		msg, err = writeSegments(ctx, w, group, name, v, hdf5.T_NATIVE_INT64, global, offsets)
	case []uint64:
		msg, err = writeSegments(ctx, w, group, name, v, hdf5.T_NATIVE_UINT64, global, offsets)
	case []float64:
		msg, err = writeSegments(ctx, w, group, name, v, hdf5.T_NATIVE_DOUBLE, global, offsets)
	default:
		return nil, "", fmt.Errorf("store: unsupported element type %T", data)
	}
	if err != nil {
		return nil, "", err
	}
	if err := agree(ctx, w.c, msg); err != nil {
		return nil, "", err
	}
	return global, storePath(group, name), nil
}

// writeSegments gathers every rank's segment to rank 0, which writes the
// concatenation. It returns rank 0's failure as a message so that all
// ranks can agree on it.
func writeSegments[T int32 | int64 | uint64 | float64](ctx context.Context, w *Writer,
	group, name string, data []T, dtype *hdf5.Datatype, global, offsets []int64) (string, error) {

	segments, err := comm.Gather(ctx, w.c, 0, data)
	if err != nil {
		return "", err
	}
	if w.c.Rank() != 0 {
		return "", nil
	}

	total := int64(1)
	for _, s := range global {
		total *= s
	}
	flat := make([]T, 0, total)
	for _, s := range segments {
		flat = append(flat, s...)
	}
	if int64(len(flat)) != total {
		return fmt.Sprintf("dataset %s: %d values for shape %v", storePath(group, name), len(flat), global), nil
	}

	lib.Lock()
	defer lib.Unlock()
	if err := w.createDataset(group, name, dtype, &flat, len(flat), global, offsets); err != nil {
		return fmt.Sprintf("dataset %s: %v", storePath(group, name), err), nil
	}
	return "", nil
}

// createDataset writes data, a pointer to a slice of n values, under group
// with the global shape and records the per-rank row offsets. lib must be
// held.
func (w *Writer) createDataset(group, name string, dtype *hdf5.Datatype, data any, n int,
	global, offsets []int64) error {

	g, err := w.group(group)
	if err != nil {
		return err
	}
	dims := make([]uint, len(global))
	for i, s := range global {
		dims[i] = uint(s)
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	ds, err := g.CreateDataset(name, dtype, space)
	if err != nil {
		return err
	}
	defer ds.Close()
	if n > 0 {
		if err := ds.Write(data); err != nil {
			return err
		}
	}

	aspace, err := hdf5.CreateSimpleDataspace([]uint{uint(len(offsets))}, nil)
	if err != nil {
		return err
	}
	defer aspace.Close()
	attr, err := ds.CreateAttribute("partition", hdf5.T_NATIVE_INT64, aspace)
	if err != nil {
		return err
	}
	defer attr.Close()
	return attr.Write(&offsets, hdf5.T_NATIVE_INT64)
}

// group returns the named group below the root, creating it once. lib
// must be held.
func (w *Writer) group(name string) (*hdf5.CommonFG, error) {
	if name == "" {
		return &w.file.CommonFG, nil
	}
	if g, ok := w.groups[name]; ok {
		return &g.CommonFG, nil
	}
	g, err := w.file.CreateGroup(name)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", name, err)
	}
	w.groups[name] = g
	return &g.CommonFG, nil
}

// Flush pushes pending data to disk so that the file can be read through
// a separate handle. It is collective.
func (w *Writer) Flush(ctx context.Context) error {
	var msg string
	if w.file != nil && !w.closed {
		lib.Lock()
		if err := w.file.Flush(hdf5.F_SCOPE_GLOBAL); err != nil {
			msg = fmt.Sprintf("flushing %s: %v", w.filename, err)
		}
		lib.Unlock()
	}
	return agree(ctx, w.c, msg)
}

// Close flushes and releases the file. Calling Close twice is a no-op.
// It is not collective.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}
	lib.Lock()
	defer lib.Unlock()
	for name, g := range w.groups {
		g.Close()
		delete(w.groups, name)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", w.filename, err)
	}
	return nil
}

// Read loads a whole dataset with the shape of its dataspace
func Read(filename, path string) (*Array, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, filepath.Base(filename), err)
	}
	lib.Lock()
	defer lib.Unlock()

	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer f.Close()

	if !f.LinkExists(path) {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, filepath.Base(filename), path)
	}
	ds, err := f.OpenDataset(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s:%s: %w", filepath.Base(filename), path, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, fmt.Errorf("%s:%s shape: %w", filepath.Base(filename), path, err)
	}
	a := &Array{Shape: make([]int64, len(dims))}
	for i, d := range dims {
		a.Shape[i] = int64(d)
	}

	dtype, err := ds.Datatype()
	if err != nil {
		return nil, fmt.Errorf("%s:%s: %w", filepath.Base(filename), path, err)
	}
	defer dtype.Close()

	n := a.Len()
	switch dtype.Class() {
	case hdf5.T_FLOAT:
		a.Float = make([]float64, n)
		if n > 0 {
			err = ds.Read(&a.Float)
		}
	case hdf5.T_INTEGER:
		a.Int = make([]int64, n)
		if n > 0 {
			err = ds.Read(&a.Int)
		}
	default:
		return nil, fmt.Errorf("%s:%s: unsupported datatype class %v", filepath.Base(filename), path, dtype.Class())
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s:%s: %w", filepath.Base(filename), path, err)
	}
	return a, nil
}

// agree broadcasts rank 0's error message so every rank fails together
func agree(ctx context.Context, c comm.Communicator, msg string) error {
	msg, err := comm.Broadcast(ctx, c, 0, msg)
	if err != nil {
		return err
	}
	if msg != "" {
		return errors.New("store: " + msg)
	}
	return nil
}

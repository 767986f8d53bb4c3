package xdmf

import (
	"context"
	"sync"
	"testing"

	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/notargets/dgxdmf/partitions"
	"github.com/notargets/dgxdmf/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rankCounts = []int{1, 2, 4}

// encodings returns the encodings this build can write
func encodings() []Encoding {
	out := []Encoding{EncodingASCII}
	if store.Available {
		out = append(out, EncodingHDF5)
	}
	return out
}

// onRanks partitions data over size in-process ranks and calls fn with
// each rank's mesh. The space filling curve partition differs from the
// block partition used by ReadMesh, so round trips cross partitions.
func onRanks(t *testing.T, size int, data *mesh.LocalMeshData,
	fn func(ctx context.Context, c comm.Communicator, m *mesh.Mesh) error) {

	t.Helper()
	err := comm.Run(context.Background(), size, func(ctx context.Context, c comm.Communicator) error {
		var staged *mesh.LocalMeshData
		if c.Rank() == 0 {
			staged = data
		}
		m, err := partitions.Distribute(ctx, c, staged, partitions.SpaceFillingCurve)
		if err != nil {
			return err
		}
		return fn(ctx, c, m)
	})
	require.NoError(t, err)
}

// withFile opens filename on every rank, runs fn and closes the file
func withFile(t *testing.T, size int, data *mesh.LocalMeshData, filename string, opts Options,
	fn func(ctx context.Context, f *File, m *mesh.Mesh) error) {

	t.Helper()
	onRanks(t, size, data, func(ctx context.Context, c comm.Communicator, m *mesh.Mesh) error {
		f, err := Open(ctx, c, filename, opts)
		if err != nil {
			return err
		}
		if err := fn(ctx, f, m); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// meshView is the union of the per-rank pieces of a distributed mesh,
// keyed by global index
type meshView struct {
	mu        sync.Mutex
	cellType  map[string]bool
	degree    map[int]bool
	nv, nc    map[int64]bool
	cells     map[int64][]int64
	coords    map[int64][]float64
	midpoints map[mesh.EdgeKey][]float64
}

func newMeshView() *meshView {
	return &meshView{
		cellType:  map[string]bool{},
		degree:    map[int]bool{},
		nv:        map[int64]bool{},
		nc:        map[int64]bool{},
		cells:     map[int64][]int64{},
		coords:    map[int64][]float64{},
		midpoints: map[mesh.EdgeKey][]float64{},
	}
}

func (v *meshView) add(m *mesh.Mesh) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cellType[m.CellType.String()] = true
	v.degree[m.Degree] = true
	v.nv[m.NumGlobalVertices] = true
	v.nc[m.NumGlobalCells] = true
	for c, vs := range m.Cells {
		row := make([]int64, len(vs))
		for i, lv := range vs {
			row[i] = m.GlobalVertices[lv]
		}
		v.cells[m.GlobalCells[c]] = row
	}
	for lv, g := range m.GlobalVertices {
		v.coords[g] = m.Coordinate(lv)
	}
	for k, x := range m.Midpoints {
		v.midpoints[k] = x
	}
}

// assertMatches checks the view against the staged data it was written
// from. gdim is the geometric dimension expected after reading.
func (v *meshView) assertMatches(t *testing.T, data *mesh.LocalMeshData, gdim int) {
	t.Helper()
	assert.Equal(t, map[string]bool{data.CellType.String(): true}, v.cellType)
	assert.Equal(t, map[int]bool{data.Degree: true}, v.degree)
	assert.Equal(t, map[int64]bool{data.NumGlobalVertices(): true}, v.nv)
	assert.Equal(t, map[int64]bool{data.NumGlobalCells(): true}, v.nc)
	require.Len(t, v.cells, len(data.Cells))
	for g, vs := range data.Cells {
		assert.Equal(t, vs, v.cells[int64(g)], "cell %d", g)
	}
	require.Len(t, v.coords, len(data.Coordinates))
	for g, x := range data.Coordinates {
		want := make([]float64, gdim)
		copy(want, x)
		assert.Equal(t, want, v.coords[int64(g)], "vertex %d", g)
	}
	assert.Len(t, v.midpoints, len(data.Midpoints))
	for _, mp := range data.Midpoints {
		want := make([]float64, gdim)
		copy(want, mp.X)
		assert.Equal(t, want, v.midpoints[mp.Edge], "midpoint of %v", mp.Edge)
	}
}

// readMeshOn reads filename on size ranks and returns the union view
func readMeshOn(t *testing.T, size int, filename string) *meshView {
	t.Helper()
	view := newMeshView()
	err := comm.Run(context.Background(), size, func(ctx context.Context, c comm.Communicator) error {
		f, err := Open(ctx, c, filename, DefaultOptions())
		if err != nil {
			return err
		}
		defer f.Close()
		var m mesh.Mesh
		if err := f.ReadMesh(ctx, &m); err != nil {
			return err
		}
		view.add(&m)
		return nil
	})
	require.NoError(t, err)
	return view
}

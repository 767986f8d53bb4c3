package mesh

import (
	"testing"

	"github.com/notargets/dgxdmf/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUnitMeshes(t *testing.T) {
	tests := []struct {
		name     string
		data     *LocalMeshData
		vertices int
		cells    int
		entities []int // per dimension
	}{
		{"Interval", UnitIntervalMesh(4), 5, 4, []int{5, 4}},
		{"Square", UnitSquareMesh(2, 2), 9, 8, []int{9, 16, 8}},
		{"Quad", UnitQuadMesh(2, 1), 6, 2, []int{6, 7, 2}},
		{"Cube", UnitCubeMesh(1, 1, 1), 8, 6, []int{8, 19, 18, 6}},
		{"Hex", UnitHexMesh(2, 1, 1), 12, 2, []int{12, 20, 11, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build(tt.data)
			require.NoError(t, err)
			require.NoError(t, m.Validate())

			assert.Equal(t, tt.vertices, m.NumVertices())
			assert.Equal(t, tt.cells, m.NumCells())
			assert.Equal(t, int64(tt.vertices), m.NumGlobalVertices)
			assert.Equal(t, int64(tt.cells), m.NumGlobalCells)

			for d, want := range tt.entities {
				if got := m.NumEntities(d); got != want {
					t.Errorf("NumEntities(%d) = %d, want %d", d, got, want)
				}
			}
		})
	}
}

func TestCellEntitiesMatchReference(t *testing.T) {
	m, err := Build(UnitCubeMesh(1, 1, 1))
	require.NoError(t, err)

	for d := 1; d < m.TDim(); d++ {
		ents := m.Entities(d)
		ref := m.CellType.EntityVertices(d)
		for c, cv := range m.Cells {
			for i, e := range ents.CellEntities[c] {
				want := make([]int64, len(ref[i]))
				for j, lv := range ref[i] {
					want[j] = m.GlobalVertices[cv[lv]]
				}
				assert.ElementsMatch(t, want, m.EntityKey(d, e),
					"cell %d entity %d of dim %d", c, i, d)
			}
		}
	}
}

func TestMidpointFallsBackToAverage(t *testing.T) {
	data := UnitSquareMesh(1, 1)
	require.NoError(t, Elevate(data, func(x []float64) []float64 {
		return []float64{x[0], x[1] + 0.25}
	}))
	assert.Equal(t, 2, data.Degree)
	assert.Len(t, data.Midpoints, 5)

	m, err := Build(data)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.25}, m.Midpoint(0, 1), 1e-15)

	delete(m.Midpoints, NewEdgeKey(0, 1))
	assert.InDeltaSlice(t, []float64{0.5, 0}, m.Midpoint(0, 1), 1e-15)

	assert.Error(t, Elevate(UnitQuadMesh(1, 1), nil))
}

func TestValidateRejectsBadStaging(t *testing.T) {
	data := UnitSquareMesh(1, 1)
	data.Cells[0][2] = 99
	_, err := Build(data)
	assert.Error(t, err)

	data = UnitSquareMesh(1, 1)
	data.GDim = 1
	_, err = Build(data)
	assert.Error(t, err)
}

func TestMeshFunction(t *testing.T) {
	m, err := Build(UnitSquareMesh(2, 2))
	require.NoError(t, err)

	f, err := NewMeshFunction[bool]("marker", m, 1)
	require.NoError(t, err)
	assert.Len(t, f.Values, 16)
	f.SetAll(true)
	for _, v := range f.Values {
		assert.True(t, v)
	}

	_, err = NewMeshFunction[int32]("bad", m, 3)
	assert.Error(t, err)
}

func TestMeshValueCollection(t *testing.T) {
	m, err := Build(UnitCubeMesh(1, 1, 1))
	require.NoError(t, err)

	c, err := NewMeshValueCollection[int32]("labels", m, 2)
	require.NoError(t, err)

	require.NoError(t, c.Set(3, 1, 7))
	require.NoError(t, c.Set(0, 2, 5))
	require.NoError(t, c.Set(3, 1, 8)) // replaces
	assert.Error(t, c.Set(6, 0, 1))
	assert.Error(t, c.Set(0, cell.Tetrahedron.NumEntities(2), 1))

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get(3, 1)
	assert.True(t, ok)
	assert.Equal(t, int32(8), v)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, CellEntity{Cell: 0, Local: 2}, entries[0].CellEntity)
	assert.Equal(t, int32(5), entries[0].Value)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

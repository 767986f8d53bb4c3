package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/dgxdmf/cell"
	"gonum.org/v1/gonum/mat"
)

// EdgeKey identifies an edge by its two global vertex indices, smaller first
type EdgeKey [2]int64

// NewEdgeKey returns the key of the edge between global vertices a and b
func NewEdgeKey(a, b int64) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{a, b}
}

// Mesh is one rank's slice of a possibly distributed unstructured mesh.
// Cells hold corner vertices only; quadratic meshes keep their edge
// midpoints in Midpoints.
type Mesh struct {
	Name     string
	CellType cell.Type
	Degree   int // 1 linear, 2 quadratic
	GDim     int

	// Coordinates is NumVertices x GDim; nil when the rank holds no vertices
	Coordinates *mat.Dense
	Cells       [][]int // local vertex indices in internal order

	GlobalVertices    []int64 // local vertex -> global vertex index
	GlobalCells       []int64 // local cell -> global cell index
	NumGlobalVertices int64
	NumGlobalCells    int64

	// Shared maps a local vertex to the other ranks holding a copy, sorted
	Shared map[int][]int

	// Midpoints holds curved edge midpoints keyed by global vertex pair
	Midpoints map[EdgeKey][]float64

	entities map[int]*Entities
}

// TDim returns the topological dimension
func (m *Mesh) TDim() int { return m.CellType.Dim() }

// NumVertices returns the number of local vertices
func (m *Mesh) NumVertices() int { return len(m.GlobalVertices) }

// NumCells returns the number of local cells
func (m *Mesh) NumCells() int { return len(m.Cells) }

// Coordinate returns the coordinates of local vertex v
func (m *Mesh) Coordinate(v int) []float64 {
	return mat.Row(nil, v, m.Coordinates)
}

// NumEntities returns the number of local entities of dimension d
func (m *Mesh) NumEntities(d int) int {
	switch d {
	case 0:
		return m.NumVertices()
	case m.TDim():
		return m.NumCells()
	}
	return len(m.Entities(d).Vertices)
}

// EntityKey returns the sorted global vertex indices of entity e of
// dimension d. The key is identical on every rank holding the entity.
func (m *Mesh) EntityKey(d, e int) []int64 {
	vs := m.Entities(d).Vertices[e]
	key := make([]int64, len(vs))
	for i, v := range vs {
		key[i] = m.GlobalVertices[v]
	}
	sort.Slice(key, func(i, j int) bool { return key[i] < key[j] })
	return key
}

// Midpoint returns the midpoint of the edge between local vertices a and b.
// Registered curved midpoints win over the straight-edge average.
func (m *Mesh) Midpoint(a, b int) []float64 {
	if x, ok := m.Midpoints[NewEdgeKey(m.GlobalVertices[a], m.GlobalVertices[b])]; ok {
		return x
	}
	xa, xb := m.Coordinate(a), m.Coordinate(b)
	mid := make([]float64, len(xa))
	for i := range mid {
		mid[i] = 0.5 * (xa[i] + xb[i])
	}
	return mid
}

// IsShared reports whether local vertex v is held by another rank as well
func (m *Mesh) IsShared(v int) bool { return len(m.Shared[v]) > 0 }

// Validate checks the structural invariants of the mesh
func (m *Mesh) Validate() error {
	if !m.CellType.Valid() {
		return fmt.Errorf("invalid cell type %d", m.CellType)
	}
	if m.Degree != 1 && m.Degree != 2 {
		return fmt.Errorf("invalid degree %d", m.Degree)
	}
	nv := m.NumVertices()
	if m.Coordinates != nil {
		r, c := m.Coordinates.Dims()
		if r != nv || c != m.GDim {
			return fmt.Errorf("coordinates are %dx%d, want %dx%d", r, c, nv, m.GDim)
		}
	} else if nv > 0 {
		return fmt.Errorf("%d vertices without coordinates", nv)
	}
	if len(m.GlobalCells) != len(m.Cells) {
		return fmt.Errorf("%d global cell indices for %d cells", len(m.GlobalCells), len(m.Cells))
	}
	npc := m.CellType.NumVertices()
	for c, vs := range m.Cells {
		if len(vs) != npc {
			return fmt.Errorf("cell %d has %d vertices, want %d", c, len(vs), npc)
		}
		for _, v := range vs {
			if v < 0 || v >= nv {
				return fmt.Errorf("cell %d references vertex %d of %d", c, v, nv)
			}
		}
	}
	for v, g := range m.GlobalVertices {
		if g < 0 || g >= m.NumGlobalVertices {
			return fmt.Errorf("vertex %d has global index %d outside [0,%d)", v, g, m.NumGlobalVertices)
		}
	}
	return nil
}

// newCoordinates packs rows into a Dense, or nil when there are none
func newCoordinates(rows [][]float64, gdim int) *mat.Dense {
	if len(rows) == 0 || gdim == 0 {
		return nil
	}
	data := make([]float64, 0, len(rows)*gdim)
	for _, r := range rows {
		data = append(data, r[:gdim]...)
	}
	return mat.NewDense(len(rows), gdim, data)
}

package mesh

import (
	"sort"

	"github.com/notargets/dgxdmf/cell"
)

// Entities is the local numbering of the mesh entities of one dimension
type Entities struct {
	Dim  int
	Type cell.Type

	// Vertices holds the local vertex list of each entity, oriented as in
	// the first cell that references it
	Vertices [][]int

	// CellEntities maps each cell to its entities in reference-local order
	CellEntities [][]int
}

// Entities returns the entities of dimension d, computing them on first use.
func (m *Mesh) Entities(d int) *Entities {
	if e, ok := m.entities[d]; ok {
		return e
	}
	if m.entities == nil {
		m.entities = make(map[int]*Entities)
	}
	e := m.computeEntities(d)
	m.entities[d] = e
	return e
}

// ResetEntities drops cached entity numberings after the topology changed
func (m *Mesh) ResetEntities() { m.entities = nil }

func (m *Mesh) computeEntities(d int) *Entities {
	tdim := m.TDim()
	et, err := m.CellType.EntityType(d)
	if err != nil {
		return &Entities{Dim: d}
	}
	e := &Entities{Dim: d, Type: et}

	switch d {
	case tdim:
		e.Vertices = m.Cells
		e.CellEntities = make([][]int, len(m.Cells))
		for c := range m.Cells {
			e.CellEntities[c] = []int{c}
		}
		return e
	case 0:
		e.Vertices = make([][]int, m.NumVertices())
		for v := range e.Vertices {
			e.Vertices[v] = []int{v}
		}
		e.CellEntities = m.Cells
		return e
	}

	ref := m.CellType.EntityVertices(d)
	index := make(map[[4]int]int)
	e.CellEntities = make([][]int, len(m.Cells))
	for c, cv := range m.Cells {
		e.CellEntities[c] = make([]int, len(ref))
		for i, local := range ref {
			vs := make([]int, len(local))
			for j, lv := range local {
				vs[j] = cv[lv]
			}
			key := sortedKey(vs)
			idx, ok := index[key]
			if !ok {
				idx = len(e.Vertices)
				index[key] = idx
				e.Vertices = append(e.Vertices, vs)
			}
			e.CellEntities[c][i] = idx
		}
	}
	return e
}

func sortedKey(vs []int) [4]int {
	key := [4]int{-1, -1, -1, -1}
	copy(key[:], vs)
	sort.Ints(key[:len(vs)])
	return key
}

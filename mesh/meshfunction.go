package mesh

import (
	"fmt"
	"sort"
)

// Value is the closed set of types a MeshFunction or MeshValueCollection
// can carry. int32 stands in for a C int and uint64 for a size type.
type Value interface {
	bool | int32 | int64 | uint64 | float64
}

// MeshFunction assigns a value to every local entity of dimension Dim
type MeshFunction[T Value] struct {
	Name   string
	Mesh   *Mesh
	Dim    int
	Values []T
}

// NewMeshFunction returns a zero-valued function on the entities of
// dimension dim of m.
func NewMeshFunction[T Value](name string, m *Mesh, dim int) (*MeshFunction[T], error) {
	if dim < 0 || dim > m.TDim() {
		return nil, fmt.Errorf("dimension %d outside [0,%d]", dim, m.TDim())
	}
	return &MeshFunction[T]{
		Name:   name,
		Mesh:   m,
		Dim:    dim,
		Values: make([]T, m.NumEntities(dim)),
	}, nil
}

// SetAll assigns v to every entity
func (f *MeshFunction[T]) SetAll(v T) {
	for i := range f.Values {
		f.Values[i] = v
	}
}

// CellEntity addresses an entity through a cell and its local index
type CellEntity struct {
	Cell  int
	Local int
}

// Entry is one labelled entity of a MeshValueCollection
type Entry[T Value] struct {
	CellEntity
	Value T
}

// MeshValueCollection is a sparse labelling of entities of dimension Dim,
// addressed by (cell, local entity) pairs.
type MeshValueCollection[T Value] struct {
	Name   string
	Mesh   *Mesh
	Dim    int
	values map[CellEntity]T
}

// NewMeshValueCollection returns an empty collection on m
func NewMeshValueCollection[T Value](name string, m *Mesh, dim int) (*MeshValueCollection[T], error) {
	if dim < 0 || dim > m.TDim() {
		return nil, fmt.Errorf("dimension %d outside [0,%d]", dim, m.TDim())
	}
	return &MeshValueCollection[T]{Name: name, Mesh: m, Dim: dim, values: map[CellEntity]T{}}, nil
}

// Initialized reports whether the collection was created with a dimension
func (c *MeshValueCollection[T]) Initialized() bool { return c.values != nil }

// Set labels entity local of cell with v, replacing any previous value.
func (c *MeshValueCollection[T]) Set(cellIndex, local int, v T) error {
	if cellIndex < 0 || cellIndex >= c.Mesh.NumCells() {
		return fmt.Errorf("cell %d outside [0,%d)", cellIndex, c.Mesh.NumCells())
	}
	if n := c.Mesh.CellType.NumEntities(c.Dim); local < 0 || local >= n {
		return fmt.Errorf("local entity %d outside [0,%d)", local, n)
	}
	if c.values == nil {
		c.values = map[CellEntity]T{}
	}
	c.values[CellEntity{Cell: cellIndex, Local: local}] = v
	return nil
}

// Get returns the value at (cell, local) if it is labelled
func (c *MeshValueCollection[T]) Get(cellIndex, local int) (T, bool) {
	v, ok := c.values[CellEntity{Cell: cellIndex, Local: local}]
	return v, ok
}

// Len returns the number of labelled entities
func (c *MeshValueCollection[T]) Len() int { return len(c.values) }

// Clear removes every label
func (c *MeshValueCollection[T]) Clear() { c.values = map[CellEntity]T{} }

// Entries returns the labels sorted by cell then local index
func (c *MeshValueCollection[T]) Entries() []Entry[T] {
	out := make([]Entry[T], 0, len(c.values))
	for k, v := range c.values {
		out = append(out, Entry[T]{CellEntity: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cell != out[j].Cell {
			return out[i].Cell < out[j].Cell
		}
		return out[i].Local < out[j].Local
	})
	return out
}

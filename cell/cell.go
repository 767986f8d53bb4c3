package cell

import (
	"fmt"
	"strings"
)

// Dimensionality represents the topological dimension of a cell
type Dimensionality uint8

const (
	D0 Dimensionality = iota // 0D cells (points)
	D1                       // 1D cells (intervals, edges)
	D2                       // 2D cells (triangles, quadrilaterals)
	D3                       // 3D cells (tetrahedra, hexahedra)
)

// Type identifies the reference shape of a cell
type Type uint8

const (
	Point Type = iota
	Interval
	Triangle
	Quadrilateral
	Tetrahedron
	Hexahedron
)

// Properties contains metadata describing a cell type
type Properties struct {
	Name        string         // Full descriptive name (e.g., "Tetrahedron")
	ShortName   string         // Abbreviated name (e.g., "tet")
	Type        Type           // Cell shape
	Dimensions  Dimensionality // Topological dimension
	NumVertices int            // Number of corner vertices
	NumEdges    int            // Number of edges
	NumFacets   int            // Number of codimension-1 entities
}

var properties = [...]Properties{
	Point:         {Name: "Point", ShortName: "point", Type: Point, Dimensions: D0, NumVertices: 1},
	Interval:      {Name: "Interval", ShortName: "interval", Type: Interval, Dimensions: D1, NumVertices: 2, NumEdges: 1, NumFacets: 2},
	Triangle:      {Name: "Triangle", ShortName: "tri", Type: Triangle, Dimensions: D2, NumVertices: 3, NumEdges: 3, NumFacets: 3},
	Quadrilateral: {Name: "Quadrilateral", ShortName: "quad", Type: Quadrilateral, Dimensions: D2, NumVertices: 4, NumEdges: 4, NumFacets: 4},
	Tetrahedron:   {Name: "Tetrahedron", ShortName: "tet", Type: Tetrahedron, Dimensions: D3, NumVertices: 4, NumEdges: 6, NumFacets: 4},
	Hexahedron:    {Name: "Hexahedron", ShortName: "hex", Type: Hexahedron, Dimensions: D3, NumVertices: 8, NumEdges: 12, NumFacets: 6},
}

// Valid reports whether t is a known cell type
func (t Type) Valid() bool { return int(t) < len(properties) }

// Properties returns the metadata for t
func (t Type) Properties() Properties {
	if !t.Valid() {
		return Properties{Name: fmt.Sprintf("Type(%d)", t)}
	}
	return properties[t]
}

func (t Type) String() string { return t.Properties().Name }

// Dim returns the topological dimension of t
func (t Type) Dim() int { return int(t.Properties().Dimensions) }

// NumVertices returns the number of corner vertices of t
func (t Type) NumVertices() int { return t.Properties().NumVertices }

// Parse resolves a cell type from its full or short name, case-insensitively
func Parse(name string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, p := range properties {
		if key == strings.ToLower(p.Name) || key == p.ShortName {
			return p.Type, nil
		}
	}
	return 0, fmt.Errorf("unknown cell type %q", name)
}

// EntityType returns the shape of the entities of dimension d of t
func (t Type) EntityType(d int) (Type, error) {
	tdim := t.Dim()
	if d < 0 || d > tdim {
		return 0, fmt.Errorf("%s has no entities of dimension %d", t, d)
	}
	switch {
	case d == tdim:
		return t, nil
	case d == 0:
		return Point, nil
	case d == 1:
		return Interval, nil
	}
	// d == 2 inside a 3D cell
	if t == Hexahedron {
		return Quadrilateral, nil
	}
	return Triangle, nil
}

// NumEntities returns the number of entities of dimension d in one cell
func (t Type) NumEntities(d int) int {
	tdim := t.Dim()
	switch {
	case d < 0 || d > tdim:
		return 0
	case d == tdim:
		return 1
	case d == 0:
		return t.NumVertices()
	case d == 1:
		return t.Properties().NumEdges
	}
	return t.Properties().NumFacets
}

// EntityVertices returns the reference-local vertex lists of the entities of
// dimension d. The returned slices must not be modified.
func (t Type) EntityVertices(d int) [][]int {
	tdim := t.Dim()
	switch {
	case d < 0 || d > tdim:
		return nil
	case d == tdim:
		return [][]int{identity(t.NumVertices())}
	case d == 0:
		vs := make([][]int, t.NumVertices())
		for i := range vs {
			vs[i] = []int{i}
		}
		return vs
	case d == 1:
		return edges[t]
	}
	return faces[t]
}

// NumNodes returns the number of geometry nodes of t at the given order.
// Only linear cells and quadratic simplices are supported.
func (t Type) NumNodes(order int) (int, error) {
	switch order {
	case 1:
		return t.NumVertices(), nil
	case 2:
		if _, ok := quadraticEdges[t]; !ok {
			return 0, fmt.Errorf("%s has no order 2 layout", t)
		}
		return t.NumVertices() + len(quadraticEdges[t]), nil
	}
	return 0, fmt.Errorf("unsupported cell order %d", order)
}

// QuadraticEdges returns, in wire order, the vertex pairs whose midpoints
// follow the corner nodes of an order-2 cell.
func (t Type) QuadraticEdges() [][2]int { return quadraticEdges[t] }

func identity(n int) []int {
	r := make([]int, n)
	for i := range r {
		r[i] = i
	}
	return r
}

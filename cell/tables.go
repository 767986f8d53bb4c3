package cell

// Reference entity tables. Simplices use the UFC convention (entity i is
// opposite vertex i where that makes sense). Quadrilaterals and hexahedra use
// tensor-product vertex numbering, x fastest:
//
//	quad: 0=(0,0) 1=(1,0) 2=(0,1) 3=(1,1)
//	hex:  0..3 as quad at z=0, 4..7 at z=1
var edges = map[Type][][]int{
	Interval:      {{0, 1}},
	Triangle:      {{1, 2}, {0, 2}, {0, 1}},
	Quadrilateral: {{0, 1}, {2, 3}, {0, 2}, {1, 3}},
	Tetrahedron:   {{2, 3}, {1, 3}, {1, 2}, {0, 3}, {0, 2}, {0, 1}},
	Hexahedron: {
		{0, 1}, {2, 3}, {4, 5}, {6, 7},
		{0, 2}, {1, 3}, {4, 6}, {5, 7},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	},
}

var faces = map[Type][][]int{
	Tetrahedron: {{1, 2, 3}, {0, 2, 3}, {0, 1, 3}, {0, 1, 2}},
	Hexahedron: {
		{0, 1, 2, 3}, {4, 5, 6, 7},
		{0, 1, 4, 5}, {2, 3, 6, 7},
		{0, 2, 4, 6}, {1, 3, 5, 7},
	},
}

// wireOrder[t][i] is the internal vertex written at wire position i.
// Wire (XDMF/VTK) quads and hexes walk each face counter-clockwise.
var wireOrder = map[Type][]int{
	Quadrilateral: {0, 1, 3, 2},
	Hexahedron:    {0, 1, 3, 2, 4, 5, 7, 6},
}

// quadraticEdges lists, in wire order, the corner pairs whose midpoints
// make up the tail of an order-2 cell.
var quadraticEdges = map[Type][][2]int{
	Interval:    {{0, 1}},
	Triangle:    {{0, 1}, {1, 2}, {2, 0}},
	Tetrahedron: {{0, 1}, {1, 2}, {2, 0}, {0, 3}, {1, 3}, {2, 3}},
}

// ToWire returns the permutation from internal to wire vertex order:
// wire[i] = internal[ToWire()[i]].
func (t Type) ToWire() []int {
	if p, ok := wireOrder[t]; ok {
		return p
	}
	return identity(t.NumVertices())
}

// FromWire returns the inverse of ToWire: internal[i] = wire[FromWire()[i]].
func (t Type) FromWire() []int {
	p := t.ToWire()
	inv := make([]int, len(p))
	for i, j := range p {
		inv[j] = i
	}
	return inv
}

// Permute returns vs reordered by perm: out[i] = vs[perm[i]].
func Permute[T any](vs []T, perm []int) []T {
	out := make([]T, len(perm))
	for i, j := range perm {
		out[i] = vs[j]
	}
	return out
}

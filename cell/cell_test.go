package cell

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityCounts(t *testing.T) {
	tests := []struct {
		typ    Type
		counts []int // entities per dimension, 0..tdim
	}{
		{Point, []int{1}},
		{Interval, []int{2, 1}},
		{Triangle, []int{3, 3, 1}},
		{Quadrilateral, []int{4, 4, 1}},
		{Tetrahedron, []int{4, 6, 4, 1}},
		{Hexahedron, []int{8, 12, 6, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.Dim(); got != len(tt.counts)-1 {
				t.Fatalf("Dim() = %d, want %d", got, len(tt.counts)-1)
			}
			for d, want := range tt.counts {
				if got := tt.typ.NumEntities(d); got != want {
					t.Errorf("NumEntities(%d) = %d, want %d", d, got, want)
				}
				if got := len(tt.typ.EntityVertices(d)); got != want {
					t.Errorf("len(EntityVertices(%d)) = %d, want %d", d, got, want)
				}
			}
		})
	}
}

func TestEntityVerticesAreDistinct(t *testing.T) {
	for _, typ := range []Type{Triangle, Quadrilateral, Tetrahedron, Hexahedron} {
		for d := 1; d < typ.Dim(); d++ {
			et, err := typ.EntityType(d)
			if err != nil {
				t.Fatalf("%s: %v", typ, err)
			}
			seen := make(map[[4]int]bool)
			for i, vs := range typ.EntityVertices(d) {
				if len(vs) != et.NumVertices() {
					t.Errorf("%s entity %d of dim %d has %d vertices, want %d",
						typ, i, d, len(vs), et.NumVertices())
				}
				key := [4]int{-1, -1, -1, -1}
				sorted := append([]int(nil), vs...)
				sort.Ints(sorted)
				copy(key[:], sorted)
				if seen[key] {
					t.Errorf("%s entity %d of dim %d repeats vertices %v", typ, i, d, vs)
				}
				seen[key] = true
			}
		}
	}
}

func TestWireOrderRoundTrip(t *testing.T) {
	for _, typ := range []Type{Interval, Triangle, Quadrilateral, Tetrahedron, Hexahedron} {
		internal := make([]int, typ.NumVertices())
		for i := range internal {
			internal[i] = 10 * i
		}
		wire := Permute(internal, typ.ToWire())
		back := Permute(wire, typ.FromWire())
		assert.Equal(t, internal, back, typ.String())
	}

	// Hex wire order walks the bottom face counter-clockwise
	assert.Equal(t, []int{0, 1, 3, 2, 4, 5, 7, 6}, Hexahedron.ToWire())
}

func TestNumNodes(t *testing.T) {
	tests := []struct {
		typ   Type
		order int
		want  int
		fails bool
	}{
		{Triangle, 1, 3, false},
		{Triangle, 2, 6, false},
		{Tetrahedron, 2, 10, false},
		{Interval, 2, 3, false},
		{Hexahedron, 2, 0, true},
		{Triangle, 3, 0, true},
	}
	for _, tt := range tests {
		got, err := tt.typ.NumNodes(tt.order)
		if tt.fails {
			assert.Error(t, err, "%s order %d", tt.typ, tt.order)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s order %d", tt.typ, tt.order)
	}
}

func TestParse(t *testing.T) {
	for _, name := range []string{"tetrahedron", "TET", "Tetrahedron"} {
		got, err := Parse(name)
		assert.NoError(t, err)
		assert.Equal(t, Tetrahedron, got)
	}
	_, err := Parse("prism")
	assert.Error(t, err)
}

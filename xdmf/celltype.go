package xdmf

import (
	"fmt"
	"strings"

	"github.com/notargets/dgxdmf/cell"
)

// shapeOrder identifies a wire cell layout
type shapeOrder struct {
	Type   cell.Type
	Degree int
}

// topologyTypes is the single mapping between cell layouts and XDMF
// TopologyType names; both directions are derived from it.
var topologyTypes = []struct {
	key   shapeOrder
	name  string
	nodes int
}{
	{shapeOrder{cell.Point, 1}, "Polyvertex", 1},
	{shapeOrder{cell.Interval, 1}, "Polyline", 2},
	{shapeOrder{cell.Interval, 2}, "Edge_3", 3},
	{shapeOrder{cell.Triangle, 1}, "Triangle", 3},
	{shapeOrder{cell.Triangle, 2}, "Triangle_6", 6},
	{shapeOrder{cell.Quadrilateral, 1}, "Quadrilateral", 4},
	{shapeOrder{cell.Tetrahedron, 1}, "Tetrahedron", 4},
	{shapeOrder{cell.Tetrahedron, 2}, "Tetrahedron_10", 10},
	{shapeOrder{cell.Hexahedron, 1}, "Hexahedron", 8},
}

// topologyName returns the XDMF TopologyType and nodes per element of a
// cell layout
func topologyName(t cell.Type, degree int) (string, int, error) {
	for _, tt := range topologyTypes {
		if tt.key == (shapeOrder{t, degree}) {
			return tt.name, tt.nodes, nil
		}
	}
	return "", 0, fmt.Errorf("%w: no XDMF topology for %s of degree %d", ErrConfiguration, t, degree)
}

// parseTopologyType is the inverse of topologyName. Names compare
// case-insensitively.
func parseTopologyType(name string) (shapeOrder, int, error) {
	for _, tt := range topologyTypes {
		if strings.EqualFold(tt.name, strings.TrimSpace(name)) {
			return tt.key, tt.nodes, nil
		}
	}
	return shapeOrder{}, 0, fmt.Errorf("%w: unrecognised TopologyType %q", ErrFormat, name)
}

// geometryType returns the GeometryType for coordinates of dimension gdim.
// One dimensional coordinates are padded to XY.
func geometryType(gdim int) (string, int) {
	if gdim == 3 {
		return "XYZ", 3
	}
	return "XY", 2
}

// parseGeometryType returns the coordinate width of a GeometryType
func parseGeometryType(name string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "XY":
		return 2, nil
	case "XYZ":
		return 3, nil
	}
	return 0, fmt.Errorf("%w: unsupported GeometryType %q", ErrFormat, name)
}

// quadraticEdgeEntities maps each order-2 node pair of t to the index of
// the matching edge in the reference entity table, so that the midpoint of
// pair i is edge quadraticEdgeEntities(t)[i] of the cell.
func quadraticEdgeEntities(t cell.Type) []int {
	pairs := t.QuadraticEdges()
	ref := t.EntityVertices(1)
	out := make([]int, len(pairs))
	for i, p := range pairs {
		for e, vs := range ref {
			if (vs[0] == p[0] && vs[1] == p[1]) || (vs[0] == p[1] && vs[1] == p[0]) {
				out[i] = e
			}
		}
	}
	return out
}

package xdmf

import (
	"context"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
)

// addMesh appends the topology of the entities of dimension dim and the
// mesh geometry to grid
func addMesh(ctx context.Context, w *writeTarget, grid *etree.Element, m *mesh.Mesh, dim int, prefix string) error {
	if err := addTopology(ctx, w, grid, m, dim, prefix+"/topology"); err != nil {
		return err
	}
	return addGeometry(ctx, w, grid, m, prefix+"/geometry")
}

// addTopology writes the entities of dimension dim as rows of global node
// indices in wire vertex order. Cells of quadratic meshes list their
// corners and then the node of each edge midpoint.
func addTopology(ctx context.Context, w *writeTarget, grid *etree.Element, m *mesh.Mesh, dim int, path string) error {
	et, err := m.CellType.EntityType(dim)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	degree := 1
	if dim == m.TDim() && m.Degree == 2 {
		degree = 2
	}
	name, nodes, err := topologyName(et, degree)
	if err != nil {
		return err
	}

	var edges *numbering
	var cellEdges [][]int
	var quadEdges []int
	if degree == 2 {
		if edges, err = numberEntities(ctx, w.c, m, 1); err != nil {
			return err
		}
		cellEdges = m.Entities(1).CellEntities
		quadEdges = quadraticEdgeEntities(m.CellType)
	}

	ents := m.Entities(dim)
	wire := et.ToWire()
	rows, err := ownedEntityRows(ctx, w.c, m, dim, func(e int) []int64 {
		vs := ents.Vertices[e]
		row := make([]int64, 0, nodes)
		for _, i := range wire {
			row = append(row, m.GlobalVertices[vs[i]])
		}
		for _, le := range quadEdges {
			row = append(row, m.NumGlobalVertices+edges.global[cellEdges[e][le]])
		}
		return row
	})
	if err != nil {
		return err
	}
	return writeTopology(ctx, w, grid, name, nodes, rows, path)
}

// writeTopology appends a Topology node holding this rank's rows
func writeTopology(ctx context.Context, w *writeTarget, grid *etree.Element,
	name string, nodes int, rows [][]int64, path string) error {

	total, err := comm.AllReduceSum(ctx, w.c, int64(len(rows)))
	if err != nil {
		return err
	}
	topo := grid.CreateElement("Topology")
	topo.CreateAttr("TopologyType", name)
	topo.CreateAttr("NumberOfElements", strconv.FormatInt(total, 10))
	topo.CreateAttr("NodesPerElement", strconv.Itoa(nodes))
	_, err = writeDataItem(ctx, w, topo, path, flatten(rows, nodes), []int64{int64(len(rows)), int64(nodes)})
	return err
}

// addGeometry writes the node coordinates: vertices by global index, then
// for quadratic meshes the edge midpoints by global edge index. One
// dimensional coordinates are padded to XY.
func addGeometry(ctx context.Context, w *writeTarget, grid *etree.Element, m *mesh.Mesh, path string) error {
	gtype, width := geometryType(m.GDim)
	pad := func(x []float64) []float64 {
		row := make([]float64, width)
		copy(row, x)
		return row
	}
	rows, _, err := nodeRows(ctx, w.c, m,
		func(v int) []float64 { return pad(m.Coordinate(v)) },
		func(e int) []float64 {
			vs := m.Entities(1).Vertices[e]
			return pad(m.Midpoint(vs[0], vs[1]))
		})
	if err != nil {
		return err
	}

	geom := grid.CreateElement("Geometry")
	geom.CreateAttr("GeometryType", gtype)
	_, err = writeDataItem(ctx, w, geom, path, flatten(rows, width), []int64{int64(len(rows)), int64(width)})
	return err
}

// nodeRows returns this rank's block of per-node rows. Nodes are the
// vertices in global order followed, on quadratic meshes, by one node per
// edge at NumGlobalVertices + global edge index. It also returns the
// global node count.
func nodeRows[T any](ctx context.Context, c comm.Communicator, m *mesh.Mesh,
	vertexRow, edgeRow func(i int) []T) ([][]T, int64, error) {

	verts, err := numberEntities(ctx, c, m, 0)
	if err != nil {
		return nil, 0, err
	}
	var index []int64
	var rows [][]T
	for v, o := range verts.owned {
		if o {
			index = append(index, m.GlobalVertices[v])
			rows = append(rows, vertexRow(v))
		}
	}
	n := m.NumGlobalVertices
	if m.Degree == 2 {
		edges, err := numberEntities(ctx, c, m, 1)
		if err != nil {
			return nil, 0, err
		}
		for e, o := range edges.owned {
			if o {
				index = append(index, n+edges.global[e])
				rows = append(rows, edgeRow(e))
			}
		}
		n += edges.total
	}
	block, err := distributeByGlobalIndex(ctx, c, n, index, rows)
	if err != nil {
		return nil, 0, err
	}
	return block, n, nil
}

// addPoints writes a point cloud as a Polyvertex grid. Each rank passes
// its own points; values may be nil on every rank.
func addPoints(ctx context.Context, w *writeTarget, grid *etree.Element,
	points [][3]float64, values []float64, prefix string) error {

	if values != nil && len(values) != len(points) {
		return fmt.Errorf("%w: %d values for %d points", ErrDimensionMismatch, len(values), len(points))
	}
	n := int64(len(points))
	offset, total, err := comm.ExclusiveScan(ctx, w.c, n)
	if err != nil {
		return err
	}
	var hasValues int64
	if values != nil {
		hasValues = 1
	}
	if hasValues, err = comm.AllReduceSum(ctx, w.c, hasValues); err != nil {
		return err
	}

	topo := grid.CreateElement("Topology")
	topo.CreateAttr("TopologyType", "Polyvertex")
	topo.CreateAttr("NumberOfElements", strconv.FormatInt(total, 10))
	topo.CreateAttr("NodesPerElement", "1")
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = offset + int64(i)
	}
	if _, err := writeDataItem(ctx, w, topo, prefix+"/topology", ids, []int64{n, 1}); err != nil {
		return err
	}

	geom := grid.CreateElement("Geometry")
	geom.CreateAttr("GeometryType", "XYZ")
	coords := make([]float64, 0, 3*n)
	for _, p := range points {
		coords = append(coords, p[:]...)
	}
	if _, err := writeDataItem(ctx, w, geom, prefix+"/geometry", coords, []int64{n, 3}); err != nil {
		return err
	}

	if hasValues == 0 {
		return nil
	}
	if values == nil {
		values = []float64{}
	}
	attr := addAttribute(grid, "Point values", "Scalar", "Node")
	_, err = writeDataItem(ctx, w, attr, prefix+"/values", values, []int64{n})
	return err
}

// addAttribute appends an empty Attribute node
func addAttribute(grid *etree.Element, name, kind, center string) *etree.Element {
	attr := grid.CreateElement("Attribute")
	attr.CreateAttr("Name", name)
	attr.CreateAttr("AttributeType", kind)
	attr.CreateAttr("Center", center)
	return attr
}

// flatten concatenates rows of the given width
func flatten[T any](rows [][]T, width int) []T {
	out := make([]T, 0, len(rows)*width)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

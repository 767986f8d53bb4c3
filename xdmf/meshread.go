package xdmf

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/cell"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/notargets/dgxdmf/partitions"
)

// WriteMesh starts a fresh document holding m's topology and geometry
func (f *File) WriteMesh(ctx context.Context, m *mesh.Mesh, enc Encoding) error {
	if err := agree(ctx, f.c, checkMesh(m)); err != nil {
		return err
	}
	return f.write(ctx, "mesh", enc, true, func(w *writeTarget, domain *etree.Element) error {
		grid := newGrid(domain, meshName(m))
		return addMesh(ctx, w, grid, m, m.TDim(), f.meshPath("Mesh"))
	})
}

func checkMesh(m *mesh.Mesh) error {
	if m == nil {
		return fmt.Errorf("%w: nil mesh", ErrConfiguration)
	}
	if _, _, err := topologyName(m.CellType, m.Degree); err != nil {
		return err
	}
	return nil
}

func meshName(m *mesh.Mesh) string {
	if m.Name == "" {
		return "mesh"
	}
	return m.Name
}

// ReadMesh replaces *m with the mesh of the first grid carrying a
// Topology. Rank 0 parses the file; with more than one rank the cells are
// then partitioned in contiguous blocks.
func (f *File) ReadMesh(ctx context.Context, m *mesh.Mesh) error {
	domain, err := f.load(ctx)
	if err != nil {
		return err
	}

	var data *mesh.LocalMeshData
	if f.c.Rank() == 0 {
		grid := firstMeshGrid(domain)
		if grid == nil {
			err = fmt.Errorf("%w: %s has no grid with a Topology", ErrFormat, f.filename)
		} else {
			data, err = readMeshData(grid, f.dir())
		}
	}
	if err := agree(ctx, f.c, err); err != nil {
		return err
	}

	var built *mesh.Mesh
	if f.c.Size() == 1 {
		built, err = mesh.Build(data)
	} else {
		built, err = partitions.Distribute(ctx, f.c, data, partitions.BlockPartition)
	}
	if err := agree(ctx, f.c, err); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	f.log.Debug().Int("cells", built.NumCells()).Int("vertices", built.NumVertices()).Msg("read mesh")
	*m = *built
	return nil
}

// readMeshData stages the topology and geometry of grid
func readMeshData(grid *etree.Element, dir string) (*mesh.LocalMeshData, error) {
	topo := grid.SelectElement("Topology")
	if topo == nil {
		return nil, fmt.Errorf("%w: grid without Topology", ErrFormat)
	}
	geom := grid.SelectElement("Geometry")
	if geom == nil {
		return nil, fmt.Errorf("%w: grid without Geometry", ErrFormat)
	}

	so, nodes, conn, err := readTopology(topo, dir)
	if err != nil {
		return nil, err
	}
	width, err := parseGeometryType(geom.SelectAttrValue("GeometryType", ""))
	if err != nil {
		return nil, err
	}
	coords, shape, err := readDataItem[float64](geom.SelectElement("DataItem"), dir)
	if err != nil {
		return nil, err
	}
	if len(shape) == 2 && shape[1] != int64(width) {
		return nil, fmt.Errorf("%w: %s geometry with %d columns", ErrFormat,
			geom.SelectAttrValue("GeometryType", ""), shape[1])
	}
	if len(coords)%width != 0 {
		return nil, fmt.Errorf("%w: %d coordinates do not divide into rows of %d", ErrFormat, len(coords), width)
	}
	nn := int64(len(coords) / width)
	for i, g := range conn {
		if g < 0 || g >= nn {
			return nil, fmt.Errorf("%w: topology entry %d references node %d of %d", ErrFormat, i, g, nn)
		}
	}
	node := func(g int64) []float64 {
		x := make([]float64, width)
		copy(x, coords[g*int64(width):(g+1)*int64(width)])
		return x
	}

	data := &mesh.LocalMeshData{
		Name:     grid.SelectAttrValue("Name", ""),
		CellType: so.Type,
		Degree:   so.Degree,
		GDim:     width,
	}
	nc := len(conn) / nodes
	nv := so.Type.NumVertices()
	fromWire := so.Type.FromWire()

	if so.Degree == 1 {
		data.Coordinates = make([][]float64, nn)
		for g := range data.Coordinates {
			data.Coordinates[g] = node(int64(g))
		}
		data.Cells = make([][]int64, nc)
		for c := range data.Cells {
			data.Cells[c] = cell.Permute(conn[c*nodes:c*nodes+nv], fromWire)
		}
		return data, nil
	}

	// corner nodes become vertices numbered in ascending node order
	corner := map[int64]int64{}
	for c := 0; c < nc; c++ {
		for _, g := range conn[c*nodes : c*nodes+nv] {
			corner[g] = 0
		}
	}
	order := make([]int64, 0, len(corner))
	for g := range corner {
		order = append(order, g)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	data.Coordinates = make([][]float64, len(order))
	for v, g := range order {
		corner[g] = int64(v)
		data.Coordinates[v] = node(g)
	}

	pairs := so.Type.QuadraticEdges()
	seen := map[mesh.EdgeKey]bool{}
	data.Cells = make([][]int64, nc)
	for c := range data.Cells {
		row := conn[c*nodes : (c+1)*nodes]
		vs := make([]int64, nv)
		for i, g := range row[:nv] {
			vs[i] = corner[g]
		}
		data.Cells[c] = cell.Permute(vs, fromWire)
		for i, p := range pairs {
			key := mesh.NewEdgeKey(vs[p[0]], vs[p[1]])
			if seen[key] {
				continue
			}
			seen[key] = true
			data.Midpoints = append(data.Midpoints, mesh.EdgeMidpoint{Edge: key, X: node(row[nv+i])})
		}
	}
	return data, nil
}

// readTopology parses a Topology node into its shape, nodes per element
// and flat connectivity.
func readTopology(topo *etree.Element, dir string) (shapeOrder, int, []int64, error) {
	so, nodes, err := parseTopologyType(topo.SelectAttrValue("TopologyType", ""))
	if err != nil {
		return so, 0, nil, err
	}
	if s := topo.SelectAttrValue("NodesPerElement", ""); s != "" {
		if n, err := strconv.Atoi(s); err != nil || n != nodes {
			return so, 0, nil, fmt.Errorf("%w: NodesPerElement %q for %s", ErrFormat, s, so.Type)
		}
	}
	ne, err := strconv.ParseInt(topo.SelectAttrValue("NumberOfElements", ""), 10, 64)
	if err != nil || ne < 0 {
		return so, 0, nil, fmt.Errorf("%w: bad NumberOfElements %q", ErrFormat,
			topo.SelectAttrValue("NumberOfElements", ""))
	}
	conn, _, err := readDataItem[int64](topo.SelectElement("DataItem"), dir)
	if err != nil {
		return so, 0, nil, err
	}
	if int64(len(conn)) != ne*int64(nodes) {
		return so, 0, nil, fmt.Errorf("%w: %d elements of %d nodes declared, %d indices found",
			ErrFormat, ne, nodes, len(conn))
	}
	return so, nodes, conn, nil
}

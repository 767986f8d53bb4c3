package xdmf

import (
	"context"
	"fmt"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/fem"
	"github.com/notargets/dgxdmf/mesh"
)

// WriteFunction starts a fresh document holding u and its mesh
func (f *File) WriteFunction(ctx context.Context, u *fem.Function, enc Encoding) error {
	if err := agree(ctx, f.c, checkFunction(u)); err != nil {
		return err
	}
	return f.write(ctx, "function", enc, true, func(w *writeTarget, domain *etree.Element) error {
		grid := newGrid(domain, meshName(u.Mesh))
		if err := addMesh(ctx, w, grid, u.Mesh, u.Mesh.TDim(), f.meshPath("Mesh")); err != nil {
			return err
		}
		return addFunction(ctx, w, grid, u, f.meshPath("VisualisationVector"))
	})
}

// WriteFunctionAt appends u at time t to its temporal collection. The mesh
// is written for the first step and again for every step while
// RewriteFunctionMesh is set; other steps include the last written one.
func (f *File) WriteFunctionAt(ctx context.Context, u *fem.Function, t float64, enc Encoding) error {
	if err := agree(ctx, f.c, checkFunction(u)); err != nil {
		return err
	}
	return f.write(ctx, "function", enc, false, func(w *writeTarget, domain *etree.Element) error {
		name := "TimeSeries_" + u.Name
		if f.opts.FunctionsShareMesh {
			name = "TimeSeries"
		}
		coll := temporalCollection(domain, name)
		steps := coll.SelectElements("Grid")

		if f.opts.FunctionsShareMesh && len(steps) > 0 {
			last := steps[len(steps)-1]
			if tv, ok := gridTime(last); ok && tv == t {
				return addFunction(ctx, w, last, u, f.meshPath("VisualisationVector"))
			}
		}

		grid := newGrid(coll, fmt.Sprintf("%s_%d", meshName(u.Mesh), f.counter))
		grid.CreateElement("Time").CreateAttr("Value", formatTime(t))
		if len(steps) == 0 || f.opts.RewriteFunctionMesh {
			if err := addMesh(ctx, w, grid, u.Mesh, u.Mesh.TDim(), f.meshPath("Mesh")); err != nil {
				return err
			}
		} else {
			var src *etree.Element
			for _, s := range steps {
				if s.SelectElement("Topology") != nil {
					src = s
				}
			}
			if src == nil {
				return fmt.Errorf("%w: collection %s holds no mesh to include", ErrFormat, name)
			}
			inc := grid.CreateElement("xi:include")
			inc.CreateAttr("xpointer", includePointer(name, src.SelectAttrValue("Name", "")))
		}
		return addFunction(ctx, w, grid, u, f.meshPath("VisualisationVector"))
	})
}

func checkFunction(u *fem.Function) error {
	if u == nil || u.Mesh == nil {
		return fmt.Errorf("%w: function without a mesh", ErrConfiguration)
	}
	if err := u.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	return checkMesh(u.Mesh)
}

// addFunction appends u as an Attribute of grid. Rows are padded to 1, 3
// or 9 components. Vertex fields follow the geometry node layout, so on
// quadratic meshes a degree 1 field is extended to the edge nodes by the
// average of the edge's end values.
func addFunction(ctx context.Context, w *writeTarget, grid *etree.Element, u *fem.Function, path string) error {
	m := u.Mesh
	width := u.PaddedWidth()
	var rows [][]float64
	var err error
	center := "Node"
	if u.CellCentred {
		center = "Cell"
		rows, err = ownedEntityRows(ctx, w.c, m, m.TDim(), func(c int) []float64 {
			return u.Pad(u.Row(c))
		})
	} else {
		rows, _, err = nodeRows(ctx, w.c, m,
			func(v int) []float64 { return u.Pad(u.Row(v)) },
			func(e int) []float64 {
				if u.Degree == 2 {
					return u.Pad(u.EdgeRow(e))
				}
				vs := m.Entities(1).Vertices[e]
				a, b := u.Row(vs[0]), u.Row(vs[1])
				avg := make([]float64, len(a))
				for i := range avg {
					avg[i] = 0.5 * (a[i] + b[i])
				}
				return u.Pad(avg)
			})
	}
	if err != nil {
		return err
	}

	attr := addAttribute(grid, u.Name, u.RankName(), center)
	shape := []int64{int64(len(rows))}
	if width > 1 {
		shape = append(shape, int64(width))
	}
	_, err = writeDataItem(ctx, w, attr, path, flatten(rows, width), shape)
	return err
}

// ReadFunction fills u from the last attribute named name in the file
func (f *File) ReadFunction(ctx context.Context, u *fem.Function, name string) error {
	return f.readFunction(ctx, u, name, nil)
}

// ReadFunctionAt fills u from the attribute named name at time t
func (f *File) ReadFunctionAt(ctx context.Context, u *fem.Function, name string, t float64) error {
	return f.readFunction(ctx, u, name, &t)
}

func (f *File) readFunction(ctx context.Context, u *fem.Function, name string, t *float64) error {
	if err := agree(ctx, f.c, checkFunction(u)); err != nil {
		return err
	}
	m := u.Mesh
	domain, err := f.load(ctx)
	if err != nil {
		return err
	}

	var values, edgeValues []float64
	err = func() error {
		var keep func(g *etree.Element) bool
		if t != nil {
			keep = func(g *etree.Element) bool {
				tv, ok := gridTime(g)
				return ok && tv == *t
			}
		}
		grid, attr := findAttribute(domain, name, true, keep)
		if attr == nil {
			if t != nil {
				return fmt.Errorf("%w: attribute %q at time %s", ErrNotFound, name, formatTime(*t))
			}
			return fmt.Errorf("%w: attribute %q", ErrNotFound, name)
		}
		if center := attr.SelectAttrValue("Center", ""); (center == "Cell") != u.CellCentred {
			return fmt.Errorf("%w: attribute %q has Center %s", ErrDimensionMismatch, name, center)
		}
		vals, shape, err := readDataItem[float64](attr.SelectElement("DataItem"), f.dir())
		if err != nil {
			return err
		}
		width := int64(1)
		if len(shape) > 1 {
			width = shape[1]
		}
		if width != int64(u.PaddedWidth()) {
			return fmt.Errorf("%w: attribute %q has %d components, want %d",
				ErrDimensionMismatch, name, width, u.PaddedWidth())
		}
		nrows := int64(len(vals)) / width
		row := func(g int64) []float64 { return u.Unpad(vals[g*width : (g+1)*width]) }

		if u.CellCentred {
			if nrows != m.NumGlobalCells {
				return fmt.Errorf("%w: %d rows for %d cells", ErrDimensionMismatch, nrows, m.NumGlobalCells)
			}
			for _, g := range m.GlobalCells {
				values = append(values, row(g)...)
			}
			return nil
		}

		var edgeNode map[mesh.EdgeKey]int64
		if m.Degree == 2 {
			if edgeNode, err = edgeNodes(grid, f.dir()); err != nil {
				return err
			}
		}
		want := m.NumGlobalVertices + int64(len(edgeNode))
		if nrows != want {
			return fmt.Errorf("%w: %d rows for %d nodes", ErrDimensionMismatch, nrows, want)
		}
		for _, g := range m.GlobalVertices {
			values = append(values, row(g)...)
		}
		if u.Degree == 2 {
			for e := 0; e < m.NumEntities(1); e++ {
				k := m.EntityKey(1, e)
				g, ok := edgeNode[mesh.NewEdgeKey(k[0], k[1])]
				if !ok || g < 0 || g >= nrows {
					return fmt.Errorf("%w: attribute %q has no node for edge %v", ErrFormat, name, k)
				}
				edgeValues = append(edgeValues, row(g)...)
			}
		}
		return nil
	}()
	if err := agree(ctx, f.c, err); err != nil {
		return err
	}
	if values == nil {
		values = []float64{}
	}
	u.Values = values
	if u.Degree == 2 {
		u.EdgeValues = edgeValues
	}
	return nil
}

// TimeValues returns the time of every step carrying attribute name, in
// file order
func (f *File) TimeValues(ctx context.Context, name string) ([]float64, error) {
	domain, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, g := range grids(domain) {
		tv, ok := gridTime(g)
		if !ok {
			continue
		}
		for _, a := range g.SelectElements("Attribute") {
			if a.SelectAttrValue("Name", "") == name {
				out = append(out, tv)
				break
			}
		}
	}
	return out, nil
}

// edgeNodes maps the global corner pair of every quadratic edge in the
// topology of grid to the node carrying its midpoint. Corner nodes are
// global vertex indices.
func edgeNodes(grid *etree.Element, dir string) (map[mesh.EdgeKey]int64, error) {
	topo := grid.SelectElement("Topology")
	if topo == nil {
		return nil, fmt.Errorf("%w: grid %q has no Topology", ErrFormat, grid.SelectAttrValue("Name", ""))
	}
	so, nodes, conn, err := readTopology(topo, dir)
	if err != nil {
		return nil, err
	}
	if so.Degree != 2 {
		return nil, fmt.Errorf("%w: %s topology has no edge nodes", ErrDimensionMismatch, so.Type)
	}
	nv := so.Type.NumVertices()
	pairs := so.Type.QuadraticEdges()
	out := map[mesh.EdgeKey]int64{}
	for c := 0; c+nodes <= len(conn); c += nodes {
		row := conn[c : c+nodes]
		for i, p := range pairs {
			out[mesh.NewEdgeKey(row[p[0]], row[p[1]])] = row[nv+i]
		}
	}
	return out, nil
}

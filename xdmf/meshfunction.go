package xdmf

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/mesh"
)

// WriteMeshFunction appends mf to the current document. A grid already
// holding the same entities is reused; otherwise one is added with the
// topology of dimension mf.Dim.
func WriteMeshFunction[T mesh.Value](ctx context.Context, f *File, mf *mesh.MeshFunction[T], enc Encoding) error {
	if err := agree(ctx, f.c, checkMeshFunction(mf)); err != nil {
		return err
	}
	return f.write(ctx, "meshfunction", enc, false, func(w *writeTarget, domain *etree.Element) error {
		m, dim := mf.Mesh, mf.Dim
		et, err := m.CellType.EntityType(dim)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		degree := 1
		if dim == m.TDim() {
			degree = m.Degree
		}
		tname, _, err := topologyName(et, degree)
		if err != nil {
			return err
		}
		num, err := numberEntities(ctx, f.c, m, dim)
		if err != nil {
			return err
		}

		grid := matchingGrid(domain, tname, num.total)
		if grid == nil {
			grid = newGrid(domain, meshName(m))
			if err := addMesh(ctx, w, grid, m, dim, f.meshPath("MeshFunction")+"/mesh"); err != nil {
				return err
			}
		}

		rows, err := ownedEntityRows(ctx, f.c, m, dim, func(e int) []T { return []T{mf.Values[e]} })
		if err != nil {
			return err
		}
		center := "Cell"
		if dim == 0 && m.Degree == 1 {
			center = "Node"
		}
		attr := addAttribute(grid, mf.Name, "Scalar", center)
		_, err = writeDataItem(ctx, w, attr, f.meshPath("MeshFunction")+"/values",
			flatten(rows, 1), []int64{int64(len(rows))})
		return err
	})
}

func checkMeshFunction[T mesh.Value](mf *mesh.MeshFunction[T]) error {
	if mf == nil || mf.Mesh == nil {
		return fmt.Errorf("%w: mesh function without a mesh", ErrConfiguration)
	}
	if mf.Dim < 0 || mf.Dim > mf.Mesh.TDim() {
		return fmt.Errorf("%w: mesh function %s on dimension %d", ErrDimensionMismatch, mf.Name, mf.Dim)
	}
	if n := mf.Mesh.NumEntities(mf.Dim); len(mf.Values) != n {
		return fmt.Errorf("%w: mesh function %s has %d values for %d entities",
			ErrDimensionMismatch, mf.Name, len(mf.Values), n)
	}
	return nil
}

// matchingGrid returns the first Uniform grid of the domain whose topology
// has the given type and element count
func matchingGrid(domain *etree.Element, topologyType string, total int64) *etree.Element {
	want := strconv.FormatInt(total, 10)
	for _, g := range domain.SelectElements("Grid") {
		if !isUniform(g) {
			continue
		}
		topo := g.SelectElement("Topology")
		if topo == nil {
			continue
		}
		if topo.SelectAttrValue("TopologyType", "") == topologyType &&
			topo.SelectAttrValue("NumberOfElements", "") == want {
			return g
		}
	}
	return nil
}

// ReadMeshFunction fills mf from the attribute named name, or the first
// attribute when name is empty. Entities are matched by their global
// vertices, so any partition of the same mesh can read the file. mf.Dim is
// taken from the file unless values are already present.
func ReadMeshFunction[T mesh.Value](ctx context.Context, f *File, mf *mesh.MeshFunction[T], name string) error {
	if mf == nil || mf.Mesh == nil {
		return agree(ctx, f.c, fmt.Errorf("%w: mesh function without a mesh", ErrConfiguration))
	}
	domain, err := f.load(ctx)
	if err != nil {
		return err
	}

	m := mf.Mesh
	var dim int
	var values []T
	err = func() error {
		grid, attr := findAttribute(domain, name, false, nil)
		if attr == nil {
			return fmt.Errorf("%w: attribute %q", ErrNotFound, name)
		}
		topo := grid.SelectElement("Topology")
		if topo == nil {
			return fmt.Errorf("%w: attribute %q sits on a grid without Topology", ErrFormat, name)
		}
		so, nodes, conn, err := readTopology(topo, f.dir())
		if err != nil {
			return err
		}
		dim = so.Type.Dim()
		if mf.Values != nil && mf.Dim != dim {
			return fmt.Errorf("%w: mesh function has dimension %d, file has %d", ErrDimensionMismatch, mf.Dim, dim)
		}
		if dim > m.TDim() {
			return fmt.Errorf("%w: %s entities on a %s mesh", ErrDimensionMismatch, so.Type, m.CellType)
		}
		vals, _, err := readDataItem[T](attr.SelectElement("DataItem"), f.dir())
		if err != nil {
			return err
		}
		rows := len(conn) / nodes
		if len(vals) != rows {
			return fmt.Errorf("%w: %d values for %d entities", ErrFormat, len(vals), rows)
		}

		nv := so.Type.NumVertices()
		index := make(map[string]int, rows)
		for i := 0; i < rows; i++ {
			vs := append([]int64(nil), conn[i*nodes:i*nodes+nv]...)
			sort.Slice(vs, func(a, b int) bool { return vs[a] < vs[b] })
			index[fmt.Sprint(vs)] = i
		}
		values = make([]T, m.NumEntities(dim))
		for e := range values {
			i, ok := index[fmt.Sprint(m.EntityKey(dim, e))]
			if !ok {
				return fmt.Errorf("%w: local %d-entity %d (vertices %v) missing from %q",
					ErrFormat, dim, e, m.EntityKey(dim, e), name)
			}
			values[e] = vals[i]
		}
		return nil
	}()
	if err := agree(ctx, f.c, err); err != nil {
		return err
	}
	mf.Dim = dim
	mf.Values = values
	if mf.Name == "" {
		mf.Name = name
	}
	return nil
}

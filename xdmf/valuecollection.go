package xdmf

import (
	"context"
	"fmt"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/mesh"
)

// WriteMeshValueCollection appends a grid holding the labelled entities of
// mvc. Every rank writes its own entries, so entities labelled on several
// ranks appear more than once.
func WriteMeshValueCollection[T mesh.Value](ctx context.Context, f *File, mvc *mesh.MeshValueCollection[T], enc Encoding) error {
	if err := agree(ctx, f.c, checkValueCollection(mvc)); err != nil {
		return err
	}
	return f.write(ctx, "meshvaluecollection", enc, false, func(w *writeTarget, domain *etree.Element) error {
		m, dim := mvc.Mesh, mvc.Dim
		et, err := m.CellType.EntityType(dim)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		tname, nodes, err := topologyName(et, 1)
		if err != nil {
			return err
		}
		prefix := f.meshPath("MeshValueCollection")

		ents := m.Entities(dim)
		wire := et.ToWire()
		entries := mvc.Entries()
		topo := make([][]int64, len(entries))
		keys := make([][]int64, len(entries))
		values := make([]T, len(entries))
		for i, en := range entries {
			vs := ents.Vertices[ents.CellEntities[en.Cell][en.Local]]
			row := make([]int64, len(wire))
			for j, k := range wire {
				row[j] = m.GlobalVertices[vs[k]]
			}
			topo[i] = row
			keys[i] = []int64{m.GlobalCells[en.Cell], int64(en.Local)}
			values[i] = en.Value
		}

		grid := newGrid(domain, mvc.Name)
		if err := writeTopology(ctx, w, grid, tname, nodes, topo, prefix+"/topology"); err != nil {
			return err
		}
		if err := addGeometry(ctx, w, grid, m, prefix+"/geometry"); err != nil {
			return err
		}
		attr := addAttribute(grid, mvc.Name, "Scalar", "Cell")
		if _, err := writeDataItem(ctx, w, attr, prefix+"/values", values, []int64{int64(len(values))}); err != nil {
			return err
		}
		attr = addAttribute(grid, mvc.Name+"_key", "Matrix", "Cell")
		_, err = writeDataItem(ctx, w, attr, prefix+"/key", flatten(keys, 2), []int64{int64(len(keys)), 2})
		return err
	})
}

func checkValueCollection[T mesh.Value](mvc *mesh.MeshValueCollection[T]) error {
	if mvc == nil || mvc.Mesh == nil {
		return fmt.Errorf("%w: value collection without a mesh", ErrConfiguration)
	}
	if mvc.Dim < 0 || mvc.Dim > mvc.Mesh.TDim() {
		return fmt.Errorf("%w: value collection %s on dimension %d", ErrDimensionMismatch, mvc.Name, mvc.Dim)
	}
	return nil
}

// ReadMeshValueCollection replaces the labels of mvc with those stored
// under name whose cell is held by this rank.
func ReadMeshValueCollection[T mesh.Value](ctx context.Context, f *File, mvc *mesh.MeshValueCollection[T], name string) error {
	if mvc == nil || mvc.Mesh == nil {
		return agree(ctx, f.c, fmt.Errorf("%w: value collection without a mesh", ErrConfiguration))
	}
	domain, err := f.load(ctx)
	if err != nil {
		return err
	}

	m := mvc.Mesh
	var fresh *mesh.MeshValueCollection[T]
	err = func() error {
		var valAttr, keyAttr *etree.Element
		var grid *etree.Element
		for _, g := range grids(domain) {
			valAttr, keyAttr = nil, nil
			for _, a := range g.SelectElements("Attribute") {
				switch a.SelectAttrValue("Name", "") {
				case name:
					valAttr = a
				case name + "_key":
					keyAttr = a
				}
			}
			if valAttr != nil && keyAttr != nil {
				grid = g
				break
			}
		}
		if grid == nil {
			return fmt.Errorf("%w: no dataset %q with keys %q", ErrNotFound, name, name+"_key")
		}
		topo := grid.SelectElement("Topology")
		if topo == nil {
			return fmt.Errorf("%w: dataset %q sits on a grid without Topology", ErrFormat, name)
		}
		so, _, err := parseTopologyType(topo.SelectAttrValue("TopologyType", ""))
		if err != nil {
			return err
		}
		dim := so.Type.Dim()
		if mvc.Initialized() && mvc.Dim != dim {
			return fmt.Errorf("%w: collection has dimension %d, file has %d", ErrDimensionMismatch, mvc.Dim, dim)
		}
		if fresh, err = mesh.NewMeshValueCollection[T](mvc.Name, m, dim); err != nil {
			return fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		if fresh.Name == "" {
			fresh.Name = name
		}

		values, _, err := readDataItem[T](valAttr.SelectElement("DataItem"), f.dir())
		if err != nil {
			return err
		}
		keys, _, err := readDataItem[int64](keyAttr.SelectElement("DataItem"), f.dir())
		if err != nil {
			return err
		}
		if len(keys) != 2*len(values) {
			return fmt.Errorf("%w: %d keys for %d values in %q", ErrFormat, len(keys)/2, len(values), name)
		}

		local := make(map[int64]int, m.NumCells())
		for c, g := range m.GlobalCells {
			local[g] = c
		}
		n := m.CellType.NumEntities(dim)
		for i, v := range values {
			c, ok := local[keys[2*i]]
			if !ok {
				continue
			}
			le := keys[2*i+1]
			if le < 0 || le >= int64(n) {
				return fmt.Errorf("%w: local entity %d of cell %d outside [0,%d) in %q",
					ErrFormat, le, keys[2*i], n, name)
			}
			if err := fresh.Set(c, int(le), v); err != nil {
				return fmt.Errorf("%w: %v", ErrFormat, err)
			}
		}
		return nil
	}()
	if err := agree(ctx, f.c, err); err != nil {
		return err
	}
	*mvc = *fresh
	return nil
}

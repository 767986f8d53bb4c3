package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/notargets/dgxdmf/cell"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
)

// unitMesh generates one of the unit meshes with n divisions per side
func unitMesh(kind string, n int) (*mesh.LocalMeshData, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid resolution %d", n)
	}
	var d *mesh.LocalMeshData
	switch strings.ToLower(kind) {
	case "interval":
		d = mesh.UnitIntervalMesh(n)
	case "square":
		d = mesh.UnitSquareMesh(n, n)
	case "quad":
		d = mesh.UnitQuadMesh(n, n)
	case "cube":
		d = mesh.UnitCubeMesh(n, n, n)
	case "hex":
		d = mesh.UnitHexMesh(n, n, n)
	default:
		return nil, fmt.Errorf("unknown unit mesh %q (interval|square|quad|cube|hex)", kind)
	}
	d.Name = "unit_" + strings.ToLower(kind)
	return d, nil
}

// readMesh imports a gmsh or gambit file
func readMesh(path string) (*mesh.LocalMeshData, error) {
	m, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fromElements(name, m.Vertices, m.EtoV)
}

// fromElements stages a volume mesh given as 3-D vertex coordinates and
// element-to-vertex lists in VTK corner order. All elements must share a
// shape: 4 corners are tetrahedra and 8 corners hexahedra.
func fromElements(name string, vertices [][]float64, etov [][]int) (*mesh.LocalMeshData, error) {
	if len(etov) == 0 {
		return nil, fmt.Errorf("%s has no elements", name)
	}
	var ct cell.Type
	switch len(etov[0]) {
	case 4:
		ct = cell.Tetrahedron
	case 8:
		ct = cell.Hexahedron
	default:
		return nil, fmt.Errorf("%s: unsupported element with %d vertices", name, len(etov[0]))
	}

	d := &mesh.LocalMeshData{
		Name:        name,
		CellType:    ct,
		Degree:      1,
		GDim:        3,
		Coordinates: make([][]float64, len(vertices)),
		Cells:       make([][]int64, len(etov)),
	}
	for i, v := range vertices {
		if len(v) < 3 {
			return nil, fmt.Errorf("%s: vertex %d has %d coordinates", name, i, len(v))
		}
		d.Coordinates[i] = []float64{v[0], v[1], v[2]}
	}
	perm := ct.FromWire()
	for k, ev := range etov {
		if len(ev) != ct.NumVertices() {
			return nil, fmt.Errorf("%s: element %d has %d vertices, mixed meshes are not supported",
				name, k, len(ev))
		}
		row := make([]int64, len(ev))
		for i, v := range ev {
			row[i] = int64(v)
		}
		d.Cells[k] = cell.Permute(row, perm)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/dgxdmf/cell"
)

// Structured unit-domain generators. Each returns unpartitioned staging
// data, ready for Build or a distributed builder. Simplex cells list their
// vertices in increasing global order.

// UnitIntervalMesh divides [0,1] into n intervals
func UnitIntervalMesh(n int) *LocalMeshData {
	if n < 1 {
		panic(fmt.Sprintf("mesh: UnitIntervalMesh needs n >= 1, got %d", n))
	}
	d := &LocalMeshData{Name: "mesh", CellType: cell.Interval, Degree: 1, GDim: 1}
	for i := 0; i <= n; i++ {
		d.Coordinates = append(d.Coordinates, []float64{float64(i) / float64(n)})
	}
	for i := 0; i < n; i++ {
		d.Cells = append(d.Cells, []int64{int64(i), int64(i + 1)})
	}
	return d
}

// UnitSquareMesh divides [0,1]^2 into nx*ny squares, each split into two
// triangles along the (0,0)-(1,1) diagonal.
func UnitSquareMesh(nx, ny int) *LocalMeshData {
	d := gridVertices2D(nx, ny)
	d.CellType = cell.Triangle
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v0, v1, v2, v3 := quadCorners(nx, i, j)
			d.Cells = append(d.Cells, []int64{v0, v1, v3}, []int64{v0, v2, v3})
		}
	}
	return d
}

// UnitQuadMesh divides [0,1]^2 into nx*ny quadrilaterals
func UnitQuadMesh(nx, ny int) *LocalMeshData {
	d := gridVertices2D(nx, ny)
	d.CellType = cell.Quadrilateral
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v0, v1, v2, v3 := quadCorners(nx, i, j)
			d.Cells = append(d.Cells, []int64{v0, v1, v2, v3})
		}
	}
	return d
}

// UnitCubeMesh divides [0,1]^3 into nx*ny*nz cubes of six tetrahedra each
func UnitCubeMesh(nx, ny, nz int) *LocalMeshData {
	d := gridVertices3D(nx, ny, nz)
	d.CellType = cell.Tetrahedron
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				v := hexCorners(nx, ny, i, j, k)
				for _, tet := range [][4]int{
					{0, 1, 3, 7}, {0, 1, 7, 5}, {0, 5, 7, 4},
					{0, 3, 2, 7}, {0, 6, 4, 7}, {0, 2, 6, 7},
				} {
					c := []int64{v[tet[0]], v[tet[1]], v[tet[2]], v[tet[3]]}
					sort.Slice(c, func(a, b int) bool { return c[a] < c[b] })
					d.Cells = append(d.Cells, c)
				}
			}
		}
	}
	return d
}

// UnitHexMesh divides [0,1]^3 into nx*ny*nz hexahedra
func UnitHexMesh(nx, ny, nz int) *LocalMeshData {
	d := gridVertices3D(nx, ny, nz)
	d.CellType = cell.Hexahedron
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				v := hexCorners(nx, ny, i, j, k)
				d.Cells = append(d.Cells, v[:])
			}
		}
	}
	return d
}

// Elevate turns linear staging data into a quadratic one, registering a
// midpoint for every edge of every cell. warp, when non-nil, moves each
// straight midpoint.
func Elevate(d *LocalMeshData, warp func(x []float64) []float64) error {
	pairs := d.CellType.QuadraticEdges()
	if pairs == nil {
		return fmt.Errorf("%s cannot be elevated to order 2", d.CellType)
	}
	seen := make(map[EdgeKey]bool)
	d.Midpoints = d.Midpoints[:0]
	for _, vs := range d.Cells {
		for _, p := range pairs {
			a, b := vs[p[0]], vs[p[1]]
			key := NewEdgeKey(a, b)
			if seen[key] {
				continue
			}
			seen[key] = true
			xa, xb := d.Coordinates[a], d.Coordinates[b]
			mid := make([]float64, d.GDim)
			for i := range mid {
				mid[i] = 0.5 * (xa[i] + xb[i])
			}
			if warp != nil {
				mid = warp(mid)
			}
			d.Midpoints = append(d.Midpoints, EdgeMidpoint{Edge: key, X: mid})
		}
	}
	d.Degree = 2
	return nil
}

func gridVertices2D(nx, ny int) *LocalMeshData {
	if nx < 1 || ny < 1 {
		panic(fmt.Sprintf("mesh: grid needs positive divisions, got %dx%d", nx, ny))
	}
	d := &LocalMeshData{Name: "mesh", Degree: 1, GDim: 2}
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			d.Coordinates = append(d.Coordinates,
				[]float64{float64(i) / float64(nx), float64(j) / float64(ny)})
		}
	}
	return d
}

func gridVertices3D(nx, ny, nz int) *LocalMeshData {
	if nx < 1 || ny < 1 || nz < 1 {
		panic(fmt.Sprintf("mesh: grid needs positive divisions, got %dx%dx%d", nx, ny, nz))
	}
	d := &LocalMeshData{Name: "mesh", Degree: 1, GDim: 3}
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				d.Coordinates = append(d.Coordinates, []float64{
					float64(i) / float64(nx), float64(j) / float64(ny), float64(k) / float64(nz)})
			}
		}
	}
	return d
}

// quadCorners returns the tensor-ordered corners of square (i,j)
func quadCorners(nx, i, j int) (v0, v1, v2, v3 int64) {
	v0 = int64(j*(nx+1) + i)
	v1 = v0 + 1
	v2 = v0 + int64(nx+1)
	v3 = v2 + 1
	return
}

// hexCorners returns the tensor-ordered corners of cube (i,j,k)
func hexCorners(nx, ny, i, j, k int) [8]int64 {
	layer := int64((nx + 1) * (ny + 1))
	v0 := int64(k)*layer + int64(j*(nx+1)+i)
	row := int64(nx + 1)
	return [8]int64{
		v0, v0 + 1, v0 + row, v0 + row + 1,
		v0 + layer, v0 + layer + 1, v0 + layer + row, v0 + layer + row + 1,
	}
}

package mesh

import (
	"fmt"

	"github.com/notargets/dgxdmf/cell"
)

// EdgeMidpoint is a curved midpoint attached to an edge
type EdgeMidpoint struct {
	Edge EdgeKey
	X    []float64
}

// LocalMeshData is the unpartitioned staging form of a mesh: global vertex
// coordinates and global cell connectivity plus shape metadata. It is what
// readers produce and what the mesh builders consume.
type LocalMeshData struct {
	Name     string
	CellType cell.Type
	Degree   int
	GDim     int

	// Coordinates is indexed by global vertex index
	Coordinates [][]float64
	// Cells holds corner global vertex indices in internal order
	Cells [][]int64
	// CellIndices holds the global index of each row of Cells; nil means
	// row order
	CellIndices []int64

	Midpoints []EdgeMidpoint
}

// NumGlobalVertices returns the number of staged vertices
func (d *LocalMeshData) NumGlobalVertices() int64 { return int64(len(d.Coordinates)) }

// NumGlobalCells returns the number of staged cells
func (d *LocalMeshData) NumGlobalCells() int64 { return int64(len(d.Cells)) }

// CellIndex returns the global index of staged row i
func (d *LocalMeshData) CellIndex(i int) int64 {
	if d.CellIndices == nil {
		return int64(i)
	}
	return d.CellIndices[i]
}

// Validate checks the staged arrays against the declared metadata
func (d *LocalMeshData) Validate() error {
	if !d.CellType.Valid() {
		return fmt.Errorf("invalid cell type %d", d.CellType)
	}
	if d.Degree != 1 && d.Degree != 2 {
		return fmt.Errorf("invalid degree %d", d.Degree)
	}
	if d.GDim < 1 || d.GDim > 3 {
		return fmt.Errorf("invalid geometric dimension %d", d.GDim)
	}
	if d.GDim < d.CellType.Dim() {
		return fmt.Errorf("geometric dimension %d below topological dimension %d",
			d.GDim, d.CellType.Dim())
	}
	for v, x := range d.Coordinates {
		if len(x) < d.GDim {
			return fmt.Errorf("vertex %d has %d coordinates, want %d", v, len(x), d.GDim)
		}
	}
	if d.CellIndices != nil && len(d.CellIndices) != len(d.Cells) {
		return fmt.Errorf("%d cell indices for %d cells", len(d.CellIndices), len(d.Cells))
	}
	npc := d.CellType.NumVertices()
	nv := d.NumGlobalVertices()
	for c, vs := range d.Cells {
		if len(vs) != npc {
			return fmt.Errorf("cell %d has %d vertices, want %d", c, len(vs), npc)
		}
		for _, v := range vs {
			if v < 0 || v >= nv {
				return fmt.Errorf("cell %d references vertex %d of %d", c, v, nv)
			}
		}
	}
	return nil
}

// Build constructs a serial mesh holding every staged cell and vertex.
func Build(d *LocalMeshData) (*Mesh, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("building mesh: %w", err)
	}

	nv := len(d.Coordinates)
	m := &Mesh{
		Name:              d.Name,
		CellType:          d.CellType,
		Degree:            d.Degree,
		GDim:              d.GDim,
		Coordinates:       newCoordinates(d.Coordinates, d.GDim),
		Cells:             make([][]int, len(d.Cells)),
		GlobalVertices:    make([]int64, nv),
		GlobalCells:       make([]int64, len(d.Cells)),
		NumGlobalVertices: int64(nv),
		NumGlobalCells:    int64(len(d.Cells)),
		Shared:            map[int][]int{},
		Midpoints:         make(map[EdgeKey][]float64, len(d.Midpoints)),
	}
	for v := range m.GlobalVertices {
		m.GlobalVertices[v] = int64(v)
	}
	for c, vs := range d.Cells {
		m.Cells[c] = make([]int, len(vs))
		for i, v := range vs {
			m.Cells[c][i] = int(v)
		}
		m.GlobalCells[c] = d.CellIndex(c)
	}
	for _, mp := range d.Midpoints {
		m.Midpoints[mp.Edge] = mp.X
	}
	return m, nil
}

// Assemble builds one rank's mesh from a subset of staged data: the
// global vertex indices it holds with their coordinates, and its cells
// given in global vertex indices. It is the constructor used by
// distributed builders.
func Assemble(name string, ct cell.Type, degree, gdim int,
	globalVertices []int64, coords [][]float64,
	globalCells []int64, cells [][]int64,
	numGlobalVertices, numGlobalCells int64) (*Mesh, error) {

	if len(coords) != len(globalVertices) {
		return nil, fmt.Errorf("%d coordinates for %d vertices", len(coords), len(globalVertices))
	}
	local := make(map[int64]int, len(globalVertices))
	for i, g := range globalVertices {
		local[g] = i
	}

	m := &Mesh{
		Name:              name,
		CellType:          ct,
		Degree:            degree,
		GDim:              gdim,
		Coordinates:       newCoordinates(coords, gdim),
		Cells:             make([][]int, len(cells)),
		GlobalVertices:    globalVertices,
		GlobalCells:       globalCells,
		NumGlobalVertices: numGlobalVertices,
		NumGlobalCells:    numGlobalCells,
		Shared:            map[int][]int{},
		Midpoints:         map[EdgeKey][]float64{},
	}
	for c, vs := range cells {
		m.Cells[c] = make([]int, len(vs))
		for i, g := range vs {
			v, ok := local[g]
			if !ok {
				return nil, fmt.Errorf("cell %d references global vertex %d not held locally", globalCells[c], g)
			}
			m.Cells[c][i] = v
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

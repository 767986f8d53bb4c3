package fem

import (
	"fmt"

	"github.com/notargets/dgxdmf/mesh"
)

// Function is a field sampled on a mesh. Values holds one row of
// ValueSize() components per local vertex, or per local cell when
// CellCentred is set. Degree 2 fields on quadratic meshes carry one more
// row per local edge (mesh.Entities(1) numbering) in EdgeValues.
type Function struct {
	Name        string
	Mesh        *mesh.Mesh
	Shape       []int // nil scalar, [n] vector, [n,n] tensor
	CellCentred bool
	Degree      int

	Values     []float64
	EdgeValues []float64
}

// NewFunction returns a zero-valued degree 1 function on m
func NewFunction(name string, m *mesh.Mesh, shape []int, cellCentred bool) (*Function, error) {
	u := &Function{Name: name, Mesh: m, Shape: shape, CellCentred: cellCentred, Degree: 1}
	if err := u.checkShape(); err != nil {
		return nil, err
	}
	u.Values = make([]float64, u.NumRows()*u.ValueSize())
	return u, nil
}

// NewQuadraticFunction returns a zero-valued vertex+edge function on a
// quadratic mesh
func NewQuadraticFunction(name string, m *mesh.Mesh, shape []int) (*Function, error) {
	if m.Degree != 2 {
		return nil, fmt.Errorf("function %s: mesh %s has degree %d, want 2", name, m.Name, m.Degree)
	}
	u, err := NewFunction(name, m, shape, false)
	if err != nil {
		return nil, err
	}
	u.Degree = 2
	u.EdgeValues = make([]float64, m.NumEntities(1)*u.ValueSize())
	return u, nil
}

func (u *Function) checkShape() error {
	switch len(u.Shape) {
	case 0:
		return nil
	case 1:
		if u.Shape[0] < 1 || u.Shape[0] > 3 {
			return fmt.Errorf("function %s: vector size %d outside [1,3]", u.Name, u.Shape[0])
		}
		return nil
	case 2:
		if u.Shape[0] != u.Shape[1] || u.Shape[0] < 1 || u.Shape[0] > 3 {
			return fmt.Errorf("function %s: tensor shape %v must be square up to 3x3", u.Name, u.Shape)
		}
		return nil
	}
	return fmt.Errorf("function %s: value rank %d not supported", u.Name, len(u.Shape))
}

// Rank returns the value rank: 0 scalar, 1 vector, 2 tensor
func (u *Function) Rank() int { return len(u.Shape) }

// RankName returns the XDMF AttributeType for the value rank
func (u *Function) RankName() string {
	switch u.Rank() {
	case 0:
		return "Scalar"
	case 1:
		return "Vector"
	}
	return "Tensor"
}

// ValueSize returns the number of components per row
func (u *Function) ValueSize() int {
	n := 1
	for _, s := range u.Shape {
		n *= s
	}
	return n
}

// PaddedWidth returns the number of components per row on the wire:
// vectors are padded to 3 and tensors to 3x3.
func (u *Function) PaddedWidth() int {
	switch u.Rank() {
	case 0:
		return 1
	case 1:
		return 3
	}
	return 9
}

// NumRows returns the number of local value rows (vertices or cells)
func (u *Function) NumRows() int {
	if u.CellCentred {
		return u.Mesh.NumCells()
	}
	return u.Mesh.NumVertices()
}

// Pad embeds one row of ValueSize components into a row of PaddedWidth,
// zero filling the extra components.
func (u *Function) Pad(row []float64) []float64 {
	out := make([]float64, u.PaddedWidth())
	switch u.Rank() {
	case 0, 1:
		copy(out, row)
	default:
		n := u.Shape[0]
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				out[3*i+j] = row[n*i+j]
			}
		}
	}
	return out
}

// Unpad is the inverse of Pad
func (u *Function) Unpad(row []float64) []float64 {
	out := make([]float64, u.ValueSize())
	switch u.Rank() {
	case 0, 1:
		copy(out, row)
	default:
		n := u.Shape[0]
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				out[n*i+j] = row[3*i+j]
			}
		}
	}
	return out
}

// Row returns the values of row i
func (u *Function) Row(i int) []float64 {
	w := u.ValueSize()
	return u.Values[i*w : (i+1)*w]
}

// EdgeRow returns the values at the midpoint of local edge e
func (u *Function) EdgeRow(e int) []float64 {
	w := u.ValueSize()
	return u.EdgeValues[e*w : (e+1)*w]
}

// Validate checks the value arrays against the mesh
func (u *Function) Validate() error {
	if u.Mesh == nil {
		return fmt.Errorf("function %s has no mesh", u.Name)
	}
	if err := u.checkShape(); err != nil {
		return err
	}
	if want := u.NumRows() * u.ValueSize(); len(u.Values) != want {
		return fmt.Errorf("function %s: %d values, want %d", u.Name, len(u.Values), want)
	}
	switch u.Degree {
	case 1:
	case 2:
		if u.CellCentred {
			return fmt.Errorf("function %s: cell centred data must have degree 1", u.Name)
		}
		if u.Mesh.Degree != 2 {
			return fmt.Errorf("function %s: degree 2 values on a degree %d mesh", u.Name, u.Mesh.Degree)
		}
		if want := u.Mesh.NumEntities(1) * u.ValueSize(); len(u.EdgeValues) != want {
			return fmt.Errorf("function %s: %d edge values, want %d", u.Name, len(u.EdgeValues), want)
		}
	default:
		return fmt.Errorf("function %s: unsupported degree %d", u.Name, u.Degree)
	}
	return nil
}

// Interpolate sets every row from f evaluated at the row's point: vertex
// coordinates, cell centroids or edge midpoints.
func (u *Function) Interpolate(f func(x []float64) []float64) {
	m := u.Mesh
	w := u.ValueSize()
	if u.CellCentred {
		for c, vs := range m.Cells {
			copy(u.Values[c*w:(c+1)*w], f(centroid(m, vs)))
		}
	} else {
		for v := 0; v < m.NumVertices(); v++ {
			copy(u.Values[v*w:(v+1)*w], f(m.Coordinate(v)))
		}
	}
	if u.Degree == 2 {
		for e, vs := range m.Entities(1).Vertices {
			copy(u.EdgeValues[e*w:(e+1)*w], f(m.Midpoint(vs[0], vs[1])))
		}
	}
}

func centroid(m *mesh.Mesh, vs []int) []float64 {
	x := make([]float64, m.GDim)
	for _, v := range vs {
		for i, xi := range m.Coordinate(v) {
			x[i] += xi
		}
	}
	for i := range x {
		x[i] /= float64(len(vs))
	}
	return x
}

package xdmf

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// facetFlag is a deterministic label of a facet from its global vertices
func facetFlag(key []int64) bool {
	var s int64
	for _, g := range key {
		s += g
	}
	return s%3 == 0
}

func TestMeshFunction_BoolRoundTrip(t *testing.T) {
	for _, enc := range encodings() {
		for _, size := range rankCounts {
			t.Run(fmt.Sprintf("%s/np%d", enc, size), func(t *testing.T) {
				filename := filepath.Join(t.TempDir(), "flags.xdmf")
				withFile(t, size, mesh.UnitCubeMesh(2, 1, 1), filename, DefaultOptions(),
					func(ctx context.Context, f *File, m *mesh.Mesh) error {
						fdim := m.TDim() - 1
						mf, err := mesh.NewMeshFunction[bool]("flags", m, fdim)
						if err != nil {
							return err
						}
						for e := range mf.Values {
							mf.Values[e] = facetFlag(m.EntityKey(fdim, e))
						}
						if err := f.WriteMesh(ctx, m, enc); err != nil {
							return err
						}
						if err := WriteMeshFunction(ctx, f, mf, enc); err != nil {
							return err
						}

						back := &mesh.MeshFunction[bool]{Mesh: m}
						if err := ReadMeshFunction(ctx, f, back, "flags"); err != nil {
							return err
						}
						assert.Equal(t, fdim, back.Dim)
						assert.Equal(t, "flags", back.Name)
						assert.Equal(t, mf.Values, back.Values)
						return nil
					})

				doc := etree.NewDocument()
				require.NoError(t, doc.ReadFromFile(filename))
				item := doc.FindElement("//Attribute[@Name='flags']/DataItem")
				require.NotNil(t, item)
				assert.Equal(t, "Int", item.SelectAttrValue("NumberType", ""))
				assert.Equal(t, "4", item.SelectAttrValue("Precision", ""))
			})
		}
	}
}

func TestMeshFunction_ReusesCellGrid(t *testing.T) {
	ctx := context.Background()
	m, err := mesh.Build(mesh.UnitSquareMesh(2, 2))
	require.NoError(t, err)
	filename := filepath.Join(t.TempDir(), "markers.xdmf")
	f, err := Open(ctx, comm.Self(), filename, DefaultOptions())
	require.NoError(t, err)
	defer f.Close()

	cells, err := mesh.NewMeshFunction[int64]("material", m, m.TDim())
	require.NoError(t, err)
	for c := range cells.Values {
		cells.Values[c] = int64(c % 3)
	}
	sizes, err := mesh.NewMeshFunction[uint64]("size", m, m.TDim())
	require.NoError(t, err)
	sizes.SetAll(7)

	require.NoError(t, f.WriteMesh(ctx, m, EncodingASCII))
	require.NoError(t, WriteMeshFunction(ctx, f, cells, EncodingASCII))
	require.NoError(t, WriteMeshFunction(ctx, f, sizes, EncodingASCII))
	assert.Equal(t, 3, f.Counter())

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(filename))
	gridEls := doc.FindElements("/Xdmf/Domain/Grid")
	require.Len(t, gridEls, 1)
	assert.Len(t, gridEls[0].SelectElements("Attribute"), 2)
	assert.Equal(t, "UInt", doc.FindElement("//Attribute[@Name='size']/DataItem").SelectAttrValue("NumberType", ""))

	// first attribute when no name is given
	first := &mesh.MeshFunction[int64]{Mesh: m}
	require.NoError(t, ReadMeshFunction(ctx, f, first, ""))
	assert.Equal(t, cells.Values, first.Values)

	back := &mesh.MeshFunction[uint64]{Mesh: m}
	require.NoError(t, ReadMeshFunction(ctx, f, back, "size"))
	assert.Equal(t, sizes.Values, back.Values)

	wrongDim, err := mesh.NewMeshFunction[int64]("material", m, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, ReadMeshFunction(ctx, f, wrongDim, "material"), ErrDimensionMismatch)
	assert.Equal(t, 1, wrongDim.Dim)
	assert.ErrorIs(t, ReadMeshFunction(ctx, f, back, "absent"), ErrNotFound)
}

func TestMeshFunction_VertexMarkers(t *testing.T) {
	for _, size := range rankCounts {
		t.Run(fmt.Sprintf("np%d", size), func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), "vertex.xdmf")
			withFile(t, size, mesh.UnitSquareMesh(3, 3), filename, DefaultOptions(),
				func(ctx context.Context, f *File, m *mesh.Mesh) error {
					mf, err := mesh.NewMeshFunction[int32]("ids", m, 0)
					if err != nil {
						return err
					}
					for v := range mf.Values {
						mf.Values[v] = int32(m.GlobalVertices[v]) * 2
					}
					if err := WriteMeshFunction(ctx, f, mf, EncodingDefault); err != nil {
						return err
					}
					back := &mesh.MeshFunction[int32]{Mesh: m}
					if err := ReadMeshFunction(ctx, f, back, "ids"); err != nil {
						return err
					}
					assert.Equal(t, mf.Values, back.Values)
					return nil
				})

			doc := etree.NewDocument()
			require.NoError(t, doc.ReadFromFile(filename))
			topo := doc.FindElement("//Topology")
			assert.Equal(t, "Polyvertex", topo.SelectAttrValue("TopologyType", ""))
			assert.Equal(t, "16", topo.SelectAttrValue("NumberOfElements", ""))
			assert.Equal(t, "Node", doc.FindElement("//Attribute").SelectAttrValue("Center", ""))
		})
	}
}

type triple struct {
	cell  int64
	local int
	value int32
}

func TestMeshValueCollection_RoundTrip(t *testing.T) {
	for _, enc := range encodings() {
		for _, size := range rankCounts {
			t.Run(fmt.Sprintf("%s/np%d", enc, size), func(t *testing.T) {
				filename := filepath.Join(t.TempDir(), "labels.xdmf")
				var mu sync.Mutex
				var written, read []triple
				withFile(t, size, mesh.UnitSquareMesh(3, 2), filename, DefaultOptions(),
					func(ctx context.Context, f *File, m *mesh.Mesh) error {
						mvc, err := mesh.NewMeshValueCollection[int32]("bc", m, 1)
						if err != nil {
							return err
						}
						// label one edge of every other cell
						for c, g := range m.GlobalCells {
							if g%2 == 0 {
								if err := mvc.Set(c, int(g%3), int32(100+g)); err != nil {
									return err
								}
							}
						}
						if err := WriteMeshValueCollection(ctx, f, mvc, enc); err != nil {
							return err
						}
						back := &mesh.MeshValueCollection[int32]{Mesh: m}
						if err := ReadMeshValueCollection(ctx, f, back, "bc"); err != nil {
							return err
						}
						assert.Equal(t, 1, back.Dim)
						assert.Equal(t, "bc", back.Name)

						mu.Lock()
						defer mu.Unlock()
						for _, e := range mvc.Entries() {
							written = append(written, triple{m.GlobalCells[e.Cell], e.Local, e.Value})
						}
						for _, e := range back.Entries() {
							read = append(read, triple{m.GlobalCells[e.Cell], e.Local, e.Value})
						}
						return nil
					})

				sortTriples(written)
				sortTriples(read)
				assert.Len(t, written, 6)
				assert.Equal(t, written, read)

				doc := etree.NewDocument()
				require.NoError(t, doc.ReadFromFile(filename))
				key := doc.FindElement("//Attribute[@Name='bc_key']")
				require.NotNil(t, key)
				assert.Equal(t, "6 2", key.SelectElement("DataItem").SelectAttrValue("Dimensions", ""))
				assert.Equal(t, "6", doc.FindElement("//Topology").SelectAttrValue("NumberOfElements", ""))
			})
		}
	}
}

func sortTriples(ts []triple) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].cell != ts[j].cell {
			return ts[i].cell < ts[j].cell
		}
		return ts[i].local < ts[j].local
	})
}

func TestMeshValueCollection_Errors(t *testing.T) {
	ctx := context.Background()
	m, err := mesh.Build(mesh.UnitSquareMesh(1, 1))
	require.NoError(t, err)
	filename := filepath.Join(t.TempDir(), "mvc.xdmf")
	f, err := Open(ctx, comm.Self(), filename, DefaultOptions())
	require.NoError(t, err)
	defer f.Close()

	mvc, err := mesh.NewMeshValueCollection[float64]("weights", m, 2)
	require.NoError(t, err)
	require.NoError(t, mvc.Set(1, 0, 0.25))
	require.NoError(t, WriteMeshValueCollection(ctx, f, mvc, EncodingASCII))

	back := &mesh.MeshValueCollection[float64]{Mesh: m}
	err = ReadMeshValueCollection(ctx, f, back, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "missing")

	edges, err := mesh.NewMeshValueCollection[float64]("weights", m, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, ReadMeshValueCollection(ctx, f, edges, "weights"), ErrDimensionMismatch)

	require.NoError(t, ReadMeshValueCollection(ctx, f, back, "weights"))
	v, ok := back.Get(1, 0)
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)
	assert.Equal(t, 1, back.Len())

	// a key naming a local entity beyond the cell's count
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(filename))
	doc.FindElement("//Attribute[@Name='weights_key']/DataItem").SetText("1 5")
	require.NoError(t, doc.WriteToFile(filename))
	assert.ErrorIs(t, ReadMeshValueCollection(ctx, f, back, "weights"), ErrFormat)
	assert.Equal(t, 1, back.Len())
}

func TestWritePoints(t *testing.T) {
	for _, size := range rankCounts {
		t.Run(fmt.Sprintf("np%d", size), func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), "cloud.xdmf")
			err := comm.Run(context.Background(), size, func(ctx context.Context, c comm.Communicator) error {
				f, err := Open(ctx, c, filename, DefaultOptions())
				if err != nil {
					return err
				}
				defer f.Close()
				r := float64(c.Rank())
				points := [][3]float64{{r, 0, 0}, {r, 1, 0}}
				if err := f.WritePoints(ctx, points, []float64{r, r + 0.5}, EncodingASCII); err != nil {
					return err
				}
				assert.ErrorIs(t, f.WritePoints(ctx, points, []float64{1}, EncodingASCII), ErrDimensionMismatch)
				return nil
			})
			require.NoError(t, err)

			doc := etree.NewDocument()
			require.NoError(t, doc.ReadFromFile(filename))
			grid := doc.FindElement("/Xdmf/Domain/Grid[@Name='Point cloud']")
			require.NotNil(t, grid)
			topo := grid.SelectElement("Topology")
			assert.Equal(t, "Polyvertex", topo.SelectAttrValue("TopologyType", ""))
			assert.Equal(t, fmt.Sprint(2*size), topo.SelectAttrValue("NumberOfElements", ""))
			ids, _, err := readDataItem[int64](topo.SelectElement("DataItem"), "")
			require.NoError(t, err)
			for i, id := range ids {
				assert.Equal(t, int64(i), id)
			}
			vals, _, err := readDataItem[float64](grid.FindElement("Attribute[@Name='Point values']/DataItem"), "")
			require.NoError(t, err)
			require.Len(t, vals, 2*size)
			assert.Equal(t, float64(size-1)+0.5, vals[2*size-1])
		})
	}
}

func TestWritePoints_ValuesOnEveryRank(t *testing.T) {
	for _, size := range rankCounts[1:] {
		t.Run(fmt.Sprintf("np%d", size), func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), "cloud.xdmf")
			err := comm.Run(context.Background(), size, func(ctx context.Context, c comm.Communicator) error {
				f, err := Open(ctx, c, filename, DefaultOptions())
				if err != nil {
					return err
				}
				defer f.Close()
				r := float64(c.Rank())
				points := [][3]float64{{r, 0, 0}, {r, 1, 0}}
				var values []float64
				if c.Rank() == 0 {
					values = []float64{1, 2}
				}
				assert.ErrorIs(t, f.WritePoints(ctx, points, values, EncodingASCII), ErrDimensionMismatch)
				assert.Equal(t, 0, f.Counter())

				// a rank without points may leave its values nil
				if c.Rank() == size-1 {
					points = nil
				} else {
					values = []float64{r, r}
				}
				return f.WritePoints(ctx, points, values, EncodingASCII)
			})
			require.NoError(t, err)

			doc := etree.NewDocument()
			require.NoError(t, doc.ReadFromFile(filename))
			vals, _, err := readDataItem[float64](doc.FindElement("//Attribute[@Name='Point values']/DataItem"), "")
			require.NoError(t, err)
			assert.Len(t, vals, 2*(size-1))
		})
	}
}

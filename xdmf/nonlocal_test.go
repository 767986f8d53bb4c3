package xdmf

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeNonlocalEntities_PartitionsEntities(t *testing.T) {
	data := mesh.UnitCubeMesh(2, 2, 1)
	serial, err := mesh.Build(mesh.UnitCubeMesh(2, 2, 1))
	require.NoError(t, err)

	for _, size := range rankCounts {
		for dim := 0; dim < serial.TDim(); dim++ {
			t.Run(fmt.Sprintf("np%d/dim%d", size, dim), func(t *testing.T) {
				var mu sync.Mutex
				kept := map[entityKey]int{}
				onRanks(t, size, data, func(ctx context.Context, c comm.Communicator, m *mesh.Mesh) error {
					first, err := ComputeNonlocalEntities(ctx, c, m, dim)
					if err != nil {
						return err
					}
					second, err := ComputeNonlocalEntities(ctx, c, m, dim)
					if err != nil {
						return err
					}
					assert.Equal(t, first, second)
					assert.True(t, sort.IntsAreSorted(first))
					if c.Size() == 1 {
						assert.Empty(t, first)
					}

					skip := map[int]bool{}
					for _, e := range first {
						skip[e] = true
					}
					mu.Lock()
					defer mu.Unlock()
					for e := 0; e < m.NumEntities(dim); e++ {
						if !skip[e] {
							kept[keyOf(m, dim, e)]++
						}
					}
					return nil
				})

				assert.Len(t, kept, serial.NumEntities(dim))
				for e := 0; e < serial.NumEntities(dim); e++ {
					assert.Equal(t, 1, kept[keyOf(serial, dim, e)], "entity %v", serial.EntityKey(dim, e))
				}
			})
		}
	}
}

func TestComputeNonlocalEntities_CellsNeverSuppressed(t *testing.T) {
	onRanks(t, 4, mesh.UnitSquareMesh(4, 4), func(ctx context.Context, c comm.Communicator, m *mesh.Mesh) error {
		sup, err := ComputeNonlocalEntities(ctx, c, m, m.TDim())
		if err != nil {
			return err
		}
		assert.NotNil(t, sup)
		assert.Empty(t, sup)
		return nil
	})
}

func TestComputeNonlocalEntities_BadDimension(t *testing.T) {
	m, err := mesh.Build(mesh.UnitSquareMesh(1, 1))
	require.NoError(t, err)
	_, err = ComputeNonlocalEntities(context.Background(), comm.Self(), m, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNumberEntities_ContiguousAndConsistent(t *testing.T) {
	data := mesh.UnitSquareMesh(3, 3)
	serial, err := mesh.Build(mesh.UnitSquareMesh(3, 3))
	require.NoError(t, err)
	nEdges := serial.NumEntities(1)

	for _, size := range rankCounts {
		t.Run(fmt.Sprintf("np%d", size), func(t *testing.T) {
			var mu sync.Mutex
			index := map[entityKey]map[int64]bool{}
			onRanks(t, size, data, func(ctx context.Context, c comm.Communicator, m *mesh.Mesh) error {
				global, total, err := NumberEntities(ctx, c, m, 1)
				if err != nil {
					return err
				}
				assert.Equal(t, int64(nEdges), total)
				mu.Lock()
				defer mu.Unlock()
				for e, g := range global {
					k := keyOf(m, 1, e)
					if index[k] == nil {
						index[k] = map[int64]bool{}
					}
					index[k][g] = true
				}
				return nil
			})

			require.Len(t, index, nEdges)
			seen := map[int64]bool{}
			for k, gs := range index {
				require.Len(t, gs, 1, "edge %v numbered differently on two ranks", k)
				for g := range gs {
					assert.False(t, seen[g], "index %d used twice", g)
					seen[g] = true
					assert.True(t, g >= 0 && g < int64(nEdges))
				}
			}
		})
	}
}

func TestBoundaryFacets(t *testing.T) {
	for _, size := range rankCounts {
		t.Run(fmt.Sprintf("np%d", size), func(t *testing.T) {
			var mu sync.Mutex
			boundary := map[entityKey]bool{}
			onRanks(t, size, mesh.UnitSquareMesh(2, 2), func(ctx context.Context, c comm.Communicator, m *mesh.Mesh) error {
				marks, err := BoundaryFacets(ctx, c, m)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				for f, b := range marks {
					if b {
						boundary[keyOf(m, 1, f)] = true
						for _, v := range m.Entities(1).Vertices[f] {
							x := m.Coordinate(v)
							onEdge := x[0] == 0 || x[0] == 1 || x[1] == 0 || x[1] == 1
							assert.True(t, onEdge, "facet vertex %v inside the square", x)
						}
					}
				}
				return nil
			})
			assert.Len(t, boundary, 8)
		})
	}
}

func TestDistributeByGlobalIndex(t *testing.T) {
	const n = 10
	blocks := make([][][]int64, 3)
	err := comm.Run(context.Background(), 3, func(ctx context.Context, c comm.Communicator) error {
		// rank r holds the indices congruent to r mod 3, in reverse
		var index []int64
		var rows [][]int64
		for g := int64(n - 1); g >= 0; g-- {
			if int(g%3) == c.Rank() {
				index = append(index, g)
				rows = append(rows, []int64{g * 10})
			}
		}
		block, err := distributeByGlobalIndex(ctx, c, n, index, rows)
		blocks[c.Rank()] = block
		return err
	})
	require.NoError(t, err)

	var all []int64
	for r, b := range blocks {
		assert.Len(t, b, int(blockStart(r+1, 3, n)-blockStart(r, 3, n)))
		for _, row := range b {
			all = append(all, row[0])
		}
	}
	assert.Equal(t, []int64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, all)

	err = comm.Run(context.Background(), 2, func(ctx context.Context, c comm.Communicator) error {
		_, err := distributeByGlobalIndex(ctx, c, 4, []int64{0, 1}, [][]int64{{0}, {1}})
		return err
	})
	assert.Error(t, err)
}

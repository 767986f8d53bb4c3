package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelf(t *testing.T) {
	c := Self()
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Size())

	ctx := context.Background()
	got, err := AllGather(ctx, c, []int64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{4, 5}}, got)

	_, err = c.AllToAll(ctx, make([][]byte, 2))
	assert.True(t, errors.Is(err, ErrSizeMismatch))
}

func TestCollectives(t *testing.T) {
	for _, size := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("Ranks%d", size), func(t *testing.T) {
			var mu sync.Mutex
			results := make(map[int][]int, size)

			err := Run(context.Background(), size, func(ctx context.Context, c Communicator) error {
				rank := c.Rank()

				// Test 1: AllGather sees every rank in order
				all, err := AllGather(ctx, c, rank*10)
				if err != nil {
					return err
				}
				for r, v := range all {
					if v != r*10 {
						return fmt.Errorf("allgather[%d] = %d", r, v)
					}
				}

				// Test 2: Gather only materializes on the root
				g, err := Gather(ctx, c, 0, []float64{float64(rank)})
				if err != nil {
					return err
				}
				if rank == 0 && len(g) != size {
					return fmt.Errorf("gather returned %d parts", len(g))
				}
				if rank != 0 && g != nil {
					return fmt.Errorf("non-root gather returned data")
				}

				// Test 3: Broadcast from the last rank
				b, err := Broadcast(ctx, c, size-1, fmt.Sprintf("from-%d", rank))
				if err != nil {
					return err
				}
				if b != fmt.Sprintf("from-%d", size-1) {
					return fmt.Errorf("broadcast got %q", b)
				}

				// Test 4: Scatter delivers each rank its own slice
				var parts [][]int
				if rank == 0 {
					parts = make([][]int, size)
					for r := range parts {
						parts[r] = []int{r, r + 1}
					}
				}
				mine, err := Scatter(ctx, c, 0, parts)
				if err != nil {
					return err
				}

				// Test 5: scans and reductions
				off, total, err := ExclusiveScan(ctx, c, int64(rank+1))
				if err != nil {
					return err
				}
				if want := int64(rank * (rank + 1) / 2); off != want {
					return fmt.Errorf("scan offset %d, want %d", off, want)
				}
				if want := int64(size * (size + 1) / 2); total != want {
					return fmt.Errorf("scan total %d, want %d", total, want)
				}
				sum, err := AllReduceSum(ctx, c, 0.5)
				if err != nil {
					return err
				}
				if sum != 0.5*float64(size) {
					return fmt.Errorf("sum %g", sum)
				}

				mu.Lock()
				results[rank] = mine
				mu.Unlock()
				return c.Barrier(ctx)
			})
			require.NoError(t, err)

			for r := 0; r < size; r++ {
				assert.Equal(t, []int{r, r + 1}, results[r])
			}
		})
	}
}

func TestExchangeEmptyPayloads(t *testing.T) {
	err := Run(context.Background(), 3, func(ctx context.Context, c Communicator) error {
		out := make([][]int64, c.Size())
		// only send to the next rank
		out[(c.Rank()+1)%c.Size()] = []int64{int64(c.Rank())}
		in, err := Exchange(ctx, c, out)
		if err != nil {
			return err
		}
		prev := (c.Rank() + c.Size() - 1) % c.Size()
		for r, v := range in {
			if r == prev {
				if len(v) != 1 || v[0] != int64(prev) {
					return fmt.Errorf("from %d got %v", r, v)
				}
			} else if len(v) != 0 {
				return fmt.Errorf("unexpected payload from %d: %v", r, v)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRunCancelsPeersOnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("boom")
	err := Run(ctx, 2, func(ctx context.Context, c Communicator) error {
		if c.Rank() == 1 {
			return boom
		}
		// rank 0 waits on a peer that never arrives
		return c.Barrier(ctx)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(err, context.Canceled))
}

package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Communicator is the collective-operations provider for a group of ranks.
// Every method is collective: all ranks of the group must call it the same
// number of times and in the same order.
type Communicator interface {
	// Rank returns this member's index in [0, Size())
	Rank() int
	// Size returns the number of ranks in the group
	Size() int
	// AllToAll sends out[r] to rank r and returns the messages received,
	// indexed by source rank. len(out) must equal Size().
	AllToAll(ctx context.Context, out [][]byte) ([][]byte, error)
	// Barrier blocks until every rank has entered it
	Barrier(ctx context.Context) error
}

// ErrSizeMismatch is returned when a collective is called with a buffer list
// whose length does not match the group size.
var ErrSizeMismatch = errors.New("comm: buffer count does not match group size")

// self is the single-rank communicator
type self struct{}

// Self returns a communicator for a group of one.
func Self() Communicator { return self{} }

func (self) Rank() int { return 0 }
func (self) Size() int { return 1 }

func (self) AllToAll(ctx context.Context, out [][]byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: got %d, want 1", ErrSizeMismatch, len(out))
	}
	return [][]byte{out[0]}, nil
}

func (self) Barrier(ctx context.Context) error { return ctx.Err() }

// Run starts size in-process ranks, calls fn once per rank on its own
// goroutine and waits for all of them. Errors from every rank are joined.
// The context handed to fn is cancelled as soon as any rank fails so that
// peers blocked in a collective return instead of waiting forever.
func Run(ctx context.Context, size int, fn func(ctx context.Context, c Communicator) error) error {
	if size < 1 {
		return fmt.Errorf("comm: invalid group size %d", size)
	}
	if size == 1 {
		return fn(ctx, Self())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	members := NewGroup(size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := range members {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			if err := fn(ctx, members[r]); err != nil {
				errs[r] = fmt.Errorf("rank %d: %w", r, err)
				cancel()
			}
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}

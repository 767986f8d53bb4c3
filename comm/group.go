package comm

import (
	"context"
	"fmt"
)

// group wires size members together with one buffered channel per ordered
// pair of ranks. Messages between a pair are FIFO, so consecutive
// collectives cannot overtake each other.
type group struct {
	size  int
	links [][]chan []byte // links[src][dst]
}

type member struct {
	rank int
	g    *group
}

// NewGroup returns size communicators that talk to each other through
// channels. Each must be driven from its own goroutine.
func NewGroup(size int) []Communicator {
	g := &group{size: size, links: make([][]chan []byte, size)}
	for src := range g.links {
		g.links[src] = make([]chan []byte, size)
		for dst := range g.links[src] {
			g.links[src][dst] = make(chan []byte, 1)
		}
	}

	members := make([]Communicator, size)
	for r := range members {
		members[r] = &member{rank: r, g: g}
	}
	return members
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.g.size }

func (m *member) AllToAll(ctx context.Context, out [][]byte) ([][]byte, error) {
	if len(out) != m.g.size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(out), m.g.size)
	}

	for dst := 0; dst < m.g.size; dst++ {
		select {
		case m.g.links[m.rank][dst] <- out[dst]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	in := make([][]byte, m.g.size)
	for src := 0; src < m.g.size; src++ {
		select {
		case in[src] = <-m.g.links[src][m.rank]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return in, nil
}

func (m *member) Barrier(ctx context.Context) error {
	_, err := m.AllToAll(ctx, make([][]byte, m.g.size))
	return err
}

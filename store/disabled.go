//go:build nohdf5

package store

import (
	"context"

	"github.com/notargets/dgxdmf/comm"
)

// Available reports whether the binary store is compiled in
const Available = false

// Writer is a placeholder; Create never returns one in this build
type Writer struct{}

// Create always fails with ErrUnavailable
func Create(ctx context.Context, c comm.Communicator, filename string) (*Writer, error) {
	return nil, ErrUnavailable
}

func (w *Writer) Filename() string { return "" }

func (w *Writer) Write(ctx context.Context, path string, data any, localShape []int64) ([]int64, string, error) {
	return nil, "", ErrUnavailable
}

func (w *Writer) Flush(ctx context.Context) error { return ErrUnavailable }

func (w *Writer) Close() error { return nil }

// Read always fails with ErrUnavailable
func Read(filename, path string) (*Array, error) {
	return nil, ErrUnavailable
}

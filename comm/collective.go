package comm

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
)

// Typed collectives built on Communicator.AllToAll. Payloads are gob
// encoded, so T must be gob-encodable (exported fields, no channels).

type envelope[T any] struct {
	V T
}

func encode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope[T]{V: v}); err != nil {
		return nil, fmt.Errorf("comm: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func decode[T any](b []byte) (T, error) {
	var env envelope[T]
	if len(b) == 0 {
		return env.V, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return env.V, fmt.Errorf("comm: decode %T: %w", env.V, err)
	}
	return env.V, nil
}

// Exchange sends out[r] to rank r and returns the values received from each
// rank, indexed by source.
func Exchange[T any](ctx context.Context, c Communicator, out []T) ([]T, error) {
	if len(out) != c.Size() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(out), c.Size())
	}
	raw := make([][]byte, len(out))
	for r := range out {
		b, err := encode(out[r])
		if err != nil {
			return nil, err
		}
		raw[r] = b
	}
	in, err := c.AllToAll(ctx, raw)
	if err != nil {
		return nil, err
	}
	res := make([]T, len(in))
	for r := range in {
		if res[r], err = decode[T](in[r]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// AllGather returns every rank's v, indexed by rank, on all ranks.
func AllGather[T any](ctx context.Context, c Communicator, v T) ([]T, error) {
	out := make([]T, c.Size())
	for r := range out {
		out[r] = v
	}
	return Exchange(ctx, c, out)
}

// Gather collects every rank's v on root. Non-root ranks get nil.
func Gather[T any](ctx context.Context, c Communicator, root int, v T) ([]T, error) {
	b, err := encode(v)
	if err != nil {
		return nil, err
	}
	raw := make([][]byte, c.Size())
	raw[root] = b
	in, err := c.AllToAll(ctx, raw)
	if err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return nil, nil
	}
	res := make([]T, len(in))
	for r := range in {
		if res[r], err = decode[T](in[r]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Broadcast returns root's v on every rank.
func Broadcast[T any](ctx context.Context, c Communicator, root int, v T) (T, error) {
	raw := make([][]byte, c.Size())
	if c.Rank() == root {
		b, err := encode(v)
		if err != nil {
			return v, err
		}
		for r := range raw {
			raw[r] = b
		}
	}
	in, err := c.AllToAll(ctx, raw)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](in[root])
}

// Scatter hands parts[r] from root to rank r. Only root's parts is read.
func Scatter[T any](ctx context.Context, c Communicator, root int, parts []T) (T, error) {
	var zero T
	raw := make([][]byte, c.Size())
	if c.Rank() == root {
		if len(parts) != c.Size() {
			return zero, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(parts), c.Size())
		}
		for r := range parts {
			b, err := encode(parts[r])
			if err != nil {
				return zero, err
			}
			raw[r] = b
		}
	}
	in, err := c.AllToAll(ctx, raw)
	if err != nil {
		return zero, err
	}
	return decode[T](in[root])
}

// Number is the set of types AllReduceSum and ExclusiveScan accept.
type Number interface {
	~int | ~int32 | ~int64 | ~uint64 | ~float64
}

// AllReduceSum returns the sum of v over all ranks.
func AllReduceSum[N Number](ctx context.Context, c Communicator, v N) (N, error) {
	all, err := AllGather(ctx, c, v)
	if err != nil {
		return 0, err
	}
	var sum N
	for _, x := range all {
		sum += x
	}
	return sum, nil
}

// ExclusiveScan returns the sum of v over ranks below this one together
// with the sum over all ranks.
func ExclusiveScan[N Number](ctx context.Context, c Communicator, v N) (offset, total N, err error) {
	all, err := AllGather(ctx, c, v)
	if err != nil {
		return 0, 0, err
	}
	for r, x := range all {
		if r < c.Rank() {
			offset += x
		}
		total += x
	}
	return offset, total, nil
}

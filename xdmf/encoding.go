package xdmf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/store"
)

// dataSink places one collective array. It sets the Format attribute and
// the text of item and returns the global shape.
type dataSink interface {
	put(ctx context.Context, item *etree.Element, path string, data any, localShape []int64) ([]int64, error)
	format() string
}

// hdf5Sink writes arrays to the store; the item text references them as
// <store basename>:<store path>
type hdf5Sink struct {
	w    *store.Writer
	base string
}

func (s *hdf5Sink) format() string { return "HDF" }

func (s *hdf5Sink) put(ctx context.Context, item *etree.Element, path string, data any, localShape []int64) ([]int64, error) {
	global, dsPath, err := s.w.Write(ctx, path, data, localShape)
	if err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	item.CreateAttr("Format", s.format())
	item.SetText(s.base + ":" + dsPath)
	return global, nil
}

// xmlSink gathers the text of every segment to rank 0, which inlines it
type xmlSink struct {
	c comm.Communicator
}

func (s *xmlSink) format() string { return "XML" }

func (s *xmlSink) put(ctx context.Context, item *etree.Element, path string, data any, localShape []int64) ([]int64, error) {
	shapes, err := comm.AllGather(ctx, s.c, localShape)
	if err != nil {
		return nil, err
	}
	global, _, err := store.GlobalShape(shapes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	width := 1
	for _, d := range localShape[1:] {
		width *= int(d)
	}
	texts, err := comm.Gather(ctx, s.c, 0, formatValues(data, width))
	if err != nil {
		return nil, err
	}

	item.CreateAttr("Format", s.format())
	if s.c.Rank() == 0 {
		item.SetText("\n" + strings.Join(texts, ""))
	}
	return global, nil
}

// formatValues renders a flat array as text, width values per line.
// Floats use the shortest representation that parses back exactly.
func formatValues(data any, width int) string {
	var sb strings.Builder
	emit := func(i int, s string) {
		sb.WriteString(s)
		if (i+1)%width == 0 {
			sb.WriteByte('\n')
		} else {
			sb.WriteByte(' ')
		}
	}
	switch v := data.(type) {
	case []int32:
		for i, x := range v {
			emit(i, strconv.FormatInt(int64(x), 10))
		}
	case []int64:
		for i, x := range v {
			emit(i, strconv.FormatInt(x, 10))
		}
	case []uint64:
		for i, x := range v {
			emit(i, strconv.FormatUint(x, 10))
		}
	case []float64:
		for i, x := range v {
			emit(i, strconv.FormatFloat(x, 'g', -1, 64))
		}
	}
	return sb.String()
}

// sentinels are the errors that survive the trip between ranks
var sentinels = []error{ErrConfiguration, ErrFormat, ErrDataUnavailable, ErrNotFound, ErrDimensionMismatch}

// rankError is the wire form of an error raised on one rank
type rankError struct {
	Failed bool
	Kind   int // index into sentinels, -1 for none
	Msg    string
}

// remoteError is another rank's failure as seen locally
type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

// agree makes every rank fail when any rank does. A rank returns its own
// error if it has one, else the error of the lowest failing rank. It is
// collective and also serves as a barrier.
func agree(ctx context.Context, c comm.Communicator, err error) error {
	local := rankError{Kind: -1}
	if err != nil {
		local.Failed = true
		local.Msg = err.Error()
		for i, s := range sentinels {
			if errors.Is(err, s) {
				local.Kind = i
				break
			}
		}
	}
	all, cerr := comm.AllGather(ctx, c, local)
	if cerr != nil {
		if err != nil {
			return err
		}
		return cerr
	}
	if err != nil {
		return err
	}
	for r, re := range all {
		if !re.Failed {
			continue
		}
		e := &remoteError{msg: fmt.Sprintf("rank %d: %s", r, re.Msg)}
		if re.Kind >= 0 {
			e.kind = sentinels[re.Kind]
		}
		return e
	}
	return nil
}

// wrapStoreError maps store failures onto the package sentinels
func wrapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return err
}

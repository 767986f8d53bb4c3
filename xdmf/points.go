package xdmf

import (
	"context"
	"fmt"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/comm"
)

// WritePoints starts a fresh document holding this rank's points and,
// when any rank passes them, one scalar value per point
func (f *File) WritePoints(ctx context.Context, points [][3]float64, values []float64, enc Encoding) error {
	var err error
	if values != nil && len(values) != len(points) {
		err = fmt.Errorf("%w: %d values for %d points", ErrDimensionMismatch, len(values), len(points))
	}
	if err := agree(ctx, f.c, err); err != nil {
		return err
	}
	// values are all or nothing over the ranks holding points
	type pointCount struct {
		Points int
		Values bool
	}
	all, err := comm.AllGather(ctx, f.c, pointCount{len(points), values != nil})
	if err != nil {
		return err
	}
	var anyValues bool
	for _, pc := range all {
		anyValues = anyValues || pc.Values
	}
	if anyValues {
		for r, pc := range all {
			if pc.Points > 0 && !pc.Values {
				return fmt.Errorf("%w: rank %d passes %d points without values", ErrDimensionMismatch, r, pc.Points)
			}
		}
	}
	return f.write(ctx, "points", enc, true, func(w *writeTarget, domain *etree.Element) error {
		grid := newGrid(domain, "Point cloud")
		return addPoints(ctx, w, grid, points, values, f.meshPath("Points"))
	})
}

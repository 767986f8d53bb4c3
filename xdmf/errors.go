package xdmf

import "errors"

// Errors returned by File operations. They are wrapped with context, so
// callers test them with errors.Is:
//
//	if err := f.ReadMesh(ctx, m); errors.Is(err, xdmf.ErrDataUnavailable) {
//	    // the .h5 store is missing or incomplete
//	}
var (
	// ErrConfiguration indicates the requested encoding is not supported
	// by this build, or the options are invalid.
	ErrConfiguration = errors.New("xdmf: unsupported configuration")

	// ErrFormat indicates a malformed document: a missing or unparseable
	// attribute, an unknown cell shape, or declared shapes that disagree
	// with the data actually retrieved.
	ErrFormat = errors.New("xdmf: malformed document")

	// ErrDataUnavailable indicates that a referenced store file or path
	// does not exist.
	ErrDataUnavailable = errors.New("xdmf: data unavailable")

	// ErrNotFound indicates that no grid or attribute carries the
	// requested name.
	ErrNotFound = errors.New("xdmf: not found")

	// ErrDimensionMismatch indicates that the dimensions recorded in the
	// document disagree with the mesh or field supplied by the caller.
	ErrDimensionMismatch = errors.New("xdmf: dimension mismatch")
)

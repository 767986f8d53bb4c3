// Package xdmf writes meshes and the fields defined on them as XDMF 3
// index files, with the arrays inlined as text or kept in a companion HDF5
// store, and reads them back on any number of ranks.
package xdmf

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/store"
	"github.com/rs/zerolog"
)

// File is an XDMF index file and its companion HDF5 store, written
// collectively by every rank of a communicator. Every method that reads or
// writes is collective: all ranks must make the same calls in the same
// order.
type File struct {
	c        comm.Communicator
	filename string
	opts     Options
	log      zerolog.Logger

	doc     *etree.Document
	store   *store.Writer
	counter int
	closed  bool
}

// Open prepares filename for writing or reading. Nothing is created on
// disk until the first write.
func Open(ctx context.Context, c comm.Communicator, filename string, opts Options) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseEncoding(opts.Encoding); err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	log = log.With().Str("file", filepath.Base(filename)).Int("rank", c.Rank()).Logger()
	return &File{c: c, filename: filename, opts: opts, log: log}, nil
}

// Counter returns the number of writes issued so far
func (f *File) Counter() int { return f.counter }

// Filename returns the index file path
func (f *File) Filename() string { return f.filename }

// StoreFilename returns the path of the companion HDF5 file
func (f *File) StoreFilename() string { return store.Filename(f.filename) }

// Close releases the store. Further writes fail.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.store == nil {
		return nil
	}
	err := f.store.Close()
	f.store = nil
	return err
}

func (f *File) checkOpen() error {
	if f.closed {
		return fmt.Errorf("%w: %s is closed", ErrConfiguration, f.filename)
	}
	return nil
}

// resolveEncoding maps EncodingDefault onto the configured encoding, then
// onto HDF5 when the store is compiled in.
func (f *File) resolveEncoding(enc Encoding) (Encoding, error) {
	if enc == EncodingDefault {
		var err error
		if enc, err = ParseEncoding(f.opts.Encoding); err != nil {
			return enc, err
		}
	}
	if enc == EncodingDefault {
		enc = EncodingASCII
		if store.Available {
			enc = EncodingHDF5
		}
	}
	return enc, checkEncoding(enc)
}

func checkEncoding(enc Encoding) error {
	switch enc {
	case EncodingASCII:
		return nil
	case EncodingHDF5:
		if !store.Available {
			return fmt.Errorf("%w: HDF5 encoding requested but the store is not compiled in", ErrConfiguration)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown encoding %d", ErrConfiguration, enc)
}

// sinkFor returns the array destination for enc, creating the store on
// the first binary write.
func (f *File) sinkFor(ctx context.Context, enc Encoding) (dataSink, error) {
	if enc == EncodingASCII {
		return &xmlSink{c: f.c}, nil
	}
	if f.store == nil {
		w, err := store.Create(ctx, f.c, f.StoreFilename())
		if err != nil {
			return nil, wrapStoreError(err)
		}
		f.store = w
		f.log.Debug().Str("store", f.StoreFilename()).Msg("created store")
	}
	return &hdf5Sink{w: f.store, base: filepath.Base(f.StoreFilename())}, nil
}

// write runs one collective write. With reset the document starts fresh,
// otherwise fn appends to a copy of the current one. The document and the
// index file only change when every rank succeeds.
func (f *File) write(ctx context.Context, op string, enc Encoding, reset bool,
	fn func(w *writeTarget, domain *etree.Element) error) error {

	if err := f.checkOpen(); err != nil {
		return err
	}
	enc, err := f.resolveEncoding(enc)
	if err != nil {
		return err
	}
	sink, err := f.sinkFor(ctx, enc)
	if err := agree(ctx, f.c, err); err != nil {
		return err
	}

	var doc *etree.Document
	if reset || f.doc == nil {
		doc = newDocument()
	} else {
		doc = f.doc.Copy()
	}
	domain, err := domainOf(doc)
	if err != nil {
		return err
	}

	f.log.Debug().Str("op", op).Str("encoding", enc.String()).Int("counter", f.counter).Msg("write")
	err = fn(&writeTarget{c: f.c, sink: sink}, domain)
	// dataset names carry the counter, so it moves on even after a failure
	f.counter++
	if err := agree(ctx, f.c, err); err != nil {
		f.log.Debug().Err(err).Str("op", op).Msg("write failed")
		return err
	}
	if f.opts.FlushOutput && f.store != nil {
		if err := f.store.Flush(ctx); err != nil {
			return wrapStoreError(err)
		}
	}
	f.doc = doc
	return f.save(ctx)
}

// save writes the index on rank 0. It is collective.
func (f *File) save(ctx context.Context) error {
	var err error
	if f.c.Rank() == 0 {
		out := f.doc.Copy()
		out.Indent(f.opts.Indent)
		if err = out.WriteToFile(f.filename); err != nil {
			err = fmt.Errorf("saving %s: %w", f.filename, err)
		}
	}
	return agree(ctx, f.c, err)
}

// load flushes pending binary data and parses the index from disk. It is
// collective; every rank parses the file.
func (f *File) load(ctx context.Context) (*etree.Element, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if f.store != nil {
		if err := f.store.Flush(ctx); err != nil {
			return nil, wrapStoreError(err)
		}
	}
	var domain *etree.Element
	doc, err := loadDocument(f.filename)
	if err == nil {
		domain, err = domainOf(doc)
	}
	if err := agree(ctx, f.c, err); err != nil {
		return nil, err
	}
	return domain, nil
}

func (f *File) dir() string { return filepath.Dir(f.filename) }

func (f *File) meshPath(kind string) string {
	return fmt.Sprintf("/%s/%d", kind, f.counter)
}

// Command xdmfconv writes a mesh to XDMF. The mesh is either imported
// from a gmsh/gambit file or generated on the unit interval, square or
// cube, and may be partitioned over in-process ranks before writing. The
// file is read back and summarised once written.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/notargets/dgxdmf/partitions"
	"github.com/notargets/dgxdmf/xdmf"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type config struct {
	in          string
	unit        string
	n           int
	out         string
	encoding    string
	np          int
	partition   string
	configPath  string
	printConfig bool
	format      string
	facets      bool
	logLevel    string
}

func main() {
	var cfg config
	flag.StringVar(&cfg.in, "in", "", "gmsh or gambit mesh file to convert")
	flag.StringVar(&cfg.unit, "unit", "cube", "unit mesh when -in is empty: interval|square|quad|cube|hex")
	flag.IntVar(&cfg.n, "n", 4, "divisions per side of the unit mesh")
	flag.StringVar(&cfg.out, "out", "mesh.xdmf", "output XDMF file")
	flag.StringVar(&cfg.encoding, "encoding", "", "hdf5|ascii, overrides the config file")
	flag.IntVar(&cfg.np, "np", 1, "number of in-process ranks")
	flag.StringVar(&cfg.partition, "partition", "block", "partition strategy: block|roundrobin|sfc|graph (graph runs block)")
	flag.StringVar(&cfg.configPath, "config", "", "options file (toml, yaml or json)")
	flag.BoolVar(&cfg.printConfig, "print-config", false, "print the effective options and exit")
	flag.StringVar(&cfg.format, "format", "toml", "format of -print-config: toml|yaml")
	flag.BoolVar(&cfg.facets, "facets", false, "also write a facet function marking the boundary")
	flag.StringVar(&cfg.logLevel, "log-level", "", "trace|debug|info|warn|error|disabled, overrides the config file")
	flag.Parse()

	if err := run(context.Background(), cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "xdmfconv:", err)
		os.Exit(1)
	}
}

func newLogger(app string, level zerolog.Level, w io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
}

func loadOptions(cfg config) (xdmf.Options, error) {
	opts, err := xdmf.LoadOptions(cfg.configPath)
	if err != nil {
		return opts, err
	}
	if cfg.encoding != "" {
		opts.Encoding = cfg.encoding
	}
	if cfg.logLevel != "" {
		opts.LogLevel = cfg.logLevel
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func printOptions(w io.Writer, opts xdmf.Options, format string) error {
	switch format {
	case "", "toml":
		return toml.NewEncoder(w).Encode(opts)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(opts); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown config format %q (toml|yaml)", format)
}

func loadSource(cfg config) (*mesh.LocalMeshData, error) {
	if cfg.in != "" {
		return readMesh(cfg.in)
	}
	return unitMesh(cfg.unit, cfg.n)
}

func run(ctx context.Context, cfg config, stdout, stderr io.Writer) error {
	opts, err := loadOptions(cfg)
	if err != nil {
		return err
	}
	if cfg.printConfig {
		return printOptions(stdout, opts, cfg.format)
	}
	level, err := opts.ParseLevel()
	if err != nil {
		return err
	}
	logger := newLogger("xdmfconv", level, stderr)
	opts.Logger = &logger

	enc, err := xdmf.ParseEncoding(opts.Encoding)
	if err != nil {
		return err
	}
	strategy, err := partitions.ParseStrategy(cfg.partition)
	if err != nil {
		return err
	}
	data, err := loadSource(cfg)
	if err != nil {
		return err
	}
	logger.Info().
		Str("mesh", data.Name).
		Str("cell", data.CellType.String()).
		Int64("cells", data.NumGlobalCells()).
		Int64("vertices", data.NumGlobalVertices()).
		Int("np", cfg.np).
		Msg("loaded mesh")

	if strategy == partitions.GraphPartition {
		logger.Warn().Msg("graph partitioning is not implemented, cells are partitioned in blocks")
	}
	layout, err := partitions.Layout(data, cfg.np, strategy)
	if err != nil {
		return err
	}
	stats := layout.PartitionStatistics()
	logger.Debug().
		Str("strategy", strategy.String()).
		Int("partitions", stats.NumPartitions).
		Int("min_cells", stats.MinElements).
		Int("max_cells", stats.MaxElements).
		Float64("imbalance", stats.Imbalance).
		Msg("partitioned mesh")

	var summary string
	err = comm.Run(ctx, cfg.np, func(ctx context.Context, c comm.Communicator) error {
		var staged *mesh.LocalMeshData
		if c.Rank() == 0 {
			staged = data
		}
		m, err := partitions.Distribute(ctx, c, staged, strategy)
		if err != nil {
			return err
		}
		s, err := convert(ctx, c, m, cfg, opts, enc)
		if c.Rank() == 0 {
			summary = s
		}
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, summary)
	return err
}

// convert writes m on every rank and reads it back
func convert(ctx context.Context, c comm.Communicator, m *mesh.Mesh, cfg config,
	opts xdmf.Options, enc xdmf.Encoding) (string, error) {

	f, err := xdmf.Open(ctx, c, cfg.out, opts)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.WriteMesh(ctx, m, enc); err != nil {
		return "", err
	}
	if cfg.facets {
		if err := writeBoundary(ctx, c, f, m, enc); err != nil {
			return "", err
		}
	}

	var back mesh.Mesh
	if err := f.ReadMesh(ctx, &back); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %d %s cells, %d vertices, degree %d, gdim %d",
		f.Filename(), back.NumGlobalCells, back.CellType, back.NumGlobalVertices,
		back.Degree, back.GDim), nil
}

// writeBoundary marks exterior facets with 1 and interior facets with 0
func writeBoundary(ctx context.Context, c comm.Communicator, f *xdmf.File, m *mesh.Mesh, enc xdmf.Encoding) error {
	exterior, err := xdmf.BoundaryFacets(ctx, c, m)
	if err != nil {
		return err
	}
	mf, err := mesh.NewMeshFunction[uint64]("boundaries", m, m.TDim()-1)
	if err != nil {
		return err
	}
	for e, ext := range exterior {
		if ext {
			mf.Values[e] = 1
		}
	}
	return xdmf.WriteMeshFunction(ctx, f, mf, enc)
}

package xdmf

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/notargets/dgxdmf/comm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in   string
		want Encoding
	}{
		{"", EncodingDefault},
		{"default", EncodingDefault},
		{"HDF5", EncodingHDF5},
		{"h5", EncodingHDF5},
		{"ascii", EncodingASCII},
		{" xml ", EncodingASCII},
	}
	for _, tt := range tests {
		got, err := ParseEncoding(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseEncoding("netcdf")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, "hdf5", EncodingHDF5.String())
}

func TestOptions_Validate(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())

	opts.Indent = 12
	assert.ErrorIs(t, opts.Validate(), ErrConfiguration)

	opts = DefaultOptions()
	opts.LogLevel = "loud"
	assert.ErrorIs(t, opts.Validate(), ErrConfiguration)

	opts = DefaultOptions()
	opts.LogLevel = "debug"
	lvl, err := opts.ParseLevel()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults", func(t *testing.T) {
		opts, err := LoadOptions("")
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), opts)
	})

	t.Run("toml file", func(t *testing.T) {
		path := filepath.Join(dir, "xdmf.toml")
		var buf bytes.Buffer
		want := DefaultOptions()
		want.Encoding = "ascii"
		want.RewriteFunctionMesh = false
		want.FlushOutput = true
		want.Indent = 4
		require.NoError(t, toml.NewEncoder(&buf).Encode(want))
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

		opts, err := LoadOptions(path)
		require.NoError(t, err)
		assert.Equal(t, want, opts)
	})

	t.Run("environment wins", func(t *testing.T) {
		path := filepath.Join(dir, "env.toml")
		require.NoError(t, os.WriteFile(path, []byte("encoding = \"ascii\"\n"), 0o644))
		t.Setenv("DGXDMF_ENCODING", "hdf5")
		t.Setenv("DGXDMF_FUNCTIONS_SHARE_MESH", "true")

		opts, err := LoadOptions(path)
		require.NoError(t, err)
		assert.Equal(t, "hdf5", opts.Encoding)
		assert.True(t, opts.FunctionsShareMesh)
	})

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("indent = 40\n"), 0o644))
		_, err := LoadOptions(path)
		assert.ErrorIs(t, err, ErrConfiguration)

		_, err = LoadOptions(filepath.Join(dir, "absent.toml"))
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestSetParameters(t *testing.T) {
	f, err := Open(context.Background(), comm.Self(), filepath.Join(t.TempDir(), "p.xdmf"), DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, f.SetParameters(map[string]any{
		"rewrite_function_mesh": "false",
		"flush_output":          1,
	}))
	assert.False(t, f.opts.RewriteFunctionMesh)
	assert.True(t, f.opts.FlushOutput)

	err = f.SetParameters(map[string]any{"rewrite_mesh": true})
	assert.ErrorIs(t, err, ErrConfiguration)
	err = f.SetParameters(map[string]any{"indent": -1})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, f.opts.RewriteFunctionMesh)
}

package xdmf

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Encoding selects where heavy data lives
type Encoding int

const (
	// EncodingDefault defers to Options.Encoding, then to HDF5 when the
	// binary store is compiled in, then to ASCII.
	EncodingDefault Encoding = iota
	// EncodingHDF5 writes arrays to the .h5 store next to the index file
	EncodingHDF5
	// EncodingASCII writes arrays inline as whitespace separated text
	EncodingASCII
)

func (e Encoding) String() string {
	switch e {
	case EncodingDefault:
		return "default"
	case EncodingHDF5:
		return "hdf5"
	case EncodingASCII:
		return "ascii"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// ParseEncoding resolves an encoding from its String form, case-insensitively
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return EncodingDefault, nil
	case "hdf5", "h5":
		return EncodingHDF5, nil
	case "ascii", "xml":
		return EncodingASCII, nil
	}
	return EncodingDefault, fmt.Errorf("%w: unknown encoding %q", ErrConfiguration, s)
}

// Options controls a File. Start from DefaultOptions; the zero value
// disables mesh rewriting in time series.
type Options struct {
	// Encoding used when a write passes EncodingDefault
	Encoding string `mapstructure:"encoding" toml:"encoding" yaml:"encoding" validate:"omitempty,oneof=default hdf5 h5 ascii xml"`

	// RewriteFunctionMesh writes topology and geometry for every time
	// step instead of referencing the first step's
	RewriteFunctionMesh bool `mapstructure:"rewrite_function_mesh" toml:"rewrite_function_mesh" yaml:"rewrite_function_mesh"`

	// FunctionsShareMesh collects every function in one time series and
	// groups functions written at the same time into one grid
	FunctionsShareMesh bool `mapstructure:"functions_share_mesh" toml:"functions_share_mesh" yaml:"functions_share_mesh"`

	// FlushOutput flushes the store after every write
	FlushOutput bool `mapstructure:"flush_output" toml:"flush_output" yaml:"flush_output"`

	// Indent is the number of spaces per level in the saved index file
	Indent int `mapstructure:"indent" toml:"indent" yaml:"indent" validate:"gte=0,lte=8"`

	// LogLevel is applied to Logger when one is built by the caller from
	// these options; File itself logs at Debug.
	LogLevel string `mapstructure:"log_level" toml:"log_level" yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error disabled"`

	// Logger receives per-operation debug events; nil discards them
	Logger *zerolog.Logger `mapstructure:"-" toml:"-" yaml:"-" validate:"-"`
}

// DefaultOptions returns the defaults of a new File
func DefaultOptions() Options {
	return Options{
		Encoding:            EncodingDefault.String(),
		RewriteFunctionMesh: true,
		Indent:              2,
		LogLevel:            "info",
	}
}

var validate = validator.New()

// Validate checks the options using their struct tags
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, formatValidationError(err))
	}
	return nil
}

// formatValidationError converts validator errors into a readable message
func formatValidationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// ParseLevel returns the zerolog level named by LogLevel, info when empty
func (o *Options) ParseLevel() (zerolog.Level, error) {
	if o.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(o.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return lvl, nil
}

// LoadOptions reads options with precedence environment (DGXDMF_*), then
// the config file at path (TOML, YAML or JSON), then DefaultOptions. An
// empty path skips the file.
func LoadOptions(path string) (Options, error) {
	v := viper.New()
	v.SetEnvPrefix("DGXDMF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultOptions()
	v.SetDefault("encoding", def.Encoding)
	v.SetDefault("rewrite_function_mesh", def.RewriteFunctionMesh)
	v.SetDefault("functions_share_mesh", def.FunctionsShareMesh)
	v.SetDefault("flush_output", def.FlushOutput)
	v.SetDefault("indent", def.Indent)
	v.SetDefault("log_level", def.LogLevel)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Options{}, fmt.Errorf("%w: reading %s: %v", ErrConfiguration, path, err)
			}
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// SetParameters updates the time series parameters from a loosely typed
// bag, e.g. {"rewrite_function_mesh": false}. Unknown keys are rejected.
func (f *File) SetParameters(params map[string]any) error {
	opts := f.opts
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	opts.Logger = f.opts.Logger
	f.opts = opts
	return nil
}

// Package config implements the engine's two configuration surfaces: the
// process-wide Config flags of §9 (loaded from file/env/flags via
// spf13/viper, replacing the source's preprocessor-flag configuration) and
// CombiParameters, the immutable run parameters of §3 distributed once to
// every worker via UPDATE_COMBI_PARAMETERS.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/sgct-project/combi/pkg/errs"
	"github.com/sgct-project/combi/pkg/fullgrid"
)

// Config holds the recognised options named in §9, replacing the source's
// ISGENE/UNIFORMDECOMPOSITION/ENABLEFT preprocessor flags with a plain
// struct checked once at construction.
type Config struct {
	ElementType               fullgrid.ElementType
	UniformDecomposition      bool
	EnableFaultTolerance      bool
	UseNonblockingCollectives bool
	OmitReadySignal           bool
	ReverseDFGPartitionOrder  bool
}

// Load reads Config from v, applying defaults for any unset key, then
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("elementType", "real")
	v.SetDefault("uniformDecomposition", true)
	v.SetDefault("enableFaultTolerance", false)
	v.SetDefault("useNonblockingCollectives", false)
	v.SetDefault("omitReadySignal", false)
	v.SetDefault("reverseDFGPartitionOrder", false)

	et, err := parseElementType(v.GetString("elementType"))
	if err != nil {
		return nil, err
	}
	c := &Config{
		ElementType:               et,
		UniformDecomposition:      v.GetBool("uniformDecomposition"),
		EnableFaultTolerance:      v.GetBool("enableFaultTolerance"),
		UseNonblockingCollectives: v.GetBool("useNonblockingCollectives"),
		OmitReadySignal:           v.GetBool("omitReadySignal"),
		ReverseDFGPartitionOrder:  v.GetBool("reverseDFGPartitionOrder"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseElementType(s string) (fullgrid.ElementType, error) {
	switch strings.ToLower(s) {
	case "", "real":
		return fullgrid.Real, nil
	case "complex":
		return fullgrid.Complex, nil
	default:
		return 0, errs.New(errs.InvalidScheme, "config: unrecognised elementType %q", s)
	}
}

// Validate checks for incompatible combinations of options, per §9:
// non-blocking collectives assume the engine can poll for completion
// independently of the ready-signal handshake, so the two cannot be
// combined.
func (c *Config) Validate() error {
	if c.UseNonblockingCollectives && c.OmitReadySignal {
		return errs.New(errs.InvalidScheme, "config: useNonblockingCollectives and omitReadySignal cannot both be set")
	}
	return nil
}

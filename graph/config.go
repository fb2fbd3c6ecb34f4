package graph

import (
	"io"

	"github.com/metadiff/core/dtype"
	"github.com/metadiff/core/policy"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// Config groups every graph-level setting, following the teacher's
// struct-of-documented-knobs idiom (see sqle.Config in the teacher's
// engine.go) rather than a long New() parameter list.
type Config struct {
	// Device is the default device tag assigned to nodes that don't
	// override it. The core never schedules across devices; this is
	// carried purely as a tag (see the Non-goals).
	Device string
	// MaxFloat caps how wide a promoted float type may grow.
	MaxFloat dtype.Type
	// MaxInt caps how wide a promoted integer type may grow.
	MaxInt dtype.Type
	// Broadcast controls the reaction to an elementwise operator needing
	// an implicit Broadcast node.
	Broadcast policy.ErrorPolicy
	// Promotion controls the reaction to an implicit dtype promotion.
	Promotion policy.ErrorPolicy
	// Cast controls the reaction to an implicit Cast node (e.g. coercing a
	// non-b8 operand of a logical operator).
	Cast policy.ErrorPolicy
}

// DefaultConfig returns a Config with the widest caps and Quiet policies.
func DefaultConfig() Config {
	return Config{
		Device:    "cpu",
		MaxFloat:  dtype.F64,
		MaxInt:    dtype.I64,
		Broadcast: policy.Quiet,
		Promotion: policy.Quiet,
		Cast:      policy.Quiet,
	}
}

func (c Config) caps() dtype.Caps {
	return dtype.Caps{MaxFloat: c.MaxFloat, MaxInt: c.MaxInt}
}

// Caps exposes the configured float/int promotion caps to the ops package.
func (c Config) Caps() dtype.Caps { return c.caps() }

// yamlConfig mirrors Config's field names for parsing (lower-case YAML
// keys), matching the teacher's direct dependency on gopkg.in/yaml.v2 for
// settings files.
type yamlConfig struct {
	Device    string `yaml:"device"`
	MaxFloat  string `yaml:"max_float"`
	MaxInt    string `yaml:"max_int"`
	Broadcast string `yaml:"broadcast_policy"`
	Promotion string `yaml:"promotion_policy"`
	Cast      string `yaml:"cast_policy"`
}

var dtypeByName = map[string]dtype.Type{
	"b8": dtype.B8, "u8": dtype.U8, "u16": dtype.U16, "u32": dtype.U32, "u64": dtype.U64,
	"i8": dtype.I8, "i16": dtype.I16, "i32": dtype.I32, "i64": dtype.I64,
	"f8": dtype.F8, "f16": dtype.F16, "f32": dtype.F32, "f64": dtype.F64,
}

var policyByName = map[string]policy.ErrorPolicy{
	"quiet": policy.Quiet, "warn": policy.Warn, "raise": policy.Raise,
}

// LoadConfig parses a YAML configuration document into a Config, starting
// from DefaultConfig for any field the document omits.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	raw, err := io.ReadAll(r)
	if err != nil {
		return cfg, errors.Wrap(err, "reading graph config")
	}
	if len(raw) == 0 {
		return cfg, nil
	}

	var y yamlConfig
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return cfg, errors.Wrap(err, "parsing graph config")
	}

	if y.Device != "" {
		cfg.Device = y.Device
	}
	if dt, ok := dtypeByName[y.MaxFloat]; ok {
		cfg.MaxFloat = dt
	}
	if dt, ok := dtypeByName[y.MaxInt]; ok {
		cfg.MaxInt = dt
	}
	if p, ok := policyByName[y.Broadcast]; ok {
		cfg.Broadcast = p
	}
	if p, ok := policyByName[y.Promotion]; ok {
		cfg.Promotion = p
	}
	if p, ok := policyByName[y.Cast]; ok {
		cfg.Cast = p
	}
	return cfg, nil
}

// Option customizes a Graph at construction time.
type Option func(*Graph)

// WithObserver attaches a policy.Observer notified of every implicit
// coercion decision made under a Warn or Raise policy.
func WithObserver(obs policy.Observer) Option {
	return func(g *Graph) { g.observer = obs }
}

// WithLogger attaches a logrus.Logger used for rewrite-pass diagnostics.
func WithLogger(l *logrus.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

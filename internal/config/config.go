package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/threshold"
	"gopkg.in/yaml.v3"
)

// #region config-types

// Decoder kinds.
const (
	DecoderZXing  = "zxing"
	DecoderRemote = "remote"
)

// Config is the harness configuration, normally read from suites.yaml.
type Config struct {
	FixtureRoot string        `yaml:"fixture_root"`
	Decoder     DecoderConfig `yaml:"decoder"`
	History     HistoryConfig `yaml:"history"`
	Watch       WatchConfig   `yaml:"watch"`
	Serve       ServeConfig   `yaml:"serve"`
	Suites      []SuiteConfig `yaml:"suites"`
}

// DecoderConfig selects the decoder under test.
type DecoderConfig struct {
	Kind    string   `yaml:"kind"`    // "zxing" | "remote"
	Addr    string   `yaml:"addr"`    // remote only
	Formats []string `yaml:"formats"` // zxing only; empty means every suite's format
}

// HistoryConfig locates the run history database. An empty path disables recording.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// ServeConfig configures the gRPC decoder service.
type ServeConfig struct {
	Addr    string   `yaml:"addr"`
	Formats []string `yaml:"formats"`
}

// SuiteConfig declares one black-box suite. Rotations keep their file order;
// max misread fields left out of the file default to 0.
type SuiteConfig struct {
	Name      string                        `yaml:"name"`
	Path      string                        `yaml:"path"`
	Format    string                        `yaml:"format"`
	Rotations []threshold.RotationThreshold `yaml:"rotations"`
}

// #endregion config-types

// #region defaults

// DefaultConfig returns a config with no suites.
func DefaultConfig() *Config {
	return &Config{
		FixtureRoot: "testdata/blackbox",
		Decoder:     DecoderConfig{Kind: DecoderZXing},
		Watch:       WatchConfig{Debounce: 500 * time.Millisecond},
		Serve: ServeConfig{
			Addr:    ":50061",
			Formats: []string{string(decode.FormatQRCode)},
		},
	}
}

// #endregion defaults

// #region load

// Load reads a YAML file over DefaultConfig and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets the environment (or a .env file) redirect the
// decoder, history database and fixture root without editing the YAML.
func (c *Config) applyEnvOverrides() {
	if kind := os.Getenv("BLACKBOX_DECODER"); kind != "" {
		c.Decoder.Kind = kind
	}
	if addr := os.Getenv("BLACKBOX_DECODER_ADDR"); addr != "" {
		c.Decoder.Addr = addr
		if os.Getenv("BLACKBOX_DECODER") == "" {
			c.Decoder.Kind = DecoderRemote
		}
	}
	if path := os.Getenv("BLACKBOX_DB"); path != "" {
		c.History.Path = path
	}
	if root := os.Getenv("BLACKBOX_FIXTURE_ROOT"); root != "" {
		c.FixtureRoot = root
	}
}

// #endregion load

// #region validate

// Validate checks the decoder selection and every suite declaration.
func (c *Config) Validate() error {
	switch c.Decoder.Kind {
	case DecoderZXing:
		for _, f := range c.Decoder.Formats {
			if _, err := decode.ParseFormat(f); err != nil {
				return fmt.Errorf("decoder: %w", err)
			}
		}
	case DecoderRemote:
		if c.Decoder.Addr == "" {
			return fmt.Errorf("decoder: remote decoder needs an address (set BLACKBOX_DECODER_ADDR)")
		}
	default:
		return fmt.Errorf("decoder: unknown kind %q (valid: %s, %s)", c.Decoder.Kind, DecoderZXing, DecoderRemote)
	}

	if len(c.Suites) == 0 {
		return fmt.Errorf("no suites declared")
	}
	seen := make(map[string]bool, len(c.Suites))
	for _, s := range c.Suites {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("suite %s: declared twice", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Validate checks one suite: a name, a path, a known format, at least one
// rotation, non-negative counts and no repeated rotation. The repeat check
// is stricter than blackbox.Case.AddTestWithMax, which accepts the same angle
// twice; history regressions match rotations by angle, so a suite file must
// name each angle once.
func (s SuiteConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("suite with path %q has no name", s.Path)
	}
	if s.Path == "" {
		return fmt.Errorf("suite %s: no path", s.Name)
	}
	if _, err := decode.ParseFormat(s.Format); err != nil {
		return fmt.Errorf("suite %s: %w", s.Name, err)
	}
	if len(s.Rotations) == 0 {
		return fmt.Errorf("suite %s: no rotations", s.Name)
	}
	angles := make(map[float64]bool, len(s.Rotations))
	for _, r := range s.Rotations {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("suite %s: %w", s.Name, err)
		}
		if angles[r.Rotation] {
			return fmt.Errorf("suite %s: rotation %g declared twice", s.Name, r.Rotation)
		}
		angles[r.Rotation] = true
	}
	return nil
}

// #endregion validate

// #region accessors

// BarcodeFormat returns the parsed expected format. Call after Validate.
func (s SuiteConfig) BarcodeFormat() decode.BarcodeFormat {
	f, _ := decode.ParseFormat(s.Format)
	return f
}

// SuitePath resolves a suite's path against FixtureRoot.
func (c *Config) SuitePath(s SuiteConfig) string {
	if filepath.IsAbs(s.Path) {
		return s.Path
	}
	return filepath.Join(c.FixtureRoot, s.Path)
}

// Select returns the named suites in the order given, or every suite when
// names is empty.
func (c *Config) Select(names []string) ([]SuiteConfig, error) {
	if len(names) == 0 {
		return c.Suites, nil
	}
	byName := make(map[string]SuiteConfig, len(c.Suites))
	for _, s := range c.Suites {
		byName[s.Name] = s
	}
	out := make([]SuiteConfig, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown suite %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

// DecoderFormats is the format list for an in-process decoder: the configured
// list, or else every distinct suite format in declaration order.
func (c *Config) DecoderFormats() []decode.BarcodeFormat {
	var out []decode.BarcodeFormat
	seen := map[decode.BarcodeFormat]bool{}
	add := func(raw string) {
		f, err := decode.ParseFormat(raw)
		if err != nil || seen[f] {
			return
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(c.Decoder.Formats) > 0 {
		for _, f := range c.Decoder.Formats {
			add(f)
		}
		return out
	}
	for _, s := range c.Suites {
		add(s.Format)
	}
	return out
}

// #endregion accessors

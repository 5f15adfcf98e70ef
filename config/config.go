// Package config implements the configuration for the tracker binary.
package config

import (
	"io"
	"io/ioutil"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	trackerhttp "github.com/coelacanth/tracker/frontend/http"
)

// Duration wraps a time.Duration and adds YAML marshalling, since
// gopkg.in/yaml.v2 has no built-in notion of a human-readable duration and
// would otherwise decode a bare integer as a nanosecond count.
type Duration struct{ time.Duration }

// MarshalYAML transforms a Duration into its string representation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML transforms a YAML string, such as "60s", into a Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(str)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// TrackerConfig holds the protocol-level settings the tracker package
// needs: the interval clients are told to announce at, the address used
// when a request supplies none, and whether compact-mode peer lists are
// the default.
type TrackerConfig struct {
	AnnounceInterval Duration `yaml:"announce_interval"`
	DefaultIP        string   `yaml:"default_ip"`
	CompactDefault   bool     `yaml:"compact_default"`
}

// StoreConfig holds the settings needed to open the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// MetricsConfig holds the settings for the standalone metrics server.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the global configuration for the tracker binary.
type Config struct {
	Tracker TrackerConfig      `yaml:"tracker"`
	Store   StoreConfig        `yaml:"store"`
	HTTP    trackerhttp.Config `yaml:"http"`
	Metrics MetricsConfig      `yaml:"metrics"`
}

// DefaultConfig is a sane configuration used as a fallback or in tests.
var DefaultConfig = Config{
	Tracker: TrackerConfig{
		AnnounceInterval: Duration{60 * time.Second},
		CompactDefault:   false,
	},
	Store: StoreConfig{
		Driver: "sqlite",
		DSN:    "file::memory:?cache=shared",
	},
	HTTP: trackerhttp.Config{
		Addr:           ":6881",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		RequestTimeout: 5 * time.Second,
	},
	Metrics: MetricsConfig{
		Addr: ":6880",
	},
}

// ConfigFile represents a YAML configuration file that namespaces all
// tracker configuration under a "tracker_server" key, mirroring the
// teacher's namespaced-top-level-key convention.
type ConfigFile struct {
	TrackerServer Config `yaml:"tracker_server"`
}

// Decode unmarshals an io.Reader into a new Config, starting from
// DefaultConfig so that a partial file only overrides the fields it sets.
func Decode(r io.Reader) (*Config, error) {
	contents, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfgFile := ConfigFile{TrackerServer: DefaultConfig}
	if err := yaml.Unmarshal(contents, &cfgFile); err != nil {
		return nil, err
	}

	return &cfgFile.TrackerServer, nil
}

// Open returns a new Config given the path to a YAML configuration file.
// It supports relative and absolute paths and environment variables in
// the path. Given "", it returns DefaultConfig.
func Open(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig
		return &cfg, nil
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

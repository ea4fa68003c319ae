// Package config loads and validates the berth configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cameronsjo/berth/internal/enumerate"
)

// EnvPrefix prefixes every environment override, e.g. BERTH_LOCAL_SHARE.
const EnvPrefix = "BERTH"

// ErrInvalid indicates the configuration failed validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the berth configuration.
type Config struct {
	// LocalShare is the root of the shared folder on this node.
	LocalShare string `mapstructure:"local_share" yaml:"local_share"`
	// WorkingFolder holds staging copies of peer snapshots.
	WorkingFolder string `mapstructure:"working_folder" yaml:"working_folder"`
	// SnapshotName is the snapshot filename every node publishes.
	SnapshotName string `mapstructure:"snapshot_name" yaml:"snapshot_name"`
	// RemoteLocations are the peers' shared folders, in evaluation order.
	RemoteLocations []string `mapstructure:"remote_locations" yaml:"remote_locations"`
	// Exceptions are filename suffixes never published.
	Exceptions []string `mapstructure:"exceptions" yaml:"exceptions"`

	// GenerationInterval schedules the publish loop.
	GenerationInterval string `mapstructure:"generation_interval" yaml:"generation_interval"`
	// CheckInterval schedules the reconcile loop.
	CheckInterval string `mapstructure:"check_interval" yaml:"check_interval"`

	// StagingName is the staging filename template.
	StagingName string `mapstructure:"staging_name" yaml:"staging_name"`

	Enumerator       EnumeratorConfig `mapstructure:"enumerator" yaml:"enumerator"`
	EnumerateTimeout time.Duration    `mapstructure:"enumerate_timeout" yaml:"enumerate_timeout"`
	FetchTimeout     time.Duration    `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`

	Log LogConfig `mapstructure:"log" yaml:"log"`

	// MetricsAddr enables the HTTP status server when set, e.g. ":9310".
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// EnumeratorConfig selects the open-file enumerator command.
type EnumeratorConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
}

// LogConfig controls console and file logging.
type LogConfig struct {
	// Verbosity is 1 (errors and milestones) to 3 (trace).
	Verbosity int `mapstructure:"verbosity" yaml:"verbosity"`
	// File is an optional log file, rotated by size.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	// Color is auto, always or never.
	Color string `mapstructure:"color" yaml:"color"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		WorkingFolder:      filepath.Join(os.TempDir(), "berth"),
		SnapshotName:       "openfiles.dat",
		RemoteLocations:    []string{},
		Exceptions:         []string{},
		GenerationInterval: "10s",
		CheckInterval:      "10s",
		StagingName:        "{{ .Host }}_{{ .Snapshot }}",
		Enumerator: EnumeratorConfig{
			Command: enumerate.DefaultCommand,
			Args:    append([]string(nil), enumerate.DefaultArgs...),
		},
		EnumerateTimeout: 30 * time.Second,
		FetchTimeout:     30 * time.Second,
		Log: LogConfig{
			Verbosity:  1,
			MaxSizeMB:  1,
			MaxBackups: 3,
			Color:      "auto",
		},
	}
}

// SetDefaults registers every key with v so environment overrides apply
// even when no config file sets them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("local_share", d.LocalShare)
	v.SetDefault("working_folder", d.WorkingFolder)
	v.SetDefault("snapshot_name", d.SnapshotName)
	v.SetDefault("remote_locations", d.RemoteLocations)
	v.SetDefault("exceptions", d.Exceptions)
	v.SetDefault("generation_interval", d.GenerationInterval)
	v.SetDefault("check_interval", d.CheckInterval)
	v.SetDefault("staging_name", d.StagingName)
	v.SetDefault("enumerator.command", d.Enumerator.Command)
	v.SetDefault("enumerator.args", d.Enumerator.Args)
	v.SetDefault("enumerate_timeout", d.EnumerateTimeout)
	v.SetDefault("fetch_timeout", d.FetchTimeout)
	v.SetDefault("log.verbosity", d.Log.Verbosity)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.color", d.Log.Color)
	v.SetDefault("metrics_addr", d.MetricsAddr)
}

// Load reads the configuration into v and returns it validated.
//
// Sources, lowest precedence first: defaults, the config file, BERTH_*
// environment variables, then any flags already bound to v. When path is
// empty, berth.yaml is searched in the working directory and the user
// config directory; a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("berth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "berth"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalize makes local paths absolute.
func (c *Config) normalize() error {
	for _, p := range []*string{&c.LocalShare, &c.WorkingFolder} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.LocalShare == "" {
		errs = append(errs, errors.New("local_share is required"))
	}
	if c.WorkingFolder == "" {
		errs = append(errs, errors.New("working_folder is required"))
	}
	if c.SnapshotName == "" || filepath.Base(c.SnapshotName) != c.SnapshotName || strings.ContainsAny(c.SnapshotName, `/\`) {
		errs = append(errs, fmt.Errorf("snapshot_name %q must be a plain filename", c.SnapshotName))
	}
	for i, loc := range c.RemoteLocations {
		if strings.TrimSpace(loc) == "" {
			errs = append(errs, fmt.Errorf("remote_locations[%d] is empty", i))
		}
	}
	if _, err := ParseSchedule(c.GenerationInterval); err != nil {
		errs = append(errs, fmt.Errorf("generation_interval: %w", err))
	}
	if _, err := ParseSchedule(c.CheckInterval); err != nil {
		errs = append(errs, fmt.Errorf("check_interval: %w", err))
	}
	if c.EnumerateTimeout < 0 {
		errs = append(errs, errors.New("enumerate_timeout must not be negative"))
	}
	if c.FetchTimeout < 0 {
		errs = append(errs, errors.New("fetch_timeout must not be negative"))
	}
	if c.Log.Verbosity < 1 || c.Log.Verbosity > 3 {
		errs = append(errs, fmt.Errorf("log.verbosity %d must be between 1 and 3", c.Log.Verbosity))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		errs = append(errs, errors.New("log.max_size_mb and log.max_backups must not be negative"))
	}
	switch c.Log.Color {
	case "", "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("log.color %q must be auto, always or never", c.Log.Color))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Schedules returns the publish and reconcile schedules.
func (c *Config) Schedules() (generation, check cron.Schedule, err error) {
	if generation, err = ParseSchedule(c.GenerationInterval); err != nil {
		return nil, nil, fmt.Errorf("generation_interval: %w", err)
	}
	if check, err = ParseSchedule(c.CheckInterval); err != nil {
		return nil, nil, fmt.Errorf("check_interval: %w", err)
	}
	return generation, check, nil
}

// scheduleParser accepts standard cron specs with optional seconds and
// descriptors such as @every 30s or @hourly.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses an interval. A bare integer is milliseconds, then a
// Go duration is tried, then a cron spec.
func ParseSchedule(s string) (cron.Schedule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty interval")
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return every(time.Duration(ms) * time.Millisecond)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return every(d)
	}

	sched, err := scheduleParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse interval %q: %w", s, err)
	}
	return sched, nil
}

func every(d time.Duration) (cron.Schedule, error) {
	if d <= 0 {
		return nil, fmt.Errorf("interval %s must be positive", d)
	}
	if d%time.Second == 0 {
		return cron.Every(d), nil
	}
	// cron.Every rounds to whole seconds.
	return fixedDelay(d), nil
}

// fixedDelay is a sub-second constant delay schedule.
type fixedDelay time.Duration

func (f fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(f))
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}

const sampleHeader = `# berth configuration
#
# Every key can be overridden with an environment variable, e.g.
# BERTH_LOCAL_SHARE or BERTH_LOG_VERBOSITY. Intervals accept a Go duration
# (10s), a bare integer in milliseconds (10000) or a cron spec (@every 1m).
`

// Sample renders a starter configuration file.
func Sample() ([]byte, error) {
	cfg := Default()
	cfg.LocalShare = `C:\share`
	cfg.WorkingFolder = `C:\berth`
	cfg.RemoteLocations = []string{`\\NODE2\share`, `\\NODE3\share`}
	cfg.Exceptions = []string{".tmp", ".bak"}

	body, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}
	return append([]byte(sampleHeader), body...), nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete browserd configuration
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths" yaml:"paths"`
	Ports   PortsConfig   `mapstructure:"ports" yaml:"ports"`
	Stop    StopConfig    `mapstructure:"stop" yaml:"stop"`
	Orphan  OrphanConfig  `mapstructure:"orphan" yaml:"orphan"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// PathsConfig controls where browserd keeps its state
type PathsConfig struct {
	// StateDir holds the log file and, by default, the registry and profiles.
	// A leading ~ expands to the home directory. (default: ~/.browserd)
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
	// RegistryDir holds one <port>.json record per running instance.
	// Empty means <state_dir>/instances.
	RegistryDir string `mapstructure:"registry_dir" yaml:"registry_dir"`
	// ProfilesDir is the parent of profile directories created by `run`.
	// Empty means <state_dir>/profiles.
	ProfilesDir string `mapstructure:"profiles_dir" yaml:"profiles_dir"`
}

// PortsConfig controls port allocation
type PortsConfig struct {
	// DefaultPort is the primary port requested when --port is not given
	DefaultPort int `mapstructure:"default_port" yaml:"default_port"`
	// MaxAttempts is how many port pairs auto-selection tries
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// Host is the loopback address ports are probed on
	Host string `mapstructure:"host" yaml:"host"`
}

// StopConfig controls how instances are stopped
type StopConfig struct {
	// GracePeriodMs is how long an owner gets to exit after SIGTERM
	GracePeriodMs int `mapstructure:"grace_period_ms" yaml:"grace_period_ms"`
	// KillTimeoutMs is how long a process gets to disappear after SIGKILL
	KillTimeoutMs int `mapstructure:"kill_timeout_ms" yaml:"kill_timeout_ms"`
	// PollIntervalMs is the liveness polling period while waiting
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// OrphanConfig controls the orphaned browser sweep
type OrphanConfig struct {
	// Marker is the command-line substring identifying browsers we launched.
	// Empty means the resolved profiles directory.
	Marker string `mapstructure:"marker" yaml:"marker"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes logs to <state_dir>/browserd.log (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum level logged: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the size at which the log file rotates (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is how many rotated files are kept (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir: "~/.browserd",
		},
		Ports: PortsConfig{
			DefaultPort: 9867,
			MaxAttempts: 20,
			Host:        "127.0.0.1",
		},
		Stop: StopConfig{
			GracePeriodMs:  5000,
			KillTimeoutMs:  2000,
			PollIntervalMs: 100,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ResolveStateDir returns the state directory with ~ expanded.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir == "" {
		return expandHome(Default().Paths.StateDir)
	}
	return expandHome(p.StateDir)
}

// ResolveRegistryDir returns the registry directory, defaulting to
// <state_dir>/instances.
func (p *PathsConfig) ResolveRegistryDir() string {
	if p.RegistryDir == "" {
		return filepath.Join(p.ResolveStateDir(), "instances")
	}
	return expandHome(p.RegistryDir)
}

// ResolveProfilesDir returns the profiles directory, defaulting to
// <state_dir>/profiles.
func (p *PathsConfig) ResolveProfilesDir() string {
	if p.ProfilesDir == "" {
		return filepath.Join(p.ResolveStateDir(), "profiles")
	}
	return expandHome(p.ProfilesDir)
}

// OrphanMarker returns the configured marker or the profiles directory.
func (c *Config) OrphanMarker() string {
	if c.Orphan.Marker != "" {
		return c.Orphan.Marker
	}
	return c.Paths.ResolveProfilesDir()
}

// GracePeriod returns the SIGTERM grace period as a time.Duration
func (c *StopConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMs) * time.Millisecond
}

// KillTimeout returns the SIGKILL wait as a time.Duration
func (c *StopConfig) KillTimeout() time.Duration {
	return time.Duration(c.KillTimeoutMs) * time.Millisecond
}

// PollInterval returns the liveness polling period as a time.Duration
func (c *StopConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Paths defaults
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.registry_dir", defaults.Paths.RegistryDir)
	viper.SetDefault("paths.profiles_dir", defaults.Paths.ProfilesDir)

	// Ports defaults
	viper.SetDefault("ports.default_port", defaults.Ports.DefaultPort)
	viper.SetDefault("ports.max_attempts", defaults.Ports.MaxAttempts)
	viper.SetDefault("ports.host", defaults.Ports.Host)

	// Stop defaults
	viper.SetDefault("stop.grace_period_ms", defaults.Stop.GracePeriodMs)
	viper.SetDefault("stop.kill_timeout_ms", defaults.Stop.KillTimeoutMs)
	viper.SetDefault("stop.poll_interval_ms", defaults.Stop.PollIntervalMs)

	// Orphan defaults
	viper.SetDefault("orphan.marker", defaults.Orphan.Marker)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "browserd")
	}
	// Fall back to ~/.config/browserd
	home, err := os.UserHomeDir()
	if err != nil {
		return ".browserd"
	}
	return filepath.Join(home, ".config", "browserd")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

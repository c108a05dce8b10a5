package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/propeire/propeire/internal/upsert"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.propeire/propeire.yaml"
	// DSNEnv is read when no config file names a DSN.
	DSNEnv = "POSTGRES_DSN"
)

// Config is the top-level configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Upload   UploadConfig   `yaml:"upload"`
	PPR      PPRConfig      `yaml:"ppr,omitempty"`
	Logging  LogConfig      `yaml:"logging,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// DatabaseConfig defines the target Postgres connection.
type DatabaseConfig struct {
	DSN            string        `yaml:"dsn"`
	Schema         string        `yaml:"schema,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"` // default 10s
}

// UploadConfig holds the defaults for upsert runs; CLI flags override them.
type UploadConfig struct {
	Mode        string        `yaml:"mode,omitempty"`        // skip or update
	Concurrency int           `yaml:"concurrency,omitempty"` // 0 = 2 x NumCPU
	RowTimeout  time.Duration `yaml:"row_timeout,omitempty"`
	Strict      bool          `yaml:"strict,omitempty"`
	Constraint  string        `yaml:"constraint,omitempty"`
}

// PPRConfig defines where property price register data is kept and loaded.
type PPRConfig struct {
	Schema           string `yaml:"schema,omitempty"`
	ResidentialTable string `yaml:"residential_table,omitempty"`
	CommercialTable  string `yaml:"commercial_table,omitempty"`
	DataDir          string `yaml:"data_dir,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.propeire/logs/
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LoadEnv loads variables from .env files into the process environment.
// Variables already set win. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	cfg.applyDefaults()
	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := cfg.resolveSecrets(); err != nil {
			return nil, fmt.Errorf("resolving secrets: %w", err)
		}
		return cfg, nil
	}
	return cfg, err
}

// Default returns the configuration used without a config file. The DSN
// comes from POSTGRES_DSN.
func Default() *Config {
	cfg := &Config{
		Version:  CurrentVersion,
		Database: DatabaseConfig{DSN: os.Getenv(DSNEnv)},
	}
	cfg.applyDefaults()
	return cfg
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Database.DSN == "" {
		c.Database.DSN = os.Getenv(DSNEnv)
	}
	if c.Database.Schema == "" {
		c.Database.Schema = "public"
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = 10 * time.Second
	}
	if c.Upload.Mode == "" {
		c.Upload.Mode = upsert.ModeUpdateIfDifferent.String()
	}
	if c.PPR.Schema == "" {
		c.PPR.Schema = "propeiredb"
	}
	if c.PPR.ResidentialTable == "" {
		c.PPR.ResidentialTable = "residential_register"
	}
	if c.PPR.CommercialTable == "" {
		c.PPR.CommercialTable = "commercial_register"
	}
	if c.PPR.DataDir == "" {
		c.PPR.DataDir = "~/.propeire/data/"
	}
	c.PPR.DataDir = ExpandHome(c.PPR.DataDir)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.propeire/logs/")
	}
}

// Validate reports every setting that would make an upload fail.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is empty (set it or %s)", DSNEnv))
	}
	if _, err := upsert.ParseMode(c.Upload.Mode); err != nil {
		errs = append(errs, fmt.Errorf("upload.mode: %w", err))
	}
	if c.Upload.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("upload.concurrency must not be negative"))
	}
	if c.Upload.RowTimeout < 0 {
		errs = append(errs, fmt.Errorf("upload.row_timeout must not be negative"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Mode returns the parsed upload mode.
func (c *Config) Mode() (upsert.Mode, error) {
	return upsert.ParseMode(c.Upload.Mode)
}

// resolveSecrets expands references in the DSN, including one taken from
// POSTGRES_DSN.
func (c *Config) resolveSecrets() error {
	if !HasSecretRef(c.Database.DSN) {
		return nil
	}
	var err error
	c.Database.DSN, err = ResolveValue(c.Database.DSN)
	if err != nil {
		return fmt.Errorf("database dsn: %w", err)
	}
	return nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// Project root holding workspace/ and the ledger
	Workspace string `mapstructure:"workspace"`
	// Project definition file, relative to Workspace unless absolute
	Project string `mapstructure:"project"`

	Log    LogConfig    `mapstructure:"log"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Engine EngineConfig `mapstructure:"engine"`
	Run    RunConfig    `mapstructure:"run"`

	// Cluster environment; detected from the hostname when empty
	Environment string `mapstructure:"environment"`
	Partition   string `mapstructure:"partition"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type EngineConfig struct {
	Python string   `mapstructure:"python"`
	Args   []string `mapstructure:"args"`
}

type RunConfig struct {
	Parallel  int `mapstructure:"parallel"`
	NumPasses int `mapstructure:"num_passes"`
}

const (
	// FileName is the config file looked up in the workspace root, without extension
	FileName  = "ellipflow"
	EnvPrefix = "ELLIPFLOW"
	ledgerDB  = "ellipflow.db"
)

// SetDefaults registers every key with its default so that environment overrides apply
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace", ".")
	v.SetDefault("project", "project.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("engine.python", "python")
	v.SetDefault("engine.args", []string{"-u"})
	v.SetDefault("run.parallel", 1)
	v.SetDefault("run.num_passes", 1)
	v.SetDefault("environment", "")
	v.SetDefault("partition", "")
}

// Load resolves configuration from flags already bound to v, ELLIPFLOW_* environment
// variables and an optional ellipflow.yaml in the workspace root, in that order of precedence
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("workspace"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	root, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve workspace %s", cfg.Workspace)
	}
	cfg.Workspace = root
	if !filepath.IsAbs(cfg.Project) {
		cfg.Project = filepath.Join(root, cfg.Project)
	}
	if cfg.Ledger.DSN == "" && cfg.Ledger.Driver == "sqlite" {
		cfg.Ledger.DSN = filepath.Join(root, ledgerDB)
	}
	if cfg.Run.Parallel < 1 {
		cfg.Run.Parallel = 1
	}
	if cfg.Run.NumPasses < 1 {
		cfg.Run.NumPasses = 1
	}
	return &cfg, nil
}

// ConfigureLogging sets up the standard logger
func ConfigureLogging(cfg LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrapf(err, "bad log level %q", cfg.Level)
	}
	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", cfg.Format)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	return nil
}

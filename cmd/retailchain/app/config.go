package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/retailchain/pkg/errors"
	"github.com/agentstation/retailchain/pkg/notifier"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Catalog configuration
	DatabaseURL string // "" or memory: for the in-process store
	BufferSize  int    // per-subscriber notifier queue length

	// Logging configuration. LogLevel is the --log-level flag; EnvLogLevel
	// comes from LOG_LEVEL or the config file and ranks below -v/-q.
	LogLevel    string
	EnvLogLevel string
	LogFormat   string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables
// 3. .env files
// 4. Config file (~/.retailchain.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	viper.SetDefault("database_url", "")
	viper.SetDefault("buffer_size", notifier.DefaultBufferSize)
	viper.SetDefault("log_format", "auto")
	viper.SetDefault("log_output", "stderr")

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".retailchain")
	}

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),
		Format:  viper.GetString("format"),

		ConfigFile: viper.ConfigFileUsed(),

		DatabaseURL: viper.GetString("database_url"),
		BufferSize:  viper.GetInt("buffer_size"),

		EnvLogLevel: viper.GetString("log_level"),
		LogFormat:   viper.GetString("log_format"),
		LogOutput:   viper.GetString("log_output"),
	}

	if config.BufferSize <= 0 {
		config.BufferSize = notifier.DefaultBufferSize
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is read last; godotenv never overrides variables already set.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// LoadFile merges an explicit --config file. Values already set by flags
// on the command line are left alone.
func (c *Config) LoadFile(path string, flagSet func(name string) bool) error {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return errors.NewConfigError("app", "reading config file "+path, err)
	}
	c.ConfigFile = viper.ConfigFileUsed()

	if !flagSet("database-url") {
		c.DatabaseURL = viper.GetString("database_url")
	}
	if !flagSet("buffer-size") {
		if size := viper.GetInt("buffer_size"); size > 0 {
			c.BufferSize = size
		}
	}
	if !flagSet("format") && c.Format == "" {
		c.Format = viper.GetString("format")
	}
	c.EnvLogLevel = viper.GetString("log_level")
	c.LogFormat = viper.GetString("log_format")
	c.LogOutput = viper.GetString("log_output")
	return nil
}

// Package config merges flags, environment, config file and defaults into
// the settings a jlp run needs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yycnik/json-log-parser/internal/linesource"
	"github.com/yycnik/json-log-parser/internal/logging"
)

const (
	EnvPrefix         = "JLP"
	DefaultConfigName = ".jlp"
)

// Keys
const (
	KeyOutput       = "output"
	KeyLogFile      = "log.file"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
	KeyMetricsFile  = "metrics.file"
	KeyServerAddr   = "server.addr"
	KeyMaxLineBytes = "input.max-line-bytes"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"output":         KeyOutput,
	"log-file":       KeyLogFile,
	"log-level":      KeyLogLevel,
	"log-format":     KeyLogFormat,
	"metrics-file":   KeyMetricsFile,
	"addr":           KeyServerAddr,
	"max-line-bytes": KeyMaxLineBytes,
}

// Config is the merged configuration of one invocation.
type Config struct {
	Output       string
	Log          logging.Config
	MetricsFile  string
	ServerAddr   string
	MaxLineBytes int

	// FileUsed is the config file that was read, if any.
	FileUsed string
}

func setDefaults(v *viper.Viper) {
	log := logging.DefaultConfig()
	v.SetDefault(KeyOutput, "text")
	v.SetDefault(KeyLogFile, log.File)
	v.SetDefault(KeyLogLevel, log.Level)
	v.SetDefault(KeyLogFormat, log.Format)
	v.SetDefault(KeyMetricsFile, "")
	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyMaxLineBytes, linesource.DefaultMaxLineBytes)
}

// RegisterFlags defines the shared flags on fs. Their defaults are only
// shown in help; the values in setDefaults apply when a flag is not set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "text", "output format: text, json, table")
	fs.String("log-file", logging.DefaultFile, "run log file (empty disables logging)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "json", "log format: json, console")
	fs.String("metrics-file", "", "write Prometheus metrics to this textfile after each run")
	fs.Int("max-line-bytes", linesource.DefaultMaxLineBytes, "longest accepted input line in bytes")
}

// Load reads the configuration. Precedence is flags, then JLP_ environment
// variables, then the config file, then defaults. A missing default config
// file is not an error; a missing explicit one is.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	cfg := Config{
		Output: strings.ToLower(v.GetString(KeyOutput)),
		Log: logging.Config{
			File:       v.GetString(KeyLogFile),
			Level:      strings.ToLower(v.GetString(KeyLogLevel)),
			Format:     strings.ToLower(v.GetString(KeyLogFormat)),
			TimeFormat: logging.DefaultConfig().TimeFormat,
		},
		MetricsFile:  v.GetString(KeyMetricsFile),
		ServerAddr:   v.GetString(KeyServerAddr),
		MaxLineBytes: v.GetInt(KeyMaxLineBytes),
		FileUsed:     v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings a run cannot start with.
func (c Config) Validate() error {
	switch c.Output {
	case "text", "json", "table":
	default:
		return fmt.Errorf("invalid output format %q (want text, json or table)", c.Output)
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.MaxLineBytes <= 0 {
		return fmt.Errorf("invalid %s %d: must be positive", KeyMaxLineBytes, c.MaxLineBytes)
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("%s must not be empty", KeyServerAddr)
	}
	return nil
}

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tanwarat/voiceroom/globals"
)

const (
	defaultListenAddr   = ":8080"
	defaultReapSchedule = "@every 1m"
	defaultReapGrace    = 5 * time.Minute
)

// Config is the global configuration object which is filled via the
// configuration file, environment variables (prefix VOICEROOM) and flags.
type Config struct {
	ListenAddr   string       `mapstructure:"listen_addr"`
	LogLevel     string       `mapstructure:"log_level"`
	ReaperConfig ReaperConfig `mapstructure:"reaper"`
}

// ReaperConfig configures the optional cleanup of rooms which never gained a
// participant. It is disabled by default: a room that is created and never
// joined stays in the store for the lifetime of the process, which matches
// the behaviour clients currently rely on.
type ReaperConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Schedule string        `mapstructure:"schedule"`
	Grace    time.Duration `mapstructure:"grace"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("listen-addr", "l", defaultListenAddr, "address (including port) to listen on")
	flagSet.String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("listen_addr", defaultListenAddr)
	viper.SetDefault("reaper.schedule", defaultReapSchedule)
	viper.SetDefault("reaper.grace", defaultReapGrace)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("VOICEROOM")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/thetarby/ktable"
)

type Config struct {
	// Table sizes
	SemSlots  int `toml:"sem_slots"`
	FileSlots int `toml:"file_slots"`

	// Storage
	LogSize   int    `toml:"log_size"`
	BlockSize int    `toml:"block_size"`
	Database  string `toml:"database"`

	// Demo
	PostDelay time.Duration `toml:"post_delay"`
}

// Options returns the table sizing part of the config.
func (c *Config) Options() ktable.Options {
	return ktable.Options{
		SemSlots:  c.SemSlots,
		FileSlots: c.FileSlots,
		LogSize:   c.LogSize,
		BlockSize: c.BlockSize,
	}
}

// Load reads file, or ktable.{toml,yaml,json} from the working directory
// when file is empty. A missing default config file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()
	if len(file) != 0 {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ktable")
		v.AddConfigPath(".")
	}

	v.SetDefault("sem_slots", ktable.NSem)
	v.SetDefault("file_slots", ktable.NFile)
	v.SetDefault("log_size", ktable.LogSize)
	v.SetDefault("block_size", ktable.BlockSize)
	v.SetDefault("database", "ktable.db")
	v.SetDefault("post_delay", "1s")

	v.SetEnvPrefix("ktable")
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if len(file) != 0 || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	}

	cfg := &Config{}
	err = v.Unmarshal(
		cfg,
		func(config *mapstructure.DecoderConfig) {
			config.TagName = "toml"
			config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	if cfg.SemSlots <= 0 || cfg.FileSlots <= 0 {
		return nil, fmt.Errorf("table sizes must be positive: sem_slots=%d file_slots=%d", cfg.SemSlots, cfg.FileSlots)
	}
	if ktable.MaxWriteChunk(cfg.LogSize, cfg.BlockSize) <= 0 {
		return nil, fmt.Errorf("log_size %d leaves no room for data blocks", cfg.LogSize)
	}
	return cfg, nil
}

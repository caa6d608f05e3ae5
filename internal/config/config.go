// Package config handles tool configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// Config holds all settings.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Audio     AudioConfig     `yaml:"audio"`
	Animation AnimationConfig `yaml:"animation"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig holds game data file paths.
type DataConfig struct {
	GRFPaths []string `yaml:"grf_paths"` // Paths to GRF archives
	Dirs     []string `yaml:"dirs"`      // Loose file directories, searched before archives
}

// AudioConfig holds audio settings.
type AudioConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MasterVolume float32 `yaml:"master_volume"`
	SFXVolume    float32 `yaml:"sfx_volume"`
	Muted        bool    `yaml:"muted"`
}

// AnimationConfig holds animation cache and playback settings.
type AnimationConfig struct {
	CacheCapacity int    `yaml:"cache_capacity"`
	Seed          uint64 `yaml:"seed"`    // 0 picks a random seed
	TickMS        int    `yaml:"tick_ms"` // playback step used by the play command
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			GRFPaths: []string{"data.grf"},
		},
		Audio: AudioConfig{
			Enabled:      false,
			MasterVolume: 0.8,
			SFXVolume:    0.8,
			Muted:        false,
		},
		Animation: AnimationConfig{
			CacheCapacity: 900,
			Seed:          0,
			TickMS:        16,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Validate checks values that would break the animation cache or player.
func (c *Config) Validate() error {
	if c.Animation.CacheCapacity <= 0 {
		return fmt.Errorf("%w: animation.cache_capacity must be positive, got %d", ErrInvalid, c.Animation.CacheCapacity)
	}
	if c.Animation.TickMS <= 0 {
		return fmt.Errorf("%w: animation.tick_ms must be positive, got %d", ErrInvalid, c.Animation.TickMS)
	}
	if v := c.Audio.MasterVolume; v < 0 || v > 1 {
		return fmt.Errorf("%w: audio.master_volume %v out of range", ErrInvalid, v)
	}
	if v := c.Audio.SFXVolume; v < 0 || v > 1 {
		return fmt.Errorf("%w: audio.sfx_volume %v out of range", ErrInvalid, v)
	}
	return nil
}

package config

import (
	"context"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir     string `yaml:"temp_dir"`
	KeepTemp    bool   `yaml:"keep_temp"`
	Concurrency int    `yaml:"concurrency"`

	// SkipOptimization forces the raster pipeline regardless of what the
	// analyzer decides. Manual escape hatch, never auto-triggered.
	SkipOptimization bool `yaml:"skip_optimization"`

	// StrictValidation rejects timelines that would need the raster
	// fallback instead of rendering them (fail-fast deployments)
	StrictValidation bool `yaml:"strict_validation"`

	// Canvas settings used when the project carries no export geometry
	Canvas CanvasConfig `yaml:"canvas"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Export settings
	Export ExportConfig `yaml:"export"`

	// Raster settings for the frame-rendering fallback
	Raster RasterConfig `yaml:"raster"`
}

type CanvasConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
}

type ExportConfig struct {
	Quality string `yaml:"quality"` // low | medium | high
	Format  string `yaml:"format"`
}

type RasterConfig struct {
	FontFile string `yaml:"font_file"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		TempDir:     os.TempDir(),
		KeepTemp:    false,
		Concurrency: 4,
		Canvas: CanvasConfig{
			Width:  1280,
			Height: 720,
			FPS:    30,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
		},
		Export: ExportConfig{
			Quality: "medium",
			Format:  "mp4",
		},
		Raster: RasterConfig{},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".cutroom", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}

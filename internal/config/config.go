// Package config loads and persists the sheetcapd service configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds service-wide settings for sheetcapd.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// JobsDir is the root directory under which every job workspace
	// (jobs/<job_id>/...) is created. Every manifest path is rooted here.
	JobsDir string `yaml:"jobs_dir"`

	// Parallelism is the number of jobs that may run concurrently.
	// 0 means "number of CPU cores / 2, min 1" (resolved at startup).
	Parallelism int `yaml:"parallelism"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	// YtdlpPath is the yt-dlp (or youtube-dl compatible) binary used to
	// resolve youtube_url sources.
	YtdlpPath string `yaml:"ytdlp_path"`

	// CacheDir is the root of the read-through preview/source cache.
	CacheDir string `yaml:"cache_dir"`

	// Hwaccel is the preferred hardware decode path: auto, none, cuda,
	// videotoolbox, d3d11va, dxva2, vaapi, qsv.
	Hwaccel string `yaml:"hwaccel"`

	// OpenCVAccel selects the OpenCV backend used by the upscaler: auto,
	// cuda, opencl, cpu.
	OpenCVAccel string `yaml:"opencv_accel"`

	// UpscaleEngine pins the upscale backend: auto, hat, opencv, ffmpeg.
	UpscaleEngine string `yaml:"upscale_engine"`

	// UpscaleSharpen toggles the unsharp-mask post-process after resize.
	UpscaleSharpen bool `yaml:"upscale_sharpen"`

	HAT HATConfig `yaml:"hat"`

	LogLevel string `yaml:"log_level"`
}

// HATConfig configures the transformer super-resolution backend.
type HATConfig struct {
	Enable   bool   `yaml:"enable"`
	Repo     string `yaml:"repo"`
	Weights  string `yaml:"weights"`
	TileSize int    `yaml:"tile_size"`
	TilePad  int    `yaml:"tile_pad"`
	AllowCPU bool   `yaml:"allow_cpu"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		JobsDir:        "/var/lib/sheetcap/jobs",
		Parallelism:    0,
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		YtdlpPath:      "yt-dlp",
		CacheDir:       "/var/lib/sheetcap/cache",
		Hwaccel:        "auto",
		OpenCVAccel:    "auto",
		UpscaleEngine:  "auto",
		UpscaleSharpen: true,
		HAT: HATConfig{
			TileSize: 256,
			TilePad:  32,
		},
		LogLevel: "info",
	}
}

// Load reads config from a YAML file, applying defaults for missing values,
// then layers environment-variable overrides on top (last-wins).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if saveErr := cfg.Save(path); saveErr != nil {
				logWarnSaveFailed(saveErr)
			}
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaultsForEmpty(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyDefaultsForEmpty(cfg *Config) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = "yt-dlp"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "/var/lib/sheetcap/cache"
	}
	if cfg.Hwaccel == "" {
		cfg.Hwaccel = "auto"
	}
	if cfg.OpenCVAccel == "" {
		cfg.OpenCVAccel = "auto"
	}
	if cfg.UpscaleEngine == "" {
		cfg.UpscaleEngine = "auto"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HAT.TileSize == 0 {
		cfg.HAT.TileSize = 256
	}
	if cfg.HAT.TilePad == 0 {
		cfg.HAT.TilePad = 32
	}
}

// applyEnvOverrides implements the DRUMSHEET_* environment variables from
// spec §6, each taking precedence over the file value.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRUMSHEET_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("DRUMSHEET_JOBS_DIR"); v != "" {
		cfg.JobsDir = v
	}
	if v := os.Getenv("DRUMSHEET_HWACCEL"); v != "" {
		cfg.Hwaccel = v
	}
	if v := os.Getenv("DRUMSHEET_OPENCV_ACCEL"); v != "" {
		cfg.OpenCVAccel = v
	}
	if v := os.Getenv("DRUMSHEET_UPSCALE_ENGINE"); v != "" {
		cfg.UpscaleEngine = v
	}
	if v := os.Getenv("DRUMSHEET_UPSCALE_SHARPEN"); v != "" {
		cfg.UpscaleSharpen = v == "1"
	}
	if v := os.Getenv("DRUMSHEET_FFMPEG_BIN"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv("DRUMSHEET_FFPROBE_BIN"); v != "" {
		cfg.FFprobePath = v
	}
	if v := os.Getenv("DRUMSHEET_YTDLP_BIN"); v != "" {
		cfg.YtdlpPath = v
	}
	if v := os.Getenv("DRUMSHEET_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("DRUMSHEET_HAT_ENABLE"); v != "" {
		cfg.HAT.Enable = v == "1"
	}
	if v := os.Getenv("DRUMSHEET_HAT_REPO"); v != "" {
		cfg.HAT.Repo = v
	}
	if v := os.Getenv("DRUMSHEET_HAT_WEIGHTS"); v != "" {
		cfg.HAT.Weights = v
	}
	if v := os.Getenv("DRUMSHEET_HAT_TILE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HAT.TileSize = n
		}
	}
	if v := os.Getenv("DRUMSHEET_HAT_TILE_PAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HAT.TilePad = n
		}
	}
	if v := os.Getenv("DRUMSHEET_HAT_ALLOW_CPU"); v != "" {
		cfg.HAT.AllowCPU = v == "1"
	}
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ResolvedParallelism returns Parallelism if explicitly set, otherwise
// half the CPU cores (minimum 1), per spec §4.8 Concurrency.
func (c *Config) ResolvedParallelism(numCPU int) int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	n := numCPU / 2
	if n < 1 {
		n = 1
	}
	return n
}

func logWarnSaveFailed(err error) {
	// Deliberately a plain stderr write: the logger package may not yet be
	// initialized this early in startup.
	os.Stderr.WriteString("warning: could not write default config: " + err.Error() + "\n")
}

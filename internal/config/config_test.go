package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetcap/sheetcap/internal/config"
)

func TestLoadMissingFileWritesDefaultsAndReturnsThem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetcapd.yaml")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.UpscaleEngine != "auto" {
		t.Errorf("expected default upscale_engine auto, got %q", cfg.UpscaleEngine)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected Load to persist defaults to %s: %v", path, err)
	}
}

func TestLoadAppliesDefaultsForEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetcapd.yaml")
	if err := os.WriteFile(path, []byte("port: 9090\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected explicit port 9090 to survive, got %d", cfg.Port)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("expected ffmpeg_path default to fill in, got %q", cfg.FFmpegPath)
	}
	if cfg.YtdlpPath != "yt-dlp" {
		t.Errorf("expected ytdlp_path default to fill in, got %q", cfg.YtdlpPath)
	}
	if cfg.HAT.TileSize != 256 {
		t.Errorf("expected hat.tile_size default to fill in, got %d", cfg.HAT.TileSize)
	}
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetcapd.yaml")
	if err := os.WriteFile(path, []byte("port: 9090\nytdlp_path: yt-dlp\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DRUMSHEET_PORT", "7000")
	t.Setenv("DRUMSHEET_YTDLP_BIN", "/usr/local/bin/yt-dlp")
	t.Setenv("DRUMSHEET_HAT_ENABLE", "1")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("expected env override port 7000, got %d", cfg.Port)
	}
	if cfg.YtdlpPath != "/usr/local/bin/yt-dlp" {
		t.Errorf("expected env override ytdlp_path, got %q", cfg.YtdlpPath)
	}
	if !cfg.HAT.Enable {
		t.Error("expected DRUMSHEET_HAT_ENABLE=1 to enable HAT")
	}
}

func TestResolvedParallelismDefaultsToHalfCPUs(t *testing.T) {
	cfg := config.DefaultConfig()

	if got := cfg.ResolvedParallelism(8); got != 4 {
		t.Errorf("expected 4 for 8 CPUs, got %d", got)
	}
	if got := cfg.ResolvedParallelism(1); got != 1 {
		t.Errorf("expected minimum of 1, got %d", got)
	}
}

func TestResolvedParallelismHonorsExplicitValue(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Parallelism = 3

	if got := cfg.ResolvedParallelism(16); got != 3 {
		t.Errorf("expected explicit parallelism 3 to win, got %d", got)
	}
}

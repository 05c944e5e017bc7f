// Command sheetcapd runs the sheet capture pipeline service: it accepts
// video sources over HTTP, extracts and rectifies printable sheet-music
// pages, and serves the resulting PNG/PDF output alongside a review/recrop
// editing surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/sheetcap/sheetcap/internal/api"
	"github.com/sheetcap/sheetcap/internal/cache"
	"github.com/sheetcap/sheetcap/internal/config"
	"github.com/sheetcap/sheetcap/internal/editor"
	"github.com/sheetcap/sheetcap/internal/ffmpeg"
	"github.com/sheetcap/sheetcap/internal/logger"
	"github.com/sheetcap/sheetcap/internal/metrics"
	"github.com/sheetcap/sheetcap/internal/orchestrator"
	"github.com/sheetcap/sheetcap/internal/pipeline/frame"
	"github.com/sheetcap/sheetcap/internal/pipeline/upscale"
	"github.com/sheetcap/sheetcap/internal/sourceresolve"
	"github.com/sheetcap/sheetcap/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config/sheetcapd.yaml)")
	port := flag.Int("port", 0, "Override HTTP listen port from config")
	jobsDir := flag.String("jobs-dir", "", "Override jobs directory from config")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("SHEETCAP_CONFIG"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/sheetcapd.yaml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("warning: could not load config from %s: %v", cfgPath, err)
		cfg = config.DefaultConfig()
	}

	if *jobsDir != "" {
		cfg.JobsDir = *jobsDir
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logger.Init(cfg.LogLevel)

	if err := os.MkdirAll(cfg.JobsDir, 0755); err != nil {
		log.Fatalf("could not create jobs dir %s: %v", cfg.JobsDir, err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		log.Fatalf("could not create cache dir %s: %v", cfg.CacheDir, err)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                       SHEETCAP                            ║")
	fmt.Println("║       Sheet music capture from performance video          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Config:       %s\n", cfgPath)
	fmt.Printf("  Jobs dir:     %s\n", cfg.JobsDir)
	fmt.Printf("  Cache dir:    %s\n", cfg.CacheDir)
	fmt.Printf("  Parallelism:  %d\n", cfg.ResolvedParallelism(runtime.NumCPU()))
	fmt.Printf("  Upscale:      %s (sharpen=%v)\n", cfg.UpscaleEngine, cfg.UpscaleSharpen)
	fmt.Println()

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	hwprobe := ffmpeg.NewHWAccelProbe(cfg.FFmpegPath)
	extractor := ffmpeg.NewExtractor(cfg.FFmpegPath, hwprobe)
	frameSource := frame.New(extractor)

	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 30*time.Second)
	availableHW := hwprobe.Detect(probeCtx)
	cancelProbe()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println("  Decode hwaccel:")
	for _, accel := range ffmpeg.DecodeFallbackChain {
		if availableHW[accel] {
			green.Printf("    - %s\n", accel)
		}
	}
	fmt.Println()

	upscaler := upscale.NewEngine(upscale.BuildSelfTests(cfg), cfg.UpscaleSharpen)
	upscaleCtx, cancelUpscale := context.WithTimeout(context.Background(), 30*time.Second)
	upscaler.Probe(upscaleCtx)
	cancelUpscale()

	selected := upscaler.SelectedBackend()
	if selected == upscale.BackendNone {
		yellow.Printf("  Upscale backend selected: %s\n", selected)
	} else {
		green.Printf("  Upscale backend selected: %s\n", selected)
	}
	fmt.Println()

	st, err := store.NewSQLiteStore(filepath.Join(cfg.JobsDir, "jobs.db"))
	if err != nil {
		log.Fatalf("failed to open job store: %v", err)
	}
	defer st.Close()

	queue, err := orchestrator.NewQueue(st)
	if err != nil {
		log.Fatalf("failed to initialize job queue: %v", err)
	}

	m := metrics.New()

	pipeline := orchestrator.NewPipeline(cfg, prober, hwprobe, frameSource, upscaler, m)
	workerPool := orchestrator.NewWorkerPool(queue, pipeline, cfg.ResolvedParallelism(runtime.NumCPU()), m)

	sourceCache, err := cache.New(cfg.CacheDir)
	if err != nil {
		log.Fatalf("failed to open source cache: %v", err)
	}
	resolver := sourceresolve.New(cfg.YtdlpPath, sourceCache)

	previewer := ffmpeg.NewExtractor(cfg.FFmpegPath, hwprobe)
	ed := editor.New()

	handler := api.NewHandler(queue, workerPool, resolver, previewer, ed, sourceCache, cfg)
	router := api.NewRouter(handler, m)

	workerPool.Start()
	defer workerPool.Stop()

	fmt.Printf("  Starting server on port %d\n", cfg.Port)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)
	go func() {
		for range reloadChan {
			reloaded, err := config.Load(cfgPath)
			if err != nil {
				logger.Warn("SIGHUP reload failed", "err", err)
				continue
			}
			n := reloaded.ResolvedParallelism(runtime.NumCPU())
			logger.Info("SIGHUP: resizing worker pool", "parallelism", n)
			workerPool.Resize(n)
		}
	}()

	go func() {
		<-sigChan
		fmt.Println("\n  Shutting down...")
		workerPool.Stop()
		server.Close()
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	fmt.Println("  Goodbye!")
}

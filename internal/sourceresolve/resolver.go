// Package sourceresolve implements the SourceResolver spec §1 calls out as
// an external collaborator: turning a job's {source_type, file_path,
// youtube_url} into a local video file FrameSource can open. A local file is
// resolved by existence check alone; a YouTube URL is fetched through a
// yt-dlp child process and installed into the preview/source cache (spec §5)
// so repeated requests for the same URL never re-download.
package sourceresolve

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sheetcap/sheetcap/internal/cache"
	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/procutil"
)

// SourceType distinguishes the two kinds of input §6's POST /jobs and
// POST /preview/source accept.
type SourceType string

const (
	SourceFile    SourceType = "file"
	SourceYouTube SourceType = "youtube"
)

// Request describes a source as submitted over the API.
type Request struct {
	Type       SourceType
	FilePath   string
	YouTubeURL string
}

// Result is what a resolve call hands back to the caller: a local path ready
// for FrameSource, plus whether it was served from cache.
type Result struct {
	VideoPath string
	FromCache bool
}

// Resolver resolves a Request into a local video file, fetching and caching
// remote sources as needed.
type Resolver struct {
	ytdlpPath string
	cache     *cache.Cache
}

// New creates a Resolver. ytdlpPath is the yt-dlp (or youtube-dl compatible)
// binary invoked for youtube_url sources; c is the shared preview/source
// cache remote fetches are installed into.
func New(ytdlpPath string, c *cache.Cache) *Resolver {
	return &Resolver{ytdlpPath: ytdlpPath, cache: c}
}

// Resolve returns a local path to req's video, fetching it first if req is a
// YouTube source and it isn't already cached.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	switch req.Type {
	case SourceFile:
		return r.resolveFile(req.FilePath)
	case SourceYouTube:
		return r.resolveYouTube(ctx, req.YouTubeURL)
	default:
		return Result{}, capture.NewStageError(capture.CodeInputInvalid,
			fmt.Errorf("unknown source_type %q", req.Type))
	}
}

func (r *Resolver) resolveFile(path string) (Result, error) {
	if path == "" {
		return Result{}, capture.NewStageError(capture.CodeInputInvalid, fmt.Errorf("file_path required"))
	}
	if _, err := os.Stat(path); err != nil {
		return Result{}, capture.NewStageError(capture.CodeSourceUnavailable, err)
	}
	return Result{VideoPath: path, FromCache: false}, nil
}

func (r *Resolver) resolveYouTube(ctx context.Context, url string) (Result, error) {
	if url == "" {
		return Result{}, capture.NewStageError(capture.CodeInputInvalid, fmt.Errorf("youtube_url required"))
	}
	if r.cache == nil {
		return Result{}, capture.NewStageError(capture.CodeSourceUnavailable, fmt.Errorf("no source cache configured"))
	}

	key := cache.KeyFor(url)
	entry, err := r.cache.Resolve(key, ".mp4", func(dstPath string) error {
		return r.download(ctx, url, dstPath)
	})
	if err != nil {
		return Result{}, capture.NewStageError(capture.CodeSourceUnavailable, err)
	}

	return Result{VideoPath: entry.Path, FromCache: entry.FromCache}, nil
}

// download shells out to yt-dlp, writing the best available progressive
// MP4 to dstPath. The child runs in its own process group so a job
// cancellation mid-download can be torn down the same way ffmpeg's
// extraction children are.
func (r *Resolver) download(ctx context.Context, url, dstPath string) error {
	cmd := exec.Command(r.ytdlpPath,
		"-f", "mp4/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best",
		"--no-playlist",
		"-o", dstPath,
		url,
	)
	procutil.SetupProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			procutil.Terminate(cmd, waitDone)
		case <-waitDone:
		}
	}()

	err := cmd.Wait()
	close(waitDone)
	if err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}

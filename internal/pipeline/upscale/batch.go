package upscale

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sheetcap/sheetcap/internal/capture"
)

// MaxConcurrentUpscales bounds how many pages may be upscaled at once,
// since each holds the GPU mutex briefly and CPU fallback work is still
// bounded to avoid oversubscribing cores.
const MaxConcurrentUpscales = 4

// UpscaleAll upscales every page, fanning out up to MaxConcurrentUpscales
// at a time while preserving output order.
func (e *Engine) UpscaleAll(ctx context.Context, pages []capture.PageCandidate, factor float64, gpuOnly bool) ([]capture.PageCandidate, error) {
	out := make([]capture.PageCandidate, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentUpscales)

	for i, p := range pages {
		i, p := i, p
		g.Go(func() error {
			result, err := e.Upscale(gctx, p, factor, gpuOnly)
			if err != nil {
				return err
			}
			out[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

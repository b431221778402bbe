package framecache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"media-proxy/internal/frame"
	"media-proxy/internal/logging"
	"media-proxy/internal/metrics"
	"media-proxy/internal/workers"
)

// maxPreloadWorkers caps concurrent decodes during Preload. Each decode is
// an ffmpeg process.
const maxPreloadWorkers = 4

var log = logging.For("framecache")

// Decoder produces a single decoded frame of source at time t.
type Decoder interface {
	FrameAt(ctx context.Context, source string, t float64) (frame.Frame, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, source string, t float64) (frame.Frame, error)

// FrameAt calls f.
func (f DecoderFunc) FrameAt(ctx context.Context, source string, t float64) (frame.Frame, error) {
	return f(ctx, source, t)
}

// Reader serves frames from a Cache and falls back to a Decoder on a miss.
// Concurrent misses on the same key share one decode.
type Reader struct {
	cache   *Cache
	decoder Decoder
	workers int
	flight  singleflight.Group
}

// NewReader wires a cache to the decoder that fills it.
func NewReader(cache *Cache, decoder Decoder) *Reader {
	return &Reader{
		cache:   cache,
		decoder: decoder,
		workers: workers.ForIO(maxPreloadWorkers),
	}
}

// Cache returns the underlying cache.
func (r *Reader) Cache() *Cache {
	return r.cache
}

// FrameAt returns the cached frame for (source, t), decoding and caching it
// on a miss.
func (r *Reader) FrameAt(ctx context.Context, source string, t float64) (frame.Frame, error) {
	if f, ok := r.cache.Get(source, t); ok {
		return f, nil
	}
	return r.load(ctx, source, t)
}

// load decodes and caches the frame for (source, t) once per key, however
// many callers miss on it at the same time. Callers that join a decode in
// progress share its result, including a failure caused by the first
// caller's context.
func (r *Reader) load(ctx context.Context, source string, t float64) (frame.Frame, error) {
	v, err, _ := r.flight.Do(Key(source, t), func() (any, error) {
		// A decode for this key may have finished since the caller missed.
		if r.cache.has(source, t) {
			if f, ok := r.cache.Get(source, t); ok {
				return f, nil
			}
		}
		f, err := r.decode(ctx, source, t)
		if err != nil {
			return nil, err
		}
		r.cache.Put(source, t, f)
		return f, nil
	})
	if err != nil {
		return frame.Frame{}, err
	}
	return v.(frame.Frame), nil
}

func (r *Reader) decode(ctx context.Context, source string, t float64) (frame.Frame, error) {
	start := time.Now()
	f, err := r.decoder.FrameAt(ctx, source, t)
	metrics.FrameDecodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FrameDecodeErrors.Inc()
		return frame.Frame{}, fmt.Errorf("decode %s at %.2fs: %w", source, t, err)
	}
	return f, nil
}

// Preload decodes every frame of source between start and end, stepping at
// fps, that is not already cached under its exact key. Individual decode
// failures are logged and skipped. It returns the number of frames decoded, or the
// context error if ctx ends first.
func (r *Reader) Preload(ctx context.Context, source string, start, end, fps float64) (int, error) {
	if fps <= 0 || end < start {
		return 0, nil
	}

	// Frames closer together than the key granularity share a slot, so
	// only the first time per slot is decoded.
	step := 1 / fps
	var missing []float64
	seen := make(map[int64]bool)
	for i := 0; ; i++ {
		t := start + float64(i)*step
		if t > end+1e-9 {
			break
		}
		q := quantize(t)
		if seen[q] {
			continue
		}
		seen[q] = true
		if !r.cache.has(source, t) {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	decoded := make(chan struct{}, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, t := range missing {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := r.load(gctx, source, t); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("Preload skipped frame: %v", err)
				return nil
			}
			decoded <- struct{}{}
			return nil
		})
	}
	err := g.Wait()
	close(decoded)

	n := len(decoded)
	log.Debug("Preloaded %d/%d frames of %s between %.2fs and %.2fs", n, len(missing), source, start, end)
	return n, err
}

package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/dustin/go-humanize"

	"media-proxy/internal/logging"
)

// DefaultRatio is the share of the container limit handed to the Go heap.
// The remainder is left to ffmpeg children and decoded frame buffers.
const DefaultRatio = 0.85

var log = logging.For("memory")

// Budget describes the heap limit applied at startup.
type Budget struct {
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none".
	Source string

	// ContainerLimit is the MEMORY_LIMIT value in bytes, 0 when unset.
	ContainerLimit int64

	// HeapLimit is the soft limit in effect for the runtime, 0 when none.
	HeapLimit int64

	// Ratio is the fraction of ContainerLimit used, 0 when not derived.
	Ratio float64
}

// Configured reports whether a heap limit is in effect.
func (b Budget) Configured() bool {
	return b.HeapLimit > 0
}

// ConfigureFromEnv sets the runtime soft memory limit from the environment.
// Call it before the frame cache and proxy generator allocate.
//
//   - GOMEMLIMIT wins when present; the runtime has already applied it.
//   - MEMORY_LIMIT is the container limit in bytes, usually injected by the
//     Kubernetes Downward API.
//   - MEMORY_RATIO scales MEMORY_LIMIT (0 < ratio <= 1, default 0.85).
func ConfigureFromEnv() Budget {
	return configure(os.Getenv)
}

func configure(getenv func(string) string) Budget {
	if v := getenv("GOMEMLIMIT"); v != "" {
		b := Budget{Source: "GOMEMLIMIT"}
		if limit := currentLimit(); limit > 0 {
			b.HeapLimit = limit
		}
		log.Info("GOMEMLIMIT set via environment: %s", v)
		return b
	}

	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		log.Debug("MEMORY_LIMIT not set, leaving the heap unbounded")
		return Budget{Source: "none"}
	}

	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		log.Warn("Ignoring MEMORY_LIMIT %q: not a positive byte count", raw)
		return Budget{Source: "none"}
	}

	ratio := parseRatio(getenv("MEMORY_RATIO"))
	heapLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(heapLimit)

	log.Info("Heap limit %s (%.0f%% of %s container limit)",
		humanize.IBytes(uint64(heapLimit)), ratio*100, humanize.IBytes(uint64(containerLimit)))

	return Budget{
		Source:         "MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		HeapLimit:      heapLimit,
		Ratio:          ratio,
	}
}

func parseRatio(raw string) float64 {
	if raw == "" {
		return DefaultRatio
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ratio) || ratio <= 0 || ratio > 1 {
		log.Warn("Ignoring MEMORY_RATIO %q, using %.2f", raw, DefaultRatio)
		return DefaultRatio
	}
	return ratio
}

// currentLimit returns the runtime soft limit, or 0 when it is the
// unbounded default.
func currentLimit() int64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0
	}
	return limit
}

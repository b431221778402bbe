package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that replaces the computed
// count with a fixed one.
const EnvOverride = "PRELOAD_WORKERS"

// Count returns multiplier workers per available CPU, at least 1 and at
// most limit (0 means no limit). Available CPUs come from GOMAXPROCS, which
// follows the container CPU limit. A positive integer in PRELOAD_WORKERS
// takes precedence but is still capped by limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForIO returns worker count for tasks that mostly wait on a subprocess or
// the disk (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

package proxy

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const (
	probeTimeout = 5 * time.Second
	probeTTL     = 30 * time.Second
)

// ffmpegArgs builds the command line for one proxy encode. Audio is
// dropped and the container is forced to mp4 because output ends in .part.
func ffmpegArgs(source, output string, s Settings) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-i", source,
		"-vf", fmt.Sprintf("scale=%d:%d", s.Width, s.Height),
		"-r", strconv.FormatUint(uint64(s.roundedFPS()), 10),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(s.Quality.CRF()),
		"-preset", "veryfast",
		"-an",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	}
}

// transcoder runs ffmpeg. Successful availability probes are remembered
// for probeTTL; failures are re-probed on the next job.
type transcoder struct {
	path string

	mu       sync.Mutex
	probedAt time.Time
}

func newTranscoder(path string) *transcoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &transcoder{path: path}
}

// available runs `ffmpeg -version` unless a recent probe succeeded.
func (t *transcoder) available(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.probedAt.IsZero() && time.Since(t.probedAt) < probeTTL {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := exec.CommandContext(ctx, t.path, "-version").Run(); err != nil {
		log.Debug("ffmpeg probe failed for %s: %v", t.path, err)
		t.probedAt = time.Time{}
		return false
	}
	t.probedAt = time.Now()
	return true
}

// run encodes source into output, streaming progress fractions to report.
// It returns the tail of ffmpeg's diagnostic output for logging.
func (t *transcoder) run(ctx context.Context, source, output string, s Settings, report func(float64)) (string, error) {
	cmd := exec.CommandContext(ctx, t.path, ffmpegArgs(source, output, s)...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// The reader must reach EOF before Wait closes the pipe.
	tail := readProgress(stderr, report)

	if err := cmd.Wait(); err != nil {
		return tail, fmt.Errorf("ffmpeg exited: %w", err)
	}
	return tail, nil
}

// Package decoder extracts single frames from video files with ffmpeg.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp" // bmp pipe output

	"media-proxy/internal/frame"
	"media-proxy/internal/logging"
)

var log = logging.For("decoder")

// Pipe formats ffmpeg can hand back a frame in.
const (
	FormatPNG = "png"
	FormatBMP = "bmp"
)

// FFmpeg decodes one frame per call by seeking into the source with an
// ffmpeg subprocess. Frames larger than MaxWidth x MaxHeight are scaled
// down; zero disables the limit on that axis.
type FFmpeg struct {
	Path      string
	Format    string
	MaxWidth  int
	MaxHeight int
}

// NewFFmpeg returns a decoder using the ffmpeg binary at path, or the one on
// PATH when path is empty.
func NewFFmpeg(path string, maxWidth, maxHeight int) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Format: FormatPNG, MaxWidth: maxWidth, MaxHeight: maxHeight}
}

func (d *FFmpeg) args(source string, t float64) []string {
	codec := d.Format
	if codec != FormatBMP {
		codec = FormatPNG
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64),
		"-i", source,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", codec,
		"-",
	}
}

// FrameAt implements framecache.Decoder.
func (d *FFmpeg) FrameAt(ctx context.Context, source string, t float64) (frame.Frame, error) {
	if t < 0 {
		t = 0
	}

	cmd := exec.CommandContext(ctx, d.Path, d.args(source, t)...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return frame.Frame{}, ctx.Err()
		}
		return frame.Frame{}, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}

	if stdout.Len() == 0 {
		return frame.Frame{}, fmt.Errorf("ffmpeg produced no frame for %s at %.3fs", source, t)
	}

	log.Debug("Decoded %s at %.3fs (%d bytes %s)", source, t, stdout.Len(), d.Format)

	img, err := imaging.Decode(&stdout)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}

	f := frame.FromImage(img, t)
	if d.MaxWidth > 0 || d.MaxHeight > 0 {
		w, h := d.MaxWidth, d.MaxHeight
		if w <= 0 {
			w = int(f.Width())
		}
		if h <= 0 {
			h = int(f.Height())
		}
		f = f.Fit(w, h)
	}
	return f, nil
}

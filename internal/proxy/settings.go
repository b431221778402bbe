package proxy

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Quality selects the encoder quality tier of a proxy.
type Quality int

const (
	QualityDraft Quality = iota
	QualityPreview
	QualityHigh
)

var qualityNames = map[Quality]string{
	QualityDraft:   "draft",
	QualityPreview: "preview",
	QualityHigh:    "high",
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

// ParseQuality accepts the names returned by Quality.String, case-insensitively.
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for q, name := range qualityNames {
		if s == name {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown proxy quality %q (want draft, preview or high)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// CRF maps the tier to an x264 constant rate factor. Lower means better
// quality and a larger file, so Draft <= Preview <= High in output size.
func (q Quality) CRF() int {
	switch q {
	case QualityDraft:
		return 28
	case QualityHigh:
		return 18
	default:
		return 23
	}
}

// maxFrameRate bounds the rounded proxy frame rate.
const maxFrameRate = 120

// Settings describes the rendition a proxy is transcoded to.
type Settings struct {
	Width     uint32  `json:"width"`
	Height    uint32  `json:"height"`
	FrameRate float64 `json:"frameRate"`
	Quality   Quality `json:"quality"`
}

// DefaultSettings is a quarter-HD preview at 30 fps.
func DefaultSettings() Settings {
	return Settings{
		Width:     480,
		Height:    270,
		FrameRate: 30,
		Quality:   QualityPreview,
	}
}

// Validate rejects settings ffmpeg cannot honour.
func (s Settings) Validate() error {
	if s.Width == 0 || s.Height == 0 {
		return fmt.Errorf("proxy resolution %dx%d must be non-zero", s.Width, s.Height)
	}
	if math.IsNaN(s.FrameRate) || math.IsInf(s.FrameRate, 0) {
		return fmt.Errorf("proxy frame rate %v is not a number", s.FrameRate)
	}
	if fps := s.roundedFPS(); fps < 1 || fps > maxFrameRate {
		return fmt.Errorf("proxy frame rate %v must round to between 1 and %d", s.FrameRate, maxFrameRate)
	}
	if _, ok := qualityNames[s.Quality]; !ok {
		return fmt.Errorf("unknown proxy quality %d", int(s.Quality))
	}
	return nil
}

func (s Settings) roundedFPS() uint32 {
	if s.FrameRate <= 0 || math.IsNaN(s.FrameRate) {
		return 0
	}
	if s.FrameRate > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(math.Round(s.FrameRate))
}

// Fingerprint identifies the proxy for a source rendered at the given
// resolution and rounded frame rate. Quality does not take part: two
// requests that differ only in quality share a proxy.
func Fingerprint(source string, s Settings) string {
	h, _ := blake2b.New256(nil)
	var buf [4]byte

	binary.BigEndian.PutUint32(buf[:], uint32(len(source)))
	h.Write(buf[:])
	h.Write([]byte(source))
	binary.BigEndian.PutUint32(buf[:], s.Width)
	h.Write(buf[:])
	binary.BigEndian.PutUint32(buf[:], s.Height)
	h.Write(buf[:])
	binary.BigEndian.PutUint32(buf[:], s.roundedFPS())
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil)[:8])
}

// outputName is the file name a proxy is stored under.
func outputName(fingerprint string, s Settings) string {
	return fmt.Sprintf("proxy_%s_%d.mp4", fingerprint, s.roundedFPS())
}

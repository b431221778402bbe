package proxy

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

const (
	// maxInFlightProgress keeps a running job below complete until the
	// worker has seen the process exit.
	maxInFlightProgress = 0.99

	stderrTailLines = 20
	maxLineBytes    = 64 * 1024
)

// scanStatusLines splits on both '\n' and '\r'. ffmpeg redraws its status
// line with carriage returns, so splitting on newlines alone would hold
// every update back until the encode ends.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseClock parses ffmpeg's HH:MM:SS.ss timestamps into seconds.
func parseClock(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes >= 60 {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, false
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, true
}

// fieldAfter returns the text following marker up to the next comma or
// space, or "" if marker is absent.
func fieldAfter(line, marker string) string {
	i := strings.Index(line, marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimLeft(line[i+len(marker):], " ")
	if end := strings.IndexAny(rest, ", "); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// progressParser turns ffmpeg diagnostic lines into a completion fraction.
// Lines it cannot use are ignored.
type progressParser struct {
	duration float64
	position float64
}

// feed consumes one line and reports the new fraction when it moved.
func (p *progressParser) feed(line string) (float64, bool) {
	if p.duration <= 0 {
		if d, ok := parseClock(fieldAfter(line, "Duration:")); ok && d > 0 {
			p.duration = d
		}
		return 0, false
	}

	raw := fieldAfter(line, "time=")
	if raw == "" {
		return 0, false
	}
	pos, ok := parseClock(raw)
	if !ok || pos <= p.position {
		return 0, false
	}
	p.position = pos

	frac := pos / p.duration
	if frac > maxInFlightProgress {
		frac = maxInFlightProgress
	}
	return frac, true
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	lines []string
	n     int
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) add(line string) {
	if len(t.lines) == t.n {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.n-1]
	}
	t.lines = append(t.lines, line)
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}

// readProgress consumes r until EOF, calling report each time the encode
// advances, and returns the tail of the non-empty lines it saw. r is always
// drained so the writer never blocks on a full pipe.
func readProgress(r io.Reader, report func(float64)) string {
	var parser progressParser
	tail := newTailBuffer(stderrTailLines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	scanner.Split(scanStatusLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.add(line)
		if frac, ok := parser.feed(line); ok {
			report(frac)
		}
	}
	if err := scanner.Err(); err != nil {
		tail.add("progress reader: " + err.Error())
		_, _ = io.Copy(io.Discard, r)
	}
	return tail.String()
}

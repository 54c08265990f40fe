package transcoder

import (
	"regexp"
	"strconv"
	"strings"
)

// ProgressEvent is one parsed update from the engine's diagnostic stream.
// Fields are zero when the corresponding token was absent from the line.
type ProgressEvent struct {
	TotalSeconds   float64
	CurrentSeconds float64
	Speed          float64
}

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	speedRe    = regexp.MustCompile(`speed=\s*(\d+(?:\.\d+)?)x`)
	outTimeRe  = regexp.MustCompile(`out_time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// ProgressParser consumes the engine's log output line by line and emits
// typed progress events. It carries the total duration forward once seen,
// so later time= events report against it.
type ProgressParser struct {
	totalSeconds float64
}

// NewProgressParser returns an empty parser.
func NewProgressParser() *ProgressParser {
	return &ProgressParser{}
}

// ParseLine parses one line of engine output. The second return value is
// false when the line carried no recognizable progress token.
func (p *ProgressParser) ParseLine(line string) (ProgressEvent, bool) {
	event := ProgressEvent{TotalSeconds: p.totalSeconds}
	matched := false

	if m := durationRe.FindStringSubmatch(line); m != nil {
		p.totalSeconds = clockToSeconds(m[1], m[2], m[3])
		event.TotalSeconds = p.totalSeconds
		matched = true
	}

	if m := timeRe.FindStringSubmatch(line); m != nil {
		event.CurrentSeconds = clockToSeconds(m[1], m[2], m[3])
		matched = true
	} else if m := outTimeRe.FindStringSubmatch(line); m != nil {
		// key=value progress stream variant of the same token
		event.CurrentSeconds = clockToSeconds(m[1], m[2], m[3])
		matched = true
	}

	if m := speedRe.FindStringSubmatch(line); m != nil {
		event.Speed, _ = strconv.ParseFloat(m[1], 64)
		matched = true
	} else if strings.HasPrefix(line, "speed=") {
		// key=value form without the trailing unit on some builds
		v := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, "speed=")), "x")
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			event.Speed = f
			matched = true
		}
	}

	return event, matched
}

// Total returns the source duration in seconds, or 0 if not yet seen.
func (p *ProgressParser) Total() float64 {
	return p.totalSeconds
}

func clockToSeconds(h, m, s string) float64 {
	hours, _ := strconv.ParseFloat(h, 64)
	minutes, _ := strconv.ParseFloat(m, 64)
	seconds, _ := strconv.ParseFloat(s, 64)
	return hours*3600 + minutes*60 + seconds
}

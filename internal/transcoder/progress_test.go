package transcoder

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestParseLineDuration(t *testing.T) {
	p := NewProgressParser()

	event, ok := p.ParseLine("  Duration: 01:30:15.50, start: 0.000000, bitrate: 4521 kb/s")
	if !ok {
		t.Fatal("duration line not recognized")
	}
	want := 1*3600 + 30*60 + 15.5
	if !almostEqual(event.TotalSeconds, want) {
		t.Errorf("TotalSeconds = %v, want %v", event.TotalSeconds, want)
	}
	if !almostEqual(p.Total(), want) {
		t.Errorf("Total() = %v, want %v", p.Total(), want)
	}
}

func TestParseLineTimeCarriesTotal(t *testing.T) {
	p := NewProgressParser()

	p.ParseLine("  Duration: 00:10:00.00, start: 0.000000")
	event, ok := p.ParseLine("frame= 1234 fps= 45 time=00:02:30.00 bitrate=4000.0kbits/s speed=1.88x")
	if !ok {
		t.Fatal("progress line not recognized")
	}

	if !almostEqual(event.TotalSeconds, 600) {
		t.Errorf("TotalSeconds = %v, want 600", event.TotalSeconds)
	}
	if !almostEqual(event.CurrentSeconds, 150) {
		t.Errorf("CurrentSeconds = %v, want 150", event.CurrentSeconds)
	}
	if !almostEqual(event.Speed, 1.88) {
		t.Errorf("Speed = %v, want 1.88", event.Speed)
	}
}

func TestParseLineKeyValueVariant(t *testing.T) {
	p := NewProgressParser()

	event, ok := p.ParseLine("out_time=00:01:12.25")
	if !ok {
		t.Fatal("out_time line not recognized")
	}
	if !almostEqual(event.CurrentSeconds, 72.25) {
		t.Errorf("CurrentSeconds = %v, want 72.25", event.CurrentSeconds)
	}

	event, ok = p.ParseLine("speed=2.5x")
	if !ok {
		t.Fatal("speed line not recognized")
	}
	if !almostEqual(event.Speed, 2.5) {
		t.Errorf("Speed = %v, want 2.5", event.Speed)
	}

	// Some builds emit the key=value form without the unit suffix
	event, ok = p.ParseLine("speed=1.75")
	if !ok {
		t.Fatal("unitless speed line not recognized")
	}
	if !almostEqual(event.Speed, 1.75) {
		t.Errorf("Speed = %v, want 1.75", event.Speed)
	}
}

func TestParseLineUnrecognized(t *testing.T) {
	p := NewProgressParser()

	for _, line := range []string{
		"",
		"Stream #0:0: Video: h264 (High), yuv420p, 1920x1080",
		"frame= 1234 fps= 45",
		"progress=continue",
	} {
		if _, ok := p.ParseLine(line); ok {
			t.Errorf("ParseLine(%q) matched, want no match", line)
		}
	}
}

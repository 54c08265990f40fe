package capabilities

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

func fakeProbe(output string, err error) ProbeFunc {
	return func(_ context.Context, _ ...string) ([]byte, error) {
		return []byte(output), err
	}
}

func TestDetectQSVPreferred(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("darwin prefers videotoolbox")
	}

	// qsv and vaapi both present: qsv wins
	d := NewDetectorWithProbe("ffmpeg", fakeProbe("Hardware acceleration methods:\nvaapi\nqsv\n", nil))
	caps := d.Detect()

	if caps.Encoder != "h264_qsv" {
		t.Errorf("Encoder = %q, want h264_qsv", caps.Encoder)
	}
	if !caps.Hardware {
		t.Error("expected Hardware to be true")
	}
	if len(caps.DecodeFlags) != 2 || caps.DecodeFlags[0] != "-hwaccel" || caps.DecodeFlags[1] != "qsv" {
		t.Errorf("DecodeFlags = %v, want [-hwaccel qsv]", caps.DecodeFlags)
	}
}

func TestDetectVAAPI(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("darwin prefers videotoolbox")
	}

	d := NewDetectorWithProbe("ffmpeg", fakeProbe("Hardware acceleration methods:\nvaapi\n", nil))
	caps := d.Detect()

	if caps.Encoder != "h264_vaapi" {
		t.Errorf("Encoder = %q, want h264_vaapi", caps.Encoder)
	}
	if !caps.Hardware {
		t.Error("expected Hardware to be true")
	}

	foundDevice := false
	for i, f := range caps.DecodeFlags {
		if f == "-hwaccel_device" && i+1 < len(caps.DecodeFlags) {
			foundDevice = true
		}
	}
	if !foundDevice {
		t.Errorf("DecodeFlags = %v, want -hwaccel_device present", caps.DecodeFlags)
	}
}

func TestDetectSoftwareFallbackOnError(t *testing.T) {
	d := NewDetectorWithProbe("ffmpeg", fakeProbe("", errors.New("exec failed")))
	caps := d.Detect()

	if caps.Encoder != "libx264" {
		t.Errorf("Encoder = %q, want libx264", caps.Encoder)
	}
	if caps.Hardware {
		t.Error("expected Hardware to be false")
	}
	if caps.DecodeFlags != nil {
		t.Errorf("DecodeFlags = %v, want nil", caps.DecodeFlags)
	}
}

func TestDetectSoftwareFallbackNoAccels(t *testing.T) {
	d := NewDetectorWithProbe("ffmpeg", fakeProbe("Hardware acceleration methods:\n", nil))
	caps := d.Detect()

	if caps.Encoder != "libx264" {
		t.Errorf("Encoder = %q, want libx264", caps.Encoder)
	}

	// Software encoding pins a preset and thread count
	hasPreset := false
	for _, f := range caps.EncodeFlags {
		if f == "veryfast" {
			hasPreset = true
		}
	}
	if !hasPreset {
		t.Errorf("EncodeFlags = %v, want -preset veryfast", caps.EncodeFlags)
	}
}

func TestDetectMemoized(t *testing.T) {
	calls := 0
	d := NewDetectorWithProbe("ffmpeg", func(_ context.Context, _ ...string) ([]byte, error) {
		calls++
		return []byte("Hardware acceleration methods:\n"), nil
	})

	d.Detect()
	d.Detect()

	if calls != 1 {
		t.Errorf("probe called %d times, want 1", calls)
	}

	d.Reset()
	d.Detect()

	if calls != 2 {
		t.Errorf("probe called %d times after Reset, want 2", calls)
	}
}

func TestParseHWAccels(t *testing.T) {
	accels := parseHWAccels("Hardware acceleration methods:\nvdpau\ncuda\nvaapi\nqsv\n\n")

	for _, want := range []string{"vdpau", "cuda", "vaapi", "qsv"} {
		if !accels[want] {
			t.Errorf("expected %q in parsed accels %v", want, accels)
		}
	}
	if accels["Hardware acceleration methods:"] {
		t.Error("header line should not be parsed as a backend")
	}
	if len(accels) != 4 {
		t.Errorf("len(accels) = %d, want 4", len(accels))
	}
}

func TestEncodeFlagsBitrateLadder(t *testing.T) {
	flags := encodeFlags("h264_qsv")

	want := map[string]string{
		"-c:v":       "h264_qsv",
		"-b:v":       "4000k",
		"-maxrate":   "5000k",
		"-profile:v": "high",
	}
	for flag, value := range want {
		found := false
		for i := 0; i+1 < len(flags); i++ {
			if flags[i] == flag && flags[i+1] == value {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("encodeFlags missing %s %s in %v", flag, value, flags)
		}
	}
}

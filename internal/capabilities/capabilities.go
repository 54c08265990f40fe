package capabilities

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-streamer/internal/logging"
	"media-streamer/internal/workers"
)

// Capabilities describes the encoder configuration chosen for this host.
// DecodeFlags are spliced into the ffmpeg argument list before the input,
// EncodeFlags after the stream mapping.
type Capabilities struct {
	Encoder     string
	DecodeFlags []string
	EncodeFlags []string
	Hardware    bool
}

// ProbeFunc runs the transcoding engine and returns its output.
// Injected so tests can fake hwaccel listings.
type ProbeFunc func(ctx context.Context, args ...string) ([]byte, error)

// Detector probes ffmpeg for available hardware acceleration backends.
type Detector struct {
	ffmpegPath string
	probe      ProbeFunc

	mu       sync.Mutex
	detected bool
	caps     Capabilities
}

const probeTimeout = 5 * time.Second

// NewDetector creates a detector for the given ffmpeg binary.
func NewDetector(ffmpegPath string) *Detector {
	d := &Detector{ffmpegPath: ffmpegPath}
	d.probe = d.runFFmpeg
	return d
}

// NewDetectorWithProbe creates a detector with an injected probe function.
// Used by tests to simulate hardware configurations.
func NewDetectorWithProbe(ffmpegPath string, probe ProbeFunc) *Detector {
	return &Detector{ffmpegPath: ffmpegPath, probe: probe}
}

// Detect returns the encoder capabilities for this host, memoized for the
// process lifetime. It never returns an error: detection failures fall
// back to software encoding.
func (d *Detector) Detect() Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.detected {
		return d.caps
	}

	d.caps = d.detect()
	d.detected = true

	if d.caps.Hardware {
		logging.Info("Hardware encoder selected: %s", d.caps.Encoder)
	} else {
		logging.Info("Software encoder selected: %s", d.caps.Encoder)
	}

	return d.caps
}

// Reset clears the memoized result. Test hook only.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detected = false
	d.caps = Capabilities{}
}

func (d *Detector) detect() Capabilities {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	output, err := d.probe(ctx, "-hide_banner", "-hwaccels")
	if err != nil {
		logging.Warn("Hardware acceleration probe failed: %v", err)
		return softwareFallback()
	}

	accels := parseHWAccels(string(output))

	// Apple GPU encoder on macOS.
	if runtime.GOOS == "darwin" && accels["videotoolbox"] {
		return Capabilities{
			Encoder:     "h264_videotoolbox",
			DecodeFlags: []string{"-hwaccel", "videotoolbox"},
			EncodeFlags: encodeFlags("h264_videotoolbox"),
			Hardware:    true,
		}
	}

	// Intel quick-sync: qsv is faster than vaapi on the same silicon,
	// so prefer it when both backends are present.
	if accels["qsv"] {
		return Capabilities{
			Encoder:     "h264_qsv",
			DecodeFlags: []string{"-hwaccel", "qsv"},
			EncodeFlags: encodeFlags("h264_qsv"),
			Hardware:    true,
		}
	}
	if accels["vaapi"] {
		return Capabilities{
			Encoder: "h264_vaapi",
			DecodeFlags: []string{
				"-hwaccel", "vaapi",
				"-hwaccel_device", "/dev/dri/renderD128",
			},
			EncodeFlags: encodeFlags("h264_vaapi"),
			Hardware:    true,
		}
	}

	return softwareFallback()
}

// parseHWAccels parses `ffmpeg -hwaccels` output. The first line is a
// header ("Hardware acceleration methods:"), each following line one
// backend name.
func parseHWAccels(output string) map[string]bool {
	accels := make(map[string]bool)
	for i, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue
		}
		accels[line] = true
	}
	return accels
}

func softwareFallback() Capabilities {
	return Capabilities{
		Encoder:     "libx264",
		DecodeFlags: nil,
		EncodeFlags: encodeFlags("libx264"),
		Hardware:    false,
	}
}

// encodeFlags returns the fixed encode flag list (codec, bitrate ladder,
// profile/level) for the chosen encoder.
func encodeFlags(encoder string) []string {
	flags := []string{
		"-c:v", encoder,
		"-b:v", "4000k",
		"-maxrate", "5000k",
		"-bufsize", "8000k",
		"-profile:v", "high",
		"-level", "4.1",
	}

	if encoder == "libx264" {
		flags = append(flags,
			"-preset", "veryfast",
			"-threads", strconv.Itoa(workers.ForCPU(8)),
		)
	}

	return flags
}

func (d *Detector) runFFmpeg(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	return cmd.Output()
}

package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// StreamInfo describes one stream in a source file as reported by ffprobe.
type StreamInfo struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// SourceInfo describes a probed source file.
type SourceInfo struct {
	Duration float64
	Streams  []StreamInfo
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeOutput struct {
	Streams []StreamInfo `json:"streams"`
	Format  probeFormat  `json:"format"`
}

const probeTimeout = 15 * time.Second

// Probe inspects a source file with ffprobe and returns its duration and
// stream layout. The stream list drives audio/subtitle mapping in BuildArgs.
func Probe(ctx context.Context, path string) (*SourceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("no streams found in %s", path)
	}

	info := &SourceInfo{Streams: out.Streams}
	if out.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}

	return info, nil
}

// VideoStreams returns the indexes of all video streams.
func (s *SourceInfo) VideoStreams() []int {
	var indexes []int
	for _, st := range s.Streams {
		if st.CodecType == "video" {
			indexes = append(indexes, st.Index)
		}
	}
	return indexes
}

// AudioStreams returns the indexes of all audio streams.
func (s *SourceInfo) AudioStreams() []int {
	var indexes []int
	for _, st := range s.Streams {
		if st.CodecType == "audio" {
			indexes = append(indexes, st.Index)
		}
	}
	return indexes
}

package transcoder

import (
	"fmt"
	"path/filepath"
	"strconv"

	"media-streamer/internal/capabilities"
	"media-streamer/internal/logging"
)

// SegmentDuration is the fixed target duration of every HLS segment.
const SegmentDuration = 6

// Text subtitle codecs that can be converted to WebVTT for in-browser
// display. Image-based formats (PGS, DVB, VobSub) would need OCR and are
// skipped with a warning.
var textSubtitleCodecs = map[string]bool{
	"subrip":   true,
	"srt":      true,
	"ass":      true,
	"ssa":      true,
	"webvtt":   true,
	"mov_text": true,
}

var imageSubtitleCodecs = map[string]bool{
	"hdmv_pgs_subtitle": true,
	"dvd_subtitle":      true,
	"dvb_subtitle":      true,
	"xsub":              true,
}

// BuildArgs assembles the ffmpeg argument list for one HLS transcoding
// invocation. It maps every video stream, the single requested audio
// stream by absolute index, and all text-based subtitle streams.
// startOffset > 0 seeks the input before decoding; startNumber offsets
// segment numbering so a post-seek session never collides with segments
// still draining from the previous process.
func BuildArgs(source string, info *SourceInfo, audioTrack int, playlistPath string, caps capabilities.Capabilities, startOffset float64, startNumber int) []string {
	args := []string{"-loglevel", "warning", "-nostdin"}

	args = append(args, caps.DecodeFlags...)

	if startOffset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", startOffset))
	}

	args = append(args, "-i", source)

	// Stream mapping: all video, the selected audio track, text subtitles.
	// audioTrack < 0 means the source has no audio.
	for _, idx := range info.VideoStreams() {
		args = append(args, "-map", fmt.Sprintf("0:%d", idx))
	}
	if audioTrack >= 0 {
		args = append(args, "-map", fmt.Sprintf("0:%d", audioTrack))
	}

	subtitleMapped := false
	for _, st := range info.Streams {
		if st.CodecType != "subtitle" {
			continue
		}
		if imageSubtitleCodecs[st.CodecName] {
			logging.Warn("Skipping image-based subtitle stream %d (%s) in %s: OCR not supported", st.Index, st.CodecName, source)
			continue
		}
		if textSubtitleCodecs[st.CodecName] {
			args = append(args, "-map", fmt.Sprintf("0:%d", st.Index))
			subtitleMapped = true
		}
	}

	args = append(args, caps.EncodeFlags...)
	if audioTrack >= 0 {
		args = append(args,
			"-c:a", "aac",
			"-b:a", "128k",
			"-ac", "2",
		)
	}
	if subtitleMapped {
		args = append(args, "-c:s", "webvtt")
	}

	segmentPattern := filepath.Join(filepath.Dir(playlistPath), "segment%d.ts")
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(SegmentDuration),
		"-hls_list_size", "0",
		"-hls_playlist_type", "event",
		"-start_number", strconv.Itoa(startNumber),
		"-hls_segment_filename", segmentPattern,
		"-movflags", "+faststart",
		"-flush_packets", "1",
		"-progress", "pipe:2",
		playlistPath,
	)

	return args
}

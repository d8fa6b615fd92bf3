package diarization

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FFmpegExtractor writes exemplars next to the source audio as
// <base>_speaker_<n>.wav.
type FFmpegExtractor struct {
	Binary string
	// OutputDir overrides the source file's directory when set.
	OutputDir string
}

// NewFFmpegExtractor creates an extractor using the given ffmpeg binary.
func NewFFmpegExtractor(binary string) *FFmpegExtractor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegExtractor{Binary: binary}
}

// ExemplarPath returns where the exemplar for speaker n of audioPath lives.
func ExemplarPath(dir, audioPath string, speaker int) string {
	if dir == "" {
		dir = filepath.Dir(audioPath)
	}
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(dir, fmt.Sprintf("%s_speaker_%d.wav", base, speaker))
}

func (x *FFmpegExtractor) Extract(ctx context.Context, audioPath string, speaker int, start, length time.Duration) (string, error) {
	out := ExemplarPath(x.OutputDir, audioPath, speaker)

	cmd := exec.CommandContext(ctx, x.Binary,
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-i", audioPath,
		"-ac", "1",
		"-ar", "16000",
		out,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}
	return out, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

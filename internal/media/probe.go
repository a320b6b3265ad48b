// Package media inspects media files through ffprobe.
package media

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"montage/internal/command"
	"montage/internal/services"
)

// Info summarizes the streams of a media file.
type Info struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	HasAudio bool
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// Probe runs ffprobe against path and parses its JSON report.
func Probe(ctx context.Context, runner command.Runner, ffprobe, path string) (Info, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}
	res, err := runner.Run(ctx, ffprobe, args, "")
	if err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, "probe", "ffprobe", path, err)
	}
	if res.ExitCode != 0 {
		return Info{}, services.Wrap(services.ErrExternalTool, "probe", "ffprobe", res.StderrTail(4), nil)
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, "probe", "parse ffprobe output", path, err)
	}

	info := Info{}
	if out.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
			info.Duration = dur
		}
	}
	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = stream.Width
				info.Height = stream.Height
				info.FPS = parseFrameRate(stream.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

// parseFrameRate evaluates ffprobe's rational rate notation, e.g. "30000/1001".
func parseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	if !found {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return rate
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

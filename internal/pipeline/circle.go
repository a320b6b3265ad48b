package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"montage/internal/command"
	"montage/internal/logging"
	"montage/internal/media"
	"montage/internal/services"
)

// CompositeJob names the inputs of a picture-in-picture pass.
type CompositeJob struct {
	BackgroundPath   string
	OverlayPath      string
	BackgroundVolume float64
	OverlayVolume    float64
	// Position is a corner (bottom_right, bottom_left, top_right, top_left)
	// for Circle, or top/bottom for Stack.
	Position   string
	OutputPath string
}

// Compositor builds the circle and stacked overlay outputs.
type Compositor struct {
	Runner  command.Runner
	FFmpeg  string
	FFprobe string
	// Scale is the overlay width as a fraction of the background width.
	Scale float64
	// Margin is the corner offset in pixels.
	Margin int
	Logger *slog.Logger
}

// Circle scales the overlay to a square sized from the background width,
// masks it to a circle, composites it onto a corner of the background, mixes
// both audio tracks, and caps the output to the overlay's duration.
func (c *Compositor) Circle(ctx context.Context, job CompositeJob) error {
	bg, err := media.Probe(ctx, c.Runner, c.FFprobe, job.BackgroundPath)
	if err != nil {
		return err
	}
	ov, err := media.Probe(ctx, c.Runner, c.FFprobe, job.OverlayPath)
	if err != nil {
		return err
	}

	size := evenSize(c.Scale * float64(bg.Width))
	if size <= 0 {
		return services.Wrap(services.ErrExternalTool, "composite", "circle",
			fmt.Sprintf("background width %d yields no overlay size", bg.Width), nil)
	}

	x, y := cornerOffset(job.Position, c.Margin)
	filter := strings.Join([]string{
		fmt.Sprintf("[1:v]scale=%d:%d,setsar=1,format=yuva420p,%s[masked]", size, size, circleMaskExpr()),
		fmt.Sprintf("[0:v][masked]overlay=%s:%s[vout]", x, y),
		fmt.Sprintf("[0:a]volume=%s[abg]", formatVolume(job.BackgroundVolume)),
		fmt.Sprintf("[1:a]volume=%s[aov]", formatVolume(job.OverlayVolume)),
		"[abg][aov]amix=inputs=2:duration=longest[aout]",
	}, ";")

	return c.run(ctx, job, filter, ov.Duration)
}

// circleMaskExpr keeps luma and chroma unchanged and sets alpha opaque for
// pixels whose squared distance from the center is at most the squared
// radius. The comparison is inclusive so the boundary pixel at exactly the
// radius stays visible.
func circleMaskExpr() string {
	return "geq=lum='lum(X,Y)':cb='cb(X,Y)':cr='cr(X,Y)':" +
		"a='if(lte((X-W/2)*(X-W/2)+(Y-H/2)*(Y-H/2),(W/2)*(W/2)),255,0)'"
}

func (c *Compositor) run(ctx context.Context, job CompositeJob, filter string, duration float64) error {
	args := []string{
		"-i", job.BackgroundPath,
		"-i", job.OverlayPath,
		"-filter_complex", filter,
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-y", job.OutputPath,
	}
	res, err := c.Runner.Run(ctx, c.FFmpeg, args, "")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "composite", "ffmpeg", job.OutputPath, err)
	}
	if res.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "composite", "ffmpeg", res.StderrTail(6), nil)
	}
	if c.Logger != nil {
		c.Logger.Info("composite rendered",
			logging.String("output", job.OutputPath),
			logging.Float64("duration", duration))
	}
	return nil
}

// cornerOffset maps a corner name to overlay filter coordinates.
func cornerOffset(position string, margin int) (string, string) {
	m := strconv.Itoa(margin)
	switch position {
	case "top_left":
		return m, m
	case "top_right":
		return "main_w-overlay_w-" + m, m
	case "bottom_left":
		return m, "main_h-overlay_h-" + m
	default: // bottom_right
		return "main_w-overlay_w-" + m, "main_h-overlay_h-" + m
	}
}

// evenSize rounds down to the nearest even pixel count, as yuv420 requires.
func evenSize(v float64) int {
	size := int(v)
	if size%2 != 0 {
		size--
	}
	return size
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

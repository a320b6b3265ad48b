package pipeline

import (
	"context"
	"fmt"
	"strings"

	"montage/internal/media"
)

// Stack scales the overlay to the background's width and pins it to the top
// or bottom edge, mixing audio the same way Circle does.
func (c *Compositor) Stack(ctx context.Context, job CompositeJob) error {
	bg, err := media.Probe(ctx, c.Runner, c.FFprobe, job.BackgroundPath)
	if err != nil {
		return err
	}
	ov, err := media.Probe(ctx, c.Runner, c.FFprobe, job.OverlayPath)
	if err != nil {
		return err
	}

	y := "main_h-overlay_h"
	if job.Position == "top" {
		y = "0"
	}
	filter := strings.Join([]string{
		fmt.Sprintf("[1:v]scale=%d:-2[scaled]", bg.Width),
		fmt.Sprintf("[0:v][scaled]overlay=0:%s[vout]", y),
		fmt.Sprintf("[0:a]volume=%s[abg]", formatVolume(job.BackgroundVolume)),
		fmt.Sprintf("[1:a]volume=%s[aov]", formatVolume(job.OverlayVolume)),
		"[abg][aov]amix=inputs=2:duration=longest[aout]",
	}, ";")

	return c.run(ctx, job, filter, ov.Duration)
}

package motion

import (
	"context"
	"os"

	"github.com/disintegration/imaging"

	"montage/internal/command"
	"montage/internal/services"
)

const thumbnailWidth = 320

// ThumbnailGenerator grabs a frame one second into a video and scales it
// down for preview use.
type ThumbnailGenerator struct {
	Runner command.Runner
	FFmpeg string
}

// Generate writes a JPEG thumbnail of videoPath to thumbPath.
func (g *ThumbnailGenerator) Generate(ctx context.Context, videoPath, thumbPath string) error {
	framePath := thumbPath + ".frame.jpg"
	args := []string{
		"-i", videoPath,
		"-ss", "00:00:01",
		"-vframes", "1",
		"-q:v", "2",
		"-y", framePath,
	}
	res, err := g.Runner.Run(ctx, g.FFmpeg, args, "")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "thumbnail", "ffmpeg", videoPath, err)
	}
	if res.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "thumbnail", "ffmpeg", res.StderrTail(4), nil)
	}
	defer os.Remove(framePath)

	frame, err := imaging.Open(framePath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "thumbnail", "decode frame", framePath, err)
	}
	resized := imaging.Resize(frame, thumbnailWidth, 0, imaging.Lanczos)
	if err := imaging.Save(resized, thumbPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "thumbnail", "save", thumbPath, err)
	}
	return nil
}

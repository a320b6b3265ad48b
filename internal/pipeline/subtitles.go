package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"montage/internal/command"
	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/services"
)

// Subtitle failure policies. PolicyFail aborts the job on a failed burn;
// PolicyContinue keeps the pre-subtitle artifact and moves on.
const (
	PolicyFail     = "fail"
	PolicyContinue = "continue"
)

// Renderer burns a subtitle track onto a video artifact.
type Renderer struct {
	Runner command.Runner
	FFmpeg string
	// Policy is PolicyFail or PolicyContinue.
	Policy string
	Logger *slog.Logger
}

// BurnRequest names the paths involved in a burn pass. TrackPath receives the
// generated SRT or ASS file; OutputPath receives the burned video.
type BurnRequest struct {
	VideoPath  string
	TrackPath  string
	OutputPath string
	Cues       []jobs.SubtitleCue
	Style      jobs.SubtitleStyle
	Karaoke    bool
}

// Burn renders the track and runs the burn pass. It returns the path of the
// artifact later stages should use: OutputPath on success, VideoPath when the
// burn failed under PolicyContinue.
func (r *Renderer) Burn(ctx context.Context, req BurnRequest) (string, error) {
	var filter string
	if req.Karaoke {
		if err := WriteKaraokeASS(req.Cues, req.Style, req.TrackPath); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "subtitles", "write track", req.TrackPath, err)
		}
		filter = fmt.Sprintf("ass=%s", req.TrackPath)
	} else {
		if err := WriteSRT(req.Cues, req.TrackPath); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "subtitles", "write track", req.TrackPath, err)
		}
		filter = fmt.Sprintf("subtitles=%s:force_style='%s'", req.TrackPath, forceStyle(req.Style))
	}

	args := []string{
		"-i", req.VideoPath,
		"-vf", filter,
		"-c:a", "copy",
		"-y", req.OutputPath,
	}
	res, err := r.Runner.Run(ctx, r.FFmpeg, args, "")
	if err == nil && res.ExitCode != 0 {
		err = services.Wrap(services.ErrExternalTool, "subtitles", "ffmpeg", res.StderrTail(6), nil)
	} else if err != nil {
		err = services.Wrap(services.ErrExternalTool, "subtitles", "ffmpeg", req.OutputPath, err)
	}
	if err != nil {
		if r.Policy == PolicyContinue {
			if r.Logger != nil {
				r.Logger.Warn("subtitle burn failed, continuing without subtitles",
					logging.Error(err))
			}
			return req.VideoPath, nil
		}
		return "", err
	}
	return req.OutputPath, nil
}

// forceStyle renders the style as an ASS force_style override list.
func forceStyle(style jobs.SubtitleStyle) string {
	bold := 0
	if style.Bold {
		bold = 1
	}
	return fmt.Sprintf("FontName=%s,FontSize=%d,PrimaryColour=%s,BackColour=%s,Bold=%d,Alignment=%d,MarginV=%d",
		style.FontName, style.FontSize, style.PrimaryColour, style.BackgroundColor,
		bold, style.Alignment, style.MarginV)
}

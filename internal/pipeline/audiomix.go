package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"montage/internal/command"
	"montage/internal/fileutil"
	"montage/internal/logging"
	"montage/internal/services"
)

// Mixer prepares a music track and muxes it under the visual artifact.
type Mixer struct {
	Runner command.Runner
	FFmpeg string
	// Bitrate is passed to the music re-encode, e.g. "128k".
	Bitrate string
	Logger  *slog.Logger
}

// PrepareMusic loops (or truncates) the music file to exactly duration
// seconds, re-encoding to MP3 at the configured bitrate.
func (m *Mixer) PrepareMusic(ctx context.Context, musicPath string, duration float64, outputPath string) error {
	args := []string{
		"-stream_loop", "-1",
		"-i", musicPath,
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-acodec", "libmp3lame",
		"-ab", m.Bitrate,
		"-y", outputPath,
	}
	res, err := m.Runner.Run(ctx, m.FFmpeg, args, "")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "audio", "prepare music", outputPath, err)
	}
	if res.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "audio", "prepare music", res.StderrTail(6), nil)
	}
	return nil
}

// Mux combines the video track from videoPath with the audio track from
// audioPath, stopping at the shorter stream. Video is stream-copied.
func (m *Mixer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		"-y", outputPath,
	}
	res, err := m.Runner.Run(ctx, m.FFmpeg, args, "")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "audio", "final mux", outputPath, err)
	}
	if res.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "audio", "final mux", res.StderrTail(6), nil)
	}
	if m.Logger != nil {
		m.Logger.Info("music muxed", logging.String("output", outputPath))
	}
	return nil
}

// PassThrough copies the current artifact to the final output path without
// re-encoding. Used when no music track was supplied.
func (m *Mixer) PassThrough(videoPath, outputPath string) error {
	if err := fileutil.CopyFileVerified(videoPath, outputPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "audio", "passthrough", outputPath, err)
	}
	return nil
}

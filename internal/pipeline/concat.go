package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"montage/internal/command"
	"montage/internal/logging"
	"montage/internal/services"
)

// Concatenator joins fetched clips with the concat demuxer. Video streams are
// copied as-is; audio is re-encoded to AAC so heterogeneous source codecs do
// not break the container.
type Concatenator struct {
	Runner command.Runner
	FFmpeg string
	Logger *slog.Logger
}

// Concatenate writes the demuxer list to listPath and produces outputPath from
// the sources in the given order. An empty source list fails with
// ErrNoSources.
func (c *Concatenator) Concatenate(ctx context.Context, sources []string, listPath, outputPath string) error {
	if len(sources) == 0 {
		return services.Wrap(services.ErrNoSources, "concat", "", "no sources to concatenate", nil)
	}

	if err := writeConcatList(listPath, sources); err != nil {
		return services.Wrap(services.ErrExternalTool, "concat", "write list", listPath, err)
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-y", outputPath,
	}
	res, err := c.Runner.Run(ctx, c.FFmpeg, args, "")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "concat", "ffmpeg", outputPath, err)
	}
	if res.ExitCode != 0 {
		return services.Wrap(services.ErrExternalTool, "concat", "ffmpeg", res.StderrTail(6), nil)
	}

	if c.Logger != nil {
		c.Logger.Info("sources concatenated",
			logging.Int("sources", len(sources)),
			logging.String("output", outputPath))
	}
	return nil
}

// writeConcatList renders the concat demuxer description. Single quotes in
// paths use the demuxer's quote-escape form.
func writeConcatList(path string, sources []string) error {
	var b strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(src, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

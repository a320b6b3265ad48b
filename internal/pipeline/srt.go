package pipeline

import (
	"fmt"
	"math"
	"os"
	"strings"

	"montage/internal/jobs"
)

// FormatSRTTimestamp renders seconds in the HH:MM:SS,mmm form SRT expects.
func FormatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(math.Round(seconds * 1000))
	millis := totalMillis % 1000
	totalSeconds := totalMillis / 1000
	secs := totalSeconds % 60
	minutes := (totalSeconds / 60) % 60
	hours := totalSeconds / 3600
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// WriteSRT renders cues as a numbered SRT track starting at index 1.
func WriteSRT(cues []jobs.SubtitleCue, path string) error {
	var b strings.Builder
	index := 1
	for _, cue := range cues {
		fmt.Fprintf(&b, "%d\n", index)
		fmt.Fprintf(&b, "%s --> %s\n", FormatSRTTimestamp(cue.Start), FormatSRTTimestamp(cue.End))
		fmt.Fprintf(&b, "%s\n\n", cue.Text)
		index++
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

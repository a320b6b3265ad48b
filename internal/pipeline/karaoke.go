package pipeline

import (
	"fmt"
	"math"
	"os"
	"strings"

	"montage/internal/jobs"
)

// Per-word highlight bounds for karaoke timing. The split is a synthetic
// even division of the cue, not audio-aligned, so it is clamped to stay
// readable on very short and very long cues.
const (
	minWordHighlightMillis = 200
	maxWordHighlightMillis = 2000
)

// WordHighlightMillis returns the highlight duration for each word of a cue
// spanning [start, end] seconds with wordCount words.
func WordHighlightMillis(start, end float64, wordCount int) int {
	if wordCount <= 0 {
		return 0
	}
	cueMillis := int(math.Round((end - start) * 1000))
	per := cueMillis / wordCount
	if per < minWordHighlightMillis {
		return minWordHighlightMillis
	}
	if per > maxWordHighlightMillis {
		return maxWordHighlightMillis
	}
	return per
}

// WriteKaraokeASS renders cues as an ASS track with per-word highlight tags.
// Cues with no words are skipped.
func WriteKaraokeASS(cues []jobs.SubtitleCue, style jobs.SubtitleStyle, path string) error {
	var b strings.Builder

	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	b.WriteString("WrapStyle: 0\n")
	b.WriteString("ScaledBorderAndShadow: yes\n\n")

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, BackColour, Bold, Alignment, MarginV\n")
	bold := 0
	if style.Bold {
		bold = -1
	}
	fmt.Fprintf(&b, "Style: Karaoke,%s,%d,%s,&H00ffff,%s,%d,%d,%d\n\n",
		style.FontName, style.FontSize, style.PrimaryColour, style.BackgroundColor,
		bold, style.Alignment, style.MarginV)

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, cue := range cues {
		words := strings.Fields(cue.Text)
		if len(words) == 0 {
			continue
		}
		perWord := WordHighlightMillis(cue.Start, cue.End, len(words))
		centis := perWord / 10

		var text strings.Builder
		for i, word := range words {
			if i > 0 {
				text.WriteByte(' ')
			}
			fmt.Fprintf(&text, `{\k%d}%s`, centis, word)
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Karaoke,,0,0,0,,%s\n",
			formatASSTimestamp(cue.Start), formatASSTimestamp(cue.End), text.String())
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// formatASSTimestamp renders seconds in ASS's H:MM:SS.cc form.
func formatASSTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalCentis := int64(math.Round(seconds * 100))
	centis := totalCentis % 100
	totalSeconds := totalCentis / 100
	secs := totalSeconds % 60
	minutes := (totalSeconds / 60) % 60
	hours := totalSeconds / 3600
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centis)
}

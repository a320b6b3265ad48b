package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"montage/internal/jobs"
)

func TestFormatSRTTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.042, "00:01:01,042"},
		{3723.999, "01:02:03,999"},
		{-2, "00:00:00,000"},
	}
	for _, tc := range cases {
		if got := FormatSRTTimestamp(tc.seconds); got != tc.want {
			t.Errorf("FormatSRTTimestamp(%f) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestWriteSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subtitles.srt")
	cues := []jobs.SubtitleCue{
		{Start: 0, End: 2.5, Text: "first line"},
		{Start: 2.5, End: 5, Text: "second line"},
	}
	if err := WriteSRT(cues, path); err != nil {
		t.Fatalf("WriteSRT failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "1\n00:00:00,000 --> 00:00:02,500\nfirst line\n\n" +
		"2\n00:00:02,500 --> 00:00:05,000\nsecond line\n\n"
	if string(data) != want {
		t.Errorf("SRT mismatch:\ngot  %q\nwant %q", string(data), want)
	}
}

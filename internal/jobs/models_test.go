package jobs

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"processing", StatusProcessing, true},
		{" Completed ", StatusCompleted, true},
		{"FAILED", StatusFailed, true},
		{"queued", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseStatus(%q) = %q, %v", tc.in, got, ok)
		}
	}
}

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"merge", KindMerge, true},
		{"circle-overlay", KindCircleOverlay, true},
		{"Overlay", KindOverlay, true},
		{"remote-motion", KindRemoteMotion, true},
		{"transcode", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseKind(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseKind(%q) = %q, %v", tc.in, got, ok)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusProcessing.Terminal() {
		t.Fatal("processing is not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed and failed are terminal")
	}
}

func TestPatchConstructors(t *testing.T) {
	at := time.Now()
	done := CompletedPatch("bucket/out.mp4", at)
	if done.Status == nil || *done.Status != StatusCompleted {
		t.Fatalf("completed patch status: %+v", done)
	}
	if done.Progress == nil || *done.Progress != 100 {
		t.Fatalf("completed patch progress: %+v", done)
	}
	if done.ResultLocator == nil || *done.ResultLocator != "bucket/out.mp4" {
		t.Fatalf("completed patch locator: %+v", done)
	}

	failed := FailedPatch("boom", at)
	if failed.Status == nil || *failed.Status != StatusFailed {
		t.Fatalf("failed patch status: %+v", failed)
	}
	if failed.ErrorMessage == nil || *failed.ErrorMessage != "boom" {
		t.Fatalf("failed patch message: %+v", failed)
	}
}

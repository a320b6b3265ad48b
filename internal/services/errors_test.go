package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrExternalTool, "concat", "ffmpeg", "exit status 1", errors.New("boom"))
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool marker, got %v", err)
	}
	for _, want := range []string{"concat", "ffmpeg", "exit status 1", "boom"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestWrapOmitsEmptyParts(t *testing.T) {
	err := Wrap(ErrDownload, "fetch", "", "status 404", nil)
	if got := err.Error(); strings.Contains(got, "::") {
		t.Fatalf("unexpected empty detail segment in %q", got)
	}
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"remote", Wrap(ErrRemoteService, "monitor", "status", "503", nil), true},
		{"timeout", ErrTimeout, true},
		{"tool", Wrap(ErrExternalTool, "concat", "", "", nil), false},
		{"download", ErrDownload, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

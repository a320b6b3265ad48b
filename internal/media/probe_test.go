package media

import (
	"context"
	"errors"
	"math"
	"testing"

	"montage/internal/services"
	"montage/internal/testsupport"
)

const sampleProbeOutput = `{
  "streams": [
    {"codec_type": "video", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
    {"codec_type": "audio", "r_frame_rate": "0/0"}
  ],
  "format": {"duration": "12.480000"}
}`

func TestProbeParsesStreams(t *testing.T) {
	runner := testsupport.NewFakeRunner(testsupport.Response{Stdout: sampleProbeOutput})

	info, err := Probe(context.Background(), runner, "ffprobe", "/tmp/clip.mp4")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("unexpected dimensions %dx%d", info.Width, info.Height)
	}
	if math.Abs(info.Duration-12.48) > 0.001 {
		t.Errorf("unexpected duration %f", info.Duration)
	}
	if math.Abs(info.FPS-29.97) > 0.01 {
		t.Errorf("unexpected fps %f", info.FPS)
	}
	if !info.HasAudio {
		t.Error("expected audio stream to be detected")
	}

	calls := runner.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(calls))
	}
	call := calls[0]
	if call.Name != "ffprobe" {
		t.Errorf("unexpected binary %q", call.Name)
	}
	for _, want := range []string{"-print_format", "json", "-show_streams", "-show_format", "/tmp/clip.mp4"} {
		if !call.HasArg(want) {
			t.Errorf("expected argument %q in %q", want, call.Joined())
		}
	}
}

func TestProbeVideoOnly(t *testing.T) {
	runner := testsupport.NewFakeRunner(testsupport.Response{
		Stdout: `{"streams":[{"codec_type":"video","width":640,"height":480,"r_frame_rate":"25/1"}],"format":{"duration":"3.0"}}`,
	})

	info, err := Probe(context.Background(), runner, "ffprobe", "clip.mp4")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.HasAudio {
		t.Error("expected no audio stream")
	}
	if info.FPS != 25 {
		t.Errorf("unexpected fps %f", info.FPS)
	}
}

func TestProbeToolFailure(t *testing.T) {
	runner := testsupport.NewFakeRunner(testsupport.Response{ExitCode: 1, Stderr: "No such file or directory"})

	_, err := Probe(context.Background(), runner, "ffprobe", "missing.mp4")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Errorf("expected ErrExternalTool, got %v", err)
	}
}

func TestProbeBadJSON(t *testing.T) {
	runner := testsupport.NewFakeRunner(testsupport.Response{Stdout: "not json"})

	_, err := Probe(context.Background(), runner, "ffprobe", "clip.mp4")
	if err == nil {
		t.Fatal("expected error for malformed output")
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30000/1001", 29.97},
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		got := parseFrameRate(tc.in)
		if math.Abs(got-tc.want) > 0.01 {
			t.Errorf("parseFrameRate(%q) = %f, want %f", tc.in, got, tc.want)
		}
	}
}

package jobs

import (
	"errors"
	"testing"

	"montage/internal/services"
)

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		request Request
		wantErr bool
	}{
		{
			name: "valid merge",
			request: Request{Kind: KindMerge, Merge: &MergeRequest{
				SourceURLs: []string{"http://example.com/a.mp4"},
			}},
		},
		{
			name:    "merge without payload",
			request: Request{Kind: KindMerge},
			wantErr: true,
		},
		{
			name:    "merge without sources",
			request: Request{Kind: KindMerge, Merge: &MergeRequest{}},
			wantErr: true,
		},
		{
			name: "merge with inverted cue",
			request: Request{Kind: KindMerge, Merge: &MergeRequest{
				SourceURLs: []string{"http://example.com/a.mp4"},
				Subtitles:  []SubtitleCue{{Start: 5, End: 2, Text: "oops"}},
			}},
			wantErr: true,
		},
		{
			name: "valid circle overlay",
			request: Request{Kind: KindCircleOverlay, Composite: &CompositeRequest{
				BackgroundURL: "http://example.com/bg.mp4",
				OverlayURL:    "http://example.com/face.mp4",
				Position:      "bottom_right",
			}},
		},
		{
			name: "composite missing overlay",
			request: Request{Kind: KindCircleOverlay, Composite: &CompositeRequest{
				BackgroundURL: "http://example.com/bg.mp4",
			}},
			wantErr: true,
		},
		{
			name: "overlay with corner position",
			request: Request{Kind: KindOverlay, Composite: &CompositeRequest{
				BackgroundURL: "http://example.com/bg.mp4",
				OverlayURL:    "http://example.com/face.mp4",
				Position:      "bottom_right",
			}},
			wantErr: true,
		},
		{
			name: "negative volume",
			request: Request{Kind: KindOverlay, Composite: &CompositeRequest{
				BackgroundURL:    "http://example.com/bg.mp4",
				OverlayURL:       "http://example.com/face.mp4",
				BackgroundVolume: -1,
			}},
			wantErr: true,
		},
		{
			name: "valid motion",
			request: Request{Kind: KindRemoteMotion, Motion: &MotionRequest{
				AvatarURL:    "http://example.com/avatar.png",
				ReferenceURL: "http://example.com/ref.mp4",
			}},
		},
		{
			name:    "motion missing reference",
			request: Request{Kind: KindRemoteMotion, Motion: &MotionRequest{AvatarURL: "http://example.com/a.png"}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			request: Request{Kind: Kind("transcode")},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.request.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

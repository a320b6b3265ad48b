package jobs

import (
	"fmt"
	"strings"

	"montage/internal/services"
)

// SubtitleCue is one timed caption line.
type SubtitleCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SubtitleStyle controls plain (non-karaoke) burn-in rendering.
type SubtitleStyle struct {
	FontName        string `json:"font_name"`
	FontSize        int    `json:"font_size"`
	PrimaryColour   string `json:"font_color"`
	BackgroundColor string `json:"background_color"`
	Bold            bool   `json:"bold"`
	Alignment       int    `json:"alignment"`
	MarginV         int    `json:"margin_v"`
}

// DefaultSubtitleStyle matches the renderer's house style.
func DefaultSubtitleStyle() SubtitleStyle {
	return SubtitleStyle{
		FontName:        "Arial",
		FontSize:        12,
		PrimaryColour:   "&Hffffff",
		BackgroundColor: "&H80000000",
		Bold:            true,
		Alignment:       2,
		MarginV:         30,
	}
}

// MergeRequest describes a merge job: concatenate sources, optionally burn
// subtitles, optionally mix a music track.
type MergeRequest struct {
	SourceURLs     []string       `json:"video_urls"`
	MusicURL       string         `json:"music_url,omitempty"`
	OutputName     string         `json:"output_filename,omitempty"`
	Subtitles      []SubtitleCue  `json:"subtitles_data,omitempty"`
	KaraokeMode    bool           `json:"karaoke_mode,omitempty"`
	SubtitleStyle  *SubtitleStyle `json:"subtitle_style,omitempty"`
}

// CompositeRequest describes a circle-overlay or overlay job.
type CompositeRequest struct {
	BackgroundURL    string  `json:"video_background_url"`
	OverlayURL       string  `json:"video_overlay_url"`
	BackgroundVolume float64 `json:"background_volume"`
	OverlayVolume    float64 `json:"overlay_volume"`
	// Position is a corner (bottom_right, bottom_left, top_right, top_left)
	// for circle-overlay, or top/bottom for overlay.
	Position string `json:"position,omitempty"`
}

// MotionRequest describes a remote-motion job delegated to the AI provider.
type MotionRequest struct {
	AvatarURL    string `json:"avatar_url"`
	ReferenceURL string `json:"reference_url"`
	Model        string `json:"model,omitempty"`
}

// Request is a tagged job description; exactly one variant matching Kind must
// be populated.
type Request struct {
	Kind      Kind              `json:"kind"`
	Merge     *MergeRequest     `json:"merge,omitempty"`
	Composite *CompositeRequest `json:"composite,omitempty"`
	Motion    *MotionRequest    `json:"motion,omitempty"`
}

// Validate checks the request's shape at dispatch time.
func (r Request) Validate() error {
	switch r.Kind {
	case KindMerge:
		if r.Merge == nil {
			return services.Wrap(services.ErrValidation, "dispatch", "", "merge payload required", nil)
		}
		return r.Merge.validate()
	case KindCircleOverlay, KindOverlay:
		if r.Composite == nil {
			return services.Wrap(services.ErrValidation, "dispatch", "", "composite payload required", nil)
		}
		return r.Composite.validate(r.Kind)
	case KindRemoteMotion:
		if r.Motion == nil {
			return services.Wrap(services.ErrValidation, "dispatch", "", "motion payload required", nil)
		}
		return r.Motion.validate()
	default:
		return services.Wrap(services.ErrValidation, "dispatch", "", fmt.Sprintf("unknown job kind %q", string(r.Kind)), nil)
	}
}

func (m *MergeRequest) validate() error {
	if len(m.SourceURLs) == 0 {
		return services.Wrap(services.ErrValidation, "dispatch", "merge", "at least one source url required", nil)
	}
	for _, u := range m.SourceURLs {
		if strings.TrimSpace(u) == "" {
			return services.Wrap(services.ErrValidation, "dispatch", "merge", "source url must not be empty", nil)
		}
	}
	for i, cue := range m.Subtitles {
		if cue.End < cue.Start {
			return services.Wrap(services.ErrValidation, "dispatch", "merge",
				fmt.Sprintf("subtitle cue %d ends before it starts", i), nil)
		}
	}
	return nil
}

func (c *CompositeRequest) validate(kind Kind) error {
	if strings.TrimSpace(c.BackgroundURL) == "" {
		return services.Wrap(services.ErrValidation, "dispatch", string(kind), "background url required", nil)
	}
	if strings.TrimSpace(c.OverlayURL) == "" {
		return services.Wrap(services.ErrValidation, "dispatch", string(kind), "overlay url required", nil)
	}
	if c.BackgroundVolume < 0 || c.OverlayVolume < 0 {
		return services.Wrap(services.ErrValidation, "dispatch", string(kind), "volumes must not be negative", nil)
	}
	if kind == KindOverlay {
		switch c.Position {
		case "", "top", "bottom":
		default:
			return services.Wrap(services.ErrValidation, "dispatch", string(kind),
				fmt.Sprintf("position must be top or bottom, got %q", c.Position), nil)
		}
	}
	return nil
}

func (m *MotionRequest) validate() error {
	if strings.TrimSpace(m.AvatarURL) == "" {
		return services.Wrap(services.ErrValidation, "dispatch", "remote-motion", "avatar url required", nil)
	}
	if strings.TrimSpace(m.ReferenceURL) == "" {
		return services.Wrap(services.ErrValidation, "dispatch", "remote-motion", "reference url required", nil)
	}
	return nil
}

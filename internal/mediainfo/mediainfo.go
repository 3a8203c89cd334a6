// Package mediainfo resolves intrinsic video properties from media metadata
// and decides whether multiple sources are bit-compatible enough for the
// stream-copy export paths.
package mediainfo

import (
	"github.com/cutroom/cutroom/internal/timeline"
)

// DefaultFPSTolerance absorbs floating-point frame-rate encodings
// (29.97 vs 30) when comparing sources against the target canvas.
const DefaultFPSTolerance = 0.1

// Fallback canvas when neither export settings nor media properties resolve.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	DefaultFPS    = 30
)

// VideoProperties are derived per analysis call, never stored
type VideoProperties struct {
	Width       int
	Height      int
	FPS         float64
	Codec       string
	PixelFormat string
}

// TargetSource records where the resolved target canvas came from
type TargetSource string

const (
	TargetFromExportSettings TargetSource = "export-settings"
	TargetFromMedia          TargetSource = "media-fallback"
	TargetFromDefault        TargetSource = "default"
)

// ExtractProperties resolves the video properties of a media element.
// Field precedence: item-level value, then nested metadata, then unset.
// Returns nil unless width, height and fps all resolve to positive values;
// unresolvable metadata is treated as a property mismatch downstream.
func ExtractProperties(el timeline.Element, media map[string]*timeline.MediaItem) *VideoProperties {
	item, ok := media[el.MediaID]
	if !ok || item == nil || item.Type != timeline.MediaVideo {
		return nil
	}

	props := VideoProperties{
		Width:  item.Width,
		Height: item.Height,
		FPS:    item.FPS,
	}

	if nested, ok := item.Metadata["video"].(map[string]any); ok {
		if props.Width == 0 {
			props.Width = metaInt(nested, "width")
		}
		if props.Height == 0 {
			props.Height = metaInt(nested, "height")
		}
		if props.FPS == 0 {
			props.FPS = metaFloat(nested, "fps")
		}
		props.Codec = metaString(nested, "codec")
		props.PixelFormat = metaString(nested, "pixelFormat")
	}

	if props.Width <= 0 || props.Height <= 0 || props.FPS <= 0 {
		return nil
	}

	return &props
}

// PropertiesMatch reports whether every source matches the target canvas.
// Width and height must be exactly equal; fps may differ by the tolerance.
func PropertiesMatch(videos []VideoProperties, target VideoProperties, fpsTolerance float64) bool {
	for _, v := range videos {
		if v.Width != target.Width || v.Height != target.Height {
			return false
		}
		diff := v.FPS - target.FPS
		if diff < 0 {
			diff = -diff
		}
		if diff > fpsTolerance {
			return false
		}
	}
	return true
}

// ResolveTarget picks the target canvas: explicit export settings win, then
// the first qualifying video's own properties, then fixed defaults.
func ResolveTarget(canvas *timeline.Canvas, videos []VideoProperties) (VideoProperties, TargetSource) {
	if canvas != nil && canvas.Width > 0 && canvas.Height > 0 && canvas.FPS > 0 {
		return VideoProperties{
			Width:  canvas.Width,
			Height: canvas.Height,
			FPS:    canvas.FPS,
		}, TargetFromExportSettings
	}

	if len(videos) > 0 {
		return videos[0], TargetFromMedia
	}

	return VideoProperties{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}, TargetFromDefault
}

func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func metaFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

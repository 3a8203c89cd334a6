// Package timeline defines the multi-track edit model the exporter consumes.
package timeline

// TrackKind identifies what a track holds
type TrackKind string

const (
	TrackMedia   TrackKind = "media"
	TrackText    TrackKind = "text"
	TrackSticker TrackKind = "sticker"
	TrackAudio   TrackKind = "audio"
)

// MediaType identifies the intrinsic type of a media item
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
)

// Track holds an ordered list of elements of one kind
type Track struct {
	Name     string    `json:"name,omitempty"`
	Kind     TrackKind `json:"kind"`
	Elements []Element `json:"elements"`
}

// Element is a single placed item on a track. Times are in seconds on the
// output timeline; trim offsets eat into the element's own duration.
type Element struct {
	ID        string  `json:"id"`
	MediaID   string  `json:"mediaId,omitempty"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
	TrimStart float64 `json:"trimStart,omitempty"`
	TrimEnd   float64 `json:"trimEnd,omitempty"`
	Hidden    bool    `json:"hidden,omitempty"`

	EffectIDs []string `json:"effectIds,omitempty"`

	// Volume applies to audio elements; zero means unset (full volume)
	Volume float64 `json:"volume,omitempty"`

	Text    *TextProps    `json:"text,omitempty"`
	Sticker *StickerProps `json:"sticker,omitempty"`
}

// TextProps styles a text element
type TextProps struct {
	Content         string  `json:"content"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	FontSize        int     `json:"fontSize,omitempty"`
	Color           string  `json:"color,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	Align           string  `json:"align,omitempty"` // left | center | right
	Bold            bool    `json:"bold,omitempty"`
	Italic          bool    `json:"italic,omitempty"`
	Opacity         float64 `json:"opacity,omitempty"` // 0-1, zero means opaque
	Rotation        float64 `json:"rotation,omitempty"`
	OffsetX         float64 `json:"offsetX,omitempty"` // relative to canvas center
	OffsetY         float64 `json:"offsetY,omitempty"`
}

// StickerProps places an overlay image element
type StickerProps struct {
	AssetID     string  `json:"assetId"`
	Path        string  `json:"path,omitempty"`
	URL         string  `json:"url,omitempty"`
	SizePercent float64 `json:"sizePercent,omitempty"` // of canvas width
	OffsetX     float64 `json:"offsetX,omitempty"`     // relative to canvas center
	OffsetY     float64 `json:"offsetY,omitempty"`
	Rotation    float64 `json:"rotation,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"` // 0-1, zero means opaque
	ZIndex      int     `json:"zIndex,omitempty"`
}

// MediaItem is a library asset referenced by media elements
type MediaItem struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Type      MediaType      `json:"type"`
	Width     int            `json:"width,omitempty"`
	Height    int            `json:"height,omitempty"`
	FPS       float64        `json:"fps,omitempty"`
	LocalPath string         `json:"localPath,omitempty"`
	URL       string         `json:"url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EffectiveDuration is the visible length of the element after trims
func (e Element) EffectiveDuration() float64 {
	return e.Duration - e.TrimStart - e.TrimEnd
}

// End is the exclusive end of the element on the output timeline
func (e Element) End() float64 {
	return e.StartTime + e.EffectiveDuration()
}

// TotalDuration is the end of the last visible element across all tracks
func TotalDuration(tracks []Track) float64 {
	var end float64
	for _, track := range tracks {
		for _, el := range track.Elements {
			if el.Hidden || el.EffectiveDuration() <= 0 {
				continue
			}
			if el.End() > end {
				end = el.End()
			}
		}
	}
	return end
}

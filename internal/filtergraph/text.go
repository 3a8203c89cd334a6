package filtergraph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cutroom/cutroom/internal/timeline"
)

const (
	defaultFontSize  = 24
	defaultTextColor = "#FFFFFF"
)

// TextOverlay is a visible text element with its timeline position. Track
// and element indices define draw order: later entries draw on top.
type TextOverlay struct {
	TrackIndex   int
	ElementIndex int
	Element      timeline.Element
}

// CollectTextOverlays gathers the visible text elements from all text
// tracks, skipping hidden elements and empty content
func CollectTextOverlays(tracks []timeline.Track) []TextOverlay {
	var overlays []TextOverlay
	for ti, track := range tracks {
		if track.Kind != timeline.TrackText {
			continue
		}
		for ei, el := range track.Elements {
			if el.Hidden || el.Text == nil {
				continue
			}
			if strings.TrimSpace(el.Text.Content) == "" {
				continue
			}
			if el.EffectiveDuration() <= 0 {
				continue
			}
			overlays = append(overlays, TextOverlay{
				TrackIndex:   ti,
				ElementIndex: ei,
				Element:      el,
			})
		}
	}
	return overlays
}

// TextFilterChain compiles text overlays into a sequential drawtext chain.
// Ordering by (track index, element index) is a correctness requirement:
// the generated filters draw strictly in sequence.
func (c *Compiler) TextFilterChain(overlays []TextOverlay) string {
	if len(overlays) == 0 {
		return ""
	}

	sorted := make([]TextOverlay, len(overlays))
	copy(sorted, overlays)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TrackIndex != sorted[j].TrackIndex {
			return sorted[i].TrackIndex < sorted[j].TrackIndex
		}
		return sorted[i].ElementIndex < sorted[j].ElementIndex
	})

	filters := make([]Filter, 0, len(sorted))
	for _, o := range sorted {
		filters = append(filters, c.drawtext(o))
	}
	return JoinChain(filters)
}

// drawtext builds a single drawtext filter for one text element
func (c *Compiler) drawtext(o TextOverlay) Filter {
	t := o.Element.Text

	params := []Param{
		{Key: "text", Value: "'" + escapeText(t.Content) + "'"},
	}
	params = append(params, c.fontParams(t)...)

	size := t.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	params = append(params, Param{Key: "fontsize", Value: fmt.Sprintf("%d", size)})
	params = append(params, Param{Key: "fontcolor", Value: colorWithAlpha(t.Color, t.Opacity)})

	params = append(params,
		Param{Key: "x", Value: c.textX(t)},
		Param{Key: "y", Value: c.textY(t)},
	)

	params = append(params,
		Param{Key: "borderw", Value: "2"},
		Param{Key: "bordercolor", Value: "black"},
	)

	if t.Rotation != 0 {
		params = append(params, Param{Key: "rotate", Value: formatExpr(t.Rotation * math.Pi / 180)})
	}

	if t.BackgroundColor != "" {
		params = append(params,
			Param{Key: "box", Value: "1"},
			Param{Key: "boxcolor", Value: colorWithAlpha(t.BackgroundColor, 0.5)},
			Param{Key: "boxborderw", Value: "8"},
		)
	}

	params = append(params, Param{
		Key: "enable",
		Value: fmt.Sprintf("'between(t,%s,%s)'",
			formatExpr(o.Element.StartTime), formatExpr(o.Element.End())),
	})

	return Filter{Name: "drawtext", Params: params}
}

// textX anchors the text's left edge, midpoint, or right edge at the offset
// point relative to canvas center, depending on horizontal alignment
func (c *Compiler) textX(t *timeline.TextProps) string {
	offset := formatOffset(t.OffsetX)
	switch t.Align {
	case "left":
		return fmt.Sprintf("(w/2)%s", offset)
	case "right":
		return fmt.Sprintf("(w/2)%s-text_w", offset)
	default:
		return fmt.Sprintf("(w/2)%s-(text_w/2)", offset)
	}
}

// textY is always vertically centered plus offset
func (c *Compiler) textY(t *timeline.TextProps) string {
	return fmt.Sprintf("(h/2)%s-(text_h/2)", formatOffset(t.OffsetY))
}

// colorWithAlpha converts #RRGGBB plus an opacity (0 meaning opaque) into
// ffmpeg 0xRRGGBBAA form; alpha is on the 0-255 scale
func colorWithAlpha(hex string, opacity float64) string {
	rgb := strings.TrimPrefix(hex, "#")
	if len(rgb) != 6 {
		rgb = strings.TrimPrefix(defaultTextColor, "#")
	}
	alpha := 255
	if opacity > 0 && opacity < 1 {
		alpha = int(math.Round(opacity * 255))
	}
	return fmt.Sprintf("0x%s%02X", strings.ToUpper(rgb), alpha)
}

// formatExpr renders a number for use inside a filter expression
func formatExpr(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.3f", v)
}

// formatOffset renders a signed offset term, e.g. "+100" or "-32.500"
func formatOffset(v float64) string {
	s := formatExpr(v)
	if v >= 0 {
		return "+" + s
	}
	return s
}

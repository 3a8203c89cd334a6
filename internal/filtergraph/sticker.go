package filtergraph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cutroom/cutroom/internal/timeline"
)

const defaultStickerSizePercent = 10

// StickerSource pairs a visible sticker element with the ffmpeg input index
// of its staged image file
type StickerSource struct {
	InputIndex int
	Path       string
	Element    timeline.Element
}

// StickerFilterGraph builds a filter_complex graph overlaying every sticker
// onto the base stream, bottom to top by z-index. Each sticker's output
// chains into the next overlay's input; the final label is [vout].
func (c *Compiler) StickerFilterGraph(base string, stickers []StickerSource) string {
	if len(stickers) == 0 {
		return ""
	}

	sorted := make([]StickerSource, len(stickers))
	copy(sorted, stickers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Element.Sticker.ZIndex < sorted[j].Element.Sticker.ZIndex
	})

	var segments []string
	prev := base

	for i, s := range sorted {
		st := s.Element.Sticker

		prepared := fmt.Sprintf("[stk%d]", i)
		segments = append(segments,
			fmt.Sprintf("[%d:v]%s%s", s.InputIndex, c.stickerChain(st), prepared))

		out := fmt.Sprintf("[v%d]", i+1)
		if i == len(sorted)-1 {
			out = "[vout]"
		}
		segments = append(segments,
			fmt.Sprintf("%s%soverlay=%s:%s%s%s",
				prev, prepared,
				stickerX(st), stickerY(st),
				stickerEnable(s.Element), out))

		prev = out
	}

	return strings.Join(segments, ";")
}

// stickerChain prepares one sticker input: scale to pixel size, optional
// rotation, optional per-pixel opacity
func (c *Compiler) stickerChain(st *timeline.StickerProps) string {
	percent := st.SizePercent
	if percent <= 0 {
		percent = defaultStickerSizePercent
	}
	width := int(math.Round(percent / 100 * float64(c.canvasW)))
	if width < 1 {
		width = 1
	}

	filters := []Filter{
		{Name: "scale", Params: []Param{{Value: fmt.Sprintf("%d", width)}, {Value: "-1"}}},
	}

	if st.Rotation != 0 {
		rad := st.Rotation * math.Pi / 180
		filters = append(filters, Filter{Name: "rotate", Params: []Param{
			{Value: formatExpr(rad)},
			{Key: "c", Value: "none"},
		}})
	}

	if st.Opacity > 0 && st.Opacity < 1 {
		filters = append(filters,
			Filter{Name: "format", Params: []Param{{Value: "rgba"}}},
			Filter{Name: "colorchannelmixer", Params: []Param{
				{Key: "aa", Value: fmt.Sprintf("%.2f", st.Opacity)},
			}},
		)
	}

	return JoinChain(filters)
}

// stickerX converts the center-based offset to the overlay's top-left corner
func stickerX(st *timeline.StickerProps) string {
	return fmt.Sprintf("(main_w-overlay_w)/2%s", formatOffset(st.OffsetX))
}

func stickerY(st *timeline.StickerProps) string {
	return fmt.Sprintf("(main_h-overlay_h)/2%s", formatOffset(st.OffsetY))
}

// stickerEnable bounds visibility to the element's trimmed window
func stickerEnable(el timeline.Element) string {
	return fmt.Sprintf(":enable='between(t,%s,%s)'",
		formatExpr(el.StartTime), formatExpr(el.End()))
}

// CollectStickers gathers visible sticker elements from sticker tracks
func CollectStickers(tracks []timeline.Track) []timeline.Element {
	var stickers []timeline.Element
	for _, track := range tracks {
		if track.Kind != timeline.TrackSticker {
			continue
		}
		for _, el := range track.Elements {
			if el.Hidden || el.Sticker == nil || el.EffectiveDuration() <= 0 {
				continue
			}
			stickers = append(stickers, el)
		}
	}
	return stickers
}

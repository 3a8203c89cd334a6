package exporter

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cutroom/cutroom/internal/analyzer"
	"github.com/cutroom/cutroom/internal/filtergraph"
	"github.com/cutroom/cutroom/internal/raster"
	"github.com/cutroom/cutroom/internal/timeline"
)

// renderFrames composites every output frame for the image pipeline. This is
// the only branch whose cost is proportional to duration times fps. The loop
// is strictly sequential and checks for cancellation at each frame boundary.
func (x *Exporter) renderFrames(ctx context.Context, session *Session, project *timeline.Project, an analyzer.Analysis, report ProgressFunc) (*prepResult, error) {
	target := an.Target

	surface, err := raster.NewSurface(x.logger, target.Width, target.Height, x.cfg.Raster.FontFile)
	if err != nil {
		return nil, err
	}

	media := project.MediaIndex()
	duration := timeline.TotalDuration(project.Tracks)
	total := int(math.Ceil(duration * target.FPS))
	if total <= 0 {
		return nil, fmt.Errorf("nothing to render: timeline duration %.3fs", duration)
	}

	// Sticker images are staged up front; a failure drops stickers from the
	// export rather than failing it.
	stickerFiles := map[string]string{}
	stickers := filtergraph.CollectStickers(project.Tracks)
	if len(stickers) > 0 {
		staged, err := x.stageStickers(ctx, session, stickers)
		if err != nil {
			x.logger.Warn().Err(err).Msg("sticker staging failed, rendering without stickers")
		} else {
			for _, s := range staged {
				stickerFiles[s.Element.Sticker.AssetID] = s.Path
			}
		}
	}

	cache := newFrameCache(x.bridge, session)

	x.logger.Info().
		Int("frames", total).
		Int("width", target.Width).
		Int("height", target.Height).
		Float64("fps", target.FPS).
		Msg("rendering frame sequence")

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		default:
		}

		t := float64(i) / target.FPS
		surface.Reset()
		x.compositeFrame(ctx, surface, cache, project, media, stickerFiles, t)

		if err := surface.SavePNG(session.NextFramePath()); err != nil {
			return nil, err
		}

		if report != nil && total > 0 {
			report(15+(65*i)/total, fmt.Sprintf("rendering frame %d/%d", i+1, total))
		}
	}

	return &prepResult{framesDir: session.Dir}, nil
}

// compositeFrame draws every element active at time t onto the surface:
// media tracks in order, then stickers bottom-to-top, then text on top
func (x *Exporter) compositeFrame(ctx context.Context, surface *raster.Surface, cache *frameCache, project *timeline.Project, media map[string]*timeline.MediaItem, stickerFiles map[string]string, t float64) {
	canvas := surface.Bounds()

	for _, track := range project.Tracks {
		if track.Kind != timeline.TrackMedia {
			continue
		}
		for _, el := range track.Elements {
			if !activeAt(el, t) {
				continue
			}
			item := media[el.MediaID]
			if item == nil {
				continue
			}

			var img image.Image
			var err error
			switch item.Type {
			case timeline.MediaVideo:
				if item.LocalPath == "" {
					continue
				}
				sourceTime := t - el.StartTime + el.TrimStart
				img, err = cache.videoFrame(ctx, item.LocalPath, sourceTime, item.FPS)
			case timeline.MediaImage:
				if item.LocalPath == "" {
					continue
				}
				img, err = cache.still(item.LocalPath)
			default:
				continue
			}
			if err != nil {
				x.logger.Warn().Err(err).Str("media", item.ID).Float64("t", t).Msg("failed to sample media element")
				continue
			}
			surface.DrawImage(img, fitRect(img.Bounds(), canvas), 0)
		}
	}

	x.compositeStickers(surface, cache, project.Tracks, stickerFiles, t)
	x.compositeText(surface, project.Tracks, t)
}

func (x *Exporter) compositeStickers(surface *raster.Surface, cache *frameCache, tracks []timeline.Track, stickerFiles map[string]string, t float64) {
	var active []timeline.Element
	for _, track := range tracks {
		if track.Kind != timeline.TrackSticker {
			continue
		}
		for _, el := range track.Elements {
			if activeAt(el, t) && el.Sticker != nil {
				active = append(active, el)
			}
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Sticker.ZIndex < active[j].Sticker.ZIndex
	})

	canvas := surface.Bounds()
	for _, el := range active {
		st := el.Sticker
		path := stickerFiles[st.AssetID]
		if path == "" {
			continue
		}
		img, err := cache.still(path)
		if err != nil {
			x.logger.Warn().Err(err).Str("sticker", st.AssetID).Msg("failed to load sticker image")
			continue
		}

		percent := st.SizePercent
		if percent <= 0 {
			percent = 10
		}
		w := int(math.Round(percent / 100 * float64(canvas.Dx())))
		if w < 1 {
			w = 1
		}
		h := int(math.Round(float64(w) * float64(img.Bounds().Dy()) / float64(img.Bounds().Dx())))
		if h < 1 {
			h = 1
		}

		// Offsets are relative to canvas center; convert to top-left.
		cx := canvas.Dx()/2 + int(st.OffsetX)
		cy := canvas.Dy()/2 + int(st.OffsetY)
		dst := image.Rect(cx-w/2, cy-h/2, cx+w-w/2, cy+h-h/2)

		surface.DrawImage(img, dst, st.Opacity)
	}
}

func (x *Exporter) compositeText(surface *raster.Surface, tracks []timeline.Track, t float64) {
	canvas := surface.Bounds()

	for _, track := range tracks {
		if track.Kind != timeline.TrackText {
			continue
		}
		for _, el := range track.Elements {
			if !activeAt(el, t) || el.Text == nil {
				continue
			}
			tp := el.Text
			content := strings.TrimSpace(tp.Content)
			if content == "" {
				continue
			}

			size := tp.FontSize
			if size <= 0 {
				size = 24
			}

			anchorX := canvas.Dx()/2 + int(tp.OffsetX)
			width := surface.MeasureText(content, size)
			switch tp.Align {
			case "left":
				// anchor is the left edge
			case "right":
				anchorX -= width
			default:
				anchorX -= width / 2
			}
			baselineY := canvas.Dy()/2 + int(tp.OffsetY) + size/2

			surface.DrawText(content, anchorX, baselineY, size, parseHexColor(tp.Color))
		}
	}
}

func activeAt(el timeline.Element, t float64) bool {
	return !el.Hidden && el.EffectiveDuration() > 0 && t >= el.StartTime && t < el.End()
}

// fitRect aspect-fits src into dst, centered
func fitRect(src, dst image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	dw, dh := float64(dst.Dx()), float64(dst.Dy())
	if sw <= 0 || sh <= 0 {
		return dst
	}

	scale := math.Min(dw/sw, dh/sh)
	w := int(math.Round(sw * scale))
	h := int(math.Round(sh * scale))
	x0 := dst.Min.X + (dst.Dx()-w)/2
	y0 := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func parseHexColor(hex string) color.Color {
	rgb := strings.TrimPrefix(hex, "#")
	if len(rgb) != 6 {
		return color.White
	}
	v, err := strconv.ParseUint(rgb, 16, 32)
	if err != nil {
		return color.White
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// frameCache holds one decoded frame per source plus decoded stills. Reuse
// relies on the render loop being sequential.
type frameCache struct {
	bridge  Bridge
	session *Session
	frames  map[string]cachedFrame
	stills  map[string]image.Image
}

type cachedFrame struct {
	quantized int
	img       image.Image
}

func newFrameCache(bridge Bridge, session *Session) *frameCache {
	return &frameCache{
		bridge:  bridge,
		session: session,
		frames:  make(map[string]cachedFrame),
		stills:  make(map[string]image.Image),
	}
}

// videoFrame samples the source at the given time, reusing the previous
// decode when the quantized source frame has not advanced
func (c *frameCache) videoFrame(ctx context.Context, path string, at, fps float64) (image.Image, error) {
	if fps <= 0 {
		fps = 30
	}
	q := int(at * fps)

	if f, ok := c.frames[path]; ok && f.quantized == q {
		return f.img, nil
	}

	out := c.session.AssetPath("sample.png")
	if err := c.bridge.ExtractFrame(ctx, path, at, out); err != nil {
		return nil, err
	}
	defer os.Remove(out)

	img, err := decodeImage(out)
	if err != nil {
		return nil, err
	}

	c.frames[path] = cachedFrame{quantized: q, img: img}
	return img, nil
}

// still decodes and caches a static image
func (c *frameCache) still(path string) (image.Image, error) {
	if img, ok := c.stills[path]; ok {
		return img, nil
	}
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	c.stills[path] = img
	return img, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

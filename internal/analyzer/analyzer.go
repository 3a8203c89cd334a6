// Package analyzer classifies a timeline into the cheapest correct export
// strategy: stream copy, single-video filter overlay, normalization, or the
// universal raster fallback.
package analyzer

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cutroom/cutroom/internal/mediainfo"
	"github.com/cutroom/cutroom/internal/timeline"
)

// Strategy names an export pipeline, cheapest first
type Strategy string

const (
	StrategyDirectCopy    Strategy = "direct-copy"
	StrategyDirectFilters Strategy = "direct-video-with-filters"
	StrategyNormalization Strategy = "video-normalization"
	StrategyImagePipeline Strategy = "image-pipeline"
)

// VideoSource is a qualifying video element with its resolved interval
type VideoSource struct {
	Element timeline.Element
	Item    *timeline.MediaItem
	Start   float64
	End     float64
}

// Analysis is the sole input the orchestrator branches on. Produced once per
// export; nothing downstream re-derives these flags.
type Analysis struct {
	HasImageElements       bool
	HasTextElements        bool
	HasStickers            bool
	HasEffects             bool
	HasOverlappingVideos   bool
	HasMultipleVideoSources bool
	AllVideosHaveLocalPath bool

	NeedsFrameRendering  bool
	NeedsFilterEncoding  bool
	NeedsImageProcessing bool

	Strategy Strategy
	Reason   string

	Videos       []VideoSource
	Target       mediainfo.VideoProperties
	TargetSource mediainfo.TargetSource
}

// Analyzer walks a timeline once and decides the export strategy
type Analyzer struct {
	logger       zerolog.Logger
	fpsTolerance float64
}

// New creates an analyzer
func New(logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		logger:       logger.With().Str("component", "analyzer").Logger(),
		fpsTolerance: mediainfo.DefaultFPSTolerance,
	}
}

// Analyze classifies the timeline. Deterministic and side-effect-free apart
// from diagnostic logging; it never fails, malformed elements are skipped.
func (a *Analyzer) Analyze(tracks []timeline.Track, media map[string]*timeline.MediaItem, canvas *timeline.Canvas) Analysis {
	an := Analysis{AllVideosHaveLocalPath: true}

	for ti, track := range tracks {
		for ei, el := range track.Elements {
			if el.Hidden {
				continue
			}
			if el.EffectiveDuration() <= 0 {
				a.logger.Warn().
					Int("track", ti).
					Int("element", ei).
					Str("id", el.ID).
					Float64("duration", el.Duration).
					Msg("skipping element with non-positive effective duration")
				continue
			}

			if len(el.EffectIDs) > 0 {
				an.HasEffects = true
			}

			switch track.Kind {
			case timeline.TrackText:
				if el.Text != nil && strings.TrimSpace(el.Text.Content) != "" {
					an.HasTextElements = true
				}
			case timeline.TrackSticker:
				if el.Sticker != nil {
					an.HasStickers = true
				}
			case timeline.TrackMedia:
				item := media[el.MediaID]
				if item == nil {
					a.logger.Warn().Str("mediaId", el.MediaID).Msg("element references unknown media item")
					continue
				}
				switch item.Type {
				case timeline.MediaImage:
					an.HasImageElements = true
				case timeline.MediaVideo:
					an.Videos = append(an.Videos, VideoSource{
						Element: el,
						Item:    item,
						Start:   el.StartTime,
						End:     el.End(),
					})
					if item.LocalPath == "" {
						an.AllVideosHaveLocalPath = false
					}
				}
			}
		}
	}

	an.HasMultipleVideoSources = len(an.Videos) > 1
	an.HasOverlappingVideos = detectOverlap(an.Videos)

	an.NeedsFrameRendering = an.HasImageElements || an.HasOverlappingVideos
	an.NeedsFilterEncoding = an.HasTextElements || an.HasStickers
	an.NeedsImageProcessing = an.NeedsFrameRendering || an.NeedsFilterEncoding || an.HasEffects

	a.decideStrategy(&an, canvas)

	a.logger.Debug().
		Str("strategy", string(an.Strategy)).
		Str("reason", an.Reason).
		Int("videos", len(an.Videos)).
		Bool("overlap", an.HasOverlappingVideos).
		Bool("frame_rendering", an.NeedsFrameRendering).
		Bool("filter_encoding", an.NeedsFilterEncoding).
		Msg("timeline analyzed")

	return an
}

// detectOverlap sorts intervals by start and checks each against its
// predecessor's end. Strict comparison: back-to-back clips do not overlap.
func detectOverlap(videos []VideoSource) bool {
	if len(videos) < 2 {
		return false
	}

	starts := make([]VideoSource, len(videos))
	copy(starts, videos)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Start < starts[j].Start })

	for i := 1; i < len(starts); i++ {
		if starts[i-1].End > starts[i].Start {
			return true
		}
	}
	return false
}

// decideStrategy applies the priority ladder; first match wins
func (a *Analyzer) decideStrategy(an *Analysis, canvas *timeline.Canvas) {
	props := make([]mediainfo.VideoProperties, 0, len(an.Videos))
	allResolvable := true
	for _, v := range an.Videos {
		p := mediainfo.ExtractProperties(v.Element, map[string]*timeline.MediaItem{v.Element.MediaID: v.Item})
		if p == nil {
			allResolvable = false
			continue
		}
		props = append(props, *p)
	}

	an.Target, an.TargetSource = mediainfo.ResolveTarget(canvas, props)

	directCopyCandidate := len(an.Videos) >= 1 &&
		!an.HasOverlappingVideos &&
		!an.HasImageElements &&
		!an.HasTextElements &&
		!an.HasStickers &&
		!an.HasEffects &&
		an.AllVideosHaveLocalPath

	switch {
	case directCopyCandidate && !an.HasMultipleVideoSources:
		an.Strategy = StrategyDirectCopy
		an.Reason = "single video, no overlays, no effects, local source"

	case directCopyCandidate && allResolvable &&
		mediainfo.PropertiesMatch(props, an.Target, a.fpsTolerance):
		an.Strategy = StrategyDirectCopy
		an.Reason = "multiple videos, no overlays, matching properties, local sources"

	case directCopyCandidate:
		// Property mismatch or unresolvable metadata downgrades to a
		// re-encode instead of failing.
		an.Strategy = StrategyNormalization
		an.Reason = "multiple videos with mismatched properties, no overlays, local sources"

	case len(an.Videos) == 1 && !an.NeedsFrameRendering && an.NeedsFilterEncoding && an.AllVideosHaveLocalPath:
		an.Strategy = StrategyDirectFilters
		an.Reason = "single video with " + filterReason(an)

	default:
		an.Strategy = StrategyImagePipeline
		an.Reason = fallbackReason(an)
	}
}

// filterReason names the overlay kinds forcing filter encoding
func filterReason(an *Analysis) string {
	var parts []string
	if an.HasTextElements {
		parts = append(parts, "text overlays")
	}
	if an.HasStickers {
		parts = append(parts, "sticker overlays")
	}
	return strings.Join(parts, " and ")
}

// fallbackReason names every flag that contributed to the raster fallback so
// operators can diagnose why a fast path was not used
func fallbackReason(an *Analysis) string {
	var parts []string
	if len(an.Videos) == 0 {
		parts = append(parts, "no video elements")
	}
	if an.HasImageElements {
		parts = append(parts, "image elements")
	}
	if an.HasOverlappingVideos {
		parts = append(parts, "overlapping videos")
	}
	if !an.AllVideosHaveLocalPath {
		parts = append(parts, "videos without local path")
	}
	if an.HasEffects {
		parts = append(parts, "effects")
	}
	if an.HasMultipleVideoSources && an.NeedsFilterEncoding {
		parts = append(parts, "multiple videos with overlays")
	}
	if len(parts) == 0 {
		if an.NeedsFilterEncoding {
			parts = append(parts, "overlays without a qualifying video")
		} else {
			parts = append(parts, "no fast path applicable")
		}
	}
	return "frame rendering required: " + strings.Join(parts, ", ")
}

// Package exporter drives one export call end to end: session setup,
// strategy analysis, strategy-specific preparation with a single
// downgrade-on-failure recovery, concurrent audio preparation, one encoder
// invocation, and guaranteed cleanup.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cutroom/cutroom/internal/analyzer"
	"github.com/cutroom/cutroom/internal/config"
	"github.com/cutroom/cutroom/internal/ffmpeg"
	"github.com/cutroom/cutroom/internal/filtergraph"
	"github.com/cutroom/cutroom/internal/timeline"
)

// Exporter is the top-level export driver
type Exporter struct {
	logger   zerolog.Logger
	cfg      *config.Config
	bridge   Bridge
	analyzer *analyzer.Analyzer
	platform filtergraph.Platform
}

// New creates an exporter around a bridge implementation
func New(logger zerolog.Logger, cfg *config.Config, bridge Bridge) *Exporter {
	return &Exporter{
		logger:   logger.With().Str("component", "exporter").Logger(),
		cfg:      cfg,
		bridge:   bridge,
		analyzer: analyzer.New(logger),
		platform: filtergraph.HostPlatform(),
	}
}

// prepResult is the strategy-specific state handed to the encode step
type prepResult struct {
	framesDir     string
	singleVideo   *ffmpeg.VideoSource
	sources       []ffmpeg.VideoSource
	textFilter    string
	stickerFilter string
	stickerPaths  []string
}

// Export runs the full state machine for one project and returns the encoded
// bytes. The session directory is cleaned up on every path unless the
// keep-temp debug flag is set.
func (x *Exporter) Export(ctx context.Context, project *timeline.Project, progress ProgressFunc) (out []byte, err error) {
	report := func(percent int, msg string) {
		x.logger.Debug().Int("percent", percent).Msg(msg)
		if progress != nil {
			progress(percent, msg)
		}
	}

	session, err := NewSession(x.logger, x.cfg.TempDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := session.Cleanup(x.cfg.KeepTemp); cerr != nil {
			x.logger.Warn().Err(cerr).Msg("session cleanup failed")
		}
	}()
	report(5, "export session created")

	media := project.MediaIndex()
	an := x.analyzer.Analyze(project.Tracks, media, project.Canvas)
	if x.cfg.SkipOptimization && an.Strategy != analyzer.StrategyImagePipeline {
		an.Strategy = analyzer.StrategyImagePipeline
		an.Reason = "manual optimization override"
	}
	report(10, fmt.Sprintf("strategy %s: %s", an.Strategy, an.Reason))

	if x.cfg.StrictValidation {
		if verr := analyzer.Validate(an); verr != nil {
			return nil, verr
		}
	}

	duration := timeline.TotalDuration(project.Tracks)
	if duration <= 0 {
		return nil, fmt.Errorf("timeline has no visible elements")
	}

	prep, err := x.prepareWithFallback(ctx, session, project, &an, report)
	if err != nil {
		return nil, err
	}

	audio := x.prepareAudio(ctx, session, project.Tracks, media)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	report(82, fmt.Sprintf("prepared %d audio assets", len(audio)))

	effectChain := x.effectChain(project.Tracks)

	req := ffmpeg.EncodeRequest{
		OutputPath:    session.OutputPath(x.cfg.Export.Format),
		Width:         an.Target.Width,
		Height:        an.Target.Height,
		FPS:           an.Target.FPS,
		Quality:       ffmpeg.Quality(x.cfg.Export.Quality),
		Duration:      duration,
		FramesDir:     prep.framesDir,
		SingleVideo:   prep.singleVideo,
		Sources:       prep.sources,
		UseDirectCopy: an.Strategy == analyzer.StrategyDirectCopy,
		Normalize:     an.Strategy == analyzer.StrategyNormalization,
		Audio:         audio,
		EffectFilter:  effectChain,
		TextFilter:    prep.textFilter,
		StickerFilter: prep.stickerFilter,
		StickerPaths:  prep.stickerPaths,
	}

	report(85, "invoking encoder")
	outputPath, err := x.bridge.Encode(ctx, req)
	if err != nil {
		return nil, err
	}

	report(95, "reading encoded output")
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder output: %w", err)
	}

	report(100, "export complete")
	return data, nil
}

// prepareWithFallback runs the strategy-specific preparation with the
// system's single recovery path: on failure the export downgrades to frame
// rendering and retries exactly once. Cancellation is never recovered.
func (x *Exporter) prepareWithFallback(ctx context.Context, session *Session, project *timeline.Project, an *analyzer.Analysis, report ProgressFunc) (*prepResult, error) {
	prep, err := x.prepareStrategy(ctx, session, project, *an, report)
	if err == nil {
		return prep, nil
	}
	if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
		return nil, err
	}

	x.logger.Warn().Err(err).
		Str("strategy", string(an.Strategy)).
		Msg("strategy preparation failed, downgrading to frame rendering")
	an.Strategy = analyzer.StrategyImagePipeline
	an.Reason = "fallback due to optimization error"
	return x.renderFrames(ctx, session, project, *an, report)
}

// prepareStrategy performs the strategy-specific preparation. Any error here
// is recoverable via the caller's downgrade path.
func (x *Exporter) prepareStrategy(ctx context.Context, session *Session, project *timeline.Project, an analyzer.Analysis, report ProgressFunc) (*prepResult, error) {
	switch an.Strategy {
	case analyzer.StrategyImagePipeline:
		return x.renderFrames(ctx, session, project, an, report)

	case analyzer.StrategyDirectFilters:
		report(15, "preparing filter encode")
		return x.prepareDirectFilters(ctx, session, project, an)

	case analyzer.StrategyDirectCopy, analyzer.StrategyNormalization:
		report(15, "collecting video sources")
		return x.prepareSources(an)

	default:
		return nil, fmt.Errorf("unknown strategy %q", an.Strategy)
	}
}

// prepareDirectFilters locates the single qualifying video and compiles the
// text and sticker filter chains. No frame rendering happens here.
func (x *Exporter) prepareDirectFilters(ctx context.Context, session *Session, project *timeline.Project, an analyzer.Analysis) (*prepResult, error) {
	if len(an.Videos) != 1 {
		return nil, fmt.Errorf("filter encode requires exactly one video, have %d", len(an.Videos))
	}
	v := an.Videos[0]
	if v.Item.LocalPath == "" {
		return nil, fmt.Errorf("video %s has no local path", v.Item.ID)
	}

	prep := &prepResult{
		singleVideo: &ffmpeg.VideoSource{
			Path:      v.Item.LocalPath,
			StartTime: v.Element.StartTime,
			Duration:  v.Element.Duration,
			TrimStart: v.Element.TrimStart,
			TrimEnd:   v.Element.TrimEnd,
		},
	}

	compiler := filtergraph.NewCompiler(x.platform, an.Target.Width, an.Target.Height)
	prep.textFilter = compiler.TextFilterChain(filtergraph.CollectTextOverlays(project.Tracks))

	stickers := filtergraph.CollectStickers(project.Tracks)
	if len(stickers) > 0 {
		staged, err := x.stageStickers(ctx, session, stickers)
		if err != nil {
			// Observed policy: drop stickers from the export rather than
			// fail hard.
			x.logger.Warn().Err(err).Msg("sticker staging failed, exporting without stickers")
		} else {
			sources := make([]filtergraph.StickerSource, len(staged))
			for i, s := range staged {
				sources[i] = filtergraph.StickerSource{
					InputIndex: 1 + i,
					Path:       s.Path,
					Element:    s.Element,
				}
				prep.stickerPaths = append(prep.stickerPaths, s.Path)
			}
			prep.stickerFilter = compiler.StickerFilterGraph("[0:v]", sources)
		}
	}

	return prep, nil
}

// prepareSources extracts the ordered source list for the concat paths
func (x *Exporter) prepareSources(an analyzer.Analysis) (*prepResult, error) {
	if len(an.Videos) == 0 {
		return nil, fmt.Errorf("no video sources to extract")
	}

	prep := &prepResult{}
	for _, v := range an.Videos {
		if v.Item.LocalPath == "" {
			return nil, fmt.Errorf("video %s has no local path", v.Item.ID)
		}
		prep.sources = append(prep.sources, ffmpeg.VideoSource{
			Path:      v.Item.LocalPath,
			StartTime: v.Element.StartTime,
			Duration:  v.Element.Duration,
			TrimStart: v.Element.TrimStart,
			TrimEnd:   v.Element.TrimEnd,
		})
	}

	// Concat order is playback order.
	sort.Slice(prep.sources, func(i, j int) bool {
		return prep.sources[i].StartTime < prep.sources[j].StartTime
	})
	return prep, nil
}

// effectChain compiles the combined per-element effect filter chain,
// first-seen order, duplicates dropped
func (x *Exporter) effectChain(tracks []timeline.Track) string {
	seen := map[string]bool{}
	var ids []string
	for _, track := range tracks {
		for _, el := range track.Elements {
			if el.Hidden {
				continue
			}
			for _, id := range el.EffectIDs {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}

	chain, unknown := filtergraph.EffectFilterChain(ids)
	for _, id := range unknown {
		x.logger.Warn().Str("effect", id).Msg("skipping unknown effect id")
	}
	return chain
}

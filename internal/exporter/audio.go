package exporter

import (
	"context"
	"path"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cutroom/cutroom/internal/ffmpeg"
	"github.com/cutroom/cutroom/internal/timeline"
	"github.com/cutroom/cutroom/pkg/util"
)

type audioTask struct {
	element timeline.Element
	item    *timeline.MediaItem
}

// prepareAudio fetches and validates every audio element's backing asset
// through a bounded worker pool. Assets that fail to fetch or that probe as
// having no audio stream are dropped rather than failing the export; assets
// whose probe itself errors are included anyway, on the theory that a
// playable file is better than none.
func (x *Exporter) prepareAudio(ctx context.Context, session *Session, tracks []timeline.Track, media map[string]*timeline.MediaItem) []ffmpeg.AudioInput {
	var tasks []audioTask
	for _, track := range tracks {
		if track.Kind != timeline.TrackAudio {
			continue
		}
		for _, el := range track.Elements {
			if el.Hidden || el.EffectiveDuration() <= 0 {
				continue
			}
			item := media[el.MediaID]
			if item == nil || item.Type != timeline.MediaAudio {
				x.logger.Warn().Str("mediaId", el.MediaID).Msg("audio element references no audio media item")
				continue
			}
			tasks = append(tasks, audioTask{element: el, item: item})
		}
	}
	if len(tasks) == 0 {
		return nil
	}

	concurrency := x.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var inputs []ffmpeg.AudioInput

	for _, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(t audioTask) {
			defer wg.Done()
			defer sem.Release(1)

			input, ok := x.prepareOneAudio(ctx, session, t)
			if !ok {
				return
			}
			mu.Lock()
			inputs = append(inputs, input)
			mu.Unlock()
		}(task)
	}
	wg.Wait()

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Delay < inputs[j].Delay })
	return inputs
}

// prepareOneAudio resolves, validates and stages a single audio asset
func (x *Exporter) prepareOneAudio(ctx context.Context, session *Session, t audioTask) (ffmpeg.AudioInput, bool) {
	filePath := t.item.LocalPath

	if filePath == "" {
		if t.item.URL == "" {
			x.logger.Warn().Str("media", t.item.ID).Msg("dropping audio asset with no source")
			return ffmpeg.AudioInput{}, false
		}
		ext := path.Ext(t.item.URL)
		if ext == "" {
			ext = ".m4a"
		}
		dest := session.AssetPath("audio-" + t.item.ID + ext)
		if !util.FileNonEmpty(dest) {
			if err := fetchToFile(ctx, t.item.URL, dest); err != nil {
				x.logger.Warn().Err(err).Str("media", t.item.ID).Msg("dropping audio asset that failed to fetch")
				return ffmpeg.AudioInput{}, false
			}
		}
		filePath = dest
	}

	if !util.FileNonEmpty(filePath) {
		x.logger.Warn().Str("path", filePath).Msg("dropping missing or empty audio asset")
		return ffmpeg.AudioInput{}, false
	}

	info, err := x.bridge.Probe(ctx, filePath)
	switch {
	case err != nil:
		// Probe unavailable is tolerated; include the file anyway.
		x.logger.Warn().Err(err).Str("path", filePath).Msg("audio probe failed, including file unvalidated")
	case !info.HasAudio:
		x.logger.Warn().Str("path", filePath).Msg("dropping asset with no audio stream")
		return ffmpeg.AudioInput{}, false
	}

	return ffmpeg.AudioInput{
		Path:      filePath,
		Delay:     t.element.StartTime,
		TrimStart: t.element.TrimStart,
		Duration:  t.element.EffectiveDuration(),
		Volume:    t.element.Volume,
	}, true
}

package exporter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cutroom/cutroom/internal/analyzer"
	"github.com/cutroom/cutroom/internal/config"
	"github.com/cutroom/cutroom/internal/ffmpeg"
	"github.com/cutroom/cutroom/internal/timeline"
)

// stubBridge fakes the encoder boundary. ExtractFrame writes a real PNG so
// the raster pipeline can decode it; Encode records the request and writes
// the payload as the output file.
type stubBridge struct {
	probeInfo  map[string]*ffmpeg.MediaInfo
	probeErr   map[string]error
	extractErr error

	encodeReqs []ffmpeg.EncodeRequest
	encodeErr  error
	payload    []byte
}

func newStubBridge() *stubBridge {
	return &stubBridge{
		probeInfo: make(map[string]*ffmpeg.MediaInfo),
		probeErr:  make(map[string]error),
		payload:   []byte("encoded"),
	}
}

func (b *stubBridge) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	if err := b.probeErr[path]; err != nil {
		return nil, err
	}
	if info := b.probeInfo[path]; info != nil {
		return info, nil
	}
	return &ffmpeg.MediaInfo{FilePath: path, HasVideo: true, HasAudio: true}, nil
}

func (b *stubBridge) ExtractFrame(ctx context.Context, input string, at float64, output string) error {
	if b.extractErr != nil {
		return b.extractErr
	}
	return writePNG(output, 8, 8)
}

func (b *stubBridge) Encode(ctx context.Context, req ffmpeg.EncodeRequest) (string, error) {
	b.encodeReqs = append(b.encodeReqs, req)
	if b.encodeErr != nil {
		return "", b.encodeErr
	}
	if err := os.WriteFile(req.OutputPath, b.payload, 0644); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

func writePNG(path string, w, h int) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		TempDir:     t.TempDir(),
		Concurrency: 2,
		Export:      config.ExportConfig{Quality: "medium", Format: "mp4"},
	}
}

func testExporter(t *testing.T, bridge Bridge) *Exporter {
	t.Helper()
	return New(zerolog.Nop(), testConfig(t), bridge)
}

func localVideoFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(p, []byte("fake video"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func singleVideoProject(localPath string) *timeline.Project {
	return &timeline.Project{
		Canvas: &timeline.Canvas{Width: 64, Height: 36, FPS: 10},
		Tracks: []timeline.Track{
			{Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "e1", MediaID: "v1", StartTime: 0, Duration: 1},
			}},
		},
		Media: []timeline.MediaItem{
			{ID: "v1", Type: timeline.MediaVideo, Width: 64, Height: 36, FPS: 10, LocalPath: localPath},
		},
	}
}

func TestExportDirectCopy(t *testing.T) {
	bridge := newStubBridge()
	x := testExporter(t, bridge)

	project := singleVideoProject(localVideoFile(t))

	var percents []int
	out, err := x.Export(context.Background(), project, func(p int, msg string) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if string(out) != "encoded" {
		t.Errorf("expected encoder payload, got %q", out)
	}

	if len(bridge.encodeReqs) != 1 {
		t.Fatalf("expected exactly one encode, got %d", len(bridge.encodeReqs))
	}
	req := bridge.encodeReqs[0]
	if !req.UseDirectCopy {
		t.Error("single local video should stream copy")
	}
	if len(req.Sources) != 1 || req.Sources[0].Path != project.Media[0].LocalPath {
		t.Errorf("unexpected sources: %+v", req.Sources)
	}
	if req.Duration != 1 {
		t.Errorf("expected duration 1, got %v", req.Duration)
	}

	if len(percents) == 0 || percents[0] != 5 || percents[len(percents)-1] != 100 {
		t.Errorf("milestones should run 5..100, got %v", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress went backwards at %d: %v", i, percents)
		}
	}

	// The session directory is gone after the export.
	entries, err := os.ReadDir(x.cfg.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("session directory not cleaned up: %v", entries)
	}
}

func TestExportDirectCopyWithMusicTrack(t *testing.T) {
	bridge := newStubBridge()
	x := testExporter(t, bridge)

	project := singleVideoProject(localVideoFile(t))
	music := filepath.Join(t.TempDir(), "music.m4a")
	if err := os.WriteFile(music, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	bridge.probeInfo[music] = &ffmpeg.MediaInfo{HasAudio: true}
	project.Media = append(project.Media, timeline.MediaItem{
		ID: "m1", Type: timeline.MediaAudio, LocalPath: music,
	})
	project.Tracks = append(project.Tracks, timeline.Track{
		Kind: timeline.TrackAudio,
		Elements: []timeline.Element{
			{ID: "a1", MediaID: "m1", StartTime: 0, Duration: 1},
		},
	})

	_, err := x.Export(context.Background(), project, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// A music track does not block the stream-copy optimization; the
	// encoder request carries both so the args builder can split codecs.
	req := bridge.encodeReqs[0]
	if !req.UseDirectCopy {
		t.Error("audio must not force a video re-encode")
	}
	if len(req.Audio) != 1 || req.Audio[0].Path != music {
		t.Errorf("audio input not carried: %+v", req.Audio)
	}
}

func TestExportDirectFiltersCompilesText(t *testing.T) {
	bridge := newStubBridge()
	x := testExporter(t, bridge)

	project := singleVideoProject(localVideoFile(t))
	project.Tracks = append(project.Tracks, timeline.Track{
		Kind: timeline.TrackText,
		Elements: []timeline.Element{
			{ID: "t1", StartTime: 0, Duration: 1, Text: &timeline.TextProps{Content: "hello"}},
		},
	})

	_, err := x.Export(context.Background(), project, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	req := bridge.encodeReqs[0]
	if req.UseDirectCopy {
		t.Error("text overlay must not stream copy")
	}
	if req.SingleVideo == nil {
		t.Fatal("filter encode uses the single-video input")
	}
	if !strings.Contains(req.TextFilter, "drawtext=") || !strings.Contains(req.TextFilter, "hello") {
		t.Errorf("text filter not compiled: %q", req.TextFilter)
	}
}

func TestExportStickerStagingFailureDropsStickers(t *testing.T) {
	bridge := newStubBridge()
	x := testExporter(t, bridge)

	project := singleVideoProject(localVideoFile(t))
	project.Tracks = append(project.Tracks, timeline.Track{
		Kind: timeline.TrackSticker,
		Elements: []timeline.Element{
			// Neither path nor URL, so staging cannot succeed.
			{ID: "s1", StartTime: 0, Duration: 1, Sticker: &timeline.StickerProps{AssetID: "s1"}},
		},
	})

	_, err := x.Export(context.Background(), project, nil)
	if err != nil {
		t.Fatalf("staging failure must not fail the export: %v", err)
	}

	req := bridge.encodeReqs[0]
	if req.StickerFilter != "" || len(req.StickerPaths) != 0 {
		t.Errorf("stickers should be dropped: %q %v", req.StickerFilter, req.StickerPaths)
	}
}

func TestExportImagePipeline(t *testing.T) {
	bridge := newStubBridge()
	cfg := testConfig(t)
	cfg.KeepTemp = true
	x := New(zerolog.Nop(), cfg, bridge)

	imgPath := filepath.Join(t.TempDir(), "photo.png")
	if err := writePNG(imgPath, 16, 9); err != nil {
		t.Fatal(err)
	}

	project := &timeline.Project{
		Canvas: &timeline.Canvas{Width: 64, Height: 36, FPS: 10},
		Tracks: []timeline.Track{
			{Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "e1", MediaID: "img1", StartTime: 0, Duration: 0.3},
			}},
		},
		Media: []timeline.MediaItem{
			{ID: "img1", Type: timeline.MediaImage, LocalPath: imgPath},
		},
	}

	out, err := x.Export(context.Background(), project, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(out) == 0 {
		t.Error("no output bytes")
	}

	req := bridge.encodeReqs[0]
	if req.FramesDir == "" {
		t.Fatal("image pipeline must encode from a frame directory")
	}
	if req.UseDirectCopy {
		t.Error("frame sequences are always re-encoded")
	}

	// 0.3s at 10 fps rounds up to 3 frames.
	for i := 0; i < 3; i++ {
		frame := filepath.Join(req.FramesDir, fmt.Sprintf(ffmpeg.FramePattern, i))
		if _, err := os.Stat(frame); err != nil {
			t.Errorf("frame %d missing: %v", i, err)
		}
	}
}

func TestExportCancellation(t *testing.T) {
	bridge := newStubBridge()
	x := testExporter(t, bridge)

	imgPath := filepath.Join(t.TempDir(), "photo.png")
	if err := writePNG(imgPath, 16, 9); err != nil {
		t.Fatal(err)
	}
	project := &timeline.Project{
		Tracks: []timeline.Track{
			{Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "e1", MediaID: "img1", StartTime: 0, Duration: 1},
			}},
		},
		Media: []timeline.MediaItem{{ID: "img1", Type: timeline.MediaImage, LocalPath: imgPath}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Export(ctx, project, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if len(bridge.encodeReqs) != 0 {
		t.Error("cancelled export must not reach the encoder")
	}
}

func TestExportEmptyTimeline(t *testing.T) {
	x := testExporter(t, newStubBridge())

	_, err := x.Export(context.Background(), &timeline.Project{}, nil)
	if err == nil {
		t.Fatal("expected error for empty timeline")
	}
}

func TestExportStrictValidation(t *testing.T) {
	bridge := newStubBridge()
	cfg := testConfig(t)
	cfg.StrictValidation = true
	x := New(zerolog.Nop(), cfg, bridge)

	imgPath := filepath.Join(t.TempDir(), "photo.png")
	if err := writePNG(imgPath, 16, 9); err != nil {
		t.Fatal(err)
	}
	project := &timeline.Project{
		Tracks: []timeline.Track{
			{Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "e1", MediaID: "img1", StartTime: 0, Duration: 1},
			}},
		},
		Media: []timeline.MediaItem{{ID: "img1", Type: timeline.MediaImage, LocalPath: imgPath}},
	}

	_, err := x.Export(context.Background(), project, nil)
	var ue *analyzer.UnsupportedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if ue.Code != analyzer.CodeNoVideoElements {
		t.Errorf("expected %s, got %s", analyzer.CodeNoVideoElements, ue.Code)
	}
}

func TestExportSkipOptimizationForcesFrames(t *testing.T) {
	bridge := newStubBridge()
	cfg := testConfig(t)
	cfg.SkipOptimization = true
	x := New(zerolog.Nop(), cfg, bridge)

	project := singleVideoProject(localVideoFile(t))
	project.Tracks[0].Elements[0].Duration = 0.2

	_, err := x.Export(context.Background(), project, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	req := bridge.encodeReqs[0]
	if req.FramesDir == "" || req.UseDirectCopy {
		t.Errorf("override should force the frame pipeline: %+v", req)
	}
}

func TestPrepareWithFallbackDowngrades(t *testing.T) {
	bridge := newStubBridge()
	x := testExporter(t, bridge)

	imgPath := filepath.Join(t.TempDir(), "photo.png")
	if err := writePNG(imgPath, 16, 9); err != nil {
		t.Fatal(err)
	}
	project := &timeline.Project{
		Canvas: &timeline.Canvas{Width: 64, Height: 36, FPS: 10},
		Tracks: []timeline.Track{
			{Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "e1", MediaID: "img1", StartTime: 0, Duration: 0.2},
			}},
		},
		Media: []timeline.MediaItem{{ID: "img1", Type: timeline.MediaImage, LocalPath: imgPath}},
	}

	session, err := NewSession(zerolog.Nop(), x.cfg.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Cleanup(false)

	// An analysis whose declared strategy cannot be prepared exercises the
	// one-shot recovery path.
	an := analyzer.Analysis{
		Strategy: analyzer.Strategy("bogus"),
		Target:   x.analyzer.Analyze(project.Tracks, project.MediaIndex(), project.Canvas).Target,
	}

	prep, err := x.prepareWithFallback(context.Background(), session, project, &an, nil)
	if err != nil {
		t.Fatalf("fallback should recover: %v", err)
	}
	if an.Strategy != analyzer.StrategyImagePipeline {
		t.Errorf("expected downgrade to %s, got %s", analyzer.StrategyImagePipeline, an.Strategy)
	}
	if an.Reason != "fallback due to optimization error" {
		t.Errorf("downgrade reason: %q", an.Reason)
	}
	if prep.framesDir == "" {
		t.Error("downgrade must produce rendered frames")
	}
	if session.FrameCount() == 0 {
		t.Error("no frames written")
	}
}

func TestPrepareSourcesOrdering(t *testing.T) {
	x := testExporter(t, newStubBridge())

	an := analyzer.Analysis{
		Videos: []analyzer.VideoSource{
			{Element: timeline.Element{StartTime: 5, Duration: 5}, Item: &timeline.MediaItem{ID: "b", LocalPath: "/tmp/b.mp4"}},
			{Element: timeline.Element{StartTime: 0, Duration: 5}, Item: &timeline.MediaItem{ID: "a", LocalPath: "/tmp/a.mp4"}},
		},
	}

	prep, err := x.prepareSources(an)
	if err != nil {
		t.Fatalf("prepareSources failed: %v", err)
	}
	if prep.sources[0].Path != "/tmp/a.mp4" || prep.sources[1].Path != "/tmp/b.mp4" {
		t.Errorf("sources not in playback order: %+v", prep.sources)
	}

	an.Videos[0].Item.LocalPath = ""
	if _, err := x.prepareSources(an); err == nil {
		t.Error("missing local path must fail preparation")
	}
}

func TestPrepareAudioPolicies(t *testing.T) {
	bridge := newStubBridge()
	x := testExporter(t, bridge)

	dir := t.TempDir()
	mk := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("audio"), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	good := mk("good.m4a")
	silent := mk("silent.m4a")
	unprobed := mk("unprobed.m4a")

	bridge.probeInfo[good] = &ffmpeg.MediaInfo{HasAudio: true}
	bridge.probeInfo[silent] = &ffmpeg.MediaInfo{HasAudio: false}
	bridge.probeErr[unprobed] = errors.New("probe exploded")

	tracks := []timeline.Track{
		{Kind: timeline.TrackAudio, Elements: []timeline.Element{
			{ID: "a1", MediaID: "good", StartTime: 4, Duration: 2, Volume: 0.5},
			{ID: "a2", MediaID: "silent", StartTime: 1, Duration: 2},
			{ID: "a3", MediaID: "unprobed", StartTime: 2, Duration: 2},
			{ID: "a4", MediaID: "nosource", StartTime: 3, Duration: 2},
			{ID: "a5", MediaID: "missing", StartTime: 0, Duration: 2},
		}},
	}
	media := map[string]*timeline.MediaItem{
		"good":     {ID: "good", Type: timeline.MediaAudio, LocalPath: good},
		"silent":   {ID: "silent", Type: timeline.MediaAudio, LocalPath: silent},
		"unprobed": {ID: "unprobed", Type: timeline.MediaAudio, LocalPath: unprobed},
		"nosource": {ID: "nosource", Type: timeline.MediaAudio},
		"missing":  {ID: "missing", Type: timeline.MediaAudio, LocalPath: filepath.Join(dir, "gone.m4a")},
	}

	session, err := NewSession(zerolog.Nop(), x.cfg.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Cleanup(false)

	inputs := x.prepareAudio(context.Background(), session, tracks, media)

	if len(inputs) != 2 {
		t.Fatalf("expected good and unprobed to survive, got %d: %+v", len(inputs), inputs)
	}
	// Sorted by delay: unprobed (2s) before good (4s).
	if inputs[0].Path != unprobed || inputs[1].Path != good {
		t.Errorf("wrong order or survivors: %+v", inputs)
	}
	if inputs[1].Delay != 4 || inputs[1].Volume != 0.5 || inputs[1].Duration != 2 {
		t.Errorf("audio fields not carried over: %+v", inputs[1])
	}
}

func TestEffectChainDedup(t *testing.T) {
	x := testExporter(t, newStubBridge())

	tracks := []timeline.Track{
		{Kind: timeline.TrackMedia, Elements: []timeline.Element{
			{ID: "e1", Duration: 1, EffectIDs: []string{"grayscale", "blur"}},
			{ID: "e2", Duration: 1, EffectIDs: []string{"blur", "sparkle"}},
			{ID: "e3", Duration: 1, Hidden: true, EffectIDs: []string{"invert"}},
		}},
	}

	chain := x.effectChain(tracks)
	if chain != "hue=s=0,gblur=sigma=10" {
		t.Errorf("expected deduped first-seen chain, got %q", chain)
	}
}

func TestSessionLifecycle(t *testing.T) {
	root := t.TempDir()
	session, err := NewSession(zerolog.Nop(), root)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(session.Dir), "cutroom-export-") {
		t.Errorf("unexpected session dir name: %s", session.Dir)
	}

	p0 := session.NextFramePath()
	p1 := session.NextFramePath()
	if filepath.Base(p0) != "frame_000000.png" || filepath.Base(p1) != "frame_000001.png" {
		t.Errorf("frame sequence: %s, %s", p0, p1)
	}
	if session.FrameCount() != 2 {
		t.Errorf("frame count: %d", session.FrameCount())
	}

	if filepath.Base(session.OutputPath("")) != "output.mp4" {
		t.Errorf("default output format: %s", session.OutputPath(""))
	}
	if filepath.Base(session.OutputPath("webm")) != "output.webm" {
		t.Errorf("explicit output format: %s", session.OutputPath("webm"))
	}

	if err := session.Cleanup(true); err != nil {
		t.Fatalf("keep cleanup failed: %v", err)
	}
	if _, err := os.Stat(session.Dir); err != nil {
		t.Error("keep should retain the directory")
	}

	if err := session.Cleanup(false); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(session.Dir); !os.IsNotExist(err) {
		t.Error("cleanup should remove the directory")
	}
}

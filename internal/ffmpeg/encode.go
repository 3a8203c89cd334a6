package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cutroom/cutroom/pkg/util"
)

// FramePattern is the frame-sequence name the raster pipeline writes and the
// encoder reads back.
const FramePattern = "frame_%06d.png"

// Default encoding settings
const (
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
)

// Quality selects a CRF/preset pair
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func (q Quality) crf() int {
	switch q {
	case QualityLow:
		return 30
	case QualityHigh:
		return 18
	default:
		return 23
	}
}

func (q Quality) preset() string {
	switch q {
	case QualityLow:
		return "veryfast"
	case QualityHigh:
		return "slow"
	default:
		return "medium"
	}
}

// VideoSource is one ordered input for the concat paths
type VideoSource struct {
	Path      string
	StartTime float64
	Duration  float64
	TrimStart float64
	TrimEnd   float64
}

// EffectiveDuration is the playable length after trims
func (s VideoSource) EffectiveDuration() float64 {
	return s.Duration - s.TrimStart - s.TrimEnd
}

// AudioInput is one prepared audio asset mixed into the output
type AudioInput struct {
	Path      string
	Delay     float64 // seconds from output start
	TrimStart float64
	Duration  float64 // effective duration; zero means whole file
	Volume    float64 // zero means full volume
}

// EncodeRequest assembles exactly one encoder invocation.
//
// Input layout contract: input 0 is the video source (frame sequence, single
// trimmed video, or concat list); sticker images follow as inputs 1..N, so a
// sticker filter graph must reference those indices; audio files come last.
type EncodeRequest struct {
	OutputPath string
	Width      int
	Height     int
	FPS        float64
	Quality    Quality
	Duration   float64

	// Exactly one of the three video inputs must be set
	FramesDir   string
	SingleVideo *VideoSource
	Sources     []VideoSource

	UseDirectCopy bool
	Normalize     bool

	Audio []AudioInput

	EffectFilter  string
	TextFilter    string
	StickerFilter string
	StickerPaths  []string
}

// AudioInputOffset is the ffmpeg input index of the first audio file under
// the request's input layout contract
func (r EncodeRequest) AudioInputOffset() int {
	return 1 + len(r.StickerPaths)
}

// withFilterExclusion clears the direct-copy flag when any overlay filter
// chain is present: filters require re-encoding, regardless of what the
// analyzer selected.
func (r EncodeRequest) withFilterExclusion() EncodeRequest {
	if r.TextFilter != "" || r.StickerFilter != "" {
		r.UseDirectCopy = false
	}
	return r
}

// Encode runs the external encoder exactly once and returns the output path
func (e *Executor) Encode(ctx context.Context, req EncodeRequest) (string, error) {
	req = req.withFilterExclusion()

	args, cleanup, err := e.buildEncodeArgs(req)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return "", err
	}

	var stderrBuf bytes.Buffer
	var mu sync.Mutex

	runOpts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			mu.Lock()
			stderrBuf.WriteString(line + "\n")
			mu.Unlock()
			e.logger.Debug().Str("ffmpeg", line).Msg("encode output")
		},
	}

	e.logger.Info().
		Str("output", req.OutputPath).
		Str("quality", string(req.Quality)).
		Bool("direct_copy", req.UseDirectCopy).
		Float64("duration", req.Duration).
		Msg("starting encode")

	if err := e.Run(ctx, runOpts); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		mu.Lock()
		stderr := tailLines(stderrBuf.String(), 40)
		mu.Unlock()
		return "", &EncodeError{Err: err, Stderr: stderr}
	}

	e.logger.Info().Str("output", req.OutputPath).Msg("encode completed")
	return req.OutputPath, nil
}

// buildEncodeArgs assembles the full argument list for one invocation
func (e *Executor) buildEncodeArgs(req EncodeRequest) (args []string, cleanup func(), err error) {
	switch {
	case req.FramesDir != "":
		args = append(args,
			"-framerate", fmt.Sprintf("%.3f", req.FPS),
			"-i", filepath.Join(req.FramesDir, FramePattern))
	case req.SingleVideo != nil:
		sv := req.SingleVideo
		args = append(args,
			"-ss", util.FormatSeconds(sv.TrimStart),
			"-t", util.FormatSeconds(sv.EffectiveDuration()),
			"-i", sv.Path)
	case len(req.Sources) > 0:
		listPath, werr := e.writeConcatList(req.Sources)
		if werr != nil {
			return nil, nil, fmt.Errorf("failed to create concat list: %w", werr)
		}
		cleanup = func() { _ = os.Remove(listPath) }
		args = append(args, "-f", "concat", "-safe", "0", "-i", listPath)
	default:
		return nil, cleanup, fmt.Errorf("encode request has no video input")
	}

	for _, p := range req.StickerPaths {
		args = append(args, "-loop", "1", "-i", p)
	}
	for _, a := range req.Audio {
		args = append(args, "-i", a.Path)
	}

	vf := joinChains(req.EffectFilter, req.TextFilter)
	if req.Normalize && !req.UseDirectCopy {
		norm := fmt.Sprintf("scale=%d:%d,fps=%.3f", req.Width, req.Height, req.FPS)
		vf = joinChains(norm, vf)
	}

	audioGraph, audioMap := buildAudioGraph(req.Audio, req.AudioInputOffset())

	var complexParts []string
	videoMap := ""

	if req.StickerFilter != "" {
		graph := req.StickerFilter
		if vf != "" {
			graph += ";[vout]" + vf + "[vfinal]"
			videoMap = "[vfinal]"
		} else {
			videoMap = "[vout]"
		}
		complexParts = append(complexParts, graph)
	} else if vf != "" && audioGraph != "" {
		// -vf and -filter_complex cannot coexist; fold the chain in
		complexParts = append(complexParts, "[0:v]"+vf+"[vfinal]")
		videoMap = "[vfinal]"
	}
	if audioGraph != "" {
		complexParts = append(complexParts, audioGraph)
	}

	switch {
	case len(complexParts) > 0:
		args = append(args, "-filter_complex", strings.Join(complexParts, ";"))
		if videoMap != "" {
			args = append(args, "-map", videoMap)
		} else {
			args = append(args, "-map", "0:v")
		}
		if audioMap != "" {
			args = append(args, "-map", audioMap)
		} else {
			args = append(args, "-map", "0:a?")
		}
	case vf != "":
		args = append(args, "-vf", vf)
	}

	if req.UseDirectCopy {
		if len(req.Audio) > 0 {
			// the audio map comes out of a filter graph and cannot be
			// stream-copied; copy the video stream only
			args = append(args, "-c:v", "copy", "-c:a", DefaultAudioCodec)
		} else {
			args = append(args, "-c", "copy")
		}
	} else {
		args = append(args,
			"-c:v", DefaultVideoCodec,
			"-crf", fmt.Sprintf("%d", req.Quality.crf()),
			"-preset", req.Quality.preset(),
			"-pix_fmt", "yuv420p",
		)
		if len(req.Audio) > 0 || req.FramesDir == "" {
			args = append(args, "-c:a", DefaultAudioCodec)
		}
		args = append(args, "-movflags", "+faststart")
	}

	if req.Duration > 0 {
		args = append(args, "-t", util.FormatSeconds(req.Duration))
	}

	args = append(args, req.OutputPath)
	return args, cleanup, nil
}

// writeConcatList generates a temporary file list for the concat demuxer,
// with per-source inpoint/outpoint honoring trims
func (e *Executor) writeConcatList(sources []VideoSource) (string, error) {
	tmpFile, err := os.CreateTemp("", "cutroom-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, src := range sources {
		absPath, err := filepath.Abs(src.Path)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", absPath); err != nil {
			return "", err
		}
		if src.TrimStart > 0 {
			fmt.Fprintf(tmpFile, "inpoint %.3f\n", src.TrimStart)
		}
		if src.TrimEnd > 0 {
			fmt.Fprintf(tmpFile, "outpoint %.3f\n", src.Duration-src.TrimEnd)
		}
	}

	return tmpFile.Name(), nil
}

// buildAudioGraph trims, delays, scales and mixes the prepared audio inputs
func buildAudioGraph(inputs []AudioInput, offset int) (graph, mapLabel string) {
	if len(inputs) == 0 {
		return "", ""
	}

	var parts []string
	var labels strings.Builder

	for i, a := range inputs {
		label := fmt.Sprintf("[a%d]", i)
		var chain []string

		if a.TrimStart > 0 || a.Duration > 0 {
			end := a.TrimStart + a.Duration
			if a.Duration > 0 {
				chain = append(chain, fmt.Sprintf("atrim=%.3f:%.3f", a.TrimStart, end))
			} else {
				chain = append(chain, fmt.Sprintf("atrim=%.3f", a.TrimStart))
			}
			chain = append(chain, "asetpts=PTS-STARTPTS")
		}
		if a.Volume > 0 && a.Volume != 1 {
			chain = append(chain, fmt.Sprintf("volume=%.2f", a.Volume))
		}
		if a.Delay > 0 {
			chain = append(chain, fmt.Sprintf("adelay=%d:all=1", int(a.Delay*1000)))
		}
		if len(chain) == 0 {
			chain = append(chain, "anull")
		}

		parts = append(parts, fmt.Sprintf("[%d:a]%s%s", offset+i, strings.Join(chain, ","), label))
		labels.WriteString(label)
	}

	if len(inputs) == 1 {
		return strings.Join(parts, ";"), "[a0]"
	}

	parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=longest[aout]", labels.String(), len(inputs)))
	return strings.Join(parts, ";"), "[aout]"
}

func joinChains(chains ...string) string {
	var parts []string
	for _, c := range chains {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ",")
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

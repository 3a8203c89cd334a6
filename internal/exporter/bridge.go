package exporter

import (
	"context"
	"errors"

	"github.com/cutroom/cutroom/internal/ffmpeg"
)

// Bridge is the external-encoder boundary the orchestrator drives. The
// production implementation is *ffmpeg.Executor; tests substitute stubs.
type Bridge interface {
	// Probe validates a file and reports its stream layout
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)

	// ExtractFrame samples a video frame to a still image
	ExtractFrame(ctx context.Context, input string, at float64, output string) error

	// Encode performs the single encoder invocation and returns the
	// produced file's path
	Encode(ctx context.Context, req ffmpeg.EncodeRequest) (string, error)
}

// ProgressFunc receives coarse export milestones
type ProgressFunc func(percent int, message string)

// ErrCancelled reports that the export was aborted at a frame boundary
var ErrCancelled = errors.New("export cancelled")

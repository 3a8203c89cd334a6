package ffmpeg

import (
	"context"
	"fmt"

	"github.com/cutroom/cutroom/pkg/util"
)

// ExtractFrame seeks into a video and writes the frame at the given time as
// a still image. The raster pipeline samples sources through this call.
func (e *Executor) ExtractFrame(ctx context.Context, input string, at float64, output string) error {
	if input == "" || output == "" {
		return fmt.Errorf("input and output paths are required")
	}

	opts := RunOptions{
		Args: []string{
			"-ss", util.FormatSeconds(at),
			"-i", input,
			"-frames:v", "1",
			"-q:v", "2",
			output,
		},
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("frame extraction at %.3fs failed: %w", at, err)
	}
	return nil
}

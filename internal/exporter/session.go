package exporter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cutroom/cutroom/internal/ffmpeg"
)

// Session owns the temporary workspace of one export call. No two concurrent
// exports share a session id or directory.
type Session struct {
	ID  string
	Dir string

	logger     zerolog.Logger
	frameCount int
}

// NewSession creates a session working directory under tempRoot
func NewSession(logger zerolog.Logger, tempRoot string) (*Session, error) {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}

	id := uuid.NewString()
	dir := filepath.Join(tempRoot, "cutroom-export-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}

	return &Session{
		ID:     id,
		Dir:    dir,
		logger: logger.With().Str("session", id).Logger(),
	}, nil
}

// NextFramePath returns the next frame file in the sequence the encoder
// reads back. The counter is monotonically increasing within the session.
func (s *Session) NextFramePath() string {
	path := filepath.Join(s.Dir, fmt.Sprintf(ffmpeg.FramePattern, s.frameCount))
	s.frameCount++
	return path
}

// FrameCount reports how many frames were written
func (s *Session) FrameCount() int {
	return s.frameCount
}

// AssetPath returns a session-scoped path for a named auxiliary asset
func (s *Session) AssetPath(name string) string {
	return filepath.Join(s.Dir, name)
}

// OutputPath returns the session-scoped encoder output file
func (s *Session) OutputPath(format string) string {
	if format == "" {
		format = "mp4"
	}
	return filepath.Join(s.Dir, "output."+format)
}

// Cleanup removes the session directory. With keep set the directory is
// retained for inspection; retention is never the default.
func (s *Session) Cleanup(keep bool) error {
	if keep {
		s.logger.Info().Str("dir", s.Dir).Msg("retaining session directory for debugging")
		return nil
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("failed to remove session dir: %w", err)
	}
	return nil
}

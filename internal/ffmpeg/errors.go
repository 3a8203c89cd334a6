package ffmpeg

import "fmt"

// EncodeError surfaces a failed encoder invocation with captured process
// diagnostics. Encoder failures are terminal; the exporter never retries them.
type EncodeError struct {
	Err    error
	Stderr string
}

func (e *EncodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("encode failed: %v", e.Err)
	}
	return fmt.Sprintf("encode failed: %v\n%s", e.Err, e.Stderr)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

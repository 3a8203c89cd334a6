package analyzer

import "fmt"

// Reason codes for unsupported timeline configurations
const (
	CodeNoVideoElements   = "no-video-elements"
	CodeImageElements     = "image-elements"
	CodeOverlappingVideos = "overlapping-videos"
	CodeMissingLocalPath  = "missing-local-path"
)

// UnsupportedError rejects a timeline before any encoder work begins.
// Only Validate produces it; Analyze itself never fails.
type UnsupportedError struct {
	Code       string
	Suggestion string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported export configuration (%s): %s", e.Code, e.Suggestion)
}

// Validate enforces the strict fail-fast policy used by deployments that
// disable the raster fallback. Callers that keep the fallback enabled
// simply skip this step.
func Validate(an Analysis) error {
	if len(an.Videos) == 0 {
		return &UnsupportedError{
			Code:       CodeNoVideoElements,
			Suggestion: "add at least one video element to the timeline",
		}
	}
	if an.HasImageElements {
		return &UnsupportedError{
			Code:       CodeImageElements,
			Suggestion: "remove image elements or enable the raster pipeline",
		}
	}
	if an.HasOverlappingVideos {
		return &UnsupportedError{
			Code:       CodeOverlappingVideos,
			Suggestion: "arrange video elements so they do not overlap in time",
		}
	}
	if !an.AllVideosHaveLocalPath {
		return &UnsupportedError{
			Code:       CodeMissingLocalPath,
			Suggestion: "download or re-link source files so every video has a local path",
		}
	}
	return nil
}

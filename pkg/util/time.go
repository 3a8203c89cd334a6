package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatSeconds converts a duration in seconds to ffmpeg timestamp format.
func FormatSeconds(seconds float64) string {
	hours := int(seconds / 3600)
	minutes := int((seconds - float64(hours*3600)) / 60)
	secs := seconds - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}

// FormatDuration converts time.Duration to ffmpeg timestamp format.
func FormatDuration(d time.Duration) string {
	return FormatSeconds(d.Seconds())
}

// ParseFrameRate parses frame rate from ffprobe format (e.g., "30/1", "30000/1001").
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) == 1 {
		fps, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0
		}
		return fps
	}
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

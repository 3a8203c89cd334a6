package util

import (
	"os"
)

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileNonEmpty checks that a file exists and has non-zero size.
func FileNonEmpty(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.Size() > 0
}

// CleanupFiles removes multiple files, ignoring errors.
func CleanupFiles(paths ...string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

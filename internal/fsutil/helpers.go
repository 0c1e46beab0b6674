// Package fsutil provides file and path helpers for the downloaders: output
// directories, collision-free file names and human-readable sizes.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
	maxUniqueSuffix        = 1000
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

// Media file extensions.
const (
	ExtAAC  = ".aac"
	ExtFLAC = ".flac"
	ExtJPG  = ".jpg"
	ExtJSON = ".json"
	ExtM4A  = ".m4a"
	ExtMP3  = ".mp3"
	ExtMP4  = ".mp4"
	ExtOGG  = ".ogg"
	ExtPNG  = ".png"
	ExtWAV  = ".wav"
	ExtWEBM = ".webm"
)

// ErrNoFreeName is returned when every suffixed variant of a name is taken.
var ErrNoFreeName = errors.New("no free file name")

// EnsureDir creates a directory and its parents if they do not exist.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// UniquePath returns dir/base+ext, or dir/base_N+ext for the smallest N
// that does not exist yet.
func UniquePath(dir, base, ext string) (string, error) {
	candidate := filepath.Join(dir, base+ext)

	for n := 1; n <= maxUniqueSuffix; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}

		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}

		candidate = filepath.Join(dir, base+"_"+strconv.Itoa(n)+ext)
	}

	return "", fmt.Errorf("%w: %s%s in %s", ErrNoFreeName, base, ext, dir)
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsMediaFile checks if a filename has a common audio, image or video
// extension.
func IsMediaFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ExtWAV, ExtMP3, ExtFLAC, ExtOGG, ExtM4A, ExtAAC, ExtPNG, ExtJPG, ExtMP4, ExtWEBM:
		return true
	default:
		return false
	}
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}

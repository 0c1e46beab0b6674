// Package datauri converts local media files to and from base64 data URIs,
// the form the generation APIs accept in place of a hosted URL.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const (
	prefix          = "data:"
	base64Marker    = ";base64"
	DefaultMimeType = "application/octet-stream"
	fallbackExt     = "bin"
)

// ErrInvalidDataURI is returned when a string is not a base64 data URI.
var ErrInvalidDataURI = errors.New("invalid data URI")

// The stdlib table only covers web types, so media types are pinned here.
var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

var extByMime = map[string]string{
	"image/png":   "png",
	"image/jpeg":  "jpg",
	"image/gif":   "gif",
	"image/webp":  "webp",
	"audio/mpeg":  "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/ogg":   "ogg",
	"video/mp4":   "mp4",
	"video/webm":  "webm",
}

// MimeType guesses a media type from the file extension, falling back to
// application/octet-stream.
func MimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))

	if known, ok := mimeByExt[ext]; ok {
		return known
	}

	guessed := mime.TypeByExtension(ext)
	if guessed == "" {
		return DefaultMimeType
	}

	mediaType, _, err := mime.ParseMediaType(guessed)
	if err != nil {
		return DefaultMimeType
	}

	return mediaType
}

// Encode builds a data URI from raw bytes.
func Encode(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	return prefix + mimeType + base64Marker + "," + base64.StdEncoding.EncodeToString(data)
}

// EncodeFile reads a local file and returns it as a data URI.
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Encode(MimeType(path), data), nil
}

// Decode parses a base64 data URI into its bytes and a file extension
// suitable for saving it ("png", "jpg", "mp3", ..., or "bin").
func Decode(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return nil, "", fmt.Errorf("%w: missing %q prefix", ErrInvalidDataURI, prefix)
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	mediaType, ok := strings.CutSuffix(header, base64Marker)
	if !ok {
		return nil, "", fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
	}

	// Drop parameters such as ";charset=utf-8".
	mediaType, _, _ = strings.Cut(mediaType, ";")

	ext, known := extByMime[strings.ToLower(mediaType)]
	if !known {
		ext = fallbackExt
	}

	return data, ext, nil
}

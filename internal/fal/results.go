package fal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/songgen/internal/fsutil"
	"github.com/book-expert/songgen/internal/httpapi"
)

const (
	filePermissions  = 0o600
	downloadTimeout  = 5 * time.Minute
	defaultImageExt  = fsutil.ExtPNG
	defaultVideoExt  = fsutil.ExtMP4
	outputProvider   = "fal-cdn"
	errFmtNoOutputIn = "no %s in result"
)

// ErrNoOutput is returned when a result carries no media URL.
var ErrNoOutput = errors.New("result has no output")

type mediaFile struct {
	URL         string `json:"url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type mediaResult struct {
	Images []mediaFile `json:"images"`
	Image  *mediaFile  `json:"image"`
	Video  *mediaFile  `json:"video"`
}

// ImageURLs returns the image URLs of a text-to-image or image-to-image result.
func ImageURLs(result json.RawMessage) ([]string, error) {
	var decoded mediaResult

	err := json.Unmarshal(result, &decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	urls := make([]string, 0, len(decoded.Images)+1)
	for _, image := range decoded.Images {
		urls = append(urls, image.URL)
	}

	if decoded.Image != nil && decoded.Image.URL != "" {
		urls = append(urls, decoded.Image.URL)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: "+errFmtNoOutputIn, ErrNoOutput, "images")
	}

	return urls, nil
}

// VideoURL returns the video URL of an image-to-video or lipsync result.
func VideoURL(result json.RawMessage) (string, error) {
	var decoded mediaResult

	err := json.Unmarshal(result, &decoded)
	if err != nil {
		return "", fmt.Errorf("failed to parse result: %w", err)
	}

	if decoded.Video == nil || decoded.Video.URL == "" {
		return "", fmt.Errorf("%w: "+errFmtNoOutputIn, ErrNoOutput, "video")
	}

	return decoded.Video.URL, nil
}

// SaveOutputs downloads every image and video referenced by result into
// dir, naming files after the current unix time. It returns the written
// paths.
func SaveOutputs(ctx context.Context, result json.RawMessage, dir string) ([]string, error) {
	var urls []string

	images, imgErr := ImageURLs(result)
	if imgErr == nil {
		urls = append(urls, images...)
	}

	video, vidErr := VideoURL(result)
	if vidErr == nil {
		urls = append(urls, video)
	}

	if len(urls) == 0 {
		return nil, ErrNoOutput
	}

	err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}

	fetcher := httpapi.New("", downloadTimeout,
		httpapi.WithProvider(outputProvider),
		httpapi.WithHeader(httpapi.HeaderAccept, "*/*"),
	)
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	paths := make([]string, 0, len(urls))

	for _, rawURL := range urls {
		ext := outputExt(rawURL, rawURL == video)

		target, pathErr := fsutil.UniquePath(dir, stamp, ext)
		if pathErr != nil {
			return paths, pathErr
		}

		saveErr := saveURL(ctx, fetcher, rawURL, target)
		if saveErr != nil {
			return paths, saveErr
		}

		paths = append(paths, target)
	}

	return paths, nil
}

func saveURL(ctx context.Context, fetcher *httpapi.Client, rawURL, target string) error {
	resp, err := fetcher.Do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	err = os.WriteFile(target, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	return nil
}

func outputExt(rawURL string, isVideo bool) string {
	trimmed, _, _ := strings.Cut(rawURL, "?")

	ext := strings.ToLower(path.Ext(trimmed))
	if fsutil.IsMediaFile("x" + ext) {
		return ext
	}

	if isVideo {
		return defaultVideoExt
	}

	return defaultImageExt
}

// Package download fetches clip documents and finished audio files and
// writes them to the songs directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/config"
	"github.com/book-expert/songgen/internal/core"
	"github.com/book-expert/songgen/internal/fsutil"
	"github.com/book-expert/songgen/internal/httpapi"
	"github.com/book-expert/songgen/internal/metrics"
	"github.com/sethvargo/go-retry"
)

const (
	filePermissions = 0o600
	apiClip         = "/api/clip"
	cdnProvider     = "cdn"
	contentTypeMP3  = "audio/mpeg"
	minRetryDelay   = time.Millisecond
)

// Static errors.
var (
	ErrNotDownloaded = errors.New("audio was not downloaded")
	ErrEmptyURL      = errors.New("url cannot be empty")
	ErrEmptyID       = errors.New("clip id cannot be empty")
)

// Downloader reads clip documents from the proxy and audio from the CDN.
type Downloader struct {
	proxy        *httpapi.Client
	cdn          *httpapi.Client
	cdnURL       string
	songsDir     string
	responsesDir string
	interval     time.Duration
	attempts     int
	store        core.ObjectStore
	log          *logger.Logger
	now          func() time.Time
}

// New creates a Downloader from the loaded configuration. store may be nil,
// in which case downloads stay on the local filesystem only.
func New(cfg *config.Config, store core.ObjectStore, log *logger.Logger) *Downloader {
	return &Downloader{
		proxy: httpapi.New(cfg.Suno.BaseURL, cfg.Suno.Timeout(), httpapi.WithProvider("suno")),
		cdn: httpapi.New("", cfg.Suno.Timeout(),
			httpapi.WithProvider(cdnProvider),
			httpapi.WithHeader(httpapi.HeaderAccept, contentTypeMP3+", */*"),
		),
		cdnURL:       strings.TrimRight(cfg.Suno.CDNURL, "/"),
		songsDir:     cfg.Paths.SongsDir,
		responsesDir: cfg.Paths.ResponsesDir,
		interval:     cfg.Suno.PollInterval(),
		attempts:     cfg.Suno.DownloadAttempts,
		store:        store,
		log:          log,
		now:          time.Now,
	}
}

// GetClip returns the proxy's clip document for id as text.
func (d *Downloader) GetClip(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrEmptyID
	}

	resp, err := d.proxy.Do(ctx, http.MethodGet, d.proxy.URL(apiClip, url.Values{"id": {id}}), nil)
	if err != nil {
		return "", fmt.Errorf("failed to get clip %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read clip %s: %w", id, err)
	}

	return string(body), nil
}

// DownloadMP3 fetches a finished audio file and writes it verbatim to
// <songs_dir>/<unix-seconds>.mp3, returning the file name. Anything other
// than a 200 response yields ErrNotDownloaded.
func (d *Downloader) DownloadMP3(ctx context.Context, audioURL string) (string, error) {
	if audioURL == "" {
		return "", ErrEmptyURL
	}

	data, err := d.fetch(ctx, audioURL)
	if err != nil {
		return "", err
	}

	err = fsutil.EnsureDir(d.songsDir)
	if err != nil {
		return "", err
	}

	path, err := fsutil.UniquePath(d.songsDir, strconv.FormatInt(d.now().Unix(), 10), fsutil.ExtMP3)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	d.log.Info("Downloaded %s to %s (%s)", audioURL, path, fsutil.FormatFileSize(int64(len(data))))

	return filepath.Base(path), nil
}

// DownloadClip waits for the CDN to serve clip id, writes it to
// <songs_dir>/<id>.mp3 and mirrors it to the object store when one is
// configured. It returns the local path.
func (d *Downloader) DownloadClip(ctx context.Context, id string) (string, error) {
	data, err := d.FetchClipAudio(ctx, id)
	if err != nil {
		return "", err
	}

	err = fsutil.EnsureDir(d.songsDir)
	if err != nil {
		return "", err
	}

	key := AudioKey(id)
	path := filepath.Join(d.songsDir, key)

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	d.log.Info("Downloaded audio to: %s (%s)", path, fsutil.FormatFileSize(int64(len(data))))

	if d.store != nil {
		err = d.store.Upload(ctx, key, data)
		if err != nil {
			return path, fmt.Errorf("failed to upload %s: %w", key, err)
		}
	}

	return path, nil
}

// FetchClipAudio requests <cdn_url>/<id>.mp3 at a fixed interval until the
// CDN answers 200 or the attempt budget runs out.
func (d *Downloader) FetchClipAudio(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	cdnURL := d.ClipURL(id)

	attempts := d.attempts
	if attempts < 1 {
		attempts = 1
	}

	interval := max(d.interval, minRetryDelay)
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval))

	var (
		audio   []byte
		attempt int
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		metrics.PollAttemptsTotal.WithLabelValues(cdnProvider).Inc()
		d.log.Info("Attempting to download song at: %s (attempt %d/%d)", cdnURL, attempt, attempts)

		data, fetchErr := d.fetch(ctx, cdnURL)
		if fetchErr != nil {
			return retry.RetryableError(fetchErr)
		}

		audio = data

		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			metrics.PollExhaustedTotal.WithLabelValues(cdnProvider).Inc()
		}

		return nil, fmt.Errorf("song %s not available after %d attempts: %w", id, attempt, err)
	}

	return audio, nil
}

// ClipURL returns the CDN location of a clip's audio.
func (d *Downloader) ClipURL(id string) string {
	return d.cdnURL + "/" + url.PathEscape(id) + fsutil.ExtMP3
}

// SaveRawResponse archives a raw proxy response as <responses_dir>/<name>.json.
// An empty name uses the current unix time.
func (d *Downloader) SaveRawResponse(raw []byte, name string) (string, error) {
	if name == "" {
		name = strconv.FormatInt(d.now().Unix(), 10)
	}

	err := fsutil.EnsureDir(d.responsesDir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(d.responsesDir, fsutil.SanitizeFilename(name)+fsutil.ExtJSON)

	err = os.WriteFile(path, raw, filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to save raw response: %w", err)
	}

	d.log.Info("Raw JSON saved to: %s", path)

	return path, nil
}

// AudioKey is the file and object name used for a clip's audio.
func AudioKey(id string) string {
	return fsutil.SanitizeFilename(id) + fsutil.ExtMP3
}

func (d *Downloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := d.cdn.Do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		var statusErr *httpapi.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %s returned %s", ErrNotDownloaded, rawURL, statusErr.Status)
		}

		return nil, fmt.Errorf("%w: %w", ErrNotDownloaded, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrNotDownloaded, rawURL, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio from %s: %w", rawURL, err)
	}

	metrics.DownloadedBytesTotal.Add(float64(len(data)))

	return data, nil
}

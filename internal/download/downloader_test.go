package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMP3 = "ID3\x04fake-mp3-frames"

var errMockUpload = errors.New("mock upload error")

type mockObjectStore struct {
	mu           sync.Mutex
	failUpload   bool
	uploadedKey  string
	uploadedData []byte
}

func (m *mockObjectStore) Download(_ context.Context, _ string) ([]byte, error) {
	return nil, nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpload {
		return errMockUpload
	}

	m.uploadedKey = key
	m.uploadedData = data

	return nil
}

func newTestDownloader(t *testing.T, serverURL string, store *mockObjectStore) *Downloader {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		Suno: config.SunoConfig{
			BaseURL:             serverURL,
			CDNURL:              serverURL + "/cdn",
			TimeoutSeconds:      5,
			PollIntervalSeconds: 1,
			DownloadAttempts:    3,
		},
		Paths: config.PathsConfig{
			SongsDir:     filepath.Join(root, "ai_songs"),
			ResponsesDir: filepath.Join(root, "tmp", "suno_responses"),
		},
	}

	log, err := logger.New(root, "download-test.log")
	require.NoError(t, err)

	var downloader *Downloader
	if store != nil {
		downloader = New(cfg, store, log)
	} else {
		downloader = New(cfg, nil, log)
	}

	downloader.now = func() time.Time { return time.Unix(1701059381, 0) }
	downloader.interval = time.Millisecond

	return downloader
}

func TestDownloadMP3_WritesTimestampNamedFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/33cab0ea.mp3", r.URL.Path)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(testMP3))
	}))
	defer server.Close()

	downloader := newTestDownloader(t, server.URL, nil)

	name, err := downloader.DownloadMP3(context.Background(), server.URL+"/33cab0ea.mp3")
	require.NoError(t, err)
	assert.Equal(t, "1701059381.mp3", name)

	data, err := os.ReadFile(filepath.Join(downloader.songsDir, name))
	require.NoError(t, err)
	assert.Equal(t, testMP3, string(data))

	second, err := downloader.DownloadMP3(context.Background(), server.URL+"/33cab0ea.mp3")
	require.NoError(t, err)
	assert.Equal(t, "1701059381_1.mp3", second, "same-second downloads must not overwrite")
}

func TestDownloadMP3_NonOKStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusAccepted} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		downloader := newTestDownloader(t, server.URL, nil)

		_, err := downloader.DownloadMP3(context.Background(), server.URL+"/missing.mp3")
		require.ErrorIs(t, err, ErrNotDownloaded, "status %d", status)

		entries, _ := os.ReadDir(downloader.songsDir)
		assert.Empty(t, entries)

		server.Close()
	}
}

func TestDownloadMP3_EmptyURL(t *testing.T) {
	t.Parallel()

	downloader := newTestDownloader(t, "http://localhost:0", nil)

	_, err := downloader.DownloadMP3(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyURL)
}

func TestGetClip_ReturnsBodyText(t *testing.T) {
	t.Parallel()

	const body = `[{"id":"abc","status":"streaming"}]`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/clip", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	downloader := newTestDownloader(t, server.URL, nil)

	text, err := downloader.GetClip(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, body, text)
}

func TestDownloadClip_RetriesUntilAvailable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cdn/abc.mp3", r.URL.Path)

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_, _ = w.Write([]byte(testMP3))
	}))
	defer server.Close()

	store := &mockObjectStore{}
	downloader := newTestDownloader(t, server.URL, store)

	path, err := downloader.DownloadClip(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(downloader.songsDir, "abc.mp3"), path)
	assert.Equal(t, int32(3), calls.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testMP3, string(data))
	assert.Equal(t, "abc.mp3", store.uploadedKey)
	assert.Equal(t, []byte(testMP3), store.uploadedData)
}

func TestDownloadClip_UploadFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testMP3))
	}))
	defer server.Close()

	downloader := newTestDownloader(t, server.URL, &mockObjectStore{failUpload: true})

	path, err := downloader.DownloadClip(context.Background(), "abc")
	require.ErrorIs(t, err, errMockUpload)
	assert.FileExists(t, path, "local copy is kept when the upload fails")
}

func TestFetchClipAudio_Exhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	downloader := newTestDownloader(t, server.URL, nil)

	_, err := downloader.FetchClipAudio(context.Background(), "abc")
	require.ErrorIs(t, err, ErrNotDownloaded)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSaveRawResponse(t *testing.T) {
	t.Parallel()

	downloader := newTestDownloader(t, "http://localhost:0", nil)

	path, err := downloader.SaveRawResponse([]byte(`[{"id":"a"}]`), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(downloader.responsesDir, "1701059381.json"), path)

	named, err := downloader.SaveRawResponse([]byte(`{}`), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc.json", filepath.Base(named))
}

func TestClipURLAndKey(t *testing.T) {
	t.Parallel()

	downloader := newTestDownloader(t, "https://cdn1.suno.ai", nil)
	downloader.cdnURL = "https://cdn1.suno.ai"

	assert.Equal(t, "https://cdn1.suno.ai/abc.mp3", downloader.ClipURL("abc"))
	assert.Equal(t, "a_b.mp3", AudioKey("a/b"))
}

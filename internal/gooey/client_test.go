package gooey_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/config"
	"github.com/book-expert/songgen/internal/gooey"
	"github.com/book-expert/songgen/internal/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-test"

func newTestClient(t *testing.T, serverURL string) *gooey.Client {
	t.Helper()

	log, err := logger.New(t.TempDir(), "gooey-test.log")
	require.NoError(t, err)

	cfg := config.GooeyConfig{BaseURL: serverURL, TimeoutSeconds: 5}

	return gooey.NewClientWithKey(cfg, testKey, log)
}

func TestLipsync_Sync(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/Lipsync/", r.URL.Path)
		assert.Equal(t, "bearer "+testKey, r.Header.Get("Authorization"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "data:image/png;base64,AA==", payload["input_face"])
		assert.Equal(t, "data:audio/wav;base64,AQ==", payload["input_audio"])

		_, _ = w.Write([]byte(`{"id":"run-1","output":{"output_video":"https://storage.example/out.mp4"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.Lipsync(context.Background(),
		gooey.LipsyncPayload("data:image/png;base64,AA==", "data:audio/wav;base64,AQ=="))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	video, err := result.OutputVideo()
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/out.mp4", video)
}

func TestLipsync_NonOK(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"detail":"out of credits"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Lipsync(context.Background(), gooey.LipsyncPayload("a", "b"))

	var statusErr *httpapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusPaymentRequired, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "out of credits")
}

func TestLipsync_AsyncPolling(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/Lipsync/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/v3/status/run-2")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"run_id":"run-2","status":"starting"}`))
	})
	mux.HandleFunc("GET /v3/status/run-2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bearer "+testKey, r.Header.Get("Authorization"))

		if polls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"status":"running"}`))

			return
		}

		_, _ = w.Write([]byte(`{"status":"completed","output":{"output_video":"https://storage.example/async.mp4"}}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.Lipsync(context.Background(), gooey.LipsyncPayload("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), polls.Load())

	video, err := result.OutputVideo()
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/async.mp4", video)
}

func TestLipsync_AsyncFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/Lipsync/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/status")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","detail":"no face detected"}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Lipsync(context.Background(), gooey.LipsyncPayload("a", "b"))
	require.ErrorIs(t, err, gooey.ErrJobFailed)
	assert.Contains(t, err.Error(), "no face detected")
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv(gooey.EnvAPIKey, "")

	_, err := gooey.NewClient(config.GooeyConfig{}, nil)
	require.ErrorIs(t, err, gooey.ErrMissingCredentials)
}

func TestResult_OutputVideoMissing(t *testing.T) {
	t.Parallel()

	result := &gooey.Result{Body: map[string]any{"output": map[string]any{}}}

	_, err := result.OutputVideo()
	require.ErrorIs(t, err, gooey.ErrNoOutput)
}

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/suno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySaver struct {
	saved []byte
}

func (m *memorySaver) SaveRawResponse(raw []byte, _ string) (string, error) {
	m.saved = raw

	return "tmp/suno_responses/1.json", nil
}

func newTestApp(t *testing.T, serverURL string) (*app, *bytes.Buffer, *memorySaver) {
	t.Helper()

	log, err := logger.New(t.TempDir(), "suno-client-test.log")
	require.NoError(t, err)

	out := &bytes.Buffer{}
	saver := &memorySaver{}

	return &app{
		client: suno.NewClient(serverURL, 5*time.Second),
		saver:  saver,
		policy: suno.PollPolicy{Interval: time.Millisecond, Attempts: 5},
		log:    log,
		out:    out,
	}, out, saver
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{"-action", "get", "-ids", "a, b,,c"})
	require.NoError(t, err)
	assert.Equal(t, actionGet, flags.action)
	assert.Equal(t, []string{"a", "b", "c"}, flags.ids)

	flags, err = parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, actionDemo, flags.action)
	assert.Empty(t, flags.ids)

	_, err = parseFlags([]string{"-no-such-flag"})
	require.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{name: "generate", flags: appFlags{action: actionGenerate, prompt: "a song"}},
		{name: "generate without prompt", flags: appFlags{action: actionGenerate}, wantErr: errPromptNeeded},
		{name: "demo without prompt", flags: appFlags{action: actionDemo, prompt: "  "}, wantErr: errPromptNeeded},
		{name: "instrumental custom", flags: appFlags{action: actionCustomGenerate, instrumental: true}},
		{name: "extend without ids", flags: appFlags{action: actionExtend}, wantErr: errIDsNeeded},
		{name: "clip", flags: appFlags{action: actionClip, ids: []string{"x"}}},
		{name: "quota", flags: appFlags{action: actionQuota}},
		{name: "unknown", flags: appFlags{action: "dance"}, wantErr: errUnknownAction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(tc.flags)
			if tc.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDemo(t *testing.T) {
	t.Parallel()

	const generated = `[{"id":"a","status":"submitted"},{"id":"b","status":"submitted"}]`

	var checks atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(generated))
	})
	mux.HandleFunc("GET /api/get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a,b", r.URL.Query().Get("ids"))

		if checks.Add(1) < 2 {
			_, _ = w.Write([]byte(`[{"id":"a","status":"queued"},{"id":"b","status":"queued"}]`))

			return
		}

		_, _ = w.Write([]byte(`[{"id":"a","status":"streaming","audio_url":"https://audiopipe/a"},` +
			`{"id":"b","status":"streaming","audio_url":"https://audiopipe/b"}]`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	a, out, saver := newTestApp(t, server.URL)

	err := a.execute(context.Background(), appFlags{action: actionDemo, prompt: "a song about rhinos"})
	require.NoError(t, err)

	assert.Equal(t, "ids: a,b\na ==> https://audiopipe/a\nb ==> https://audiopipe/b\n", out.String())
	assert.JSONEq(t, generated, string(saver.saved))
}

func TestDemo_Exhausted(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"a","status":"submitted"}]`))
	})
	mux.HandleFunc("GET /api/get", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"a","status":"queued"}]`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	a, out, _ := newTestApp(t, server.URL)

	err := a.execute(context.Background(), appFlags{action: actionDemo, prompt: "x"})
	require.ErrorIs(t, err, suno.ErrPollExhausted)
	assert.Equal(t, "ids: a\n", out.String())
}

func TestExecute_QuotaPrintsJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get_limit", r.URL.Path)
		_, _ = w.Write([]byte(`{"credits_left":50,"period":"day","monthly_limit":50,"monthly_usage":0}`))
	}))
	defer server.Close()

	a, out, _ := newTestApp(t, server.URL)

	require.NoError(t, a.execute(context.Background(), appFlags{action: actionQuota}))
	assert.JSONEq(t, `{"credits_left":50,"period":"day","monthly_limit":50,"monthly_usage":0}`, out.String())
}

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/songgen/internal/gooey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("rejected")

type fakeLipsyncer struct {
	payload map[string]any
	err     error
}

func (f *fakeLipsyncer) Lipsync(_ context.Context, payload map[string]any) (*gooey.Result, error) {
	f.payload = payload

	if f.err != nil {
		return nil, f.err
	}

	return &gooey.Result{
		StatusCode: 200,
		Body:       map[string]any{"output": map[string]any{"output_video": "https://storage.example/out.mp4"}},
	}, nil
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	face := filepath.Join(dir, "face.png")
	require.NoError(t, os.WriteFile(face, []byte{0x89, 'P', 'N', 'G'}, 0o600))

	flags, err := parseFlags([]string{"-payload", `{"face_padding_top":10}`, "-face", face})
	require.NoError(t, err)

	payload, err := buildPayload(flags)
	require.NoError(t, err)
	assert.InDelta(t, 10, payload["face_padding_top"], 0)
	assert.Equal(t, "data:image/png;base64,iVBORw==", payload["input_face"])
	assert.NotContains(t, payload, "input_audio")
}

func TestBuildPayload_FaceAndAudio(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	face := filepath.Join(dir, "face.png")
	audio := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(face, []byte{0x89, 'P', 'N', 'G'}, 0o600))
	require.NoError(t, os.WriteFile(audio, []byte("ID3"), 0o600))

	flags, err := parseFlags([]string{"-payload", `{"input_face":"https://old.example/face.png"}`, "-face", face, "-audio", audio})
	require.NoError(t, err)

	payload, err := buildPayload(flags)
	require.NoError(t, err)

	want := gooey.LipsyncPayload("data:image/png;base64,iVBORw==", "data:audio/mpeg;base64,SUQz")
	assert.Equal(t, want, payload)
}

func TestBuildPayload_Empty(t *testing.T) {
	t.Parallel()

	payload, err := buildPayload(appFlags{})
	require.NoError(t, err)
	assert.Empty(t, payload)

	_, err = buildPayload(appFlags{payload: "[1,2]"})
	require.Error(t, err)
}

func TestExecute(t *testing.T) {
	t.Parallel()

	fake := &fakeLipsyncer{}
	out := &bytes.Buffer{}

	require.NoError(t, execute(context.Background(), fake, map[string]any{"input_face": "x"}, out))
	assert.Equal(t,
		"200 {\"output\":{\"output_video\":\"https://storage.example/out.mp4\"}}\nOutput video: https://storage.example/out.mp4\n",
		out.String())
	assert.Equal(t, "x", fake.payload["input_face"])

	err := execute(context.Background(), &fakeLipsyncer{err: errRejected}, nil, out)
	require.ErrorIs(t, err, errRejected)
}

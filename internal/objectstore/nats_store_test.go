package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/songgen/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server with JetStream enabled.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newTestStore(t *testing.T, bucket string) (*objectstore.AudioStore, nats.JetStreamContext) {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket)
	require.NoError(t, err)

	return store, jetstreamContext
}

func TestAudioStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, "songs")
	ctx := context.Background()
	key := "0f1c4a35-8e16-4d2b-bb1e-0a3c7a6b8b10.mp3"
	audio := []byte("ID3\x04fake-mp3-frames")

	require.NoError(t, store.Upload(ctx, key, audio))

	downloaded, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, audio, downloaded)

	contentType, err := store.ContentType(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", contentType)
}

func TestAudioStore_ExistsAndDelete(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, "songs")
	ctx := context.Background()

	exists, err := store.Exists(ctx, "missing.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, "abc.mp3", []byte("x")))

	exists, err = store.Exists(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "abc.mp3"))
	require.NoError(t, store.Delete(ctx, "abc.mp3"), "deleting twice is a no-op")

	exists, err = store.Exists(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Download(ctx, "abc.mp3")
	require.Error(t, err)
}

func TestNew_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	store, jetstreamContext := newTestStore(t, "songs")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "kept.mp3", []byte("kept")))

	again, err := objectstore.New(jetstreamContext, "songs")
	require.NoError(t, err)
	assert.Equal(t, "songs", again.Bucket())

	data, err := again.Download(ctx, "kept.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data)
}

func TestNew_BindsBucketCreatedElsewhere(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	_, err = jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      "AI_SONGS",
		Description: "created by another service",
	})
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "AI_SONGS")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "shared.mp3", []byte("shared")))

	data, err := store.Download(ctx, "shared.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), data)
}

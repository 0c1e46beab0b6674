// Package objectstore keeps generated audio in a NATS JetStream object store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/book-expert/songgen/internal/datauri"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const headerContentType = "Content-Type"

// AudioStore implements core.ObjectStore on a JetStream object store bucket.
type AudioStore struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to bucketName, creating it first when it does not exist. A
// bucket created concurrently by another process is bound rather than
// reported as an error.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*AudioStore, error) {
	store, err := jetstreamContext.ObjectStore(bucketName)
	if err == nil {
		return &AudioStore{bucket: bucketName, store: store}, nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) && !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to bind to object store bucket '%s': %w", bucketName, err)
	}

	store, err = jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "Generated song audio.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) && !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &AudioStore{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (s *AudioStore) Bucket() string {
	return s.bucket
}

// Download reads the object stored under key.
func (s *AudioStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key. The object's Content-Type header is taken
// from the key's extension.
func (s *AudioStore) Upload(_ context.Context, key string, data []byte) error {
	headers := nats.Header{}
	headers.Set(headerContentType, datauri.MimeType(key))

	_, err := s.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: filepath.Base(key),
		Headers:     headers,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// Exists reports whether key is present.
func (s *AudioStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := s.store.GetInfo(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat object '%s' in bucket '%s': %w", key, s.bucket, err)
	}

	return true, nil
}

// ContentType returns the Content-Type header recorded for key.
func (s *AudioStore) ContentType(_ context.Context, key string) (string, error) {
	info, err := s.store.GetInfo(key)
	if err != nil {
		return "", fmt.Errorf("failed to stat object '%s' in bucket '%s': %w", key, s.bucket, err)
	}

	return info.Headers.Get(headerContentType), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *AudioStore) Delete(_ context.Context, key string) error {
	err := s.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete object '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

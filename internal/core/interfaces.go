// Package core defines the shared interfaces and records of the songgen
// clients and the song worker.
package core

import (
	"context"
	"time"

	"github.com/book-expert/songgen/internal/suno"
	"github.com/google/uuid"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// SongGenerator submits song jobs and reports their progress.
type SongGenerator interface {
	suno.StatusFetcher
	Generate(ctx context.Context, req suno.GenerateRequest) ([]suno.Clip, error)
	CustomGenerate(ctx context.Context, req suno.CustomGenerateRequest) ([]suno.Clip, error)
}

// AudioFetcher returns the finished audio of a clip.
type AudioFetcher interface {
	FetchClipAudio(ctx context.Context, id string) ([]byte, error)
}

// SongStore records generated songs.
type SongStore interface {
	Save(ctx context.Context, song Song) error
}

// Song is the ledger entry for a generated clip.
type Song struct {
	ID                   uuid.UUID
	Title                string
	Tags                 string
	Prompt               string
	Username             string
	AudioURL             string
	Lyric                string
	GPTDescriptionPrompt string
	CreatedAt            time.Time
	LastUpdated          time.Time
}

// SongFromClip builds a ledger entry for clip requested by username. Fields
// the proxy reports either flat or under metadata are taken from whichever
// is set.
func SongFromClip(clip suno.Clip, username string, now time.Time) (Song, error) {
	id, err := uuid.Parse(clip.ID)
	if err != nil {
		return Song{}, err
	}

	return Song{
		ID:                   id,
		Title:                clip.Title,
		Tags:                 firstNonEmpty(clip.Tags, clip.Metadata.Tags),
		Prompt:               firstNonEmpty(clip.Prompt, clip.Metadata.Prompt),
		Username:             username,
		AudioURL:             clip.AudioURL,
		Lyric:                clip.Lyric,
		GPTDescriptionPrompt: firstNonEmpty(clip.GPTDescriptionPrompt, clip.Metadata.GPTDescriptionPrompt),
		CreatedAt:            now,
		LastUpdated:          now,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// Package playlist records generated songs in Postgres.
package playlist

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/book-expert/songgen/internal/core"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
	"github.com/pressly/goose/v3"
)

const (
	driverName    = "postgres"
	migrationsDir = "migrations"
	defaultRecent = 20
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrSongNotFound is returned when no row matches the requested id.
var ErrSongNotFound = errors.New("song not found")

// PostgresStore implements core.SongStore on the ai_songs table.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStore(db), nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect(driverName)
	if err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	err = goose.UpContext(ctx, s.db, migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// Save inserts song, or refreshes the stored row when the id is known.
// created_at is kept from the first insert.
func (s *PostgresStore) Save(ctx context.Context, song core.Song) error {
	query := `
		INSERT INTO ai_songs (song_id, title, tags, prompt, username, audio_url, lyric,
			gpt_description_prompt, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (song_id) DO UPDATE SET
			title = EXCLUDED.title,
			tags = EXCLUDED.tags,
			prompt = EXCLUDED.prompt,
			username = EXCLUDED.username,
			audio_url = EXCLUDED.audio_url,
			lyric = EXCLUDED.lyric,
			gpt_description_prompt = EXCLUDED.gpt_description_prompt,
			last_updated = EXCLUDED.last_updated
	`

	_, err := s.db.ExecContext(ctx, query,
		song.ID, song.Title, song.Tags, song.Prompt, song.Username, song.AudioURL, song.Lyric,
		song.GPTDescriptionPrompt, song.LastUpdated, song.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save song %s: %w", song.ID, err)
	}

	return nil
}

// Get returns the song stored under id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*core.Song, error) {
	query := `
		SELECT song_id, title, tags, prompt, username, audio_url, lyric,
			gpt_description_prompt, last_updated, created_at
		FROM ai_songs WHERE song_id = $1
	`

	song, err := scanSong(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSongNotFound, id)
		}

		return nil, fmt.Errorf("failed to get song %s: %w", id, err)
	}

	return song, nil
}

// Recent returns up to limit songs, newest first. A non-positive limit
// uses the default page size.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*core.Song, error) {
	if limit <= 0 {
		limit = defaultRecent
	}

	query := `
		SELECT song_id, title, tags, prompt, username, audio_url, lyric,
			gpt_description_prompt, last_updated, created_at
		FROM ai_songs ORDER BY created_at DESC LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []*core.Song

	for rows.Next() {
		song, scanErr := scanSong(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan song: %w", scanErr)
		}

		songs = append(songs, song)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate songs: %w", err)
	}

	return songs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (*core.Song, error) {
	song := &core.Song{}

	err := row.Scan(
		&song.ID, &song.Title, &song.Tags, &song.Prompt, &song.Username, &song.AudioURL, &song.Lyric,
		&song.GPTDescriptionPrompt, &song.LastUpdated, &song.CreatedAt)
	if err != nil {
		return nil, err
	}

	return song, nil
}

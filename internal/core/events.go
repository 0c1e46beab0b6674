package core

import (
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
)

// SongRequestedEvent asks the worker to generate a song. Tags or Title
// switch the request to custom generation with Prompt as lyrics.
type SongRequestedEvent struct {
	Header           events.EventHeader `json:"header"`
	Prompt           string             `json:"prompt"`
	Tags             string             `json:"tags,omitempty"`
	Title            string             `json:"title,omitempty"`
	MakeInstrumental bool               `json:"make_instrumental"`
	Username         string             `json:"username"`
}

// Custom reports whether the request carries lyrics metadata.
func (e SongRequestedEvent) Custom() bool {
	return e.Tags != "" || e.Title != ""
}

// ClipReadyEvent is the worker's reply. Error is set when the request could
// not be fulfilled.
type ClipReadyEvent struct {
	Header   events.EventHeader `json:"header"`
	ClipID   string             `json:"clip_id,omitempty"`
	ClipIDs  []string           `json:"clip_ids,omitempty"`
	AudioKey string             `json:"audio_key,omitempty"`
	AudioURL string             `json:"audio_url,omitempty"`
	Title    string             `json:"title,omitempty"`
	Username string             `json:"username,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// NewEventHeader starts a new workflow.
func NewEventHeader(userID string) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     userID,
		TenantID:   "",
	}
}

// ReplyHeader keeps the workflow of parent and stamps a fresh event id.
func ReplyHeader(parent events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: parent.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     parent.UserID,
		TenantID:   parent.TenantID,
	}
}

// Package suno is a client for a self-hosted song-generation proxy. Each
// method maps to one proxy endpoint and returns the upstream response as
// decoded clips.
package suno

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/songgen/internal/httpapi"
)

// Proxy endpoints.
const (
	apiGenerate       = "/api/generate"
	apiCustomGenerate = "/api/custom_generate"
	apiExtendAudio    = "/api/extend_audio"
	apiGet            = "/api/get"
	apiGetLimit       = "/api/get_limit"
	apiClip           = "/api/clip"
	apiConcat         = "/api/concat"
)

const providerName = "suno"

// Static errors.
var (
	ErrEmptyPrompt  = errors.New("prompt cannot be empty")
	ErrNoIDs        = errors.New("at least one clip id is required")
	ErrEmptyAudioID = errors.New("audio id cannot be empty")
)

// Client talks to the proxy at a single base URL.
type Client struct {
	api *httpapi.Client
}

// NewClient creates a proxy client. The baseURL should include the protocol
// and port (e.g., "http://localhost:3000").
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		api: httpapi.New(baseURL, timeout, httpapi.WithProvider(providerName)),
	}
}

// Generate submits a description prompt and returns the clips the proxy
// created for it, usually two.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) ([]Clip, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	return c.postClips(ctx, apiGenerate, req)
}

// CustomGenerate submits lyrics with explicit tags and title.
func (c *Client) CustomGenerate(ctx context.Context, req CustomGenerateRequest) ([]Clip, error) {
	if strings.TrimSpace(req.Prompt) == "" && !req.MakeInstrumental {
		return nil, ErrEmptyPrompt
	}

	return c.postClips(ctx, apiCustomGenerate, req)
}

// ExtendAudio continues an existing clip.
func (c *Client) ExtendAudio(ctx context.Context, req ExtendRequest) ([]Clip, error) {
	if req.AudioID == "" {
		return nil, ErrEmptyAudioID
	}

	return c.postClips(ctx, apiExtendAudio, req)
}

// GetAudioInformation fetches the current state of one or more clips.
func (c *Client) GetAudioInformation(ctx context.Context, ids ...string) ([]Clip, error) {
	if len(ids) == 0 {
		return nil, ErrNoIDs
	}

	var clips []Clip

	query := url.Values{"ids": {strings.Join(ids, ",")}}

	err := c.api.GetJSON(ctx, apiGet, query, &clips)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", apiGet, err)
	}

	return clips, nil
}

// GetQuota returns the account's remaining credits.
func (c *Client) GetQuota(ctx context.Context) (*Quota, error) {
	var quota Quota

	err := c.api.GetJSON(ctx, apiGetLimit, nil, &quota)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", apiGetLimit, err)
	}

	return &quota, nil
}

// GetClip returns the proxy's clip document verbatim.
func (c *Client) GetClip(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrNoIDs
	}

	var raw json.RawMessage

	err := c.api.GetJSON(ctx, apiClip, url.Values{"id": {id}}, &raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", apiClip, err)
	}

	return raw, nil
}

// Concat stitches an extended clip and its ancestors into a whole song.
func (c *Client) Concat(ctx context.Context, clipID string) (*Clip, error) {
	if clipID == "" {
		return nil, ErrEmptyAudioID
	}

	var clip Clip

	err := c.api.PostJSON(ctx, apiConcat, ConcatRequest{ClipID: clipID}, &clip)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", apiConcat, err)
	}

	return &clip, nil
}

// GenerateRaw behaves like Generate but returns the undecoded response so
// it can be archived as-is.
func (c *Client) GenerateRaw(ctx context.Context, req GenerateRequest) (json.RawMessage, []Clip, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, nil, ErrEmptyPrompt
	}

	var raw json.RawMessage

	err := c.api.PostJSON(ctx, apiGenerate, req, &raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", apiGenerate, err)
	}

	var clips []Clip

	err = json.Unmarshal(raw, &clips)
	if err != nil {
		return raw, nil, fmt.Errorf("%s: failed to decode clips: %w", apiGenerate, err)
	}

	return raw, clips, nil
}

func (c *Client) postClips(ctx context.Context, path string, body any) ([]Clip, error) {
	var clips []Clip

	err := c.api.PostJSON(ctx, path, body, &clips)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return clips, nil
}

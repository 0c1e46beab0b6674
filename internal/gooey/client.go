// Package gooey calls the Gooey.AI lipsync workflow.
package gooey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/config"
	"github.com/book-expert/songgen/internal/httpapi"
	"github.com/book-expert/songgen/internal/metrics"
	"github.com/sethvargo/go-retry"
)

// EnvAPIKey names the environment variable holding the Gooey.AI key.
const EnvAPIKey = "GOOEY_API_KEY"

const (
	providerName    = "gooey"
	authScheme      = "bearer "
	lipsyncPath     = "/v2/Lipsync/"
	headerLocation  = "Location"
	minPollInterval = time.Millisecond
)

// Async run states.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Static errors.
var (
	ErrMissingCredentials = errors.New(EnvAPIKey + " environment variable not set")
	ErrJobFailed          = errors.New("lipsync run failed")
	ErrNoOutput           = errors.New("result has no output video")

	errStillRunning = errors.New("run still in progress")
)

// Client posts lipsync jobs.
type Client struct {
	api          *httpapi.Client
	pollInterval time.Duration
	log          *logger.Logger
}

// Result is the decoded response of a finished run.
type Result struct {
	StatusCode int
	Body       map[string]any
}

// OutputVideo returns output.output_video from the result body.
func (r *Result) OutputVideo() (string, error) {
	output, ok := r.Body["output"].(map[string]any)
	if !ok {
		return "", ErrNoOutput
	}

	video, ok := output["output_video"].(string)
	if !ok || video == "" {
		return "", ErrNoOutput
	}

	return video, nil
}

// LipsyncPayload builds the request body for a face and an audio track.
// Either may be a URL or a data URI.
func LipsyncPayload(faceURL, audioURL string) map[string]any {
	return map[string]any{
		"input_face":  faceURL,
		"input_audio": audioURL,
	}
}

// NewClient creates a client using the key from GOOEY_API_KEY.
func NewClient(cfg config.GooeyConfig, log *logger.Logger) (*Client, error) {
	key := os.Getenv(EnvAPIKey)
	if key == "" {
		return nil, ErrMissingCredentials
	}

	return NewClientWithKey(cfg, key, log), nil
}

// NewClientWithKey creates a client with an explicit key.
func NewClientWithKey(cfg config.GooeyConfig, key string, log *logger.Logger) *Client {
	return &Client{
		api: httpapi.New(cfg.BaseURL, cfg.Timeout(),
			httpapi.WithProvider(providerName),
			httpapi.WithHeader(httpapi.HeaderAuthorization, authScheme+key),
		),
		pollInterval: max(cfg.PollInterval(), minPollInterval),
		log:          log,
	}
}

// Lipsync submits payload and blocks until the run finishes. A non-2xx
// answer is returned as *httpapi.StatusError carrying the response body.
func (c *Client) Lipsync(ctx context.Context, payload map[string]any) (*Result, error) {
	c.log.Info("Submitting lipsync job to %s", c.api.BaseURL()+lipsyncPath)

	resp, err := c.api.Do(ctx, http.MethodPost, c.api.URL(lipsyncPath, nil), payload)
	if err != nil {
		return nil, fmt.Errorf("lipsync request failed: %w", err)
	}

	result, err := readResult(resp)
	if err != nil {
		return nil, err
	}

	location := resp.Header.Get(headerLocation)
	if result.StatusCode != http.StatusAccepted || location == "" {
		return result, nil
	}

	c.log.Info("Lipsync accepted, polling %s", location)

	return c.wait(ctx, location)
}

func (c *Client) wait(ctx context.Context, statusURL string) (*Result, error) {
	var final *Result

	err := retry.Do(ctx, retry.NewConstant(c.pollInterval), func(ctx context.Context) error {
		metrics.PollAttemptsTotal.WithLabelValues(providerName).Inc()

		resp, err := c.api.Do(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return err
		}

		result, err := readResult(resp)
		if err != nil {
			return err
		}

		status, _ := result.Body["status"].(string)

		switch status {
		case StatusCompleted:
			final = result

			return nil
		case StatusFailed:
			detail, _ := result.Body["detail"].(string)

			return fmt.Errorf("%w: %s", ErrJobFailed, detail)
		default:
			return retry.RetryableError(fmt.Errorf("%w: %s", errStillRunning, status))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for lipsync: %w", err)
	}

	c.log.Info("Lipsync run completed")

	return final, nil
}

func readResult(resp *http.Response) (*Result, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read lipsync response: %w", err)
	}

	result := &Result{StatusCode: resp.StatusCode, Body: map[string]any{}}

	if len(data) > 0 {
		err = json.Unmarshal(data, &result.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode lipsync response: %w", err)
		}
	}

	return result, nil
}

// Package fal submits image and video generation jobs to the fal.ai queue
// and waits for their results.
package fal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/config"
	"github.com/book-expert/songgen/internal/httpapi"
	"github.com/book-expert/songgen/internal/metrics"
	"github.com/sethvargo/go-retry"
)

// EnvAPIKey names the environment variable holding the fal.ai key.
const EnvAPIKey = "FAL_KEY"

const (
	providerName    = "fal"
	authScheme      = "Key "
	minPollInterval = time.Millisecond
)

// Queue states.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// Models used by the command line tools.
const (
	ModelLora      = "fal-ai/lora"
	ModelSadTalker = "fal-ai/sadtalker"
)

// Static errors.
var (
	ErrMissingCredentials = errors.New(EnvAPIKey + " environment variable not set")
	ErrEmptyModel         = errors.New("model cannot be empty")
	ErrJobFailed          = errors.New("fal job failed")

	errStillRunning = errors.New("job still running")
)

// Client talks to the fal.ai queue and synchronous run endpoints.
type Client struct {
	queue        *httpapi.Client
	run          *httpapi.Client
	pollInterval time.Duration
	log          *logger.Logger
}

// NewClient creates a client using the key from FAL_KEY.
func NewClient(cfg config.FalConfig, log *logger.Logger) (*Client, error) {
	key := os.Getenv(EnvAPIKey)
	if key == "" {
		return nil, ErrMissingCredentials
	}

	return NewClientWithKey(cfg, key, log), nil
}

// NewClientWithKey creates a client with an explicit key.
func NewClientWithKey(cfg config.FalConfig, key string, log *logger.Logger) *Client {
	opts := []httpapi.Option{
		httpapi.WithProvider(providerName),
		httpapi.WithHeader(httpapi.HeaderAuthorization, authScheme+key),
	}

	return &Client{
		queue:        httpapi.New(cfg.QueueURL, cfg.Timeout(), opts...),
		run:          httpapi.New(cfg.RunURL, cfg.Timeout(), opts...),
		pollInterval: max(cfg.PollInterval(), minPollInterval),
		log:          log,
	}
}

// Handle refers to a queued job.
type Handle struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
	CancelURL   string `json:"cancel_url"`

	model  string
	client *Client
}

// Status is the queue's view of a job.
type Status struct {
	Status        string          `json:"status"`
	QueuePosition int             `json:"queue_position"`
	ResponseURL   string          `json:"response_url,omitempty"`
	Logs          json.RawMessage `json:"logs,omitempty"`
}

// Submit enqueues a job for model with the given arguments.
func (c *Client) Submit(ctx context.Context, model string, args map[string]any) (*Handle, error) {
	if model == "" {
		return nil, ErrEmptyModel
	}

	var handle Handle

	err := c.queue.PostJSON(ctx, "/"+model, args, &handle)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", model, err)
	}

	handle.model = model
	handle.client = c
	handle.fillURLs(c.queue.BaseURL())

	c.log.Info("Submitted %s as request %s", model, handle.RequestID)

	return &handle, nil
}

// Run calls model synchronously and returns its result.
func (c *Client) Run(ctx context.Context, model string, args map[string]any) (json.RawMessage, error) {
	if model == "" {
		return nil, ErrEmptyModel
	}

	c.log.Info("Running model: %s", model)

	var result json.RawMessage

	err := c.run.PostJSON(ctx, "/"+model, args, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to run model '%s': %w", model, err)
	}

	return result, nil
}

// Status fetches the job's current queue state.
func (h *Handle) Status(ctx context.Context) (*Status, error) {
	var status Status

	err := h.client.queue.DoJSON(ctx, http.MethodGet, h.StatusURL, nil, &status)
	if err != nil {
		return nil, fmt.Errorf("failed to get status of %s: %w", h.RequestID, err)
	}

	return &status, nil
}

// Result fetches the output of a completed job.
func (h *Handle) Result(ctx context.Context) (json.RawMessage, error) {
	var result json.RawMessage

	err := h.client.queue.DoJSON(ctx, http.MethodGet, h.ResponseURL, nil, &result)
	if err != nil {
		var statusErr *httpapi.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %s: %w", ErrJobFailed, h.RequestID, err)
		}

		return nil, fmt.Errorf("failed to get result of %s: %w", h.RequestID, err)
	}

	return result, nil
}

// Get blocks until the job completes and returns its result. The wait is
// bounded only by ctx.
func (h *Handle) Get(ctx context.Context) (json.RawMessage, error) {
	backoff := retry.NewConstant(h.client.pollInterval)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		metrics.PollAttemptsTotal.WithLabelValues(providerName).Inc()

		status, err := h.Status(ctx)
		if err != nil {
			if transient(ctx, err) {
				h.client.log.Warn("Status poll for %s failed, retrying: %v", h.RequestID, err)

				return retry.RetryableError(err)
			}

			return err
		}

		if status.Status != StatusCompleted {
			return retry.RetryableError(fmt.Errorf("%w: %s", errStillRunning, status.Status))
		}

		if status.ResponseURL != "" {
			h.ResponseURL = status.ResponseURL
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", h.RequestID, err)
	}

	h.client.log.Info("Request %s for %s completed", h.RequestID, h.model)

	return h.Result(ctx)
}

// transient reports whether a failed status poll is worth repeating: a 5xx
// from the queue, or a transport error while ctx is still live.
func transient(ctx context.Context, err error) bool {
	var statusErr *httpapi.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}

	var urlErr *url.Error

	return errors.As(err, &urlErr) && ctx.Err() == nil
}

// Cancel asks the queue to drop the job.
func (h *Handle) Cancel(ctx context.Context) error {
	err := h.client.queue.DoJSON(ctx, http.MethodPut, h.CancelURL, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel %s: %w", h.RequestID, err)
	}

	return nil
}

// fillURLs derives queue URLs the submit response left out. The queue keys
// requests by app id, which is the first two path segments of the model.
func (h *Handle) fillURLs(queueURL string) {
	base := queueURL + "/" + appID(h.model) + "/requests/" + h.RequestID

	if h.StatusURL == "" {
		h.StatusURL = base + "/status"
	}

	if h.ResponseURL == "" {
		h.ResponseURL = base
	}

	if h.CancelURL == "" {
		h.CancelURL = base + "/cancel"
	}
}

func appID(model string) string {
	parts := strings.SplitN(model, "/", 3)
	if len(parts) < 2 {
		return model
	}

	return parts[0] + "/" + parts[1]
}

package suno

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/metrics"
	"github.com/sethvargo/go-retry"
)

const minPollInterval = time.Millisecond

// Static errors.
var (
	ErrPollExhausted = errors.New("clips were not ready before the attempt limit")
	ErrClipFailed    = errors.New("clip generation failed")

	errNotReady = errors.New("clip not ready")
)

// StatusFetcher returns the current state of a set of clips.
type StatusFetcher interface {
	GetAudioInformation(ctx context.Context, ids ...string) ([]Clip, error)
}

// PollPolicy is a fixed-interval, fixed-count wait. Attempts counts status
// fetches, so Attempts of 1 means a single check with no sleep.
type PollPolicy struct {
	Interval time.Duration
	Attempts int
}

func (p PollPolicy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	interval := p.Interval
	if interval < minPollInterval {
		interval = minPollInterval
	}

	return retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval))
}

// WaitForStreaming re-fetches ids until the first clip is streaming or
// complete. A clip in the error state stops the wait with ErrClipFailed; an
// exhausted attempt budget returns ErrPollExhausted. Fetch errors are
// treated as transient and consume an attempt.
func WaitForStreaming(
	ctx context.Context,
	fetcher StatusFetcher,
	ids []string,
	policy PollPolicy,
	log *logger.Logger,
) ([]Clip, error) {
	if len(ids) == 0 {
		return nil, ErrNoIDs
	}

	var (
		ready   []Clip
		attempt int
	)

	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		metrics.PollAttemptsTotal.WithLabelValues(providerName).Inc()

		clips, fetchErr := fetcher.GetAudioInformation(ctx, ids...)
		if fetchErr != nil {
			log.Warn("Status check %d for %v failed: %v", attempt, ids, fetchErr)

			return retry.RetryableError(fetchErr)
		}

		if len(clips) == 0 {
			return retry.RetryableError(fmt.Errorf("%w: no clips returned", errNotReady))
		}

		first := clips[0]
		if first.Failed() {
			return fmt.Errorf("%w: %s: %s", ErrClipFailed, first.ID, first.Metadata.ErrorMessage)
		}

		if !first.Ready() {
			return retry.RetryableError(fmt.Errorf("%w: %s is %s", errNotReady, first.ID, first.Status))
		}

		ready = clips

		return nil
	})
	if err == nil {
		log.Info("Clips %v ready after %d status checks", ids, attempt)

		return ready, nil
	}

	if errors.Is(err, ErrClipFailed) {
		return nil, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("waiting for clips %v: %w", ids, ctxErr)
	}

	metrics.PollExhaustedTotal.WithLabelValues(providerName).Inc()

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrPollExhausted, attempt, err)
}

// Package worker provides a NATS worker that turns song requests into
// downloaded clips.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/core"
	"github.com/book-expert/songgen/internal/download"
	"github.com/book-expert/songgen/internal/metrics"
	"github.com/book-expert/songgen/internal/suno"
	"github.com/nats-io/nats.go"
)

const defaultHandleTimeout = 15 * time.Minute

// Request outcomes recorded in metrics.SongRequestsTotal.
const (
	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
)

var (
	// ErrSubjectEmpty indicates that no request subject was configured.
	ErrSubjectEmpty = errors.New("song request subject cannot be empty")
	// ErrNoClips indicates that the proxy accepted a request but returned no clips.
	ErrNoClips = errors.New("generation returned no clips")
	// ErrShuttingDown is the reply to requests delivered after Run began stopping.
	ErrShuttingDown = errors.New("song worker is shutting down")
)

// Settings holds the worker's subjects and wait policy.
type Settings struct {
	Subject          string
	ClipReadySubject string
	Poll             suno.PollPolicy
	HandleTimeout    time.Duration
}

// NatsWorker listens for song requests on a NATS subject and replies with
// the ready clip.
type NatsWorker struct {
	natsConnection *nats.Conn
	settings       Settings
	generator      core.SongGenerator
	audio          core.AudioFetcher
	store          core.ObjectStore
	songs          core.SongStore
	normalizer     *suno.PromptNormalizer
	log            *logger.Logger
	now            func() time.Time

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewNatsWorker creates a new instance of a NATS worker. songs may be nil
// when no ledger is configured.
func NewNatsWorker(
	natsConnection *nats.Conn,
	settings Settings,
	generator core.SongGenerator,
	audio core.AudioFetcher,
	store core.ObjectStore,
	songs core.SongStore,
	log *logger.Logger,
) (*NatsWorker, error) {
	if settings.Subject == "" {
		return nil, ErrSubjectEmpty
	}

	if settings.HandleTimeout <= 0 {
		settings.HandleTimeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		settings:       settings,
		generator:      generator,
		audio:          audio,
		store:          store,
		songs:          songs,
		normalizer:     suno.NewPromptNormalizer(),
		log:            log,
		now:            time.Now,
	}, nil
}

// Run subscribes and handles requests one at a time until ctx is done.
// Cancelling ctx also cancels the requests in flight; Run answers each of
// them with the error and returns only after their handlers finish.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.settings.Subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.settings.Subject, err)
	}

	w.log.System("Listening for song requests on subject: %s", w.settings.Subject)

	<-ctx.Done()

	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()

	drainErr := sub.Drain()

	w.inflight.Wait()
	w.log.System("Stopped listening on subject: %s", w.settings.Subject)

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// track registers a handler with Run. It reports false once Run is stopping.
func (w *NatsWorker) track() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closing {
		return false
	}

	w.inflight.Add(1)

	return true
}

func (w *NatsWorker) handleMessage(runCtx context.Context, msg *nats.Msg) {
	if !w.track() {
		w.log.Warn("Rejecting song request on %s: %v", msg.Subject, ErrShuttingDown)
		w.reply(msg, &core.ClipReadyEvent{Header: core.NewEventHeader(""), Error: ErrShuttingDown.Error()})

		return
	}
	defer w.inflight.Done()

	ctx, cancel := context.WithTimeout(runCtx, w.settings.HandleTimeout)
	defer cancel()

	started := w.now()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse song request: %v", err)
		metrics.SongRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		w.reply(msg, &core.ClipReadyEvent{Header: core.NewEventHeader(""), Error: err.Error()})

		return
	}

	reply, err := w.processSongRequest(ctx, event)
	if err != nil {
		outcome := outcomeFailed
		if errors.Is(err, suno.ErrEmptyPrompt) {
			outcome = outcomeInvalid
		}

		w.log.Error("Failed to process song request for workflow %s: %v", event.Header.WorkflowID, err)
		metrics.SongRequestsTotal.WithLabelValues(outcome).Inc()

		reply.Error = err.Error()
		w.reply(msg, reply)

		return
	}

	metrics.SongRequestsTotal.WithLabelValues(outcomeSuccess).Inc()
	metrics.SongRequestDuration.Observe(w.now().Sub(started).Seconds())

	w.reply(msg, reply)
	w.publishClipReady(reply)
}

// processSongRequest generates, waits for and stores one song. The returned
// event is never nil so failures can still be answered.
func (w *NatsWorker) processSongRequest(
	ctx context.Context,
	event *core.SongRequestedEvent,
) (*core.ClipReadyEvent, error) {
	reply := &core.ClipReadyEvent{
		Header:   core.ReplyHeader(event.Header),
		Title:    event.Title,
		Username: event.Username,
	}

	clips, err := w.generate(ctx, event)
	if err != nil {
		return reply, err
	}

	ids := suno.IDs(clips)
	reply.ClipIDs = ids

	w.log.Info("Workflow %s submitted clips: %v", event.Header.WorkflowID, ids)

	clips, err = suno.WaitForStreaming(ctx, w.generator, ids, w.settings.Poll, w.log)
	if err != nil {
		return reply, err
	}

	first := clips[0]
	reply.ClipID = first.ID
	reply.AudioURL = first.AudioURL

	if first.Title != "" {
		reply.Title = first.Title
	}

	audioData, err := w.audio.FetchClipAudio(ctx, first.ID)
	if err != nil {
		return reply, fmt.Errorf("failed to fetch audio for clip '%s': %w", first.ID, err)
	}

	audioKey := download.AudioKey(first.ID)

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return reply, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	reply.AudioKey = audioKey

	w.recordSong(ctx, first, event.Username)

	return reply, nil
}

func (w *NatsWorker) generate(ctx context.Context, event *core.SongRequestedEvent) ([]suno.Clip, error) {
	var (
		clips []suno.Clip
		err   error
	)

	if strings.TrimSpace(event.Prompt) == "" && !event.MakeInstrumental {
		return nil, suno.ErrEmptyPrompt
	}

	if event.Custom() {
		clips, err = w.generator.CustomGenerate(ctx, suno.CustomGenerateRequest{
			Prompt:           w.normalizer.Lyrics(event.Prompt, suno.MaxLyricsLength),
			Tags:             event.Tags,
			Title:            event.Title,
			MakeInstrumental: event.MakeInstrumental,
			WaitAudio:        false,
		})
	} else {
		clips, err = w.generator.Generate(ctx, suno.GenerateRequest{
			Prompt:           w.normalizer.Description(event.Prompt, suno.MaxDescriptionLength),
			MakeInstrumental: event.MakeInstrumental,
			WaitAudio:        false,
		})
	}

	if err != nil {
		return nil, err
	}

	if len(clips) == 0 {
		return nil, ErrNoClips
	}

	return clips, nil
}

// recordSong writes the ledger entry. Ledger failures do not fail the request.
func (w *NatsWorker) recordSong(ctx context.Context, clip suno.Clip, username string) {
	if w.songs == nil {
		return
	}

	song, err := core.SongFromClip(clip, username, w.now())
	if err != nil {
		w.log.Warn("Clip %s has no usable id, skipping ledger: %v", clip.ID, err)

		return
	}

	err = w.songs.Save(ctx, song)
	if err != nil {
		w.log.Warn("Failed to record song %s: %v", clip.ID, err)
	}
}

// reply answers a request when the sender asked for one.
func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *core.ClipReadyEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", replyEvent.Header.WorkflowID, err)
	}
}

func (w *NatsWorker) publishClipReady(event *core.ClipReadyEvent) {
	if w.settings.ClipReadySubject == "" {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		w.log.Error("Failed to marshal clip ready event: %v", err)

		return
	}

	err = w.natsConnection.Publish(w.settings.ClipReadySubject, data)
	if err != nil {
		w.log.Error("Failed to publish clip ready event to %s: %v", w.settings.ClipReadySubject, err)
	}
}

func parseEvent(msg *nats.Msg) (*core.SongRequestedEvent, error) {
	var event core.SongRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

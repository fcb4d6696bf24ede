package supervisor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aite550659-max/agent-trust-protocol/internal/config"
	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/metrics"
	"github.com/aite550659-max/agent-trust-protocol/internal/mirror"
	"github.com/aite550659-max/agent-trust-protocol/internal/parser"
)

// Supervisor runs the two-phase ingestion for a single topic: historical
// catch-up over the mirror REST API, then a live push subscription, with
// exponential-backoff reconnection on any failure. Processing inside a
// supervisor is strictly sequential, which is what preserves per-topic
// ordering without any locking beyond the database transaction.
type Supervisor struct {
	topicID    string
	client     MirrorClient
	subscriber Subscriber
	store      Store
	cfg        config.IngestionConfig
	log        *logger.Logger

	mu       sync.Mutex
	snapshot StatusSnapshot

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a supervisor for the topic. A nil subscriber keeps the
// supervisor in REST polling: repeated backfill passes paced by the poll
// interval, never entering the streaming state.
func New(
	topicID string,
	client MirrorClient,
	subscriber Subscriber,
	store Store,
	cfg config.IngestionConfig,
	log *logger.Logger,
) *Supervisor {
	return &Supervisor{
		topicID:    topicID,
		client:     client,
		subscriber: subscriber,
		store:      store,
		cfg:        cfg,
		log:        &logger.Logger{SugaredLogger: log.WithComponent("topic-supervisor").With("topic", topicID)},
		snapshot:   StatusSnapshot{Status: StatusIdle},
		done:       make(chan struct{}),
	}
}

// TopicID returns the topic this supervisor owns.
func (s *Supervisor) TopicID() string {
	return s.topicID
}

// Start launches the ingestion loop. Subsequent calls are no-ops.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.run(runCtx)
	})
}

// Stop cancels the ingestion loop and waits for it to quiesce. A message
// mid-projection finishes its transaction first. Idempotent.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	if s.cancel != nil {
		<-s.done
	}
}

// Status returns a point-in-time snapshot of the supervisor state.
func (s *Supervisor) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer s.setStatus(StatusIdle)

	attempts := 0

	for {
		s.setStatus(StatusBackfilling)

		err := s.backfill(ctx)
		if err == nil {
			// A successful backfill closes any gap and resets the
			// reconnect counter.
			attempts = 0
			s.clearError()

			if s.subscriber == nil {
				// REST polling: stay in backfilling, paced by the
				// configured poll interval.
				if !s.sleep(ctx, s.cfg.PollInterval.Duration) {
					return
				}
				continue
			}

			s.setStatus(StatusStreaming)
			err = s.stream(ctx)
		}

		if ctx.Err() != nil {
			return
		}

		attempts++
		s.recordFailure(err, attempts)
		metrics.ReconnectsInc(s.topicID)

		delay := backoffDelay(attempts, s.cfg.InitialBackoff.Duration, s.cfg.MaxBackoff.Duration)
		s.log.Warnw("ingestion failed, scheduling reconnect",
			"error", err,
			"attempts", attempts,
			"delay", delay,
		)

		s.setStatus(StatusReconnecting)
		if !s.sleep(ctx, delay) {
			return
		}
	}
}

// backfill drains the mirror history from the current cursor, following
// continuation links until exhausted. Any failure aborts the whole pass.
func (s *Supervisor) backfill(ctx context.Context) error {
	cursor, _, err := s.store.Cursor(ctx, s.topicID)
	if err != nil {
		return err
	}

	page, err := s.client.FetchMessages(ctx, s.topicID, cursor)
	if err != nil {
		return err
	}

	for {
		for i := range page.Messages {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := s.process(ctx, page.Messages[i]); err != nil {
				return err
			}
		}

		if !page.HasNext() {
			return nil
		}

		if !s.sleep(ctx, s.cfg.PageDelay.Duration) {
			return ctx.Err()
		}

		page, err = s.client.FetchNext(ctx, page.NextURL)
		if err != nil {
			return err
		}
	}
}

// stream subscribes from the current cursor and blocks until the
// subscription fails, a projection fails, or the context is cancelled.
func (s *Supervisor) stream(ctx context.Context) error {
	cursor, _, err := s.store.Cursor(ctx, s.topicID)
	if err != nil {
		return err
	}

	// Buffered so the reader goroutine never blocks reporting a failure
	// nobody is waiting for yet.
	errCh := make(chan error, 1)
	reportErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	// Once a frame fails to project, later frames are dropped so the cursor
	// cannot move past the failed message; the reconnect replays it.
	failed := false
	sub, err := s.subscriber.Subscribe(ctx, s.topicID, cursor,
		func(msg mirror.Message) {
			if failed {
				return
			}
			// Processing synchronously inside the callback propagates
			// backpressure to the stream.
			if err := s.process(ctx, msg); err != nil {
				failed = true
				reportErr(err)
			}
		},
		reportErr,
	)
	if err != nil {
		return err
	}
	defer sub.Stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) process(ctx context.Context, msg mirror.Message) error {
	parsed := parser.Parse(msg.Base64Contents)

	// Detached from cancellation so a Stop arriving mid-projection lets the
	// transaction commit instead of rolling it back.
	if err := s.store.Apply(context.WithoutCancel(ctx), msg, parsed); err != nil {
		metrics.ProjectionErrorsInc(s.topicID)
		return fmt.Errorf("failed to materialize message %d on topic %s: %w",
			msg.SequenceNumber, s.topicID, err)
	}

	metrics.MessagesIngestedInc(s.topicID, parsed.Kind)
	metrics.LastSequenceSet(s.topicID, msg.SequenceNumber)
	if parsed.Kind == "" {
		metrics.ParseFailuresInc(s.topicID)
	}

	return nil
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Status = status
}

func (s *Supervisor) recordFailure(err error, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.ReconnectAttempts = attempts
	if err != nil {
		s.snapshot.LastErrorMessage = err.Error()
	}
}

func (s *Supervisor) clearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.ReconnectAttempts = 0
	s.snapshot.LastErrorMessage = ""
}

// sleep waits for d or until the context is cancelled; reports false on
// cancellation.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffDelay computes min(max, initial * 2^(attempts-1)).
func backoffDelay(attempts int, initial, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	backoff := float64(initial) * math.Pow(2, float64(attempts-1))
	if backoff > float64(max) {
		return max
	}

	return time.Duration(backoff)
}

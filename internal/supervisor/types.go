package supervisor

import (
	"context"

	"github.com/aite550659-max/agent-trust-protocol/internal/mirror"
	"github.com/aite550659-max/agent-trust-protocol/internal/parser"
	"github.com/aite550659-max/agent-trust-protocol/internal/stream"
)

// Status is the supervisor state machine position.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusBackfilling  Status = "backfilling"
	StatusStreaming    Status = "streaming"
	StatusReconnecting Status = "reconnecting"
)

// StatusSnapshot is the observable state of one topic supervisor.
type StatusSnapshot struct {
	Status            Status `json:"status"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// MirrorClient is the historical-fetch seam. Implemented by mirror.Client.
type MirrorClient interface {
	FetchMessages(ctx context.Context, topicID, cursor string) (*mirror.Page, error)
	FetchNext(ctx context.Context, nextURL string) (*mirror.Page, error)
}

// Subscription is a live stream that can be torn down.
type Subscription interface {
	Stop()
}

// Subscriber is the live-stream seam. Implemented via NewStreamSubscriber.
type Subscriber interface {
	Subscribe(
		ctx context.Context,
		topicID string,
		start string,
		onMessage stream.MessageHandler,
		onError stream.ErrorHandler,
	) (Subscription, error)
}

// Store is the materialization seam. Implemented by projection.Writer.
type Store interface {
	Apply(ctx context.Context, msg mirror.Message, parsed parser.Result) error
	Cursor(ctx context.Context, topicID string) (string, int64, error)
}

// streamSubscriber adapts the concrete stream.Subscriber to the Subscriber
// seam (its Subscribe returns the concrete subscription type).
type streamSubscriber struct {
	inner *stream.Subscriber
}

// NewStreamSubscriber wraps a stream.Subscriber for use by supervisors.
func NewStreamSubscriber(inner *stream.Subscriber) Subscriber {
	return &streamSubscriber{inner: inner}
}

func (s *streamSubscriber) Subscribe(
	ctx context.Context,
	topicID string,
	start string,
	onMessage stream.MessageHandler,
	onError stream.ErrorHandler,
) (Subscription, error) {
	return s.inner.Subscribe(ctx, topicID, start, onMessage, onError)
}

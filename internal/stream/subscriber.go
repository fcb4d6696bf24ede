package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aite550659-max/agent-trust-protocol/internal/common"
	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/mirror"
)

const streamPathFormat = "/api/v1/topics/%s/stream"

// maxFrameBytes bounds a single streamed frame. Topic payloads are capped
// well below this by the substrate.
const maxFrameBytes = 1024 * 1024

// MessageHandler receives each streamed message in consensus order.
type MessageHandler func(mirror.Message)

// ErrorHandler receives the terminal subscription failure. It is invoked at
// most once, and never after Stop returns.
type ErrorHandler func(error)

// Subscriber establishes live push subscriptions against the mirror
// streaming endpoint. One Subscriber serves any number of topics; each
// Subscribe call yields an independent Subscription.
type Subscriber struct {
	baseURL string
	network string
	http    *http.Client
	log     *logger.Logger
}

// NewSubscriber creates a Subscriber rooted at baseURL for the given
// network identifier.
func NewSubscriber(baseURL, network string, log *logger.Logger) *Subscriber {
	return &Subscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		network: network,
		// Streaming reads are unbounded; the request context governs the
		// connection lifetime instead of a client timeout.
		http: &http.Client{},
		log:  log.WithComponent("subscriber"),
	}
}

// frame is the wire shape of one streamed message.
type frame struct {
	TopicID            string         `json:"topic_id"`
	ConsensusTimestamp frameTimestamp `json:"consensus_timestamp"`
	SequenceNumber     int64          `json:"sequence_number"`
	Contents           string         `json:"contents"`
}

type frameTimestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int64 `json:"nanos"`
}

// Subscription is one live stream attached to a topic. Stop is idempotent;
// after it returns no further handler invocations occur.
type Subscription struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Stop terminates the subscription and waits for the reader to quiesce.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		close(s.stopped)
		s.cancel()
	})
	<-s.done
}

// Subscribe opens a long-lived stream delivering every message with
// consensus_timestamp strictly after start. Providers disagree on whether
// the start bound is inclusive, so one nanosecond is always added to the
// supplied value to guarantee exclusion of the last-seen message. An empty
// start subscribes from the beginning of the topic.
//
// onMessage is invoked synchronously for each frame, which propagates
// backpressure to the stream. onError is invoked exactly once on terminal
// failure (transport error, unexpected end of stream, or an undecodable
// frame) and never after Stop returns.
func (s *Subscriber) Subscribe(
	ctx context.Context,
	topicID string,
	start string,
	onMessage MessageHandler,
	onError ErrorHandler,
) (*Subscription, error) {
	query := url.Values{}
	if s.network != "" {
		query.Set("network", s.network)
	}
	if start != "" {
		exclusiveStart, err := common.AddNanos(start, 1)
		if err != nil {
			return nil, fmt.Errorf("invalid start timestamp: %w", err)
		}
		query.Set("timestamp", "gt:"+exclusiveStart)
	}

	streamURL := s.baseURL + fmt.Sprintf(streamPathFormat, url.PathEscape(topicID))
	if encoded := query.Encode(); encoded != "" {
		streamURL += "?" + encoded
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := s.http.Do(req)
	if err != nil {
		cancel()
		return nil, &mirror.TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &mirror.HTTPError{StatusCode: resp.StatusCode, URL: streamURL}
	}

	sub := &Subscription{
		cancel:  cancel,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	s.log.Infow("subscription established", "topic", topicID, "start", start)

	go s.readLoop(sub, resp.Body, topicID, onMessage, onError)

	return sub, nil
}

func (s *Subscriber) readLoop(
	sub *Subscription,
	body io.ReadCloser,
	topicID string,
	onMessage MessageHandler,
	onError ErrorHandler,
) {
	defer close(sub.done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			// Keep-alive blank lines between frames.
			continue
		}

		var f frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			s.fail(sub, onError, fmt.Errorf("undecodable stream frame for topic %s: %w", topicID, err))
			return
		}

		select {
		case <-sub.stopped:
			return
		default:
		}

		onMessage(mirror.Message{
			TopicID:            f.TopicID,
			ConsensusTimestamp: common.FormatConsensusTimestamp(f.ConsensusTimestamp.Seconds, f.ConsensusTimestamp.Nanos),
			SequenceNumber:     f.SequenceNumber,
			Base64Contents:     f.Contents,
		})
	}

	if err := scanner.Err(); err != nil {
		s.fail(sub, onError, &mirror.TransportError{Err: err})
		return
	}

	// The substrate never closes a healthy subscription; EOF is a failure.
	s.fail(sub, onError, fmt.Errorf("stream for topic %s ended unexpectedly", topicID))
}

// fail surfaces a terminal error unless the subscription was stopped.
func (s *Subscriber) fail(sub *Subscription, onError ErrorHandler, err error) {
	select {
	case <-sub.stopped:
		return
	default:
	}

	s.log.Warnw("subscription failed", "error", err)
	onError(err)
}

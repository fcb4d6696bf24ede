package stream

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/mirror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectingHandler accumulates streamed messages safely across goroutines.
type collectingHandler struct {
	mu       sync.Mutex
	messages []mirror.Message
	errs     []error
}

func (c *collectingHandler) onMessage(m mirror.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

func (c *collectingHandler) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collectingHandler) snapshot() ([]mirror.Message, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mirror.Message(nil), c.messages...), append([]error(nil), c.errs...)
}

func frameJSON(seq int64, secs, nanos int64, contents string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(contents))
	return fmt.Sprintf(
		`{"topic_id":"0.0.1001","consensus_timestamp":{"seconds":%d,"nanos":%d},"sequence_number":%d,"contents":"%s"}`,
		secs, nanos, seq, encoded,
	)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSubscribeDeliversFramesInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, frameJSON(6, 1700000600, 0, `{"type":"ACTION"}`))
		fmt.Fprintln(w, frameJSON(7, 1700000601, 5, `{"type":"COMMS"}`))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	handler := &collectingHandler{}
	sub := NewSubscriber(server.URL, "testnet", logger.NewNopLogger())

	subscription, err := sub.Subscribe(context.Background(), "0.0.1001", "", handler.onMessage, handler.onError)
	require.NoError(t, err)
	defer subscription.Stop()

	waitFor(t, func() bool {
		msgs, _ := handler.snapshot()
		return len(msgs) == 2
	})

	msgs, errs := handler.snapshot()
	require.Len(t, msgs, 2)
	assert.Empty(t, errs)
	assert.Equal(t, int64(6), msgs[0].SequenceNumber)
	assert.Equal(t, "1700000600.000000000", msgs[0].ConsensusTimestamp)
	assert.Equal(t, "1700000601.000000005", msgs[1].ConsensusTimestamp)

	decoded, err := base64.StdEncoding.DecodeString(msgs[0].Base64Contents)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ACTION"}`, string(decoded))
}

func TestSubscribeAddsOneNanosecondToStart(t *testing.T) {
	var gotTimestamp string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTimestamp = r.URL.Query().Get("timestamp")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	handler := &collectingHandler{}
	sub := NewSubscriber(server.URL, "testnet", logger.NewNopLogger())

	subscription, err := sub.Subscribe(
		context.Background(), "0.0.1001", "1700000500.999999999", handler.onMessage, handler.onError)
	require.NoError(t, err)
	defer subscription.Stop()

	assert.Equal(t, "gt:1700000501.000000000", gotTimestamp)
}

func TestSubscribeInvalidStart(t *testing.T) {
	handler := &collectingHandler{}
	sub := NewSubscriber("http://127.0.0.1:1", "testnet", logger.NewNopLogger())

	_, err := sub.Subscribe(context.Background(), "0.0.1001", "garbage", handler.onMessage, handler.onError)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid start timestamp")
}

func TestSubscribeErrorOnServerClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, frameJSON(1, 1700000000, 0, `{}`))
		// Returning closes the stream; the subscriber must treat EOF as terminal.
	}))
	defer server.Close()

	handler := &collectingHandler{}
	sub := NewSubscriber(server.URL, "testnet", logger.NewNopLogger())

	_, err := sub.Subscribe(context.Background(), "0.0.1001", "", handler.onMessage, handler.onError)
	require.NoError(t, err)

	waitFor(t, func() bool {
		_, errs := handler.snapshot()
		return len(errs) == 1
	})

	_, errs := handler.snapshot()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "ended unexpectedly")
}

func TestSubscribeErrorOnMalformedFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "{broken frame")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	handler := &collectingHandler{}
	sub := NewSubscriber(server.URL, "testnet", logger.NewNopLogger())

	_, err := sub.Subscribe(context.Background(), "0.0.1001", "", handler.onMessage, handler.onError)
	require.NoError(t, err)

	waitFor(t, func() bool {
		_, errs := handler.snapshot()
		return len(errs) == 1
	})

	msgs, errs := handler.snapshot()
	assert.Empty(t, msgs)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "undecodable stream frame")
}

func TestSubscribeNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	handler := &collectingHandler{}
	sub := NewSubscriber(server.URL, "testnet", logger.NewNopLogger())

	_, err := sub.Subscribe(context.Background(), "0.0.1001", "", handler.onMessage, handler.onError)
	require.Error(t, err)

	var httpErr *mirror.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestStopIsIdempotentAndSuppressesCallbacks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, frameJSON(1, 1700000000, 0, `{}`))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	handler := &collectingHandler{}
	sub := NewSubscriber(server.URL, "testnet", logger.NewNopLogger())

	subscription, err := sub.Subscribe(context.Background(), "0.0.1001", "", handler.onMessage, handler.onError)
	require.NoError(t, err)

	waitFor(t, func() bool {
		msgs, _ := handler.snapshot()
		return len(msgs) == 1
	})

	subscription.Stop()
	subscription.Stop() // idempotent

	// Stopping cancels the request; the resulting transport error must not
	// surface through onError.
	_, errs := handler.snapshot()
	assert.Empty(t, errs)
}

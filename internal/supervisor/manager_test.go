package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/mirror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(topics ...string) (*Manager, *fakeStore, *fakeSubscriber) {
	store := newFakeStore()
	client := &fakeMirror{
		fetch: func(call int, cursor string) (*mirror.Page, error) {
			return &mirror.Page{}, nil
		},
	}
	subscriber := &fakeSubscriber{}

	cfg := testIngestionConfig()
	cfg.Topics = topics

	return NewManager(client, subscriber, store, cfg, logger.NewNopLogger()), store, subscriber
}

func TestManagerStartsSeedTopics(t *testing.T) {
	m, _, _ := newTestManager("0.0.1001", "0.0.1002")

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	waitFor(t, func() bool {
		statuses := m.Status()
		if len(statuses) != 2 {
			return false
		}
		for _, s := range statuses {
			if s.Status != StatusBackfilling && s.Status != StatusStreaming {
				return false
			}
		}
		return true
	})

	assert.ElementsMatch(t, []string{"0.0.1001", "0.0.1002"}, m.Topics())
}

func TestManagerStartTwiceFails(t *testing.T) {
	m, _, _ := newTestManager("0.0.1001")

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Error(t, m.Start(context.Background()))
}

func TestManagerAddTopicAtRuntime(t *testing.T) {
	m, _, _ := newTestManager("0.0.1001")

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.AddTopic("0.0.2002")

	waitFor(t, func() bool {
		s, ok := m.Status()["0.0.2002"]
		return ok && (s.Status == StatusBackfilling || s.Status == StatusStreaming)
	})
}

func TestManagerAddTopicBeforeStartIsPending(t *testing.T) {
	m, _, _ := newTestManager("0.0.1001")

	m.AddTopic("0.0.2002")
	assert.Empty(t, m.Status())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	waitFor(t, func() bool { return len(m.Status()) == 2 })
}

func TestManagerConcurrentDuplicateAddTopic(t *testing.T) {
	m, _, _ := newTestManager("0.0.1001")

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddTopic("0.0.3003")
		}()
	}
	wg.Wait()

	// At most one supervisor per topic.
	count := 0
	for _, topic := range m.Topics() {
		if topic == "0.0.3003" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager("0.0.1001")

	require.NoError(t, m.Start(context.Background()))

	waitFor(t, func() bool { return len(m.Status()) == 1 })

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager stop did not return")
	}

	for _, s := range m.Status() {
		assert.Equal(t, StatusIdle, s.Status)
	}
}

func TestManagerStopBeforeStart(t *testing.T) {
	m, _, _ := newTestManager("0.0.1001")
	m.Stop() // no-op
	assert.Empty(t, m.Status())
}

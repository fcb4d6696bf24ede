package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aite550659-max/agent-trust-protocol/internal/config"
	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
)

// Manager owns one Supervisor per configured topic, supports registering
// topics at runtime, and coordinates startup and graceful shutdown.
type Manager struct {
	client     MirrorClient
	subscriber Subscriber
	store      Store
	cfg        config.IngestionConfig
	log        *logger.Logger

	mu          sync.Mutex
	supervisors map[string]*Supervisor
	pending     []string
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewManager creates a manager. The seed topics from the configuration are
// recorded as pending until Start.
func NewManager(
	client MirrorClient,
	subscriber Subscriber,
	store Store,
	cfg config.IngestionConfig,
	log *logger.Logger,
) *Manager {
	m := &Manager{
		client:      client,
		subscriber:  subscriber,
		store:       store,
		cfg:         cfg,
		log:         log.WithComponent("ingestion-manager"),
		supervisors: make(map[string]*Supervisor),
	}
	m.pending = append(m.pending, cfg.Topics...)

	return m
}

// Start creates and starts a supervisor for every pending topic. Calling
// Start on a running manager is an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("ingestion manager already started")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for _, topicID := range m.pending {
		m.startSupervisorLocked(topicID)
	}
	m.pending = nil

	m.log.Infow("ingestion manager started", "topics", len(m.supervisors))

	return nil
}

// AddTopic registers a topic at runtime. On a running manager a supervisor
// is created and started immediately; otherwise the topic is recorded as
// pending for the next Start. Duplicate additions are no-ops, so at most
// one supervisor ever exists per topic.
func (m *Manager) AddTopic(topicID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.supervisors[topicID]; exists {
		return
	}

	if !m.running {
		for _, pending := range m.pending {
			if pending == topicID {
				return
			}
		}
		m.pending = append(m.pending, topicID)
		m.log.Infow("topic recorded as pending", "topic", topicID)
		return
	}

	m.startSupervisorLocked(topicID)
	m.log.Infow("topic registered at runtime", "topic", topicID)
}

func (m *Manager) startSupervisorLocked(topicID string) {
	sup := New(topicID, m.client, m.subscriber, m.store, m.cfg, m.log)
	m.supervisors[topicID] = sup
	sup.Start(m.ctx)
}

// Stop signals every supervisor and waits for graceful termination, up to
// the configured shutdown budget. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()

	supervisors := make([]*Supervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		supervisors = append(supervisors, sup)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, sup := range supervisors {
			wg.Add(1)
			go func(s *Supervisor) {
				defer wg.Done()
				s.Stop()
			}(sup)
		}
		wg.Wait()
		close(done)
	}()

	budget := m.cfg.ShutdownTimeout.Duration
	if budget <= 0 {
		budget = 10 * time.Second
	}

	select {
	case <-done:
		m.log.Info("ingestion manager stopped")
	case <-time.After(budget):
		m.log.Warnw("shutdown budget exceeded, abandoning supervisors", "budget", budget)
	}
}

// Status snapshots every supervisor.
func (m *Manager) Status() map[string]StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make(map[string]StatusSnapshot, len(m.supervisors))
	for topicID, sup := range m.supervisors {
		statuses[topicID] = sup.Status()
	}

	return statuses
}

// Topics lists the topics currently owned by a supervisor.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	topics := make([]string, 0, len(m.supervisors))
	for topicID := range m.supervisors {
		topics = append(topics, topicID)
	}

	return topics
}

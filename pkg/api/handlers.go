// Package api provides the read API over the projected tables.
// @title Agent Trust Protocol Indexer API
// @version 1.0
// @description REST API for querying agents, events, rentals, and raw topic messages materialized by the indexer
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/parser"
	"github.com/aite550659-max/agent-trust-protocol/internal/projection"
	"github.com/aite550659-max/agent-trust-protocol/internal/store"
	"github.com/aite550659-max/agent-trust-protocol/internal/supervisor"
)

// Reader is the read-side query seam, implemented by store.ReadStore.
type Reader interface {
	ListAgents(ctx context.Context, page store.PageParams) ([]*projection.AgentRow, int, error)
	GetAgent(ctx context.Context, agentID string) (*projection.AgentRow, error)
	ListAgentEvents(ctx context.Context, agentID string, page store.PageParams) ([]*projection.AgentEventRow, int, error)
	ListRentals(ctx context.Context, status string, page store.PageParams) ([]*projection.RentalRow, int, error)
	GetRental(ctx context.Context, rentalID string) (*projection.RentalRow, error)
	ListComms(ctx context.Context, topicID string, page store.PageParams) ([]*projection.CommsRow, int, error)
	ListMessages(ctx context.Context, topicID string, page store.PageParams) ([]*projection.MessageRow, int, error)
	Cursors(ctx context.Context) ([]*projection.CursorRow, error)
}

// Ingestion is the manager seam the API needs for health and runtime
// topic registration.
type Ingestion interface {
	Status() map[string]supervisor.StatusSnapshot
	AddTopic(topicID string)
	Topics() []string
}

// Handler handles HTTP requests for the read API.
type Handler struct {
	reader    Reader
	ingestion Ingestion
	log       *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(reader Reader, ingestion Ingestion, log *logger.Logger) *Handler {
	return &Handler{
		reader:    reader,
		ingestion: ingestion,
		log:       log,
	}
}

// Health reports per-topic supervisor and cursor status.
// @Summary Indexer health
// @Description Per-topic supervisor state and sync cursor; a stalled cursor shows as a stale updated_at
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	statuses := h.ingestion.Status()

	cursors := make(map[string]*projection.CursorRow)
	rows, err := h.reader.Cursors(r.Context())
	if err != nil {
		h.log.Errorf("failed to load cursors for health: %v", err)
	} else {
		for _, row := range rows {
			cursors[row.TopicID] = row
		}
	}

	topics := make([]TopicHealth, 0, len(statuses))
	for topicID, snapshot := range statuses {
		health := TopicHealth{
			TopicID:           topicID,
			Status:            snapshot.Status,
			ReconnectAttempts: snapshot.ReconnectAttempts,
			LastErrorMessage:  snapshot.LastErrorMessage,
		}
		if cursor, ok := cursors[topicID]; ok {
			health.LastTimestamp = cursor.LastTimestamp
			health.LastSequenceNumber = cursor.LastSequenceNumber
			updatedAt := cursor.UpdatedAt
			health.CursorUpdatedAt = &updatedAt
		}
		topics = append(topics, health)
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Topics:    topics,
	})
}

// ListAgents returns a page of projected agents.
// @Summary List agents
// @Tags Agents
// @Produce json
// @Param limit query int false "Maximum number of rows" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse
// @Failure 500 {object} ErrorResponse
// @Router /agents [get]
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	page := parsePageParams(r)

	agents, total, err := h.reader.ListAgents(r.Context(), page)
	if err != nil {
		h.log.Errorf("failed to list agents: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	respondList(w, agents, len(agents), total, page)
}

// GetAgent returns one agent by id.
// @Summary Get an agent
// @Tags Agents
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Agent
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /agents/{id} [get]
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	agent, err := h.reader.GetAgent(r.Context(), agentID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		h.log.Errorf("failed to get agent: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get agent")
		return
	}

	respondJSON(w, http.StatusOK, agent)
}

// ListAgentEvents returns a page of the agent's audit log.
// @Summary List an agent's events
// @Tags Agents
// @Produce json
// @Param id path string true "Agent ID"
// @Param limit query int false "Maximum number of rows" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse
// @Failure 500 {object} ErrorResponse
// @Router /agents/{id}/events [get]
func (h *Handler) ListAgentEvents(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	page := parsePageParams(r)

	events, total, err := h.reader.ListAgentEvents(r.Context(), agentID, page)
	if err != nil {
		h.log.Errorf("failed to list agent events: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list agent events")
		return
	}

	respondList(w, events, len(events), total, page)
}

// ListRentals returns a page of rentals, optionally filtered by status.
// @Summary List rentals
// @Tags Rentals
// @Produce json
// @Param status query string false "Lifecycle filter" Enums(initiated, completed)
// @Param limit query int false "Maximum number of rows" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /rentals [get]
func (h *Handler) ListRentals(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != projection.RentalStatusInitiated && status != projection.RentalStatusCompleted {
		respondError(w, http.StatusBadRequest, "status must be 'initiated' or 'completed'")
		return
	}

	page := parsePageParams(r)

	rentals, total, err := h.reader.ListRentals(r.Context(), status, page)
	if err != nil {
		h.log.Errorf("failed to list rentals: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list rentals")
		return
	}

	respondList(w, rentals, len(rentals), total, page)
}

// GetRental returns one rental by id.
// @Summary Get a rental
// @Tags Rentals
// @Produce json
// @Param id path string true "Rental ID"
// @Success 200 {object} Rental
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /rentals/{id} [get]
func (h *Handler) GetRental(w http.ResponseWriter, r *http.Request) {
	rentalID := r.PathValue("id")

	rental, err := h.reader.GetRental(r.Context(), rentalID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "rental not found")
		return
	}
	if err != nil {
		h.log.Errorf("failed to get rental: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get rental")
		return
	}

	respondJSON(w, http.StatusOK, rental)
}

// ListComms returns a page of agent-to-agent messages.
// @Summary List agent communications
// @Tags Comms
// @Produce json
// @Param topic_id query string false "Topic filter"
// @Param limit query int false "Maximum number of rows" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse
// @Failure 500 {object} ErrorResponse
// @Router /comms [get]
func (h *Handler) ListComms(w http.ResponseWriter, r *http.Request) {
	topicID := r.URL.Query().Get("topic_id")
	page := parsePageParams(r)

	comms, total, err := h.reader.ListComms(r.Context(), topicID, page)
	if err != nil {
		h.log.Errorf("failed to list comms: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list comms")
		return
	}

	respondList(w, comms, len(comms), total, page)
}

// ListMessages returns raw substrate records for a topic in sequence order.
// @Summary List raw topic messages
// @Tags Messages
// @Produce json
// @Param id path string true "Topic ID"
// @Param limit query int false "Maximum number of rows" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse
// @Failure 500 {object} ErrorResponse
// @Router /topics/{id}/messages [get]
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	topicID := r.PathValue("id")
	page := parsePageParams(r)

	messages, total, err := h.reader.ListMessages(r.Context(), topicID, page)
	if err != nil {
		h.log.Errorf("failed to list messages: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	respondList(w, messages, len(messages), total, page)
}

// AddTopic registers a topic for ingestion at runtime.
// @Summary Register a topic
// @Tags Topics
// @Accept json
// @Produce json
// @Param request body AddTopicRequest true "Topic to register"
// @Success 202 {object} AddTopicResponse
// @Failure 400 {object} ErrorResponse
// @Router /topics [post]
func (h *Handler) AddTopic(w http.ResponseWriter, r *http.Request) {
	var req AddTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	topicID := strings.TrimSpace(req.TopicID)
	if topicID == "" {
		respondError(w, http.StatusBadRequest, "topic_id is required")
		return
	}

	h.ingestion.AddTopic(topicID)

	respondJSON(w, http.StatusAccepted, AddTopicResponse{
		TopicID: topicID,
		Topics:  len(h.ingestion.Topics()),
	})
}

// GetSchemas returns JSON Schemas of the recognized event shapes.
// @Summary Event schemas
// @Tags Schemas
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /schemas [get]
func (h *Handler) GetSchemas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, parser.EventSchemas())
}

func parsePageParams(r *http.Request) store.PageParams {
	page := store.PageParams{}

	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			page.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			page.Offset = offset
		}
	}

	page.Normalize()
	return page
}

func respondList(w http.ResponseWriter, items any, count, total int, page store.PageParams) {
	respondJSON(w, http.StatusOK, ListResponse{
		Items: items,
		Pagination: PaginationResult{
			Total:   total,
			Limit:   page.Limit,
			Offset:  page.Offset,
			HasMore: page.Offset+count < total,
		},
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: status})
}

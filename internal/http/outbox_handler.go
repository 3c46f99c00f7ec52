package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/httputil"
	"github.com/allisson/userevents/internal/outbox/domain"
)

var replayLimits = httputil.PageLimits{Default: 50, Max: 1000}

// OutboxAdmin is the subset of outbox administration served over HTTP.
type OutboxAdmin interface {
	List(ctx context.Context, status domain.OutboxStatus, offset, limit int) ([]*domain.OutboxRecord, error)
	Stats(ctx context.Context) (map[domain.OutboxStatus]int64, error)
	Replay(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error)
	ReplayAllFailed(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)
}

// OutboxRecordResponse is the JSON representation of an outbox record.
type OutboxRecordResponse struct {
	ID             string     `json:"id"`
	IdempotencyKey string     `json:"idempotency_key"`
	EventType      string     `json:"event_type"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      *string    `json:"last_error,omitempty"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func mapOutboxRecordToResponse(record *domain.OutboxRecord) OutboxRecordResponse {
	return OutboxRecordResponse{
		ID:             record.ID.String(),
		IdempotencyKey: record.IdempotencyKey,
		EventType:      record.EventType,
		Status:         record.Status.String(),
		Attempts:       record.Attempts,
		LastError:      record.LastError,
		CorrelationID:  record.CorrelationID,
		ProcessedAt:    record.ProcessedAt,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
}

func mapOutboxRecordsToResponse(records []*domain.OutboxRecord) []OutboxRecordResponse {
	response := make([]OutboxRecordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, mapOutboxRecordToResponse(record))
	}
	return response
}

// OutboxHandler serves outbox inspection and replay endpoints.
type OutboxHandler struct {
	admin  OutboxAdmin
	logger *slog.Logger
}

// NewOutboxHandler creates a new OutboxHandler.
func NewOutboxHandler(admin OutboxAdmin, logger *slog.Logger) *OutboxHandler {
	return &OutboxHandler{admin: admin, logger: logger}
}

// StatsHandler returns the number of records per status.
// GET /v1/outbox/stats
func (h *OutboxHandler) StatsHandler(c *gin.Context) {
	counts, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	response := gin.H{}
	for _, status := range []domain.OutboxStatus{
		domain.OutboxStatusPending,
		domain.OutboxStatusFailed,
		domain.OutboxStatusProcessed,
	} {
		response[status.String()] = counts[status]
	}

	c.JSON(http.StatusOK, response)
}

// ListHandler lists records with a given status, oldest first.
// GET /v1/outbox/records?status=failed&offset=0&limit=50
func (h *OutboxHandler) ListHandler(c *gin.Context) {
	page, err := httputil.ParsePage(c, httputil.DefaultPageLimits)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	status := domain.OutboxStatus(c.DefaultQuery("status", domain.OutboxStatusFailed.String()))
	records, err := h.admin.List(c.Request.Context(), status, page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": mapOutboxRecordsToResponse(records)})
}

// ReplayHandler resets a failed record to pending and enqueues it again.
// POST /v1/outbox/records/:id/replay
func (h *OutboxHandler) ReplayHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	record, err := h.admin.Replay(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, mapOutboxRecordToResponse(record))
}

// ReplayAllFailedHandler replays up to limit failed records.
// POST /v1/outbox/replay-failed?limit=50
func (h *OutboxHandler) ReplayAllFailedHandler(c *gin.Context) {
	limit, err := httputil.ParseLimit(c, replayLimits)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	records, err := h.admin.ReplayAllFailed(c.Request.Context(), limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": mapOutboxRecordsToResponse(records)})
}

package runs

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/aura-marketing/etl/internal/middleware"
	"github.com/aura-marketing/etl/pkg/queue"
	"github.com/aura-marketing/etl/pkg/response"
)

// Reader is satisfied by *Store.
type Reader interface {
	Last(ctx context.Context, table string) (*Record, error)
}

// ExtractEnqueuer is satisfied by *queue.Queue.
type ExtractEnqueuer interface {
	EnqueueExtract(ctx context.Context, payload queue.ExtractPayload) (*asynq.TaskInfo, error)
}

// Presigner is satisfied by *storage.S3.
type Presigner interface {
	PresignDownload(ctx context.Context, key string) (string, error)
}

// Handler serves run history and manual triggers.
type Handler struct {
	store     Reader
	enqueuer  ExtractEnqueuer
	presigner Presigner
	table     string
	logger    *zap.Logger
}

// NewHandler creates the runs handler. table is the default for GET /runs/last.
func NewHandler(store Reader, enqueuer ExtractEnqueuer, table string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, enqueuer: enqueuer, table: table, logger: logger}
}

// SetPresigner adds a signed archive download link to GET /runs/last.
func (h *Handler) SetPresigner(p Presigner) {
	h.presigner = p
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/runs/last", h.Last)
	r.POST("/runs", h.Trigger)
}

type lastRunResponse struct {
	*Record
	ArchiveURL string `json:"archive_url,omitempty"`
}

// Last handles GET /runs/last?table=schema.table.
func (h *Handler) Last(c *gin.Context) {
	table := c.DefaultQuery("table", h.table)
	rec, err := h.store.Last(c.Request.Context(), table)
	if err != nil {
		h.logger.Error("read last run", zap.String("table", table), zap.Error(err))
		response.ServiceUnavailable(c, "run history unavailable")
		return
	}
	if rec == nil {
		response.NotFound(c, "no run recorded for "+table)
		return
	}
	out := lastRunResponse{Record: rec}
	if h.presigner != nil && rec.ArchiveKey != "" {
		url, err := h.presigner.PresignDownload(c.Request.Context(), rec.ArchiveKey)
		if err != nil {
			h.logger.Warn("presign archive", zap.String("key", rec.ArchiveKey), zap.Error(err))
		} else {
			out.ArchiveURL = url
		}
	}
	response.OK(c, out)
}

type triggerRequest struct {
	RequestedBy string `json:"requested_by"`
}

// Trigger handles POST /runs by enqueueing an extract task.
func (h *Handler) Trigger(c *gin.Context) {
	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	payload := queue.ExtractPayload{RequestedBy: req.RequestedBy}
	if id, ok := c.Get(middleware.RequestIDKey); ok {
		payload.RequestID, _ = id.(string)
	}
	info, err := h.enqueuer.EnqueueExtract(c.Request.Context(), payload)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		response.Conflict(c, "run already requested: "+payload.RequestID)
		return
	}
	if err != nil {
		h.logger.Error("enqueue extract", zap.Error(err))
		response.ServiceUnavailable(c, "could not enqueue run")
		return
	}
	response.Accepted(c, gin.H{"task_id": info.ID, "queue": info.Queue})
}

// Health handles GET /health.
func Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}

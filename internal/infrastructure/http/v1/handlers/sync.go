package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/id"
	"shopmirror/internal/infrastructure/http/v1/dto"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/synclog"
	"shopmirror/internal/sync/webhook"
)

// FailedLister lists records whose last push failed. The per-kind stores
// satisfy it.
type FailedLister interface {
	ListFailed(ctx context.Context, limit int) ([]enginesync.Record, error)
}

// HistoryReader reads a record's audit trail.
type HistoryReader interface {
	ListForRecord(ctx context.Context, localID id.ID, limit int) ([]*synclog.Entry, error)
}

// SyncHandler serves operator endpoints: manual retry, force pull, failed
// record review, audit history and the auth circuit.
type SyncHandler struct {
	*BaseHandler
	registry   *enginesync.Registry
	dispatcher *dispatch.Dispatcher
	gateway    *webhook.Gateway
	limiter    *platform.Limiter
	failed     map[enginesync.Kind]FailedLister
	history    HistoryReader
}

// NewSyncHandler creates the handler.
func NewSyncHandler(
	base *BaseHandler,
	registry *enginesync.Registry,
	dispatcher *dispatch.Dispatcher,
	gateway *webhook.Gateway,
	limiter *platform.Limiter,
	failed map[enginesync.Kind]FailedLister,
	history HistoryReader,
) *SyncHandler {
	return &SyncHandler{
		BaseHandler: base,
		registry:    registry,
		dispatcher:  dispatcher,
		gateway:     gateway,
		limiter:     limiter,
		failed:      failed,
		history:     history,
	}
}

// RegisterRoutes attaches sync operator endpoints to the group.
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:kind/:id/retry", h.RetryNow)
	rg.POST("/:kind/:id/pull", h.ForcePull)
	rg.POST("/:kind/backfill", h.Backfill)
	rg.GET("/:kind/:id/history", h.History)
	rg.GET("/failed", h.ListFailed)
	rg.GET("/status", h.Status)
	rg.POST("/resume", h.Resume)
	rg.POST("/sweep", h.Sweep)
}

// parseKind validates the kind path parameter against the registry.
func (h *SyncHandler) parseKind(c *gin.Context) (enginesync.Kind, bool) {
	kind := enginesync.Kind(c.Param("kind"))
	if _, err := h.registry.Lookup(kind); err != nil {
		h.Error(c, apperror.NewValidation("unknown entity kind").
			WithDetail("kind", c.Param("kind")))
		return "", false
	}
	return kind, true
}

// RetryNow handles POST /sync/:kind/:id/retry. Manual retry ignores the
// validation hold window.
func (h *SyncHandler) RetryNow(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}
	localID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	report, err := h.dispatcher.RetryNow(c.Request.Context(), kind, localID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}

// ForcePull handles POST /sync/:kind/:id/pull: re-fetches remote state and
// applies it through the suppressed pull path.
func (h *SyncHandler) ForcePull(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}
	localID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	reg, err := h.registry.Lookup(kind)
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}
	rec, err := reg.Store.Get(c.Request.Context(), localID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.gateway.ForcePull(c.Request.Context(), kind, rec); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "remote state applied")
}

// Backfill handles POST /sync/:kind/backfill: walks every remote record of
// the kind and imports the ones the ledger has never seen.
func (h *SyncHandler) Backfill(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}
	stats, err := h.gateway.Backfill(c.Request.Context(), kind)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BackfillStatsResponse{
		Seen:     stats.Seen,
		Imported: stats.Imported,
		Known:    stats.Known,
	})
}

// History handles GET /sync/:kind/:id/history.
func (h *SyncHandler) History(c *gin.Context) {
	if _, ok := h.parseKind(c); !ok {
		return
	}
	localID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 50)

	entries, err := h.history.ListForRecord(c.Request.Context(), localID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.SyncLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.FromSyncLogEntry(e))
	}
	h.OK(c, dto.ListResponse{Items: items, Page: 1, PageSize: len(items)})
}

// ListFailed handles GET /sync/failed. A kind query narrows to one kind.
func (h *SyncHandler) ListFailed(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 100)

	kinds := h.registry.Kinds()
	if raw := c.Query("kind"); raw != "" {
		kind := enginesync.Kind(raw)
		if _, known := h.failed[kind]; !known {
			h.Error(c, apperror.NewValidation("unknown entity kind").WithDetail("kind", raw))
			return
		}
		kinds = []enginesync.Kind{kind}
	}

	var items []dto.FailedRecordResponse
	for _, kind := range kinds {
		lister, known := h.failed[kind]
		if !known {
			continue
		}
		records, err := lister.ListFailed(c.Request.Context(), limit)
		if err != nil {
			h.Error(c, err)
			return
		}
		for _, rec := range records {
			items = append(items, dto.FailedRecordResponse{
				Kind:    string(kind),
				LocalID: rec.Base().ID.String(),
				Sync:    dto.FromSyncMeta(rec.Base().Meta()),
			})
		}
	}
	h.OK(c, dto.ListResponse{Items: items, Page: 1, PageSize: len(items)})
}

// Status handles GET /sync/status: the per-protocol auth circuit.
func (h *SyncHandler) Status(c *gin.Context) {
	h.OK(c, dto.HaltStatusResponse{
		Rest:  h.limiter.Halted(platform.ProtocolRest),
		Graph: h.limiter.Halted(platform.ProtocolGraph),
	})
}

// Resume handles POST /sync/resume: clears the auth circuit after the
// operator confirms credentials.
func (h *SyncHandler) Resume(c *gin.Context) {
	h.limiter.ResumeAll()
	h.Success(c, "automatic sync resumed")
}

// Sweep handles POST /sync/sweep: runs one reconciliation pass inline.
func (h *SyncHandler) Sweep(c *gin.Context) {
	stats, err := h.dispatcher.Sweep(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.SweepStatsResponse{
		Examined: stats.Examined,
		Pushed:   stats.Pushed,
		Failed:   stats.Failed,
		Skipped:  stats.Skipped,
	})
}

// Package diagnostics serves the read-only status API and the polling
// mailbox endpoints.
package diagnostics

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/aura-meet/signaling/internal/mailbox"
	"github.com/aura-meet/signaling/internal/meeting"
	"github.com/aura-meet/signaling/internal/meetinglog"
	"github.com/aura-meet/signaling/internal/registry"
	"github.com/aura-meet/signaling/pkg/response"
)

// Handler exposes registry/directory snapshots and the signaling mailbox.
type Handler struct {
	registry   *registry.Registry
	directory  *meeting.Directory
	store      mailbox.Store
	meetingLog *meetinglog.Repository // nil when history is disabled
	iceServers []webrtc.ICEServer
	logger     *zap.Logger
}

// NewHandler creates the diagnostics handler. meetingLog may be nil.
func NewHandler(
	reg *registry.Registry,
	dir *meeting.Directory,
	store mailbox.Store,
	meetingLog *meetinglog.Repository,
	iceServers []webrtc.ICEServer,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry:   reg,
		directory:  dir,
		store:      store,
		meetingLog: meetingLog,
		iceServers: iceServers,
		logger:     logger,
	}
}

// Stats returns client and meeting counts.
func (h *Handler) Stats(c *gin.Context) {
	response.OK(c, gin.H{
		"clients":  h.registry.Count(),
		"meetings": h.directory.Count(),
	})
}

// Meetings returns per-meeting participant detail.
func (h *Handler) Meetings(c *gin.Context) {
	response.OK(c, h.directory.Snapshots())
}

// ICEServers returns the ICE configuration blob handed to clients verbatim.
func (h *Handler) ICEServers(c *gin.Context) {
	response.OK(c, h.iceServers)
}

// PutSignal stores an offer, answer, or candidate for a polling peer.
// POST /signaling/:meeting/:from/:to/:kind with a JSON body.
func (h *Handler) PutSignal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		response.BadRequest(c, "body must be valid JSON")
		return
	}
	meetingID, from, to := c.Param("meeting"), c.Param("from"), c.Param("to")

	switch c.Param("kind") {
	case "offer":
		err = h.store.PutOffer(c.Request.Context(), meetingID, from, to, body)
	case "answer":
		err = h.store.PutAnswer(c.Request.Context(), meetingID, from, to, body)
	case "candidate":
		err = h.store.AppendCandidate(c.Request.Context(), meetingID, from, to, body)
	default:
		response.NotFound(c, "unknown signal kind")
		return
	}
	if err != nil {
		h.logger.Warn("mailbox store failed", zap.Error(err))
		response.Internal(c, "mailbox store failed")
		return
	}
	response.NoContent(c)
}

// GetSignal consumes everything pending for the ordered pair.
// GET /signaling/:meeting/:from/:to — a read clears the entry.
func (h *Handler) GetSignal(c *gin.Context) {
	entry, err := h.store.Consume(c.Request.Context(), c.Param("meeting"), c.Param("from"), c.Param("to"))
	if err != nil {
		h.logger.Warn("mailbox consume failed", zap.Error(err))
		response.Internal(c, "mailbox read failed")
		return
	}
	if entry.Empty() {
		response.NotFound(c, "nothing pending")
		return
	}
	response.OK(c, entry)
}

// History returns recent meeting lifecycle events when persistence is on.
func (h *Handler) History(c *gin.Context) {
	if h.meetingLog == nil {
		response.ServiceUnavailable(c, "meeting history disabled")
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rows, err := h.meetingLog.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Internal(c, "history query failed")
		return
	}
	response.OK(c, rows)
}

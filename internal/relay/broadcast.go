// Package relay contains the message router, broadcast engine, signaling
// relay, liveness monitor, and the WebSocket client glue between them.
package relay

import (
	"go.uber.org/zap"

	"github.com/aura-meet/signaling/internal/registry"
)

// Broadcaster fans one message out to a computed recipient set. Delivery is
// best effort: a failed send to one recipient never aborts the rest.
type Broadcaster struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewBroadcaster creates a broadcaster over the connection registry.
func NewBroadcaster(reg *registry.Registry, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{registry: reg, logger: logger}
}

// Global sends to every open connection except exclude. Returns how many
// sends succeeded.
func (b *Broadcaster) Global(msg []byte, exclude registry.Conn) int {
	sent, failed := 0, 0
	for _, e := range b.registry.All() {
		if e.Conn == exclude || !e.Conn.IsOpen() {
			continue
		}
		if err := e.Conn.Send(msg); err != nil {
			failed++
			continue
		}
		sent++
	}
	if failed > 0 {
		b.logger.Debug("global broadcast partial delivery", zap.Int("sent", sent), zap.Int("failed", failed))
	}
	return sent
}

// ToMeeting sends to every open connection currently in the meeting, except
// exclude. An unknown or empty meeting id is a no-op with zero recipients; an
// empty id would otherwise match every connection not in any meeting.
func (b *Broadcaster) ToMeeting(msg []byte, meetingID string, exclude registry.Conn) int {
	if meetingID == "" {
		return 0
	}
	sent, failed := 0, 0
	for _, e := range b.registry.All() {
		if e.Conn == exclude || e.Info.CurrentMeetingID != meetingID || !e.Conn.IsOpen() {
			continue
		}
		if err := e.Conn.Send(msg); err != nil {
			failed++
			continue
		}
		sent++
	}
	if failed > 0 {
		b.logger.Debug("meeting broadcast partial delivery",
			zap.String("meeting_id", meetingID),
			zap.Int("sent", sent),
			zap.Int("failed", failed),
		)
	}
	return sent
}

// Direct sends to the first open connection claiming displayID. Returns
// whether a delivery was attempted successfully.
func (b *Broadcaster) Direct(displayID string, msg []byte) bool {
	conn, ok := b.registry.FindByDisplayID(displayID)
	if !ok {
		return false
	}
	if err := conn.Send(msg); err != nil {
		b.logger.Debug("direct send failed", zap.String("display_id", displayID), zap.Error(err))
		return false
	}
	return true
}

package relay

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/aura-meet/signaling/internal/protocol"
)

// Signaler forwards WebRTC offer/answer/ICE payloads between two identified
// peers. Real-time only: when the target is not connected the failure is
// reported to the caller and the payload is dropped (polling clients use the
// mailbox instead).
type Signaler struct {
	broadcaster *Broadcaster
	logger      *zap.Logger
}

// NewSignaler creates a signaling relay on top of the broadcaster's direct
// send primitive.
func NewSignaler(b *Broadcaster, logger *zap.Logger) *Signaler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signaler{broadcaster: b, logger: logger}
}

// Relay wraps {type, fromUserId, sdp|candidate} and delivers it to the target
// peer. Returns whether delivery was attempted successfully.
func (s *Signaler) Relay(typ, fromDisplayID, targetDisplayID, sdp string, candidate json.RawMessage) bool {
	wrapped, err := protocol.WrapSignal(typ, fromDisplayID, sdp, candidate)
	if err != nil {
		s.logger.Warn("signal encode failed", zap.String("type", typ), zap.Error(err))
		return false
	}
	delivered := s.broadcaster.Direct(targetDisplayID, wrapped)
	if !delivered {
		s.logger.Debug("signal target not connected",
			zap.String("type", typ),
			zap.String("from", fromDisplayID),
			zap.String("target", targetDisplayID),
		)
	}
	return delivered
}

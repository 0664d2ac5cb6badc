package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-meet/signaling/internal/registry"
)

// Monitor probes every connection with transport pings and evicts connections
// whose last activity is older than the timeout. Eviction only force-closes
// the transport; teardown happens on the connection's own close path, the
// same as an organic disconnect.
type Monitor struct {
	registry          *registry.Registry
	clock             registry.Clock
	heartbeatInterval time.Duration
	checkInterval     time.Duration
	timeout           time.Duration
	logger            *zap.Logger
}

// NewMonitor creates a liveness monitor over the registry.
func NewMonitor(reg *registry.Registry, clock registry.Clock, heartbeat, check, timeout time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = registry.SystemClock()
	}
	return &Monitor{
		registry:          reg,
		clock:             clock,
		heartbeatInterval: heartbeat,
		checkInterval:     check,
		timeout:           timeout,
		logger:            logger,
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	heartbeat := time.NewTicker(m.heartbeatInterval)
	check := time.NewTicker(m.checkInterval)
	defer heartbeat.Stop()
	defer check.Stop()

	m.logger.Info("liveness monitor started",
		zap.Duration("heartbeat_interval", m.heartbeatInterval),
		zap.Duration("check_interval", m.checkInterval),
		zap.Duration("timeout", m.timeout),
	)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return
		case <-heartbeat.C:
			m.SweepPings()
		case <-check.C:
			m.SweepTimeouts()
		}
	}
}

// SweepPings sends a ping probe to every open connection. Sending a probe is
// not activity; only a pong reply or an inbound message counts.
func (m *Monitor) SweepPings() {
	for _, e := range m.registry.All() {
		if !e.Conn.IsOpen() {
			continue
		}
		if err := e.Conn.Ping(); err != nil {
			m.logger.Debug("ping probe failed", zap.String("display_id", e.Info.DisplayID), zap.Error(err))
		}
	}
}

// SweepTimeouts force-closes every connection idle beyond the timeout.
func (m *Monitor) SweepTimeouts() {
	now := m.clock.Now()
	for _, e := range m.registry.All() {
		idle := now.Sub(e.Info.LastActivityAt)
		if idle <= m.timeout {
			continue
		}
		m.logger.Warn("evicting idle connection",
			zap.String("display_id", e.Info.DisplayID),
			zap.Duration("idle", idle),
		)
		e.Conn.CloseWithReason("liveness timeout")
	}
}

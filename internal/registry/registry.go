// Package registry tracks every live connection and its session metadata.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is the abstract transport session the core operates on. The WebSocket
// layer implements it; tests substitute in-memory fakes.
type Conn interface {
	// Send writes one outbound message. Failures are per-recipient and never fatal.
	Send(data []byte) error
	// Ping emits a transport-level liveness probe (does not count as activity).
	Ping() error
	// IsOpen reports whether the transport can still deliver.
	IsOpen() bool
	// CloseWithReason tears the transport down; the close path funnels through
	// the same teardown as an organic disconnect.
	CloseWithReason(reason string)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Info is the session metadata for one connection.
type Info struct {
	ConnectionID     string
	DisplayID        string
	DeviceID         string
	DeviceName       string
	CurrentMeetingID string // empty when not in any meeting
	AudioMuted       bool
	VideoOn          bool
	IsRecording      bool
	WebRTCReady      bool
	ConnectedAt      time.Time
	LastActivityAt   time.Time
}

// Entry pairs a connection with a copy of its metadata.
type Entry struct {
	Conn Conn
	Info Info
}

// Registry owns the connection -> session metadata map. All reads return
// copies; mutation goes through the setters so the map stays the single owner.
type Registry struct {
	mu          sync.RWMutex
	conns       map[Conn]*Info
	nextDisplay uint64
	clock       Clock
	logger      *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return NewWithClock(logger, SystemClock())
}

// NewWithClock creates a registry with an injected clock (tests).
func NewWithClock(logger *zap.Logger, clock Clock) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[Conn]*Info),
		clock:  clock,
		logger: logger,
	}
}

// Register stores a new connection with default flags and returns its metadata.
// Display ids come from a per-process counter so two live connections can
// never share one; clients may later claim a different name via Rename.
func (r *Registry) Register(conn Conn) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextDisplay++
	now := r.clock.Now()
	info := &Info{
		ConnectionID:   uuid.New().String(),
		DisplayID:      fmt.Sprintf("User-%d", r.nextDisplay),
		ConnectedAt:    now,
		LastActivityAt: now,
	}
	r.conns[conn] = info
	r.logger.Debug("connection registered",
		zap.String("connection_id", info.ConnectionID),
		zap.String("display_id", info.DisplayID),
	)
	return *info
}

// Unregister removes the connection unconditionally. Callers must drive the
// meeting directory's leave first; the registry does not cascade.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	info, ok := r.conns[conn]
	delete(r.conns, conn)
	r.mu.Unlock()
	if ok {
		r.logger.Debug("connection unregistered", zap.String("display_id", info.DisplayID))
	}
}

// Get returns a copy of the connection's metadata.
func (r *Registry) Get(conn Conn) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.conns[conn]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Touch records inbound activity (any application message or a pong reply).
func (r *Registry) Touch(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[conn]; ok {
		info.LastActivityAt = r.clock.Now()
	}
}

// Rename records the display name the client uses on the wire. No uniqueness
// is enforced for claimed names.
func (r *Registry) Rename(conn Conn, displayID string) {
	if displayID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[conn]; ok {
		info.DisplayID = displayID
	}
}

// SetDevice stores optional client-supplied device metadata.
func (r *Registry) SetDevice(conn Conn, deviceID, deviceName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[conn]; ok {
		info.DeviceID = deviceID
		info.DeviceName = deviceName
	}
}

// SetAudioMuted updates the audio flag for the owning connection.
func (r *Registry) SetAudioMuted(conn Conn, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[conn]; ok {
		info.AudioMuted = muted
	}
}

// SetVideoOn updates the video flag for the owning connection.
func (r *Registry) SetVideoOn(conn Conn, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[conn]; ok {
		info.VideoOn = on
	}
}

// SetRecording updates the recording flag for the owning connection.
func (r *Registry) SetRecording(conn Conn, recording bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[conn]; ok {
		info.IsRecording = recording
	}
}

// SetWebRTCReady flips the peer's readiness flag. Triggers no broadcast.
func (r *Registry) SetWebRTCReady(conn Conn, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.conns[conn]; ok {
		info.WebRTCReady = ready
	}
}

// SetMeeting binds the connection with the given display id to a meeting.
// Called only by the meeting directory so membership and the back-reference
// are written in one place.
func (r *Registry) SetMeeting(displayID, meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range r.conns {
		if info.DisplayID == displayID {
			info.CurrentMeetingID = meetingID
		}
	}
}

// ClearMeeting drops the meeting back-reference for the given display id.
func (r *Registry) ClearMeeting(displayID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range r.conns {
		if info.DisplayID == displayID {
			info.CurrentMeetingID = ""
		}
	}
}

// FindByDisplayID returns the first open connection claiming the display id.
func (r *Registry) FindByDisplayID(displayID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for conn, info := range r.conns {
		if info.DisplayID == displayID && conn.IsOpen() {
			return conn, true
		}
	}
	return nil, false
}

// All returns a snapshot of every connection with copied metadata.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.conns))
	for conn, info := range r.conns {
		entries = append(entries, Entry{Conn: conn, Info: *info})
	}
	return entries
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Package meeting owns the meeting directory: membership sets and host
// assignment, independent of transport.
package meeting

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// MembershipSink receives the connection-side write whenever membership
// changes. Directory operations are the only call sites, so a connection's
// current meeting and the membership set can never diverge.
type MembershipSink interface {
	SetMeeting(displayID, meetingID string)
	ClearMeeting(displayID string)
}

// meetingState is one named session. joinOrder makes host failover
// deterministic.
type meetingState struct {
	id        string
	host      string
	members   map[string]struct{}
	joinOrder []string
	createdAt time.Time
}

// Snapshot is a read-only copy of one meeting.
type Snapshot struct {
	ID           string    `json:"meeting_id"`
	Host         string    `json:"host"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// LeaveResult reports what a leave changed, for the caller to broadcast.
// MeetingID names the meeting that was left; Join fills it when a participant
// hops straight from one meeting to another.
type LeaveResult struct {
	Left           bool
	MeetingID      string
	MeetingDeleted bool
	HostChanged    bool
	NewHost        string
}

// Directory maps meeting ids to membership and host assignment.
type Directory struct {
	mu       sync.Mutex
	meetings map[string]*meetingState
	sink     MembershipSink
	now      func() time.Time
	logger   *zap.Logger
}

// NewDirectory creates an empty directory writing membership back through sink.
func NewDirectory(sink MembershipSink, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		meetings: make(map[string]*meetingState),
		sink:     sink,
		now:      time.Now,
		logger:   logger,
	}
}

// CreateOrGet returns the meeting, creating it with hostDisplayID as host and
// sole participant if absent. Idempotent: an existing meeting is returned
// unchanged, host included. The bool reports whether the meeting was created.
// Creating detaches the host from any meeting it was still in; the returned
// LeaveResult describes that departure.
func (d *Directory) CreateOrGet(meetingID, hostDisplayID string) (Snapshot, bool, LeaveResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.meetings[meetingID]
	if !ok {
		prev := d.detachLocked(hostDisplayID, meetingID)
		m = d.createLocked(meetingID, hostDisplayID)
		return m.snapshot(), true, prev
	}
	return m.snapshot(), false, LeaveResult{}
}

// Join adds displayID to the meeting, creating it (with displayID as host)
// when it does not exist. Quick-join semantics: any join can bootstrap a
// session. A participant belongs to one meeting at a time, so joining detaches
// it from its previous meeting first; the returned LeaveResult describes that
// departure. The bool reports whether the meeting was created by this join.
func (d *Directory) Join(meetingID, displayID string) (Snapshot, bool, LeaveResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.detachLocked(displayID, meetingID)
	m, ok := d.meetings[meetingID]
	if !ok {
		m = d.createLocked(meetingID, displayID)
		return m.snapshot(), true, prev
	}
	if _, member := m.members[displayID]; !member {
		m.members[displayID] = struct{}{}
		m.joinOrder = append(m.joinOrder, displayID)
		d.sink.SetMeeting(displayID, meetingID)
		d.logger.Debug("participant joined",
			zap.String("meeting_id", meetingID),
			zap.String("display_id", displayID),
		)
	}
	return m.snapshot(), false, prev
}

// Leave removes displayID. The last participant leaving deletes the meeting;
// when the departing participant was host and others remain, the first
// remaining participant by join order becomes host.
func (d *Directory) Leave(meetingID, displayID string) LeaveResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.meetings[meetingID]
	if !ok {
		return LeaveResult{}
	}
	return d.leaveLocked(m, displayID)
}

// RenameMember carries displayID's membership, join order slot, and host role
// over to a new name when a connection starts sending under a different id
// mid-meeting. Claiming a name already in the meeting collapses the two slots.
func (d *Directory) RenameMember(meetingID, oldID, newID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.meetings[meetingID]
	if !ok {
		return
	}
	if _, member := m.members[oldID]; !member {
		return
	}
	delete(m.members, oldID)
	if _, taken := m.members[newID]; taken {
		m.joinOrder = removeString(m.joinOrder, oldID)
	} else {
		m.members[newID] = struct{}{}
		for i, id := range m.joinOrder {
			if id == oldID {
				m.joinOrder[i] = newID
			}
		}
	}
	if m.host == oldID {
		m.host = newID
	}
	d.sink.ClearMeeting(oldID)
	d.sink.SetMeeting(newID, meetingID)
	d.logger.Debug("member renamed",
		zap.String("meeting_id", meetingID),
		zap.String("old", oldID),
		zap.String("new", newID),
	)
}

// End deletes the meeting if requesterDisplayID is its host, clearing every
// member's meeting binding. Returns the prior member list on success; a
// non-host request or unknown meeting is a no-op.
func (d *Directory) End(meetingID, requesterDisplayID string) (ended bool, members []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.meetings[meetingID]
	if !ok || m.host != requesterDisplayID {
		return false, nil
	}
	members = append(members, m.joinOrder...)
	for _, id := range members {
		d.sink.ClearMeeting(id)
	}
	delete(d.meetings, meetingID)
	d.logger.Info("meeting ended by host",
		zap.String("meeting_id", meetingID),
		zap.String("host", requesterDisplayID),
		zap.Int("participants", len(members)),
	)
	return true, members
}

// IsHost reports whether displayID hosts the meeting. Unknown meetings are
// simply not hosted by anyone.
func (d *Directory) IsHost(meetingID, displayID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.meetings[meetingID]
	return ok && m.host == displayID
}

// Get returns a copy of the meeting, or false when unknown.
func (d *Directory) Get(meetingID string) (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.meetings[meetingID]
	if !ok {
		return Snapshot{}, false
	}
	return m.snapshot(), true
}

// Count returns the number of live meetings.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.meetings)
}

// Snapshots returns a copy of every meeting for diagnostics.
func (d *Directory) Snapshots() []Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Snapshot, 0, len(d.meetings))
	for _, m := range d.meetings {
		out = append(out, m.snapshot())
	}
	return out
}

func (d *Directory) leaveLocked(m *meetingState, displayID string) LeaveResult {
	if _, member := m.members[displayID]; !member {
		return LeaveResult{}
	}
	delete(m.members, displayID)
	m.joinOrder = removeString(m.joinOrder, displayID)
	d.sink.ClearMeeting(displayID)

	res := LeaveResult{Left: true, MeetingID: m.id}
	if len(m.members) == 0 {
		delete(d.meetings, m.id)
		res.MeetingDeleted = true
		d.logger.Info("meeting deleted", zap.String("meeting_id", m.id))
		return res
	}
	if m.host == displayID {
		m.host = m.joinOrder[0]
		res.HostChanged = true
		res.NewHost = m.host
		d.logger.Info("host reassigned",
			zap.String("meeting_id", m.id),
			zap.String("new_host", m.host),
		)
	}
	return res
}

// detachLocked removes displayID from whichever meeting currently holds it,
// except the one it is moving into.
func (d *Directory) detachLocked(displayID, except string) LeaveResult {
	for id, m := range d.meetings {
		if id == except {
			continue
		}
		if _, member := m.members[displayID]; member {
			return d.leaveLocked(m, displayID)
		}
	}
	return LeaveResult{}
}

func (d *Directory) createLocked(meetingID, hostDisplayID string) *meetingState {
	m := &meetingState{
		id:        meetingID,
		host:      hostDisplayID,
		members:   map[string]struct{}{hostDisplayID: {}},
		joinOrder: []string{hostDisplayID},
		createdAt: d.now(),
	}
	d.meetings[meetingID] = m
	d.sink.SetMeeting(hostDisplayID, meetingID)
	d.logger.Info("meeting created",
		zap.String("meeting_id", meetingID),
		zap.String("host", hostDisplayID),
	)
	return m
}

func (m *meetingState) snapshot() Snapshot {
	return Snapshot{
		ID:           m.id,
		Host:         m.host,
		Participants: append([]string(nil), m.joinOrder...),
		CreatedAt:    m.createdAt,
	}
}

func removeString(s []string, v string) []string {
	for i, e := range s {
		if e == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

package meeting

import (
	"testing"
)

// sinkRecorder records the membership writes the directory performs.
type sinkRecorder struct {
	current map[string]string // displayID -> meetingID ("" cleared)
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{current: make(map[string]string)}
}

func (s *sinkRecorder) SetMeeting(displayID, meetingID string) { s.current[displayID] = meetingID }
func (s *sinkRecorder) ClearMeeting(displayID string)          { s.current[displayID] = "" }

func TestCreateOrGet_Idempotent(t *testing.T) {
	sink := newSinkRecorder()
	d := NewDirectory(sink, nil)

	first, created, _ := d.CreateOrGet("room1", "U1")
	if !created {
		t.Fatalf("first call should create")
	}
	if first.Host != "U1" || len(first.Participants) != 1 {
		t.Fatalf("unexpected snapshot: %+v", first)
	}

	second, created, _ := d.CreateOrGet("room1", "U2")
	if created {
		t.Fatalf("second call should not create")
	}
	if second.Host != "U1" {
		t.Fatalf("host overwritten: %q", second.Host)
	}
	if sink.current["U1"] != "room1" {
		t.Fatalf("host meeting binding not written")
	}
}

func TestJoin_BootstrapsUnknownMeeting(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)

	snap, created, _ := d.Join("room1", "U1")
	if !created || snap.Host != "U1" {
		t.Fatalf("quick join should create with joiner as host: created=%v snap=%+v", created, snap)
	}
}

func TestJoin_DuplicateIsNoop(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")
	snap, _, prev := d.Join("room1", "U2")
	if len(snap.Participants) != 2 {
		t.Fatalf("duplicate join changed membership: %v", snap.Participants)
	}
	if prev.Left {
		t.Fatalf("duplicate join detached the member: %+v", prev)
	}
}

func TestJoin_MovesBetweenMeetings(t *testing.T) {
	sink := newSinkRecorder()
	d := NewDirectory(sink, nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")

	snap, _, prev := d.Join("room2", "U2")
	if snap.Host != "U2" {
		t.Fatalf("hop did not bootstrap the new meeting: %+v", snap)
	}
	if !prev.Left || prev.MeetingID != "room1" {
		t.Fatalf("hop did not leave the first meeting: %+v", prev)
	}
	first, _ := d.Get("room1")
	if len(first.Participants) != 1 {
		t.Fatalf("first meeting kept the hopper: %+v", first)
	}
	if sink.current["U2"] != "room2" {
		t.Fatalf("binding not moved: %v", sink.current)
	}
}

func TestJoin_HostHopFailsOver(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")

	_, _, prev := d.Join("room2", "U1")
	if !prev.HostChanged || prev.NewHost != "U2" {
		t.Fatalf("host hop should fail over: %+v", prev)
	}
	if !d.IsHost("room1", "U2") {
		t.Fatalf("first meeting host not reassigned")
	}
}

func TestRenameMember_CarriesHostAndJoinOrder(t *testing.T) {
	sink := newSinkRecorder()
	d := NewDirectory(sink, nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")

	d.RenameMember("room1", "U1", "Alice")

	if !d.IsHost("room1", "Alice") {
		t.Fatalf("host role not carried over")
	}
	snap, _ := d.Get("room1")
	if snap.Participants[0] != "Alice" {
		t.Fatalf("join order slot lost: %v", snap.Participants)
	}
	if sink.current["Alice"] != "room1" || sink.current["U1"] != "" {
		t.Fatalf("bindings not migrated: %v", sink.current)
	}

	if res := d.Leave("room1", "Alice"); !res.Left {
		t.Fatalf("renamed member cannot leave under the new name")
	}
	if res := d.Leave("room1", "U1"); res.Left {
		t.Fatalf("old name still a member after rename")
	}
}

func TestRenameMember_CollapsesOntoExistingName(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")

	d.RenameMember("room1", "U1", "U2")

	snap, _ := d.Get("room1")
	if len(snap.Participants) != 1 || snap.Participants[0] != "U2" {
		t.Fatalf("slots not collapsed: %v", snap.Participants)
	}
	if !d.IsHost("room1", "U2") {
		t.Fatalf("host not carried onto the surviving name")
	}
}

func TestLeave_LastParticipantDeletesMeeting(t *testing.T) {
	sink := newSinkRecorder()
	d := NewDirectory(sink, nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")

	res := d.Leave("room1", "U2")
	if !res.Left || res.MeetingDeleted || res.HostChanged {
		t.Fatalf("unexpected first leave result: %+v", res)
	}
	res = d.Leave("room1", "U1")
	if !res.Left || !res.MeetingDeleted {
		t.Fatalf("last leave should delete meeting: %+v", res)
	}
	if _, ok := d.Get("room1"); ok {
		t.Fatalf("meeting still present after last leave")
	}
	if sink.current["U1"] != "" || sink.current["U2"] != "" {
		t.Fatalf("bindings not cleared: %v", sink.current)
	}
}

func TestLeave_HostFailoverIsDeterministic(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")
	d.Join("room1", "U3")

	res := d.Leave("room1", "U1")
	if !res.HostChanged || res.NewHost != "U2" {
		t.Fatalf("expected failover to first remaining joiner U2, got %+v", res)
	}
	if !d.IsHost("room1", "U2") {
		t.Fatalf("directory host not updated")
	}

	snap, _ := d.Get("room1")
	if snap.Host != "U2" || len(snap.Participants) != 2 {
		t.Fatalf("unexpected snapshot after failover: %+v", snap)
	}
}

func TestLeave_NonHostDoesNotChangeHost(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")

	res := d.Leave("room1", "U2")
	if res.HostChanged {
		t.Fatalf("host should be unchanged: %+v", res)
	}
	if !d.IsHost("room1", "U1") {
		t.Fatalf("host lost")
	}
}

func TestLeave_UnknownMeetingOrMember(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	if res := d.Leave("nope", "U1"); res.Left {
		t.Fatalf("leave on unknown meeting should be a no-op")
	}
	d.CreateOrGet("room1", "U1")
	if res := d.Leave("room1", "U9"); res.Left {
		t.Fatalf("leave by non-member should be a no-op")
	}
}

func TestEnd_HostGated(t *testing.T) {
	sink := newSinkRecorder()
	d := NewDirectory(sink, nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")

	if ended, _ := d.End("room1", "U2"); ended {
		t.Fatalf("non-host ended the meeting")
	}
	if _, ok := d.Get("room1"); !ok {
		t.Fatalf("meeting deleted by non-host end")
	}

	ended, members := d.End("room1", "U1")
	if !ended || len(members) != 2 {
		t.Fatalf("host end failed: ended=%v members=%v", ended, members)
	}
	if _, ok := d.Get("room1"); ok {
		t.Fatalf("meeting survived host end")
	}
	if sink.current["U1"] != "" || sink.current["U2"] != "" {
		t.Fatalf("member bindings not cleared on end: %v", sink.current)
	}
}

func TestEnd_UnknownMeeting(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	if ended, _ := d.End("nope", "U1"); ended {
		t.Fatalf("ending an unknown meeting should be a no-op")
	}
}

func TestHostAlwaysMember(t *testing.T) {
	d := NewDirectory(newSinkRecorder(), nil)
	d.CreateOrGet("room1", "U1")
	d.Join("room1", "U2")
	d.Join("room1", "U3")
	d.Leave("room1", "U1")
	d.Leave("room1", "U2")

	snap, ok := d.Get("room1")
	if !ok {
		t.Fatalf("meeting should survive with one member")
	}
	found := false
	for _, p := range snap.Participants {
		if p == snap.Host {
			found = true
		}
	}
	if !found {
		t.Fatalf("host %q not in participants %v", snap.Host, snap.Participants)
	}
}

package relay

import (
	"testing"
)

func TestGlobal_ExcludesSenderAndClosed(t *testing.T) {
	r := newRig(t)
	sender := r.connect("U1")
	peer := r.connect("U2")
	gone := r.connect("U3")
	gone.open = false

	sent := r.bcast.Global([]byte("hello"), sender)
	if sent != 1 {
		t.Fatalf("expected 1 delivery, got %d", sent)
	}
	if len(sender.messages()) != 0 {
		t.Fatalf("sender received its own broadcast")
	}
	if len(peer.messages()) != 1 || peer.messages()[0] != "hello" {
		t.Fatalf("peer messages: %v", peer.messages())
	}
	if len(gone.messages()) != 0 {
		t.Fatalf("closed connection received a broadcast")
	}
}

func TestToMeeting_OnlyCurrentMembers(t *testing.T) {
	r := newRig(t)
	sender := r.connect("U1")
	member := r.connect("U2")
	outsider := r.connect("U3")
	r.dir.CreateOrGet("room1", "U1")
	r.dir.Join("room1", "U2")

	sent := r.bcast.ToMeeting([]byte("msg"), "room1", sender)
	if sent != 1 {
		t.Fatalf("expected 1 delivery, got %d", sent)
	}
	if len(member.messages()) != 1 {
		t.Fatalf("member did not receive broadcast")
	}
	if len(outsider.messages()) != 0 {
		t.Fatalf("outsider received meeting broadcast")
	}
	if len(sender.messages()) != 0 {
		t.Fatalf("sender received its own broadcast")
	}
}

func TestToMeeting_UnknownMeetingIsNoop(t *testing.T) {
	r := newRig(t)
	conn := r.connect("U1")
	if sent := r.bcast.ToMeeting([]byte("msg"), "nope", nil); sent != 0 {
		t.Fatalf("expected 0 deliveries, got %d", sent)
	}
	if len(conn.messages()) != 0 {
		t.Fatalf("broadcast to unknown meeting delivered something")
	}
}

func TestToMeeting_EmptyMeetingIDIsNoop(t *testing.T) {
	r := newRig(t)
	lobby := r.connect("U1")
	if sent := r.bcast.ToMeeting([]byte("msg"), "", nil); sent != 0 {
		t.Fatalf("expected 0 deliveries, got %d", sent)
	}
	if len(lobby.messages()) != 0 {
		t.Fatalf("empty meeting id matched lobby connections: %v", lobby.messages())
	}
}

func TestFanout_FailureIsolation(t *testing.T) {
	r := newRig(t)
	broken := r.connect("U1")
	broken.failSends = true
	healthy := r.connect("U2")

	sent := r.bcast.Global([]byte("msg"), nil)
	if sent != 1 {
		t.Fatalf("expected 1 successful delivery, got %d", sent)
	}
	if len(healthy.messages()) != 1 {
		t.Fatalf("failure on one recipient aborted the rest")
	}
	if broken.IsOpen() != true {
		t.Fatalf("broadcast engine must not close failing connections")
	}
}

func TestDirect(t *testing.T) {
	r := newRig(t)
	target := r.connect("U2")
	r.connect("U3")

	if !r.bcast.Direct("U2", []byte("hi")) {
		t.Fatalf("direct send to connected target failed")
	}
	if len(target.messages()) != 1 {
		t.Fatalf("target did not receive direct send")
	}
	if r.bcast.Direct("U9", []byte("hi")) {
		t.Fatalf("direct send to unknown target reported success")
	}
}

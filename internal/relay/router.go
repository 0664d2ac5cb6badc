package relay

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-meet/signaling/internal/meeting"
	"github.com/aura-meet/signaling/internal/protocol"
	"github.com/aura-meet/signaling/internal/registry"
)

// MeetingLogger persists meeting lifecycle events. Optional; a nil logger
// disables history.
type MeetingLogger interface {
	LogCreated(ctx context.Context, meetingID, host string) error
	LogEnded(ctx context.Context, meetingID, actor, reason string) error
	LogHostChange(ctx context.Context, meetingID, newHost string) error
}

// Router classifies inbound payloads and dispatches them to the directory,
// broadcast engine, and signaling relay.
type Router struct {
	registry    *registry.Registry
	directory   *meeting.Directory
	broadcaster *Broadcaster
	signaler    *Signaler
	meetingLog  MeetingLogger
	clock       registry.Clock
	logger      *zap.Logger
}

// NewRouter wires the router. meetingLog may be nil.
func NewRouter(
	reg *registry.Registry,
	dir *meeting.Directory,
	b *Broadcaster,
	s *Signaler,
	meetingLog MeetingLogger,
	clock registry.Clock,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = registry.SystemClock()
	}
	return &Router{
		registry:    reg,
		directory:   dir,
		broadcaster: b,
		signaler:    s,
		meetingLog:  meetingLog,
		clock:       clock,
		logger:      logger,
	}
}

// Route handles one inbound payload from a connection. Every message counts
// as activity before anything else happens.
func (r *Router) Route(conn registry.Conn, raw []byte) {
	r.registry.Touch(conn)

	msg := protocol.Parse(raw)
	switch msg.Kind {
	case protocol.KindSignal:
		r.routeSignal(conn, msg.Signal, raw)
	case protocol.KindDelimited:
		r.routeDelimited(conn, msg.Delimited, raw)
	default:
		// Unknown framing: relay the bytes to everyone else untouched.
		r.broadcaster.Global(raw, conn)
	}
}

func (r *Router) routeDelimited(conn registry.Conn, d *protocol.Delimited, raw []byte) {
	if d.SenderID != "" && d.SenderID != protocol.ServerSender {
		r.claimName(conn, d.SenderID)
	}

	switch d.Type {
	case protocol.TypeChat, protocol.TypeChatMessage:
		r.broadcaster.ToMeeting(raw, d.MeetingID, conn)

	case protocol.TypeMeetingCreated, protocol.TypeMeetingAvailable:
		_, created, prev := r.directory.CreateOrGet(d.MeetingID, d.SenderID)
		r.announceHop(d.SenderID, prev)
		if created {
			r.logCreated(d.MeetingID, d.SenderID)
		}
		r.broadcaster.Global(raw, conn)

	case protocol.TypeUserJoined:
		snap, created, prev := r.directory.Join(d.MeetingID, d.SenderID)
		r.announceHop(d.SenderID, prev)
		if created {
			r.logCreated(d.MeetingID, d.SenderID)
		}
		r.broadcaster.ToMeeting(raw, d.MeetingID, conn)
		r.sendParticipantList(conn, snap)

	case protocol.TypeUserLeft:
		res := r.directory.Leave(d.MeetingID, d.SenderID)
		r.broadcaster.ToMeeting(raw, d.MeetingID, conn)
		r.afterLeave(d.MeetingID, d.SenderID, res)

	case protocol.TypeMeetingEnded:
		// End is the authority: it re-checks host under the directory lock, so
		// nothing is announced for a request the host lost the race on.
		ended, members := r.directory.End(d.MeetingID, d.SenderID)
		if !ended {
			return // silent no-op for non-hosts and unknown meetings
		}
		for _, id := range members {
			if id == d.SenderID {
				continue
			}
			r.broadcaster.Direct(id, raw)
		}
		r.logEnded(d.MeetingID, d.SenderID, "ended by host")

	case protocol.TypeAudioStatus:
		r.handleAudioStatus(conn, d, raw)

	case protocol.TypeVideoStatus:
		r.handleVideoStatus(conn, d, raw)

	case protocol.TypeAudioControl, protocol.TypeVideoControl:
		r.handleHostControl(conn, d, raw)

	case protocol.TypeListMeetings:
		r.sendMeetingList(conn)

	case protocol.TypePing:
		_ = conn.Send(protocol.Pong(d.MeetingID, r.clock.Now().UnixMilli()))

	default:
		// Unrecognized type: same fallback as unparseable frames.
		r.broadcaster.Global(raw, conn)
	}
}

func (r *Router) routeSignal(conn registry.Conn, sig *protocol.Signal, raw []byte) {
	switch sig.Type {
	case protocol.SignalOffer, protocol.SignalAnswer, protocol.SignalICECandidate:
		from := sig.FromUserID
		if from == "" {
			if info, ok := r.registry.Get(conn); ok {
				from = info.DisplayID
			}
		}
		r.signaler.Relay(sig.Type, from, sig.TargetUserID, sig.SDP, sig.Candidate)

	case protocol.SignalReady:
		r.registry.SetWebRTCReady(conn, true)

	case protocol.SignalPing:
		meetingID := sig.MeetingID
		if meetingID == "" {
			if info, ok := r.registry.Get(conn); ok {
				meetingID = info.CurrentMeetingID
			}
		}
		_ = conn.Send(protocol.Pong(meetingID, r.clock.Now().UnixMilli()))

	default:
		r.broadcaster.Global(raw, conn)
	}
}

// handleAudioStatus updates the sender's mute flag by keyword and announces
// real state changes. "unmuted" must be checked before "muted".
func (r *Router) handleAudioStatus(conn registry.Conn, d *protocol.Delimited, raw []byte) {
	prev, known := r.registry.Get(conn)
	content := strings.ToLower(d.Content)

	var muted, recognized bool
	switch {
	case strings.Contains(content, "unmuted"):
		muted, recognized = false, true
	case strings.Contains(content, "muted"):
		muted, recognized = true, true
	}
	if recognized {
		r.registry.SetAudioMuted(conn, muted)
	}
	r.broadcaster.ToMeeting(raw, d.MeetingID, conn)

	if recognized && known && prev.AudioMuted != muted {
		tag := "AUDIO_UNMUTED"
		if muted {
			tag = "AUDIO_MUTED"
		}
		r.broadcaster.ToMeeting(protocol.System(d.MeetingID, tag+"|"+d.SenderID), d.MeetingID, conn)
	}
}

// handleVideoStatus updates the sender's video flag by keyword and announces
// real state changes.
func (r *Router) handleVideoStatus(conn registry.Conn, d *protocol.Delimited, raw []byte) {
	prev, known := r.registry.Get(conn)
	content := strings.ToLower(d.Content)

	var on, recognized bool
	switch {
	case strings.Contains(content, "started"):
		on, recognized = true, true
	case strings.Contains(content, "stopped"):
		on, recognized = false, true
	}
	if recognized {
		r.registry.SetVideoOn(conn, on)
	}
	r.broadcaster.ToMeeting(raw, d.MeetingID, conn)

	if recognized && known && prev.VideoOn != on {
		tag := "VIDEO_STOPPED"
		if on {
			tag = "VIDEO_STARTED"
		}
		r.broadcaster.ToMeeting(protocol.System(d.MeetingID, tag+"|"+d.SenderID), d.MeetingID, conn)
	}
}

// handleHostControl gates mute-all/video control behind host authority. The
// rejection reply is the only error a client ever sees.
func (r *Router) handleHostControl(conn registry.Conn, d *protocol.Delimited, raw []byte) {
	if !r.directory.IsHost(d.MeetingID, d.SenderID) {
		reply := protocol.Delim(protocol.TypeError, d.MeetingID, protocol.ServerSender,
			"NOT_HOST|only the host can send "+d.Type)
		_ = conn.Send(reply)
		return
	}

	if d.Type == protocol.TypeVideoControl {
		switch {
		case strings.Contains(d.Content, "START_RECORDING"):
			r.registry.SetRecording(conn, true)
		case strings.Contains(d.Content, "STOP_RECORDING"):
			r.registry.SetRecording(conn, false)
		}
	}
	r.broadcaster.ToMeeting(raw, d.MeetingID, conn)
}

// Disconnect funnels every teardown (organic close, transport error, liveness
// eviction) through one path: directory leave with departure broadcasts, then
// registry unregister, then the global disconnect announcement.
func (r *Router) Disconnect(conn registry.Conn, reason string) {
	info, ok := r.registry.Get(conn)
	if !ok {
		return
	}
	if info.CurrentMeetingID != "" {
		res := r.directory.Leave(info.CurrentMeetingID, info.DisplayID)
		departure := protocol.Delim(protocol.TypeUserLeft, info.CurrentMeetingID, info.DisplayID, "left the meeting")
		r.broadcaster.ToMeeting(departure, info.CurrentMeetingID, conn)
		r.afterLeave(info.CurrentMeetingID, info.DisplayID, res)
	}
	r.registry.Unregister(conn)
	r.broadcaster.Global(
		protocol.Delim(protocol.TypeDisconnected, protocol.GlobalMeetingID, protocol.ServerSender,
			info.DisplayID+" disconnected"),
		conn,
	)
	r.logger.Info("connection closed",
		zap.String("display_id", info.DisplayID),
		zap.String("reason", reason),
	)
}

// Shutdown announces the stop to every client and closes all connections.
func (r *Router) Shutdown() {
	r.broadcaster.Global(protocol.System(protocol.GlobalMeetingID, "Server is shutting down"), nil)
	for _, e := range r.registry.All() {
		e.Conn.CloseWithReason("server shutting down")
	}
}

// claimName records the sender id a connection writes on the wire. A rename
// mid-meeting migrates the directory membership along with it, so the member
// set never holds a name no live connection answers to.
func (r *Router) claimName(conn registry.Conn, name string) {
	info, ok := r.registry.Get(conn)
	r.registry.Rename(conn, name)
	if ok && info.DisplayID != name && info.CurrentMeetingID != "" {
		r.directory.RenameMember(info.CurrentMeetingID, info.DisplayID, name)
	}
}

// announceHop broadcasts the implicit departure when a participant moves
// straight from one meeting into another.
func (r *Router) announceHop(displayID string, prev meeting.LeaveResult) {
	if !prev.Left {
		return
	}
	departure := protocol.Delim(protocol.TypeUserLeft, prev.MeetingID, displayID, "left the meeting")
	r.broadcaster.ToMeeting(departure, prev.MeetingID, nil)
	r.afterLeave(prev.MeetingID, displayID, prev)
}

func (r *Router) afterLeave(meetingID, displayID string, res meeting.LeaveResult) {
	if !res.Left {
		return
	}
	if res.HostChanged {
		r.broadcaster.ToMeeting(protocol.System(meetingID, "HOST_CHANGED|"+res.NewHost), meetingID, nil)
		if r.meetingLog != nil {
			_ = r.meetingLog.LogHostChange(context.Background(), meetingID, res.NewHost)
		}
	}
	if res.MeetingDeleted {
		r.logEnded(meetingID, displayID, "last participant left")
	}
}

func (r *Router) sendParticipantList(conn registry.Conn, snap meeting.Snapshot) {
	body, err := protocol.Notify(protocol.NotifyParticipantList, snap)
	if err != nil {
		r.logger.Warn("participant list encode failed", zap.Error(err))
		return
	}
	_ = conn.Send(body)
}

func (r *Router) sendMeetingList(conn registry.Conn) {
	body, err := protocol.Notify(protocol.NotifyMeetingList, r.directory.Snapshots())
	if err != nil {
		r.logger.Warn("meeting list encode failed", zap.Error(err))
		return
	}
	_ = conn.Send(body)
}

func (r *Router) logCreated(meetingID, host string) {
	if r.meetingLog != nil {
		_ = r.meetingLog.LogCreated(context.Background(), meetingID, host)
	}
}

func (r *Router) logEnded(meetingID, actor, reason string) {
	if r.meetingLog != nil {
		_ = r.meetingLog.LogEnded(context.Background(), meetingID, actor, reason)
	}
}

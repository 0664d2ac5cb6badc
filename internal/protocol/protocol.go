// Package protocol decodes and encodes the two wire encodings the relay
// speaks: JSON objects carrying a "type" field and the legacy four-field
// pipe-delimited frame TYPE|MEETING_ID|SENDER_ID|CONTENT.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Pipe-delimited message types.
const (
	TypeChat             = "CHAT"
	TypeChatMessage      = "CHAT_MESSAGE"
	TypeMeetingCreated   = "MEETING_CREATED"
	TypeMeetingAvailable = "MEETING_AVAILABLE"
	TypeUserJoined       = "USER_JOINED"
	TypeUserLeft         = "USER_LEFT"
	TypeMeetingEnded     = "MEETING_ENDED"
	TypeAudioStatus      = "AUDIO_STATUS"
	TypeVideoStatus      = "VIDEO_STATUS"
	TypeAudioControl     = "AUDIO_CONTROL"
	TypeVideoControl     = "VIDEO_CONTROL"
	TypeListMeetings     = "LIST_MEETINGS"
	TypePing             = "PING"
	TypePong             = "PONG"
	TypeSystem           = "SYSTEM"
	TypeError            = "ERROR"
	TypeConnected        = "CONNECTED"
	TypeDisconnected     = "DISCONNECTED"
)

// JSON signaling message types (client-originated).
const (
	SignalOffer        = "WEBRTC_OFFER"
	SignalAnswer       = "WEBRTC_ANSWER"
	SignalICECandidate = "WEBRTC_ICE_CANDIDATE"
	SignalReady        = "WEBRTC_READY"
	SignalPing         = "PING"
)

// JSON notification types (server-originated).
const (
	NotifyICEServers        = "ICE_SERVERS"
	NotifyMeetingList       = "MEETING_LIST"
	NotifyParticipantList   = "PARTICIPANT_LIST"
	NotifyConnectionSuccess = "CONNECTION_SUCCESS"
	NotifyNetworkInfo       = "NETWORK_INFO"
)

// Well-known wire identities.
const (
	ServerSender    = "Server"
	GlobalMeetingID = "global"
)

// Kind discriminates the parsed message union.
type Kind int

const (
	// KindSignal is a JSON object with a "type" field.
	KindSignal Kind = iota
	// KindDelimited is a well-formed four-field pipe frame.
	KindDelimited
	// KindOpaque is anything else; relayed unparsed.
	KindOpaque
)

// Signal is a decoded JSON message.
type Signal struct {
	Type         string          `json:"type"`
	MeetingID    string          `json:"meetingId,omitempty"`
	FromUserID   string          `json:"fromUserId,omitempty"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	SDP          string          `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// Delimited is a decoded pipe frame. Content keeps any embedded '|'.
type Delimited struct {
	Type      string
	MeetingID string
	SenderID  string
	Content   string
}

// Message is the tagged union produced by Parse. Raw always holds the
// original bytes for fallback re-broadcast.
type Message struct {
	Kind      Kind
	Signal    *Signal
	Delimited *Delimited
	Raw       []byte
}

// Parse classifies one inbound payload. JSON-object decode is attempted
// first; then the pipe split capped at four fields; too few fields yields an
// opaque message.
func Parse(raw []byte) Message {
	msg := Message{Raw: raw}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var sig Signal
		if err := json.Unmarshal(trimmed, &sig); err == nil && sig.Type != "" {
			msg.Kind = KindSignal
			msg.Signal = &sig
			return msg
		}
	}

	parts := strings.SplitN(string(raw), "|", 4)
	if len(parts) < 4 {
		msg.Kind = KindOpaque
		return msg
	}
	msg.Kind = KindDelimited
	msg.Delimited = &Delimited{
		Type:      parts[0],
		MeetingID: parts[1],
		SenderID:  parts[2],
		Content:   parts[3],
	}
	return msg
}

// Delim encodes a pipe frame.
func Delim(typ, meetingID, senderID, content string) []byte {
	return []byte(typ + "|" + meetingID + "|" + senderID + "|" + content)
}

// System encodes a server SYSTEM frame: SYSTEM|meetingId|Server|detail.
// Callers compose EVENT_TAG|detail content where an event tag applies.
func System(meetingID, detail string) []byte {
	return Delim(TypeSystem, meetingID, ServerSender, detail)
}

// Pong encodes the PING reply echoing the meeting id with a server timestamp.
func Pong(meetingID string, unixMillis int64) []byte {
	return Delim(TypePong, meetingID, ServerSender, fmt.Sprintf("%d", unixMillis))
}

// Envelope is the server-originated JSON notification shape.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Notify encodes a {type, data} JSON notification.
func Notify(typ string, data interface{}) ([]byte, error) {
	body, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s notification: %w", typ, err)
	}
	return body, nil
}

// WrapSignal encodes the relayed form of a signaling message: the original
// type plus the sender identity, sdp/candidate passed through untouched.
func WrapSignal(typ, fromUserID string, sdp string, candidate json.RawMessage) ([]byte, error) {
	body, err := json.Marshal(Signal{
		Type:       typ,
		FromUserID: fromUserID,
		SDP:        sdp,
		Candidate:  candidate,
	})
	if err != nil {
		return nil, fmt.Errorf("encode relayed %s: %w", typ, err)
	}
	return body, nil
}

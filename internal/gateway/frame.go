package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound frame types accepted by the dispatch loop.
const (
	FrameJoin                   = "join"
	FrameLeave                  = "leave"
	FrameSignal                 = "signal"
	FrameScreenSignal           = "screen_signal"
	FrameScreenShareRequest     = "screen_share_request"
	FrameScreenShareStopRequest = "screen_share_stop_request"
	FrameScreenShareStop        = "screen_share_stop"
	FrameUserStatusUpdate       = "user_status_update"
	FrameChatMessage            = "chat_message"
	FramePong                   = "pong"
)

// Frame is the envelope for every inbound control message. The type field selects the handler; the remaining fields
// are populated per type and left zero otherwise. Sender identity always comes from the Session, never from the
// frame body.
type Frame struct {
	Type        string          `json:"type"`
	Room        string          `json:"room"`
	Target      string          `json:"target"`
	Data        json.RawMessage `json:"data"`
	IsMicMuted  bool            `json:"is_mic_muted"`
	IsDeafened  bool            `json:"is_deafened"`
	IsStreaming bool            `json:"is_streaming"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type"`
}

// Peer identifies a room member in rosters and join/leave notifications.
type Peer struct {
	Username string    `json:"username"`
	UserUUID uuid.UUID `json:"user_uuid"`
}

// Presence is the published state of one room member. StreamingTo lists the viewers that have requested this
// member's screen share, in request order. It must be empty whenever IsStreaming is false.
type Presence struct {
	UserUUID    uuid.UUID   `json:"user_uuid"`
	IsMicMuted  bool        `json:"is_mic_muted"`
	IsDeafened  bool        `json:"is_deafened"`
	IsStreaming bool        `json:"is_streaming"`
	StreamingTo []uuid.UUID `json:"streaming_to"`
}

func (p Presence) clone() Presence {
	c := p
	c.StreamingTo = append([]uuid.UUID(nil), p.StreamingTo...)
	return c
}

// NewJoinedFrame confirms a join to the caller.
func NewJoinedFrame(room string) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}{"joined", room})
}

// NewPeersFrame carries the roster of a room's other members to a freshly joined caller.
func NewPeersFrame(peers []Peer) ([]byte, error) {
	if peers == nil {
		peers = []Peer{}
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Peers []Peer `json:"peers"`
	}{"peers", peers})
}

// NewPeerJoinedFrame announces an arrival to the existing members of a room.
func NewPeerJoinedFrame(p Peer) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Peer
	}{Type: "peer_joined", Peer: p})
}

// NewPeerLeftFrame announces a departure to the remaining members of a room.
func NewPeerLeftFrame(p Peer) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Peer
	}{Type: "peer_left", Peer: p})
}

// NewSignalFrame relays an opaque signaling payload to its target. frameType is "signal" or "screen_signal"; the
// payload is forwarded untouched.
func NewSignalFrame(frameType string, sender uuid.UUID, data json.RawMessage) ([]byte, error) {
	return json.Marshal(struct {
		Type   string          `json:"type"`
		Sender uuid.UUID       `json:"sender"`
		Data   json.RawMessage `json:"data"`
	}{frameType, sender, data})
}

// NewScreenShareRequestFrame asks the target to start sending its screen share to the given viewer.
func NewScreenShareRequestFrame(viewer uuid.UUID) ([]byte, error) {
	return json.Marshal(struct {
		Type     string    `json:"type"`
		UserUUID uuid.UUID `json:"user_uuid"`
	}{"screen_share_request", viewer})
}

// NewScreenShareStopFrame announces that a peer stopped sharing its screen.
func NewScreenShareStopFrame(peer uuid.UUID, username string) ([]byte, error) {
	return json.Marshal(struct {
		Type     string    `json:"type"`
		PeerUUID uuid.UUID `json:"peer_uuid"`
		Username string    `json:"username"`
	}{"screen_share_stop", peer, username})
}

// NewUserStatusUpdateFrame broadcasts one member's presence flags. Teardown sends room prefixed with "!" and all
// flags false, which clients interpret as a removal event.
func NewUserStatusUpdateFrame(room string, p Peer, presence Presence) ([]byte, error) {
	return json.Marshal(struct {
		Type        string    `json:"type"`
		Room        string    `json:"room"`
		UserUUID    uuid.UUID `json:"user_uuid"`
		Username    string    `json:"username"`
		IsMicMuted  bool      `json:"is_mic_muted"`
		IsDeafened  bool      `json:"is_deafened"`
		IsStreaming bool      `json:"is_streaming"`
	}{"user_status_update", room, p.UserUUID, p.Username, presence.IsMicMuted, presence.IsDeafened, presence.IsStreaming})
}

// NewUserStatusTotalFrame carries a full snapshot of every room's presence table, keyed by room then username. Sent
// once per connection as the initial sync; everything after is delta events.
func NewUserStatusTotalFrame(statuses map[string]map[string]Presence) ([]byte, error) {
	if statuses == nil {
		statuses = map[string]map[string]Presence{}
	}
	return json.Marshal(struct {
		Type     string                         `json:"type"`
		Statuses map[string]map[string]Presence `json:"statuses"`
	}{"user_status_total", statuses})
}

// NewChatMessageFrame broadcasts a chat message to every session, sender included.
func NewChatMessageFrame(content, messageType string, author Peer, at time.Time) ([]byte, error) {
	return json.Marshal(struct {
		Type        string    `json:"type"`
		Content     string    `json:"content"`
		MessageType string    `json:"message_type"`
		UserUUID    uuid.UUID `json:"user_uuid"`
		Username    string    `json:"username"`
		Datetime    string    `json:"datetime"`
	}{"chat_message", content, messageType, author.UserUUID, author.Username, at.UTC().Format(time.RFC3339)})
}

// NewPingFrame is the liveness probe emitted by the pinger; clients answer with a pong frame.
func NewPingFrame() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{"ping"})
}

// NewErrorFrame reports a recoverable protocol error to the caller without ending the session.
func NewErrorFrame(message string) ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{"error", message})
}

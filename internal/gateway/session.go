package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message. Signaling payloads (SDP
	// offers with many candidates) can run long, so the limit is generous.
	maxMessageSize = 64 * 1024

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// sendBuffer bounds the per-session outbound queue. A full buffer drops the frame rather than stalling the hub.
	sendBuffer = 256
)

// Session represents a single WebSocket connection. Identity is fixed at upgrade time; only the current room changes
// over the session's lifetime. Each session runs two goroutines (readPump and writePump) and receives outbound
// frames through its send channel.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	userUUID uuid.UUID
	username string

	mu     sync.RWMutex
	room   string
	closed bool

	closeOnce    sync.Once
	teardownOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, userUUID uuid.UUID, username string, logger zerolog.Logger) *Session {
	return &Session{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		log:      logger.With().Stringer("user_uuid", userUUID).Str("username", username).Logger(),
		userUUID: userUUID,
		username: username,
	}
}

// Peer returns the session's identity in roster form.
func (s *Session) Peer() Peer {
	return Peer{Username: s.username, UserUUID: s.userUUID}
}

// Room returns the name of the room the session is currently joined to, or "" when not in a room. Handlers re-read
// this on every frame rather than capturing it, so a racing leave is observed.
func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) setRoom(room string) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

// readPump reads frames from the WebSocket connection and routes them by type. It runs on the upgrade goroutine and
// is responsible for triggering teardown when the read loop exits.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.log.Debug().Err(err).Msg("Malformed frame, closing session")
			return
		}

		switch frame.Type {
		case FrameJoin:
			s.hub.handleJoin(s, frame.Room)
		case FrameLeave:
			s.hub.handleLeave(s)
		case FrameSignal:
			s.hub.handleSignal(s, FrameSignal, frame.Target, frame.Data)
		case FrameScreenSignal:
			s.hub.handleSignal(s, FrameScreenSignal, frame.Target, frame.Data)
		case FrameScreenShareRequest:
			s.hub.handleScreenShareRequest(s, frame.Target)
		case FrameScreenShareStopRequest:
			s.hub.handleScreenShareStopRequest(s, frame.Target)
		case FrameScreenShareStop:
			s.hub.handleScreenShareStop(s)
		case FrameUserStatusUpdate:
			s.hub.handleStatusUpdate(s, frame.IsMicMuted, frame.IsDeafened, frame.IsStreaming)
		case FrameChatMessage:
			s.hub.handleChatMessage(s, frame.Content, frame.MessageType)
		case FramePong:
			// Liveness reply, nothing to do.
		default:
			s.log.Debug().Str("frame_type", frame.Type).Msg("Unknown frame type ignored")
		}
	}
}

// writePump writes messages from the send channel to the WebSocket connection. It runs in its own goroutine and
// exits when the send channel is closed.
func (s *Session) writePump() {
	defer func() { _ = s.conn.Close() }()

	for msg := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

// enqueue queues a frame for delivery and reports whether it was accepted. A full send buffer drops the frame; the
// connection itself is left for its own read side to reap, so one slow peer never stalls a fan-out. Broadcasters
// fan out against snapshots taken before teardown may have run, so the send must be guarded against a concurrently
// closed channel: the closed flag and the send share the session mutex.
func (s *Session) enqueue(msg []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		s.log.Warn().Msg("Session send buffer full, dropping frame")
		return false
	}
}

// closeSend closes the send channel exactly once, releasing the write pump. The closed flag is raised under the
// session mutex first, so no enqueue holding a stale fan-out snapshot can send on the closed channel.
func (s *Session) closeSend() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.send)
	})
}

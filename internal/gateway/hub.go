package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/media"
	"github.com/parley-chat/parley-server/internal/message"
	"github.com/parley-chat/parley-server/internal/room"
	"github.com/parley-chat/parley-server/internal/user"
)

// opTimeout bounds store and reconnect-buffer calls made from frame handlers.
const opTimeout = 5 * time.Second

// roomState is the runtime state of one voice room: the member sessions and a parallel presence table keyed by
// username. The two are mutated together under the hub lock, so membership and presence never drift apart. Empty
// rooms are pruned.
type roomState struct {
	members  map[*Session]struct{}
	presence map[string]*Presence
}

// Hub is the signaling core: the session registry, the room registry, and every frame handler the dispatch loop
// invokes. All shared state lives behind one coarse mutex; fan-out sends happen outside it against snapshots taken
// inside it.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	byUser   map[uuid.UUID][]*Session
	rooms    map[string]*roomState

	catalog   room.Repository
	messages  message.Repository
	storage   media.StorageProvider
	reconnect *ReconnectStore
	sanitizer *bluemonday.Policy

	pingInterval time.Duration
	log          zerolog.Logger
}

// NewHub creates the signaling hub.
func NewHub(
	catalog room.Repository,
	messages message.Repository,
	storage media.StorageProvider,
	reconnect *ReconnectStore,
	pingInterval time.Duration,
	logger zerolog.Logger,
) *Hub {
	return &Hub{
		sessions:     make(map[*Session]struct{}),
		byUser:       make(map[uuid.UUID][]*Session),
		rooms:        make(map[string]*roomState),
		catalog:      catalog,
		messages:     messages,
		storage:      storage,
		reconnect:    reconnect,
		sanitizer:    bluemonday.StrictPolicy(),
		pingInterval: pingInterval,
		log:          logger.With().Str("component", "gateway").Logger(),
	}
}

// ServeWebSocket runs a session for an upgraded connection whose identity has already been resolved against the user
// store. It registers the session, restores room state from the reconnect buffer when present, sends the initial
// presence snapshot, and then blocks in the dispatch loop until the connection dies.
func (h *Hub) ServeWebSocket(conn *websocket.Conn, u *user.User) {
	s := newSession(h, conn, u.UUID, u.Username, h.log)
	h.register(s)
	go s.writePump()

	h.rehydrate(s)
	h.sendInitialSync(s)

	s.log.Info().Msg("Session connected")
	s.readPump()
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.byUser[s.userUUID] = append(h.byUser[s.userUUID], s)
	h.mu.Unlock()
}

// unregister performs session teardown exactly once: registry removal, room detach with the departure broadcasts,
// and staging of the reconnect record so a same-identity reopen within the TTL lands back in the room. Teardown is
// keyed on the session, not on registry membership: the pinger may have already dropped the session from the
// registry, and the room detach must still run when the read loop exits.
func (h *Hub) unregister(s *Session) {
	s.teardownOnce.Do(func() { h.teardown(s) })
}

func (h *Hub) teardown(s *Session) {
	h.mu.Lock()
	h.removeFromRegistryLocked(s)
	roomName, rec, remaining, hadRoom := h.detachRoomLocked(s)
	everyone := h.snapshotAllLocked(nil)
	h.mu.Unlock()

	s.closeSend()

	if hadRoom {
		if frame, err := NewPeerLeftFrame(s.Peer()); err == nil {
			h.fanOut(remaining, frame)
		}
		if frame, err := NewUserStatusUpdateFrame("!"+roomName, s.Peer(), Presence{UserUUID: s.userUUID}); err == nil {
			h.fanOut(everyone, frame)
		}

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := h.reconnect.Save(ctx, s.userUUID, Record{
			Room:        roomName,
			IsMicMuted:  rec.IsMicMuted,
			IsDeafened:  rec.IsDeafened,
			IsStreaming: rec.IsStreaming,
			StreamingTo: rec.StreamingTo,
		}); err != nil {
			s.log.Warn().Err(err).Msg("Failed to stage reconnect record")
		}
	}

	s.setRoom("")
	s.log.Info().Msg("Session disconnected")
}

// removeFromRegistryLocked drops a session from the registry maps. The caller must hold the write lock.
func (h *Hub) removeFromRegistryLocked(s *Session) {
	delete(h.sessions, s)
	list := h.byUser[s.userUUID]
	for i, other := range list {
		if other == s {
			h.byUser[s.userUUID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.byUser[s.userUUID]) == 0 {
		delete(h.byUser, s.userUUID)
	}
}

// detachRoomLocked removes a session from its room's members and presence, pruning the room when it empties. It
// returns the room name, a copy of the presence record at detach time, and a snapshot of the remaining members. The
// caller must hold the write lock.
func (h *Hub) detachRoomLocked(s *Session) (string, Presence, []*Session, bool) {
	roomName := s.Room()
	if roomName == "" {
		return "", Presence{}, nil, false
	}

	rs, ok := h.rooms[roomName]
	if !ok {
		return "", Presence{}, nil, false
	}

	var rec Presence
	if p, ok := rs.presence[s.username]; ok {
		rec = p.clone()
	}
	delete(rs.members, s)
	delete(rs.presence, s.username)
	if len(rs.members) == 0 {
		delete(h.rooms, roomName)
	}

	remaining := make([]*Session, 0, len(rs.members))
	for member := range rs.members {
		remaining = append(remaining, member)
	}
	return roomName, rec, remaining, true
}

// attachRoomLocked inserts a session into a room with the given presence record, creating the room lazily. It
// returns the other members and the roster of their identities. The caller must hold the write lock.
func (h *Hub) attachRoomLocked(s *Session, roomName string, p Presence) ([]*Session, []Peer) {
	rs, ok := h.rooms[roomName]
	if !ok {
		rs = &roomState{
			members:  make(map[*Session]struct{}),
			presence: make(map[string]*Presence),
		}
		h.rooms[roomName] = rs
	}

	others := make([]*Session, 0, len(rs.members))
	roster := make([]Peer, 0, len(rs.members))
	for member := range rs.members {
		others = append(others, member)
		roster = append(roster, member.Peer())
	}

	rs.members[s] = struct{}{}
	stored := p.clone()
	rs.presence[s.username] = &stored
	s.setRoom(roomName)
	return others, roster
}

func (h *Hub) snapshotAllLocked(except *Session) []*Session {
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		if s == except {
			continue
		}
		targets = append(targets, s)
	}
	return targets
}

// fanOut delivers a frame to every target, best-effort. Drops are logged inside enqueue and never abort the loop.
func (h *Hub) fanOut(targets []*Session, frame []byte) {
	for _, s := range targets {
		s.enqueue(frame)
	}
}

// rehydrate restores room membership and presence from the reconnect buffer when the same identity reopens a session
// within the TTL. The record is consumed either way. Outstanding screen-share viewer requests are replayed so the
// client re-establishes those streams.
func (h *Hub) rehydrate(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rec, err := h.reconnect.Consume(ctx, s.userUUID)
	if err != nil {
		if !errors.Is(err, ErrNoReconnectRecord) {
			s.log.Warn().Err(err).Msg("Failed to read reconnect buffer")
		}
		return
	}

	p := Presence{
		UserUUID:    s.userUUID,
		IsMicMuted:  rec.IsMicMuted,
		IsDeafened:  rec.IsDeafened,
		IsStreaming: rec.IsStreaming,
		StreamingTo: rec.StreamingTo,
	}
	if !p.IsStreaming {
		p.StreamingTo = nil
	}

	h.mu.Lock()
	others, roster := h.attachRoomLocked(s, rec.Room, p)
	h.mu.Unlock()

	if frame, err := NewPeerJoinedFrame(s.Peer()); err == nil {
		h.fanOut(others, frame)
	}
	if frame, err := NewPeersFrame(roster); err == nil {
		s.enqueue(frame)
	}
	for _, viewer := range p.StreamingTo {
		if frame, err := NewScreenShareRequestFrame(viewer); err == nil {
			s.enqueue(frame)
		}
	}

	s.log.Info().Str("room", rec.Room).Msg("Session rehydrated from reconnect buffer")
}

// sendInitialSync pushes the one-time snapshot of every room's presence table. Everything after this frame is delta
// events.
func (h *Hub) sendInitialSync(s *Session) {
	h.mu.RLock()
	statuses := make(map[string]map[string]Presence, len(h.rooms))
	for name, rs := range h.rooms {
		table := make(map[string]Presence, len(rs.presence))
		for username, p := range rs.presence {
			table[username] = p.clone()
		}
		statuses[name] = table
	}
	h.mu.RUnlock()

	if frame, err := NewUserStatusTotalFrame(statuses); err == nil {
		s.enqueue(frame)
	}
}

// handleJoin moves the session into a room after checking the room exists in the store. Joining while already in a
// room leaves the old room first, with the usual departure broadcasts.
func (h *Hub) handleJoin(s *Session, roomName string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	exists, err := h.catalog.Exists(ctx, roomName)
	if err != nil {
		s.log.Error().Err(err).Str("room", roomName).Msg("Room lookup failed")
		if frame, fErr := NewErrorFrame("room lookup failed"); fErr == nil {
			s.enqueue(frame)
		}
		return
	}
	if !exists {
		if frame, fErr := NewErrorFrame("unknown room: " + roomName); fErr == nil {
			s.enqueue(frame)
		}
		return
	}

	h.handleLeave(s)

	h.mu.Lock()
	others, roster := h.attachRoomLocked(s, roomName, Presence{UserUUID: s.userUUID})
	everyone := h.snapshotAllLocked(nil)
	h.mu.Unlock()

	if frame, err := NewJoinedFrame(roomName); err == nil {
		s.enqueue(frame)
	}
	if frame, err := NewPeerJoinedFrame(s.Peer()); err == nil {
		h.fanOut(others, frame)
	}
	if frame, err := NewPeersFrame(roster); err == nil {
		s.enqueue(frame)
	}
	if frame, err := NewUserStatusUpdateFrame(roomName, s.Peer(), Presence{UserUUID: s.userUUID}); err == nil {
		h.fanOut(everyone, frame)
	}

	s.log.Debug().Str("room", roomName).Msg("Session joined room")
}

// handleLeave detaches the session from its room and broadcasts the departure. No-op when not in a room.
func (h *Hub) handleLeave(s *Session) {
	h.mu.Lock()
	roomName, _, remaining, hadRoom := h.detachRoomLocked(s)
	everyone := h.snapshotAllLocked(nil)
	h.mu.Unlock()

	if !hadRoom {
		return
	}
	s.setRoom("")

	if frame, err := NewPeerLeftFrame(s.Peer()); err == nil {
		h.fanOut(remaining, frame)
	}
	if frame, err := NewUserStatusUpdateFrame("!"+roomName, s.Peer(), Presence{UserUUID: s.userUUID}); err == nil {
		h.fanOut(everyone, frame)
	}

	s.log.Debug().Str("room", roomName).Msg("Session left room")
}

// findTarget returns any one session for the given user, or nil. When a user holds several sessions, the first found
// wins.
func (h *Hub) findTarget(target uuid.UUID) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if list := h.byUser[target]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// handleSignal forwards an opaque signaling payload to the target session. Absent targets are dropped silently; the
// peer is expected to have vanished and retry is the caller's concern.
func (h *Hub) handleSignal(s *Session, frameType, target string, data json.RawMessage) {
	targetUUID, err := uuid.Parse(target)
	if err != nil {
		s.log.Debug().Str("target", target).Msg("Signal with unparseable target dropped")
		return
	}

	t := h.findTarget(targetUUID)
	if t == nil {
		return
	}

	if frame, err := NewSignalFrame(frameType, s.userUUID, data); err == nil {
		t.enqueue(frame)
	}
}

// handleScreenShareRequest forwards a viewing request to the target and records the caller in the target's
// streaming_to list so the request survives a reconnect.
func (h *Hub) handleScreenShareRequest(s *Session, target string) {
	targetUUID, err := uuid.Parse(target)
	if err != nil {
		return
	}

	h.mu.Lock()
	var t *Session
	if list := h.byUser[targetUUID]; len(list) > 0 {
		t = list[0]
	}
	if t != nil {
		if rs, ok := h.rooms[t.Room()]; ok {
			if p, ok := rs.presence[t.username]; ok && !containsUUID(p.StreamingTo, s.userUUID) {
				p.StreamingTo = append(p.StreamingTo, s.userUUID)
			}
		}
	}
	h.mu.Unlock()

	if t == nil {
		return
	}
	if frame, err := NewScreenShareRequestFrame(s.userUUID); err == nil {
		t.enqueue(frame)
	}
}

// handleScreenShareStopRequest withdraws the caller from the target's streaming_to list. No frame is forwarded.
func (h *Hub) handleScreenShareStopRequest(s *Session, target string) {
	targetUUID, err := uuid.Parse(target)
	if err != nil {
		return
	}

	h.mu.Lock()
	if list := h.byUser[targetUUID]; len(list) > 0 {
		t := list[0]
		if rs, ok := h.rooms[t.Room()]; ok {
			if p, ok := rs.presence[t.username]; ok {
				p.StreamingTo = removeUUID(p.StreamingTo, s.userUUID)
			}
		}
	}
	h.mu.Unlock()
}

// handleScreenShareStop tells every other session the caller stopped sharing.
func (h *Hub) handleScreenShareStop(s *Session) {
	h.mu.RLock()
	targets := h.snapshotAllLocked(s)
	h.mu.RUnlock()

	if frame, err := NewScreenShareStopFrame(s.userUUID, s.username); err == nil {
		h.fanOut(targets, frame)
	}
}

// handleStatusUpdate merges the caller's mic/deaf/streaming flags into its presence record and broadcasts the result
// to every session. Frames arriving before any join are no-ops.
func (h *Hub) handleStatusUpdate(s *Session, micMuted, deafened, streaming bool) {
	roomName := s.Room()
	if roomName == "" {
		return
	}

	h.mu.Lock()
	rs, ok := h.rooms[roomName]
	if !ok {
		h.mu.Unlock()
		return
	}
	p, ok := rs.presence[s.username]
	if !ok {
		h.mu.Unlock()
		return
	}
	p.IsMicMuted = micMuted
	p.IsDeafened = deafened
	p.IsStreaming = streaming
	if !streaming {
		p.StreamingTo = nil
	}
	updated := p.clone()
	everyone := h.snapshotAllLocked(nil)
	h.mu.Unlock()

	if frame, err := NewUserStatusUpdateFrame(roomName, s.Peer(), updated); err == nil {
		h.fanOut(everyone, frame)
	}
}

// handleChatMessage relays a chat message to every session, sender included. Text is sanitised and persisted first;
// a store failure aborts the broadcast. Media content was already committed by the upload path, so it is only fanned
// out, stamped with the current time.
func (h *Hub) handleChatMessage(s *Session, content, messageType string) {
	var at time.Time

	switch messageType {
	case message.TypeText:
		content = h.sanitizer.Sanitize(content)
		if content == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		stored, err := h.messages.Add(ctx, message.TypeText, content, s.userUUID)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to persist chat message")
			return
		}
		at = stored.CreatedAt
		h.deleteEvicted(ctx, stored.EvictedKeys)
	case message.TypeMedia:
		at = time.Now()
	default:
		if frame, err := NewErrorFrame("invalid message type: " + messageType); err == nil {
			s.enqueue(frame)
		}
		return
	}

	h.mu.RLock()
	everyone := h.snapshotAllLocked(nil)
	h.mu.RUnlock()

	if frame, err := NewChatMessageFrame(content, messageType, s.Peer(), at); err == nil {
		h.fanOut(everyone, frame)
	}
}

// deleteEvicted unlinks the media files behind evicted history rows. Best-effort; the rows are already gone.
func (h *Hub) deleteEvicted(ctx context.Context, contents []string) {
	for _, c := range contents {
		key := media.KeyFromURL(c)
		if key == "" {
			continue
		}
		if err := h.storage.Delete(ctx, key); err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("Failed to delete evicted media file")
		}
	}
}

// RunPinger emits a ping frame to every session on each tick until the context is cancelled. A session whose send
// buffer rejects the ping is removed from the registry; its connection is left for its own read side to reap.
func (h *Hub) RunPinger(ctx context.Context) error {
	ping, err := NewPingFrame()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.mu.RLock()
			targets := h.snapshotAllLocked(nil)
			h.mu.RUnlock()

			for _, s := range targets {
				if !s.enqueue(ping) {
					h.mu.Lock()
					h.removeFromRegistryLocked(s)
					h.mu.Unlock()
					s.log.Warn().Msg("Session dropped from registry after failed ping")
				}
			}
		}
	}
}

// Shutdown closes every active connection with a Going Away status and clears the registries.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.sessions {
		s.closeSend()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait),
		)
		_ = s.conn.Close()
	}
	h.sessions = make(map[*Session]struct{})
	h.byUser = make(map[uuid.UUID][]*Session)
	h.rooms = make(map[string]*roomState)
	h.log.Info().Msg("Gateway hub shut down")
}

// SessionCount returns the number of currently connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func containsUUID(list []uuid.UUID, id uuid.UUID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func removeUUID(list []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

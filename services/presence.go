package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/metrics"
	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionQueueSize = 256
	mirrorTimeout    = 2 * time.Second

	roleRoomPrefix = "role:"
	userRoomPrefix = "user:"
	podRoomPrefix  = "pod:"
)

var ErrSessionNotFound = errors.New("session not found")

func RoleRoom(role models.Role) string { return roleRoomPrefix + string(role) }
func UserRoom(userID string) string    { return userRoomPrefix + userID }
func PodRoom(id string) string         { return podRoomPrefix + id }

// IsPodRoom reports whether room names an ad-hoc group room that clients
// may join and leave themselves.
func IsPodRoom(room string) bool {
	return strings.HasPrefix(room, podRoomPrefix) && len(room) > len(podRoomPrefix)
}

// Event is one live frame. Name goes on the wire as "type".
type Event struct {
	Name    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventPayload is the body of every request lifecycle event.
type EventPayload struct {
	RequestID     string        `json:"requestId"`
	Type          string        `json:"type"`
	Status        models.Status `json:"status"`
	AudienceRooms []string      `json:"audienceRooms"`
	Message       string        `json:"message"`
}

// Session is a live connection bound to one user. It only carries ids.
type Session struct {
	ID     string
	UserID string
	Role   models.Role

	send   chan Event
	rooms  map[string]struct{}
	closed bool
}

// Events is drained by the connection's write loop. It is closed on
// Disconnect.
func (s *Session) Events() <-chan Event { return s.send }

// PresenceMirror publishes room membership somewhere other instances can
// read it. Implementations must tolerate repeated calls.
type PresenceMirror interface {
	AddOnline(ctx context.Context, room, userID string) error
	RemoveOnline(ctx context.Context, room, userID string) error
}

type mirrorOp struct {
	add    bool
	room   string
	userID string
}

// PresenceRegistry maps live sessions to rooms. A single mutex guards both
// indexes so a session is never visible with partial memberships.
type PresenceRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session

	mirror  PresenceMirror
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type PresenceOption func(*PresenceRegistry)

func WithPresenceMirror(m PresenceMirror) PresenceOption {
	return func(r *PresenceRegistry) { r.mirror = m }
}

func WithPresenceMetrics(m *metrics.Metrics) PresenceOption {
	return func(r *PresenceRegistry) { r.metrics = m }
}

func NewPresenceRegistry(logger *zap.Logger, opts ...PresenceOption) *PresenceRegistry {
	r := &PresenceRegistry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers a session for the user and joins its role room and
// private user room in the same critical section.
func (r *PresenceRegistry) Connect(userID string, role models.Role) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		send:   make(chan Event, sessionQueueSize),
		rooms:  make(map[string]struct{}),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	var ops []mirrorOp
	for _, room := range []string{RoleRoom(role), UserRoom(userID)} {
		if r.joinLocked(s, room) {
			ops = append(ops, mirrorOp{add: true, room: room, userID: userID})
		}
	}
	r.mu.Unlock()

	r.metrics.SessionOpened()
	r.logger.Debug("presence_connected",
		zap.String("session", s.ID), zap.String("user", userID), zap.String("role", string(role)))
	r.syncMirror(ops)
	return s
}

// Join is a no-op when the session is already in room.
func (r *PresenceRegistry) Join(sessionID, room string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	joined := r.joinLocked(s, room)
	r.mu.Unlock()

	if joined {
		r.syncMirror([]mirrorOp{{add: true, room: room, userID: s.UserID}})
	}
	return nil
}

// Leave is a no-op when the session is not in room.
func (r *PresenceRegistry) Leave(sessionID, room string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	var ops []mirrorOp
	if r.leaveLocked(s, room) && !r.userInRoomLocked(s.UserID, room) {
		ops = append(ops, mirrorOp{room: room, userID: s.UserID})
	}
	r.mu.Unlock()

	r.syncMirror(ops)
	return nil
}

// Disconnect drops the session and every membership, then closes its event
// queue. Unknown or already removed sessions are ignored.
func (r *PresenceRegistry) Disconnect(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	var ops []mirrorOp
	for room := range s.rooms {
		r.leaveLocked(s, room)
		if !r.userInRoomLocked(s.UserID, room) {
			ops = append(ops, mirrorOp{room: room, userID: s.UserID})
		}
	}
	s.closed = true
	close(s.send)
	r.mu.Unlock()

	r.metrics.SessionClosed()
	r.logger.Debug("presence_disconnected", zap.String("session", sessionID), zap.String("user", s.UserID))
	r.syncMirror(ops)
}

// Broadcast queues ev for every session joined to any of rooms. A session in
// several of the rooms receives it once. Full queues drop the event.
func (r *PresenceRegistry) Broadcast(_ context.Context, rooms []string, ev Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, room := range rooms {
		for id, s := range r.rooms[room] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			r.deliverLocked(s, ev)
		}
	}
	return nil
}

// Send queues ev for a single session.
func (r *PresenceRegistry) Send(sessionID string, ev Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	r.deliverLocked(s, ev)
	return nil
}

// Rooms returns the sorted rooms a session is joined to.
func (r *PresenceRegistry) Rooms(sessionID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out, nil
}

// Members returns the sorted session ids joined to room.
func (r *PresenceRegistry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *PresenceRegistry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// InRoom reports whether the session is currently joined to room.
func (r *PresenceRegistry) InRoom(sessionID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	_, in := s.rooms[room]
	return in
}

func (r *PresenceRegistry) deliverLocked(s *Session, ev Event) {
	if s.closed {
		return
	}
	select {
	case s.send <- ev:
	default:
		r.logger.Debug("presence_queue_full",
			zap.String("session", s.ID), zap.String("event", ev.Name))
	}
}

func (r *PresenceRegistry) joinLocked(s *Session, room string) bool {
	if _, ok := s.rooms[room]; ok {
		return false
	}
	s.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		r.rooms[room] = members
	}
	members[s.ID] = s
	return true
}

func (r *PresenceRegistry) leaveLocked(s *Session, room string) bool {
	if _, ok := s.rooms[room]; !ok {
		return false
	}
	delete(s.rooms, room)
	if members, ok := r.rooms[room]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	return true
}

func (r *PresenceRegistry) userInRoomLocked(userID, room string) bool {
	for _, s := range r.rooms[room] {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

func (r *PresenceRegistry) syncMirror(ops []mirrorOp) {
	if r.mirror == nil || len(ops) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	for _, op := range ops {
		var err error
		if op.add {
			err = r.mirror.AddOnline(ctx, op.room, op.userID)
		} else {
			err = r.mirror.RemoveOnline(ctx, op.room, op.userID)
		}
		if err != nil {
			r.logger.Debug("presence_mirror_failed",
				zap.String("room", op.room), zap.String("user", op.userID), zap.Bool("add", op.add), zap.Error(err))
		}
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FASALGAF00R/Campuscore-backend/middleware"
	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 8 << 10
	maxPodMessage  = 2000
	onlineLookupTO = 2 * time.Second
)

// OnlineLister reads the cross-instance online set of a room.
type OnlineLister interface {
	GetOnlineUsers(ctx context.Context, room string) ([]string, error)
}

type LiveConfig struct {
	AllowOrigins []string
	FrameRate    float64
	FrameBurst   int
}

// clientFrame is what browsers send: {"type": ..., "payload": {...}}.
type clientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type podMessagePayload struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

type typingPayload struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"is_typing"`
}

type LiveWebSocketHandler struct {
	registry    *services.PresenceRegistry
	broadcaster services.Broadcaster
	online      OnlineLister
	upgrader    websocket.Upgrader
	cfg         LiveConfig
	logger      *zap.Logger
}

// NewLiveWebSocketHandler wires the live endpoint. broadcaster carries
// pod traffic and may be the registry itself or a cross-instance relay.
// online may be nil.
func NewLiveWebSocketHandler(registry *services.PresenceRegistry, broadcaster services.Broadcaster,
	online OnlineLister, cfg LiveConfig, logger *zap.Logger) *LiveWebSocketHandler {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 5
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = 20
	}
	h := &LiveWebSocketHandler{
		registry:    registry,
		broadcaster: broadcaster,
		online:      online,
		cfg:         cfg,
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *LiveWebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *LiveWebSocketHandler) HandleWebSocket(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthenticated(c)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := h.registry.Connect(user.ID, user.Role)
	rooms, _ := h.registry.Rooms(session.ID)
	_ = h.registry.Send(session.ID, services.Event{
		Name: "init",
		Payload: map[string]any{
			"sessionId": session.ID,
			"userId":    user.ID,
			"rooms":     rooms,
		},
	})

	go h.writePump(ws, session)
	h.readPump(ws, session)
	return nil
}

func (h *LiveWebSocketHandler) readPump(ws *websocket.Conn, session *services.Session) {
	defer func() {
		h.registry.Disconnect(session.ID)
		ws.Close()
	}()

	limiter := rate.NewLimiter(rate.Limit(h.cfg.FrameRate), h.cfg.FrameBurst)
	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("live_read_failed", zap.String("session", session.ID), zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			h.sendError(session, "rate_limited", "slow down")
			continue
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(session, string(services.CodeValidation), "frame is not valid JSON")
			continue
		}
		h.handleFrame(session, frame)
	}
}

// writePump is the only writer on ws.
func (h *LiveWebSocketHandler) writePump(ws *websocket.Conn, session *services.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	events := session.Events()
	for {
		select {
		case ev, ok := <-events:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				h.logger.Debug("live_write_failed", zap.String("session", session.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *LiveWebSocketHandler) handleFrame(session *services.Session, frame clientFrame) {
	switch frame.Type {
	case "join":
		h.handleJoin(session, frame.Payload)
	case "leave":
		h.handleLeave(session, frame.Payload)
	case "pod:message":
		h.handlePodMessage(session, frame.Payload)
	case "typing":
		h.handleTyping(session, frame.Payload)
	default:
		h.sendError(session, "unknown_frame", "unsupported frame type "+frame.Type)
	}
}

func (h *LiveWebSocketHandler) handleJoin(session *services.Session, raw json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(raw, &p); err != nil || !services.IsPodRoom(p.Room) {
		h.sendError(session, string(services.CodeNotAuthorized), "only pod rooms can be joined")
		return
	}
	if err := h.registry.Join(session.ID, p.Room); err != nil {
		return
	}
	_ = h.registry.Send(session.ID, services.Event{
		Name: "joined",
		Payload: map[string]any{
			"room":   p.Room,
			"online": h.onlineUsers(p.Room),
		},
	})
}

func (h *LiveWebSocketHandler) handleLeave(session *services.Session, raw json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(raw, &p); err != nil || !services.IsPodRoom(p.Room) {
		h.sendError(session, string(services.CodeNotAuthorized), "only pod rooms can be left")
		return
	}
	if err := h.registry.Leave(session.ID, p.Room); err != nil {
		return
	}
	_ = h.registry.Send(session.ID, services.Event{Name: "left", Payload: map[string]any{"room": p.Room}})
}

func (h *LiveWebSocketHandler) handlePodMessage(session *services.Session, raw json.RawMessage) {
	var p podMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.sendError(session, string(services.CodeValidation), "invalid payload")
		return
	}
	content := strings.TrimSpace(p.Content)
	if content == "" || utf8.RuneCountInString(content) > maxPodMessage {
		h.sendError(session, string(services.CodeValidation), "content must be 1-2000 characters")
		return
	}
	if !services.IsPodRoom(p.Room) || !h.registry.InRoom(session.ID, p.Room) {
		h.sendError(session, string(services.CodeNotAuthorized), "join the room first")
		return
	}

	h.broadcast([]string{p.Room}, services.Event{
		Name: "pod:message",
		Payload: map[string]any{
			"room":    p.Room,
			"userId":  session.UserID,
			"content": content,
			"sentAt":  time.Now().UTC(),
		},
	})
}

func (h *LiveWebSocketHandler) handleTyping(session *services.Session, raw json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(raw, &p); err != nil || !h.registry.InRoom(session.ID, p.Room) || !services.IsPodRoom(p.Room) {
		return
	}
	h.broadcast([]string{p.Room}, services.Event{
		Name: "typing",
		Payload: map[string]any{
			"room":      p.Room,
			"userId":    session.UserID,
			"is_typing": p.IsTyping,
		},
	})
}

func (h *LiveWebSocketHandler) broadcast(rooms []string, ev services.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := h.broadcaster.Broadcast(ctx, rooms, ev); err != nil {
		h.logger.Debug("live_broadcast_failed", zap.String("event", ev.Name), zap.Error(err))
	}
}

func (h *LiveWebSocketHandler) onlineUsers(room string) []string {
	if h.online == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), onlineLookupTO)
	defer cancel()
	users, err := h.online.GetOnlineUsers(ctx, room)
	if err != nil {
		h.logger.Debug("online_lookup_failed", zap.String("room", room), zap.Error(err))
		return nil
	}
	return users
}

func (h *LiveWebSocketHandler) sendError(session *services.Session, code, message string) {
	_ = h.registry.Send(session.ID, services.Event{
		Name:    "error",
		Payload: ErrorResponse{Code: code, Message: message},
	})
}

// OnlineUsers lists who is online in a pod room across instances.
func (h *LiveWebSocketHandler) OnlineUsers(c echo.Context) error {
	room := services.PodRoom(c.Param("id"))
	users := h.onlineUsers(room)
	if users == nil {
		users = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"room":  room,
		"count": len(users),
		"users": users,
	})
}

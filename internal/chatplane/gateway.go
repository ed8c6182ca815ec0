package chatplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/orincore/circle-core/internal/apperr"
	"github.com/orincore/circle-core/internal/blinddate"
	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/store"
)

const (
	// maxFrameBytes is the application-level frame size limit: a message
	// larger than this is rejected with an {type:"error",
	// payload:{code:"too_large"}} frame rather than a bare connection drop.
	maxFrameBytes = 64 * 1024
	// readLimitBackstop is gorilla's own abrupt-close threshold, set well
	// above maxFrameBytes so it only fires as a last-resort memory guard
	// against a client that ignores the graceful rejection entirely;
	// every frame between maxFrameBytes and this backstop gets the
	// application-level error reply instead of a silent drop.
	readLimitBackstop = maxFrameBytes * 4
	writeTimeout      = 10 * time.Second
	pongWait          = 60 * time.Second
	pingInterval      = (pongWait * 9) / 10
	typingThrottle    = 2 * time.Second
)

// connection is one authenticated socket and its room memberships.
type connection struct {
	userID string
	socket *websocket.Conn
	send   chan outboundFrame
	gw     *Gateway

	mu    sync.Mutex
	rooms map[string]struct{}
}

// Gateway is the socket gateway: connection/room registry plus the
// store-backed frame handlers. Rooms and the typing set are process-local,
// per spec, and guarded by the same map-plus-mutex idiom
// internal/logging uses for its category registry.
type Gateway struct {
	handler *chatHandler

	upgrader  websocket.Upgrader
	jwtSecret []byte

	mu      sync.RWMutex
	byUser  map[string]map[*connection]struct{}
	byRoom  map[string]map[*connection]struct{}
	typing  map[string]map[string]time.Time // chatID -> userID -> last broadcast
}

// NewGateway builds a Gateway. blindDate may be nil if blind-date PII
// gating is not wired for this deployment.
func NewGateway(s store.Store, notifier Notifier, blindDate *blinddate.Session, jwtSecret []byte) *Gateway {
	return &Gateway{
		handler:   &chatHandler{store: s, notifier: notifier, blindDate: blindDate},
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		jwtSecret: jwtSecret,
		byUser:    make(map[string]map[*connection]struct{}),
		byRoom:    make(map[string]map[*connection]struct{}),
		typing:    make(map[string]map[string]time.Time),
	}
}

// SetBlindDate wires the blind-date session machine in after construction,
// for callers that must build the Gateway before the Session that depends
// on it as an events.Sink.
func (g *Gateway) SetBlindDate(s *blinddate.Session) {
	g.handler.blindDate = s
}

// ServeHTTP authenticates the handshake once, upgrades, and runs the
// connection's read loop until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := g.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Get(logging.CategoryChatPlane).Warn("upgrade failed for %s: %v", userID, err)
		return
	}
	socket.SetReadLimit(readLimitBackstop)

	c := &connection{userID: userID, socket: socket, send: make(chan outboundFrame, 64), gw: g, rooms: make(map[string]struct{})}
	g.registerUser(c)
	defer g.unregisterUser(c)

	go c.writePump()
	c.readPump()
}

func (g *Gateway) authenticate(r *http.Request) (string, error) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return "", apperr.New(apperr.Unauthorized, "missing bearer token")
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.Unauthorized, "unexpected signing method")
		}
		return g.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.New(apperr.Unauthorized, "invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.New(apperr.Unauthorized, "invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", apperr.New(apperr.Unauthorized, "missing subject claim")
	}
	return sub, nil
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return rest
		}
	}
	return r.URL.Query().Get("token")
}

func (c *connection) readPump() {
	defer func() {
		c.socket.Close()
		close(c.send)
	}()
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		if len(data) > maxFrameBytes {
			c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.socket.WriteJSON(outboundFrame{Type: "error", Payload: map[string]any{"code": "too_large"}})
			return
		}
		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return
		}
		c.gw.handleFrame(ctx, c, f)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.socket.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) enqueue(frame outboundFrame) {
	select {
	case c.send <- frame:
	default:
		logging.Get(logging.CategoryChatPlane).Warn("dropping frame for %s: send buffer full", c.userID)
	}
}

// handleFrame dispatches one inbound frame. join/leave mutate room
// membership directly (gateway-local state); every other frame type is
// delegated to the pure, store-backed chatHandler.
func (g *Gateway) handleFrame(ctx context.Context, c *connection, f inboundFrame) {
	switch f.Type {
	case "join":
		g.handleJoin(ctx, c, f.ChatID)
	case "leave":
		g.handleLeave(c, f.ChatID)
	case "typing":
		g.handleTyping(ctx, c, f.ChatID, f.Typing)
	case "message":
		g.run(ctx, c, func() ([]outboundEvent, error) { return g.handler.Message(ctx, c.userID, f.ChatID, f.Text) })
	case "edit":
		g.run(ctx, c, func() ([]outboundEvent, error) { return g.handler.Edit(ctx, c.userID, f.MessageID, f.Text) })
	case "delete":
		g.run(ctx, c, func() ([]outboundEvent, error) { return g.handler.Delete(ctx, c.userID, f.MessageID) })
	case "delivered":
		g.run(ctx, c, func() ([]outboundEvent, error) { return g.handler.Delivered(ctx, c.userID, f.ChatID, f.MessageID) })
	case "read":
		g.run(ctx, c, func() ([]outboundEvent, error) { return g.handler.Read(ctx, c.userID, f.ChatID, f.MessageID) })
	case "reaction_toggle":
		g.run(ctx, c, func() ([]outboundEvent, error) {
			return g.handler.ReactionToggle(ctx, c.userID, f.ChatID, f.MessageID, f.Emoji)
		})
	case "mute_set":
		g.run(ctx, c, func() ([]outboundEvent, error) { return g.handler.MuteSet(ctx, c.userID, f.ChatID, f.Muted, f.Until) })
	default:
		c.enqueue(outboundFrame{Type: "error", Payload: map[string]any{"reason": "unknown frame type"}})
	}
}

func (g *Gateway) run(ctx context.Context, c *connection, fn func() ([]outboundEvent, error)) {
	events, err := fn()
	if err != nil {
		logging.Get(logging.CategoryChatPlane).Warn("frame handler failed for %s: %v", c.userID, err)
		c.enqueue(outboundFrame{Type: "error", Payload: map[string]any{"reason": err.Error()}})
		return
	}
	for _, ev := range events {
		if ev.Target == targetCaller {
			c.enqueue(ev.Frame)
			continue
		}
		g.deliver(ev)
	}
}

func (g *Gateway) handleJoin(ctx context.Context, c *connection, chatID string) {
	history, err := g.handler.Join(ctx, c.userID, chatID)
	if err != nil {
		logging.Get(logging.CategoryChatPlane).Warn("join failed for %s/%s: %v", c.userID, chatID, err)
		c.enqueue(outboundFrame{Type: "error", Payload: map[string]any{"reason": err.Error()}})
		return
	}

	c.mu.Lock()
	c.rooms[chatID] = struct{}{}
	c.mu.Unlock()

	g.mu.Lock()
	if g.byRoom[chatID] == nil {
		g.byRoom[chatID] = make(map[*connection]struct{})
	}
	g.byRoom[chatID][c] = struct{}{}
	online := len(g.byRoom[chatID])
	g.mu.Unlock()

	c.enqueue(outboundFrame{Type: "history", Payload: map[string]any{"messages": history}})
	g.deliver(toRoom(chatID, outboundFrame{Type: "presence", Payload: map[string]any{"online": online > 1}}))
}

func (g *Gateway) handleLeave(c *connection, chatID string) {
	c.mu.Lock()
	delete(c.rooms, chatID)
	c.mu.Unlock()

	g.mu.Lock()
	online := 0
	if members, ok := g.byRoom[chatID]; ok {
		delete(members, c)
		online = len(members)
		if len(members) == 0 {
			delete(g.byRoom, chatID)
		}
	}
	g.mu.Unlock()

	g.deliver(toRoom(chatID, outboundFrame{Type: "presence", Payload: map[string]any{"online": online > 1}}))
}

// handleTyping verifies membership, throttles per user, and fans out to the
// room plus every member directly (so inbox views update even without the
// chat open).
func (g *Gateway) handleTyping(ctx context.Context, c *connection, chatID string, typing bool) {
	if err := g.handler.verifyMember(ctx, chatID, c.userID); err != nil {
		return
	}

	g.mu.Lock()
	last, seen := g.typing[chatID][c.userID]
	if seen && typing && time.Since(last) < typingThrottle {
		g.mu.Unlock()
		return
	}
	if g.typing[chatID] == nil {
		g.typing[chatID] = make(map[string]time.Time)
	}
	if typing {
		g.typing[chatID][c.userID] = time.Now()
	} else {
		delete(g.typing[chatID], c.userID)
	}
	users := make([]string, 0, len(g.typing[chatID]))
	for u := range g.typing[chatID] {
		users = append(users, u)
	}
	g.mu.Unlock()

	members, err := g.handler.store.ChatMembers(ctx, chatID)
	if err != nil {
		return
	}
	frame := outboundFrame{Type: "typing", Payload: map[string]any{"users": users}}
	g.deliver(toRoom(chatID, frame))
	for _, m := range members {
		g.deliver(toUser(m, frame))
	}
}

// deliver fans an outboundEvent out over live sockets. A recipient with no
// connected socket drops the event silently; state already persisted in the
// Store is there for reconnect to read.
func (g *Gateway) deliver(ev outboundEvent) {
	switch ev.Target {
	case targetRoom:
		g.mu.RLock()
		members := g.byRoom[ev.ChatID]
		conns := make([]*connection, 0, len(members))
		for c := range members {
			conns = append(conns, c)
		}
		g.mu.RUnlock()
		for _, c := range conns {
			c.enqueue(ev.Frame)
		}
	case targetUser:
		g.mu.RLock()
		conns := make([]*connection, 0, len(g.byUser[ev.UserID]))
		for c := range g.byUser[ev.UserID] {
			conns = append(conns, c)
		}
		g.mu.RUnlock()
		for _, c := range conns {
			c.enqueue(ev.Frame)
		}
	case targetCaller:
		// run() enqueues targetCaller events directly; this is a defensive no-op.
	}
}

func (g *Gateway) registerUser(c *connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.byUser[c.userID] == nil {
		g.byUser[c.userID] = make(map[*connection]struct{})
	}
	g.byUser[c.userID][c] = struct{}{}
}

func (g *Gateway) unregisterUser(c *connection) {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	g.mu.Lock()
	if conns, ok := g.byUser[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(g.byUser, c.userID)
		}
	}
	for _, room := range rooms {
		if members, ok := g.byRoom[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(g.byRoom, room)
			}
		}
	}
	g.mu.Unlock()

	for _, room := range rooms {
		g.mu.RLock()
		online := len(g.byRoom[room])
		g.mu.RUnlock()
		g.deliver(toRoom(room, outboundFrame{Type: "presence", Payload: map[string]any{"online": online > 1}}))
	}
}

// Emit implements events.Sink: background workers reach connected clients
// through the gateway without chatplane importing them back.
func (g *Gateway) Emit(ctx context.Context, userID, kind string, payload map[string]any) error {
	g.deliver(toUser(userID, outboundFrame{Type: kind, Payload: payload}))
	return nil
}

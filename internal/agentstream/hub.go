package agentstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"leadbridge/internal/callstore"
)

// ErrNoSession is returned when an instruction targets a call with no live
// agent session, e.g. after the leg was bridged away from the stream.
var ErrNoSession = errors.New("agentstream: no session for call")

// Config locates the conversational agent service.
type Config struct {
	// ServiceURL is the agent service websocket endpoint.
	ServiceURL string
	// SilenceTimeout tells the agent how long to wait before re-prompting a
	// quiet caller. Announced in the session init, not enforced here.
	SilenceTimeout time.Duration
}

// Hub accepts telephony media streams, pairs each with an agent-service
// session, and exposes the live sessions to the coordinator for out-of-band
// instructions and teardown.
type Hub struct {
	cfg   Config
	store *callstore.Store
	sink  TurnSink
	log   *slog.Logger

	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHub(cfg Config, store *callstore.Store, sink TurnSink, log *slog.Logger) *Hub {
	return &Hub{
		cfg:   cfg,
		store: store,
		sink:  sink,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The telephony provider does not send an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer:   websocket.DefaultDialer,
		sessions: make(map[string]*Session),
	}
}

// HandleStream is the gin handler for inbound telephony media streams.
func (h *Hub) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WarnContext(c.Request.Context(), "stream upgrade failed", "error", err)
		return
	}

	ctx := context.Background()
	start, err := awaitStart(conn)
	if err != nil {
		h.log.WarnContext(ctx, "stream start frame", "error", err)
		_ = conn.Close()
		return
	}

	callSid := start.CallSid
	if callSid == "" {
		callSid = start.CustomParameters["call_sid"]
	}
	if callSid == "" {
		h.log.WarnContext(ctx, "stream start without call sid")
		_ = conn.Close()
		return
	}

	rec, _ := h.store.Get(callSid)
	reconnect := rec.PostFailureReconnect || start.CustomParameters["reconnect"] == "true"

	agentConn, _, err := h.dialer.DialContext(ctx, h.cfg.ServiceURL, nil)
	if err != nil {
		h.log.ErrorContext(ctx, "agent service dial failed", "call_sid", callSid, "error", err)
		_ = conn.Close()
		return
	}

	session := newSession(callSid, start.StreamSid, conn, agentConn, h.sink, h.log)
	h.register(callSid, session)
	defer h.unregister(callSid, session)

	if err := session.init(rec.Lead, reconnect, int(h.cfg.SilenceTimeout.Seconds())); err != nil {
		h.log.ErrorContext(ctx, "session init failed", "call_sid", callSid, "error", err)
		session.Close()
		return
	}

	h.log.InfoContext(ctx, "agent session open",
		"call_sid", callSid, "reconnect", reconnect)
	session.run(ctx)
	h.log.InfoContext(ctx, "agent session closed", "call_sid", callSid)
}

// awaitStart reads frames until the start event arrives. The provider sends a
// bare "connected" frame first.
func awaitStart(conn *websocket.Conn) (*streamStart, error) {
	for i := 0; i < 5; i++ {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		var env streamEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("agentstream: bad frame: %w", err)
		}
		if env.Event == "start" && env.Start != nil {
			return env.Start, nil
		}
	}
	return nil, errors.New("agentstream: no start frame")
}

// Instruct implements the coordinator's AgentNotifier.
func (h *Hub) Instruct(ctx context.Context, callID, instruction string) error {
	s := h.session(callID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, callID)
	}
	return s.Instruct(instruction)
}

// Teardown implements the coordinator's AgentNotifier. Unknown calls are a
// no-op: teardown after a session already ended is normal.
func (h *Hub) Teardown(ctx context.Context, callID string) error {
	s := h.session(callID)
	if s == nil {
		return nil
	}
	s.Close()
	return nil
}

// Active reports how many sessions are live.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) session(callID string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[callID]
}

func (h *Hub) register(callID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[callID]; ok {
		old.Close()
	}
	h.sessions[callID] = s
}

func (h *Hub) unregister(callID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[callID] == s {
		delete(h.sessions, callID)
	}
}

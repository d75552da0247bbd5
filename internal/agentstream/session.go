package agentstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"leadbridge/internal/callstore"
)

// TurnSink receives transcript turns and conversation metadata from live
// sessions. Implemented by the bridging coordinator.
type TurnSink interface {
	HandleTranscriptTurn(ctx context.Context, callID, speaker, text string) error
	BindConversation(ctx context.Context, callID, conversationID string)
}

// Session couples one telephony media stream to one agent-service websocket.
// Audio is relayed verbatim in both directions; transcript turns and
// conversation metadata are peeled off and fed to the sink.
type Session struct {
	callSid   string
	streamSid string

	telephony *websocket.Conn
	agent     *websocket.Conn

	sink TurnSink
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
	sent   map[string]bool

	done chan struct{}
}

func newSession(callSid, streamSid string, telephony, agent *websocket.Conn, sink TurnSink, log *slog.Logger) *Session {
	return &Session{
		callSid:   callSid,
		streamSid: streamSid,
		telephony: telephony,
		agent:     agent,
		sink:      sink,
		log:       log.With("call_sid", callSid),
		sent:      make(map[string]bool),
		done:      make(chan struct{}),
	}
}

// init announces the call to the agent service before any audio flows.
func (s *Session) init(lead callstore.LeadInfo, reconnect bool, silenceSeconds int) error {
	return s.writeAgent(sessionInit{
		Type:                  agentTypeSessionInit,
		CallSid:               s.callSid,
		Reconnect:             reconnect,
		Lead:                  lead,
		SilenceTimeoutSeconds: silenceSeconds,
	})
}

// Instruct injects a one-shot instruction into the agent session. Identical
// instructions are delivered once per session so coordinator retries and
// duplicate webhooks do not make the agent repeat itself.
func (s *Session) Instruct(text string) error {
	s.mu.Lock()
	if s.sent[text] {
		s.mu.Unlock()
		return nil
	}
	s.sent[text] = true
	s.mu.Unlock()
	return s.writeAgent(agentMessage{Type: agentTypeInstruction, Text: text})
}

// run pumps frames both ways until either side drops. Blocks until the
// session is over.
func (s *Session) run(ctx context.Context) {
	go s.pumpAgent(ctx)
	s.pumpTelephony(ctx)
	s.Close()
}

// pumpTelephony forwards caller audio to the agent service.
func (s *Session) pumpTelephony(ctx context.Context) {
	for {
		_, raw, err := s.telephony.ReadMessage()
		if err != nil {
			s.log.DebugContext(ctx, "telephony stream closed", "error", err)
			return
		}
		var env streamEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.log.WarnContext(ctx, "bad stream frame", "error", err)
			continue
		}
		switch env.Event {
		case "media":
			if env.Media == nil {
				continue
			}
			if err := s.writeAgent(agentMessage{Type: agentTypeAudio, Payload: env.Media.Payload}); err != nil {
				return
			}
		case "stop":
			return
		}
	}
}

// pumpAgent forwards agent audio back to the caller and peels off
// transcript and metadata messages.
func (s *Session) pumpAgent(ctx context.Context) {
	defer s.Close()
	for {
		var msg agentMessage
		if err := s.agent.ReadJSON(&msg); err != nil {
			s.log.DebugContext(ctx, "agent stream closed", "error", err)
			return
		}
		switch msg.Type {
		case agentTypeAudio:
			if err := s.writeTelephony(streamMediaOut{
				Event:     "media",
				StreamSid: s.streamSid,
				Media:     streamMedia{Payload: msg.Payload},
			}); err != nil {
				return
			}
		case agentTypeTurn:
			if err := s.sink.HandleTranscriptTurn(ctx, s.callSid, msg.Speaker, msg.Text); err != nil {
				s.log.WarnContext(ctx, "transcript turn rejected", "error", err)
			}
		case agentTypeConversationCreated:
			s.sink.BindConversation(ctx, s.callSid, msg.ConversationID)
		case agentTypeSessionEnded:
			return
		}
	}
}

func (s *Session) writeAgent(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	return s.agent.WriteJSON(v)
}

func (s *Session) writeTelephony(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	return s.telephony.WriteJSON(v)
}

// Close tears both connections down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	_ = s.agent.Close()
	_ = s.telephony.Close()
}

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

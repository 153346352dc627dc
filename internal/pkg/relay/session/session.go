// Package session orchestrates one realtime conversation per accepted
// WebSocket connection: frame dispatch, heartbeat liveness, rate
// admission, upstream streaming, and message persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	cacheport "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/cache/port"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/metrics"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/realtime"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/application/usecase"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/assembler"
	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/protocol"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/ratelimit"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/upstream"
)

// State is the server-side connection lifecycle. The richer
// Connecting/Reconnecting model is client-observed only.
type State int

const (
	StateAuthorizing State = iota
	StateActive
	StateClosed
)

const (
	defaultPingInterval = 30 * time.Second
	readLimitBytes      = 64 * 1024
	dedupWindow         = 10 * time.Minute
)

// Deps wires the session's collaborators. The registry is injected
// explicitly rather than reached through a singleton so supersession is
// testable in isolation.
type Deps struct {
	Registry *realtime.Registry
	Limiter  *ratelimit.Limiter
	Streamer upstream.Streamer
	Persist  *usecase.PersistMessageUseCase
	Dedup    cacheport.Cache
	Logger   zerolog.Logger

	// PingInterval is how often the client is expected to ping. Two
	// missed intervals mark the connection dead.
	PingInterval time.Duration
}

// Session owns all state for one live connection. Created only after the
// handshake authorized the (user, conversation) pair; never persisted.
type Session struct {
	conn           *realtime.Connection
	userID         string
	conversationID string
	deps           Deps
	logger         zerolog.Logger
	state          State

	// inFlight is the assembler of the current streaming assistant
	// message, nil when idle. Owned by the read loop; the streaming
	// goroutine clears it through doneCh.
	inFlight *assembler.Assembler
	doneCh   chan struct{}
}

// New constructs a Session for an authorized connection.
func New(conn *realtime.Connection, deps Deps) *Session {
	if deps.PingInterval <= 0 {
		deps.PingInterval = defaultPingInterval
	}
	return &Session{
		conn:           conn,
		userID:         conn.UserID,
		conversationID: conn.ConversationID,
		deps:           deps,
		logger: deps.Logger.With().
			Str("session_id", conn.ID).
			Str("user_id", conn.UserID).
			Str("conversation_id", conn.ConversationID).
			Logger(),
		state: StateAuthorizing,
	}
}

// Run attaches the session to the registry and processes inbound frames
// until the connection dies or a fatal error closes it. Closing the
// socket cancels any in-flight upstream request: cancellation is solely a
// side effect of disconnection.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if superseded := s.deps.Registry.Attach(s.conn); superseded {
		metrics.SessionsSuperseded.Inc()
	}
	metrics.SessionsActive.Inc()
	s.state = StateActive
	s.logger.Info().Msg("session active")

	defer func() {
		s.state = StateClosed
		s.deps.Registry.Detach(s.conn)
		s.conn.Close(websocket.CloseNormalClosure, "session closed")
		metrics.SessionsActive.Dec()
		s.logger.Info().Msg("session closed")
	}()

	s.conn.SetReadLimit(readLimitBytes)
	liveness := 2 * s.deps.PingInterval
	_ = s.conn.SetReadDeadline(time.Now().Add(liveness))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				metrics.HeartbeatTimeouts.Inc()
				s.logger.Warn().Msg("no ping within liveness window, force-closing")
				s.conn.Terminate()
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			var invalid *protocol.InvalidEventError
			if errors.As(err, &invalid) {
				_ = s.conn.Send(protocol.EncodeError(protocol.CodeInvalidEvent, invalid.Reason, nil))
				continue
			}
			_ = s.conn.Send(protocol.EncodeError(protocol.CodeInvalidEvent, "invalid frame", nil))
			continue
		}

		switch ev := ev.(type) {
		case protocol.Ping:
			_ = s.conn.Send(protocol.EncodePong())
			_ = s.conn.SetReadDeadline(time.Now().Add(liveness))
		case *protocol.MessageSend:
			s.handleSend(ctx, ev)
		}
	}
}

// State returns the server-side lifecycle state.
func (s *Session) State() State { return s.state }

func (s *Session) handleSend(ctx context.Context, msg *protocol.MessageSend) {
	// Idempotency: the client retries sends after reconnects with the
	// same id; only the first admitted copy within the window may reach
	// upstream or the store. The id is recorded in markSeen only once the
	// send clears every rejection below, so a retry after a rate limit or
	// a busy stream is a fresh attempt rather than a swallowed duplicate.
	if s.isDuplicate(ctx, msg.ID) {
		s.logger.Debug().Str("client_message_id", msg.ID).Msg("duplicate send ignored")
		return
	}

	decision := s.deps.Limiter.Admit(s.userID, s.conversationID)
	if decision.QuotaExhausted {
		metrics.RateLimitHits.WithLabelValues("quota").Inc()
		_ = s.conn.Send(protocol.EncodeError(protocol.CodeQuotaExceeded, "daily message quota exhausted", map[string]any{
			"retryAfter": decision.RetryAfterSeconds(),
		}))
		// Fatal: emitted once, then the connection closes normally so
		// the client does not auto-reconnect into the same rejection.
		s.conn.CloseWith(websocket.CloseNormalClosure, "quota exceeded")
		return
	}
	if !decision.Allowed {
		metrics.RateLimitHits.WithLabelValues("rate").Inc()
		_ = s.conn.Send(protocol.EncodeError(protocol.CodeRateLimited, "rate limit exceeded, retry later", map[string]any{
			"retryAfter": decision.RetryAfterSeconds(),
		}))
		return
	}

	if s.inFlight != nil {
		select {
		case <-s.doneCh:
			s.inFlight = nil
		default:
			// One assistant message streams at a time per session; the
			// client must wait for message.done before the next turn.
			_ = s.conn.Send(protocol.EncodeError(protocol.CodeInvalidEvent, "a response is already streaming for this conversation", nil))
			return
		}
	}

	userMsg, err := relay.NewUserMessage(relay.Message{
		ID:             msg.ID,
		ConversationID: s.conversationID,
		Role:           relay.RoleUser,
		Content:        msg.Content,
		Attachments:    msg.Attachments,
		CreatedAt:      time.UnixMilli(msg.Timestamp),
	})
	if err != nil {
		_ = s.conn.Send(protocol.EncodeError(protocol.CodeInvalidEvent, err.Error(), nil))
		return
	}

	s.markSeen(ctx, msg.ID)
	metrics.MessagesRelayed.WithLabelValues(string(relay.RoleUser)).Inc()
	go func() {
		if err := s.deps.Persist.Execute(ctx, *userMsg); err != nil {
			s.logger.Error().Err(err).Str("message_id", userMsg.ID).Msg("user message persist failed permanently")
		}
	}()

	asm := assembler.New(s.conversationID)
	s.inFlight = asm
	s.doneCh = make(chan struct{})
	events := s.deps.Streamer.Stream(ctx, nil, msg.Content)
	go s.consumeStream(ctx, asm, events, s.doneCh)
}

// consumeStream folds upstream events into the assembler and relays them
// to the client in receipt order. message.done is always the last frame
// for the message id.
func (s *Session) consumeStream(ctx context.Context, asm *assembler.Assembler, events <-chan upstream.Event, done chan<- struct{}) {
	defer close(done)

	finalized := false
	for ev := range events {
		switch ev.Kind {
		case upstream.EventToken:
			s.relayToken(asm, ev)
		case upstream.EventDone:
			finalized = s.finalize(ctx, asm, ev.Citations)
			if !finalized {
				return
			}
		case upstream.EventError:
			metrics.UpstreamErrors.Inc()
			s.logger.Error().Err(ev.Err).Str("message_id", asm.MessageID()).Msg("upstream stream failed")
			asm.Abort()
			// Transient: only the affected message dies, not the session.
			_ = s.conn.Send(protocol.EncodeError(protocol.CodeBackendError, "assistant response failed, please retry", nil))
			return
		}
	}

	if !finalized {
		// Stream ended without a terminal event: the session is closing
		// and the upstream request was canceled. The partial message is
		// discarded, never persisted, and no error frame is sent — the
		// client is already gone.
		asm.Abort()
	}
}

func (s *Session) relayToken(asm *assembler.Assembler, ev upstream.Event) {
	granularity := assembler.GranularityDelta
	limit := protocol.MaxDeltaChars
	if ev.Chunked {
		granularity = assembler.GranularityChunk
		limit = protocol.MaxChunkChars
	}
	// Cap before assembly: the finalized content must equal exactly what
	// streamed over the wire.
	tok, err := asm.Append(protocol.Truncate(ev.Text, limit), granularity)
	if err != nil {
		s.logger.Error().Err(err).Msg("token after terminal state dropped")
		return
	}
	var frame []byte
	if tok.Granularity == assembler.GranularityChunk {
		frame = protocol.EncodeChunk(tok.MessageID, tok.Payload, tok.EventID)
		metrics.TokensStreamed.WithLabelValues("chunk").Inc()
	} else {
		frame = protocol.EncodeDelta(tok.MessageID, tok.Payload, tok.EventID)
		metrics.TokensStreamed.WithLabelValues("delta").Inc()
	}
	_ = s.conn.Send(frame)
}

func (s *Session) finalize(ctx context.Context, asm *assembler.Assembler, citations []relay.Citation) bool {
	msg, err := asm.Finalize(citations)
	if err != nil {
		// Completion without a single token is a provider fault.
		metrics.UpstreamErrors.Inc()
		s.logger.Error().Err(err).Msg("upstream completed without content")
		asm.Abort()
		_ = s.conn.Send(protocol.EncodeError(protocol.CodeBackendError, "assistant response failed, please retry", nil))
		return false
	}

	// Deliver first, persist after: real-time delivery never waits on
	// durable-write latency. Persist failures retry in the background.
	_ = s.conn.Send(protocol.EncodeDone(msg))
	metrics.MessagesRelayed.WithLabelValues(string(relay.RoleAssistant)).Inc()

	if err := s.deps.Persist.Execute(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("assistant message persist failed permanently")
	}
	return true
}

func (s *Session) isDuplicate(ctx context.Context, clientMessageID string) bool {
	if s.deps.Dedup == nil {
		return false
	}
	_, err := s.deps.Dedup.Get(ctx, s.dedupKey(clientMessageID))
	if err == nil {
		return true
	}
	if !errors.Is(err, cacheport.ErrMiss) {
		// Dedup is best-effort: on cache failure, admit rather than drop.
		s.logger.Warn().Err(err).Msg("dedup check failed, admitting send")
	}
	return false
}

// markSeen records an admitted client message id for the dedup window.
// Rejected sends are never recorded.
func (s *Session) markSeen(ctx context.Context, clientMessageID string) {
	if s.deps.Dedup == nil {
		return
	}
	if _, err := s.deps.Dedup.SetNX(ctx, s.dedupKey(clientMessageID), "1", dedupWindow); err != nil {
		s.logger.Warn().Err(err).Msg("dedup record failed")
	}
}

func (s *Session) dedupKey(clientMessageID string) string {
	return fmt.Sprintf("relay:dedup:%s:%s", s.conversationID, clientMessageID)
}

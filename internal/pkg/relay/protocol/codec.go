// Package protocol translates between wire bytes and typed relay events.
// Schema constraints are enforced here so malformed input never reaches
// session or upstream logic.
package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
)

// Inbound frame types.
const (
	TypeMessageSend = "message.send"
	TypePing        = "ping"
)

// Outbound frame types.
const (
	TypeDelta       = "delta"
	TypeChunk       = "chunk"
	TypeMessageDone = "message.done"
	TypeError       = "error"
	TypePong        = "pong"
)

// Wire error codes, by propagation policy. Fatal codes close the
// connection after emission; transient codes leave the session running.
// ConnectionDropped is inferred client-side from abnormal closure and is
// never sent as a frame.
const (
	CodeAuthFailed        = "AUTH_FAILED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeQuotaExceeded     = "QUOTA_EXCEEDED"
	CodeInvalidEvent      = "INVALID_EVENT"
	CodeBackendError      = "BACKEND_ERROR"
	CodeConnectionDropped = "CONNECTION_DROPPED"
)

// Payload caps. Upstream overflow is truncated rather than rejected; the
// provider is trusted but not unbounded.
const (
	MaxDeltaChars   = 1000
	MaxChunkChars   = 5000
	MaxSnippetChars = 500
)

// InvalidEventError describes an inbound frame that failed schema
// validation. It is reported to the client as INVALID_EVENT without
// closing the connection.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return "protocol: invalid event: " + e.Reason
}

func invalidf(format string, args ...any) error {
	return &InvalidEventError{Reason: fmt.Sprintf(format, args...)}
}

// MessageSend is the validated payload of a message.send frame.
type MessageSend struct {
	ID          string
	Content     string
	Attachments []string
	Timestamp   int64
}

// Event is an inbound frame after decoding: either a *MessageSend or Ping.
type Event interface{ isEvent() }

func (*MessageSend) isEvent() {}

// Ping is the inbound heartbeat frame. It carries no payload.
type Ping struct{}

func (Ping) isEvent() {}

type inboundFrame struct {
	Type    string          `json:"type"`
	Message *inboundMessage `json:"message"`
}

type inboundMessage struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
	Timestamp   *int64   `json:"timestamp"`
}

// Decode parses an inbound text frame into a typed event. Any frame that
// is not valid JSON, carries an unknown type, or fails message.send bounds
// yields an *InvalidEventError.
func Decode(data []byte) (Event, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, invalidf("malformed JSON")
	}

	switch frame.Type {
	case TypePing:
		return Ping{}, nil
	case TypeMessageSend:
		return decodeMessageSend(frame.Message)
	case "":
		return nil, invalidf("missing type")
	default:
		return nil, invalidf("unknown type %q", frame.Type)
	}
}

func decodeMessageSend(m *inboundMessage) (Event, error) {
	if m == nil {
		return nil, invalidf("message.send requires a message object")
	}
	if m.ID == "" {
		return nil, invalidf("message.id is required")
	}
	if m.Role != string(relay.RoleUser) {
		return nil, invalidf("message.role must be %q", relay.RoleUser)
	}
	if n := utf8.RuneCountInString(m.Content); n == 0 {
		return nil, invalidf("message.content is required")
	} else if n > relay.MaxContentChars {
		return nil, invalidf("message.content exceeds %d characters", relay.MaxContentChars)
	}
	if m.Timestamp == nil {
		return nil, invalidf("message.timestamp is required")
	}
	return &MessageSend{
		ID:          m.ID,
		Content:     m.Content,
		Attachments: m.Attachments,
		Timestamp:   *m.Timestamp,
	}, nil
}

type deltaFrame struct {
	Type      string         `json:"type"`
	MessageID string         `json:"messageId"`
	Delta     string         `json:"delta"`
	EventID   string         `json:"eventId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type chunkFrame struct {
	Type      string         `json:"type"`
	MessageID string         `json:"messageId"`
	Content   string         `json:"content"`
	EventID   string         `json:"eventId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type doneFrame struct {
	Type    string      `json:"type"`
	Message doneMessage `json:"message"`
}

type doneMessage struct {
	ID        string           `json:"id"`
	Role      relay.Role       `json:"role"`
	Content   string           `json:"content"`
	Citations []relay.Citation `json:"citations,omitempty"`
	Timestamp int64            `json:"timestamp"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

type errorFrame struct {
	Type  string    `json:"type"`
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type pongFrame struct {
	Type string `json:"type"`
}

// EncodeDelta serializes a delta frame, truncating oversized payloads.
func EncodeDelta(messageID, delta, eventID string) []byte {
	return mustMarshal(deltaFrame{
		Type:      TypeDelta,
		MessageID: messageID,
		Delta:     Truncate(delta, MaxDeltaChars),
		EventID:   eventID,
	})
}

// EncodeChunk serializes a chunk frame, truncating oversized payloads.
func EncodeChunk(messageID, content, eventID string) []byte {
	return mustMarshal(chunkFrame{
		Type:      TypeChunk,
		MessageID: messageID,
		Content:   Truncate(content, MaxChunkChars),
		EventID:   eventID,
	})
}

// EncodeDone serializes the finalized assistant message. Citation snippets
// are clamped to MaxSnippetChars.
func EncodeDone(msg relay.Message) []byte {
	citations := make([]relay.Citation, len(msg.Citations))
	for i, c := range msg.Citations {
		c.Snippet = Truncate(c.Snippet, MaxSnippetChars)
		citations[i] = c
	}
	if len(citations) == 0 {
		citations = nil
	}
	return mustMarshal(doneFrame{
		Type: TypeMessageDone,
		Message: doneMessage{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Citations: citations,
			Timestamp: msg.CreatedAt.UnixMilli(),
		},
	})
}

// EncodeError serializes an error frame.
func EncodeError(code, message string, details any) []byte {
	return mustMarshal(errorFrame{
		Type:  TypeError,
		Error: errorBody{Code: code, Message: message, Details: details},
	})
}

// EncodePong serializes the heartbeat reply.
func EncodePong() []byte {
	return mustMarshal(pongFrame{Type: TypePong})
}

// Truncate clamps s to at most maxRunes runes without splitting a rune.
// Callers that accumulate streamed content apply the same cap before
// assembly so the finalized message equals what went over the wire.
func Truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes])
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Frames are built from plain structs; marshal cannot fail.
		panic(err)
	}
	return data
}

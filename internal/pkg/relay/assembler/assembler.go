// Package assembler folds upstream token streams into assistant messages.
// Each in-flight message is an explicit state machine so that illegal
// transitions (a delta after Done, a double finalize) surface as errors
// instead of corrupting content.
package assembler

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
)

// State is the lifecycle of one in-flight assistant message.
type State int

const (
	StateEmpty State = iota
	StateStreaming
	StateFinalizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Granularity is the streaming unit the upstream produced. The assembler
// re-emits whatever it received; it never re-chunks.
type Granularity int

const (
	GranularityDelta Granularity = iota
	GranularityChunk
)

// TokenEvent is one append, ready to be framed for the client.
type TokenEvent struct {
	MessageID   string
	Payload     string
	EventID     string
	Granularity Granularity
}

// TransitionError reports an operation that is not legal in the current
// state.
type TransitionError struct {
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("assembler: cannot %s from state %s", e.Op, e.From)
}

// Assembler accumulates one assistant message. It is owned exclusively by
// a single session and is not safe for concurrent use.
type Assembler struct {
	state          State
	conversationID string
	messageID      string
	content        strings.Builder
	citations      []relay.Citation
	seq            int
	now            func() time.Time
}

func New(conversationID string) *Assembler {
	return &Assembler{
		conversationID: conversationID,
		now:            time.Now,
	}
}

// State returns the current lifecycle state.
func (a *Assembler) State() State { return a.state }

// MessageID returns the server-generated assistant message id, empty until
// the first token arrives.
func (a *Assembler) MessageID() string { return a.messageID }

// Append folds one upstream token into the message. The first token moves
// Empty to Streaming and allocates the message id; every subsequent token
// appends in receipt order. Content is append-only: nothing can truncate
// or reorder it.
func (a *Assembler) Append(payload string, g Granularity) (TokenEvent, error) {
	switch a.state {
	case StateEmpty:
		a.messageID = ulid.Make().String()
		a.state = StateStreaming
	case StateStreaming:
	default:
		return TokenEvent{}, &TransitionError{From: a.state, Op: "append"}
	}

	a.content.WriteString(payload)
	a.seq++
	return TokenEvent{
		MessageID:   a.messageID,
		Payload:     payload,
		EventID:     fmt.Sprintf("%s.%d", a.messageID, a.seq),
		Granularity: g,
	}, nil
}

// Finalize freezes content and citations into an immutable Message. The
// returned message carries the same id used by every preceding token event
// so the client can reconcile its streaming UI state.
func (a *Assembler) Finalize(citations []relay.Citation) (relay.Message, error) {
	if a.state != StateStreaming {
		return relay.Message{}, &TransitionError{From: a.state, Op: "finalize"}
	}
	a.state = StateFinalizing
	a.citations = citations

	msg := relay.Message{
		ID:             a.messageID,
		ConversationID: a.conversationID,
		Role:           relay.RoleAssistant,
		Content:        a.content.String(),
		Citations:      a.citations,
		CreatedAt:      a.now(),
	}
	a.state = StateDone
	return msg, nil
}

// Abort discards the partial message. Partial content is never finalized
// or persisted. Aborting an already-terminal assembler is a no-op so that
// teardown paths can call it unconditionally.
func (a *Assembler) Abort() {
	switch a.state {
	case StateEmpty, StateStreaming:
		a.state = StateAborted
	}
}

package upstream

import (
	"context"
	"unicode/utf8"

	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/protocol"
)

// EventKind discriminates relay stream events.
type EventKind int

const (
	// EventToken carries one incremental text segment.
	EventToken EventKind = iota
	// EventDone marks successful completion; Citations may be set.
	EventDone
	// EventError marks a provider failure. The session reports it as
	// BACKEND_ERROR; provider-specific detail never reaches the client.
	EventError
)

// Event is one item on a session's upstream stream.
type Event struct {
	Kind EventKind
	// Text is the token payload for EventToken.
	Text string
	// Chunked is set when the provider delivered the segment as one
	// atomic unit too large to frame as a delta. The assembler re-emits
	// the granularity it receives, so the split is decided here.
	Chunked bool
	// Citations accompany EventDone.
	Citations []relay.Citation
	// Err is the underlying cause for EventError. Logged server-side only.
	Err error
}

// Streamer is the session manager's view of the upstream connection.
type Streamer interface {
	// Stream forwards the user's turn to the provider and returns the
	// token stream. The channel is closed after a terminal event
	// (EventDone or EventError). Canceling ctx aborts the in-flight
	// provider request so a dead client never leaves an orphaned stream.
	Stream(ctx context.Context, history []relay.Message, userContent string) <-chan Event
}

// Relay drives one provider stream per request on behalf of a session.
type Relay struct {
	client *Client
	model  string
}

func NewRelay(client *Client, model string) *Relay {
	return &Relay{client: client, model: model}
}

var _ Streamer = (*Relay)(nil)

// Stream implements Streamer. Events are emitted in provider receipt
// order; the buffer keeps slow socket writes from stalling SSE reads for
// short bursts only, ordering is unaffected.
func (r *Relay) Stream(ctx context.Context, history []relay.Message, userContent string) <-chan Event {
	out := make(chan Event, 32)

	messages := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, ChatMessage{Role: string(relay.RoleUser), Content: userContent})

	go func() {
		defer close(out)

		var citations []relay.Citation
		err := r.client.StreamCompletion(ctx, &CompletionRequest{
			Model:    r.model,
			Messages: messages,
		}, func(chunk *StreamChunk) error {
			if len(chunk.Citations) > 0 {
				citations = mapCitations(chunk.Citations)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta == nil || choice.Delta.Content == "" {
					continue
				}
				ev := Event{
					Kind:    EventToken,
					Text:    choice.Delta.Content,
					Chunked: utf8.RuneCountInString(choice.Delta.Content) > protocol.MaxDeltaChars,
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})

		if err != nil {
			if ctx.Err() != nil {
				// Session is gone; nobody is listening for an error.
				return
			}
			out <- Event{Kind: EventError, Err: err}
			return
		}
		out <- Event{Kind: EventDone, Citations: citations}
	}()

	return out
}

func mapCitations(wire []WireCitation) []relay.Citation {
	citations := make([]relay.Citation, 0, len(wire))
	for _, w := range wire {
		source := relay.CitationSource(w.Source)
		if source != relay.CitationSourceKB && source != relay.CitationSourceURL {
			source = relay.CitationSourceURL
		}
		citations = append(citations, relay.Citation{
			ID:        w.ID,
			Source:    source,
			Reference: w.Reference,
			Snippet:   w.Snippet,
			Page:      w.Page,
			Metadata:  w.Metadata,
		})
	}
	return citations
}

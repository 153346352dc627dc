package relay

import "time"

// Conversation is owned by the external store; the relay only reads
// ownership for authorization and never creates, renames, or deletes one.
type Conversation struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

// ErrNotOwner signals that a user does not own the conversation they are
// trying to attach to.
var ErrNotOwner = errNotOwner{}

type errNotOwner struct{}

func (errNotOwner) Error() string { return "relay: user does not own conversation" }

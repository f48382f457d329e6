// Package access implements the allow-list gate evaluated before any
// handler logic runs.
package access

import "github.com/uflbot/uflbot/internal/bus"

// Outcome is the gate's classification of one inbound message.
type Outcome int

const (
	// Pass admits the message to the handler.
	Pass Outcome = iota
	// Refuse rejects the message with a visible access notice.
	Refuse
	// ArchiveOnly archives the message silently and skips the handler.
	// Group chats may contain many non-allowed participants whose messages
	// are still valuable as searchable context for allowed users, so they
	// are captured rather than rejected.
	ArchiveOnly
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Refuse:
		return "refuse"
	case ArchiveOnly:
		return "archive_only"
	default:
		return "unknown"
	}
}

// Gate classifies senders against static allow and admin lists.
type Gate struct {
	allowed map[int64]struct{}
	admins  map[int64]struct{}
}

// NewGate builds a gate from the configured identity lists. An empty
// allow-list admits everyone.
func NewGate(allowedIDs, adminIDs []int64) *Gate {
	g := &Gate{
		allowed: make(map[int64]struct{}, len(allowedIDs)),
		admins:  make(map[int64]struct{}, len(adminIDs)),
	}
	for _, id := range allowedIDs {
		g.allowed[id] = struct{}{}
	}
	for _, id := range adminIDs {
		g.admins[id] = struct{}{}
	}
	return g
}

// Allowed reports whether the sender is on the allow-list
// (or the list is empty).
func (g *Gate) Allowed(senderID int64) bool {
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[senderID]
	return ok
}

// IsAdmin reports whether the sender may run privileged commands.
// Orthogonal to Classify.
func (g *Gate) IsAdmin(senderID int64) bool {
	_, ok := g.admins[senderID]
	return ok
}

// Classify applies the decision table:
//
//	direct + allowed    -> Pass
//	direct + disallowed -> Refuse
//	group  + allowed    -> Pass
//	group  + disallowed -> ArchiveOnly
func (g *Gate) Classify(senderID int64, chatType bus.ChatType) Outcome {
	if g.Allowed(senderID) {
		return Pass
	}
	if chatType == bus.ChatGroup {
		return ArchiveOnly
	}
	return Refuse
}

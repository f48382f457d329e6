// Package channels adapts external chat transports to the message bus.
package channels

import (
	"context"

	"github.com/uflbot/uflbot/internal/bus"
)

// Channel defines the interface for chat transports. The actual platform
// client lives outside this process; a Channel only moves messages between
// that collaborator and the bus.
type Channel interface {
	// Name returns the channel name (e.g. "bridge").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send sends a message to a specific chat.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}

package service

import (
	"fmt"

	"github.com/capitalize-ai/study-collab/internal/model"
	"github.com/capitalize-ai/study-collab/pkg/logger"
)

// Core wires the four collaboration services around one shared store. It is
// constructed once at startup and passed to every consumer.
type Core struct {
	Identity      *IdentityRegistry
	Conversations *ConversationService
	Messages      *MessageService
	Reads         *ReadTracker
}

// NewCore builds an empty core. Events from every service go to publisher.
func NewCore(publisher Publisher, log *logger.Logger, opts ...Option) *Core {
	identity := NewIdentityRegistry(publisher, log, opts...)
	conversations := NewConversationService(identity, publisher, log, opts...)
	return &Core{
		Identity:      identity,
		Conversations: conversations,
		Messages:      NewMessageService(conversations, identity, publisher, log, opts...),
		Reads:         NewReadTracker(conversations, publisher, log, opts...),
	}
}

// Snapshot captures users and conversations. Each conversation is copied
// under its own lock.
func (c *Core) Snapshot() model.Snapshot {
	return model.Snapshot{
		Users:         c.Identity.Snapshot(),
		Conversations: c.Conversations.Snapshot(),
	}
}

// Restore loads a snapshot into the core, replacing its content.
func (c *Core) Restore(snap model.Snapshot) error {
	if err := c.Identity.Restore(snap.Users); err != nil {
		return fmt.Errorf("restore users: %w", err)
	}
	if err := c.Conversations.Restore(snap.Conversations); err != nil {
		return fmt.Errorf("restore conversations: %w", err)
	}
	return nil
}

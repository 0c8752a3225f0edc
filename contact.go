package warble

import (
	"context"
	"fmt"
	"sync"

	"github.com/warble-im/warble/puppet"
)

// Contact is a handle to an individual chat participant.
type Contact struct {
	bot *Bot
	id  string

	mu      sync.Mutex
	payload *puppet.ContactPayload
}

// ID returns the contact identifier.
func (c *Contact) ID() string { return c.id }

// IsReady reports whether the payload has been loaded.
func (c *Contact) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload != nil
}

// Ready hydrates the contact payload. Idempotent: the backend is hit at
// most once per handle, even under concurrent callers.
func (c *Contact) Ready(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload != nil {
		return nil
	}
	pl, err := c.bot.puppet.ContactPayload(ctx, c.id)
	if err != nil {
		return fmt.Errorf("contact %s payload: %w", c.id, err)
	}
	c.payload = pl
	return nil
}

// Name returns the display name, or "" when the handle is unready.
func (c *Contact) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil {
		return ""
	}
	return c.payload.Name
}

// Alias returns the user-assigned alias, or "" when unset or unready.
func (c *Contact) Alias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil {
		return ""
	}
	return c.payload.Alias
}

// Self reports whether this contact is the current session identity.
func (c *Contact) Self() bool {
	return c.id == c.bot.SelfID()
}

// Say sends a sayable payload to this contact. See Message.Say for the
// accepted payload types.
func (c *Contact) Say(ctx context.Context, sayable any) (*Message, error) {
	if m, ok := sayable.(*Message); ok {
		return m.Forward(ctx, c)
	}
	id, err := sayTo(ctx, c.bot, c.id, sayable, nil)
	if err != nil {
		return nil, err
	}
	return c.bot.wrapSent(ctx, id)
}

// String implements fmt.Stringer.
func (c *Contact) String() string {
	if name := c.Name(); name != "" {
		return "Contact<" + name + ">"
	}
	return "Contact<" + c.id + ">"
}

func (c *Contact) conversation() {}

package warble

import (
	"context"
	"fmt"
	"sync"

	"github.com/warble-im/warble/puppet"
)

// Room is a handle to a group conversation.
type Room struct {
	bot *Bot
	id  string

	mu      sync.Mutex
	payload *puppet.RoomPayload
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// IsReady reports whether the payload has been loaded.
func (r *Room) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payload != nil
}

// Ready hydrates the room payload. Idempotent: the backend is hit at most
// once per handle, even under concurrent callers.
func (r *Room) Ready(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.payload != nil {
		return nil
	}
	pl, err := r.bot.puppet.RoomPayload(ctx, r.id)
	if err != nil {
		return fmt.Errorf("room %s payload: %w", r.id, err)
	}
	r.payload = pl
	return nil
}

// Topic returns the room topic, or "" when the handle is unready.
func (r *Room) Topic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.payload == nil {
		return ""
	}
	return r.payload.Topic
}

// MemberList resolves the room members to readied contact handles.
func (r *Room) MemberList(ctx context.Context) ([]*Contact, error) {
	ids, err := r.bot.puppet.RoomMembers(ctx, r.id)
	if err != nil {
		return nil, fmt.Errorf("room %s members: %w", r.id, err)
	}
	members := make([]*Contact, 0, len(ids))
	for _, id := range ids {
		c := r.bot.Contact(id)
		if err := c.Ready(ctx); err != nil {
			return nil, err
		}
		members = append(members, c)
	}
	return members, nil
}

// Has reports whether the contact is a member of this room.
func (r *Room) Has(ctx context.Context, c *Contact) (bool, error) {
	ids, err := r.bot.puppet.RoomMembers(ctx, r.id)
	if err != nil {
		return false, fmt.Errorf("room %s members: %w", r.id, err)
	}
	for _, id := range ids {
		if id == c.ID() {
			return true, nil
		}
	}
	return false, nil
}

// Say sends a sayable payload to this room. See Message.Say for the
// accepted payload types.
func (r *Room) Say(ctx context.Context, sayable any) (*Message, error) {
	if m, ok := sayable.(*Message); ok {
		return m.Forward(ctx, r)
	}
	id, err := sayTo(ctx, r.bot, r.id, sayable, nil)
	if err != nil {
		return nil, err
	}
	return r.bot.wrapSent(ctx, id)
}

// String implements fmt.Stringer.
func (r *Room) String() string {
	if topic := r.Topic(); topic != "" {
		return "Room<" + topic + ">"
	}
	return "Room<" + r.id + ">"
}

func (r *Room) conversation() {}

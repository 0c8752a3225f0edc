// Package warble exposes ergonomic chat domain objects (Message, Contact,
// Room, Moment) over a pluggable puppet backend. Entities are lightweight
// handles: constructed synchronously from an id, hydrated by an explicit
// Ready call, immutable afterwards.
package warble

import (
	"context"
	"sync"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

// Bot ties the entity layer to one puppet session. Contact and Room
// handles are cached per bot so the same id always yields the same handle.
type Bot struct {
	puppet puppet.Puppet
	log    *logging.Logger

	mu       sync.Mutex
	contacts map[string]*Contact
	rooms    map[string]*Room
}

// New creates a bot on top of the given puppet. A nil logger disables
// logging.
func New(p puppet.Puppet, log *logging.Logger) *Bot {
	if log == nil {
		log = logging.Nop()
	}
	return &Bot{
		puppet:   p,
		log:      log.Sub("warble"),
		contacts: make(map[string]*Contact),
		rooms:    make(map[string]*Room),
	}
}

// Puppet returns the backend this bot is bound to.
func (b *Bot) Puppet() puppet.Puppet { return b.puppet }

// SelfID returns the identity of the active session.
func (b *Bot) SelfID() string { return b.puppet.SelfID() }

// Start starts the underlying puppet.
func (b *Bot) Start(ctx context.Context) error { return b.puppet.Start(ctx) }

// Stop stops the underlying puppet.
func (b *Bot) Stop(ctx context.Context) error { return b.puppet.Stop(ctx) }

// Contact returns the cached contact handle for id, creating an unready
// one on first use.
func (b *Bot) Contact(id string) *Contact {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.contacts[id]; ok {
		return c
	}
	c := &Contact{bot: b, id: id}
	b.contacts[id] = c
	return c
}

// Room returns the cached room handle for id, creating an unready one on
// first use.
func (b *Bot) Room(id string) *Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rooms[id]; ok {
		return r
	}
	r := &Room{bot: b, id: id}
	b.rooms[id] = r
	return r
}

// LoadMessage returns a fresh unready message handle for id. It never
// fails; call Ready to hydrate.
func (b *Bot) LoadMessage(id string) *Message {
	return &Message{bot: b, id: id, log: b.log.Sub("message")}
}

// OnMessage registers a handler for inbound messages. Each message is
// readied before the handler runs; messages that fail to ready are logged
// and dropped so one bad payload cannot stall the event stream.
func (b *Bot) OnMessage(handler func(m *Message)) {
	b.puppet.OnMessage(func(messageID string) {
		m := b.LoadMessage(messageID)
		if err := m.Ready(context.Background()); err != nil {
			b.log.Warn().Err(err).Str("messageId", messageID).Msg("dropping inbound message")
			return
		}
		handler(m)
	})
}

package warble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

// Conversation is the implicit reply target of a message: a Room when the
// message was sent in one, otherwise an individual Contact.
type Conversation interface {
	ID() string
	conversation()
}

// Message is a handle to a single message. A handle is either unready
// (only the id is known) or ready (payload populated); once ready it is
// immutable for the lifetime of the handle.
type Message struct {
	bot *Bot
	id  string
	log *logging.Logger

	mu      sync.Mutex
	payload *puppet.MessagePayload
}

// ID returns the message identifier.
func (m *Message) ID() string { return m.id }

// IsReady reports whether the payload has been loaded.
func (m *Message) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payload != nil
}

// Ready hydrates the message payload and the contact/room handles it
// references, so the synchronous accessors never need a round trip.
// Idempotent: the backend is hit at most once per handle, even under
// concurrent callers.
func (m *Message) Ready(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload != nil {
		return nil
	}

	pl, err := m.bot.puppet.MessagePayload(ctx, m.id)
	if err != nil {
		return fmt.Errorf("message %s payload: %w", m.id, err)
	}

	if pl.RoomID != "" {
		if err := m.bot.Room(pl.RoomID).Ready(ctx); err != nil {
			return err
		}
	}
	if pl.TalkerID != "" {
		if err := m.bot.Contact(pl.TalkerID).Ready(ctx); err != nil {
			return err
		}
	}
	if pl.ListenerID != "" {
		if err := m.bot.Contact(pl.ListenerID).Ready(ctx); err != nil {
			return err
		}
	}

	m.payload = pl
	return nil
}

func (m *Message) payloadOrErr() (*puppet.MessagePayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, fmt.Errorf("message %s: %w", m.id, ErrNotReady)
	}
	return m.payload, nil
}

// Talker returns the sender of the message.
func (m *Message) Talker() (*Contact, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return nil, err
	}
	return m.bot.Contact(pl.TalkerID), nil
}

// Listener returns the individual recipient, or nil for room messages.
func (m *Message) Listener() (*Contact, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return nil, err
	}
	if pl.ListenerID == "" {
		return nil, nil
	}
	return m.bot.Contact(pl.ListenerID), nil
}

// Room returns the room the message was sent in, or nil for direct
// messages.
func (m *Message) Room() (*Room, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return nil, err
	}
	if pl.RoomID == "" {
		return nil, nil
	}
	return m.bot.Room(pl.RoomID), nil
}

// Text returns the message body.
func (m *Message) Text() (string, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return "", err
	}
	return pl.Text, nil
}

// Type returns the message kind.
func (m *Message) Type() (puppet.MessageType, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return puppet.MessageTypeUnknown, err
	}
	return pl.Type, nil
}

// Date returns the message timestamp.
func (m *Message) Date() (time.Time, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return time.Time{}, err
	}
	return pl.Timestamp, nil
}

// Conversation returns the reply target: the room if the message was sent
// in one, otherwise the talker.
func (m *Message) Conversation() (Conversation, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return nil, err
	}
	if pl.RoomID != "" {
		return m.bot.Room(pl.RoomID), nil
	}
	return m.bot.Contact(pl.TalkerID), nil
}

// Self reports whether the message was sent by the current session.
// Resolution failures (including an unready handle) report false.
func (m *Message) Self() bool {
	talker, err := m.Talker()
	if err != nil || talker == nil {
		return false
	}
	return talker.ID() == m.bot.SelfID()
}

// Recall asks the backend to recall this message. Returns whether the
// platform accepted the recall.
func (m *Message) Recall(ctx context.Context) (bool, error) {
	return m.bot.puppet.MessageRecall(ctx, m.id)
}

// Forward sends this message to another conversation. Backend rejections
// are logged and returned. On success with a reported id the new handle
// is readied and returned; nil when the platform reports nothing.
func (m *Message) Forward(ctx context.Context, to Conversation) (*Message, error) {
	newID, err := m.bot.puppet.MessageForward(ctx, to.ID(), m.id)
	if err != nil {
		m.log.Error().Err(err).Str("messageId", m.id).Str("to", to.ID()).Msg("forward rejected")
		return nil, fmt.Errorf("forward %s to %s: %w", m.id, to.ID(), err)
	}
	return m.bot.wrapSent(ctx, newID)
}

// String implements fmt.Stringer.
func (m *Message) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return "Message<" + m.id + ">"
	}
	return fmt.Sprintf("Message<%s:%s>", m.payload.Type, m.payload.Text)
}

// FindMessages searches the backend and returns ready handles in
// backend-provided order. Handles that fail to ready are logged and
// dropped; a backend search failure yields an empty result, never an
// error.
func (b *Bot) FindMessages(ctx context.Context, query string) []*Message {
	ids, err := b.puppet.MessageSearch(ctx, query)
	if err != nil {
		b.log.Warn().Err(err).Str("query", query).Msg("message search failed")
		return nil
	}

	found := make([]*Message, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			msg := b.LoadMessage(id)
			if err := msg.Ready(ctx); err != nil {
				errs[i] = err
				return
			}
			found[i] = msg
		}(i, id)
	}
	wg.Wait()

	result := make([]*Message, 0, len(ids))
	for i, msg := range found {
		if msg == nil {
			b.log.Warn().Err(errs[i]).Str("messageId", ids[i]).Msg("dropping unreadyable search result")
			continue
		}
		result = append(result, msg)
	}
	return result
}

// FindMessage returns the first search result, or nil when there is none.
// More than one match is logged, not an error.
func (b *Bot) FindMessage(ctx context.Context, query string) *Message {
	all := b.FindMessages(ctx, query)
	if len(all) == 0 {
		return nil
	}
	if len(all) > 1 {
		b.log.Info().Int("count", len(all)).Str("query", query).Msg("multiple messages matched, returning first")
	}
	return all[0]
}

// wrapSent turns a send/forward result id into a ready message handle.
// An empty id (platform reported nothing) resolves to nil.
func (b *Bot) wrapSent(ctx context.Context, id string) (*Message, error) {
	if id == "" {
		return nil, nil
	}
	msg := b.LoadMessage(id)
	if err := msg.Ready(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

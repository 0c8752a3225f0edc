package warble

import (
	"context"
	"fmt"

	"github.com/warble-im/warble/puppet"
)

// ToFileBox extracts the file carried by an attachment, audio, video or
// emoticon message.
func (m *Message) ToFileBox(ctx context.Context) (*puppet.FileBox, error) {
	if err := m.requireType(puppet.MessageTypeAttachment, puppet.MessageTypeAudio,
		puppet.MessageTypeVideo, puppet.MessageTypeEmoticon); err != nil {
		return nil, err
	}
	return m.bot.puppet.MessageFile(ctx, m.id)
}

// ToImage extracts the file carried by an image message.
func (m *Message) ToImage(ctx context.Context) (*puppet.FileBox, error) {
	if err := m.requireType(puppet.MessageTypeImage); err != nil {
		return nil, err
	}
	return m.bot.puppet.MessageFile(ctx, m.id)
}

// ToContact resolves the contact shared by a contact-card message to a
// ready handle.
func (m *Message) ToContact(ctx context.Context) (*Contact, error) {
	if err := m.requireType(puppet.MessageTypeContactCard); err != nil {
		return nil, err
	}
	contactID, err := m.bot.puppet.MessageContact(ctx, m.id)
	if err != nil {
		return nil, fmt.Errorf("message %s contact: %w", m.id, err)
	}
	c := m.bot.Contact(contactID)
	if err := c.Ready(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ToURLLink extracts the link descriptor of a url-link message.
func (m *Message) ToURLLink(ctx context.Context) (*puppet.URLLinkPayload, error) {
	if err := m.requireType(puppet.MessageTypeURLLink); err != nil {
		return nil, err
	}
	return m.bot.puppet.MessageURL(ctx, m.id)
}

// ToMiniProgram extracts the mini-program descriptor of a mini-program
// message.
func (m *Message) ToMiniProgram(ctx context.Context) (*puppet.MiniProgramPayload, error) {
	if err := m.requireType(puppet.MessageTypeMiniProgram); err != nil {
		return nil, err
	}
	return m.bot.puppet.MessageMiniProgram(ctx, m.id)
}

// ToLocation extracts the location descriptor of a location message.
func (m *Message) ToLocation(ctx context.Context) (*puppet.LocationPayload, error) {
	if err := m.requireType(puppet.MessageTypeLocation); err != nil {
		return nil, err
	}
	return m.bot.puppet.MessageLocation(ctx, m.id)
}

// ToRecalled resolves the message this recall notice refers to. The text
// of a recalled-type message carries the original message id. Recall
// lookups are best-effort: a failed retrieval is logged and yields nil,
// not an error.
func (m *Message) ToRecalled(ctx context.Context) (*Message, error) {
	if err := m.requireType(puppet.MessageTypeRecalled); err != nil {
		return nil, err
	}
	originalID, err := m.Text()
	if err != nil {
		return nil, err
	}
	if originalID == "" {
		return nil, nil
	}

	original := m.bot.LoadMessage(originalID)
	if err := original.Ready(ctx); err != nil {
		m.log.Warn().Err(err).Str("messageId", originalID).Msg("recalled message not retrievable")
		return nil, nil
	}
	return original, nil
}

// requireType fails with ErrWrongType unless the message kind is one of
// the wanted variants. No backend call is made on mismatch.
func (m *Message) requireType(wanted ...puppet.MessageType) error {
	actual, err := m.Type()
	if err != nil {
		return err
	}
	for _, w := range wanted {
		if actual == w {
			return nil
		}
	}
	return fmt.Errorf("message %s is %s, not %s: %w", m.id, actual, wanted[0], ErrWrongType)
}

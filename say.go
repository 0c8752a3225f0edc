package warble

import (
	"context"
	"fmt"
	"strconv"

	"github.com/warble-im/warble/puppet"
)

// Say replies in the conversation this message belongs to. The accepted
// payload types, in dispatch priority order:
//
//	*Message                    forwarded to the conversation
//	int, int64, float64         coerced to text
//	string                      sent as text, with a mention id attached
//	                            when the text @-mentions the talker in a room
//	*Contact                    sent as a contact card
//	*puppet.FileBox             sent as a file
//	*puppet.URLLinkPayload      sent as a url-link
//	*puppet.MiniProgramPayload  sent as a mini-program reference
//	*puppet.LocationPayload     sent as a location
//
// Anything else fails with ErrBadSayable. When the backend reports the id
// of the outgoing message, the returned handle is already ready; nil is
// returned when the backend reports nothing.
func (m *Message) Say(ctx context.Context, sayable any) (*Message, error) {
	conv, err := m.Conversation()
	if err != nil {
		return nil, err
	}

	switch v := sayable.(type) {
	case *Message:
		return v.Forward(ctx, conv)
	case int:
		return m.sayText(ctx, conv, strconv.Itoa(v))
	case int64:
		return m.sayText(ctx, conv, strconv.FormatInt(v, 10))
	case float64:
		return m.sayText(ctx, conv, strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		return m.sayText(ctx, conv, v)
	case *Contact:
		id, err := m.bot.puppet.MessageSendContact(ctx, conv.ID(), v.ID())
		if err != nil {
			return nil, err
		}
		return m.bot.wrapSent(ctx, id)
	case *puppet.FileBox:
		id, err := m.bot.puppet.MessageSendFile(ctx, conv.ID(), v)
		if err != nil {
			return nil, err
		}
		return m.bot.wrapSent(ctx, id)
	case *puppet.URLLinkPayload:
		id, err := m.bot.puppet.MessageSendURL(ctx, conv.ID(), v)
		if err != nil {
			return nil, err
		}
		return m.bot.wrapSent(ctx, id)
	case *puppet.MiniProgramPayload:
		id, err := m.bot.puppet.MessageSendMiniProgram(ctx, conv.ID(), v)
		if err != nil {
			return nil, err
		}
		return m.bot.wrapSent(ctx, id)
	case *puppet.LocationPayload:
		// TODO: locations are sent targeting the message's own id, not the
		// conversation id, unlike every other branch. Matches the upstream
		// puppet behavior today; confirm the contract before changing.
		id, err := m.bot.puppet.MessageSendLocation(ctx, m.id, v)
		if err != nil {
			return nil, err
		}
		return m.bot.wrapSent(ctx, id)
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadSayable, sayable)
	}
}

// sayText sends text to the conversation, attaching the talker's mention
// id when replying in a room with text that @-mentions them.
func (m *Message) sayText(ctx context.Context, conv Conversation, text string) (*Message, error) {
	var mentionIDs []string
	if _, inRoom := conv.(*Room); inRoom {
		if talker, err := m.Talker(); err == nil && talker != nil && textMentions(text, talker) {
			mentionIDs = []string{talker.ID()}
		}
	}
	id, err := m.bot.puppet.MessageSendText(ctx, conv.ID(), text, mentionIDs)
	if err != nil {
		return nil, err
	}
	return m.bot.wrapSent(ctx, id)
}

// sayTo dispatches a sayable to an explicit conversation id, for sends
// that do not originate from a message (Contact.Say, Room.Say).
func sayTo(ctx context.Context, b *Bot, conversationID string, sayable any, mentionIDs []string) (string, error) {
	p := b.puppet
	switch v := sayable.(type) {
	case int:
		return p.MessageSendText(ctx, conversationID, strconv.Itoa(v), mentionIDs)
	case int64:
		return p.MessageSendText(ctx, conversationID, strconv.FormatInt(v, 10), mentionIDs)
	case float64:
		return p.MessageSendText(ctx, conversationID, strconv.FormatFloat(v, 'f', -1, 64), mentionIDs)
	case string:
		return p.MessageSendText(ctx, conversationID, v, mentionIDs)
	case *Contact:
		return p.MessageSendContact(ctx, conversationID, v.ID())
	case *puppet.FileBox:
		return p.MessageSendFile(ctx, conversationID, v)
	case *puppet.URLLinkPayload:
		return p.MessageSendURL(ctx, conversationID, v)
	case *puppet.MiniProgramPayload:
		return p.MessageSendMiniProgram(ctx, conversationID, v)
	case *puppet.LocationPayload:
		return p.MessageSendLocation(ctx, conversationID, v)
	default:
		return "", fmt.Errorf("%w: %T", ErrBadSayable, sayable)
	}
}

package warble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// atSeparator is the unicode FOUR-PER-EM SPACE some platforms insert
// after each completed @-mention.
const atSeparator = "\u2005"

// MentionList resolves the contacts mentioned by this message.
//
// When the payload carries a structured mention-id list, those ids are
// resolved directly. Otherwise the text is parsed heuristically: fragments
// containing '@' produce candidate names (see mentionCandidates) which are
// matched against the room's member display names. All matches are
// returned; duplicates are possible when candidates overlap.
func (m *Message) MentionList(ctx context.Context) ([]*Contact, error) {
	pl, err := m.payloadOrErr()
	if err != nil {
		return nil, err
	}

	if len(pl.MentionIDs) > 0 {
		return m.resolveMentionIDs(ctx, pl.MentionIDs)
	}

	if pl.RoomID == "" {
		return nil, nil
	}
	members, err := m.bot.Room(pl.RoomID).MemberList(ctx)
	if err != nil {
		return nil, err
	}

	var mentions []*Contact
	for _, candidate := range mentionCandidates(pl.Text) {
		for _, member := range members {
			if member.Name() == candidate || (member.Alias() != "" && member.Alias() == candidate) {
				mentions = append(mentions, member)
			}
		}
	}
	return mentions, nil
}

// resolveMentionIDs readies the mentioned contacts concurrently.
func (m *Message) resolveMentionIDs(ctx context.Context, ids []string) ([]*Contact, error) {
	contacts := make([]*Contact, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			c := m.bot.Contact(id)
			if err := c.Ready(ctx); err != nil {
				errs[i] = err
				return
			}
			contacts[i] = c
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("resolving mentions: %w", err)
		}
	}
	return contacts, nil
}

// MentionSelf reports whether the current session identity is mentioned.
// Messages outside a room with no structured mentions never mention self.
func (m *Message) MentionSelf(ctx context.Context) (bool, error) {
	mentions, err := m.MentionList(ctx)
	if err != nil {
		return false, err
	}
	selfID := m.bot.SelfID()
	for _, c := range mentions {
		if c.ID() == selfID {
			return true, nil
		}
	}
	return false, nil
}

// MentionText returns the message body with every resolved mention's
// alias-or-name (plus one trailing separator character) stripped.
func (m *Message) MentionText(ctx context.Context) (string, error) {
	text, err := m.Text()
	if err != nil {
		return "", err
	}
	mentions, err := m.MentionList(ctx)
	if err != nil {
		return "", err
	}

	for _, c := range mentions {
		display := c.Alias()
		if display == "" {
			display = c.Name()
		}
		text = stripMention(text, display)
	}
	return strings.TrimSpace(text), nil
}

// stripMention removes the first "@name" occurrence and one trailing
// separator (or plain space) after it.
func stripMention(text, name string) string {
	if name == "" {
		return text
	}
	target := "@" + name
	idx := strings.Index(text, target)
	if idx < 0 {
		return text
	}
	end := idx + len(target)
	if rest := text[end:]; rest != "" {
		if r, size := utf8.DecodeRuneInString(rest); r == '\u2005' || r == ' ' {
			end += size
		}
	}
	return text[:idx] + text[end:]
}

// mentionCandidates extracts candidate mention names from raw text: the
// text is split on the at-separator, fragments containing '@' are reduced
// to their @-chain, and each chain produces every suffix-aligned name.
func mentionCandidates(text string) []string {
	var candidates []string
	for _, frag := range strings.Split(text, atSeparator) {
		if !strings.Contains(frag, "@") {
			continue
		}
		candidates = append(candidates, multipleAt(frag)...)
	}
	return candidates
}

// multipleAt tolerates names that themselves contain '@' by walking the
// chain right to left: "hello@a@b@c" yields "c", "b@c", "a@b@c".
func multipleAt(s string) []string {
	if i := strings.Index(s, "@"); i > 0 {
		s = s[i:]
	}

	parts := strings.Split(s, "@")
	var name string
	var names []string
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		name = parts[i] + "@" + name
		names = append(names, name[:len(name)-1])
	}
	return names
}

// textMentions reports whether the text @-mentions the given contact by
// name or alias.
func textMentions(text string, c *Contact) bool {
	for _, candidate := range mentionCandidates(text) {
		if candidate == c.Name() || (c.Alias() != "" && candidate == c.Alias()) {
			return true
		}
	}
	return false
}

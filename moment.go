package warble

import "context"

// Moment is a handle to a timeline post. No bundled puppet implements the
// moment surface yet, so posting and listing are inert placeholders kept
// for API completeness.
type Moment struct {
	bot *Bot
	id  string
}

// ID returns the moment identifier.
func (m *Moment) ID() string { return m.id }

// PostMoment publishes a sayable to the timeline. Always resolves empty.
func (b *Bot) PostMoment(ctx context.Context, sayable any) (*Moment, error) {
	return nil, nil
}

// MomentTimeline lists timeline posts. Always resolves empty.
func (b *Bot) MomentTimeline(ctx context.Context) ([]*Moment, error) {
	return nil, nil
}

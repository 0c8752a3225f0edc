package warble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warble-im/warble/puppet"
)

func TestToContactTypeMismatch(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{
		TalkerID:   "alice",
		ListenerID: "self-id",
		Type:       puppet.MessageTypeText,
		Text:       "not a card",
	})

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))

	c, err := m.ToContact(context.Background())
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrWrongType)
	// The kind check fires before any backend fetch: a missing card
	// payload would surface as ErrNotFound instead.
	assert.NotErrorIs(t, err, puppet.ErrNotFound)
}

func TestToContact(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{
		TalkerID:   "alice",
		ListenerID: "self-id",
		Type:       puppet.MessageTypeContactCard,
	})
	p.SetCard(id, "bob")

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))

	c, err := m.ToContact(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob", c.ID())
	assert.True(t, c.IsReady())
	assert.Equal(t, "Bob", c.Name())
}

func TestToURLLinkRoundTrip(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{
		TalkerID:   "alice",
		ListenerID: "self-id",
		Type:       puppet.MessageTypeURLLink,
		Text:       "https://example.com",
	})
	link := puppet.URLLinkPayload{
		URL:          "https://example.com",
		Title:        "Example",
		Description:  "An example page",
		ThumbnailURL: "https://example.com/t.png",
	}
	p.SetURL(id, link)

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))

	got, err := m.ToURLLink(context.Background())
	require.NoError(t, err)
	// Fields equal exactly what the backend returned, untransformed.
	assert.Equal(t, link, *got)
}

func TestToFileBoxAcceptsMediaKinds(t *testing.T) {
	bot, p := newTestBot(t)
	ctx := context.Background()

	for _, typ := range []puppet.MessageType{
		puppet.MessageTypeAttachment,
		puppet.MessageTypeAudio,
		puppet.MessageTypeVideo,
		puppet.MessageTypeEmoticon,
	} {
		id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Type: typ})
		p.SetFile(id, puppet.FileBox{Name: "blob.bin"})

		m := bot.LoadMessage(id)
		require.NoError(t, m.Ready(ctx))
		box, err := m.ToFileBox(ctx)
		require.NoError(t, err, "type %s", typ)
		assert.Equal(t, "blob.bin", box.Name)
	}

	textID := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "hi"})
	m := bot.LoadMessage(textID)
	require.NoError(t, m.Ready(ctx))
	_, err := m.ToFileBox(ctx)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestToImage(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Type: puppet.MessageTypeImage})
	p.SetFile(id, puppet.FileBox{Name: "photo.jpg", MimeType: "image/jpeg"})

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))

	box, err := m.ToImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", box.Name)

	_, err = m.ToFileBox(context.Background())
	assert.ErrorIs(t, err, ErrWrongType, "images are not plain attachments")
}

func TestToMiniProgram(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Type: puppet.MessageTypeMiniProgram})
	app := puppet.MiniProgramPayload{AppID: "app-1", Title: "Shop", PagePath: "pages/index"}
	p.SetMiniProgram(id, app)

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))

	got, err := m.ToMiniProgram(context.Background())
	require.NoError(t, err)
	assert.Equal(t, app, *got)
}

func TestToLocation(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Type: puppet.MessageTypeLocation})
	loc := puppet.LocationPayload{Latitude: 31.23, Longitude: 121.47, Name: "Shanghai"}
	p.SetLocation(id, loc)

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))

	got, err := m.ToLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, loc, *got)
}

func TestToRecalled(t *testing.T) {
	bot, p := newTestBot(t)
	ctx := context.Background()

	original := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "take this back"})
	notice := p.AddMessage(puppet.MessagePayload{
		TalkerID:   "alice",
		ListenerID: "self-id",
		Type:       puppet.MessageTypeRecalled,
		Text:       original,
	})

	m := bot.LoadMessage(notice)
	require.NoError(t, m.Ready(ctx))

	recalled, err := m.ToRecalled(ctx)
	require.NoError(t, err)
	require.NotNil(t, recalled)
	assert.Equal(t, original, recalled.ID())
	assert.True(t, recalled.IsReady())
}

func TestToRecalledBestEffort(t *testing.T) {
	bot, p := newTestBot(t)
	notice := p.AddMessage(puppet.MessagePayload{
		TalkerID:   "alice",
		ListenerID: "self-id",
		Type:       puppet.MessageTypeRecalled,
		Text:       "gone-forever",
	})

	m := bot.LoadMessage(notice)
	require.NoError(t, m.Ready(context.Background()))

	// The original cannot be fetched: that is nil, not an error.
	recalled, err := m.ToRecalled(context.Background())
	require.NoError(t, err)
	assert.Nil(t, recalled)
}

func TestExtractorsRequireReady(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Type: puppet.MessageTypeURLLink})

	_, err := bot.LoadMessage(id).ToURLLink(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

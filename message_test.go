package warble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
	"github.com/warble-im/warble/puppet/memory"
)

// newTestBot builds a bot over a memory puppet seeded with the fixtures
// shared by most tests: the session contact, two peers and one room.
func newTestBot(t *testing.T) (*Bot, *memory.Puppet) {
	t.Helper()
	p := memory.New("self-id", logging.Nop())
	p.AddContact(puppet.ContactPayload{ID: "self-id", Name: "Warble"})
	p.AddContact(puppet.ContactPayload{ID: "alice", Name: "Alice"})
	p.AddContact(puppet.ContactPayload{ID: "bob", Name: "Bob", Alias: "bobby"})
	p.AddRoom(puppet.RoomPayload{
		ID:        "room-1",
		Topic:     "general",
		MemberIDs: []string{"self-id", "alice", "bob"},
	})
	return New(p, logging.Nop()), p
}

func TestAccessorsRequireReady(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "hi"})

	m := bot.LoadMessage(id)
	assert.False(t, m.IsReady())

	_, err := m.Talker()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Listener()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Room()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Text()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Type()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Date()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Conversation()
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, m.Ready(context.Background()))
	assert.True(t, m.IsReady())

	talker, err := m.Talker()
	require.NoError(t, err)
	assert.Equal(t, "alice", talker.ID())

	listener, err := m.Listener()
	require.NoError(t, err)
	assert.Equal(t, "self-id", listener.ID())

	room, err := m.Room()
	require.NoError(t, err)
	assert.Nil(t, room)

	text, err := m.Text()
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	typ, err := m.Type()
	require.NoError(t, err)
	assert.Equal(t, puppet.MessageTypeText, typ)

	date, err := m.Date()
	require.NoError(t, err)
	assert.False(t, date.IsZero())
}

func TestReadyIsIdempotent(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "hi"})

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))
	require.NoError(t, m.Ready(context.Background()))
	require.NoError(t, m.Ready(context.Background()))

	assert.Equal(t, 1, p.PayloadCalls(id), "payload should be fetched exactly once")
}

func TestContactReadyConcurrentFetchesOnce(t *testing.T) {
	bot, p := newTestBot(t)

	// Cached handles are shared, so concurrent readying (as in the
	// FindMessages fan-out over messages with a common talker) must still
	// hit the backend exactly once.
	c := bot.Contact("alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Ready(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.ContactCalls("alice"), "payload should be fetched exactly once")
	assert.Equal(t, "Alice", c.Name())
}

func TestReadyHydratesReferencedHandles(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", RoomID: "room-1", Text: "hi"})

	m := bot.LoadMessage(id)
	require.NoError(t, m.Ready(context.Background()))

	// Downstream accessors are synchronous: the referenced handles must
	// already be ready.
	talker, err := m.Talker()
	require.NoError(t, err)
	assert.True(t, talker.IsReady())
	assert.Equal(t, "Alice", talker.Name())

	room, err := m.Room()
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.True(t, room.IsReady())
	assert.Equal(t, "general", room.Topic())
}

func TestReadyPropagatesBackendError(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", Text: "hi"})
	p.FailPayloads[id] = true

	m := bot.LoadMessage(id)
	err := m.Ready(context.Background())
	assert.ErrorIs(t, err, puppet.ErrNotFound)
	assert.False(t, m.IsReady())
}

func TestConversationPrefersRoom(t *testing.T) {
	bot, p := newTestBot(t)
	roomMsg := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", RoomID: "room-1", Text: "a"})
	dmMsg := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "b"})

	m1 := bot.LoadMessage(roomMsg)
	require.NoError(t, m1.Ready(context.Background()))
	conv, err := m1.Conversation()
	require.NoError(t, err)
	assert.Equal(t, "room-1", conv.ID())
	assert.IsType(t, &Room{}, conv)

	m2 := bot.LoadMessage(dmMsg)
	require.NoError(t, m2.Ready(context.Background()))
	conv, err = m2.Conversation()
	require.NoError(t, err)
	assert.Equal(t, "alice", conv.ID())
	assert.IsType(t, &Contact{}, conv)
}

func TestSelf(t *testing.T) {
	bot, p := newTestBot(t)
	mine := p.AddMessage(puppet.MessagePayload{TalkerID: "self-id", ListenerID: "alice", Text: "a"})
	theirs := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "b"})

	m1 := bot.LoadMessage(mine)
	require.NoError(t, m1.Ready(context.Background()))
	assert.True(t, m1.Self())

	m2 := bot.LoadMessage(theirs)
	require.NoError(t, m2.Ready(context.Background()))
	assert.False(t, m2.Self())

	// Unready handles swallow the failure and report false.
	assert.False(t, bot.LoadMessage(mine).Self())
}

func TestFindMessages(t *testing.T) {
	bot, p := newTestBot(t)
	a := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "deploy done"})
	b := p.AddMessage(puppet.MessagePayload{TalkerID: "bob", ListenerID: "self-id", Text: "deploy failed"})
	p.AddMessage(puppet.MessagePayload{TalkerID: "bob", ListenerID: "self-id", Text: "lunch?"})

	found := bot.FindMessages(context.Background(), "deploy")
	require.Len(t, found, 2)
	assert.Equal(t, a, found[0].ID(), "backend order is preserved")
	assert.Equal(t, b, found[1].ID())
	for _, m := range found {
		assert.True(t, m.IsReady())
	}
}

func TestFindMessagesDropsUnreadyable(t *testing.T) {
	bot, p := newTestBot(t)
	good := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "deploy done"})
	bad := p.AddMessage(puppet.MessagePayload{TalkerID: "bob", ListenerID: "self-id", Text: "deploy failed"})
	p.FailPayloads[bad] = true

	found := bot.FindMessages(context.Background(), "deploy")
	require.Len(t, found, 1)
	assert.Equal(t, good, found[0].ID())
}

func TestFindMessagesSearchFailureIsEmpty(t *testing.T) {
	bot, p := newTestBot(t)
	p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "deploy done"})
	p.SearchErr = errors.New("backend down")

	found := bot.FindMessages(context.Background(), "deploy")
	assert.Empty(t, found)
}

func TestFindMessage(t *testing.T) {
	bot, p := newTestBot(t)

	assert.Nil(t, bot.FindMessage(context.Background(), "nothing"))

	first := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "ping"})
	p.AddMessage(puppet.MessagePayload{TalkerID: "bob", ListenerID: "self-id", Text: "ping"})

	m := bot.FindMessage(context.Background(), "ping")
	require.NotNil(t, m)
	assert.Equal(t, first, m.ID())
}

func TestForward(t *testing.T) {
	bot, p := newTestBot(t)
	src := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "fyi"})

	m := bot.LoadMessage(src)
	require.NoError(t, m.Ready(context.Background()))

	forwarded, err := m.Forward(context.Background(), bot.Room("room-1"))
	require.NoError(t, err)
	require.NotNil(t, forwarded)
	assert.True(t, forwarded.IsReady())

	room, err := forwarded.Room()
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, "room-1", room.ID())

	text, err := forwarded.Text()
	require.NoError(t, err)
	assert.Equal(t, "fyi", text)
}

func TestForwardRejectionIsReturned(t *testing.T) {
	bot, p := newTestBot(t)
	src := p.AddMessage(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "fyi"})

	m := bot.LoadMessage(src)
	require.NoError(t, m.Ready(context.Background()))

	p.SendErr = errors.New("rejected")
	forwarded, err := m.Forward(context.Background(), bot.Contact("bob"))
	assert.Nil(t, forwarded)
	assert.ErrorContains(t, err, "rejected")
}

func TestRecall(t *testing.T) {
	bot, p := newTestBot(t)
	id := p.AddMessage(puppet.MessagePayload{TalkerID: "self-id", ListenerID: "alice", Text: "oops"})

	ok, err := bot.LoadMessage(id).Recall(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bot.LoadMessage("no-such-message").Recall(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContactAndRoomHandlesAreCached(t *testing.T) {
	bot, _ := newTestBot(t)
	assert.Same(t, bot.Contact("alice"), bot.Contact("alice"))
	assert.Same(t, bot.Room("room-1"), bot.Room("room-1"))
	assert.NotSame(t, bot.Contact("alice"), bot.Contact("bob"))
}

func TestOnMessageReadiesBeforeHandler(t *testing.T) {
	bot, p := newTestBot(t)

	got := make(chan *Message, 1)
	bot.OnMessage(func(m *Message) { got <- m })

	p.Inject(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "hello"})

	select {
	case m := <-got:
		assert.True(t, m.IsReady())
		text, err := m.Text()
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestMomentStubs(t *testing.T) {
	bot, _ := newTestBot(t)

	m, err := bot.PostMoment(context.Background(), "a post")
	require.NoError(t, err)
	assert.Nil(t, m)

	timeline, err := bot.MomentTimeline(context.Background())
	require.NoError(t, err)
	assert.Empty(t, timeline)
}

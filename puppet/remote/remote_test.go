package remote

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
	"github.com/warble-im/warble/puppet/memory"
)

// startPair wires a memory puppet behind a remote server and returns a
// connected client.
func startPair(t *testing.T, token string) (*memory.Puppet, *Client) {
	t.Helper()

	backend := memory.New("self-id", logging.Nop())
	backend.AddContact(puppet.ContactPayload{ID: "alice", Name: "Alice"})
	backend.AddRoom(puppet.RoomPayload{ID: "room-1", Topic: "general", MemberIDs: []string{"self-id", "alice"}})

	srv := NewServer(backend, token, logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http")
	client := NewClient(endpoint, token, logging.Nop())
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(func() { client.Stop(context.Background()) })

	return backend, client
}

func TestHandshakeLearnsIdentity(t *testing.T) {
	_, client := startPair(t, "")
	assert.Equal(t, "self-id", client.SelfID())
	assert.Equal(t, "remote", client.Kind())
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	backend := memory.New("self-id", logging.Nop())
	srv := NewServer(backend, "sekrit", logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http")
	client := NewClient(endpoint, "wrong", logging.Nop())
	err := client.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestMessageRoundTrip(t *testing.T) {
	backend, client := startPair(t, "token-1")
	ctx := context.Background()

	id := backend.AddMessage(puppet.MessagePayload{
		TalkerID:   "alice",
		ListenerID: "self-id",
		Text:       "over the wire",
		MentionIDs: []string{"self-id"},
	})

	m, err := client.MessagePayload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", m.TalkerID)
	assert.Equal(t, "over the wire", m.Text)
	assert.Equal(t, []string{"self-id"}, m.MentionIDs)
}

func TestSendTextThroughServer(t *testing.T) {
	backend, client := startPair(t, "")
	ctx := context.Background()

	id, err := client.MessageSendText(ctx, "room-1", "hello room", []string{"alice"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	m, err := backend.MessagePayload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "room-1", m.RoomID)
	assert.Equal(t, "hello room", m.Text)
	assert.Equal(t, []string{"alice"}, m.MentionIDs)
}

func TestSendStructuredPayloads(t *testing.T) {
	_, client := startPair(t, "")
	ctx := context.Background()

	fileID, err := client.MessageSendFile(ctx, "alice", &puppet.FileBox{Name: "a.txt", Size: 3})
	require.NoError(t, err)
	box, err := client.MessageFile(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", box.Name)

	urlID, err := client.MessageSendURL(ctx, "alice", &puppet.URLLinkPayload{URL: "https://example.com", Title: "Example"})
	require.NoError(t, err)
	link, err := client.MessageURL(ctx, urlID)
	require.NoError(t, err)
	assert.Equal(t, "Example", link.Title)

	locID, err := client.MessageSendLocation(ctx, "alice", &puppet.LocationPayload{Latitude: 1, Longitude: 2, Name: "here"})
	require.NoError(t, err)
	loc, err := client.MessageLocation(ctx, locID)
	require.NoError(t, err)
	assert.Equal(t, "here", loc.Name)
}

func TestSearchAndForward(t *testing.T) {
	backend, client := startPair(t, "")
	ctx := context.Background()

	a := backend.AddMessage(puppet.MessagePayload{TalkerID: "alice", Text: "needle one"})
	backend.AddMessage(puppet.MessagePayload{TalkerID: "alice", Text: "nothing"})

	ids, err := client.MessageSearch(ctx, "needle")
	require.NoError(t, err)
	assert.Equal(t, []string{a}, ids)

	fwd, err := client.MessageForward(ctx, "alice", a)
	require.NoError(t, err)
	m, err := client.MessagePayload(ctx, fwd)
	require.NoError(t, err)
	assert.Equal(t, "needle one", m.Text)
}

func TestSentinelErrorsCrossTheWire(t *testing.T) {
	_, client := startPair(t, "")
	ctx := context.Background()

	_, err := client.MessagePayload(ctx, "no-such-message")
	assert.ErrorIs(t, err, puppet.ErrNotFound)

	_, err = client.ContactPayload(ctx, "no-such-contact")
	assert.ErrorIs(t, err, puppet.ErrNotFound)
}

func TestRoomOperations(t *testing.T) {
	_, client := startPair(t, "")
	ctx := context.Background()

	r, err := client.RoomPayload(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "general", r.Topic)

	members, err := client.RoomMembers(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"self-id", "alice"}, members)
}

func TestEventsReachClient(t *testing.T) {
	backend, client := startPair(t, "")

	got := make(chan string, 1)
	client.OnMessage(func(id string) { got <- id })

	id := backend.Inject(puppet.MessagePayload{TalkerID: "alice", ListenerID: "self-id", Text: "ping"})

	select {
	case received := <-got:
		assert.Equal(t, id, received)
	case <-time.After(5 * time.Second):
		t.Fatal("message event never arrived")
	}
}

func TestCallsFailBeforeStart(t *testing.T) {
	client := NewClient("ws://127.0.0.1:0/ws", "", logging.Nop())
	_, err := client.MessagePayload(context.Background(), "x")
	assert.ErrorIs(t, err, puppet.ErrNotStarted)
}

func TestReadLoopExitFailsPending(t *testing.T) {
	client := NewClient("ws://127.0.0.1:0/ws", "", logging.Nop())

	// A call registered just before the connection is torn down must be
	// unblocked when the read loop exits, whichever path it takes out.
	ch := make(chan Frame, 1)
	client.pending["req-1"] = ch

	client.readLoop()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "pending channel should be closed, not sent to")
	default:
		t.Fatal("pending call was left blocked")
	}
}

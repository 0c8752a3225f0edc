package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warble-im/warble/internal/logging"
	"github.com/warble-im/warble/puppet"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := &puppet.MessagePayload{
		ID:         "msg-1",
		TalkerID:   "alice",
		ListenerID: "bob",
		Type:       puppet.MessageTypeText,
		Text:       "hello world",
		Timestamp:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		MentionIDs: []string{"bob"},
	}
	require.NoError(t, s.Put(in))

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.TalkerID, got.TalkerID)
	assert.Equal(t, in.ListenerID, got.ListenerID)
	assert.Equal(t, in.Type, got.Type)
	assert.Equal(t, in.Text, got.Text)
	assert.True(t, in.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, in.MentionIDs, got.MentionIDs)
}

func TestGetMiss(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("no-such-message")
	assert.ErrorIs(t, err, puppet.ErrNotFound)
}

func TestPutReplaces(t *testing.T) {
	s := newTestStore(t)

	m := &puppet.MessagePayload{ID: "msg-1", TalkerID: "alice", Text: "first", Timestamp: time.Now()}
	require.NoError(t, s.Put(m))
	m.Text = "second"
	require.NoError(t, s.Put(m))

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearchOrdersByTime(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Inserted out of chronological order on purpose.
	require.NoError(t, s.Put(&puppet.MessagePayload{ID: "b", TalkerID: "x", Text: "deploy done", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, s.Put(&puppet.MessagePayload{ID: "a", TalkerID: "x", Text: "deploy started", Timestamp: base}))
	require.NoError(t, s.Put(&puppet.MessagePayload{ID: "c", TalkerID: "x", Text: "lunch plans", Timestamp: base.Add(2 * time.Minute)}))

	ids, err := s.Search("deploy", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestSearchLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	for i, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Put(&puppet.MessagePayload{
			ID: id, TalkerID: "x", Text: "needle", Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	ids, err := s.Search("needle", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSearchQuotesUserText(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(&puppet.MessagePayload{ID: "m", TalkerID: "x", Text: `say "hi" OR else`, Timestamp: time.Now()}))

	// Quotes and FTS keywords in the query must not break match syntax.
	ids, err := s.Search(`"hi" OR`, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, ids)

	ids, err = s.Search("unrelated", 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

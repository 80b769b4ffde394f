package sqlite

import (
	"testing"

	"github.com/hupe1980/parley/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	conv := core.NewConversation("conv-1", "cats vs dogs", "sam", []string{"Alpha", "Beta"}, []string{"Beta", "Alpha"})
	require.NoError(t, s.Create(conv))

	got, err := s.Get("conv-1")
	require.NoError(t, err)
	assert.Equal(t, "cats vs dogs", got.Topic)
	assert.Equal(t, "sam", got.UserName)
	assert.Equal(t, []string{"Alpha", "Beta"}, got.Participants())
	assert.Equal(t, []string{"Beta", "Alpha"}, got.SpeakingOrder())
	assert.Equal(t, core.StatusActive, got.Status())
}

func TestStore_GetNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("ghost")
	assert.ErrorIs(t, err, core.ErrConversationNotFound)
}

func TestStore_TranscriptOrder(t *testing.T) {
	s := openTestStore(t)
	conv := core.NewConversation("conv-1", "t", "u", []string{"A"}, []string{"A"})
	require.NoError(t, s.Create(conv))

	require.NoError(t, s.AppendMessage("conv-1", core.NewUserMessage("conv-1", "u", "go")))
	require.NoError(t, s.AppendMessage("conv-1", core.NewMessage("conv-1", "A", "first")))
	require.NoError(t, s.AppendMessage("conv-1", core.NewMessage("conv-1", "A", "second")))

	got, err := s.Get("conv-1")
	require.NoError(t, err)
	transcript := got.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, "go", transcript[0].Text)
	assert.Equal(t, "first", transcript[1].Text)
	assert.Equal(t, "second", transcript[2].Text)
}

func TestStore_AppendMessageIdempotent(t *testing.T) {
	s := openTestStore(t)
	conv := core.NewConversation("conv-1", "t", "u", []string{"A"}, []string{"A"})
	require.NoError(t, s.Create(conv))

	m := core.NewMessage("conv-1", "A", "hello")
	require.NoError(t, s.AppendMessage("conv-1", m))
	// Re-appending the same id must be a silent no-op, not a constraint
	// error.
	require.NoError(t, s.AppendMessage("conv-1", m))

	got, err := s.Get("conv-1")
	require.NoError(t, err)
	transcript := got.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "hello", transcript[0].Text)

	assert.ErrorIs(t, s.AppendMessage("ghost", m), core.ErrConversationNotFound)
}

func TestStore_UpdateStatusAndCursor(t *testing.T) {
	s := openTestStore(t)
	conv := core.NewConversation("conv-1", "t", "u", []string{"A", "B"}, []string{"B", "A"})
	require.NoError(t, s.Create(conv))

	require.NoError(t, s.UpdateStatus("conv-1", core.StatusPaused))
	require.NoError(t, s.UpdateCursor("conv-1", 1))

	got, err := s.Get("conv-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaused, got.Status())
	assert.Equal(t, 1, got.Cursor())

	assert.ErrorIs(t, s.UpdateStatus("ghost", core.StatusPaused), core.ErrConversationNotFound)
}

func TestStore_AddParticipant(t *testing.T) {
	s := openTestStore(t)
	conv := core.NewConversation("conv-1", "t", "u", []string{"A", "B"}, []string{"B", "A"})
	require.NoError(t, s.Create(conv))

	require.NoError(t, s.AddParticipant("conv-1", "C"))
	// Idempotent on id collision.
	require.NoError(t, s.AddParticipant("conv-1", "C"))

	got, err := s.Get("conv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, got.Participants())
	assert.Equal(t, []string{"B", "A", "C"}, got.SpeakingOrder())
}

package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/parley/broadcast"
	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/logging"
	"github.com/hupe1980/parley/model"
	"github.com/hupe1980/parley/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityOrder keeps the speaking order equal to registration order so
// tests can reason about who speaks when.
func identityOrder(ids []string) []string { return append([]string{}, ids...) }

// reverseOrder simulates a fixed shuffle seed producing the reversed order.
func reverseOrder(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func newTestEngine(t *testing.T, shuffler func([]string) []string, mocks map[string]*model.MockModel, optFns ...func(o *Options)) *Engine {
	t.Helper()

	reg := registry.New()
	for id, m := range mocks {
		_, err := reg.Register(registry.Spec{ID: id, Persona: "You are " + id + ".", Provider: m})
		require.NoError(t, err)
	}

	e := New(append([]func(o *Options){func(o *Options) {
		o.Registry = reg
		o.Shuffler = shuffler
		o.Config = Config{
			TurnDelay:         time.Millisecond,
			ProviderTimeout:   5 * time.Second,
			CommandBufferSize: 16,
		}
	}}, optFns...)...)
	t.Cleanup(e.Close)
	return e
}

// waitFor drains the subscription until a notification of the wanted kind
// arrives or the timeout expires.
func waitFor(t *testing.T, sub *broadcast.Subscription, kind core.NotificationKind, timeout time.Duration) core.Notification {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", kind)
			}
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s notification", kind)
		}
	}
}

// assertQuiet asserts that no notification of the given kind arrives within
// the window.
func assertQuiet(t *testing.T, sub *broadcast.Subscription, kind core.NotificationKind, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			if n.Kind == kind {
				t.Fatalf("unexpected %s notification: %+v", kind, n)
			}
		case <-deadline:
			return
		}
	}
}

func TestCreateConversation_Validation(t *testing.T) {
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": model.NewMockModel("Alpha")})

	_, err := e.CreateConversation("", "sam", []string{"Alpha"})
	assert.ErrorIs(t, err, core.ErrEmptyTopic)

	_, err = e.CreateConversation("topic", "sam", nil)
	assert.ErrorIs(t, err, core.ErrNoParticipants)

	_, err = e.CreateConversation("topic", "sam", []string{"Ghost"})
	assert.ErrorIs(t, err, core.ErrParticipantNotFound)

	_, err = e.CreateConversation("topic", "sam", []string{"Alpha", "Alpha"})
	assert.Error(t, err)

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, conv.Status())
	assert.Equal(t, []string{"Alpha"}, conv.SpeakingOrder())
}

func TestAtMostOneConcurrentTurn(t *testing.T) {
	shared := model.NewMockModel("shared")
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": shared, "Beta": shared})

	conv, err := e.CreateConversation("load", "sam", []string{"Alpha", "Beta"})
	require.NoError(t, err)

	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "go"))

	// Let a good number of turns churn through, then stop.
	for i := 0; i < 12; i++ {
		waitFor(t, sub, core.KindMessage, 2*time.Second)
	}
	require.NoError(t, e.Stop(conv.ID))

	assert.GreaterOrEqual(t, shared.Calls(), int64(11))
	assert.Equal(t, int64(1), shared.MaxConcurrent(), "no two provider calls may be in flight for one conversation")
}

func TestPauseSuppressesInFlightResult(t *testing.T) {
	gate := make(chan struct{})
	slow := model.NewMockModel("slow")
	slow.Gate(gate)
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": slow, "Beta": slow})

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha", "Beta"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "go"))
	// The user message commits, then Alpha starts thinking.
	waitFor(t, sub, core.KindMessage, time.Second)
	thinking := waitFor(t, sub, core.KindThinking, time.Second)
	assert.Equal(t, "Alpha", thinking.ParticipantID)

	require.NoError(t, e.Pause(conv.ID))
	cleared := waitFor(t, sub, core.KindThinkingCleared, time.Second)
	assert.Equal(t, "Alpha", cleared.ParticipantID)
	status := waitFor(t, sub, core.KindStatus, time.Second)
	assert.Equal(t, core.StatusPaused, status.Status)

	// Release the provider; its result must be discarded, not committed.
	close(gate)
	assertQuiet(t, sub, core.KindMessage, 100*time.Millisecond)
	assertQuiet(t, sub, core.KindThinking, 50*time.Millisecond)

	got, err := e.Conversation(conv.ID)
	require.NoError(t, err)
	transcript := got.Transcript()
	require.Len(t, transcript, 1, "only the user message may be committed")
	assert.True(t, transcript[0].IsUser)
	assert.Empty(t, got.Thinking())
}

func TestResumeTriggersExactlyOneTurn(t *testing.T) {
	gate := make(chan struct{})
	slow := model.NewMockModel("slow")
	slow.Gate(gate)
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": slow, "Beta": slow})

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha", "Beta"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	// Pause an idle conversation, then resume it.
	require.NoError(t, e.Pause(conv.ID))
	waitFor(t, sub, core.KindStatus, time.Second)
	require.NoError(t, e.Resume(conv.ID))

	status := waitFor(t, sub, core.KindStatus, time.Second)
	assert.Equal(t, core.StatusActive, status.Status)

	thinking := waitFor(t, sub, core.KindThinking, time.Second)
	assert.Equal(t, "Alpha", thinking.ParticipantID)
	// Exactly one: the gated provider holds the turn, so a second thinking
	// would mean a double-scheduled turn.
	assertQuiet(t, sub, core.KindThinking, 100*time.Millisecond)
}

func TestStopIsTerminal(t *testing.T) {
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": model.NewMockModel("Alpha")})

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.Stop(conv.ID))
	status := waitFor(t, sub, core.KindStatus, time.Second)
	assert.Equal(t, core.StatusStopped, status.Status)

	// Resume, pause and user messages degrade to logged no-ops.
	require.NoError(t, e.Resume(conv.ID))
	require.NoError(t, e.Pause(conv.ID))
	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "anyone there?"))

	assertQuiet(t, sub, core.KindStatus, 100*time.Millisecond)
	assertQuiet(t, sub, core.KindThinking, 50*time.Millisecond)

	got, err := e.Conversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusStopped, got.Status())
	assert.Empty(t, got.Transcript())
}

func TestStopClosesSubscriptions(t *testing.T) {
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": model.NewMockModel("Alpha")})

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.Stop(conv.ID))

	// The terminal status goes out first, then the hub drops the topic and
	// the channel closes.
	status := waitFor(t, sub, core.KindStatus, time.Second)
	assert.Equal(t, core.StatusStopped, status.Status)

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel still open after stop")
		}
	}
}

// recordingLogger captures the structured records richer loggers receive from
// the turn loop.
type recordingLogger struct {
	logging.NoOpLogger

	mu            sync.Mutex
	providerCalls []string
	turns         []bool
}

func (l *recordingLogger) LogProviderCall(participant, vendor string, dur time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providerCalls = append(l.providerCalls, vendor)
}

func (l *recordingLogger) LogTurn(participant string, cursor int, committed bool, dur time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, committed)
}

func TestTurnMetricsReachRicherLoggers(t *testing.T) {
	rec := &recordingLogger{}
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": model.NewMockModel("Alpha")}, func(o *Options) {
		o.Logger = rec
	})

	conv, err := e.CreateConversation("metrics", "sam", []string{"Alpha"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "go"))
	waitFor(t, sub, core.KindMessage, time.Second) // user message
	waitFor(t, sub, core.KindMessage, time.Second) // Alpha's reply
	require.NoError(t, e.Stop(conv.ID))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.providerCalls)
	assert.Equal(t, "mock", rec.providerCalls[0])
	assert.Contains(t, rec.turns, true)
}

func TestUserInterjectionAdvancesTurn(t *testing.T) {
	gate := make(chan struct{})
	slow := model.NewMockModel("slow")
	slow.Gate(gate)
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": slow, "Beta": slow})

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha", "Beta"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "what do you think?"))

	n := waitFor(t, sub, core.KindMessage, time.Second)
	assert.True(t, n.Message.IsUser)
	assert.Equal(t, "sam", n.Message.Sender)

	thinking := waitFor(t, sub, core.KindThinking, time.Second)
	assert.Equal(t, "Alpha", thinking.ParticipantID)
	assertQuiet(t, sub, core.KindThinking, 100*time.Millisecond)
}

func TestProviderFailureYieldsVisibleMessage(t *testing.T) {
	failing := model.NewMockModel("failing")
	failing.FailWith(errors.New("rate limited"))
	healthy := model.NewMockModel("healthy")
	gate := make(chan struct{})
	healthy.Gate(gate)

	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": failing, "Beta": healthy})

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha", "Beta"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "go"))
	waitFor(t, sub, core.KindMessage, time.Second) // user message

	// Alpha fails visibly instead of silently.
	n := waitFor(t, sub, core.KindMessage, time.Second)
	assert.Equal(t, "Alpha", n.Message.Sender)
	assert.False(t, n.Message.IsUser)
	assert.Contains(t, n.Message.Text, "Alpha could not respond")
	assert.Contains(t, n.Message.Text, "rate limited")

	// The conversation continues to the next speaker.
	thinking := waitFor(t, sub, core.KindThinking, time.Second)
	assert.Equal(t, "Beta", thinking.ParticipantID)
}

func TestLateJoinParticipantEventuallySpeaks(t *testing.T) {
	shared := model.NewMockModel("shared")
	late := model.NewMockModel("late")
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": shared, "Beta": shared, "Gamma": late})

	conv, err := e.CreateConversation("topic", "sam", []string{"Alpha", "Beta"})
	require.NoError(t, err)
	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.AddParticipant(conv.ID, "Gamma"))
	// Unknown participants are rejected before touching the conversation.
	assert.ErrorIs(t, e.AddParticipant(conv.ID, "Ghost"), core.ErrParticipantNotFound)

	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "go"))

	var speakers []string
	deadline := time.After(5 * time.Second)
	for {
		var n core.Notification
		select {
		case n = <-sub.C:
		case <-deadline:
			t.Fatalf("Gamma never scheduled; saw %v", speakers)
		}
		if n.Kind != core.KindThinking {
			continue
		}
		speakers = append(speakers, n.ParticipantID)
		if n.ParticipantID == "Gamma" {
			break
		}
	}
	require.NoError(t, e.Stop(conv.ID))

	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, speakers, "the tail participant is reached after a full cycle")
	assert.GreaterOrEqual(t, late.Calls(), int64(1))
}

func TestEndToEndScenario(t *testing.T) {
	alpha := model.NewMockModel("Alpha")
	alpha.Script("Dogs, obviously.")
	beta := model.NewMockModel("Beta")
	beta.Script("Cats, no contest.")

	// Fixed "shuffle" producing the order [Beta, Alpha]. The generous pacing
	// delay keeps the third turn from starting under the assertions below.
	e := newTestEngine(t, reverseOrder, map[string]*model.MockModel{"Alpha": alpha, "Beta": beta}, func(o *Options) {
		o.Config.TurnDelay = 300 * time.Millisecond
	})

	conv, err := e.CreateConversation("cats vs dogs", "sam", []string{"Alpha", "Beta"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "Alpha"}, conv.SpeakingOrder())

	sub, err := e.Subscribe(conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.SendUserMessage(conv.ID, "sam", "go"))
	waitFor(t, sub, core.KindMessage, time.Second) // user message

	first := waitFor(t, sub, core.KindThinking, time.Second)
	assert.Equal(t, "Beta", first.ParticipantID)
	firstMsg := waitFor(t, sub, core.KindMessage, time.Second)
	assert.Equal(t, "Beta", firstMsg.Message.Sender)
	assert.Equal(t, "Cats, no contest.", firstMsg.Message.Text)

	second := waitFor(t, sub, core.KindThinking, time.Second)
	assert.Equal(t, "Alpha", second.ParticipantID)
	secondMsg := waitFor(t, sub, core.KindMessage, time.Second)
	assert.Equal(t, "Alpha", secondMsg.Message.Sender)
	assert.Equal(t, "Dogs, obviously.", secondMsg.Message.Text)

	got, err := e.Conversation(conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Transcript(), 3, "user message plus one reply per participant")
	assert.Equal(t, 0, got.Cursor(), "cursor wrapped back to the head of the order")

	require.NoError(t, e.Stop(conv.ID))
}

func TestSubscribeUnknownConversation(t *testing.T) {
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": model.NewMockModel("Alpha")})
	_, err := e.Subscribe("ghost")
	assert.ErrorIs(t, err, core.ErrConversationNotFound)
}

func TestSendUserMessageUnknownConversation(t *testing.T) {
	e := newTestEngine(t, identityOrder, map[string]*model.MockModel{"Alpha": model.NewMockModel("Alpha")})
	err := e.SendUserMessage("ghost", "sam", "hello?")
	assert.ErrorIs(t, err, core.ErrConversationNotFound)
}

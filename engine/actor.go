package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/logging"
	"github.com/hupe1980/parley/model"
	"github.com/hupe1980/parley/schedule"
)

// turnLogger and providerCallLogger are satisfied by richer loggers such as
// logging.ParleyLogger; when the configured logger supports them the actor
// emits structured turn and provider-call records alongside the plain
// messages.
type turnLogger interface {
	LogTurn(participant string, cursor int, committed bool, dur time.Duration)
}

type providerCallLogger interface {
	LogProviderCall(participant, vendor string, dur time.Duration, err error)
}

var (
	_ turnLogger         = (*logging.ParleyLogger)(nil)
	_ providerCallLogger = (*logging.ParleyLogger)(nil)
)

// commandKind discriminates the actor's inbound command union.
type commandKind int

const (
	cmdUserMessage commandKind = iota
	cmdPause
	cmdResume
	cmdStop
	cmdAddParticipant
	cmdTurnResult
	cmdTurnTimer
)

// String returns the string representation of the command kind.
func (k commandKind) String() string {
	switch k {
	case cmdUserMessage:
		return "userMessage"
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdStop:
		return "stop"
	case cmdAddParticipant:
		return "addParticipant"
	case cmdTurnResult:
		return "turnResult"
	case cmdTurnTimer:
		return "turnTimer"
	default:
		return "unknown"
	}
}

// command is the unit of work on an actor's queue. epoch correlates deferred
// work (turn results, pacing timers) with the state-machine generation that
// scheduled it; pause, resume and stop bump the epoch so stale work is
// discarded on arrival.
type command struct {
	kind          commandKind
	message       core.Message
	participantID string
	epoch         uint64
	result        turnResult
}

// turnResult carries the outcome of one provider call back to the actor.
type turnResult struct {
	speaker string
	text    string
	err     error
	started time.Time
}

// actor is the owning task for one conversation: the single writer of its
// state and transcript. All mutation flows through the run loop, which is
// what upholds the at-most-one-concurrent-turn invariant.
type actor struct {
	engine *Engine
	conv   *core.Conversation

	commands chan command
	done     chan struct{}

	// Loop-local state; touched only by the run goroutine.
	epoch       uint64
	turnPending bool
	cancelTurn  context.CancelFunc
}

func newActor(e *Engine, conv *core.Conversation) *actor {
	return &actor{
		engine:   e,
		conv:     conv,
		commands: make(chan command, e.config.CommandBufferSize),
		done:     make(chan struct{}),
	}
}

// enqueue delivers a command unless the actor has terminated. It reports
// whether the command was accepted.
func (a *actor) enqueue(cmd command) bool {
	select {
	case a.commands <- cmd:
		return true
	case <-a.done:
		return false
	}
}

// run consumes commands until the conversation stops. Idle conversations
// block here consuming no CPU.
func (a *actor) run() {
	defer close(a.done)
	for cmd := range a.commands {
		if a.handle(cmd) {
			return
		}
	}
}

// handle dispatches one command; it returns true when the actor should
// terminate.
func (a *actor) handle(cmd command) bool {
	switch cmd.kind {
	case cmdUserMessage:
		a.handleUserMessage(cmd.message)
	case cmdPause:
		a.handlePause()
	case cmdResume:
		a.handleResume()
	case cmdStop:
		a.handleStop()
		return true
	case cmdAddParticipant:
		a.handleAddParticipant(cmd.participantID)
	case cmdTurnResult:
		a.handleTurnResult(cmd)
	case cmdTurnTimer:
		a.handleTurnTimer(cmd)
	}
	return false
}

func (a *actor) handleUserMessage(m core.Message) {
	a.commit(m)
	if a.conv.Status() == core.StatusActive && !a.turnPending {
		a.startTurn()
	}
}

func (a *actor) handlePause() {
	if a.conv.Status() != core.StatusActive {
		a.engine.logger.Warn("pause on %s conversation %s is a no-op", a.conv.Status(), a.conv.ID)
		return
	}
	a.invalidateTurn()
	a.clearThinking()
	a.transition(core.StatusPaused)
}

func (a *actor) handleResume() {
	if a.conv.Status() != core.StatusPaused {
		a.engine.logger.Warn("resume on %s conversation %s is a no-op", a.conv.Status(), a.conv.ID)
		return
	}
	a.invalidateTurn()
	a.transition(core.StatusActive)
	a.startTurn()
}

func (a *actor) handleStop() {
	a.invalidateTurn()
	a.clearThinking()
	a.transition(core.StatusStopped)
	a.engine.removeActor(a.conv.ID)
	// Unload the broadcast topic after the stopped status went out:
	// subscribers observe the terminal status, then their channel closes.
	a.engine.hub.Drop(a.conv.ID)
	a.engine.logger.Info("conversation stopped conversation_id=%s", a.conv.ID)
}

func (a *actor) handleAddParticipant(participantID string) {
	if !a.conv.AddParticipant(participantID) {
		a.engine.logger.Debug("participant %s already in conversation %s", participantID, a.conv.ID)
		return
	}
	if err := a.engine.store.AddParticipant(a.conv.ID, participantID); err != nil {
		a.engine.logger.Error("persist participant %s for %s: %v", participantID, a.conv.ID, err)
	}
	a.engine.logger.Info("participant joined conversation_id=%s participant=%s", a.conv.ID, participantID)
}

// handleTurnResult commits or discards the outcome of a provider call. A
// stale epoch means a pause, resume or stop intervened while the call was in
// flight: the transition already cleared the thinking indicator, so the
// result is dropped without any transcript effect.
func (a *actor) handleTurnResult(cmd command) {
	if cmd.epoch != a.epoch {
		a.logTurn(cmd.result, false)
		a.engine.logger.Debug("discarding stale turn result conversation_id=%s speaker=%s", a.conv.ID, cmd.result.speaker)
		return
	}
	a.turnPending = false
	a.cancelTurn = nil

	if a.conv.Status() != core.StatusActive {
		a.logTurn(cmd.result, false)
		return
	}

	speaker := cmd.result.speaker
	var m core.Message
	if cmd.result.err != nil {
		a.engine.logger.Warn("provider failure conversation_id=%s speaker=%s: %v", a.conv.ID, speaker, cmd.result.err)
		m = core.NewMessage(a.conv.ID, speaker, fmt.Sprintf("%s could not respond: %s", speaker, failureReason(cmd.result.err)))
	} else {
		m = core.NewMessage(a.conv.ID, speaker, cmd.result.text)
	}

	a.conv.SetThinking(speaker, false)
	a.commit(m)
	a.logTurn(cmd.result, true)
	a.engine.logger.Debug("turn committed conversation_id=%s speaker=%s duration=%s", a.conv.ID, speaker, time.Since(cmd.result.started))

	a.scheduleNext()
}

// logTurn emits a structured turn record when the configured logger supports
// it.
func (a *actor) logTurn(r turnResult, committed bool) {
	if tl, ok := a.engine.logger.(turnLogger); ok {
		tl.LogTurn(r.speaker, a.conv.Cursor(), committed, time.Since(r.started))
	}
}

// handleTurnTimer fires the turn queued by the pacing delay, re-checking
// status and epoch: a pause or stop during the delay wins.
func (a *actor) handleTurnTimer(cmd command) {
	if cmd.epoch != a.epoch {
		return
	}
	if a.conv.Status() != core.StatusActive || a.turnPending {
		return
	}
	a.startTurn()
}

// startTurn asks the scheduler for the next speaker and launches the
// generation goroutine. With no participants nothing is scheduled and no
// error is surfaced.
func (a *actor) startTurn() {
	speaker, next, ok := schedule.Next(a.conv.SpeakingOrder(), a.conv.Cursor())
	if !ok {
		a.engine.logger.Debug("empty speaking order, nothing scheduled conversation_id=%s", a.conv.ID)
		return
	}
	a.conv.SetCursor(next)
	if err := a.engine.store.UpdateCursor(a.conv.ID, next); err != nil {
		a.engine.logger.Error("persist cursor for %s: %v", a.conv.ID, err)
	}

	a.turnPending = true
	a.conv.SetThinking(speaker, true)
	a.engine.hub.Publish(a.conv.ID, core.NewThinkingNotification(a.conv.ID, speaker))

	// Snapshot the prompt inputs before leaving the loop goroutine.
	req := core.GenerateRequest{
		Transcript: a.conv.TranscriptText(),
		Topic:      a.conv.Topic,
		UserName:   a.conv.UserName,
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.engine.config.ProviderTimeout)
	a.cancelTurn = cancel
	epoch := a.epoch

	go a.generate(ctx, cancel, epoch, speaker, req)
}

// generate runs off-loop: it resolves the speaker, performs the provider
// call and reports back via the command queue. The actor, not this
// goroutine, decides whether the result is committed.
func (a *actor) generate(ctx context.Context, cancel context.CancelFunc, epoch uint64, speaker string, req core.GenerateRequest) {
	defer cancel()
	started := time.Now()

	result := turnResult{speaker: speaker, started: started}

	participant, err := a.engine.registry.Resolve(speaker)
	if err != nil {
		result.err = err
	} else {
		req.Persona = participant.Persona
		resp, genErr := participant.Provider.Generate(ctx, req)
		result.text = resp.Text
		result.err = genErr

		if pl, ok := a.engine.logger.(providerCallLogger); ok {
			vendor := "unknown"
			if ip, ok := participant.Provider.(interface{ Info() model.Info }); ok {
				vendor = ip.Info().Vendor
			}
			pl.LogProviderCall(speaker, vendor, time.Since(started), genErr)
		}
	}

	a.enqueue(command{kind: cmdTurnResult, epoch: epoch, result: result})
}

// scheduleNext arms the pacing delay before the next turn.
func (a *actor) scheduleNext() {
	epoch := a.epoch
	time.AfterFunc(a.engine.config.TurnDelay, func() {
		a.enqueue(command{kind: cmdTurnTimer, epoch: epoch})
	})
}

// commit appends the message everywhere it lives: the in-memory
// conversation, the persistent store (soft failure) and the broadcast
// transcript, which fans it out to subscribers.
func (a *actor) commit(m core.Message) {
	a.conv.Append(m)
	if err := a.engine.store.AppendMessage(a.conv.ID, m); err != nil {
		a.engine.logger.Error("persist message for %s: %v", a.conv.ID, err)
	}
	a.engine.hub.Append(a.conv.ID, m)
}

// invalidateTurn bumps the epoch and cancels any outstanding provider call.
// Cancellation is cooperative: the result, if it arrives anyway, fails the
// epoch check and is discarded.
func (a *actor) invalidateTurn() {
	a.epoch++
	a.turnPending = false
	if a.cancelTurn != nil {
		a.cancelTurn()
		a.cancelTurn = nil
	}
}

// clearThinking clears every pending indicator, publishing an explicit
// cleared notification per speaker so subscribers can drop stale
// indicators independently.
func (a *actor) clearThinking() {
	for _, id := range a.conv.Thinking() {
		a.conv.SetThinking(id, false)
		a.engine.hub.Publish(a.conv.ID, core.NewThinkingClearedNotification(a.conv.ID, id))
	}
}

// transition applies a status change, persists it (soft failure) and
// publishes the change to subscribers.
func (a *actor) transition(status core.Status) {
	if err := a.conv.SetStatus(status); err != nil {
		a.engine.logger.Warn("transition for %s: %v", a.conv.ID, err)
		return
	}
	if err := a.engine.store.UpdateStatus(a.conv.ID, status); err != nil {
		a.engine.logger.Error("persist status for %s: %v", a.conv.ID, err)
	}
	a.engine.hub.Publish(a.conv.ID, core.NewStatusNotification(a.conv.ID, status))
}

// failureReason renders the human-visible cause committed to the transcript
// when a provider call fails.
func failureReason(err error) string {
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the request timed out"
	}
	return err.Error()
}

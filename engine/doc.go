// Package engine orchestrates multi-participant conversations: it owns the
// per-conversation state machine (active / paused / stopped), drives
// asynchronous provider calls in round-robin speaking order and serializes
// all output into the broadcast transcript.
//
// Each active conversation is a small actor: one goroutine consuming a typed
// command channel (user message, pause, resume, stop, turn result, pacing
// timer). The actor is the single writer for its conversation, which is what
// enforces the central invariant: at most one generation in flight per
// conversation. Pause and stop bump an epoch counter and cancel the
// outstanding provider context; a turn result carrying a stale epoch is
// discarded instead of committed. Idle conversations consume no CPU.
package engine

// Package core provides the foundational domain types and interfaces used by
// Parley. It defines the core abstractions for:
//
//   - Participants (LLM personas capable of producing replies)
//   - Conversations (stateful containers with speaking order, cursor,
//     status and an append-only transcript)
//   - Messages (immutable transcript records)
//   - Notifications (outbound thinking / message / status events)
//   - The pluggable ConversationStore for persistence backends
//
// The package intentionally keeps implementation concerns (persistence,
// engine orchestration, concrete provider adapters) out of scope, exposing
// small interfaces to enable custom backends and extensions.
package core

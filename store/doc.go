// Package store houses concrete implementations of core.ConversationStore.
// The interface itself (and the Conversation struct) live in the core
// package to centralize domain contracts. Keeping only implementations here
// prevents higher level packages (engine, gateway) from depending on
// concrete storage.
//
// Additional backends belong in sub-packages (see store/sqlite) without
// changing any calling code; only the wiring layer decides which
// implementation to instantiate.
package store

// Package gateway exposes the conversation engine over websocket. Clients
// send JSON commands (join, leave, userMessage, pause, resume, stop,
// addParticipant) and receive a snapshot frame per joined conversation
// followed by live notification frames in commit order.
package gateway

// Package reply delivers a rendered game master turn to the player.
//
// Invariants:
// - The text block, if any, is sent as one message before any voice note.
// - Voice jobs are synthesized concurrently but sent in phrase order.
// - Every audio artifact created for a turn is removed once the turn is delivered,
//   whether or not synthesis or a later send failed.
// - Text and voice delivery are gated independently.
package reply

// Package game runs the game master turn loop for a chat session.
//
// An inbound event (text, voice note, or /start) starts a turn chain that loops
// through Generating, Dispatching and Resolving until the backend's reply carries
// no further actions:
//
//	Idle -> Generating -> Dispatching -> Idle
//	                          |  START_NEW_GAME: reset to seed -> Generating
//	                          |  ROLL_DICE x n:  Resolving -> Generating
//
// Invariants:
// - Events for one session never interleave; they run on the session's queue lane.
// - A chain performs at most MaxDepth generations and then fails with ErrLoopBudgetExceeded.
// - A failed turn is not rolled back: whatever was appended to the transcript stays.
// - On failure the player gets the fallback message when text replies are enabled.
package game

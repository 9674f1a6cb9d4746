// Package transcript holds the ordered message log of a game session.
//
// Invariants:
// - Messages keep their append order.
// - The log is only ever replaced wholesale through Reset, never partially truncated.
// - Content is whitespace-normalized when appended.
//
// Usage:
//
//	t := transcript.New("chat:42")
//	t.Append(transcript.Message{Role: transcript.RoleUser, Content: "I attack the goblin"})
//	last, err := t.LastAssistantMessage()
package transcript

// Package session persists game transcripts.
//
// Two backends implement Store: FileStore keeps one JSONL file per session and
// SQLiteStore keeps rows in a single database. Open picks one from configuration.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized.
// - Save replaces the stored transcript atomically; readers never see a half-written log.
// - Loading an unknown session yields an empty transcript, not an error.
//
// Usage:
//
//	store, _ := session.NewFileStore("/var/lib/fablebot/sessions")
//	t, _ := store.Load(ctx, "42")
//	t.Append(transcript.Message{Role: transcript.RoleUser, Content: "hello"})
//	_ = store.Save(ctx, "42", t)
package session

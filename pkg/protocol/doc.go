// Package protocol decodes the structured replies of the generation backend.
//
// An assistant reply is expected to be a JSON array of phrases, each tagged with a
// "type" discriminant:
//
//	[
//	  {"type": "text", "voice": "narrator", "role": "Narrator", "text": "The door creaks."},
//	  {"type": "dice", "role": "Hero", "skill": "Melee", "base": 2, "result": 15},
//	  {"type": "action", "action": "ROLL_DICE"}
//	]
//
// Parse is strict: unknown discriminants, missing fields, duplicate keys and non-array payloads are
// reported as a *ProtocolViolation and no phrases are returned.
package protocol

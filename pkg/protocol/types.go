package protocol

import "fmt"

// Kind is the wire discriminant of a phrase
type Kind string

const (
	KindText   Kind = "text"
	KindDice   Kind = "dice"
	KindAction Kind = "action"
)

// Action is a control signal emitted by the backend
type Action string

const (
	ActionStartNewGame Action = "START_NEW_GAME"
	ActionRollDice     Action = "ROLL_DICE"
)

// NarratorVoice is the reserved voice id of the narrator
const NarratorVoice = "narrator"

// MinRoll and MaxRoll bound a d20 result
const (
	MinRoll = 1
	MaxRoll = 20
)

// Phrase is one typed unit of a backend reply. The set of implementations is closed:
// TextPhrase, DicePhrase and ActionPhrase.
type Phrase interface {
	Kind() Kind
	phrase()
}

// TextPhrase is narration or a character's line
type TextPhrase struct {
	VoiceID      string
	SpeakerLabel string
	Text         string
}

// DicePhrase is the outcome of a skill check
type DicePhrase struct {
	SpeakerLabel string
	SkillLabel   string
	BaseValue    int
	RollResult   int
}

// ActionPhrase asks the game loop to do something
type ActionPhrase struct {
	Action Action
}

func (TextPhrase) Kind() Kind   { return KindText }
func (DicePhrase) Kind() Kind   { return KindDice }
func (ActionPhrase) Kind() Kind { return KindAction }

func (TextPhrase) phrase()   {}
func (DicePhrase) phrase()   {}
func (ActionPhrase) phrase() {}

// IsNarrator reports whether the phrase is spoken by the narrator
func (p TextPhrase) IsNarrator() bool {
	return p.VoiceID == NarratorVoice
}

// Total returns the roll plus the base value
func (p DicePhrase) Total() int {
	return p.RollResult + p.BaseValue
}

// Valid reports whether the action is known
func (a Action) Valid() bool {
	return a == ActionStartNewGame || a == ActionRollDice
}

// ProtocolViolation reports assistant content that does not decode as a phrase array.
type ProtocolViolation struct {
	Reason     string
	RawContent string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

func violation(raw string, format string, args ...interface{}) *ProtocolViolation {
	return &ProtocolViolation{
		Reason:     fmt.Sprintf(format, args...),
		RawContent: raw,
	}
}

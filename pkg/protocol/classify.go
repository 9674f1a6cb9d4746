package protocol

import "errors"

// ErrMixedPayload is reported when one reply carries both narrative and action phrases.
var ErrMixedPayload = errors.New("reply mixes narrative and action phrases")

// Narrative returns the text and dice phrases, in source order
func Narrative(phrases []Phrase) []Phrase {
	out := make([]Phrase, 0, len(phrases))
	for _, p := range phrases {
		switch p.(type) {
		case TextPhrase, DicePhrase:
			out = append(out, p)
		}
	}
	return out
}

// Actions returns the action phrases, in source order
func Actions(phrases []Phrase) []ActionPhrase {
	var out []ActionPhrase
	for _, p := range phrases {
		if a, ok := p.(ActionPhrase); ok {
			out = append(out, a)
		}
	}
	return out
}

// CountAction counts occurrences of action
func CountAction(phrases []Phrase, action Action) int {
	n := 0
	for _, a := range Actions(phrases) {
		if a.Action == action {
			n++
		}
	}
	return n
}

// HasAction reports whether action occurs at least once
func HasAction(phrases []Phrase, action Action) bool {
	return CountAction(phrases, action) > 0
}

// CheckExclusivity returns ErrMixedPayload when narrative and action phrases share a reply.
// Dice and action phrases are not considered mutually exclusive.
func CheckExclusivity(phrases []Phrase) error {
	var hasText, hasAction bool
	for _, p := range phrases {
		switch p.(type) {
		case TextPhrase:
			hasText = true
		case ActionPhrase:
			hasAction = true
		}
	}
	if hasText && hasAction {
		return ErrMixedPayload
	}
	return nil
}

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllPhraseKinds(t *testing.T) {
	content := `[
		{"type":"text","voice":"narrator","role":"Narrator","text":"The tavern is loud."},
		{"type":"text","voice":"onyx","role":"Innkeeper","text":"What'll it be?"},
		{"type":"dice","role":"Hero","skill":"Melee","base":2,"result":15},
		{"type":"action","action":"ROLL_DICE"}
	]`

	phrases, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, phrases, 4)

	assert.Equal(t, TextPhrase{VoiceID: "narrator", SpeakerLabel: "Narrator", Text: "The tavern is loud."}, phrases[0])
	assert.Equal(t, TextPhrase{VoiceID: "onyx", SpeakerLabel: "Innkeeper", Text: "What'll it be?"}, phrases[1])
	assert.Equal(t, DicePhrase{SpeakerLabel: "Hero", SkillLabel: "Melee", BaseValue: 2, RollResult: 15}, phrases[2])
	assert.Equal(t, ActionPhrase{Action: ActionRollDice}, phrases[3])
}

func TestParse_StripsCodeFences(t *testing.T) {
	content := "```json\n[{\"type\":\"action\",\"action\":\"START_NEW_GAME\"}]\n```"

	phrases, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, phrases, 1)
	assert.Equal(t, ActionPhrase{Action: ActionStartNewGame}, phrases[0])
}

func TestParse_EmptyArray(t *testing.T) {
	phrases, err := Parse("[]")
	require.NoError(t, err)
	assert.Empty(t, phrases)
}

func TestParse_Violations(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"not json", "not json", "not valid JSON"},
		{"empty", "   ", "empty content"},
		{"object instead of array", `{"type":"text","voice":"narrator","role":"N","text":"hi"}`, "expected a JSON array"},
		{"missing discriminant", `[{"voice":"narrator","role":"N","text":"hi"}]`, "missing \"type\""},
		{"unknown discriminant", `[{"type":"image","url":"x"}]`, "unknown phrase type"},
		{"scalar element", `["hello"]`, "expected an object"},
		{"text missing voice", `[{"type":"text","role":"N","text":"hi"}]`, "schema mismatch"},
		{"dice out of range", `[{"type":"dice","role":"Hero","skill":"Melee","base":2,"result":21}]`, "schema mismatch"},
		{"dice fractional base", `[{"type":"dice","role":"Hero","skill":"Melee","base":2.5,"result":3}]`, "schema mismatch"},
		{"unknown action", `[{"type":"action","action":"DANCE"}]`, "schema mismatch"},
		{"duplicate result", `[{"type":"dice","role":"H","skill":"S","base":2,"result":99,"result":15}]`, "duplicate key \"result\""},
		{"duplicate discriminant action first", `[{"type":"action","type":"text","voice":"narrator","role":"N","text":"hi"}]`, "duplicate key \"type\""},
		{"case folded duplicate", `[{"type":"dice","role":"H","skill":"S","base":2,"result":15,"RESULT":99}]`, "duplicate key \"RESULT\""},
		{"duplicate discriminant text first", `[{"type":"text","type":"action","action":"ROLL_DICE"}]`, "duplicate key \"type\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phrases, err := Parse(tt.content)
			assert.Nil(t, phrases)

			var pv *ProtocolViolation
			require.True(t, errors.As(err, &pv), "expected ProtocolViolation, got %v", err)
			assert.Contains(t, pv.Reason, tt.reason)
			assert.Equal(t, tt.content, pv.RawContent)
		})
	}
}

func TestDecode_RechecksInvariants(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty voice", `{"type":"text","voice":"","role":"N","text":"hi"}`, "empty voice"},
		{"roll too high", `{"type":"dice","role":"H","skill":"S","base":0,"result":99}`, "outside"},
		{"roll too low", `{"type":"dice","role":"H","skill":"S","base":0,"result":0}`, "outside"},
		{"empty action", `{"type":"action","action":""}`, "unknown action"},
		{"unknown type", `{"type":"image"}`, "unknown phrase type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decode(tt.raw)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestDecode_MatchesWireFields(t *testing.T) {
	p, err := decode(`{"type":"dice","role":"Hero","skill":"Stealth","base":-1,"result":20}`)
	require.NoError(t, err)
	assert.Equal(t, DicePhrase{SpeakerLabel: "Hero", SkillLabel: "Stealth", BaseValue: -1, RollResult: 20}, p)
}

func TestSerialize_RoundTrip(t *testing.T) {
	phrases := []Phrase{
		TextPhrase{VoiceID: NarratorVoice, SpeakerLabel: "Narrator", Text: `He said "run" & ran <fast>`},
		DicePhrase{SpeakerLabel: "Hero", SkillLabel: "Stealth", BaseValue: -1, RollResult: 20},
		ActionPhrase{Action: ActionRollDice},
	}

	encoded, err := Serialize(phrases)
	require.NoError(t, err)

	decoded, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, phrases, decoded)
}

func TestSerialize_Empty(t *testing.T) {
	encoded, err := Serialize(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", encoded)
}

func TestProtocolViolation_Error(t *testing.T) {
	err := &ProtocolViolation{Reason: "bad", RawContent: "x"}
	assert.Equal(t, "protocol violation: bad", err.Error())
}

package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

var (
	schemaLoader = gojsonschema.NewStringLoader(PhraseSchema)

	// The backend sometimes wraps the array in a markdown code fence.
	fenceStripper = strings.NewReplacer(
		"```json", "",
		"```JSON", "",
		"```", "",
		"\r", "",
		"\n", "",
	)
)

// Clean strips code fences and newlines the backend may wrap its JSON in
func Clean(content string) string {
	return strings.TrimSpace(fenceStripper.Replace(content))
}

// Parse decodes assistant content into an ordered phrase sequence.
// Any failure yields a *ProtocolViolation and no phrases.
func Parse(content string) ([]Phrase, error) {
	cleaned := Clean(content)
	if cleaned == "" {
		return nil, violation(content, "empty content")
	}

	if !gjson.Valid(cleaned) {
		return nil, violation(content, "content is not valid JSON")
	}

	doc := gjson.Parse(cleaned)
	if !doc.IsArray() {
		return nil, violation(content, "expected a JSON array, got %s", describe(doc))
	}

	elements := doc.Array()
	for i, el := range elements {
		if !el.IsObject() {
			return nil, violation(content, "element %d: expected an object, got %s", i, describe(el))
		}
		if key, dup := duplicateKey(el); dup {
			return nil, violation(content, "element %d: duplicate key %q", i, key)
		}
		kind := el.Get("type")
		if !kind.Exists() {
			return nil, violation(content, "element %d: missing \"type\" discriminant", i)
		}
		switch Kind(kind.String()) {
		case KindText, KindDice, KindAction:
		default:
			return nil, violation(content, "element %d: unknown phrase type %q", i, kind.String())
		}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, violation(content, "schema validation error: %v", err)
	}
	if !result.Valid() {
		var reasons []string
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return nil, violation(content, "schema mismatch: %s", strings.Join(reasons, "; "))
	}

	phrases := make([]Phrase, 0, len(elements))
	for i, el := range elements {
		p, err := decode(el.Raw)
		if err != nil {
			return nil, violation(content, "element %d: %v", i, err)
		}
		phrases = append(phrases, p)
	}

	return phrases, nil
}

// duplicateKey reports the first key that appears twice in an object.
// Keys are compared case-insensitively, the way encoding/json matches fields.
func duplicateKey(obj gjson.Result) (string, bool) {
	seen := make(map[string]struct{})
	var (
		dup   string
		found bool
	)
	obj.ForEach(func(key, _ gjson.Result) bool {
		folded := strings.ToLower(key.String())
		if _, ok := seen[folded]; ok {
			dup, found = key.String(), true
			return false
		}
		seen[folded] = struct{}{}
		return true
	})
	return dup, found
}

// decode maps a schema-validated element onto its phrase variant.
// It uses encoding/json like the schema validator, then rechecks the phrase invariants.
func decode(raw string) (Phrase, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &head); err != nil {
		return nil, fmt.Errorf("failed to decode phrase: %w", err)
	}

	switch head.Type {
	case KindText:
		var w wireText
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("failed to decode text phrase: %w", err)
		}
		if w.Voice == "" {
			return nil, fmt.Errorf("text phrase has an empty voice")
		}
		return TextPhrase{VoiceID: w.Voice, SpeakerLabel: w.Role, Text: w.Text}, nil
	case KindDice:
		var w wireDice
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("failed to decode dice phrase: %w", err)
		}
		if w.Result < MinRoll || w.Result > MaxRoll {
			return nil, fmt.Errorf("roll result %d outside [%d, %d]", w.Result, MinRoll, MaxRoll)
		}
		return DicePhrase{SpeakerLabel: w.Role, SkillLabel: w.Skill, BaseValue: w.Base, RollResult: w.Result}, nil
	case KindAction:
		var w wireAction
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("failed to decode action phrase: %w", err)
		}
		if !w.Action.Valid() {
			return nil, fmt.Errorf("unknown action %q", w.Action)
		}
		return ActionPhrase{Action: w.Action}, nil
	}
	return nil, fmt.Errorf("unknown phrase type %q", head.Type)
}

func describe(r gjson.Result) string {
	switch {
	case r.IsObject():
		return "object"
	case r.IsArray():
		return "array"
	}
	switch r.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	}
	return "unknown"
}

type wireText struct {
	Type  Kind   `json:"type"`
	Voice string `json:"voice"`
	Role  string `json:"role"`
	Text  string `json:"text"`
}

type wireDice struct {
	Type   Kind   `json:"type"`
	Role   string `json:"role"`
	Skill  string `json:"skill"`
	Base   int    `json:"base"`
	Result int    `json:"result"`
}

type wireAction struct {
	Type   Kind   `json:"type"`
	Action Action `json:"action"`
}

// Serialize encodes phrases in the wire format Parse accepts
func Serialize(phrases []Phrase) (string, error) {
	out := make([]interface{}, 0, len(phrases))
	for i, p := range phrases {
		switch v := p.(type) {
		case TextPhrase:
			out = append(out, wireText{Type: KindText, Voice: v.VoiceID, Role: v.SpeakerLabel, Text: v.Text})
		case DicePhrase:
			out = append(out, wireDice{Type: KindDice, Role: v.SpeakerLabel, Skill: v.SkillLabel, Base: v.BaseValue, Result: v.RollResult})
		case ActionPhrase:
			out = append(out, wireAction{Type: KindAction, Action: v.Action})
		default:
			return "", fmt.Errorf("phrase %d: unsupported type %T", i, p)
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal phrases: %w", err)
	}
	return string(data), nil
}

// Package render turns narrative phrases into a Telegram HTML reply and voice jobs.
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/harun/fablebot/pkg/protocol"
	"github.com/harun/fablebot/pkg/transcript"
)

// VoiceJob is one text-to-speech request, in playback order
type VoiceJob struct {
	Text    string
	VoiceID string
}

// RenderedReply is the user-facing output of one assistant turn
type RenderedReply struct {
	Text      string
	VoiceJobs []VoiceJob
}

// Empty reports whether there is nothing to deliver
func (r RenderedReply) Empty() bool {
	return r.Text == "" && len(r.VoiceJobs) == 0
}

// NumberWords spells out d20 results for speech
type NumberWords map[int]string

// EnglishNumbers is the default spoken form of 1..20
var EnglishNumbers = NumberWords{
	1: "one", 2: "two", 3: "three", 4: "four", 5: "five",
	6: "six", 7: "seven", 8: "eight", 9: "nine", 10: "ten",
	11: "eleven", 12: "twelve", 13: "thirteen", 14: "fourteen", 15: "fifteen",
	16: "sixteen", 17: "seventeen", 18: "eighteen", 19: "nineteen", 20: "twenty",
}

// Spell returns the word for n, or its digits when n is not in the table
func (w NumberWords) Spell(n int) string {
	if word, ok := w[n]; ok {
		return word
	}
	return strconv.Itoa(n)
}

// Renderer formats phrases
type Renderer struct {
	narratorVoice string
	numbers       NumberWords
}

// Option configures a Renderer
type Option func(*Renderer)

// WithNarratorVoice overrides the voice id treated as the narrator
func WithNarratorVoice(voice string) Option {
	return func(r *Renderer) {
		if voice != "" {
			r.narratorVoice = voice
		}
	}
}

// WithNumberWords overrides the spoken number table
func WithNumberWords(words NumberWords) Option {
	return func(r *Renderer) {
		if len(words) > 0 {
			r.numbers = words
		}
	}
}

// New creates a renderer
func New(opts ...Option) *Renderer {
	r := &Renderer{
		narratorVoice: protocol.NarratorVoice,
		numbers:       EnglishNumbers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces one text block and one voice job per narrative phrase, in order.
// Action phrases are skipped.
func (r *Renderer) Render(phrases []protocol.Phrase) RenderedReply {
	var blocks []string
	var jobs []VoiceJob

	for _, p := range phrases {
		switch v := p.(type) {
		case protocol.TextPhrase:
			blocks = append(blocks, r.textBlock(v))
			jobs = append(jobs, VoiceJob{Text: v.Text, VoiceID: v.VoiceID})
		case protocol.DicePhrase:
			blocks = append(blocks, r.diceBlock(v))
			jobs = append(jobs, VoiceJob{Text: r.diceSentence(v), VoiceID: r.narratorVoice})
		case protocol.ActionPhrase:
		}
	}

	text := strings.TrimSpace(transcript.NormalizeWhitespace(strings.Join(blocks, "\n")))
	return RenderedReply{Text: text, VoiceJobs: jobs}
}

func (r *Renderer) textBlock(p protocol.TextPhrase) string {
	if p.VoiceID == r.narratorVoice {
		return html.EscapeString(p.Text)
	}
	return fmt.Sprintf(
		"<blockquote><strong>%s:</strong> %s</blockquote>",
		html.EscapeString(p.SpeakerLabel),
		html.EscapeString(p.Text),
	)
}

func (r *Renderer) diceBlock(p protocol.DicePhrase) string {
	return fmt.Sprintf(
		"<blockquote><strong>%s</strong> 🎲 %s: <b>%d</b> %s = <b>%d</b></blockquote>",
		html.EscapeString(p.SpeakerLabel),
		html.EscapeString(p.SkillLabel),
		p.RollResult,
		signed(p.BaseValue),
		p.Total(),
	)
}

func (r *Renderer) diceSentence(p protocol.DicePhrase) string {
	modifier := fmt.Sprintf("plus %d", p.BaseValue)
	if p.BaseValue < 0 {
		modifier = fmt.Sprintf("minus %d", -p.BaseValue)
	}
	return fmt.Sprintf(
		"%s rolls %s: %s, %s, total %d.",
		p.SpeakerLabel,
		p.SkillLabel,
		r.numbers.Spell(p.RollResult),
		modifier,
		p.Total(),
	)
}

func signed(n int) string {
	if n < 0 {
		return fmt.Sprintf("- %d", -n)
	}
	return fmt.Sprintf("+ %d", n)
}

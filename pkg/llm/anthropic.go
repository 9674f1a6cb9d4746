package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/fablebot/pkg/transcript"
)

const defaultAnthropicMaxTokens = 1024

// systemNotePrefix marks an inline system message sent in a user turn
const systemNotePrefix = "[system] "

// AnthropicProvider implements Provider for Anthropic Claude
type AnthropicProvider struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, baseURL string, opts Options) *AnthropicProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-20250514"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts,
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate sends the leading system message as the system block. Other system messages
// travel as user text in place, and consecutive same-role turns are merged since the API
// requires alternation.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []transcript.Message) (string, error) {
	started := time.Now()

	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.opts.Model),
		Messages:  toAnthropicMessages(turns),
		MaxTokens: int64(p.opts.MaxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}
	if p.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(p.opts.Temperature)
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return finish(p.Name(), started, "", err)
	}

	var content strings.Builder
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(b.Text)
		}
	}

	return finish(p.Name(), started, content.String(), nil)
}

func toAnthropicMessages(turns []transcript.Message) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		role    transcript.Role
		pending []string
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(pending, "\n"))
		if role == transcript.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		pending = nil
	}

	for _, msg := range turns {
		next, content := msg.Role, msg.Content
		if next == transcript.RoleSystem {
			next, content = transcript.RoleUser, systemNotePrefix+content
		}
		if next != role {
			flush()
			role = next
		}
		pending = append(pending, content)
	}
	flush()

	// The conversation must open with a user turn
	if len(out) > 0 && out[0].Role == anthropic.MessageParamRoleAssistant {
		out = append([]anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("Begin."))}, out...)
	}
	return out
}

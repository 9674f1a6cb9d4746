package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/fablebot/pkg/transcript"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat completions
type OpenAIProvider struct {
	client openai.Client
	opts   Options
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL may point at a proxy.
func NewOpenAIProvider(apiKey, baseURL string, opts Options) *OpenAIProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if opts.Model == "" {
		opts.Model = string(openai.ChatModelGPT4o)
	}
	return &OpenAIProvider{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends the transcript as chat messages in order, system turns included
func (p *OpenAIProvider) Generate(ctx context.Context, messages []transcript.Message) (string, error) {
	started := time.Now()

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.opts.Model),
		Messages: toOpenAIMessages(messages),
	}
	if p.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.opts.MaxTokens))
	}
	if p.opts.Temperature > 0 {
		params.Temperature = openai.Float(p.opts.Temperature)
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return finish(p.Name(), started, "", err)
	}
	if len(response.Choices) == 0 {
		return finish(p.Name(), started, "", fmt.Errorf("no response choices returned"))
	}

	return finish(p.Name(), started, response.Choices[0].Message.Content, nil)
}

func toOpenAIMessages(messages []transcript.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case transcript.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case transcript.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case transcript.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		}
	}
	return out
}

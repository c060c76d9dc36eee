package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIGenerator calls the OpenAI chat completions API in JSON mode and
// decodes the response into a Plan, grounded on the pack's existing
// OpenAIProvider wiring pattern.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	model   string
	apiKey  string
	baseURL string
	timeout time.Duration
}

// WithModel sets the chat model (default "gpt-4o").
func WithModel(model string) OpenAIOption {
	return func(c *openaiConfig) { c.model = model }
}

// WithAPIKey sets the API key; if empty the SDK falls back to OPENAI_API_KEY.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openaiConfig) { c.apiKey = key }
}

// WithBaseURL points at an OpenAI-compatible endpoint other than the
// default (self-hosted gateways, proxies).
func WithBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

// WithTimeout bounds a single generation call.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openaiConfig) { c.timeout = d }
}

// NewOpenAIGenerator builds an OpenAIGenerator from options.
func NewOpenAIGenerator(opts ...OpenAIOption) *OpenAIGenerator {
	cfg := openaiConfig{model: "gpt-4o", timeout: 2 * time.Minute}
	for _, o := range opts {
		o(&cfg)
	}

	var clientOpts []option.RequestOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.timeout))

	return &OpenAIGenerator{
		client: openai.NewClient(clientOpts...),
		model:  cfg.model,
	}
}

// Complete sends a single chat turn and returns the raw completion text,
// the shape Repairer needs both for the initial and the repair round-trip.
func (g *OpenAIGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// buildPrompt assembles the system/user messages sent to GeneratePlan,
// grounding the SQL request in the schema subset and the active mode's
// blocked tables so the model doesn't need to be told policy separately —
// its output is re-validated against policy regardless.
func buildPrompt(req Request, schema string) (system, user string) {
	var sys strings.Builder
	sys.WriteString("You translate a natural-language question into a single ")
	sys.WriteString(req.Dialect)
	sys.WriteString(" SQL statement. Output ONLY a JSON object matching this shape: ")
	sys.WriteString(`{"sql": string, "params": [{"name": string, "type": string, "value": string}], "assumptions": string, "safety_notes": string, "confidence": number between 0 and 1, "referenced_entities": [string]}. `)
	sys.WriteString("Never invent tables or columns not present in the provided schema. ")
	if len(req.BlockedTables) > 0 {
		sys.WriteString("Do not reference these blocked tables: ")
		sys.WriteString(strings.Join(req.BlockedTables, ", "))
		sys.WriteString(". ")
	}

	var usr strings.Builder
	fmt.Fprintf(&usr, "Mode: %s\n\nSchema:\n%s\n\nQuestion: %s\n", req.Mode, schema, req.Question)

	return sys.String(), usr.String()
}

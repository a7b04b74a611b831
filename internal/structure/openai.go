package structure

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"balloon/internal/logger"
)

// SemanticClient infers a DimensionalSpecification from callout text. It
// returns the raw JSON object; validation is the Structurer's job.
type SemanticClient interface {
	Structure(ctx context.Context, text, hint string) ([]byte, error)
}

// chatCompleter is the part of *openai.Client the structurer needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the chat-completion collaborator.
type OpenAIConfig struct {
	APIKey      string
	Model       string  // gpt-4o-mini, gpt-4o
	Temperature float32 // 0 keeps answers deterministic
	MaxRetries  int     // additional attempts after the first
}

// OpenAIClient implements SemanticClient with JSON-mode chat completions.
type OpenAIClient struct {
	client chatCompleter
	config OpenAIConfig
	log    zerolog.Logger
}

// NewOpenAIClient creates a client from config.
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	const op = "NewOpenAIClient"

	if config.APIKey == "" {
		return nil, fmt.Errorf("%s: OPENAI_API_KEY is required", op)
	}
	return NewOpenAIClientWithDeps(openai.NewClient(config.APIKey), config), nil
}

// NewOpenAIClientWithDeps creates a client with an explicit completion backend.
func NewOpenAIClientWithDeps(client chatCompleter, config OpenAIConfig) *OpenAIClient {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &OpenAIClient{
		client: client,
		config: config,
		log:    logger.WithComponent("structure-openai"),
	}
}

// Structure asks the model for a JSON specification of text. Transport
// errors and empty answers are retried; the caller's context bounds all attempts.
func (c *OpenAIClient) Structure(ctx context.Context, text, hint string) ([]byte, error) {
	const op = "Structure"

	attempts := c.config.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.config.Model,
			Temperature: c.config.Temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
				{Role: openai.ChatMessageRoleUser, Content: buildPrompt(text, hint)},
			},
			MaxTokens: 400,
		})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			c.log.Warn().
				Err(err).
				Str("text", text).
				Int("attempt", attempt).
				Int("max_attempts", attempts).
				Msg("Structuring request failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = ErrEmptyResponse
			continue
		}

		content := cleanJSONResponse(resp.Choices[0].Message.Content)
		c.log.Debug().
			Str("text", text).
			Str("response", content).
			Msg("Received structuring response")
		return []byte(content), nil
	}

	return nil, fmt.Errorf("%s: all %d attempts failed, last error: %w", op, attempts, lastErr)
}

// cleanJSONResponse strips markdown code fences some models add.
func cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

func buildPrompt(text, hint string) string {
	var b strings.Builder
	b.WriteString("Callout text: ")
	b.WriteString(text)
	if hint != "" {
		b.WriteString("\nNearby text on the drawing: ")
		b.WriteString(hint)
	}
	return b.String()
}

// systemPrompt lists the accepted GD&T symbol names.
func systemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, strings.Join(GDTSymbolNames(), ", "))
}

const systemPromptTemplate = `You convert one engineering drawing callout into JSON.

Return a single JSON object with these keys:
- nominal, plus_tolerance, minus_tolerance, upper_limit, lower_limit: numbers or null
- units: "inch", "millimeter", "degree" or "unspecified"
- tolerance_kind: "bilateral", "limit", "fit", "basic" or "none"
- subtype: "Linear", "Diameter", "Radius", "Angle", "Thread", "GD&T" or "Note"
- is_gdt: boolean
- gdt_symbol: one of %s, or null
- tolerance_zone: number or null (feature control frame tolerance)
- datums: array of datum letters or null
- fit_class: string such as "H7" or "H7/g6", or null
- thread_spec: normalized thread designation such as "1/4-20 UNC-2B" or "M6x1-6H", or null
- quantity: integer multiplier from prefixes like "4X", or null
- full_specification: the callout as normalized text

Rules:
- "±X" sets plus_tolerance and minus_tolerance to X, tolerance_kind "bilateral".
- minus_tolerance is a positive magnitude.
- A range "A-B" sets lower_limit to the smaller and upper_limit to the larger value, tolerance_kind "limit".
- ⌀ or Ø means Diameter, a leading R means Radius, ° means Angle with units "degree".
- Feature control frames set is_gdt true and subtype "GD&T".
- For threads, nominal is the major diameter.
- Units are inch unless the callout says mm.
- Use null for anything not present. Do not guess values.`

package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

// LLM providers accepted by NewLLM.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// LLMOptions selects and configures the model behind LLMClassifier.
type LLMOptions struct {
	Provider        string
	Model           string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
}

// LLMClassifier asks a chat model for a JSON classification.
type LLMClassifier struct {
	llm llms.Model
}

// NewLLM builds the langchaingo model named by opts.
func NewLLM(opts LLMOptions) (*LLMClassifier, error) {
	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(opts.Provider) {
	case ProviderOllama:
		model, err = ollama.New(ollama.WithModel(opts.Model), ollama.WithServerURL(opts.OllamaHost))
	case ProviderOpenAI, "":
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(openai.WithToken(opts.OpenAIAPIKey), openai.WithModel(opts.Model))
	case ProviderAnthropic:
		if opts.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(anthropic.WithToken(opts.AnthropicAPIKey), anthropic.WithModel(opts.Model))
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", opts.Provider, err)
	}
	return NewLLMWithModel(model), nil
}

// NewLLMWithModel wraps an existing model.
func NewLLMWithModel(m llms.Model) *LLMClassifier { return &LLMClassifier{llm: m} }

const systemPrompt = `You classify customer feedback. Reply with one JSON object and nothing else:
{"sentiment":"positive|negative|neutral|mixed","sentiment_score":<-1..1>,
 "urgency":"low|medium|high|critical","categories":["..."],"emotions":{"<label>":<0..1>}}
Categories are short lowercase topics such as "billing", "bug", "performance", "ux", "praise".`

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, &Error{Kind: KindInvalidInput, Err: errors.New("empty content")}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", req.Language)
	if req.Rating != nil {
		fmt.Fprintf(&b, "Star rating: %d/5\n", *req.Rating)
	}
	b.WriteString("Feedback:\n")
	b.WriteString(req.Content)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, b.String()),
	}
	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		if isRateLimit(err) {
			return nil, &Error{Kind: KindRateLimited, Err: err}
		}
		return nil, &Error{Kind: KindServiceUnavailable, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Err: errors.New("no response choices")}
	}

	var out Result
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Content)), &out); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("decode model output: %w", err)}
	}
	out.Sentiment = normalizeSentiment(out.Sentiment)
	return &out, nil
}

// stripFences removes a ```json fence some models add despite JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func normalizeSentiment(s domain.Sentiment) domain.Sentiment {
	return domain.Sentiment(strings.ToLower(strings.TrimSpace(string(s))))
}

func isRateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tkohari/reviewkit/internal/config"
	"github.com/tkohari/reviewkit/internal/metrics"
	"github.com/tkohari/reviewkit/internal/models"
)

// ReviewInput is one review to classify together with the similar reviews
// retrieved for it.
type ReviewInput struct {
	Text    string
	Similar []string
}

// UsageStats accumulates provider accounting across a job run.
type UsageStats struct {
	APICalls         int64
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Categorizer assigns vocabulary categories to batches of reviews.
type Categorizer interface {
	// ClassifyBatch classifies all reviews in one model call. The returned
	// slice is aligned with the input; an unparseable model response yields
	// N/A for every review rather than an error.
	ClassifyBatch(ctx context.Context, reviews []ReviewInput, vocabulary []string) ([][]string, error)

	// Usage returns the accumulated provider accounting.
	Usage() UsageStats
}

// ChatCategorizer implements Categorizer on a langchaingo chat model.
type ChatCategorizer struct {
	llm       llms.Model
	modelName string
	quota     *quotaTransport
	metrics   *metrics.Collector
	logger    *slog.Logger

	mu    sync.Mutex
	usage UsageStats
}

var _ Categorizer = (*ChatCategorizer)(nil)

const classifySystemPrompt = "You are a product review classification assistant. " +
	"Always respond with a single JSON object and nothing else."

// NewCategorizer creates a categorizer based on configuration. The collector
// may be nil.
func NewCategorizer(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*ChatCategorizer, error) {
	c := &ChatCategorizer{
		modelName: cfg.LLMModel,
		metrics:   collector,
		logger:    logger,
	}

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithFormat("json"),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		c.llm = model

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		// The custom transport reads rate-limit headers off every response
		// so the next call can wait out a depleted token window.
		c.quota = newQuotaTransport(nil)
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
			openai.WithHTTPClient(&http.Client{Transport: c.quota}),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		c.llm = model

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		c.llm = model

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		model, err := bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}
		c.llm = model

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return c, nil
}

// ClassifyBatch classifies all reviews in one model call.
func (c *ChatCategorizer) ClassifyBatch(ctx context.Context, reviews []ReviewInput, vocabulary []string) ([][]string, error) {
	if len(reviews) == 0 {
		return [][]string{}, nil
	}

	prompt := buildClassifyPrompt(reviews, vocabulary)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, classifySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	resp, err := retryWithBackoff(ctx, c.logger, "classify", func(ctx context.Context) (*llms.ContentResponse, error) {
		return c.llm.GenerateContent(ctx, messages,
			llms.WithTemperature(0),
			llms.WithJSONMode(),
		)
	})
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	// A depleted token window is waited out right after the call that
	// observed it, so the next batch starts against a fresh window.
	if c.quota != nil {
		if err := c.quota.waitIfLow(ctx, c.logger); err != nil {
			return nil, err
		}
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}
	choice := resp.Choices[0]

	promptTokens, completionTokens, totalTokens := choiceUsage(choice)
	c.recordUsage(duration, promptTokens, completionTokens, totalTokens)

	categories, ok := parseClassification(choice.Content, len(reviews), vocabulary)
	if !ok {
		c.logger.Warn("classification response unparseable, defaulting to N/A",
			"model", c.modelName,
			"reviews", len(reviews))
		return defaultCategories(len(reviews)), nil
	}
	return categories, nil
}

// Usage returns the accumulated provider accounting.
func (c *ChatCategorizer) Usage() UsageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Model returns the chat model name.
func (c *ChatCategorizer) Model() string {
	return c.modelName
}

func (c *ChatCategorizer) recordUsage(duration time.Duration, promptTokens, completionTokens, totalTokens int64) {
	c.mu.Lock()
	c.usage.APICalls++
	c.usage.PromptTokens += promptTokens
	c.usage.CompletionTokens += completionTokens
	c.usage.TotalTokens += totalTokens
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordLLMUsage(metrics.OpClassify, duration, promptTokens, completionTokens)
	}
	if c.quota != nil {
		processingMs := c.quota.lastProcessingMs()
		if processingMs > 0 && c.metrics != nil {
			c.metrics.RecordTiming(metrics.OpLLMProcessing, time.Duration(processingMs)*time.Millisecond)
		}
		c.logger.Debug("classification call complete",
			"duration_ms", duration.Milliseconds(),
			"processing_ms", processingMs,
			"total_tokens", totalTokens)
	}
}

// buildClassifyPrompt renders the numbered review list, the retrieved
// neighbors and the allowed vocabulary into a single instruction block.
// Reviews without retrieved neighbors get no similar-reviews section.
func buildClassifyPrompt(reviews []ReviewInput, vocabulary []string) string {
	withContext := false
	for _, review := range reviews {
		if len(review.Similar) > 0 {
			withContext = true
			break
		}
	}

	var b strings.Builder
	b.WriteString("Classify each of the following reviews individually.")
	if withContext {
		b.WriteString(" Reviews may come with similar, already categorized reviews attached.")
	}
	b.WriteString("\n\n")

	for i, review := range reviews {
		fmt.Fprintf(&b, "Review %d:\n", i+1)
		fmt.Fprintf(&b, "New review: %s\n", strings.TrimSpace(review.Text))
		if len(review.Similar) > 0 {
			parts := make([]string, 0, len(review.Similar))
			for _, s := range review.Similar {
				parts = append(parts, strings.Join(strings.Fields(s), " "))
			}
			fmt.Fprintf(&b, "Similar reviews: %s\n", strings.Join(parts, " "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Possible categories: %s\n\n", quoteList(vocabulary))
	b.WriteString("Task:\n")
	b.WriteString("- For each review, pick one or more of the given categories and output them as a list.\n")
	fmt.Fprintf(&b, "- If no category applies, output [%q] only.\n\n", models.CategoryOther)
	b.WriteString("Respond with JSON of the form:\n")
	b.WriteString(`{"results": [{"review": <review number>, "categories": ["<category>", ...]}]}` + "\n")
	b.WriteString("Return exactly one result per review, in input order.\n")
	return b.String()
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}

type classifyResponse struct {
	Results []struct {
		Review     json.Number `json:"review"`
		Categories []string    `json:"categories"`
	} `json:"results"`
}

// parseClassification extracts per-review categories from the raw model
// output. Results are aligned positionally with the input; the review number
// in the response is informational only. A response that cannot be parsed or
// has the wrong result count reports !ok.
func parseClassification(content string, n int, vocabulary []string) ([][]string, bool) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, false
	}

	var resp classifyResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false
	}
	if len(resp.Results) != n {
		return nil, false
	}

	canonical := make(map[string]string, len(vocabulary)+1)
	for _, v := range vocabulary {
		canonical[strings.ToLower(v)] = v
	}
	canonical[strings.ToLower(models.CategoryOther)] = models.CategoryOther

	out := make([][]string, n)
	for i, result := range resp.Results {
		out[i] = normalizeCategories(result.Categories, canonical)
	}
	return out, true
}

// normalizeCategories maps model output onto the canonical vocabulary.
// Unknown categories collapse to the fallback; an empty result becomes N/A.
func normalizeCategories(categories []string, canonical map[string]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, cat := range categories {
		cat = strings.TrimSpace(cat)
		if cat == "" {
			continue
		}
		mapped, ok := canonical[strings.ToLower(cat)]
		if !ok {
			mapped = models.CategoryOther
		}
		if _, dup := seen[mapped]; dup {
			continue
		}
		seen[mapped] = struct{}{}
		out = append(out, mapped)
	}
	if len(out) == 0 {
		return []string{models.CategoryNA}
	}
	return out
}

// extractJSONObject returns the first top-level JSON object in content,
// tolerating markdown fences around it.
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func defaultCategories(n int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = []string{models.CategoryNA}
	}
	return out
}

func choiceUsage(choice *llms.ContentChoice) (promptTokens, completionTokens, totalTokens int64) {
	if choice == nil || choice.GenerationInfo == nil {
		return 0, 0, 0
	}
	promptTokens = intFromInfo(choice.GenerationInfo, "PromptTokens", "InputTokens")
	completionTokens = intFromInfo(choice.GenerationInfo, "CompletionTokens", "OutputTokens")
	totalTokens = intFromInfo(choice.GenerationInfo, "TotalTokens")
	if totalTokens == 0 {
		totalTokens = promptTokens + completionTokens
	}
	return promptTokens, completionTokens, totalTokens
}

// intFromInfo reads the first present key from a GenerationInfo map. Provider
// implementations disagree on both key names and value types.
func intFromInfo(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

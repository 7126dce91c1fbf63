package openrouter

// ModelPricing contains per-token pricing for OpenRouter models.
// Prices are USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// modelPricing covers the code-capable models exemplar is usually pointed at.
var modelPricing = map[string]ModelPricing{
	"anthropic/claude-sonnet-4":   {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-opus-4":     {PromptPrice: 15.00, CompletionPrice: 75.00},
	"anthropic/claude-3.5-sonnet": {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-3.5-haiku":  {PromptPrice: 0.80, CompletionPrice: 4.00},

	"openai/gpt-4o":      {PromptPrice: 2.50, CompletionPrice: 10.00},
	"openai/gpt-4o-mini": {PromptPrice: 0.15, CompletionPrice: 0.60},
	"openai/gpt-4.1":     {PromptPrice: 2.00, CompletionPrice: 8.00},

	"x-ai/grok-code-fast-1":            {PromptPrice: 0.20, CompletionPrice: 1.50},
	"qwen/qwen-2.5-coder-32b-instruct": {PromptPrice: 0.07, CompletionPrice: 0.16},
	"deepseek/deepseek-chat":           {PromptPrice: 0.27, CompletionPrice: 1.10},
	"google/gemini-2.5-flash":          {PromptPrice: 0.30, CompletionPrice: 2.50},
}

// DefaultPricingFallback is charged per request when a model's pricing is
// unknown, so budgets err on the expensive side.
const DefaultPricingFallback = 0.01

// CalculateCost returns the USD cost of one call
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}
	promptCost := (float64(promptTokens) / 1_000_000.0) * pricing.PromptPrice
	completionCost := (float64(completionTokens) / 1_000_000.0) * pricing.CompletionPrice
	return promptCost + completionCost
}

// GetPricing returns pricing information for a model, if available
func GetPricing(model string) (ModelPricing, bool) {
	pricing, found := modelPricing[model]
	return pricing, found
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

// =============================================================================
// PRICING
// =============================================================================

// ModelPricing holds input and output pricing per 1K tokens in USD.
type ModelPricing struct {
	Input  float64 // Cost per 1K input tokens in USD
	Output float64 // Cost per 1K output tokens in USD
}

// pricePerKTokens is the static per-model pricing table.
// The "full-history" pseudo-model performs no API calls and is free.
var pricePerKTokens = map[string]ModelPricing{
	"gpt-3.5-turbo":          {Input: 0.0015, Output: 0.002},
	"gpt-3.5-turbo-16k":      {Input: 0.003, Output: 0.004},
	"gpt-4":                  {Input: 0.03, Output: 0.06},
	"gpt-4-turbo":            {Input: 0.01, Output: 0.03},
	"gpt-4o":                 {Input: 0.0025, Output: 0.01},
	"gpt-4o-mini":            {Input: 0.00015, Output: 0.0006},
	"text-embedding-ada-002": {Input: 0.0001, Output: 0},
	"text-embedding-3-small": {Input: 0.00002, Output: 0},
	"full-history":           {Input: 0, Output: 0},
}

// PricingFor returns the pricing for a model.
// The second return value is false for unknown models.
func PricingFor(model string) (ModelPricing, bool) {
	p, ok := pricePerKTokens[model]
	return p, ok
}

// CostUSD converts a token count into US dollars using the static pricing
// table. Unknown models cost zero; cost reporting must never fail just
// because a model is missing from the table.
func CostUSD(model string, inputTokens, outputTokens int) (cost float64, known bool) {
	p, ok := PricingFor(model)
	if !ok {
		return 0, false
	}
	cost = (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1000
	return cost, true
}

// Package cost estimates the dollar cost of completions for analytics rows.
package cost

import (
	"strings"

	"github.com/akuchlous/tokengard-mvp-sub000/openai"
)

// ModelPricing contains prices per 1M tokens in USD.
type ModelPricing struct {
	InputTokenPrice  float64
	OutputTokenPrice float64
}

var modelPricing = map[string]ModelPricing{
	"gpt-4o":        {InputTokenPrice: 2.5, OutputTokenPrice: 10.0},
	"gpt-4o-mini":   {InputTokenPrice: 0.15, OutputTokenPrice: 0.6},
	"gpt-4-turbo":   {InputTokenPrice: 10.0, OutputTokenPrice: 30.0},
	"gpt-4":         {InputTokenPrice: 30.0, OutputTokenPrice: 60.0},
	"gpt-3.5-turbo": {InputTokenPrice: 0.5, OutputTokenPrice: 1.5},
}

// defaultPricing is used for models without an explicit table entry so every
// analytics row carries a non-absurd estimate.
var defaultPricing = ModelPricing{InputTokenPrice: 1.0, OutputTokenPrice: 3.0}

// Pricing resolves the price table entry for a model, matching the longest
// known prefix so dated snapshots ("gpt-4o-2024-08-06") price like their base
// model.
func Pricing(model string) ModelPricing {
	model = strings.ToLower(model)
	if pricing, ok := modelPricing[model]; ok {
		return pricing
	}

	bestLen := 0
	best := defaultPricing
	for name, pricing := range modelPricing {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			bestLen = len(name)
			best = pricing
		}
	}
	return best
}

// Split returns the input and output cost for a usage block.
func Split(model string, usage openai.Usage) (inputCost float64, outputCost float64) {
	pricing := Pricing(model)
	inputCost = float64(usage.PromptTokens) * pricing.InputTokenPrice / 1_000_000
	outputCost = float64(usage.CompletionTokens) * pricing.OutputTokenPrice / 1_000_000
	return inputCost, outputCost
}

package tokens

import "strings"

// ModelLimits describes a model's context capacity and pricing.
type ModelLimits struct {
	// ContextWindow is the maximum input-token capacity for one completion.
	ContextWindow int

	// MaxOutput is the maximum number of tokens the model may generate.
	MaxOutput int

	// InputCostPerMTok and OutputCostPerMTok are USD prices per million tokens.
	// Zero means unknown; cost reporting is then skipped for the model.
	InputCostPerMTok  float64
	OutputCostPerMTok float64
}

// modelTable maps model names to their limits. Lookup falls back to the
// longest matching prefix so dated snapshots resolve to their family.
var modelTable = map[string]ModelLimits{
	"gpt-4o":            {ContextWindow: 128_000, MaxOutput: 16_384, InputCostPerMTok: 2.5, OutputCostPerMTok: 10},
	"gpt-4o-mini":       {ContextWindow: 128_000, MaxOutput: 16_384, InputCostPerMTok: 0.15, OutputCostPerMTok: 0.6},
	"gpt-4.1":           {ContextWindow: 1_047_576, MaxOutput: 32_768, InputCostPerMTok: 2, OutputCostPerMTok: 8},
	"gpt-4.1-mini":      {ContextWindow: 1_047_576, MaxOutput: 32_768, InputCostPerMTok: 0.4, OutputCostPerMTok: 1.6},
	"o3":                {ContextWindow: 200_000, MaxOutput: 100_000, InputCostPerMTok: 2, OutputCostPerMTok: 8},
	"o4-mini":           {ContextWindow: 200_000, MaxOutput: 100_000, InputCostPerMTok: 1.1, OutputCostPerMTok: 4.4},
	"claude-sonnet-4":   {ContextWindow: 200_000, MaxOutput: 64_000, InputCostPerMTok: 3, OutputCostPerMTok: 15},
	"claude-opus-4":     {ContextWindow: 200_000, MaxOutput: 32_000, InputCostPerMTok: 15, OutputCostPerMTok: 75},
	"claude-3-5-haiku":  {ContextWindow: 200_000, MaxOutput: 8_192, InputCostPerMTok: 0.8, OutputCostPerMTok: 4},
	"claude-3-5-sonnet": {ContextWindow: 200_000, MaxOutput: 8_192, InputCostPerMTok: 3, OutputCostPerMTok: 15},
}

// defaultLimits applies to models absent from the table.
var defaultLimits = ModelLimits{ContextWindow: 128_000, MaxOutput: 4_096}

// LimitsFor resolves the limits for a model name.
//
// Exact matches win; otherwise the longest table key that prefixes the
// model name is used (so "claude-sonnet-4-20250514" resolves to
// "claude-sonnet-4"). Unknown models get defaultLimits.
func LimitsFor(model string) ModelLimits {
	if limits, ok := modelTable[model]; ok {
		return limits
	}
	bestLen := 0
	best := defaultLimits
	for name, limits := range modelTable {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			bestLen = len(name)
			best = limits
		}
	}
	return best
}

package generation

import "math"

// Rate is the price in USD per 1,000 tokens.
type Rate struct {
	Input  float64 `mapstructure:"input" json:"input"`
	Output float64 `mapstructure:"output" json:"output"`
}

// DefaultRate applies to models missing from the price table.
var DefaultRate = Rate{Input: 0.001, Output: 0.002}

// DefaultPrices is the built-in price table.
func DefaultPrices() map[string]Rate {
	return map[string]Rate{
		"gpt-4o-mini":      {Input: 0.00015, Output: 0.0006},
		"gpt-4o":           {Input: 0.005, Output: 0.015},
		"gpt-3.5-turbo":    {Input: 0.0005, Output: 0.0015},
		"gemini-2.0-flash": {Input: 0.0001, Output: 0.0004},
		"gemini-1.5-pro":   {Input: 0.00125, Output: 0.005},
		"gemini-1.5-flash": {Input: 0.000075, Output: 0.0003},
	}
}

// PriceTable computes generation cost.
type PriceTable struct {
	rates map[string]Rate
}

// NewPriceTable builds a table; overrides replace built-in rates per model.
func NewPriceTable(overrides map[string]Rate) *PriceTable {
	rates := DefaultPrices()
	for model, rate := range overrides {
		rates[model] = rate
	}
	return &PriceTable{rates: rates}
}

// Rate returns the rate for model.
func (p *PriceTable) Rate(model string) Rate {
	if rate, ok := p.rates[model]; ok {
		return rate
	}
	return DefaultRate
}

// Cost returns the USD cost of a call, rounded to six decimals.
func (p *PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	rate := p.Rate(model)
	cost := float64(inputTokens)/1000*rate.Input + float64(outputTokens)/1000*rate.Output
	return math.Round(cost*1e6) / 1e6
}

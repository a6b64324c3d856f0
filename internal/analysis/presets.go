package analysis

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownPreset is returned for a preset name that is not defined.
var ErrUnknownPreset = errors.New("unknown analysis preset")

// Preset is a named analysis prompt with its generation settings.
type Preset struct {
	Name         string  `json:"name"`
	SystemPrompt string  `json:"-"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float32 `json:"temperature"`
}

// DefaultPreset is used when a request names none.
const DefaultPreset = "sales"

var presets = map[string]Preset{
	"sales": {
		Name:         "sales",
		MaxTokens:    1000,
		Temperature:  0.3,
		SystemPrompt: `You are a sales assistant reviewing a customer email conversation.
Answer with these sections: Conversation Summary, Customer Sentiment, Key Insights,
Sales Opportunities, Next Steps, Risks & Concerns. Keep each section short and use
bullet points where they help scanning.`,
	},
	"freight_forwarding": {
		Name:         "freight_forwarding",
		MaxTokens:    1200,
		Temperature:  0.2,
		SystemPrompt: `You qualify inbound leads for freight forwarding software.
A good fit is a North American forwarder handling 100+ shipments a month by air, LTL,
cartage, linehaul or small parcel, IAC-certified in the U.S. or IATA-accredited in
Canada and Mexico. Direct shippers and ocean-only forwarders are not a fit. Partner
referrals and former users deserve extra weight.
Start with "RATING: HIGH FIT | MEDIUM FIT | LOW FIT | POOR FIT", then give a short
summary of the company, the fit indicators, special considerations and next steps.
Unless the lead is clearly a poor fit, suggest digging deeper.`,
	},
	"prospect": {
		Name:         "prospect",
		MaxTokens:    1500,
		Temperature:  0.2,
		SystemPrompt: `You are a strict sales prospector. Score the inquiry against the
freight forwarder profile (North American, 100+ shipments a month, air or ground
modes, IAC or IATA certified). Treat free email domains, truckers, direct shippers
and vague requests as red flags. Report a rating (GOLD / SILVER / COPPER / FOOL'S GOLD),
opportunity score, sentiment, urgency, red flags, selling points, next moves and a
one-line verdict.`,
	},
	"sentiment": {
		Name:         "sentiment",
		MaxTokens:    200,
		Temperature:  0.3,
		SystemPrompt: `Classify the sentiment of this email conversation. Reply with POSITIVE,
NEGATIVE or NEUTRAL followed by a one-sentence explanation.`,
	},
	"action_items": {
		Name:         "action_items",
		MaxTokens:    300,
		Temperature:  0.3,
		SystemPrompt: `List the action items and next steps in this email conversation as bullet points.`,
	},
	"customer_service": {
		Name:         "customer_service",
		MaxTokens:    1000,
		Temperature:  0.3,
		SystemPrompt: `You review customer service emails. Focus on customer satisfaction, issue resolution and service improvements.`,
	},
	"lead_qualification": {
		Name:         "lead_qualification",
		MaxTokens:    1000,
		Temperature:  0.3,
		SystemPrompt: `You review lead qualification emails. Assess budget, authority, need and timeline and give a lead score.`,
	},
	"deal_progression": {
		Name:         "deal_progression",
		MaxTokens:    1000,
		Temperature:  0.3,
		SystemPrompt: `You review deal progression emails. Identify the deal stage, decision makers, next steps and closing opportunities.`,
	},
	"competitor_analysis": {
		Name:         "competitor_analysis",
		MaxTokens:    1000,
		Temperature:  0.3,
		SystemPrompt: `You review emails that mention competitors. Identify threats, differentiators and positioning opportunities.`,
	},
	"relationship_building": {
		Name:         "relationship_building",
		MaxTokens:    1000,
		Temperature:  0.3,
		SystemPrompt: `You review relationship-building emails. Focus on rapport, trust and long-term opportunities.`,
	},
}

// LookupPreset returns the named preset. An empty name selects DefaultPreset.
func LookupPreset(name string) (Preset, error) {
	if name == "" {
		name = DefaultPreset
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return p, nil
}

// Presets lists every preset sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

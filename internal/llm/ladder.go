package llm

import (
	"fmt"

	"freightflow/internal/config"
	"freightflow/internal/types"
)

// Ladder hands out the client for each escalation tier. Clients are built
// once and shared; they are bound to their model so concurrent workers can
// escalate independently.
type Ladder struct {
	clients map[types.ModelTier]types.LLMClient
}

// NewLadder builds the tier clients from configuration. Anthropic is the
// primary provider; with only a Gemini credential every tier maps onto
// Gemini model sizes instead.
func NewLadder(cfg *config.Config) (*Ladder, error) {
	clients := make(map[types.ModelTier]types.LLMClient, 3)
	switch {
	case cfg.AnthropicAPIKey != "":
		for tier, model := range map[types.ModelTier]string{
			types.ModelHaiku:  cfg.HaikuModel,
			types.ModelSonnet: cfg.SonnetModel,
			types.ModelOpus:   cfg.OpusModel,
		} {
			clients[tier] = NewAnthropicClient(AnthropicConfig{
				APIKey: cfg.AnthropicAPIKey,
				Model:  model,
			})
		}
	case cfg.GeminiAPIKey != "":
		for tier, model := range map[types.ModelTier]string{
			types.ModelHaiku:  "gemini-2.5-flash-lite",
			types.ModelSonnet: "gemini-2.5-flash",
			types.ModelOpus:   "gemini-2.5-pro",
		} {
			clients[tier] = NewGeminiClient(GeminiConfig{
				APIKey: cfg.GeminiAPIKey,
				Model:  model,
			})
		}
	default:
		return nil, fmt.Errorf("llm: no provider credential configured")
	}
	return &Ladder{clients: clients}, nil
}

// NewLadderWithClients wires explicit clients; used by tests.
func NewLadderWithClients(clients map[types.ModelTier]types.LLMClient) *Ladder {
	return &Ladder{clients: clients}
}

// ForTier returns the client bound to the tier's model.
func (l *Ladder) ForTier(tier types.ModelTier) (types.LLMClient, error) {
	c, ok := l.clients[tier]
	if !ok {
		return nil, fmt.Errorf("llm: no client for tier %q", tier)
	}
	return c, nil
}

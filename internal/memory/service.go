// Package memory is the retrieval layer: chronicle embeddings plus the
// auxiliary context block handed to the extractor. The pipeline works
// without it; every failure here degrades to "no extra context" instead of
// failing the message.
package memory

import (
	"context"
	"fmt"
	"strings"

	"freightflow/internal/types"
)

const (
	similarLimit = 3
	// Queries embed subject plus a bounded body prefix.
	maxQueryChars = 1000
	minEpisodes   = 5
)

// Store is the slice of persistence the memory layer needs.
type Store interface {
	SaveEmbedding(ctx context.Context, chronicleID string, vector []float32) error
	SimilarChronicles(ctx context.Context, vector []float32, limit int) ([]types.SimilarChronicle, error)
	SenderProfile(ctx context.Context, domain string) (*types.SenderProfile, error)
}

// Service indexes chronicles and assembles aux context. A nil *Service is
// valid and does nothing, so the processor wires it unconditionally.
type Service struct {
	embedder Embedder
	store    Store
}

// New builds a memory service.
func New(embedder Embedder, store Store) *Service {
	return &Service{embedder: embedder, store: store}
}

// Index embeds a freshly persisted chronicle for later retrieval.
func (s *Service) Index(ctx context.Context, c *types.Chronicle) error {
	if s == nil || s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.EmbedDocument(ctx, chronicleText(c))
	if err != nil {
		return fmt.Errorf("memory: index %s: %w", c.ID, err)
	}
	if err := s.store.SaveEmbedding(ctx, c.ID, vec); err != nil {
		return fmt.Errorf("memory: index %s: %w", c.ID, err)
	}
	return nil
}

// Assemble builds the aux context block for a message: what this sender
// usually sends, and how similar past messages were classified. Returns ""
// when nothing useful is known.
func (s *Service) Assemble(ctx context.Context, m *types.Message) (string, error) {
	if s == nil {
		return "", nil
	}
	var sections []string

	if profile, err := s.store.SenderProfile(ctx, types.SenderDomain(m.SenderAddress)); err != nil {
		return "", fmt.Errorf("memory: sender profile: %w", err)
	} else if profile != nil && profile.Episodes >= minEpisodes {
		sections = append(sections, fmt.Sprintf(
			"Sender history: %d prior messages from %s, %.0f%% flow-valid, most often %s (%.0f%%).",
			profile.Episodes, profile.Domain, profile.FlowPassRate*100,
			profile.TopDocType, profile.TopDocTypePct*100))
	}

	if s.embedder != nil {
		similar, err := s.similar(ctx, m)
		if err != nil {
			return "", err
		}
		if len(similar) > 0 {
			var b strings.Builder
			b.WriteString("Similar past messages:")
			for _, hit := range similar {
				fmt.Fprintf(&b, "\n- %s from %s: %s",
					hit.Chronicle.Analysis.DocumentType,
					hit.Chronicle.Analysis.FromParty,
					hit.Chronicle.Analysis.Summary)
			}
			sections = append(sections, b.String())
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

func (s *Service) similar(ctx context.Context, m *types.Message) ([]types.SimilarChronicle, error) {
	query := m.Subject + "\n" + m.Body
	if len(query) > maxQueryChars {
		query = query[:maxQueryChars]
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	hits, err := s.store.SimilarChronicles(ctx, vec, similarLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: similar chronicles: %w", err)
	}
	return hits, nil
}

// chronicleText is the document representation fed to the embedder:
// classification, identifiers and the summary.
func chronicleText(c *types.Chronicle) string {
	a := &c.Analysis
	var parts []string
	parts = append(parts, a.DocumentType, a.FromParty)
	if a.BookingNumber != "" {
		parts = append(parts, "booking "+a.BookingNumber)
	}
	if a.MBLNumber != "" {
		parts = append(parts, "mbl "+a.MBLNumber)
	}
	if len(a.ContainerNumbers) > 0 {
		parts = append(parts, strings.Join(a.ContainerNumbers, " "))
	}
	parts = append(parts, a.Summary)
	return strings.Join(parts, "\n")
}

// Package rules serves the store-backed decision tables: action rules,
// flow rules, completion keywords and enum mappings. Each table is cached
// with a TTL so rule edits land without a restart but the hot path stays
// off the database.
package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

const (
	keyActionRules        = "action_rules"
	keyFlowRules          = "flow_rules"
	keyCompletionKeywords = "completion_keywords"
	keyEnumMappings       = "enum_mappings"
)

// Store is the slice of persistence the provider needs.
type Store interface {
	ListActionRules(ctx context.Context) ([]types.ActionRule, error)
	ListFlowRules(ctx context.Context) ([]types.FlowRule, error)
	ListCompletionKeywords(ctx context.Context) ([]types.CompletionKeywords, error)
	ListEnumMappings(ctx context.Context) ([]types.EnumMapping, error)
}

// Provider caches the rule tables and answers lookups against them.
// Safe for concurrent use.
type Provider struct {
	store Store
	ttl   time.Duration
	cache *gocache.Cache
}

// New builds a provider; ttl bounds rule staleness.
func New(store Store, ttl time.Duration) *Provider {
	return &Provider{
		store: store,
		ttl:   ttl,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Invalidate flushes every cached table.
func (p *Provider) Invalidate() {
	p.cache.Flush()
	logging.L(logging.CategoryRules).Debugw("rule caches flushed")
}

// ActionRule resolves the rule for (documentType, fromParty, isReply),
// falling back to the party wildcard and then the unknown party.
func (p *Provider) ActionRule(ctx context.Context, documentType, fromParty string, isReply bool) (*types.ActionRule, error) {
	index, err := p.actionIndex(ctx)
	if err != nil {
		return nil, err
	}
	for _, party := range []string{fromParty, "*", "unknown"} {
		if r, ok := index[actionKey(documentType, party, isReply)]; ok {
			return &r, nil
		}
	}
	return nil, nil
}

// FlowVerdict returns the compatibility of documentType with the stage.
// Pairs without a rule are expected.
func (p *Provider) FlowVerdict(ctx context.Context, stage types.Stage, documentType string) (types.FlowVerdict, error) {
	index, err := p.flowIndex(ctx)
	if err != nil {
		return "", err
	}
	if v, ok := index[flowKey(stage, documentType)]; ok {
		return v, nil
	}
	return types.FlowExpected, nil
}

// CompletionKeywords returns the action-closing keywords for a
// confirmation-class document type, nil when none are configured.
func (p *Provider) CompletionKeywords(ctx context.Context, documentType string) ([]string, error) {
	index, err := p.keywordIndex(ctx)
	if err != nil {
		return nil, err
	}
	return index[documentType], nil
}

// EnumMappings returns the stored enum remaps for the normalizer.
func (p *Provider) EnumMappings(ctx context.Context) ([]types.EnumMapping, error) {
	if v, ok := p.cache.Get(keyEnumMappings); ok {
		return v.([]types.EnumMapping), nil
	}
	mappings, err := p.store.ListEnumMappings(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(keyEnumMappings, mappings)
	return mappings, nil
}

func (p *Provider) actionIndex(ctx context.Context) (map[string]types.ActionRule, error) {
	if v, ok := p.cache.Get(keyActionRules); ok {
		return v.(map[string]types.ActionRule), nil
	}
	rules, err := p.store.ListActionRules(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]types.ActionRule, len(rules))
	for _, r := range rules {
		index[actionKey(r.DocumentType, r.FromParty, r.IsReply)] = r
	}
	logging.L(logging.CategoryRules).Debugw("action rules loaded", "rules", len(index))
	p.cache.SetDefault(keyActionRules, index)
	return index, nil
}

func (p *Provider) flowIndex(ctx context.Context) (map[string]types.FlowVerdict, error) {
	if v, ok := p.cache.Get(keyFlowRules); ok {
		return v.(map[string]types.FlowVerdict), nil
	}
	rules, err := p.store.ListFlowRules(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]types.FlowVerdict, len(rules))
	for _, r := range rules {
		index[flowKey(r.Stage, r.DocumentType)] = r.Verdict
	}
	p.cache.SetDefault(keyFlowRules, index)
	return index, nil
}

func (p *Provider) keywordIndex(ctx context.Context) (map[string][]string, error) {
	if v, ok := p.cache.Get(keyCompletionKeywords); ok {
		return v.(map[string][]string), nil
	}
	rows, err := p.store.ListCompletionKeywords(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string][]string, len(rows))
	for _, row := range rows {
		index[row.DocumentType] = append(index[row.DocumentType], row.Keywords...)
	}
	p.cache.SetDefault(keyCompletionKeywords, index)
	return index, nil
}

func actionKey(documentType, fromParty string, isReply bool) string {
	return fmt.Sprintf("%s|%s|%t", documentType, strings.ToLower(fromParty), isReply)
}

func flowKey(stage types.Stage, documentType string) string {
	return fmt.Sprintf("%d|%s", stage, documentType)
}

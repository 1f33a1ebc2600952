// Package pattern is the deterministic first tier of classification. A
// library of regex patterns, loaded from the store and cached as an
// immutable snapshot, is run against each message before any model is
// consulted. High-confidence matches bypass the model entirely.
package pattern

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

const (
	// FallbackThreshold is the confidence below which a pattern match is
	// not trusted on its own and the model ladder runs. Replies carry a
	// higher bar since inherited subjects mislead.
	FallbackThreshold      = 85
	ReplyFallbackThreshold = 90

	// maxBodyScan caps how much of the body each body pattern sees.
	maxBodyScan = 5 * 1024

	// attachmentBonus rewards patterns whose attachment requirement held.
	attachmentBonus = 5
)

// Store is the slice of persistence the matcher needs.
type Store interface {
	ListPatterns(ctx context.Context) ([]types.Pattern, error)
	IncrementPatternHit(ctx context.Context, patternID int64, falsePositive bool) error
}

// Candidate is one pattern that matched a message, with its decayed
// confidence.
type Candidate struct {
	Pattern    types.Pattern
	Confidence int
}

// Result is the outcome of running the library against one message.
type Result struct {
	Candidates       []Candidate
	Best             *Candidate
	RequiresFallback bool
}

// DocumentType returns the best candidate's document type, or doc_unknown
// when nothing matched.
func (r *Result) DocumentType() string {
	if r.Best == nil {
		return types.DocUnknown
	}
	return r.Best.Pattern.DocumentType
}

type compiledPattern struct {
	types.Pattern
	re *regexp.Regexp
}

type snapshot struct {
	patterns []compiledPattern
	loadedAt time.Time
}

// Matcher runs the pattern library against messages. The library is
// cached as a snapshot with a TTL; Reload invalidates it early.
type Matcher struct {
	store Store
	ttl   time.Duration

	mu   sync.RWMutex
	snap *snapshot

	// hits tracks in-flight async counter updates so Drain can wait.
	hits sync.WaitGroup
}

// NewMatcher builds a matcher over the store. The snapshot refreshes
// lazily once ttl has elapsed.
func NewMatcher(store Store, ttl time.Duration) *Matcher {
	return &Matcher{store: store, ttl: ttl}
}

// Match runs every applicable pattern against the message and returns the
// ranked candidates. threadPosition is 1-based; replies decay the
// confidence of subject patterns since inherited RE:/FW: subjects describe
// the thread opener, not the reply.
func (m *Matcher) Match(ctx context.Context, msg *types.Message, threadPosition int) (*Result, error) {
	snap, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	body := msg.Body
	if len(body) > maxBodyScan {
		body = body[:maxBodyScan]
	}
	hasAttachment := len(msg.Attachments) > 0

	var candidates []Candidate
	var hitIDs []int64
	for _, p := range snap.patterns {
		if !applicable(&p.Pattern, hasAttachment, threadPosition) {
			continue
		}
		var target string
		switch p.PatternType {
		case types.PatternSubject:
			target = msg.Subject
		case types.PatternSender:
			target = msg.SenderAddress
		case types.PatternBody:
			target = body
		default:
			continue
		}
		if !p.re.MatchString(target) {
			continue
		}
		candidates = append(candidates, Candidate{
			Pattern:    p.Pattern,
			Confidence: score(&p.Pattern, threadPosition, hasAttachment),
		})
		hitIDs = append(hitIDs, p.ID)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Pattern.Priority != candidates[j].Pattern.Priority {
			return candidates[i].Pattern.Priority > candidates[j].Pattern.Priority
		}
		return candidates[i].Confidence > candidates[j].Confidence
	})

	res := &Result{Candidates: candidates, RequiresFallback: true}
	if len(candidates) > 0 {
		threshold := FallbackThreshold
		if threadPosition > 1 {
			threshold = ReplyFallbackThreshold
		}
		res.Best = &candidates[0]
		res.RequiresFallback = res.Best.Confidence < threshold
	}

	if len(hitIDs) > 0 {
		m.hits.Add(1)
		go m.recordHits(hitIDs)
	}
	return res, nil
}

// Drain blocks until in-flight hit-counter updates finish. Called on
// shutdown and by tests.
func (m *Matcher) Drain() {
	m.hits.Wait()
}

// MarkFalsePositive records that a model overturned this pattern's verdict.
func (m *Matcher) MarkFalsePositive(ctx context.Context, patternID int64) error {
	return m.store.IncrementPatternHit(ctx, patternID, true)
}

// Reload invalidates the snapshot so the next Match reloads the library.
func (m *Matcher) Reload() {
	m.mu.Lock()
	m.snap = nil
	m.mu.Unlock()
}

func (m *Matcher) snapshot(ctx context.Context) (*snapshot, error) {
	m.mu.RLock()
	snap := m.snap
	m.mu.RUnlock()
	if snap != nil && time.Since(snap.loadedAt) < m.ttl {
		return snap, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap != nil && time.Since(m.snap.loadedAt) < m.ttl {
		return m.snap, nil
	}

	patterns, err := m.store.ListPatterns(ctx)
	if err != nil {
		return nil, err
	}
	log := logging.L(logging.CategoryPattern)
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		expr := p.Regex
		if strings.Contains(p.Flags, "i") && !strings.HasPrefix(expr, "(?i)") {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			// A bad row must not take the library down.
			log.Warnw("dropping uncompilable pattern", "id", p.ID, "error", err)
			continue
		}
		compiled = append(compiled, compiledPattern{Pattern: p, re: re})
	}
	log.Debugw("pattern library loaded", "patterns", len(compiled), "dropped", len(patterns)-len(compiled))

	m.snap = &snapshot{patterns: compiled, loadedAt: time.Now()}
	return m.snap, nil
}

// applicable checks the pattern's structural predicates before the regex
// runs.
func applicable(p *types.Pattern, hasAttachment bool, threadPosition int) bool {
	if p.RequiresAttachment && !hasAttachment {
		return false
	}
	if p.MinThreadPosition > 0 && threadPosition < p.MinThreadPosition {
		return false
	}
	if p.MaxThreadPosition > 0 && threadPosition > p.MaxThreadPosition {
		return false
	}
	return true
}

// score decays subject-pattern confidence by thread depth and rewards a
// satisfied attachment requirement. Capped at 100.
func score(p *types.Pattern, threadPosition int, hasAttachment bool) int {
	decayPct := 100
	if p.PatternType == types.PatternSubject && threadPosition > 1 {
		decayPct = 100 - 10*(threadPosition-1)
		if decayPct < 50 {
			decayPct = 50
		}
	}
	out := int(p.ConfidenceBase * float64(decayPct) / 100)
	if p.RequiresAttachment && hasAttachment {
		out += attachmentBonus
	}
	if out > 100 {
		out = 100
	}
	return out
}

func (m *Matcher) recordHits(ids []int64) {
	defer m.hits.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log := logging.L(logging.CategoryPattern)
	for _, id := range ids {
		if err := m.store.IncrementPatternHit(ctx, id, false); err != nil {
			log.Warnw("pattern hit count update failed", "id", id, "error", err)
		}
	}
}

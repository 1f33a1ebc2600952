// Package attention ranks shipments into an operational triage queue.
// Scoring is a pure function over per-shipment components; the builder
// derives those components from a shipment and its open work items.
package attention

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"freightflow/internal/normalize"
	"freightflow/internal/types"
)

// Weights drive the score. The zero value is useless; use DefaultWeights.
type Weights struct {
	ActiveIssue    float64
	IssueType      map[string]float64
	PendingAction  float64
	OverdueAction  float64
	ActionPriority map[string]float64

	ETDWithin1   float64
	ETDWithin3   float64
	ETDWithin7   float64
	CutoffOverdue float64
	CutoffWithin1 float64
	CutoffWithin3 float64

	StaleOver3 float64
	StaleOver7 float64
}

// DefaultWeights are the production defaults.
func DefaultWeights() Weights {
	return Weights{
		ActiveIssue: 100,
		IssueType: map[string]float64{
			"delay": 50, "rollover": 60, "hold": 40,
			"documentation": 30, "customs": 35, "damage": 45,
		},
		PendingAction: 10,
		OverdueAction: 40,
		ActionPriority: map[string]float64{
			"critical": 80, "high": 40, "medium": 20, "low": 5,
		},
		ETDWithin1:    75,
		ETDWithin3:    50,
		ETDWithin7:    25,
		CutoffOverdue: 100,
		CutoffWithin1: 60,
		CutoffWithin3: 30,
		StaleOver3:    -20,
		StaleOver7:    -40,
	}
}

// Tier thresholds over the final score.
const (
	strongThreshold = 60
	mediumThreshold = 35
	weakThreshold   = 15
)

// Engine scores attention components.
type Engine struct {
	weights Weights
}

// New builds an engine with the given weights.
func New(weights Weights) *Engine {
	return &Engine{weights: weights}
}

// Score computes the attention entry for one set of components.
func (e *Engine) Score(c types.AttentionComponents) types.AttentionEntry {
	w := e.weights
	score := 0.0

	if c.HasActiveIssue {
		score += w.ActiveIssue
		for _, it := range c.IssueTypes {
			score += w.IssueType[it]
		}
	}

	score += float64(c.PendingActions) * w.PendingAction
	score += float64(c.OverdueActions) * w.OverdueAction
	score += w.ActionPriority[c.MaxActionPriority]

	if c.DaysToETD != nil && *c.DaysToETD >= 0 {
		switch d := *c.DaysToETD; {
		case d <= 1:
			score += w.ETDWithin1
		case d <= 3:
			score += w.ETDWithin3
		case d <= 7:
			score += w.ETDWithin7
		}
	}

	if c.NearestCutoffDays != nil {
		switch d := *c.NearestCutoffDays; {
		case d < 0:
			score += w.CutoffOverdue
		case d <= 1:
			score += w.CutoffWithin1
		case d <= 3:
			score += w.CutoffWithin3
		}
	}

	switch {
	case c.DaysSinceActivity > 7:
		score += w.StaleOver7
	case c.DaysSinceActivity > 3:
		score += w.StaleOver3
	}

	if score < 0 {
		score = 0
	}
	return types.AttentionEntry{Components: c, Score: score, Tier: tierFor(score)}
}

// Rank scores every shipment's work bundle and returns entries ordered by
// descending score.
func (e *Engine) Rank(work []types.ShipmentWork, now time.Time) []types.AttentionEntry {
	entries := lo.Map(work, func(sw types.ShipmentWork, _ int) types.AttentionEntry {
		return e.Score(BuildComponents(&sw, now))
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

func tierFor(score float64) types.AttentionTier {
	switch {
	case score >= strongThreshold:
		return types.TierStrong
	case score >= mediumThreshold:
		return types.TierMedium
	case score >= weakThreshold:
		return types.TierWeak
	}
	return types.TierNoise
}

// BuildComponents derives the scorable view from a shipment and its open
// work items. Day arithmetic is midnight-aligned in local time.
func BuildComponents(sw *types.ShipmentWork, now time.Time) types.AttentionComponents {
	s := &sw.Shipment
	c := types.AttentionComponents{
		ShipmentID:        s.ID,
		DaysSinceActivity: daysBetween(s.LastActivityAt, now),
		CutoffStatus:      types.CutoffSafe,
	}

	for _, issue := range sw.Issues {
		if issue.Status != types.IssueActive {
			continue
		}
		c.HasActiveIssue = true
		c.IssueTypes = append(c.IssueTypes, issue.IssueType)
	}
	c.IssueTypes = lo.Uniq(c.IssueTypes)

	for _, act := range sw.Actions {
		if act.Status != types.ActionOpen {
			continue
		}
		c.PendingActions++
		if act.IsOverdue(now) {
			c.OverdueActions++
		}
		if priorityRank(act.Priority) > priorityRank(c.MaxActionPriority) {
			c.MaxActionPriority = act.Priority
		}
	}

	if s.ETD != "" {
		if d, ok := daysUntil(s.ETD, now); ok {
			c.DaysToETD = &d
		}
	}

	c.NearestCutoffDays, c.NearestCutoffType = nearestCutoff(s, now)
	if c.NearestCutoffDays != nil {
		c.CutoffStatus = cutoffStatus(*c.NearestCutoffDays)
	}
	return c
}

func priorityRank(p string) int {
	switch p {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

// nearestCutoff picks the cutoff with the fewest days remaining; negative
// means overdue and still wins.
func nearestCutoff(s *types.Shipment, now time.Time) (*int, string) {
	type cutoff struct {
		name string
		date string
	}
	cutoffs := []cutoff{
		{"si_cutoff", s.SICutoff},
		{"vgm_cutoff", s.VGMCutoff},
		{"cargo_cutoff", s.CargoCutoff},
		{"doc_cutoff", s.DocCutoff},
	}

	var bestDays *int
	bestName := ""
	for _, co := range cutoffs {
		if co.date == "" {
			continue
		}
		d, ok := daysUntil(co.date, now)
		if !ok {
			continue
		}
		if bestDays == nil || d < *bestDays {
			days := d
			bestDays = &days
			bestName = co.name
		}
	}
	return bestDays, bestName
}

func cutoffStatus(days int) types.CutoffStatus {
	switch {
	case days < 0:
		return types.CutoffOverdue
	case days <= 1:
		return types.CutoffUrgent
	case days <= 3:
		return types.CutoffWarning
	}
	return types.CutoffSafe
}

// daysUntil computes ceil((date - today)/day) with both sides aligned to
// local midnight, so "tomorrow" is 1 regardless of the hour.
func daysUntil(isoDate string, now time.Time) (int, bool) {
	if !normalize.ValidDate(isoDate) {
		return 0, false
	}
	target, err := time.ParseInLocation("2006-01-02", isoDate, now.Location())
	if err != nil {
		return 0, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(target.Sub(today) / (24 * time.Hour)), true
}

// daysBetween counts whole midnight-aligned days from a to b.
func daysBetween(a, b time.Time) int {
	if a.IsZero() {
		return 0
	}
	am := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, b.Location())
	bm := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location())
	d := int(bm.Sub(am) / (24 * time.Hour))
	if d < 0 {
		return 0
	}
	return d
}

package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"freightflow/internal/normalize"
	"freightflow/internal/shipment"
	"freightflow/internal/types"
)

// urgentDeadline is how long an "urgent" rule gives from receipt.
const urgentDeadline = 24 * time.Hour

// cutoffBoostWindow is how close a deadline must be to bump priority.
const cutoffBoostWindow = 48 * time.Hour

var priorityOrder = []string{"low", "medium", "high", "critical"}

// resolveAction turns the matched action rule into a concrete work item, or
// nil when the message carries no action after flip keywords are applied.
func (p *Processor) resolveAction(ctx context.Context, c *types.Chronicle, m *types.Message) (*shipment.ActionSpec, error) {
	a := &c.Analysis
	rule, err := p.rules.ActionRule(ctx, a.DocumentType, a.FromParty, m.IsReply(c.ThreadPosition))
	if err != nil {
		return nil, fmt.Errorf("processor: action rule: %w", err)
	}

	hasAction := a.HasAction
	text := strings.ToLower(m.Subject + "\n" + m.Body)
	if rule != nil {
		hasAction = rule.HasAction
		if containsAny(text, rule.FlipToActionWords) {
			hasAction = true
		}
		if containsAny(text, rule.FlipToNoActionWords) {
			hasAction = false
		}
	}
	if !hasAction {
		return nil, nil
	}

	spec := &shipment.ActionSpec{
		Description: a.ActionDescription,
		Owner:       a.ActionOwner,
		Priority:    a.ActionPriority,
	}
	if rule != nil {
		spec.Verb = rule.Verb
		if rule.DescriptionTemplate != "" {
			spec.Description = renderTemplate(rule.DescriptionTemplate, a)
		}
		if rule.Owner != "" {
			spec.Owner = rule.Owner
		}
		if rule.PriorityBase != "" {
			spec.Priority = rule.PriorityBase
		}
		spec.Deadline = resolveDeadline(rule, a, m.ReceivedAt)

		boosts := 0
		if containsAny(text, rule.PriorityBoostWords) {
			boosts++
		}
		if spec.Deadline != nil && spec.Deadline.Sub(m.ReceivedAt) <= cutoffBoostWindow {
			boosts++
		}
		spec.Priority = boostPriority(spec.Priority, boosts)
	}
	if spec.Owner == "" {
		spec.Owner = "unknown"
	}
	if spec.Priority == "" {
		spec.Priority = "medium"
	}
	if spec.Description == "" {
		spec.Description = a.Summary
	}
	return spec, nil
}

func resolveDeadline(rule *types.ActionRule, a *types.ExtractedAnalysis, receivedAt time.Time) *time.Time {
	switch rule.DeadlineType {
	case types.DeadlineFixedDays:
		d := receivedAt.AddDate(0, 0, rule.DeadlineDays)
		return &d
	case types.DeadlineCutoffRelative:
		date := cutoffValue(a, rule.CutoffField)
		if !normalize.ValidDate(date) {
			return nil
		}
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil
		}
		// DeadlineDays offsets from the cutoff; negative means days before.
		d := t.AddDate(0, 0, rule.DeadlineDays)
		return &d
	case types.DeadlineUrgent:
		d := receivedAt.Add(urgentDeadline)
		return &d
	}
	return nil
}

func cutoffValue(a *types.ExtractedAnalysis, field string) string {
	switch field {
	case "si_cutoff":
		return a.SICutoff
	case "vgm_cutoff":
		return a.VGMCutoff
	case "cargo_cutoff":
		return a.CargoCutoff
	case "doc_cutoff":
		return a.DocCutoff
	case "etd":
		return a.ETD
	case "last_free_day":
		return a.LastFreeDay
	}
	return ""
}

// renderTemplate substitutes {field} placeholders with analysis values.
func renderTemplate(tmpl string, a *types.ExtractedAnalysis) string {
	r := strings.NewReplacer(
		"{booking_number}", a.BookingNumber,
		"{mbl_number}", a.MBLNumber,
		"{work_order_number}", a.WorkOrderNumber,
		"{vessel_name}", a.VesselName,
		"{pol_location}", a.POLLocation,
		"{pod_location}", a.PODLocation,
		"{si_cutoff}", a.SICutoff,
		"{vgm_cutoff}", a.VGMCutoff,
		"{cargo_cutoff}", a.CargoCutoff,
		"{eta}", a.ETA,
		"{etd}", a.ETD,
	)
	return strings.TrimSpace(r.Replace(tmpl))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func boostPriority(base string, boosts int) string {
	if base == "" {
		base = "medium"
	}
	idx := 0
	for i, p := range priorityOrder {
		if p == base {
			idx = i
			break
		}
	}
	idx += boosts
	if idx >= len(priorityOrder) {
		idx = len(priorityOrder) - 1
	}
	return priorityOrder[idx]
}

package types

// CutoffStatus tiers the nearest cutoff by days remaining.
type CutoffStatus string

const (
	CutoffSafe    CutoffStatus = "safe"
	CutoffWarning CutoffStatus = "warning"
	CutoffUrgent  CutoffStatus = "urgent"
	CutoffOverdue CutoffStatus = "overdue"
)

// AttentionComponents is the computed per-shipment view the attention
// engine scores. DaysToETD and NearestCutoffDays are nil when unknown;
// negative cutoff days mean overdue.
type AttentionComponents struct {
	ShipmentID        string       `json:"shipment_id"`
	HasActiveIssue    bool         `json:"has_active_issue"`
	IssueTypes        []string     `json:"issue_types,omitempty"`
	PendingActions    int          `json:"pending_actions"`
	OverdueActions    int          `json:"overdue_actions"`
	MaxActionPriority string       `json:"max_action_priority,omitempty"`
	DaysSinceActivity int          `json:"days_since_activity"`
	DaysToETD         *int         `json:"days_to_etd,omitempty"`
	CutoffStatus      CutoffStatus `json:"cutoff_status"`
	NearestCutoffDays *int         `json:"nearest_cutoff_days,omitempty"`
	NearestCutoffType string       `json:"nearest_cutoff_type,omitempty"`
}

// AttentionTier is the coarse triage bucket over the attention score.
type AttentionTier string

const (
	TierStrong AttentionTier = "strong"
	TierMedium AttentionTier = "medium"
	TierWeak   AttentionTier = "weak"
	TierNoise  AttentionTier = "noise"
)

// AttentionEntry is one scored row in the operational queue.
type AttentionEntry struct {
	Components AttentionComponents `json:"components"`
	Score      float64             `json:"score"`
	Tier       AttentionTier       `json:"tier"`
}

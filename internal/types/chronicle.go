package types

import "time"

// ConfidenceSource records which classifier produced the persisted analysis.
type ConfidenceSource string

const (
	SourcePattern ConfidenceSource = "pattern"
	SourceHaiku   ConfidenceSource = "haiku"
	SourceSonnet  ConfidenceSource = "sonnet"
	SourceOpus    ConfidenceSource = "opus"
)

// Chronicle is the persisted, fully-extracted record of one ingested
// message: the analysis plus raw message metadata plus provenance.
type Chronicle struct {
	ID       string `json:"id"`
	Analysis ExtractedAnalysis

	// Raw message metadata
	MessageID      string    `json:"message_id"`
	ThreadID       string    `json:"thread_id"`
	Subject        string    `json:"subject"`
	SenderAddress  string    `json:"sender_address"`
	Direction      Direction `json:"direction"`
	ThreadPosition int       `json:"thread_position"`
	OccurredAt     time.Time `json:"occurred_at"`

	// Provenance
	Confidence       float64          `json:"confidence"`
	ConfidenceSource ConfidenceSource `json:"confidence_source"`
	EscalationReason string           `json:"escalation_reason,omitempty"`
	ReanalysisFlags  []string         `json:"reanalysis_flags,omitempty"`

	ShipmentID string    `json:"shipment_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Review flags set by flow validation and the confidence scorer.
const (
	FlagImpossibleFlow = "impossible_flow"
	FlagUnexpectedFlow = "unexpected_flow"
	FlagLowConfidence  = "low_confidence"
)

// ProcessResult is the outcome of processing one message.
type ProcessResult struct {
	ChronicleID string   `json:"chronicle_id,omitempty"`
	ShipmentID  string   `json:"shipment_id,omitempty"`
	LinkedBy    LinkedBy `json:"linked_by,omitempty"`
	Skipped     bool     `json:"skipped"`
	Duplicate   bool     `json:"duplicate"`
	Err         string   `json:"error,omitempty"`
}

// BatchSummary is the result of one ingest or reanalysis run.
type BatchSummary struct {
	Processed   int   `json:"processed"`
	Succeeded   int   `json:"succeeded"`
	Failed      int   `json:"failed"`
	Linked      int   `json:"linked"`
	TotalTimeMs int64 `json:"total_time_ms"`
}

// ChronicleError is one recorded processing failure for a message. Three
// strikes and the processor skips the message for good.
type ChronicleError struct {
	ID         int64     `json:"id"`
	MessageID  string    `json:"message_id"`
	Stage      string    `json:"stage"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SyncState records bookkeeping for one batch run.
type SyncState struct {
	ID          int64     `json:"id"`
	LastRunAt   time.Time `json:"last_run_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Processed   int       `json:"processed"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
}

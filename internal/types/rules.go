package types

import "time"

// PatternType selects which part of the message a detection pattern tests.
type PatternType string

const (
	PatternSubject PatternType = "subject"
	PatternSender  PatternType = "sender"
	PatternBody    PatternType = "body"
)

// Pattern is one regex classification rule loaded from the store.
type Pattern struct {
	ID                 int64       `json:"id" yaml:"id"`
	PatternType        PatternType `json:"pattern_type" yaml:"pattern_type"`
	Regex              string      `json:"regex" yaml:"regex"`
	Flags              string      `json:"flags,omitempty" yaml:"flags,omitempty"`
	DocumentType       string      `json:"document_type" yaml:"document_type"`
	Priority           int         `json:"priority" yaml:"priority"`
	ConfidenceBase     float64     `json:"confidence_base" yaml:"confidence_base"`
	RequiresAttachment bool        `json:"requires_attachment" yaml:"requires_attachment"`
	MinThreadPosition  int         `json:"min_thread_position,omitempty" yaml:"min_thread_position,omitempty"`
	MaxThreadPosition  int         `json:"max_thread_position,omitempty" yaml:"max_thread_position,omitempty"`
	HitCount           int64       `json:"hit_count,omitempty" yaml:"-"`
	FalsePositiveCount int64       `json:"false_positive_count,omitempty" yaml:"-"`
}

// DeadlineType selects how an action rule derives its deadline.
type DeadlineType string

const (
	DeadlineFixedDays      DeadlineType = "fixed_days"
	DeadlineCutoffRelative DeadlineType = "cutoff_relative"
	DeadlineUrgent         DeadlineType = "urgent" // 24h from receipt
	DeadlineNone           DeadlineType = "none"
)

// ActionRule maps (documentType, fromParty, isReply) to the action emitted
// for a matching chronicle. Lookup falls back
// (dt,party,reply) -> (dt,*,reply) -> (dt,unknown,reply).
type ActionRule struct {
	DocumentType string `json:"document_type" yaml:"document_type"`
	FromParty    string `json:"from_party" yaml:"from_party"` // "*" = wildcard
	IsReply      bool   `json:"is_reply" yaml:"is_reply"`

	HasAction           bool         `json:"has_action" yaml:"has_action"`
	Verb                string       `json:"verb,omitempty" yaml:"verb,omitempty"`
	DescriptionTemplate string       `json:"description_template,omitempty" yaml:"description_template,omitempty"`
	Owner               string       `json:"owner,omitempty" yaml:"owner,omitempty"`
	PriorityBase        string       `json:"priority_base,omitempty" yaml:"priority_base,omitempty"`
	PriorityBoostWords  []string     `json:"priority_boost_keywords,omitempty" yaml:"priority_boost_keywords,omitempty"`
	DeadlineType        DeadlineType `json:"deadline_type,omitempty" yaml:"deadline_type,omitempty"`
	DeadlineDays        int          `json:"deadline_days,omitempty" yaml:"deadline_days,omitempty"`
	CutoffField         string       `json:"cutoff_field,omitempty" yaml:"cutoff_field,omitempty"`
	FlipToActionWords   []string     `json:"flip_to_action_keywords,omitempty" yaml:"flip_to_action_keywords,omitempty"`
	FlipToNoActionWords []string     `json:"flip_to_no_action_keywords,omitempty" yaml:"flip_to_no_action_keywords,omitempty"`
	AutoResolveOn       []string     `json:"auto_resolve_on,omitempty" yaml:"auto_resolve_on,omitempty"`
}

// FlowVerdict is the compatibility of a document type with a stage.
type FlowVerdict string

const (
	FlowExpected   FlowVerdict = "expected"
	FlowUnexpected FlowVerdict = "unexpected"
	FlowImpossible FlowVerdict = "impossible"
)

// FlowRule is one (stage, documentType) compatibility predicate.
type FlowRule struct {
	Stage        Stage       `json:"stage" yaml:"stage"`
	DocumentType string      `json:"document_type" yaml:"document_type"`
	Verdict      FlowVerdict `json:"verdict" yaml:"verdict"`
}

// CompletionKeywords maps a confirmation-class document type to the keywords
// that close matching open actions.
type CompletionKeywords struct {
	DocumentType string   `json:"document_type" yaml:"document_type"`
	Keywords     []string `json:"keywords" yaml:"keywords"`
}

// EnumMapping is one stored enum remap: (field, variant) -> canonical.
type EnumMapping struct {
	Field     string `json:"field" yaml:"field"`
	Variant   string `json:"variant" yaml:"variant"`
	Canonical string `json:"canonical" yaml:"canonical"`
}

// LearningEpisode is recorded per chronicle; written by the pipeline,
// consumed only by query-time sender-profile aggregation.
type LearningEpisode struct {
	ID                   int64     `json:"id"`
	ChronicleID          string    `json:"chronicle_id"`
	PredictedType        string    `json:"predicted_type"`
	Confidence           float64   `json:"confidence"`
	Method               string    `json:"method"` // "pattern" or "ai"
	SenderDomain         string    `json:"sender_domain"`
	ThreadPosition       int       `json:"thread_position"`
	FlowValidationPassed bool      `json:"flow_validation_passed"`
	ReviewReason         string    `json:"review_reason,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// SenderProfile is the rolling classification record for a sender domain.
type SenderProfile struct {
	Domain        string  `json:"domain"`
	Episodes      int     `json:"episodes"`
	FlowPassRate  float64 `json:"flow_pass_rate"`
	TopDocType    string  `json:"top_doc_type"`
	TopDocTypePct float64 `json:"top_doc_type_pct"`
}

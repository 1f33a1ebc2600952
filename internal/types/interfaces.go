package types

import (
	"context"
	"time"
)

// LLMClient defines the interface for LLM providers. Clients are bound to a
// single model; tiered escalation picks a different client, never mutates a
// shared one mid-flight.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends a prompt with tool definitions and returns the
	// response including any tool calls the model made.
	CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []ToolDefinition) (*LLMToolResponse, error)
	GetModel() string
}

// ModelTier is the escalation ladder for extraction.
type ModelTier string

const (
	ModelHaiku  ModelTier = "haiku"
	ModelSonnet ModelTier = "sonnet"
	ModelOpus   ModelTier = "opus"
)

// ToolDefinition describes a structured tool the LLM can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`
	ToolCalls  []ToolCall    `json:"tool_calls"`
	StopReason string        `json:"stop_reason"`
	Usage      UsageMetadata `json:"usage"`
}

// PdfExtractor extracts plain text from attachment bytes. Implementations
// live outside the pipeline; a passthrough ships for dev.
type PdfExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// MailSource fetches messages from the mail provider. The pipeline never
// writes back.
type MailSource interface {
	Fetch(ctx context.Context, after time.Time, before time.Time, max int) ([]Message, error)
	FetchAttachment(ctx context.Context, messageID, filename string) ([]byte, error)
}

// SimilarChronicle is one memory-retrieval hit.
type SimilarChronicle struct {
	Chronicle  Chronicle `json:"chronicle"`
	Similarity float64   `json:"similarity"`
}

// ShipmentWork bundles a shipment with its open work items for attention
// scoring.
type ShipmentWork struct {
	Shipment Shipment         `json:"shipment"`
	Actions  []ShipmentAction `json:"actions"`
	Issues   []ShipmentIssue  `json:"issues"`
}

// Store abstracts all persistence. The SQLite implementation lives in
// internal/store; tests substitute fakes.
type Store interface {
	// Chronicles
	GetChronicleByMessageID(ctx context.Context, messageID string) (*Chronicle, error)
	SaveChronicle(ctx context.Context, c *Chronicle) error
	UpdateChronicle(ctx context.Context, c *Chronicle) error
	ThreadChronicles(ctx context.Context, threadID string, limit int) ([]Chronicle, error)
	ThreadPosition(ctx context.Context, threadID string, occurredAt time.Time) (int, error)
	SetChronicleShipment(ctx context.Context, chronicleID, shipmentID string, linkedBy LinkedBy) error
	ListChronicles(ctx context.Context, after, before time.Time, max int) ([]Chronicle, error)

	// Error records / retry cap
	CountErrors(ctx context.Context, messageID string) (int, error)
	RecordError(ctx context.Context, e *ChronicleError) error

	// Shipments
	FindShipmentByBooking(ctx context.Context, bookingNumber string) (*Shipment, error)
	FindShipmentByMBL(ctx context.Context, mblNumber string) (*Shipment, error)
	FindShipmentByWorkOrder(ctx context.Context, workOrderNumber string) (*Shipment, error)
	FindShipmentByContainers(ctx context.Context, containerNumbers []string) (*Shipment, error)
	CreateShipment(ctx context.Context, s *Shipment) error
	UpdateShipment(ctx context.Context, s *Shipment) error
	// AdvanceStage moves the shipment forward iff to > current stage and
	// records the transition. Returns whether the stage changed.
	AdvanceStage(ctx context.Context, shipmentID string, to Stage, docType string, at time.Time) (bool, error)
	ListShipmentWork(ctx context.Context) ([]ShipmentWork, error)

	// Actions and issues
	OpenAction(ctx context.Context, a *ShipmentAction) error
	OpenActions(ctx context.Context, shipmentID string) ([]ShipmentAction, error)
	CompleteAction(ctx context.Context, actionID int64, at time.Time) error
	OpenIssue(ctx context.Context, i *ShipmentIssue) error
	ActiveIssues(ctx context.Context, shipmentID string) ([]ShipmentIssue, error)
	ResolveIssue(ctx context.Context, issueID int64, at time.Time) error

	// Rule tables
	ListPatterns(ctx context.Context) ([]Pattern, error)
	IncrementPatternHit(ctx context.Context, patternID int64, falsePositive bool) error
	ListActionRules(ctx context.Context) ([]ActionRule, error)
	ListFlowRules(ctx context.Context) ([]FlowRule, error)
	ListCompletionKeywords(ctx context.Context) ([]CompletionKeywords, error)
	ListEnumMappings(ctx context.Context) ([]EnumMapping, error)

	// Learning
	RecordLearningEpisode(ctx context.Context, ep *LearningEpisode) error
	SenderProfile(ctx context.Context, domain string) (*SenderProfile, error)

	// Memory
	SaveEmbedding(ctx context.Context, chronicleID string, vector []float32) error
	SimilarChronicles(ctx context.Context, vector []float32, limit int) ([]SimilarChronicle, error)

	// Batch bookkeeping
	RecordSyncState(ctx context.Context, s *SyncState) error

	Close() error
}

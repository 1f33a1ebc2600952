// Package extract runs one structured-tool LLM call per message and turns
// the tool response into a validated ExtractedAnalysis. Escalation policy
// lives in the processor; this package performs exactly one call.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"freightflow/internal/logging"
	"freightflow/internal/normalize"
	"freightflow/internal/types"
)

// ErrSchemaRejected means the model response could not be mapped onto the
// closed extraction schema.
var ErrSchemaRejected = errors.New("extraction response rejected by schema")

// Input is one extraction request.
type Input struct {
	Message         *types.Message
	AttachmentTexts []string
	ThreadContext   []types.Chronicle
	ThreadPosition  int
	AuxContext      string
}

// Result is a validated extraction plus its provenance.
type Result struct {
	Analysis *types.ExtractedAnalysis
	// Repairs counts normalizer and cross-field fixes; the confidence
	// scorer penalizes each one.
	Repairs int
	Model   string
	Usage   types.UsageMetadata
}

// Extractor composes prompts, invokes a client and validates responses.
type Extractor struct {
	normalizer *normalize.Normalizer
	yearMin    int
	yearMax    int
}

// New builds an extractor. The normalizer carries the stored enum
// mappings; yearMin/yearMax bound accepted date years.
func New(normalizer *normalize.Normalizer, yearMin, yearMax int) *Extractor {
	return &Extractor{normalizer: normalizer, yearMin: yearMin, yearMax: yearMax}
}

// Extract performs one structured-tool call against the given client and
// returns the validated analysis.
func (e *Extractor) Extract(ctx context.Context, client types.LLMClient, in *Input) (*Result, error) {
	log := logging.L(logging.CategoryExtract)

	prompt := buildPrompt(in)
	resp, err := client.CompleteWithTools(ctx, systemPrompt, prompt, []types.ToolDefinition{Definition()})
	if err != nil {
		return nil, fmt.Errorf("extract: model call: %w", err)
	}

	var call *types.ToolCall
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Name == ToolName {
			call = &resp.ToolCalls[i]
			break
		}
	}
	if call == nil {
		log.Warnw("model returned no tool call",
			"model", client.GetModel(), "stop_reason", resp.StopReason, "text_len", len(resp.Text))
		return nil, fmt.Errorf("%w: no %s call in response", ErrSchemaRejected, ToolName)
	}

	analysis, coercions, err := parseToolInput(call.Input)
	if err != nil {
		return nil, err
	}

	repairs := coercions
	repairs += e.normalizer.Apply(analysis, in.Message.Subject)
	repairs += e.validate(analysis)

	log.Debugw("extraction complete",
		"model", client.GetModel(),
		"document_type", analysis.DocumentType,
		"repairs", repairs,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return &Result{
		Analysis: analysis,
		Repairs:  repairs,
		Model:    client.GetModel(),
		Usage:    resp.Usage,
	}, nil
}

// arrayFields are schema fields typed as arrays that models sometimes
// return as one comma- or whitespace-joined string.
var arrayFields = []string{"container_numbers", "reference_numbers"}

// portFields are scalar port fields that models sometimes return as a
// single-element list.
var portFields = []string{"por_location", "pol_location", "pod_location", "pofd_location"}

// parseToolInput maps the tool-call input onto the analysis struct via a
// JSON roundtrip so nulls and type coercion follow the schema's tags.
// Scalar-vs-list shape mismatches are repaired first, each counting as a
// repair, rather than rejecting the whole extraction.
func parseToolInput(input map[string]any) (*types.ExtractedAnalysis, int, error) {
	repairs := 0
	for _, k := range arrayFields {
		if s, ok := input[k].(string); ok {
			input[k] = normalize.SplitList(s)
			repairs++
		}
	}
	for _, k := range portFields {
		if vs, ok := input[k].([]any); ok {
			var strs []string
			for _, v := range vs {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			input[k] = normalize.PortList(strs)
			repairs++
		}
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSchemaRejected, err)
	}
	var a types.ExtractedAnalysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSchemaRejected, err)
	}
	if a.Summary == "" {
		return nil, 0, fmt.Errorf("%w: summary is required", ErrSchemaRejected)
	}
	return &a, repairs, nil
}

// validate enforces the closed enumerations and cross-field date rules.
// Invalid required enums degrade to "unknown"; invalid optional enums are
// nulled. Every fix counts as a repair.
func (e *Extractor) validate(a *types.ExtractedAnalysis) int {
	repairs := 0

	repairs += coerceEnum(&a.TransportMode, types.ValidTransportModes, "unknown")
	repairs += coerceEnum(&a.DocumentType, types.ValidDocumentTypes, types.DocUnknown)
	repairs += coerceEnum(&a.FromParty, types.ValidFromParties, "unknown")
	repairs += coerceEnum(&a.MessageType, types.ValidMessageTypes, "unknown")
	repairs += coerceEnum(&a.Sentiment, types.ValidSentiments, "neutral")
	repairs += coerceEnum(&a.IdentifierSource, types.ValidIdentifierSources, "body")

	repairs += dropInvalidEnum(&a.PORType, types.ValidPointTypes)
	repairs += dropInvalidEnum(&a.POLType, types.ValidPointTypes)
	repairs += dropInvalidEnum(&a.PODType, types.ValidPointTypes)
	repairs += dropInvalidEnum(&a.POFDType, types.ValidPointTypes)
	repairs += dropInvalidEnum(&a.ActionOwner, types.ValidActionOwners)
	repairs += dropInvalidEnum(&a.ActionPriority, types.ValidActionPriorities)
	repairs += dropInvalidEnum(&a.IssueType, types.ValidIssueTypes)

	// Year window.
	for _, p := range []*string{
		&a.ETD, &a.ATD, &a.ETA, &a.ATA, &a.PickupDate, &a.DeliveryDate,
		&a.SICutoff, &a.VGMCutoff, &a.CargoCutoff, &a.DocCutoff,
		&a.LastFreeDay, &a.EmptyReturnDate, &a.PODDeliveryDate,
		&a.ActionDeadline,
	} {
		if *p != "" && !normalize.YearInWindow(*p, e.yearMin, e.yearMax) {
			*p = ""
			repairs++
		}
	}

	// A last free day only makes sense on arrival-class documents.
	if a.LastFreeDay != "" && !types.ArrivalClassDocTypes[a.DocumentType] {
		a.LastFreeDay = ""
		repairs++
	}

	// ETD <= ETA <= LFD; violations null the later field.
	if a.ETD != "" && a.ETA != "" && normalize.CompareDates(a.ETA, a.ETD) < 0 {
		a.ETA = ""
		repairs++
	}
	if a.LastFreeDay != "" {
		ref := a.ETA
		if ref == "" {
			ref = a.ETD
		}
		if ref != "" && normalize.CompareDates(a.LastFreeDay, ref) < 0 {
			a.LastFreeDay = ""
			repairs++
		}
	}

	return repairs
}

func coerceEnum(p *string, valid map[string]bool, fallback string) int {
	if *p == "" || !valid[*p] {
		if *p != fallback {
			*p = fallback
			return 1
		}
	}
	return 0
}

func dropInvalidEnum(p *string, valid map[string]bool) int {
	if *p != "" && !valid[*p] {
		*p = ""
		return 1
	}
	return 0
}

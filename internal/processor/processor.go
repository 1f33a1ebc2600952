// Package processor orchestrates the per-message pipeline: classify,
// extract, score, persist, link. One Processor serves many workers; all
// mutable state lives in the store and the TTL caches.
package processor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"freightflow/internal/confidence"
	"freightflow/internal/extract"
	"freightflow/internal/llm"
	"freightflow/internal/logging"
	"freightflow/internal/memory"
	"freightflow/internal/normalize"
	"freightflow/internal/pattern"
	"freightflow/internal/rules"
	"freightflow/internal/shipment"
	"freightflow/internal/types"
)

// Deps are the processor's collaborators. Ladder, Memory, Mail and Pdf may
// be nil; the pipeline degrades instead of failing.
type Deps struct {
	Store      types.Store
	Matcher    *pattern.Matcher
	Rules      *rules.Provider
	Normalizer *normalize.Normalizer
	Extractor  *extract.Extractor
	Ladder     *llm.Ladder
	Scorer     *confidence.Scorer
	Linker     *shipment.Linker
	Memory     *memory.Service
	Mail       types.MailSource
	Pdf        types.PdfExtractor
	Metrics    *Metrics
	RetryCap   int
}

// Processor runs the per-message algorithm.
type Processor struct {
	store      types.Store
	matcher    *pattern.Matcher
	rules      *rules.Provider
	normalizer *normalize.Normalizer
	extractor  *extract.Extractor
	ladder     *llm.Ladder
	scorer     *confidence.Scorer
	linker     *shipment.Linker
	memory     *memory.Service
	mail       types.MailSource
	pdf        types.PdfExtractor
	metrics    *Metrics
	retryCap   int
}

// New builds a processor.
func New(d Deps) *Processor {
	return &Processor{
		store:      d.Store,
		matcher:    d.Matcher,
		rules:      d.Rules,
		normalizer: d.Normalizer,
		extractor:  d.Extractor,
		ladder:     d.Ladder,
		scorer:     d.Scorer,
		linker:     d.Linker,
		memory:     d.Memory,
		mail:       d.Mail,
		pdf:        d.Pdf,
		metrics:    d.Metrics,
		retryCap:   d.RetryCap,
	}
}

// Process runs one message through the pipeline. Failures are recorded in
// the error table and returned in the result; the batch continues.
func (p *Processor) Process(ctx context.Context, m *types.Message) *types.ProcessResult {
	log := logging.L(logging.CategoryProcessor)
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.MessageSeconds.Observe(time.Since(start).Seconds())
		}
	}()

	// 1. Retry cap.
	errCount, err := p.store.CountErrors(ctx, m.MessageID)
	if err != nil {
		return p.fail(ctx, m, "retry_check", err)
	}
	if errCount >= p.retryCap {
		log.Warnw("retry cap reached, skipping", "message_id", m.MessageID, "errors", errCount)
		return &types.ProcessResult{Skipped: true}
	}

	// 2. Idempotency.
	existing, err := p.store.GetChronicleByMessageID(ctx, m.MessageID)
	if err != nil {
		return p.fail(ctx, m, "idempotency_check", err)
	}
	if existing != nil {
		return &types.ProcessResult{
			ChronicleID: existing.ID,
			ShipmentID:  existing.ShipmentID,
			Duplicate:   true,
		}
	}

	// 3. Attachment text.
	attachmentTexts := p.attachmentTexts(ctx, m)

	// 4. Thread context.
	threadPos, err := p.store.ThreadPosition(ctx, m.ThreadID, m.ReceivedAt)
	if err != nil {
		return p.fail(ctx, m, "thread_position", err)
	}
	threadCtx, err := p.store.ThreadChronicles(ctx, m.ThreadID, 10)
	if err != nil {
		return p.fail(ctx, m, "thread_context", err)
	}

	// 5-8. Classify, normalize, score, escalate.
	c, err := p.analyze(ctx, m, attachmentTexts, threadCtx, threadPos)
	if err != nil {
		return p.fail(ctx, m, "extract", err)
	}

	// 9. Persist.
	if err := p.store.SaveChronicle(ctx, c); err != nil {
		return p.fail(ctx, m, "persist", err)
	}

	// 10. Link shipment.
	spec, err := p.resolveAction(ctx, c, m)
	if err != nil {
		return p.fail(ctx, m, "action_rule", err)
	}
	linkRes, err := p.linker.Link(ctx, c, spec)
	if err != nil {
		return p.fail(ctx, m, "link", err)
	}
	flowPassed := true
	if linkRes.ShipmentID != "" {
		c.ShipmentID = linkRes.ShipmentID
		if err := p.store.SetChronicleShipment(ctx, c.ID, linkRes.ShipmentID, linkRes.LinkedBy); err != nil {
			return p.fail(ctx, m, "link", err)
		}
	}
	if len(linkRes.Flags) > 0 {
		c.ReanalysisFlags = append(c.ReanalysisFlags, linkRes.Flags...)
		flowPassed = false
		if err := p.store.UpdateChronicle(ctx, c); err != nil {
			return p.fail(ctx, m, "link", err)
		}
	}

	// 11. Learning and memory, both non-fatal.
	p.recordEpisode(ctx, c, flowPassed)
	if err := p.memory.Index(ctx, c); err != nil {
		log.Warnw("memory index failed", "chronicle_id", c.ID, "error", err)
	}

	log.Infow("message processed",
		"message_id", m.MessageID, "chronicle_id", c.ID,
		"document_type", c.Analysis.DocumentType, "source", string(c.ConfidenceSource),
		"shipment_id", c.ShipmentID)
	return &types.ProcessResult{
		ChronicleID: c.ID,
		ShipmentID:  linkRes.ShipmentID,
		LinkedBy:    linkRes.LinkedBy,
	}
}

// analyze classifies the message: pattern first, the model ladder when the
// pattern is absent or too weak.
func (p *Processor) analyze(ctx context.Context, m *types.Message, attachmentTexts []string, threadCtx []types.Chronicle, threadPos int) (*types.Chronicle, error) {
	log := logging.L(logging.CategoryProcessor)

	matchRes, err := p.matcher.Match(ctx, m, threadPos)
	if err != nil {
		return nil, err
	}

	c := &types.Chronicle{
		ID:             uuid.NewString(),
		MessageID:      m.MessageID,
		ThreadID:       m.ThreadID,
		Subject:        m.Subject,
		SenderAddress:  m.SenderAddress,
		Direction:      m.Direction,
		ThreadPosition: threadPos,
		OccurredAt:     m.ReceivedAt,
		CreatedAt:      time.Now().UTC(),
	}

	patternOnly := matchRes.Best != nil && !matchRes.RequiresFallback
	if patternOnly || p.ladder == nil {
		if p.metrics != nil {
			p.metrics.PatternMatched.Inc()
		}
		a := patternAnalysis(m, attachmentTexts, matchRes.DocumentType())
		p.normalizer.Apply(a, m.Subject)
		c.Analysis = *a
		c.ConfidenceSource = types.SourcePattern
		if matchRes.Best != nil {
			c.Confidence = float64(matchRes.Best.Confidence)
		}
		if p.metrics != nil {
			p.metrics.Accepted.Inc()
		}
		return c, nil
	}

	if p.metrics != nil {
		p.metrics.AINeeded.Inc()
	}
	aux, err := p.memory.Assemble(ctx, m)
	if err != nil {
		log.Warnw("aux context failed", "message_id", m.MessageID, "error", err)
		aux = ""
	}
	in := &extract.Input{
		Message:         m,
		AttachmentTexts: attachmentTexts,
		ThreadContext:   threadCtx,
		ThreadPosition:  threadPos,
		AuxContext:      aux,
	}

	tier := types.ModelHaiku
	result, err := p.extractTier(ctx, tier, in)
	if err != nil {
		return nil, err
	}

	contentLen := len(m.Body)
	for _, t := range attachmentTexts {
		contentLen += len(t)
	}
	evalIn := &confidence.Input{
		Analysis:       result.Analysis,
		PatternDocType: patternDocType(matchRes),
		SenderDomain:   types.SenderDomain(m.SenderAddress),
		Repairs:        result.Repairs,
		ContentLength:  contentLen,
	}
	eval := p.scorer.Evaluate(ctx, evalIn)

	// Escalation ladder: re-extract with the stronger model and replace
	// the analysis in place. A failed escalation keeps the prior result.
	for {
		target, ok := escalationTarget(eval.Recommendation, tier)
		if !ok {
			break
		}
		reason := strings.Join(eval.Reasons, ",")
		log.Infow("escalating extraction",
			"message_id", m.MessageID, "from", string(tier), "to", string(target),
			"score", eval.Score, "reason", reason)
		if p.metrics != nil {
			switch target {
			case types.ModelSonnet:
				p.metrics.EscalatedSonnet.Inc()
			case types.ModelOpus:
				p.metrics.EscalatedOpus.Inc()
			}
		}
		stronger, err := p.extractTier(ctx, target, in)
		if err != nil {
			log.Warnw("escalation failed, keeping prior analysis",
				"message_id", m.MessageID, "tier", string(target), "error", err)
			break
		}
		tier = target
		result = stronger
		c.EscalationReason = reason
		evalIn.Analysis = result.Analysis
		evalIn.Repairs = result.Repairs
		eval = p.scorer.Evaluate(ctx, evalIn)
	}

	c.Analysis = *result.Analysis
	c.Confidence = float64(eval.Score)
	c.ConfidenceSource = tierSource(tier)
	// A sub-threshold final score is low confidence even when the ladder
	// exhausted below the review band.
	if eval.Recommendation == confidence.FlagReview || eval.Score < confidence.ReviewThreshold {
		c.ReanalysisFlags = append(c.ReanalysisFlags, types.FlagLowConfidence)
		if p.metrics != nil {
			p.metrics.Flagged.Inc()
		}
	} else if p.metrics != nil {
		p.metrics.Accepted.Inc()
	}

	// A strong disagreement between the model and the pattern candidate is
	// a false positive worth counting against the pattern.
	if matchRes.Best != nil && result.Analysis.DocumentType != matchRes.Best.Pattern.DocumentType {
		if err := p.matcher.MarkFalsePositive(ctx, matchRes.Best.Pattern.ID); err != nil {
			log.Warnw("false-positive mark failed",
				"pattern_id", matchRes.Best.Pattern.ID, "error", err)
		}
	}
	return c, nil
}

func (p *Processor) extractTier(ctx context.Context, tier types.ModelTier, in *extract.Input) (*extract.Result, error) {
	client, err := p.ladder.ForTier(tier)
	if err != nil {
		return nil, err
	}
	return p.extractor.Extract(ctx, client, in)
}

// attachmentTexts returns extracted text per attachment, fetching and
// extracting where the ingest source left it empty. Extraction failures
// degrade to skipping the attachment.
func (p *Processor) attachmentTexts(ctx context.Context, m *types.Message) []string {
	log := logging.L(logging.CategoryProcessor)
	var texts []string
	for _, att := range m.Attachments {
		text := att.ExtractedText
		if text == "" && p.pdf != nil && p.mail != nil {
			data, err := p.mail.FetchAttachment(ctx, m.MessageID, att.Filename)
			if err != nil {
				log.Warnw("attachment fetch failed",
					"message_id", m.MessageID, "filename", att.Filename, "error", err)
				continue
			}
			text, err = p.pdf.Extract(ctx, data, att.MimeType)
			if err != nil {
				log.Warnw("attachment extract failed",
					"message_id", m.MessageID, "filename", att.Filename, "error", err)
				continue
			}
		}
		if text == "" {
			continue
		}
		if len(text) > types.MaxAttachmentChars {
			text = text[:types.MaxAttachmentChars]
		}
		texts = append(texts, text)
	}
	return texts
}

func (p *Processor) recordEpisode(ctx context.Context, c *types.Chronicle, flowPassed bool) {
	method := "ai"
	if c.ConfidenceSource == types.SourcePattern {
		method = "pattern"
	}
	ep := &types.LearningEpisode{
		ChronicleID:          c.ID,
		PredictedType:        c.Analysis.DocumentType,
		Confidence:           c.Confidence,
		Method:               method,
		SenderDomain:         types.SenderDomain(c.SenderAddress),
		ThreadPosition:       c.ThreadPosition,
		FlowValidationPassed: flowPassed,
		ReviewReason:         strings.Join(c.ReanalysisFlags, ","),
		CreatedAt:            time.Now().UTC(),
	}
	if err := p.store.RecordLearningEpisode(ctx, ep); err != nil {
		logging.L(logging.CategoryProcessor).Warnw("learning episode failed",
			"chronicle_id", c.ID, "error", err)
	}
}

func (p *Processor) fail(ctx context.Context, m *types.Message, stage string, cause error) *types.ProcessResult {
	logging.L(logging.CategoryProcessor).Errorw("message failed",
		"message_id", m.MessageID, "stage", stage, "error", cause)
	if p.metrics != nil {
		p.metrics.Failed.Inc()
	}
	if err := p.store.RecordError(ctx, &types.ChronicleError{
		MessageID:  m.MessageID,
		Stage:      stage,
		Error:      cause.Error(),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		logging.L(logging.CategoryProcessor).Errorw("error record failed",
			"message_id", m.MessageID, "error", err)
	}
	return &types.ProcessResult{Err: fmt.Sprintf("%s: %v", stage, cause)}
}

// patternAnalysis is the analysis persisted when a pattern match is strong
// enough to skip the model ladder: document type from the pattern, plus the
// identifiers and cutoff dates that hold deterministic shapes in the
// subject, body, and attachment text. Everything else waits for reanalysis.
func patternAnalysis(m *types.Message, attachmentTexts []string, docType string) *types.ExtractedAnalysis {
	a := &types.ExtractedAnalysis{
		TransportMode:    "unknown",
		IdentifierSource: "subject",
		DocumentType:     docType,
		FromParty:        "unknown",
		MessageType:      "unknown",
		Sentiment:        "neutral",
		Summary:          normalize.TruncateSummary(m.Subject, types.MaxSummaryChars),
	}

	text := m.Subject + "\n" + m.Body
	for _, t := range attachmentTexts {
		text += "\n" + t
	}
	upper := strings.ToUpper(text)

	a.ContainerNumbers = normalize.FilterContainerNumbers(
		containerScanRe.FindAllString(upper, -1))
	if mm := bookingScanRe.FindStringSubmatch(upper); mm != nil {
		a.BookingNumber = mm[1]
	}
	// Carrier bill numbers are four letters plus eight or more digits;
	// seven digits is a container. SE-prefixed hits are work orders.
	for _, cand := range mblScanRe.FindAllString(upper, -1) {
		if normalize.IsSEWorkOrder(cand) {
			if a.WorkOrderNumber == "" {
				a.WorkOrderNumber = cand
			}
			continue
		}
		if a.MBLNumber == "" {
			a.MBLNumber = normalize.RepairMBL(cand)
		}
	}
	for field, re := range cutoffScanRes {
		if mm := re.FindStringSubmatch(upper); mm != nil && normalize.ValidDate(mm[1]) {
			*cutoffField(a, field) = mm[1]
		}
	}
	return a
}

// Deterministic shapes scanned on the pattern fast path.
var (
	// containerScanRe finds ISO 6346 container numbers in free text.
	containerScanRe = regexp.MustCompile(`\b[A-Z]{4}\d{7}\b`)
	bookingScanRe   = regexp.MustCompile(`\b(?:BKG|BOOKING)(?:\s*(?:NO|NUMBER|REF))?[.:#\s]*(\d{6,12})\b`)
	mblScanRe       = regexp.MustCompile(`\b[A-Z]{4,6}\d{8,12}\b`)

	cutoffScanRes = map[string]*regexp.Regexp{
		"si_cutoff":    regexp.MustCompile(`\bSI\s*CUT[\s-]?OFF\b[:\s]*(\d{4}-\d{2}-\d{2})`),
		"vgm_cutoff":   regexp.MustCompile(`\bVGM\s*CUT[\s-]?OFF\b[:\s]*(\d{4}-\d{2}-\d{2})`),
		"cargo_cutoff": regexp.MustCompile(`\bCARGO\s*CUT[\s-]?OFF\b[:\s]*(\d{4}-\d{2}-\d{2})`),
		"doc_cutoff":   regexp.MustCompile(`\bDOC(?:UMENT)?\s*CUT[\s-]?OFF\b[:\s]*(\d{4}-\d{2}-\d{2})`),
	}
)

func cutoffField(a *types.ExtractedAnalysis, field string) *string {
	switch field {
	case "si_cutoff":
		return &a.SICutoff
	case "vgm_cutoff":
		return &a.VGMCutoff
	case "cargo_cutoff":
		return &a.CargoCutoff
	}
	return &a.DocCutoff
}

func patternDocType(r *pattern.Result) string {
	if r.Best == nil {
		return ""
	}
	return r.Best.Pattern.DocumentType
}

func escalationTarget(rec confidence.Recommendation, current types.ModelTier) (types.ModelTier, bool) {
	var target types.ModelTier
	switch rec {
	case confidence.EscalateSonnet:
		target = types.ModelSonnet
	case confidence.EscalateOpus:
		target = types.ModelOpus
	default:
		return "", false
	}
	if tierRank(target) <= tierRank(current) {
		return "", false
	}
	return target, true
}

func tierRank(t types.ModelTier) int {
	switch t {
	case types.ModelSonnet:
		return 1
	case types.ModelOpus:
		return 2
	}
	return 0
}

func tierSource(t types.ModelTier) types.ConfidenceSource {
	switch t {
	case types.ModelSonnet:
		return types.SourceSonnet
	case types.ModelOpus:
		return types.SourceOpus
	}
	return types.SourceHaiku
}

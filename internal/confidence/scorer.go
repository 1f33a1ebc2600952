// Package confidence scores an extraction 0-100 and recommends what to do
// with it: accept, flag for review, or escalate to a stronger model.
package confidence

import (
	"context"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"freightflow/internal/logging"
	"freightflow/internal/normalize"
	"freightflow/internal/types"
)

// Recommendation is the scorer's verdict.
type Recommendation string

const (
	Accept         Recommendation = "accept"
	FlagReview     Recommendation = "flag_review"
	EscalateSonnet Recommendation = "escalate_sonnet"
	EscalateOpus   Recommendation = "escalate_opus"
)

// Thresholds per the scoring policy. ReviewThreshold is exported: a final
// score below it marks the chronicle low_confidence however the ladder
// ended.
const (
	acceptThreshold   = 80
	ReviewThreshold   = 60
	sonnetThreshold   = 40
	shortContentChars = 50

	senderCacheSize = 512
	// minEpisodes is the history depth below which sender signals are noise.
	minEpisodes = 5
)

// Input carries everything the scorer looks at for one chronicle.
type Input struct {
	Analysis *types.ExtractedAnalysis
	// PatternDocType is the best pattern candidate's type, "" if none
	// matched.
	PatternDocType string
	SenderDomain   string
	Repairs        int
	// ContentLength is body + extracted attachment text length.
	ContentLength int
}

// Evaluation is the scored outcome.
type Evaluation struct {
	Score          int
	Recommendation Recommendation
	Reasons        []string
}

// ProfileSource is the slice of persistence the scorer needs.
type ProfileSource interface {
	SenderProfile(ctx context.Context, domain string) (*types.SenderProfile, error)
}

// Scorer evaluates extractions. Sender profiles are LRU-cached since a
// batch tends to repeat a handful of domains.
type Scorer struct {
	profiles ProfileSource
	cache    *lru.Cache[string, *types.SenderProfile]
}

// New builds a scorer over the profile source.
func New(profiles ProfileSource) (*Scorer, error) {
	cache, err := lru.New[string, *types.SenderProfile](senderCacheSize)
	if err != nil {
		return nil, err
	}
	return &Scorer{profiles: profiles, cache: cache}, nil
}

// Evaluate scores one extraction and recommends the next step.
func (s *Scorer) Evaluate(ctx context.Context, in *Input) *Evaluation {
	a := in.Analysis

	// Trivial content carries nothing further to extract.
	if in.ContentLength < shortContentChars {
		return &Evaluation{Score: 100, Recommendation: Accept, Reasons: []string{"short_content"}}
	}

	score := 50
	var reasons []string

	// Pattern agreement.
	switch {
	case in.PatternDocType == "":
		// Nothing to corroborate.
	case in.PatternDocType == a.DocumentType:
		score += 15
		reasons = append(reasons, "pattern_agrees")
	default:
		score -= 10
		reasons = append(reasons, "pattern_disagrees")
	}

	// Field coverage expected for this document type.
	expected := expectedFields(a.DocumentType)
	if len(expected) > 0 {
		present := 0
		for _, f := range expected {
			if f(a) {
				present++
			}
		}
		score += present * 20 / len(expected)
		if present < len(expected) {
			reasons = append(reasons, "partial_coverage")
		}
	} else {
		// Non-shipping types have no expected fields; the summary is the
		// whole payload.
		score += 20
	}

	// Structural identifier shapes.
	score += structuralScore(a, &reasons)

	// Sender history.
	if p := s.profile(ctx, in.SenderDomain); p != nil && p.Episodes >= minEpisodes {
		delta := int((p.FlowPassRate - 0.5) * 20)
		score += delta
		if p.TopDocType == a.DocumentType && p.TopDocTypePct >= 0.5 {
			score += 5
			reasons = append(reasons, "sender_typical_doc")
		}
		if delta < 0 {
			reasons = append(reasons, "sender_history_poor")
		}
	}

	// Normalizer repairs.
	penalty := in.Repairs * 3
	if penalty > 15 {
		penalty = 15
	}
	if penalty > 0 {
		score -= penalty
		reasons = append(reasons, "repairs_applied")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	rec := recommend(score)
	// Non-shipping types never escalate: a stronger model has nothing
	// further to extract from correspondence.
	if types.NonShippingDocTypes[a.DocumentType] && (rec == EscalateSonnet || rec == EscalateOpus) {
		rec = FlagReview
		reasons = append(reasons, "non_shipping_no_escalation")
	}

	logging.L(logging.CategoryConfidence).Debugw("scored extraction",
		"document_type", a.DocumentType, "score", score, "recommendation", rec)

	return &Evaluation{Score: score, Recommendation: rec, Reasons: reasons}
}

func recommend(score int) Recommendation {
	switch {
	case score >= acceptThreshold:
		return Accept
	case score >= ReviewThreshold:
		return FlagReview
	case score >= sonnetThreshold:
		return EscalateSonnet
	}
	return EscalateOpus
}

func (s *Scorer) profile(ctx context.Context, domain string) *types.SenderProfile {
	if domain == "" || s.profiles == nil {
		return nil
	}
	if p, ok := s.cache.Get(domain); ok {
		return p
	}
	p, err := s.profiles.SenderProfile(ctx, domain)
	if err != nil {
		logging.L(logging.CategoryConfidence).Warnw("sender profile lookup failed", "domain", domain, "error", err)
		return nil
	}
	s.cache.Add(domain, p)
	return p
}

var (
	bookingShapeRe = regexp.MustCompile(`^\d{6,12}$`)
	mblShapeRe     = regexp.MustCompile(`^[A-Z]{3,4}[A-Z0-9]{6,}$`)
)

// structuralScore rewards identifiers that hold their industry shapes and
// penalizes malformed ones.
func structuralScore(a *types.ExtractedAnalysis, reasons *[]string) int {
	score := 0
	if a.BookingNumber != "" {
		if bookingShapeRe.MatchString(a.BookingNumber) {
			score += 5
		} else {
			score -= 5
			*reasons = append(*reasons, "booking_shape_invalid")
		}
	}
	if a.MBLNumber != "" {
		if mblShapeRe.MatchString(strings.ToUpper(a.MBLNumber)) {
			score += 5
		} else {
			score -= 5
			*reasons = append(*reasons, "mbl_shape_invalid")
		}
	}
	if len(a.ContainerNumbers) > 0 {
		valid := true
		for _, c := range a.ContainerNumbers {
			if !normalize.ContainerNumberRe.MatchString(c) {
				valid = false
				break
			}
		}
		if valid {
			score += 5
		} else {
			score -= 5
			*reasons = append(*reasons, "container_shape_invalid")
		}
	}
	return score
}

// expectedFields is the per-type coverage table: the fields an operator
// would expect a correct extraction of that type to carry.
func expectedFields(docType string) []func(*types.ExtractedAnalysis) bool {
	hasETA := func(a *types.ExtractedAnalysis) bool { return a.ETA != "" || a.ATA != "" }
	hasETD := func(a *types.ExtractedAnalysis) bool { return a.ETD != "" || a.ATD != "" }
	hasPOD := func(a *types.ExtractedAnalysis) bool { return a.PODLocation != "" }
	hasPOL := func(a *types.ExtractedAnalysis) bool { return a.POLLocation != "" }
	hasBooking := func(a *types.ExtractedAnalysis) bool { return a.BookingNumber != "" }
	hasMBL := func(a *types.ExtractedAnalysis) bool { return a.MBLNumber != "" }
	hasAnyID := func(a *types.ExtractedAnalysis) bool { return a.HasIdentifiers() }
	hasVessel := func(a *types.ExtractedAnalysis) bool { return a.VesselName != "" }
	hasCutoff := func(a *types.ExtractedAnalysis) bool {
		return a.SICutoff != "" || a.VGMCutoff != "" || a.CargoCutoff != "" || a.DocCutoff != ""
	}
	hasContainers := func(a *types.ExtractedAnalysis) bool { return len(a.ContainerNumbers) > 0 }
	hasInvoice := func(a *types.ExtractedAnalysis) bool { return a.InvoiceNumber != "" || a.Amount != nil }
	hasDeliveryDate := func(a *types.ExtractedAnalysis) bool {
		return a.DeliveryDate != "" || a.PODDeliveryDate != ""
	}

	switch docType {
	case types.DocBookingConfirmation, types.DocBookingAmendment:
		return []func(*types.ExtractedAnalysis) bool{hasBooking, hasPOL, hasETD}
	case types.DocBookingRequest:
		return []func(*types.ExtractedAnalysis) bool{hasPOL, hasPOD}
	case types.DocArrivalNotice:
		return []func(*types.ExtractedAnalysis) bool{hasETA, hasPOD, hasAnyID}
	case types.DocDraftBL, types.DocFinalBL, types.DocSeaWaybill, types.DocTelexRelease:
		return []func(*types.ExtractedAnalysis) bool{hasMBL, hasPOL, hasPOD}
	case types.DocSIConfirmation, types.DocSISubmission, types.DocVGMConfirmation, types.DocVGMSubmission:
		return []func(*types.ExtractedAnalysis) bool{hasBooking, hasCutoff}
	case types.DocSOBConfirmation:
		return []func(*types.ExtractedAnalysis) bool{hasAnyID, hasVessel, hasETD}
	case types.DocDeliveryOrder, types.DocContainerRelease:
		return []func(*types.ExtractedAnalysis) bool{hasAnyID, hasContainers}
	case types.DocPODProofOfDelivery, types.DocEmptyReturn:
		return []func(*types.ExtractedAnalysis) bool{hasAnyID, hasDeliveryDate}
	case types.DocScheduleUpdate, types.DocDelayNotification, types.DocRolloverNotice:
		return []func(*types.ExtractedAnalysis) bool{hasAnyID, hasETA}
	case types.DocInvoice, types.DocCreditNote, types.DocPaymentConfirmation:
		return []func(*types.ExtractedAnalysis) bool{hasInvoice}
	case types.DocCustomsClearance, types.DocCustomsHold:
		return []func(*types.ExtractedAnalysis) bool{hasAnyID}
	}
	return nil
}

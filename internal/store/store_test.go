package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/internal/types"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleChronicle(messageID, threadID string, at time.Time) *types.Chronicle {
	return &types.Chronicle{
		ID:        "chr-" + messageID,
		MessageID: messageID,
		ThreadID:  threadID,
		Subject:   "Booking confirmation 2038256270",
		Analysis: types.ExtractedAnalysis{
			TransportMode:    "ocean",
			BookingNumber:    "2038256270",
			DocumentType:     types.DocBookingConfirmation,
			FromParty:        "ocean_carrier",
			IdentifierSource: "subject",
			MessageType:      "confirmation",
			Sentiment:        "neutral",
			Summary:          "Booking confirmed.",
		},
		SenderAddress:    "noreply@maersk.com",
		Direction:        types.DirectionInbound,
		ThreadPosition:   1,
		OccurredAt:       at,
		Confidence:       95,
		ConfidenceSource: types.SourcePattern,
		CreatedAt:        at,
	}
}

func TestChronicleRoundtrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	c := sampleChronicle("m1", "t1", at)
	c.ReanalysisFlags = []string{types.FlagUnexpectedFlow}
	require.NoError(t, s.SaveChronicle(ctx, c))

	got, err := s.GetChronicleByMessageID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Analysis, got.Analysis)
	assert.Equal(t, types.SourcePattern, got.ConfidenceSource)
	assert.Equal(t, []string{types.FlagUnexpectedFlow}, got.ReanalysisFlags)
	assert.True(t, got.OccurredAt.Equal(at))

	missing, err := s.GetChronicleByMessageID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateChronicle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	c := sampleChronicle("m1", "t1", at)
	require.NoError(t, s.SaveChronicle(ctx, c))

	c.Analysis.DocumentType = types.DocBookingAmendment
	c.Confidence = 70
	c.ConfidenceSource = types.SourceSonnet
	c.EscalationReason = "low_confidence"
	require.NoError(t, s.UpdateChronicle(ctx, c))

	got, err := s.GetChronicleByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, types.DocBookingAmendment, got.Analysis.DocumentType)
	assert.Equal(t, types.SourceSonnet, got.ConfidenceSource)
	assert.Equal(t, "low_confidence", got.EscalationReason)

	ghost := sampleChronicle("m2", "t1", at)
	assert.Error(t, s.UpdateChronicle(ctx, ghost))
}

func TestThreadChroniclesAndPosition(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		c := sampleChronicle(
			"m"+string(rune('1'+i)), "t1", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.SaveChronicle(ctx, c))
	}

	// Oldest first, capped at the most recent N.
	got, err := s.ThreadChronicles(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].MessageID)
	assert.Equal(t, "m4", got[1].MessageID)

	pos, err := s.ThreadPosition(ctx, "t1", base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, pos, "two earlier chronicles -> position 3")

	pos, err = s.ThreadPosition(ctx, "t-empty", base)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestSetChronicleShipment(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	c := sampleChronicle("m1", "t1", at)
	require.NoError(t, s.SaveChronicle(ctx, c))
	require.NoError(t, s.SetChronicleShipment(ctx, c.ID, "ship-1", types.LinkedByBooking))

	got, err := s.GetChronicleByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "ship-1", got.ShipmentID)
}

func TestErrorCountAndSyncState(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	n, err := s.CountErrors(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordError(ctx, &types.ChronicleError{
			MessageID: "m1", Stage: "extract", Error: "llm timeout", OccurredAt: at,
		}))
	}
	n, err = s.CountErrors(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st := &types.SyncState{
		LastRunAt: at, WindowStart: at.Add(-time.Hour), WindowEnd: at,
		Processed: 10, Succeeded: 9, Failed: 1,
	}
	require.NoError(t, s.RecordSyncState(ctx, st))
	assert.NotZero(t, st.ID)
}

func sampleShipment(id string, at time.Time) *types.Shipment {
	return &types.Shipment{
		ID:               id,
		BookingNumber:    "2038256270",
		MBLNumber:        "MAEU263216729",
		WorkOrderNumber:  "WO-9911",
		ContainerNumbers: []string{"MSKU1234567", "MSKU7654321"},
		Stage:            types.StageBooked,
		StageUpdatedAt:   at,
		ETD:              "2026-02-20",
		VesselName:       "MAERSK DETROIT",
		CreatedAt:        at,
		LastActivityAt:   at,
	}
}

func TestShipmentFinders(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateShipment(ctx, sampleShipment("ship-1", at)))

	byBooking, err := s.FindShipmentByBooking(ctx, "2038256270")
	require.NoError(t, err)
	require.NotNil(t, byBooking)
	assert.Equal(t, "ship-1", byBooking.ID)
	assert.Equal(t, types.StageBooked, byBooking.Stage)
	assert.Equal(t, []string{"MSKU1234567", "MSKU7654321"}, byBooking.ContainerNumbers)

	byMBL, err := s.FindShipmentByMBL(ctx, "MAEU263216729")
	require.NoError(t, err)
	require.NotNil(t, byMBL)

	byWO, err := s.FindShipmentByWorkOrder(ctx, "WO-9911")
	require.NoError(t, err)
	require.NotNil(t, byWO)

	byContainer, err := s.FindShipmentByContainers(ctx, []string{"NOPE0000000", "MSKU7654321"})
	require.NoError(t, err)
	require.NotNil(t, byContainer)
	assert.Equal(t, "ship-1", byContainer.ID)

	none, err := s.FindShipmentByBooking(ctx, "0000000000")
	require.NoError(t, err)
	assert.Nil(t, none)

	none, err = s.FindShipmentByContainers(ctx, []string{"NOPE0000000"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpdateShipmentDoesNotTouchStage(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	sh := sampleShipment("ship-1", at)
	require.NoError(t, s.CreateShipment(ctx, sh))

	sh.ETA = "2026-03-10"
	sh.Stage = types.StageDelivered // ignored by UpdateShipment
	require.NoError(t, s.UpdateShipment(ctx, sh))

	got, err := s.FindShipmentByBooking(ctx, "2038256270")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", got.ETA)
	assert.Equal(t, types.StageBooked, got.Stage)
}

func TestAdvanceStageMonotone(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateShipment(ctx, sampleShipment("ship-1", at)))

	advanced, err := s.AdvanceStage(ctx, "ship-1", types.StageArrived, types.DocArrivalNotice, at)
	require.NoError(t, err)
	assert.True(t, advanced)

	// A late booking confirmation never regresses the stage.
	advanced, err = s.AdvanceStage(ctx, "ship-1", types.StageBooked, types.DocBookingConfirmation, at)
	require.NoError(t, err)
	assert.False(t, advanced)

	got, err := s.FindShipmentByBooking(ctx, "2038256270")
	require.NoError(t, err)
	assert.Equal(t, types.StageArrived, got.Stage)

	_, err = s.AdvanceStage(ctx, "ghost", types.StageArrived, types.DocArrivalNotice, at)
	assert.Error(t, err)
}

func TestActionLifecycle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	deadline := at.Add(48 * time.Hour)

	a := &types.ShipmentAction{
		ShipmentID: "ship-1", ChronicleID: "chr-1",
		Verb: "submit", Description: "Submit VGM before cutoff",
		Owner: "intoglo", Priority: "high", Deadline: &deadline,
		CreatedAt: at,
	}
	require.NoError(t, s.OpenAction(ctx, a))
	require.NotZero(t, a.ID)

	open, err := s.OpenActions(ctx, "ship-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Submit VGM before cutoff", open[0].Description)
	require.NotNil(t, open[0].Deadline)
	assert.True(t, open[0].Deadline.Equal(deadline))

	require.NoError(t, s.CompleteAction(ctx, a.ID, at.Add(time.Hour)))
	open, err = s.OpenActions(ctx, "ship-1")
	require.NoError(t, err)
	assert.Empty(t, open)

	// Completing twice is an error: the row is no longer open.
	assert.Error(t, s.CompleteAction(ctx, a.ID, at))
}

func TestIssueLifecycle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	i := &types.ShipmentIssue{
		ShipmentID: "ship-1", ChronicleID: "chr-1",
		IssueType: "customs", Description: "Held for inspection", CreatedAt: at,
	}
	require.NoError(t, s.OpenIssue(ctx, i))
	require.NotZero(t, i.ID)

	active, err := s.ActiveIssues(ctx, "ship-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "customs", active[0].IssueType)

	require.NoError(t, s.ResolveIssue(ctx, i.ID, at.Add(time.Hour)))
	active, err = s.ActiveIssues(ctx, "ship-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestListShipmentWork(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateShipment(ctx, sampleShipment("ship-1", at)))

	require.NoError(t, s.OpenAction(ctx, &types.ShipmentAction{
		ShipmentID: "ship-1", Description: "Submit SI", Priority: "medium", CreatedAt: at,
	}))
	require.NoError(t, s.OpenIssue(ctx, &types.ShipmentIssue{
		ShipmentID: "ship-1", IssueType: "delay", CreatedAt: at,
	}))

	work, err := s.ListShipmentWork(ctx)
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, "ship-1", work[0].Shipment.ID)
	assert.Len(t, work[0].Actions, 1)
	assert.Len(t, work[0].Issues, 1)
}

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSeedRulesAndListers(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeSeed(t, dir, seedPatterns, `
- id: 1
  pattern_type: subject
  regex: 'booking confirmation'
  flags: i
  document_type: booking_confirmation
  priority: 100
  confidence_base: 95
- id: 2
  pattern_type: sender
  regex: 'noreply@maersk\.com'
  document_type: arrival_notice
  priority: 50
  confidence_base: 80
  requires_attachment: true
`)
	writeSeed(t, dir, seedActionRules, `
- document_type: booking_confirmation
  from_party: ocean_carrier
  is_reply: false
  has_action: true
  verb: submit
  description_template: "Submit SI for booking {booking_number}"
  owner: intoglo
  priority_base: high
  priority_boost_keywords: [urgent, asap]
  deadline_type: cutoff_relative
  cutoff_field: si_cutoff
`)
	writeSeed(t, dir, seedFlowRules, `
- stage: DELIVERED
  document_type: booking_request
  verdict: impossible
- stage: BOOKED
  document_type: arrival_notice
  verdict: unexpected
`)
	writeSeed(t, dir, seedCompletionKeywords, `
- document_type: vgm_confirmation
  keywords: [vgm, verified gross mass]
`)
	writeSeed(t, dir, seedEnumMappings, `
- field: transport_mode
  variant: sea
  canonical: ocean
`)

	require.NoError(t, s.SeedRules(ctx, dir))

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, int64(1), patterns[0].ID, "priority descending")
	assert.Equal(t, types.PatternSubject, patterns[0].PatternType)
	assert.Equal(t, 95.0, patterns[0].ConfidenceBase)
	assert.True(t, patterns[1].RequiresAttachment)

	rules, err := s.ListActionRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"urgent", "asap"}, rules[0].PriorityBoostWords)
	assert.Equal(t, types.DeadlineCutoffRelative, rules[0].DeadlineType)
	assert.Equal(t, "si_cutoff", rules[0].CutoffField)

	flows, err := s.ListFlowRules(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 2)

	keywords, err := s.ListCompletionKeywords(ctx)
	require.NoError(t, err)
	require.Len(t, keywords, 1)
	assert.Equal(t, []string{"vgm", "verified gross mass"}, keywords[0].Keywords)

	mappings, err := s.ListEnumMappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "ocean", mappings[0].Canonical)

	// Re-seeding is idempotent: same rows, no duplicates.
	require.NoError(t, s.SeedRules(ctx, dir))
	patterns, err = s.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
}

func TestIncrementPatternHit(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeSeed(t, dir, seedPatterns, `
- id: 7
  pattern_type: subject
  regex: 'arrival notice'
  document_type: arrival_notice
  priority: 10
  confidence_base: 90
`)
	require.NoError(t, s.SeedRules(ctx, dir))

	require.NoError(t, s.IncrementPatternHit(ctx, 7, false))
	require.NoError(t, s.IncrementPatternHit(ctx, 7, true))

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, int64(2), patterns[0].HitCount)
	assert.Equal(t, int64(1), patterns[0].FalsePositiveCount)

	assert.Error(t, s.IncrementPatternHit(ctx, 99, false))
}

func TestSenderProfileAggregation(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	episodes := []struct {
		docType string
		passed  bool
	}{
		{types.DocArrivalNotice, true},
		{types.DocArrivalNotice, true},
		{types.DocArrivalNotice, false},
		{types.DocBookingConfirmation, true},
	}
	for i, ep := range episodes {
		require.NoError(t, s.RecordLearningEpisode(ctx, &types.LearningEpisode{
			ChronicleID: "chr", PredictedType: ep.docType, Method: "pattern",
			SenderDomain: "maersk.com", ThreadPosition: i + 1,
			FlowValidationPassed: ep.passed, CreatedAt: at,
		}))
	}

	p, err := s.SenderProfile(ctx, "maersk.com")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.Episodes)
	assert.InDelta(t, 0.75, p.FlowPassRate, 0.001)
	assert.Equal(t, types.DocArrivalNotice, p.TopDocType)
	assert.InDelta(t, 0.75, p.TopDocTypePct, 0.001)

	none, err := s.SenderProfile(ctx, "unknown.biz")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEmbeddingSimilarity(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveChronicle(ctx, sampleChronicle("m-"+id, "t-"+id, at)))
	}
	require.NoError(t, s.SaveEmbedding(ctx, "chr-m-a", []float32{1, 0, 0}))
	require.NoError(t, s.SaveEmbedding(ctx, "chr-m-b", []float32{0.9, 0.1, 0}))
	require.NoError(t, s.SaveEmbedding(ctx, "chr-m-c", []float32{0, 0, 1}))

	hits, err := s.SimilarChronicles(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "chr-m-a", hits[0].Chronicle.ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 0.001)
	assert.Equal(t, "chr-m-b", hits[1].Chronicle.ID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)

	// Upsert replaces, never duplicates.
	require.NoError(t, s.SaveEmbedding(ctx, "chr-m-c", []float32{1, 0, 0}))
	hits, err = s.SimilarChronicles(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestListChroniclesWindow(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		c := sampleChronicle("w"+string(rune('1'+i)), "tw", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.SaveChronicle(ctx, c))
	}

	got, err := s.ListChronicles(ctx, base, base.Add(2*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, got, 2, "window is [after, before)")
	assert.Equal(t, "w1", got[0].MessageID)
	assert.Equal(t, "w2", got[1].MessageID)
}

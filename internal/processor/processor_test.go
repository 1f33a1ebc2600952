package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/internal/confidence"
	"freightflow/internal/extract"
	"freightflow/internal/llm"
	"freightflow/internal/normalize"
	"freightflow/internal/pattern"
	"freightflow/internal/rules"
	"freightflow/internal/shipment"
	"freightflow/internal/types"
)

// fakeStore is an in-memory types.Store for pipeline tests.
type fakeStore struct {
	mu         sync.Mutex
	chronicles map[string]*types.Chronicle // by message ID
	errCounts  map[string]int
	shipments  map[string]*types.Shipment
	actions    []*types.ShipmentAction
	issues     []*types.ShipmentIssue
	patterns   []types.Pattern
	actRules   []types.ActionRule
	flowRules  []types.FlowRule
	keywords   []types.CompletionKeywords
	episodes   []*types.LearningEpisode
	syncStates []*types.SyncState
	patternFPs map[int64]int
	nextID     int64
}

func newStore() *fakeStore {
	return &fakeStore{
		chronicles: map[string]*types.Chronicle{},
		errCounts:  map[string]int{},
		shipments:  map[string]*types.Shipment{},
		patternFPs: map[int64]int{},
	}
}

func (f *fakeStore) GetChronicleByMessageID(_ context.Context, id string) (*types.Chronicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.chronicles[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) SaveChronicle(_ context.Context, c *types.Chronicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.chronicles[c.MessageID] = &cp
	return nil
}

func (f *fakeStore) UpdateChronicle(_ context.Context, c *types.Chronicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.chronicles[c.MessageID] = &cp
	return nil
}

func (f *fakeStore) ThreadChronicles(_ context.Context, threadID string, limit int) ([]types.Chronicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Chronicle
	for _, c := range f.chronicles {
		if c.ThreadID == threadID && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) ThreadPosition(_ context.Context, threadID string, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 1
	for _, c := range f.chronicles {
		if c.ThreadID == threadID && c.OccurredAt.Before(at) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SetChronicleShipment(_ context.Context, chronicleID, shipmentID string, _ types.LinkedBy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chronicles {
		if c.ID == chronicleID {
			c.ShipmentID = shipmentID
			return nil
		}
	}
	return fmt.Errorf("chronicle %s not found", chronicleID)
}

func (f *fakeStore) ListChronicles(_ context.Context, after, before time.Time, max int) ([]types.Chronicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Chronicle
	for _, c := range f.chronicles {
		if !c.OccurredAt.Before(after) && c.OccurredAt.Before(before) && len(out) < max {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) CountErrors(_ context.Context, messageID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errCounts[messageID], nil
}

func (f *fakeStore) RecordError(_ context.Context, e *types.ChronicleError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errCounts[e.MessageID]++
	return nil
}

func (f *fakeStore) findShipment(pred func(*types.Shipment) bool) *types.Shipment {
	for _, s := range f.shipments {
		if pred(s) {
			cp := *s
			return &cp
		}
	}
	return nil
}

func (f *fakeStore) FindShipmentByBooking(_ context.Context, n string) (*types.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findShipment(func(s *types.Shipment) bool { return n != "" && s.BookingNumber == n }), nil
}

func (f *fakeStore) FindShipmentByMBL(_ context.Context, n string) (*types.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findShipment(func(s *types.Shipment) bool { return n != "" && s.MBLNumber == n }), nil
}

func (f *fakeStore) FindShipmentByWorkOrder(_ context.Context, n string) (*types.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findShipment(func(s *types.Shipment) bool { return n != "" && s.WorkOrderNumber == n }), nil
}

func (f *fakeStore) FindShipmentByContainers(_ context.Context, nums []string) (*types.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findShipment(func(s *types.Shipment) bool {
		for _, a := range s.ContainerNumbers {
			for _, b := range nums {
				if a == b {
					return true
				}
			}
		}
		return false
	}), nil
}

func (f *fakeStore) CreateShipment(_ context.Context, s *types.Shipment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.shipments[s.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateShipment(_ context.Context, s *types.Shipment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shipments[s.ID]; !ok {
		return fmt.Errorf("shipment %s not found", s.ID)
	}
	cp := *s
	f.shipments[s.ID] = &cp
	return nil
}

func (f *fakeStore) AdvanceStage(_ context.Context, shipmentID string, to types.Stage, _ string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[shipmentID]
	if !ok {
		return false, fmt.Errorf("shipment %s not found", shipmentID)
	}
	if to <= s.Stage {
		return false, nil
	}
	s.Stage = to
	s.StageUpdatedAt = at
	return true, nil
}

func (f *fakeStore) ListShipmentWork(_ context.Context) ([]types.ShipmentWork, error) {
	return nil, nil
}

func (f *fakeStore) OpenAction(_ context.Context, a *types.ShipmentAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	a.Status = types.ActionOpen
	cp := *a
	f.actions = append(f.actions, &cp)
	return nil
}

func (f *fakeStore) OpenActions(_ context.Context, shipmentID string) ([]types.ShipmentAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ShipmentAction
	for _, a := range f.actions {
		if a.ShipmentID == shipmentID && a.Status == types.ActionOpen {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) CompleteAction(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actions {
		if a.ID == id {
			a.Status = types.ActionCompleted
			a.CompletedAt = &at
			return nil
		}
	}
	return fmt.Errorf("action %d not found", id)
}

func (f *fakeStore) OpenIssue(_ context.Context, i *types.ShipmentIssue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	i.ID = f.nextID
	i.Status = types.IssueActive
	cp := *i
	f.issues = append(f.issues, &cp)
	return nil
}

func (f *fakeStore) ActiveIssues(_ context.Context, shipmentID string) ([]types.ShipmentIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ShipmentIssue
	for _, i := range f.issues {
		if i.ShipmentID == shipmentID && i.Status == types.IssueActive {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveIssue(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.issues {
		if i.ID == id {
			i.Status = types.IssueResolved
			i.ResolvedAt = &at
			return nil
		}
	}
	return fmt.Errorf("issue %d not found", id)
}

func (f *fakeStore) ListPatterns(_ context.Context) ([]types.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patterns, nil
}

func (f *fakeStore) IncrementPatternHit(_ context.Context, id int64, falsePositive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if falsePositive {
		f.patternFPs[id]++
	}
	return nil
}

func (f *fakeStore) ListActionRules(_ context.Context) ([]types.ActionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actRules, nil
}

func (f *fakeStore) ListFlowRules(_ context.Context) ([]types.FlowRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flowRules, nil
}

func (f *fakeStore) ListCompletionKeywords(_ context.Context) ([]types.CompletionKeywords, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keywords, nil
}

func (f *fakeStore) ListEnumMappings(_ context.Context) ([]types.EnumMapping, error) {
	return nil, nil
}

func (f *fakeStore) RecordLearningEpisode(_ context.Context, ep *types.LearningEpisode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ep
	f.episodes = append(f.episodes, &cp)
	return nil
}

func (f *fakeStore) SenderProfile(_ context.Context, _ string) (*types.SenderProfile, error) {
	return nil, nil
}

func (f *fakeStore) SaveEmbedding(_ context.Context, _ string, _ []float32) error { return nil }

func (f *fakeStore) SimilarChronicles(_ context.Context, _ []float32, _ int) ([]types.SimilarChronicle, error) {
	return nil, nil
}

func (f *fakeStore) RecordSyncState(_ context.Context, s *types.SyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.syncStates = append(f.syncStates, &cp)
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeLLM returns queued tool responses.
type fakeLLM struct {
	mu        sync.Mutex
	model     string
	responses []map[string]any
	err       error
	calls     int
}

func (f *fakeLLM) Complete(_ context.Context, _ string) (string, error) { return "", f.err }
func (f *fakeLLM) CompleteWithSystem(_ context.Context, _, _ string) (string, error) {
	return "", f.err
}
func (f *fakeLLM) GetModel() string { return f.model }

func (f *fakeLLM) CompleteWithTools(_ context.Context, _, _ string, _ []types.ToolDefinition) (*types.LLMToolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	input := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &types.LLMToolResponse{
		ToolCalls: []types.ToolCall{{ID: "t1", Name: extract.ToolName, Input: input}},
	}, nil
}

func richArrivalInput() map[string]any {
	return map[string]any{
		"transport_mode":    "ocean",
		"identifier_source": "body",
		"document_type":     types.DocArrivalNotice,
		"from_party":        "ocean_carrier",
		"mbl_number":        "MAEU263216729",
		"eta":               "2026-02-15",
		"pod_location":      "USNYC",
		"message_type":      "notification",
		"sentiment":         "neutral",
		"summary":           "Arrival notice for MBL MAEU263216729.",
		"has_action":        false,
		"has_issue":         false,
	}
}

func bareArrivalInput() map[string]any {
	return map[string]any{
		"transport_mode":    "ocean",
		"identifier_source": "body",
		"document_type":     types.DocArrivalNotice,
		"from_party":        "ocean_carrier",
		"message_type":      "notification",
		"sentiment":         "neutral",
		"summary":           "Arrival notice, details unclear.",
		"has_action":        false,
		"has_issue":         false,
	}
}

type deps struct {
	store   *fakeStore
	matcher *pattern.Matcher
	haiku   *fakeLLM
	sonnet  *fakeLLM
	opus    *fakeLLM
	proc    *Processor
}

func buildProcessor(t *testing.T, store *fakeStore) *deps {
	t.Helper()
	norm := normalize.New(nil)
	scorer, err := confidence.New(store)
	require.NoError(t, err)

	d := &deps{
		store:  store,
		haiku:  &fakeLLM{model: "haiku-test", responses: []map[string]any{richArrivalInput()}},
		sonnet: &fakeLLM{model: "sonnet-test", responses: []map[string]any{richArrivalInput()}},
		opus:   &fakeLLM{model: "opus-test", responses: []map[string]any{richArrivalInput()}},
	}
	ladder := llm.NewLadderWithClients(map[types.ModelTier]types.LLMClient{
		types.ModelHaiku:  d.haiku,
		types.ModelSonnet: d.sonnet,
		types.ModelOpus:   d.opus,
	})
	provider := rules.New(store, time.Minute)
	d.matcher = pattern.NewMatcher(store, time.Minute)
	t.Cleanup(d.matcher.Drain)
	d.proc = New(Deps{
		Store:      store,
		Matcher:    d.matcher,
		Rules:      provider,
		Normalizer: norm,
		Extractor:  extract.New(norm, 2024, 2028),
		Ladder:     ladder,
		Scorer:     scorer,
		Linker:     shipment.New(store, provider),
		Metrics:    NewMetrics(prometheus.NewRegistry()),
		RetryCap:   3,
	})
	return d
}

func inboundMessage(id string) types.Message {
	return types.Message{
		MessageID:     id,
		ThreadID:      "thread-" + id,
		Subject:       "Arrival notice MAEU263216729",
		Body:          "Vessel MAERSK DETROIT has arrived at the port of discharge. Container MSKU1234567 ready for pickup.",
		SenderAddress: "noreply@maersk.com",
		ReceivedAt:    time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		Direction:     types.DirectionInbound,
	}
}

func TestProcess_AIPath(t *testing.T) {
	store := newStore()
	d := buildProcessor(t, store)
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	require.Empty(t, res.Err)
	require.NotEmpty(t, res.ChronicleID)
	assert.False(t, res.Skipped)
	assert.False(t, res.Duplicate)

	c := store.chronicles["m1"]
	require.NotNil(t, c)
	assert.Equal(t, types.DocArrivalNotice, c.Analysis.DocumentType)
	assert.Equal(t, types.SourceHaiku, c.ConfidenceSource)
	assert.Equal(t, 1, d.haiku.calls)
	assert.Zero(t, d.sonnet.calls)

	// MBL present, so a shipment was created and linked.
	require.NotEmpty(t, res.ShipmentID)
	assert.Equal(t, types.LinkedByCreated, res.LinkedBy)
	assert.Equal(t, res.ShipmentID, c.ShipmentID)

	require.Len(t, store.episodes, 1)
	assert.Equal(t, "ai", store.episodes[0].Method)
	assert.Equal(t, "maersk.com", store.episodes[0].SenderDomain)
}

func TestProcess_PatternFastPath(t *testing.T) {
	store := newStore()
	store.patterns = []types.Pattern{{
		ID: 1, PatternType: types.PatternSubject, Regex: "arrival notice", Flags: "i",
		DocumentType: types.DocArrivalNotice, Priority: 100, ConfidenceBase: 95,
	}}
	d := buildProcessor(t, store)
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	require.Empty(t, res.Err)

	c := store.chronicles["m1"]
	require.NotNil(t, c)
	assert.Equal(t, types.SourcePattern, c.ConfidenceSource)
	assert.Equal(t, 95.0, c.Confidence)
	assert.Zero(t, d.haiku.calls, "pattern path skips the ladder")
	assert.Equal(t, []string{"MSKU1234567"}, c.Analysis.ContainerNumbers)
	require.Len(t, store.episodes, 1)
	assert.Equal(t, "pattern", store.episodes[0].Method)
}

func TestProcess_PatternFastPathExtractsIdentifiers(t *testing.T) {
	store := newStore()
	store.patterns = []types.Pattern{{
		ID: 1, PatternType: types.PatternSubject, Regex: "confirmed", Flags: "i",
		DocumentType: types.DocBookingConfirmation, Priority: 100, ConfidenceBase: 95,
	}}
	d := buildProcessor(t, store)
	m := types.Message{
		MessageID:     "m1",
		ThreadID:      "thread-m1",
		Subject:       "BKG 2038256270 confirmed",
		SenderAddress: "noreply@maersk.com",
		ReceivedAt:    time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		Direction:     types.DirectionInbound,
		Attachments: []types.Attachment{{
			Filename: "booking.pdf", MimeType: "application/pdf",
			ExtractedText: "VGM CUTOFF 2026-01-15",
		}},
	}

	res := d.proc.Process(context.Background(), &m)
	require.Empty(t, res.Err)

	c := store.chronicles["m1"]
	require.NotNil(t, c)
	assert.Equal(t, types.SourcePattern, c.ConfidenceSource)
	assert.Zero(t, d.haiku.calls)
	assert.Equal(t, "2038256270", c.Analysis.BookingNumber, "booking number lifted from the subject")
	assert.Equal(t, "2026-01-15", c.Analysis.VGMCutoff, "cutoff lifted from the attachment text")

	// The scanned identifiers are enough to open a shipment without the
	// ladder ever running.
	require.NotEmpty(t, res.ShipmentID)
	assert.Equal(t, types.LinkedByCreated, res.LinkedBy)
	s := store.shipments[res.ShipmentID]
	require.NotNil(t, s)
	assert.Equal(t, types.StageBooked, s.Stage)
	assert.Equal(t, "2038256270", s.BookingNumber)
	assert.Equal(t, "2026-01-15", s.VGMCutoff)
	assert.Empty(t, store.actions)
}

func TestProcess_LadderExhaustsBelowReviewBand(t *testing.T) {
	store := newStore()
	d := buildProcessor(t, store)
	// Both tiers return the same thin extraction: the ladder ends at sonnet
	// with a score under the review band.
	d.haiku.responses = []map[string]any{bareArrivalInput()}
	d.sonnet.responses = []map[string]any{bareArrivalInput()}
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	require.Empty(t, res.Err)

	c := store.chronicles["m1"]
	require.NotNil(t, c)
	assert.Equal(t, types.SourceSonnet, c.ConfidenceSource)
	assert.Equal(t, 50.0, c.Confidence)
	assert.Equal(t, 1, d.haiku.calls)
	assert.Equal(t, 1, d.sonnet.calls)
	assert.Zero(t, d.opus.calls)
	assert.Contains(t, c.ReanalysisFlags, types.FlagLowConfidence,
		"a sub-threshold final score is low confidence even without a flag_review verdict")
	assert.Equal(t, float64(1), testutil.ToFloat64(d.proc.metrics.Flagged))
	assert.Zero(t, testutil.ToFloat64(d.proc.metrics.Accepted))
}

func TestProcess_WeakPatternOverturnedMarksFalsePositive(t *testing.T) {
	store := newStore()
	store.patterns = []types.Pattern{{
		ID: 7, PatternType: types.PatternSubject, Regex: "arrival notice", Flags: "i",
		DocumentType: types.DocBookingConfirmation, Priority: 100, ConfidenceBase: 70,
	}}
	d := buildProcessor(t, store)
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	require.Empty(t, res.Err)

	c := store.chronicles["m1"]
	require.NotNil(t, c)
	assert.Equal(t, types.DocArrivalNotice, c.Analysis.DocumentType, "the model verdict wins")
	assert.Equal(t, 1, d.haiku.calls, "a weak pattern still runs the ladder")

	d.matcher.Drain()
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.patternFPs[7], "overturned pattern counted as a false positive")
}

func TestProcess_Duplicate(t *testing.T) {
	store := newStore()
	d := buildProcessor(t, store)
	m := inboundMessage("m1")

	first := d.proc.Process(context.Background(), &m)
	require.Empty(t, first.Err)
	second := d.proc.Process(context.Background(), &m)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ChronicleID, second.ChronicleID)
	assert.Equal(t, 1, d.haiku.calls)
}

func TestProcess_RetryCap(t *testing.T) {
	store := newStore()
	store.errCounts["m1"] = 3
	d := buildProcessor(t, store)
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	assert.True(t, res.Skipped)
	assert.Zero(t, d.haiku.calls)
}

func TestProcess_ExtractionFailureRecorded(t *testing.T) {
	store := newStore()
	d := buildProcessor(t, store)
	d.haiku.err = errors.New("rate limited")
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	assert.Contains(t, res.Err, "extract")
	assert.Equal(t, 1, store.errCounts["m1"])
	assert.Nil(t, store.chronicles["m1"])
}

func TestProcess_EscalatesOnThinExtraction(t *testing.T) {
	store := newStore()
	d := buildProcessor(t, store)
	// Haiku yields an arrival notice with no expected fields (score 50,
	// escalate to sonnet); sonnet yields the full extraction.
	d.haiku.responses = []map[string]any{bareArrivalInput()}
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	require.Empty(t, res.Err)

	c := store.chronicles["m1"]
	require.NotNil(t, c)
	assert.Equal(t, types.SourceSonnet, c.ConfidenceSource)
	assert.Equal(t, 1, d.haiku.calls)
	assert.Equal(t, 1, d.sonnet.calls)
	assert.Zero(t, d.opus.calls)
	assert.Contains(t, c.EscalationReason, "partial_coverage")
	assert.Equal(t, "MAEU263216729", c.Analysis.MBLNumber, "escalated analysis replaces the prior one")
	assert.Equal(t, float64(1), testutil.ToFloat64(d.proc.metrics.EscalatedSonnet))
}

func TestProcess_LinksExistingShipment(t *testing.T) {
	store := newStore()
	store.shipments["ship-1"] = &types.Shipment{
		ID: "ship-1", MBLNumber: "MAEU263216729", Stage: types.StageDeparted,
		LastActivityAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	d := buildProcessor(t, store)
	m := inboundMessage("m1")

	res := d.proc.Process(context.Background(), &m)
	require.Empty(t, res.Err)
	assert.Equal(t, "ship-1", res.ShipmentID)
	assert.Equal(t, types.LinkedByMBL, res.LinkedBy)
	assert.Equal(t, types.StageArrived, store.shipments["ship-1"].Stage)
}

package pattern

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/internal/types"
)

type fakeStore struct {
	mu       sync.Mutex
	patterns []types.Pattern
	listErr  error
	lists    int
	hits     map[int64]int
}

func (f *fakeStore) ListPatterns(context.Context) ([]types.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.patterns, f.listErr
}

func (f *fakeStore) IncrementPatternHit(_ context.Context, id int64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hits == nil {
		f.hits = make(map[int64]int)
	}
	f.hits[id]++
	return nil
}

func (f *fakeStore) hitCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[id]
}

func (f *fakeStore) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func bookingPattern() types.Pattern {
	return types.Pattern{
		ID:             1,
		PatternType:    types.PatternSubject,
		Regex:          `booking\s+confirm`,
		Flags:          "i",
		DocumentType:   types.DocBookingConfirmation,
		Priority:       10,
		ConfidenceBase: 95,
	}
}

func TestMatch_SubjectPattern(t *testing.T) {
	store := &fakeStore{patterns: []types.Pattern{bookingPattern()}}
	m := NewMatcher(store, time.Minute)

	msg := &types.Message{Subject: "Booking Confirmation - BKG 2038256270"}
	res, err := m.Match(context.Background(), msg, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.Equal(t, types.DocBookingConfirmation, res.DocumentType())
	assert.Equal(t, 95, res.Best.Confidence)
	assert.False(t, res.RequiresFallback)
}

func TestMatch_NoMatchRequiresFallback(t *testing.T) {
	store := &fakeStore{patterns: []types.Pattern{bookingPattern()}}
	m := NewMatcher(store, time.Minute)

	res, err := m.Match(context.Background(), &types.Message{Subject: "lunch?"}, 1)
	require.NoError(t, err)
	assert.Nil(t, res.Best)
	assert.True(t, res.RequiresFallback)
	assert.Equal(t, types.DocUnknown, res.DocumentType())
}

func TestMatch_ThreadDepthDecaysSubjectConfidence(t *testing.T) {
	store := &fakeStore{patterns: []types.Pattern{bookingPattern()}}
	m := NewMatcher(store, time.Minute)
	msg := &types.Message{Subject: "RE: Booking Confirmation - BKG 2038256270"}

	tests := []struct {
		pos  int
		want int
	}{
		{1, 95},
		{2, 85}, // 95 * 90%
		{3, 76}, // 95 * 80%
		{7, 47}, // decay floor 50%
		{12, 47},
	}
	for _, tt := range tests {
		res, err := m.Match(context.Background(), msg, tt.pos)
		require.NoError(t, err)
		require.NotNil(t, res.Best, "pos %d", tt.pos)
		assert.Equal(t, tt.want, res.Best.Confidence, "pos %d", tt.pos)
	}
}

func TestMatch_DecayedMatchFallsBack(t *testing.T) {
	store := &fakeStore{patterns: []types.Pattern{bookingPattern()}}
	m := NewMatcher(store, time.Minute)
	msg := &types.Message{Subject: "RE: Booking Confirmation"}

	res, err := m.Match(context.Background(), msg, 3)
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.True(t, res.RequiresFallback, "76 < %d must escalate", ReplyFallbackThreshold)
}

func TestMatch_AttachmentPredicateAndBonus(t *testing.T) {
	p := bookingPattern()
	p.ID = 2
	p.Regex = `draft\s+bl`
	p.DocumentType = types.DocDraftBL
	p.RequiresAttachment = true
	p.ConfidenceBase = 90
	store := &fakeStore{patterns: []types.Pattern{p}}
	m := NewMatcher(store, time.Minute)

	bare := &types.Message{Subject: "Draft BL for review"}
	res, err := m.Match(context.Background(), bare, 1)
	require.NoError(t, err)
	assert.Nil(t, res.Best, "attachment requirement not met")

	withPdf := &types.Message{
		Subject:     "Draft BL for review",
		Attachments: []types.Attachment{{Filename: "draft.pdf", MimeType: "application/pdf"}},
	}
	res, err = m.Match(context.Background(), withPdf, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.Equal(t, 95, res.Best.Confidence, "base 90 + attachment bonus")
}

func TestMatch_ThreadPositionWindow(t *testing.T) {
	p := bookingPattern()
	p.MaxThreadPosition = 1
	store := &fakeStore{patterns: []types.Pattern{p}}
	m := NewMatcher(store, time.Minute)
	msg := &types.Message{Subject: "Booking Confirmation"}

	res, err := m.Match(context.Background(), msg, 2)
	require.NoError(t, err)
	assert.Nil(t, res.Best)
}

func TestMatch_RankingPriorityThenConfidence(t *testing.T) {
	low := bookingPattern()
	low.ID = 2
	low.Priority = 1
	low.ConfidenceBase = 99
	high := bookingPattern()
	high.ID = 3
	high.Priority = 10
	high.ConfidenceBase = 90
	high.DocumentType = types.DocSIConfirmation
	store := &fakeStore{patterns: []types.Pattern{low, high}}
	m := NewMatcher(store, time.Minute)

	res, err := m.Match(context.Background(), &types.Message{Subject: "booking confirmed"}, 1)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, int64(3), res.Best.Pattern.ID)
}

func TestSnapshot_DropsBadRegex(t *testing.T) {
	bad := bookingPattern()
	bad.ID = 9
	bad.Regex = `([unclosed`
	store := &fakeStore{patterns: []types.Pattern{bad, bookingPattern()}}
	m := NewMatcher(store, time.Minute)

	res, err := m.Match(context.Background(), &types.Message{Subject: "booking confirmed"}, 1)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, int64(1), res.Best.Pattern.ID)
}

func TestSnapshot_CachedUntilReload(t *testing.T) {
	store := &fakeStore{patterns: []types.Pattern{bookingPattern()}}
	m := NewMatcher(store, time.Hour)
	msg := &types.Message{Subject: "booking confirmed"}

	for i := 0; i < 3; i++ {
		_, err := m.Match(context.Background(), msg, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.listCount())

	m.Reload()
	_, err := m.Match(context.Background(), msg, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCount())
}

func TestMatch_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db locked")}
	m := NewMatcher(store, time.Minute)

	_, err := m.Match(context.Background(), &types.Message{Subject: "x"}, 1)
	assert.Error(t, err)
}

func TestMatch_RecordsHits(t *testing.T) {
	store := &fakeStore{patterns: []types.Pattern{bookingPattern()}}
	m := NewMatcher(store, time.Minute)

	_, err := m.Match(context.Background(), &types.Message{Subject: "booking confirmed"}, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.hitCount(1) == 1
	}, time.Second, 10*time.Millisecond)
}

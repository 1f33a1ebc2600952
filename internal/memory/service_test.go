package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/internal/types"
)

type fakeEmbedder struct {
	docCalls   []string
	queryCalls []string
	err        error
}

func (f *fakeEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	f.docCalls = append(f.docCalls, text)
	return []float32{1, 0}, f.err
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queryCalls = append(f.queryCalls, text)
	return []float32{1, 0}, f.err
}

type fakeStore struct {
	saved    map[string][]float32
	similar  []types.SimilarChronicle
	profiles map[string]*types.SenderProfile
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string][]float32{}, profiles: map[string]*types.SenderProfile{}}
}

func (f *fakeStore) SaveEmbedding(_ context.Context, id string, v []float32) error {
	f.saved[id] = v
	return nil
}

func (f *fakeStore) SimilarChronicles(_ context.Context, _ []float32, _ int) ([]types.SimilarChronicle, error) {
	return f.similar, nil
}

func (f *fakeStore) SenderProfile(_ context.Context, domain string) (*types.SenderProfile, error) {
	return f.profiles[domain], nil
}

func TestIndex(t *testing.T) {
	emb := &fakeEmbedder{}
	st := newFakeStore()
	svc := New(emb, st)

	c := &types.Chronicle{
		ID: "chr-1",
		Analysis: types.ExtractedAnalysis{
			DocumentType:  types.DocArrivalNotice,
			FromParty:     "ocean_carrier",
			BookingNumber: "2038256270",
			Summary:       "Vessel arrived at POD.",
		},
	}
	require.NoError(t, svc.Index(context.Background(), c))

	require.Len(t, emb.docCalls, 1)
	assert.Contains(t, emb.docCalls[0], "arrival_notice")
	assert.Contains(t, emb.docCalls[0], "booking 2038256270")
	assert.Contains(t, emb.docCalls[0], "Vessel arrived at POD.")
	assert.Contains(t, st.saved, "chr-1")
}

func TestIndex_EmbedderError(t *testing.T) {
	svc := New(&fakeEmbedder{err: errors.New("quota")}, newFakeStore())
	err := svc.Index(context.Background(), &types.Chronicle{ID: "chr-1"})
	assert.Error(t, err)
}

func TestAssemble_SenderAndSimilar(t *testing.T) {
	emb := &fakeEmbedder{}
	st := newFakeStore()
	st.profiles["maersk.com"] = &types.SenderProfile{
		Domain: "maersk.com", Episodes: 40, FlowPassRate: 0.95,
		TopDocType: types.DocArrivalNotice, TopDocTypePct: 0.7,
	}
	st.similar = []types.SimilarChronicle{
		{Chronicle: types.Chronicle{Analysis: types.ExtractedAnalysis{
			DocumentType: types.DocArrivalNotice, FromParty: "ocean_carrier",
			Summary: "Arrival at Nhava Sheva.",
		}}, Similarity: 0.92},
	}
	svc := New(emb, st)

	out, err := svc.Assemble(context.Background(), &types.Message{
		Subject:       "Arrival notice",
		Body:          "Vessel MAERSK DETROIT arriving",
		SenderAddress: "noreply@maersk.com",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "40 prior messages from maersk.com")
	assert.Contains(t, out, "arrival_notice")
	assert.Contains(t, out, "Arrival at Nhava Sheva.")
	require.Len(t, emb.queryCalls, 1)
	assert.Contains(t, emb.queryCalls[0], "Arrival notice")
}

func TestAssemble_ThinHistoryOmitted(t *testing.T) {
	st := newFakeStore()
	st.profiles["new.com"] = &types.SenderProfile{Domain: "new.com", Episodes: 2}
	svc := New(&fakeEmbedder{}, st)

	out, err := svc.Assemble(context.Background(), &types.Message{
		SenderAddress: "ops@new.com", Subject: "Hello",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "new.com")
}

func TestAssemble_NothingKnown(t *testing.T) {
	svc := New(&fakeEmbedder{}, newFakeStore())
	out, err := svc.Assemble(context.Background(), &types.Message{
		SenderAddress: "a@b.com", Subject: "Hi",
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNilServiceIsInert(t *testing.T) {
	var svc *Service
	assert.NoError(t, svc.Index(context.Background(), &types.Chronicle{}))
	out, err := svc.Assemble(context.Background(), &types.Message{})
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestSenderDomain(t *testing.T) {
	assert.Equal(t, "maersk.com", types.SenderDomain("Noreply@Maersk.com"))
	assert.Equal(t, "", types.SenderDomain("not-an-address"))
	assert.Equal(t, "", types.SenderDomain("trailing@"))
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/internal/attention"
	"freightflow/internal/types"
)

type fakeLister struct {
	work []types.ShipmentWork
	err  error
}

func (f *fakeLister) ListShipmentWork(context.Context) ([]types.ShipmentWork, error) {
	return f.work, f.err
}

func newServer(t *testing.T, lister *fakeLister, opts Options) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := New(opts, lister, attention.New(attention.DefaultWeights()), reg)
	s.now = func() time.Time {
		return time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC)
	}
	return s
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	s := newServer(t, &fakeLister{}, Options{APIKey: "secret"})
	rec := get(s.Handler(), "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		header map[string]string
		want   int
	}{
		{"missing credential", Options{APIKey: "secret"}, nil, http.StatusUnauthorized},
		{"wrong key", Options{APIKey: "secret"}, map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key header", Options{APIKey: "secret"}, map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer token", Options{APIKey: "secret"}, map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"no key configured locks out", Options{}, map[string]string{"X-API-Key": ""}, http.StatusUnauthorized},
		{"bypass skips the check", Options{BypassAuth: true}, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, &fakeLister{}, tt.opts)
			rec := get(s.Handler(), "/attention", tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAttentionRanksShipments(t *testing.T) {
	lister := &fakeLister{work: []types.ShipmentWork{
		{
			Shipment: types.Shipment{ID: "shp-quiet", LastActivityAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)},
		},
		{
			Shipment: types.Shipment{ID: "shp-hot", LastActivityAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)},
			Issues: []types.ShipmentIssue{
				{IssueType: "rollover", Status: types.IssueActive},
			},
		},
	}}
	s := newServer(t, lister, Options{BypassAuth: true})
	rec := get(s.Handler(), "/attention", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp attentionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Shipments)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "shp-hot", resp.Entries[0].Components.ShipmentID)
	assert.Equal(t, types.TierStrong, resp.Entries[0].Tier)
	assert.Greater(t, resp.Entries[0].Score, resp.Entries[1].Score)
}

func TestAttentionEmptyBoard(t *testing.T) {
	s := newServer(t, &fakeLister{}, Options{BypassAuth: true})
	rec := get(s.Handler(), "/attention", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp attentionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Entries)
	assert.Empty(t, resp.Entries)
}

func TestAttentionStoreError(t *testing.T) {
	s := newServer(t, &fakeLister{err: errors.New("disk gone")}, Options{BypassAuth: true})
	rec := get(s.Handler(), "/attention", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAttentionRejectsPost(t *testing.T) {
	s := newServer(t, &fakeLister{}, Options{BypassAuth: true})
	req := httptest.NewRequest(http.MethodPost, "/attention", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "freightflow_test_total"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Options{BypassAuth: true}, &fakeLister{}, attention.New(attention.DefaultWeights()), reg)
	rec := get(s.Handler(), "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "freightflow_test_total 1")
}

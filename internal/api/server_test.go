package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/segin2005/efgrabber/internal/config"
	"github.com/segin2005/efgrabber/internal/model"
)

type fakeStatsProvider struct {
	stats model.Stats
	err   error
}

func (f fakeStatsProvider) Snapshot() (model.Stats, error) { return f.stats, f.err }

func TestServerHealthz(t *testing.T) {
	s := NewServer(fakeStatsProvider{}, config.Config{}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServerStatsReturnsSnapshot(t *testing.T) {
	stats := model.Stats{CollectionID: 11, Pending: 5, Completed: 10}
	s := NewServer(fakeStatsProvider{stats: stats}, config.Config{}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServerAuthRejectsMissingKey(t *testing.T) {
	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	s := NewServer(fakeStatsProvider{}, cfg, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestServerAuthAcceptsValidKey(t *testing.T) {
	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	s := NewServer(fakeStatsProvider{}, cfg, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ok")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); v != 1 {
		t.Errorf("GET /ok count = %v, want 1", v)
	}
	if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")); v != 1 {
		t.Errorf("GET /missing count = %v, want 1", v)
	}
	if n := testutil.CollectAndCount(httpRequestDurationSeconds); n <= 0 {
		t.Errorf("httpRequestDurationSeconds series = %d, want > 0", n)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	if activeWorkers == nil {
		t.Fatal("Init did not register activeWorkers")
	}
	SetActiveWorkers(3)
	if v := testutil.ToFloat64(activeWorkers); v != 3 {
		t.Errorf("activeWorkers = %v, want 3", v)
	}
}

func TestObserveBackoffDelay(t *testing.T) {
	Init()
	before := backoffSampleCount(t)
	ObserveBackoffDelay(5)
	after := backoffSampleCount(t)
	if after != before+1 {
		t.Errorf("expected an additional observation, before=%d after=%d", before, after)
	}
}

func backoffSampleCount(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	if err := backoffDelaySeconds.Write(&m); err != nil {
		t.Fatalf("reading backoff histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestObserveTLSHandshakeTimeout(t *testing.T) {
	Init()
	before := testutil.ToFloat64(tlsHandshakeTimeoutsTotal)
	ObserveTLSHandshakeTimeout()
	after := testutil.ToFloat64(tlsHandshakeTimeoutsTotal)
	if after != before+1 {
		t.Errorf("tlsHandshakeTimeoutsTotal = %v, want %v", after, before+1)
	}
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/padron/pkg/cache"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveLoad("pob-tot", "provincial", "ok", 20*time.Millisecond)
	m.ObserveLoad("pob-tot", "provincial", "ok", 10*time.Millisecond)
	m.ObserveLoad("defun", "category", "structural", time.Millisecond)
	m.AddDropped("defun", 3)
	m.AddDropped("defun", 0)
	m.ObserveCheck("defun", false)
	m.ObserveRequest("GET /v1/health", 200)

	body := scrape(t, m)
	for _, want := range []string{
		`padron_dataset_loads_total{dataset="pob-tot",status="ok"} 2`,
		`padron_dataset_loads_total{dataset="defun",status="structural"} 1`,
		`padron_dataset_load_duration_seconds_count{kind="provincial"} 2`,
		`padron_dropped_columns_total{dataset="defun"} 3`,
		`padron_source_checks_total{dataset="defun",result="down"} 1`,
		`padron_http_requests_total{code="200",route="GET /v1/health"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestWatchCache(t *testing.T) {
	c, err := cache.New("", nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	build := func() (int, error) { return 1, nil }
	cache.Memo(c, "k", build)
	cache.Memo(c, "k", build)

	m := New()
	m.WatchCache(c)
	body := scrape(t, m)
	for _, want := range []string{
		"padron_cache_entries 1",
		"padron_cache_hits_total 1",
		"padron_cache_misses_total 1",
		"padron_cache_disk_hits_total 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveLoad("a", "b", "ok", time.Second)
	m.AddDropped("a", 1)
	m.ObserveCheck("a", true)
	m.ObserveRequest("r", 500)
	m.WatchCache(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil metrics handler status = %d, want 404", rec.Code)
	}
}

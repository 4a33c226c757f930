package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.MessagesWritten.WithLabelValues("created").Inc()
	m.MessagesWritten.WithLabelValues("updated").Add(2)
	m.MessagesFailed.WithLabelValues("summarize").Inc()
	m.SummaryCacheHits.Inc()

	if got := testutil.ToFloat64(m.MessagesWritten.WithLabelValues("updated")); got != 2 {
		t.Fatalf("updated = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`notesync_messages_written_total{outcome="created"} 1`,
		`notesync_messages_failed_total{stage="summarize"} 1`,
		`notesync_summary_cache_hits_total 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewUsesIsolatedRegistries(t *testing.T) {
	// registering twice on the default registry would panic
	a, b := New(), New()
	a.SummaryCacheHits.Inc()
	if got := testutil.ToFloat64(b.SummaryCacheHits); got != 0 {
		t.Fatalf("registries share state: %v", got)
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func Test_Publications_Increment_IsCountedPerOutcome(t *testing.T) {
	m := New()
	m.Publications.WithLabelValues(OutcomeSuccess).Inc()
	m.Publications.WithLabelValues(OutcomeSuccess).Inc()
	m.Publications.WithLabelValues(OutcomeRejected).Inc()

	if got := testutil.ToFloat64(m.Publications.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Errorf("expected 2 successful publications, got %v", got)
	}
	if got := testutil.ToFloat64(m.Publications.WithLabelValues(OutcomeRejected)); got != 1 {
		t.Errorf("expected 1 rejected publication, got %v", got)
	}
}

func Test_Handler_ExposesRegistryMetrics(t *testing.T) {
	m := New()
	m.Downloads.Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	if !strings.Contains(w.Body.String(), "registry_downloads_total 1") {
		t.Errorf("expected downloads counter in output, got %s", w.Body.String())
	}
}

func Test_New_TwoInstances_DoNotConflict(t *testing.T) {
	New()
	New()
}

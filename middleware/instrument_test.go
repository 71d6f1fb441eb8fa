package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"OpenCargoRegistry/metrics"
)

func Test_Instrument_ObservesMethodAndStatus(t *testing.T) {
	m := metrics.New()
	handler := Instrument(m, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/", "/", "/missing"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.CollectAndCount(m.RequestDuration); got != 2 {
		t.Errorf("expected two label combinations, got %d", got)
	}
}

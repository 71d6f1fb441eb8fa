package middleware

import (
	"net/http"
	"strconv"

	"OpenCargoRegistry/metrics"
	"OpenCargoRegistry/utils"
)

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Instrument observes the duration of every request by method and status code.
func Instrument(m *metrics.Metrics, clock utils.TimeProvider, next http.Handler) http.Handler {
	if clock == nil {
		clock = utils.NewRealTimeProvider()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Observe(clock.Now().Sub(start).Seconds())
	})
}

package http

import (
	"encoding/json"
	stdhttp "net/http"
	"runtime/debug"
	"time"

	"rhat/internal/platform/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type capture struct {
	stdhttp.ResponseWriter
	status int
}

func (c *capture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

// AccessLog logs request duration and status. Scrapes are frequent so the
// level is debug unless the request was slow or failed
func AccessLog(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		cw := &capture{ResponseWriter: w, status: stdhttp.StatusOK}
		start := time.Now()

		next.ServeHTTP(cw, r)

		elapsed := time.Since(start)
		log := logger.Named("http")
		evt := log.Debug()
		if cw.status >= 500 || elapsed >= 500*time.Millisecond {
			evt = log.Warn()
		}
		evt.Int("status", cw.status).
			Dur("elapsed", elapsed).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request done")
	})
}

// Recover converts panics into a JSON 500 and logs the stack
func Recover(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		defer func() {
			if v := recover(); v != nil {
				reqID := chimw.GetReqID(r.Context())
				logger.Named("http").Error().
					Str("request_id", reqID).
					Interface("panic", v).
					Msgf("panic recovered\n%s", debug.Stack())
				JSON(w, stdhttp.StatusInternalServerError, Status{Status: "error", Error: "panic recovered", RequestID: reqID})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Status is the body of the health endpoint and of error replies
type Status struct {
	Status    string `json:"status"`
	Workers   int    `json:"workers,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes v as application/json with the given status
func JSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Probe reports readiness and the current pool size
type Probe func() (workers int, err error)

// Ops mounts the operational endpoints: /metrics, /healthz and, when
// profile is set, pprof under /debug
func Ops(metrics stdhttp.Handler, probe Probe, profile bool) func(*chi.Mux) {
	return func(m *chi.Mux) {
		if metrics != nil {
			m.Method(stdhttp.MethodGet, "/metrics", metrics)
		}
		m.Get("/healthz", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			st := Status{Status: "ok", RequestID: chimw.GetReqID(r.Context())}
			if probe != nil {
				n, err := probe()
				st.Workers = n
				if err != nil {
					st.Status, st.Error = "unavailable", err.Error()
					JSON(w, stdhttp.StatusServiceUnavailable, st)
					return
				}
			}
			JSON(w, stdhttp.StatusOK, st)
		})
		if profile {
			m.Mount("/debug", chimw.Profiler())
		}
	}
}

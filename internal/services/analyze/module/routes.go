package module

import (
	"net/http"

	perr "rhat/internal/platform/errors"
	phttp "rhat/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MountRoutes satisfies modkit.Module. Run lookups need the ledger
func (m *Module) MountRoutes(r chi.Router) {
	if m.ports.Runs == nil {
		return
	}
	r.Get("/runs/{id}", m.getRun)
}

func (m *Module) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		phttp.Fail(w, r, perr.WithField(perr.InvalidArgf("run id must be a uuid"), "id"))
		return
	}
	run, err := m.ports.Runs.GetRun(r.Context(), id)
	if err != nil {
		if phttp.StatusOf(err) >= http.StatusInternalServerError {
			m.deps.Log.Error().Err(err).Str("run_id", id.String()).Msg("get run failed")
		}
		phttp.Fail(w, r, err)
		return
	}
	phttp.JSON(w, http.StatusOK, run)
}

package http

import (
	stdhttp "net/http"

	perr "rhat/internal/platform/errors"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// StatusOf maps a project error to an http status
func StatusOf(err error) int {
	if err == nil {
		return stdhttp.StatusOK
	}
	switch perr.CodeOf(err) {
	case perr.ErrorCodeNotFound, perr.ErrorCodeNotARule:
		return stdhttp.StatusNotFound
	case perr.ErrorCodeInvalidArgument:
		return stdhttp.StatusUnprocessableEntity
	case perr.ErrorCodeValidation:
		return stdhttp.StatusBadRequest
	case perr.ErrorCodeDuplicateKey:
		return stdhttp.StatusConflict
	case perr.ErrorCodeUnavailable:
		return stdhttp.StatusServiceUnavailable
	case perr.ErrorCodeTimeout:
		return stdhttp.StatusGatewayTimeout
	default:
		return stdhttp.StatusInternalServerError
	}
}

// Fail writes err as a Status body with the mapped code. 5xx details stay in
// the log
func Fail(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	code := StatusOf(err)
	msg := err.Error()
	if code >= stdhttp.StatusInternalServerError {
		msg = stdhttp.StatusText(code)
	}
	JSON(w, code, Status{Status: "error", Error: msg, RequestID: chimw.GetReqID(r.Context())})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"arbiter/store"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var errInvalidAddress = errors.New("invalid address")

func respondOK(w http.ResponseWriter, r *http.Request, response any) {
	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(response) // encode failure means the connection is gone
}

func respondError(w http.ResponseWriter, r *http.Request, err error, fallbackCode int, logger log.Logger) {
	code, trueError := classifyError(err, fallbackCode)

	if trueError {
		level.Error(logger).Log("remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "err", err, "code", code)
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:      err.Error(),
		StatusCode: code,
		StatusText: http.StatusText(code),
	})
}

// classifyError maps an error to a status code, and reports whether it is
// worth logging as a real error or is just a client asking for something
// that isn't there.
func classifyError(err error, fallback int) (int, bool) {
	switch {
	case err == nil:
		return http.StatusOK, false
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, errInvalidAddress):
		return http.StatusBadRequest, false
	default:
		return fallback, true
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text"`
}

package api

import (
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/gofrs/uuid"
)

const requestIDHeader = "x-request-id"

// requestIDMiddleware tags every request with a uuid, echoed in the
// response, so a log line can be matched to the response a caller saw.
// Client-supplied ids are kept.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			if u, err := uuid.NewV4(); err == nil {
				id = u.String()
			}
		}
		if id != "" {
			r.Header.Set(requestIDHeader, id)
			w.Header().Set(requestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func panicRecoveryMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					respondError(w, r, fmt.Errorf("panic: %v", v), 599, logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"arbiter/store"
)

func TestClassifyError(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		wantCode int
		wantTrue bool
	}{
		{"nil", nil, http.StatusOK, false},
		{"not found", fmt.Errorf("select: %w", store.ErrNotFound), http.StatusNotFound, false},
		{"invalid address", fmt.Errorf("%q: %w", "x", errInvalidAddress), http.StatusBadRequest, false},
		{"anonymous", errors.New("boom"), http.StatusInternalServerError, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			code, trueError := classifyError(tc.err, http.StatusInternalServerError)
			if want, have := tc.wantCode, code; want != have {
				t.Errorf("code: want %d, have %d", want, have)
			}
			if want, have := tc.wantTrue, trueError; want != have {
				t.Errorf("true error: want %v, have %v", want, have)
			}
		})
	}
}

package umaerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCode(t *testing.T) {
	if got := Code(ErrInvalidTicket); got != "invalid_ticket" {
		t.Fatalf("got %q", got)
	}
	// Errores envueltos conservan su código.
	wrapped := fmt.Errorf("%w: extra context", ErrInvalidScope)
	if got := Code(wrapped); got != "invalid_scope" {
		t.Fatalf("got %q", got)
	}
	// Fuera de la taxonomía todo es server_error.
	if got := Code(errors.New("weird")); got != "server_error" {
		t.Fatalf("got %q", got)
	}
}

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalidPCT, http.StatusUnauthorized},
		{ErrUnauthorizedClient, http.StatusUnauthorized},
		{ErrForbiddenByPolicy, http.StatusForbidden},
		{ErrDisabledClient, http.StatusForbidden},
		{ErrAccessDenied, http.StatusForbidden},
		{ErrServerError, http.StatusInternalServerError},
		{ErrInvalidTicket, http.StatusBadRequest},
		{ErrInvalidGrantType, http.StatusBadRequest},
		{errors.New("weird"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Errorf("Status(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

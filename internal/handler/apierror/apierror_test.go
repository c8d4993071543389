package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/timemachine/backend/internal/service/session"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: message is required", session.ErrValidation), http.StatusBadRequest},
		{session.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: session is reported", session.ErrPhaseConflict), http.StatusConflict},
		{fmt.Errorf("continue simulation: %w", session.ErrReasoningUnavailable), http.StatusBadGateway},
		{fmt.Errorf("get: %w", session.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRespondHidesUpstreamDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("continue simulation: %w: status 500: stack trace", session.ErrReasoningUnavailable)
	Respond(rec, nil, "chat.response", err)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "stack trace") {
		t.Fatalf("upstream detail leaked: %s", rec.Body.String())
	}
}

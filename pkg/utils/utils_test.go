package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "scenario not found")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"scenario not found"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"a"}{"message":"b"}`))
	var payload struct {
		Message string `json:"message"`
	}
	if err := DecodeJSON(req, &payload); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestSendSSEEventFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEEvent(rec, rec, "state", map[string]int{"anger": 3})

	if got := rec.Body.String(); got != "event: state\ndata: {\"anger\":3}\n\n" {
		t.Fatalf("unexpected frame %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flush")
	}
}

// Package apierror maps controller errors onto HTTP responses.
package apierror

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/utils"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrPhaseConflict):
		return http.StatusConflict
	case errors.Is(err, session.ErrReasoningUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-facing text for err. Upstream details stay in the logs.
func Message(err error) string {
	switch Status(err) {
	case http.StatusBadRequest, http.StatusConflict:
		return err.Error()
	case http.StatusNotFound:
		return "scenario not found"
	case http.StatusBadGateway:
		return "reasoning service unavailable"
	case http.StatusServiceUnavailable:
		return "session store unavailable"
	default:
		return "internal server error"
	}
}

// Respond writes err as {"error": "..."} with the mapped status.
func Respond(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.String("op", op), zap.Int("status", status), zap.Error(err))
	}
	utils.RespondError(w, status, Message(err))
}

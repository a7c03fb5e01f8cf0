package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ai-assist/internal/domain"
)

// errorBody is the failure envelope shared by every endpoint.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError maps err to a status and the failure envelope. Server-side
// failures are logged with their full detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{
		Success: false,
		Error:   publicMessage(err),
		Code:    string(domain.ErrorCodeOf(err)),
	})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownProvider),
		errors.Is(err, domain.ErrRPCInvalidPayload),
		errors.Is(err, domain.ErrRPCMethodNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrProviderDisabled),
		errors.Is(err, domain.ErrMissingCredential):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstream),
		errors.Is(err, domain.ErrInvalidResponse):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTransport):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage renders err for the caller. Storage and crypto details
// stay in the logs.
func publicMessage(err error) string {
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Error()
	}

	var de *domain.DomainError
	if !errors.As(err, &de) {
		if domain.ErrorCodeOf(err) != domain.CodeUnknown {
			return err.Error()
		}
		return "internal error"
	}

	base := de.Err.Error()
	switch {
	case errors.Is(de.Err, domain.ErrConfigLoad),
		errors.Is(de.Err, domain.ErrConfigSave),
		errors.Is(de.Err, domain.ErrEncryption),
		errors.Is(de.Err, domain.ErrDecryption):
		return base
	case de.Detail == "" || strings.EqualFold(de.Detail, base):
		return base
	default:
		return base + ": " + de.Detail
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/policy"
	"sessionkeys/internal/provider"
	"sessionkeys/internal/session"
	"sessionkeys/internal/types"
	"sessionkeys/internal/wallet"
)

// statusForError maps lifecycle, policy and provider errors to an HTTP
// status and a client-facing message.
func statusForError(err error) (int, string) {
	var httpErr *provider.HTTPError
	var urlErr *url.Error

	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, wallet.ErrSessionExpired):
		return http.StatusConflict, constants.MsgSessionRequired
	case errors.Is(err, policy.ErrCallNotAllowed),
		errors.Is(err, policy.ErrTransferNotAllowed),
		errors.Is(err, policy.ErrValueLimitExceeded):
		return http.StatusForbidden, constants.MsgPolicyViolation + ": " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, constants.MsgProviderFailed + ": timed out"
	case errors.Is(err, session.ErrProviderRequestFailed),
		errors.As(err, &httpErr),
		errors.As(err, &urlErr):
		return http.StatusBadGateway, constants.MsgProviderFailed
	case errors.Is(err, wallet.ErrNoTransactor):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

func writeErr(w http.ResponseWriter, err error) {
	status, msg := statusForError(err)
	writeError(w, status, msg)
}

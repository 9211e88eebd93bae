package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/leitura-auth/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Transport error codes. Auth failures use auth.Kind.String() instead.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// kindMessages are the client-facing messages per auth error kind. Wrapped
// detail stays in the logs; only invalid input echoes its own message.
var kindMessages = map[auth.Kind]string{
	auth.KindInvalidCredentials:     auth.ErrInvalidCredentials.Error(),
	auth.KindInvalidToken:           "could not validate credentials",
	auth.KindExpiredToken:           auth.ErrExpiredToken.Error(),
	auth.KindMalformedToken:         auth.ErrMalformedToken.Error(),
	auth.KindForbidden:              auth.ErrForbidden.Error(),
	auth.KindNotFound:               auth.ErrNotFound.Error(),
	auth.KindDuplicateUsername:      auth.ErrDuplicateUsername.Error(),
	auth.KindSessionOperationFailed: auth.ErrSessionOperationFailed.Error(),
	auth.KindSessionCreationFailed:  auth.ErrSessionCreationFailed.Error(),
	auth.KindStoreFailure:           "internal server error",
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps an auth error to its status and code. Server-side
// failures are logged with the request ID; 401s carry a Bearer challenge.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	status := kind.HTTPStatus()

	message := kindMessages[kind]
	if kind == auth.KindInvalidInput {
		message = err.Error()
	}

	switch {
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed",
			"code", kind.String(),
			"error", err,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
		)
	case status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
		s.logger.Debug("request unauthenticated",
			"code", kind.String(),
			"error", err,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
		)
	}

	writeError(w, status, kind.String(), message)
}

// decodeJSON decodes the request body into v, reporting oversized bodies
// distinctly from malformed ones.
func decodeJSON(r *http.Request, v any) (message string, ok bool) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "request body too large", false
		}
		return "invalid JSON body", false
	}
	return "", true
}

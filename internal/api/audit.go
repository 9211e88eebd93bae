package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/leitura-auth/internal/audit"
	"github.com/nerrad567/leitura-auth/internal/auth"
)

// handleListAudit returns one page of the audit trail. Admin only.
//
// Query parameters: action, user_id, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequirePermission(userFromContext(r.Context()), auth.PermAuditRead); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		UserID: q.Get("user_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit trail failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// auditLoginFailed records a rejected login when the audit trail is enabled.
func (s *Server) auditLoginFailed(ctx context.Context, username, ip string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LoginFailed(ctx, username, ip); err != nil {
		s.logger.Warn("recording failed login", "error", err)
	}
}

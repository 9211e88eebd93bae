package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/leitura-auth/internal/auth"
)

// handleCreateUser registers an account. Anonymous callers get an inactive
// user-role account; admins may choose the role and activation.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in auth.UserInput
	if msg, ok := decodeJSON(r, &in); !ok {
		writeBadRequest(w, msg)
		return
	}

	user, err := s.directory.CreateUser(r.Context(), in, userFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleListUsers returns all user accounts. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.directory.ListUsers(r.Context(), userFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleMe returns the caller's own account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	current := userFromContext(r.Context())

	user, err := s.directory.GetUser(r.Context(), current.ID, current)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUserStats returns merged account and session statistics. Admin only.
func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.directory.Stats(r.Context(), userFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleGetUser returns one account to its owner or an admin.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.directory.GetUser(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser changes username, email, password or role.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in auth.UserInput
	if msg, ok := decodeJSON(r, &in); !ok {
		writeBadRequest(w, msg)
		return
	}

	user, err := s.directory.UpdateUser(r.Context(), chi.URLParam(r, "id"), in, userFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleToggleActive flips an account's active flag. Admin only.
func (s *Server) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	user, err := s.directory.ToggleActive(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes an account and its sessions.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.directory.DeleteUser(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context())); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

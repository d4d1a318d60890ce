// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/quickly-annotate/assignment"
	"github.com/danielhkuo/quickly-annotate/auth"
	"github.com/danielhkuo/quickly-annotate/cliparse"
	"github.com/danielhkuo/quickly-annotate/middleware"
	"github.com/danielhkuo/quickly-annotate/models"
)

type SessionHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	engine *assignment.Engine
}

func NewSessionHandler(db *sql.DB, cfg cliparse.Config, engine *assignment.Engine) *SessionHandler {
	return &SessionHandler{db: db, cfg: cfg, engine: engine}
}

// StartSession handles POST /forms/{id}/sessions
// Opens a participant session in the started state
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	if formID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "form_id is required")
		return
	}

	if _, err := assignment.LoadForm(r.Context(), h.db, formID); err != nil {
		if errors.Is(err, assignment.ErrFormNotFound) {
			middleware.ErrorResponse(w, http.StatusNotFound, "Form not found")
			return
		}
		slog.Error("failed to query form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	sessionID, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate session ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	token, err := auth.GenerateSessionToken()
	if err != nil {
		slog.Error("failed to generate session token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	ipHash := auth.HashIP(middleware.GetClientIP(r), h.cfg.IPHashSalt)
	now := time.Now().UTC()

	_, err = h.db.Exec(`
		INSERT INTO participant_session (id, form_id, session_token, status, ip_hash, user_agent, started_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sessionID, formID, token, models.StatusStarted, ipHash, r.UserAgent(), now, now)

	if err != nil {
		slog.Error("failed to insert session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	slog.Info("session started", "form_id", formID, "session_id", sessionID)

	sess := models.Session{
		ID:             sessionID,
		FormID:         formID,
		Token:          token,
		Status:         models.StatusStarted,
		StartedAt:      now,
		LastActivityAt: now,
	}
	middleware.JSONResponse(w, http.StatusCreated, models.StartSessionResponse{
		SessionToken: token,
		Session:      sess.View(),
	})
}

// GetSession handles GET /forms/{id}/sessions/{token}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	token := r.PathValue("token")
	if formID == "" || token == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "form_id and session token are required")
		return
	}

	sess, err := assignment.LoadSession(r.Context(), h.db, formID, token)
	if errors.Is(err, assignment.ErrSessionNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		slog.Error("failed to query session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, sess.View())
}

// Heartbeat handles POST /forms/{id}/sessions/{token}/heartbeat
// Keeps an in-progress session from being expired by the sweep
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	token := r.PathValue("token")

	view, err := h.engine.Heartbeat(r.Context(), formID, token)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, view)
}

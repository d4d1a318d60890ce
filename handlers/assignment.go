// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/quickly-annotate/assignment"
	"github.com/danielhkuo/quickly-annotate/middleware"
	"github.com/danielhkuo/quickly-annotate/models"
	"github.com/danielhkuo/quickly-annotate/quota"
)

type AssignmentHandler struct {
	engine *assignment.Engine
}

func NewAssignmentHandler(engine *assignment.Engine) *AssignmentHandler {
	return &AssignmentHandler{engine: engine}
}

// Assign handles POST /forms/{id}/assign
// Stores the demographic answers and hands out articles, or screens the
// participant out. Screen-outs answer 409 with the result as body.
func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")

	var req models.AssignRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := h.engine.Assign(r.Context(), formID, req.SessionToken, req.DemographicAnswers)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if !result.Assigned {
		middleware.JSONResponse(w, http.StatusConflict, result)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, result)
}

// Complete handles POST /forms/{id}/complete
// Marks the session's assignment as annotated
func (h *AssignmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")

	var req models.SessionTokenRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	view, err := h.engine.Complete(r.Context(), formID, req.SessionToken)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, view)
}

// writeEngineError maps engine errors to responses. Unknown errors are
// logged and never leaked to the client.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assignment.ErrMissingSessionToken):
		middleware.ErrorResponse(w, http.StatusBadRequest, "session_token is required")
	case errors.Is(err, quota.ErrInvalidBirthDate):
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid birth date")
	case errors.Is(err, assignment.ErrFormNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Form not found")
	case errors.Is(err, assignment.ErrSessionNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, assignment.ErrSessionExpired):
		middleware.ErrorResponse(w, http.StatusConflict, "Session expired")
	case errors.Is(err, assignment.ErrNotAssigned):
		middleware.ErrorResponse(w, http.StatusConflict, "Session has no assignment to complete")
	default:
		slog.Error("assignment request failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Internal error")
	}
}

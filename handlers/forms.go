// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/quickly-annotate/assignment"
	"github.com/danielhkuo/quickly-annotate/auth"
	"github.com/danielhkuo/quickly-annotate/middleware"
	"github.com/danielhkuo/quickly-annotate/models"
	"github.com/danielhkuo/quickly-annotate/quota"
	"github.com/google/uuid"
)

// Form defaults
const (
	DefaultSessionTimeoutMins = 60
	MaxImportRecords          = 10000
)

type FormHandler struct {
	db     *sql.DB
	engine *assignment.Engine
}

func NewFormHandler(db *sql.DB, engine *assignment.Engine) *FormHandler {
	return &FormHandler{db: db, engine: engine}
}

// CreateForm handles POST /forms
func (h *FormHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFormRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate input and fill defaults
	if strings.TrimSpace(req.Title) == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.AssignmentStrategy == "" {
		req.AssignmentStrategy = models.StrategyIndividual
	}
	if req.AssignmentStrategy != models.StrategyIndividual && req.AssignmentStrategy != models.StrategyJobSet {
		middleware.ErrorResponse(w, http.StatusBadRequest, "assignment_strategy must be individual or job_set")
		return
	}
	if req.ArticlesPerSession == 0 {
		req.ArticlesPerSession = 1
	}
	if req.ArticlesPerSession < 1 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "articles_per_session must be at least 1")
		return
	}
	if req.SessionTimeoutMins == 0 {
		req.SessionTimeoutMins = DefaultSessionTimeoutMins
	}
	if req.SessionTimeoutMins < 1 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "session_timeout_mins must be at least 1")
		return
	}
	if req.MinimumAge <= 0 {
		req.MinimumAge = quota.DefaultMinimumAge
	}

	settings, version, err := canonicalSettings(req.QuotaSettings)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var screenOutURL *string
	if u := strings.TrimSpace(req.ScreenOutURL); u != "" {
		screenOutURL = &u
	}

	formID, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate form ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create form")
		return
	}

	_, err = h.db.Exec(`
		INSERT INTO form (id, title, description, assignment_strategy, articles_per_session,
		                  session_timeout_mins, minimum_age, screen_out_url, quota_settings,
		                  settings_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, formID, req.Title, req.Description, req.AssignmentStrategy, req.ArticlesPerSession,
		req.SessionTimeoutMins, req.MinimumAge, screenOutURL, settings, version, time.Now().UTC())

	if err != nil {
		slog.Error("failed to insert form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create form")
		return
	}

	slog.Info("form created", "form_id", formID, "strategy", req.AssignmentStrategy)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateFormResponse{
		FormID: formID,
	})
}

// canonicalSettings validates a settings document and returns the text to
// store with its initial version. An absent document stores nothing.
func canonicalSettings(raw json.RawMessage) (string, int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", 0, nil
	}
	s, err := quota.ParseSettings(raw)
	if err != nil {
		return "", 0, err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", 0, err
	}
	return string(b), 1, nil
}

// GetForm handles GET /forms/{id}
func (h *FormHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	if formID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "form_id is required")
		return
	}

	form, err := assignment.LoadForm(r.Context(), h.db, formID)
	if errors.Is(err, assignment.ErrFormNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		slog.Error("failed to query form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, form)
}

// UpdateQuotaSettings handles PUT /forms/{id}/quota-settings
// Overlapping group values are rejected here so classification never
// depends on group order by accident.
func (h *FormHandler) UpdateQuotaSettings(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	if formID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "form_id is required")
		return
	}

	var raw json.RawMessage
	if err := middleware.ParseJSONBody(r, &raw); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	settings, err := quota.ParseSettings(raw)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	canonical, err := json.Marshal(settings)
	if err != nil {
		slog.Error("failed to encode quota settings", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save quota settings")
		return
	}

	var version int
	err = h.db.QueryRow(`
		UPDATE form
		SET quota_settings = $1, settings_version = settings_version + 1
		WHERE id = $2
		RETURNING settings_version
	`, string(canonical), formID).Scan(&version)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		slog.Error("failed to update quota settings", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save quota settings")
		return
	}

	h.engine.Invalidate(formID)

	slog.Info("quota settings updated", "form_id", formID, "settings_version", version, "groups", len(settings.Groups))

	middleware.JSONResponse(w, http.StatusOK, models.QuotaSettingsResponse{
		FormID:          formID,
		SettingsVersion: version,
		QuotaSettings:   canonical,
	})
}

// ImportArticles handles POST /forms/{id}/articles
// Records are de-duplicated by (short_id, text). On job_set forms they are
// chunked into job sets of articles_per_session in input order; a trailing
// partial chunk becomes its own set.
func (h *FormHandler) ImportArticles(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	if formID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "form_id is required")
		return
	}

	var req models.ImportArticlesRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.Records) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "records cannot be empty")
		return
	}
	if len(req.Records) > MaxImportRecords {
		middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("at most %d records per import", MaxImportRecords))
		return
	}
	for i, rec := range req.Records {
		if strings.TrimSpace(rec.Text) == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("record %d has no text", i))
			return
		}
	}

	form, err := assignment.LoadForm(r.Context(), h.db, formID)
	if errors.Is(err, assignment.ErrFormNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		slog.Error("failed to query form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	// Serializes with assignment commits on this form
	if err := assignment.LockForm(r.Context(), tx, formID); err != nil {
		slog.Error("failed to lock form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if req.Replace {
		// Units in use cannot be swapped out from under their sessions
		var held int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM participant_session
			WHERE form_id = $1 AND assigned_kind IS NOT NULL
		`, formID).Scan(&held)
		if err != nil {
			slog.Error("failed to count assigned sessions", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		if held > 0 {
			middleware.ErrorResponse(w, http.StatusConflict, "Cannot replace articles while sessions hold assignments")
			return
		}

		for _, table := range []string{"unit_quota", "article", "job_set"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE form_id = $1`, formID); err != nil {
				slog.Error("failed to clear units", "error", err, "table", table)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import articles")
				return
			}
		}
	}

	// Existing hashes, for de-duplication against earlier imports
	seen := make(map[string]bool)
	rows, err := tx.Query(`SELECT content_hash FROM article WHERE form_id = $1`, formID)
	if err != nil {
		slog.Error("failed to query article hashes", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			rows.Close()
			slog.Error("failed to scan article hash", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		seen[hash] = true
	}
	rows.Close()
	existing := len(seen)

	var records []models.ArticleRecord
	duplicates := 0
	for _, rec := range req.Records {
		rec.ShortID = strings.TrimSpace(rec.ShortID)
		hash := auth.ContentHash(rec.ShortID, rec.Text)
		if seen[hash] {
			duplicates++
			continue
		}
		seen[hash] = true
		records = append(records, rec)
	}

	var existingSets int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM job_set WHERE form_id = $1`, formID).Scan(&existingSets); err != nil {
		slog.Error("failed to count job sets", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	jobSets := 0

	for start := 0; start < len(records); {
		chunk := records[start:]
		var jobSetID *string

		if form.AssignmentStrategy == models.StrategyJobSet {
			chunk = records[start:min(start+form.ArticlesPerSession, len(records))]

			setID, err := auth.GenerateID(12)
			if err != nil {
				slog.Error("failed to generate job set ID", "error", err)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import articles")
				return
			}
			jobSets++
			shortID := fmt.Sprintf("set-%04d", existingSets+jobSets)

			_, err = tx.Exec(`
				INSERT INTO job_set (id, form_id, short_id, batch_id, created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, setID, formID, shortID, batchID, now)
			if err != nil {
				slog.Error("failed to insert job set", "error", err)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import articles")
				return
			}
			jobSetID = &setID
		}

		for i, rec := range chunk {
			articleID, err := auth.GenerateID(12)
			if err != nil {
				slog.Error("failed to generate article ID", "error", err)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import articles")
				return
			}

			// Job set members are ordered within their set, others across the form
			position := existing + start + i
			if jobSetID != nil {
				position = i
			}

			_, err = tx.Exec(`
				INSERT INTO article (id, form_id, job_set_id, short_id, content, content_hash, position, batch_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, articleID, formID, jobSetID, rec.ShortID, rec.Text, auth.ContentHash(rec.ShortID, rec.Text), position, batchID, now)
			if err != nil {
				slog.Error("failed to insert article", "error", err)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import articles")
				return
			}
		}
		start += len(chunk)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit import", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to import articles")
		return
	}

	slog.Info("articles imported",
		"form_id", formID, "batch_id", batchID, "articles", len(records),
		"job_sets", jobSets, "duplicates", duplicates, "replace", req.Replace)

	middleware.JSONResponse(w, http.StatusCreated, models.ImportArticlesResponse{
		BatchID:    batchID,
		Articles:   len(records),
		JobSets:    jobSets,
		Duplicates: duplicates,
	})
}

// GetQuota handles GET /forms/{id}/quota
// Returns per-unit, per-group counters for the form's strategy
func (h *FormHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	if formID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "form_id is required")
		return
	}

	form, err := assignment.LoadForm(r.Context(), h.db, formID)
	if errors.Is(err, assignment.ErrFormNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Form not found")
		return
	}
	if err != nil {
		slog.Error("failed to query form", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	settings, err := h.engine.Settings(form)
	if err != nil {
		slog.Error("stored quota settings are invalid", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Invalid quota settings")
		return
	}

	units, err := assignment.LoadUnits(r.Context(), h.db, formID, form.AssignmentStrategy)
	if err != nil {
		slog.Error("failed to load units", "error", err, "form_id", formID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	targets := make(map[string]int, len(settings.Groups))
	for _, g := range settings.Groups {
		targets[g.Name] = g.Target
	}

	status := make([]models.UnitQuotaStatus, 0, len(units))
	for _, u := range units {
		st := models.UnitQuotaStatus{
			UnitID:    u.UnitID(),
			Kind:      u.UnitKind(),
			Reserved:  u.Quota().Reserved,
			Completed: u.Quota().Completed,
			Remaining: make(map[string]int, len(settings.Groups)),
		}
		switch u := u.(type) {
		case *models.IndividualArticle:
			st.ShortID = u.ShortID
			st.Articles = 1
		case *models.JobSet:
			st.ShortID = u.ShortID
			st.Articles = len(u.Articles)
		default:
			slog.Error("unknown allocation unit", "type", fmt.Sprintf("%T", u))
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Unknown allocation unit")
			return
		}
		for _, g := range settings.Groups {
			st.Remaining[g.Name] = quota.Remaining(settings, g.Name, st.Reserved)
		}
		status = append(status, st)
	}

	middleware.JSONResponse(w, http.StatusOK, models.QuotaStatusResponse{
		FormID:   formID,
		Strategy: form.AssignmentStrategy,
		Targets:  targets,
		Units:    status,
	})
}

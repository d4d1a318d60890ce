package models

import (
	"encoding/json"
	"time"
)

// Assignment strategy constants
const (
	StrategyIndividual = "individual"
	StrategyJobSet     = "job_set"
)

// Session status constants
const (
	StatusStarted      = "started"
	StatusDemographics = "demographics"
	StatusAnnotating   = "annotating"
	StatusScreenedOut  = "screened_out"
	StatusCompleted    = "completed"
	StatusExpired      = "expired"
)

// Screen-out reasons
const (
	ReasonUnderAge        = "under_age"
	ReasonNoMatchingGroup = "no_matching_group"
	ReasonQuotaFull       = "quota_full"
)

// Request types

type CreateFormRequest struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	AssignmentStrategy string          `json:"assignment_strategy"`
	ArticlesPerSession int             `json:"articles_per_session"`
	SessionTimeoutMins int             `json:"session_timeout_mins"`
	MinimumAge         int             `json:"minimum_age"`
	ScreenOutURL       string          `json:"screen_out_url"`
	QuotaSettings      json.RawMessage `json:"quota_settings,omitempty"`
}

// ArticleRecord is one parsed row of an article upload.
type ArticleRecord struct {
	ShortID string `json:"short_id"`
	Text    string `json:"text"`
}

type ImportArticlesRequest struct {
	Records []ArticleRecord `json:"records"`
	Replace bool            `json:"replace"`
}

type AssignRequest struct {
	SessionToken       string            `json:"session_token"`
	DemographicAnswers map[string]string `json:"demographic_answers"`
}

type SessionTokenRequest struct {
	SessionToken string `json:"session_token"`
}

// Response types

type CreateFormResponse struct {
	FormID string `json:"form_id"`
}

type ImportArticlesResponse struct {
	BatchID    string `json:"batch_id"`
	Articles   int    `json:"articles"`
	JobSets    int    `json:"job_sets"`
	Duplicates int    `json:"duplicates"`
}

type StartSessionResponse struct {
	SessionToken string      `json:"session_token"`
	Session      SessionView `json:"session"`
}

// AssignmentResult is the outcome of an assignment request. Screen-outs are
// results with Assigned=false and a Reason, never errors.
type AssignmentResult struct {
	Assigned         bool          `json:"assigned"`
	Resumed          bool          `json:"resumed,omitempty"`
	Articles         []ArticleView `json:"articles,omitempty"`
	DemographicGroup string        `json:"demographic_group,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	AvailableCount   *int          `json:"available_count,omitempty"`
	Required         *int          `json:"required,omitempty"`
	RedirectURL      string        `json:"redirect_url,omitempty"`
	Session          SessionView   `json:"session"`
}

type QuotaStatusResponse struct {
	FormID   string            `json:"form_id"`
	Strategy string            `json:"assignment_strategy"`
	Targets  map[string]int    `json:"targets"`
	Units    []UnitQuotaStatus `json:"units"`
}

type UnitQuotaStatus struct {
	UnitID    string         `json:"unit_id"`
	ShortID   string         `json:"short_id"`
	Kind      string         `json:"kind"`
	Articles  int            `json:"articles"`
	Reserved  map[string]int `json:"reserved"`
	Completed map[string]int `json:"completed"`
	Remaining map[string]int `json:"remaining"`
}

type QuotaSettingsResponse struct {
	FormID          string          `json:"form_id"`
	SettingsVersion int             `json:"settings_version"`
	QuotaSettings   json.RawMessage `json:"quota_settings"`
}

// Domain types

type Form struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	AssignmentStrategy string          `json:"assignment_strategy"`
	ArticlesPerSession int             `json:"articles_per_session"`
	SessionTimeoutMins int             `json:"session_timeout_mins"`
	MinimumAge         int             `json:"minimum_age"`
	ScreenOutURL       *string         `json:"screen_out_url,omitempty"`
	QuotaSettings      json.RawMessage `json:"quota_settings"`
	SettingsVersion    int             `json:"settings_version"`
	CreatedAt          time.Time       `json:"created_at"`
}

type Session struct {
	ID                   string
	FormID               string
	Token                string
	Status               string
	DemographicAnswers   map[string]string
	DemographicGroup     *string
	AssignedKind         *string
	RequiredArticleCount int
	ScreenOutReason      *string
	AvailableCount       *int
	StartedAt            time.Time
	LastActivityAt       time.Time
	AssignedAt           *time.Time
	CompletedAt          *time.Time
}

// View returns the public projection of the session.
func (s Session) View() SessionView {
	v := SessionView{
		FormID:               s.FormID,
		Status:               s.Status,
		RequiredArticleCount: s.RequiredArticleCount,
		StartedAt:            s.StartedAt,
		CompletedAt:          s.CompletedAt,
	}
	if s.DemographicGroup != nil {
		v.DemographicGroup = *s.DemographicGroup
	}
	return v
}

type SessionView struct {
	FormID               string     `json:"form_id"`
	Status               string     `json:"status"`
	DemographicGroup     string     `json:"demographic_group,omitempty"`
	RequiredArticleCount int        `json:"required_article_count"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

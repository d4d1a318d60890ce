// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/danielhkuo/quickly-annotate/events"
	"github.com/danielhkuo/quickly-annotate/metrics"
	"github.com/danielhkuo/quickly-annotate/models"
	"github.com/danielhkuo/quickly-annotate/quota"
	"github.com/puzpuzpuz/xsync/v4"
)

// DefaultMaxAttempts bounds how often a commit is retried after losing a slot.
const DefaultMaxAttempts = 5

// Answer keys checked by the age gate, in order.
var birthDateFields = []string{"birthDate", "birth_date"}

// Engine assigns allocation units to participant sessions.
type Engine struct {
	db          *sql.DB
	metrics     metrics.Collector
	events      events.Publisher
	settings    *xsync.Map[string, cachedSettings]
	maxAttempts int
	now         func() time.Time
}

type cachedSettings struct {
	version  int
	settings quota.Settings
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics collector. Defaults to metrics.Nop.
func WithMetrics(c metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithEvents sets the event publisher. Defaults to events.Nop.
func WithEvents(p events.Publisher) Option {
	return func(e *Engine) {
		e.events = p
	}
}

// WithMaxAttempts sets the commit retry bound. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(db *sql.DB, opts ...Option) *Engine {
	e := &Engine{
		db:          db,
		metrics:     metrics.Nop{},
		events:      events.Nop{},
		settings:    xsync.NewMap[string, cachedSettings](),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the parsed quota settings of a form, cached per settings version.
func (e *Engine) Settings(form models.Form) (quota.Settings, error) {
	if c, ok := e.settings.Load(form.ID); ok && c.version == form.SettingsVersion {
		return c.settings, nil
	}

	s, err := quota.ParseSettings(form.QuotaSettings)
	if err != nil {
		return quota.Settings{}, fmt.Errorf("invalid quota settings on form %s: %w", form.ID, err)
	}
	e.settings.Store(form.ID, cachedSettings{version: form.SettingsVersion, settings: s})
	return s, nil
}

// Invalidate drops the cached settings of a form.
func (e *Engine) Invalidate(formID string) {
	e.settings.Delete(formID)
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// Assign runs the assignment flow for one session: resume a stored outcome,
// or gate on age, classify, pick eligible units and commit them atomically.
// Screen-outs are returned as results, never as errors.
func (e *Engine) Assign(ctx context.Context, formID, token string, answers map[string]string) (models.AssignmentResult, error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveAssignDuration(time.Since(start).Seconds())
	}()

	if token == "" {
		return models.AssignmentResult{}, ErrMissingSessionToken
	}

	form, err := LoadForm(ctx, e.db, formID)
	if err != nil {
		return models.AssignmentResult{}, err
	}
	sess, err := LoadSession(ctx, e.db, formID, token)
	if err != nil {
		return models.AssignmentResult{}, err
	}

	if res, err := e.Resume(ctx, form, sess); err != nil || res != nil {
		if res != nil {
			e.metrics.RecordAssignment(metrics.OutcomeResumed)
			return *res, nil
		}
		return models.AssignmentResult{}, err
	}

	settings, err := e.Settings(form)
	if err != nil {
		return models.AssignmentResult{}, err
	}

	// Validate before anything is written
	underAge, err := quota.IsUnderAge(birthDate(answers), form.MinimumAge, e.clock())
	if err != nil {
		return models.AssignmentResult{}, err
	}

	if answers == nil {
		answers = map[string]string{}
	}
	sess, err = e.recordAnswers(ctx, sess, answers)
	if err == errSessionMoved {
		return e.settled(ctx, form, token)
	}
	if err != nil {
		return models.AssignmentResult{}, err
	}

	if underAge {
		return e.screenOut(ctx, form, sess, models.ReasonUnderAge, "", nil, nil)
	}

	group, ok := quota.Classify(answers, settings)
	if !ok {
		return e.screenOut(ctx, form, sess, models.ReasonNoMatchingGroup, "", nil, nil)
	}

	g, _ := settings.Group(group)
	candidates, err := FindEligibleUnits(ctx, e.db, form.ID, group, form.AssignmentStrategy, settings)
	if err != nil {
		return models.AssignmentResult{}, err
	}

	return e.assignFrom(ctx, form, sess, group, g.Target, candidates)
}

// assignFrom picks from candidates and commits, dropping each unit whose slot
// was lost and retrying up to maxAttempts times.
func (e *Engine) assignFrom(ctx context.Context, form models.Form, sess models.Session, group string, target int, candidates []models.AllocationUnit) (models.AssignmentResult, error) {
	need := unitsPerSession(form)
	for attempt := 0; attempt < e.maxAttempts && len(candidates) >= need; attempt++ {
		picked := pick(candidates, need)

		lost, res, err := e.commit(ctx, sess, group, target, picked)
		if err == errSessionMoved {
			return e.settled(ctx, form, sess.Token)
		}
		if err != nil {
			return models.AssignmentResult{}, err
		}
		if lost == "" {
			e.metrics.RecordAssignment(metrics.OutcomeAssigned)
			return res, nil
		}

		e.metrics.RecordCommitConflict()
		slog.Debug("assignment slot lost, retrying",
			"form_id", form.ID, "session_id", sess.ID, "unit_id", lost, "attempt", attempt+1)
		candidates = without(candidates, lost)
	}

	available, required := len(candidates), form.ArticlesPerSession
	return e.screenOut(ctx, form, sess, models.ReasonQuotaFull, group, &available, &required)
}

// unitsPerSession is how many units one session takes.
func unitsPerSession(form models.Form) int {
	if form.AssignmentStrategy == models.StrategyJobSet {
		return 1
	}
	return max(form.ArticlesPerSession, 1)
}

// pick chooses n distinct units uniformly at random.
func pick(units []models.AllocationUnit, n int) []models.AllocationUnit {
	shuffled := make([]models.AllocationUnit, len(units))
	copy(shuffled, units)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

func without(units []models.AllocationUnit, unitID string) []models.AllocationUnit {
	out := make([]models.AllocationUnit, 0, len(units))
	for _, u := range units {
		if u.UnitID() != unitID {
			out = append(out, u)
		}
	}
	return out
}

func birthDate(answers map[string]string) string {
	for _, key := range birthDateFields {
		if v := answers[key]; v != "" {
			return v
		}
	}
	return ""
}

// recordAnswers stores the submitted answers and moves the session to demographics.
func (e *Engine) recordAnswers(ctx context.Context, sess models.Session, answers map[string]string) (models.Session, error) {
	encoded, err := marshalAnswers(answers)
	if err != nil {
		return sess, err
	}

	now := e.clock()
	res, err := e.db.ExecContext(ctx, `
		UPDATE participant_session
		SET demographic_answers = $1, status = $2, last_activity_at = $3
		WHERE id = $4 AND status IN ($5, $6)
	`, encoded, models.StatusDemographics, now, sess.ID, models.StatusStarted, models.StatusDemographics)
	if err != nil {
		return sess, fmt.Errorf("failed to record answers: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return sess, fmt.Errorf("failed to record answers: %w", err)
	} else if n == 0 {
		return sess, errSessionMoved
	}

	sess.DemographicAnswers = answers
	sess.Status = models.StatusDemographics
	sess.LastActivityAt = now
	return sess, nil
}

// screenOut persists a terminal negative outcome.
func (e *Engine) screenOut(ctx context.Context, form models.Form, sess models.Session, reason, group string, available, required *int) (models.AssignmentResult, error) {
	now := e.clock()
	var availableCount sql.NullInt64
	if available != nil && required != nil {
		availableCount = sql.NullInt64{Int64: int64(*available), Valid: true}
		sess.RequiredArticleCount = *required
	}
	res, err := e.db.ExecContext(ctx, `
		UPDATE participant_session
		SET status = $1, screen_out_reason = $2, demographic_group = $3, last_activity_at = $4,
		    available_count = $5, required_article_count = $6
		WHERE id = $7 AND status IN ($8, $9)
	`, models.StatusScreenedOut, reason, nullString(group), now, availableCount, sess.RequiredArticleCount,
		sess.ID, models.StatusStarted, models.StatusDemographics)
	if err != nil {
		return models.AssignmentResult{}, fmt.Errorf("failed to screen out session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.AssignmentResult{}, fmt.Errorf("failed to screen out session: %w", err)
	} else if n == 0 {
		return e.settled(ctx, form, sess.Token)
	}

	sess.Status = models.StatusScreenedOut
	sess.ScreenOutReason = &reason
	if group != "" {
		sess.DemographicGroup = &group
	}
	if availableCount.Valid {
		sess.AvailableCount = available
	}
	sess.LastActivityAt = now

	result := screenedOutResult(form, sess)

	e.metrics.RecordAssignment(reason)
	e.publish(ctx, events.Event{
		Type:      events.TypeScreenedOut,
		FormID:    form.ID,
		SessionID: sess.ID,
		Group:     group,
		Reason:    reason,
		At:        now,
	})
	slog.Info("session screened out", "form_id", form.ID, "session_id", sess.ID, "reason", reason, "group", group)

	return result, nil
}

// settled re-reads a session a concurrent request has moved on and returns
// the outcome that request stored.
func (e *Engine) settled(ctx context.Context, form models.Form, token string) (models.AssignmentResult, error) {
	sess, err := LoadSession(ctx, e.db, form.ID, token)
	if err != nil {
		return models.AssignmentResult{}, err
	}
	res, err := e.Resume(ctx, form, sess)
	if err != nil {
		return models.AssignmentResult{}, err
	}
	if res == nil {
		return models.AssignmentResult{}, fmt.Errorf("session %s: %w", sess.ID, errSessionMoved)
	}
	e.metrics.RecordAssignment(metrics.OutcomeResumed)
	return *res, nil
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish event", "type", ev.Type, "session_id", ev.SessionID, "error", err)
	}
}

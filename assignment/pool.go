// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"fmt"

	"github.com/danielhkuo/quickly-annotate/models"
	"github.com/danielhkuo/quickly-annotate/quota"
)

// FindEligibleUnits returns the units of a form that still have room for group.
// The result is a snapshot; the reservation in commit is what enforces targets.
func FindEligibleUnits(ctx context.Context, q Queryer, formID, group, strategy string, s quota.Settings) ([]models.AllocationUnit, error) {
	units, err := LoadUnits(ctx, q, formID, strategy)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.AllocationUnit, 0, len(units))
	for _, u := range units {
		if quota.HasCapacity(s, group, u.Quota().Reserved) {
			eligible = append(eligible, u)
		}
	}
	return eligible, nil
}

// LoadUnits returns every allocation unit of a form for the given strategy,
// with its counters.
func LoadUnits(ctx context.Context, q Queryer, formID, strategy string) ([]models.AllocationUnit, error) {
	counts, err := loadCounts(ctx, q, formID)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case models.StrategyIndividual:
		return loadIndividualArticles(ctx, q, formID, counts)
	case models.StrategyJobSet:
		return loadJobSets(ctx, q, formID, counts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func loadCounts(ctx context.Context, q Queryer, formID string) (map[string]models.QuotaCounts, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT unit_id, group_name, reserved, completed
		FROM unit_quota WHERE form_id = $1
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit quotas: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]models.QuotaCounts)
	for rows.Next() {
		var unitID, group string
		var reserved, completed int
		if err := rows.Scan(&unitID, &group, &reserved, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan unit quota: %w", err)
		}
		c, ok := counts[unitID]
		if !ok {
			c = newCounts()
			counts[unitID] = c
		}
		c.Reserved[group] = reserved
		c.Completed[group] = completed
	}
	return counts, rows.Err()
}

func countsFor(counts map[string]models.QuotaCounts, unitID string) models.QuotaCounts {
	if c, ok := counts[unitID]; ok {
		return c
	}
	return newCounts()
}

func newCounts() models.QuotaCounts {
	return models.QuotaCounts{Reserved: map[string]int{}, Completed: map[string]int{}}
}

func loadIndividualArticles(ctx context.Context, q Queryer, formID string, counts map[string]models.QuotaCounts) ([]models.AllocationUnit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, short_id, content
		FROM article
		WHERE form_id = $1 AND job_set_id IS NULL
		ORDER BY position, id
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var units []models.AllocationUnit
	for rows.Next() {
		a := &models.IndividualArticle{}
		if err := rows.Scan(&a.ID, &a.ShortID, &a.Text); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a.Counts = countsFor(counts, a.ID)
		units = append(units, a)
	}
	return units, rows.Err()
}

// loadJobSets loads every job set of a form with its members in one query.
func loadJobSets(ctx context.Context, q Queryer, formID string, counts map[string]models.QuotaCounts) ([]models.AllocationUnit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT j.id, j.short_id, a.id, a.short_id, a.content
		FROM job_set j
		JOIN article a ON a.job_set_id = j.id
		WHERE j.form_id = $1
		ORDER BY j.short_id, j.id, a.position
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job sets: %w", err)
	}
	defer rows.Close()

	sets, err := scanJobSets(rows)
	if err != nil {
		return nil, err
	}

	units := make([]models.AllocationUnit, len(sets))
	for i, js := range sets {
		js.Counts = countsFor(counts, js.ID)
		units[i] = js
	}
	return units, nil
}

// scanJobSets folds (set, article) rows ordered by set into job sets.
func scanJobSets(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.JobSet, error) {
	var sets []*models.JobSet
	var current *models.JobSet
	for rows.Next() {
		var setID, setShortID string
		var a models.Article
		if err := rows.Scan(&setID, &setShortID, &a.ID, &a.ShortID, &a.Text); err != nil {
			return nil, fmt.Errorf("failed to scan job set article: %w", err)
		}
		if current == nil || current.ID != setID {
			current = &models.JobSet{ID: setID, ShortID: setShortID}
			sets = append(sets, current)
		}
		current.Articles = append(current.Articles, a)
	}
	return sets, rows.Err()
}

// loadAssignedUnits re-reads the units a session holds, in the order they
// were handed out.
func loadAssignedUnits(ctx context.Context, q Queryer, sessionID, kind string) ([]models.AllocationUnit, error) {
	switch kind {
	case models.UnitIndividual:
		rows, err := q.QueryContext(ctx, `
			SELECT a.id, a.short_id, a.content
			FROM session_unit su
			JOIN article a ON a.id = su.unit_id
			WHERE su.session_id = $1
			ORDER BY su.position
		`, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to query assigned articles: %w", err)
		}
		defer rows.Close()

		var units []models.AllocationUnit
		for rows.Next() {
			a := &models.IndividualArticle{Counts: newCounts()}
			if err := rows.Scan(&a.ID, &a.ShortID, &a.Text); err != nil {
				return nil, fmt.Errorf("failed to scan assigned article: %w", err)
			}
			units = append(units, a)
		}
		return units, rows.Err()

	case models.UnitJobSet:
		rows, err := q.QueryContext(ctx, `
			SELECT j.id, j.short_id, a.id, a.short_id, a.content
			FROM session_unit su
			JOIN job_set j ON j.id = su.unit_id
			JOIN article a ON a.job_set_id = j.id
			WHERE su.session_id = $1
			ORDER BY su.position, a.position
		`, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to query assigned job set: %w", err)
		}
		defer rows.Close()

		sets, err := scanJobSets(rows)
		if err != nil {
			return nil, err
		}
		units := make([]models.AllocationUnit, len(sets))
		for i, js := range sets {
			js.Counts = newCounts()
			units[i] = js
		}
		return units, nil

	default:
		return nil, fmt.Errorf("%w kind %q", errUnknownUnit, kind)
	}
}

// articleCount is the number of articles a unit hands to a participant.
func articleCount(u models.AllocationUnit) (int, error) {
	switch u := u.(type) {
	case *models.IndividualArticle:
		return 1, nil
	case *models.JobSet:
		return len(u.Articles), nil
	default:
		return 0, fmt.Errorf("%w: %T", errUnknownUnit, u)
	}
}

// articleViews flattens units into the participant-facing article list.
func articleViews(units []models.AllocationUnit) ([]models.ArticleView, error) {
	var views []models.ArticleView
	for _, u := range units {
		switch u := u.(type) {
		case *models.IndividualArticle:
			views = append(views, u.View())
		case *models.JobSet:
			views = append(views, u.ArticleViews()...)
		default:
			return nil, fmt.Errorf("%w: %T", errUnknownUnit, u)
		}
	}
	return views, nil
}

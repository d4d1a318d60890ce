// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assignment

import (
	"context"
	"fmt"

	"github.com/danielhkuo/quickly-annotate/models"
)

// Resume returns the outcome already stored on a session, or nil when the
// session has none yet. Assigned units are re-read by their stored IDs so
// the participant sees current article text.
func (e *Engine) Resume(ctx context.Context, form models.Form, sess models.Session) (*models.AssignmentResult, error) {
	switch sess.Status {
	case models.StatusAnnotating, models.StatusCompleted:
		if sess.AssignedKind == nil {
			return nil, fmt.Errorf("session %s is %s without an assignment", sess.ID, sess.Status)
		}

		units, err := loadAssignedUnits(ctx, e.db, sess.ID, *sess.AssignedKind)
		if err != nil {
			return nil, err
		}
		articles, err := articleViews(units)
		if err != nil {
			return nil, err
		}

		required := sess.RequiredArticleCount
		res := &models.AssignmentResult{
			Assigned: true,
			Resumed:  true,
			Articles: articles,
			Required: &required,
			Session:  sess.View(),
		}
		if sess.DemographicGroup != nil {
			res.DemographicGroup = *sess.DemographicGroup
		}
		return res, nil

	case models.StatusScreenedOut:
		res := screenedOutResult(form, sess)
		res.Resumed = true
		return &res, nil

	case models.StatusExpired:
		return nil, ErrSessionExpired

	default:
		return nil, nil
	}
}

func screenedOutResult(form models.Form, sess models.Session) models.AssignmentResult {
	res := models.AssignmentResult{Session: sess.View()}
	if sess.ScreenOutReason != nil {
		res.Reason = *sess.ScreenOutReason
	}
	if sess.DemographicGroup != nil {
		res.DemographicGroup = *sess.DemographicGroup
	}
	if form.ScreenOutURL != nil {
		res.RedirectURL = *form.ScreenOutURL
	}
	// Set only for quota_full.
	if sess.AvailableCount != nil {
		available, required := *sess.AvailableCount, sess.RequiredArticleCount
		res.AvailableCount = &available
		res.Required = &required
	}
	return res
}

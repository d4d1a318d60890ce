// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielhkuo/quickly-annotate/assignment"
	"github.com/danielhkuo/quickly-annotate/models"
	"github.com/danielhkuo/quickly-annotate/quota"
	"github.com/danielhkuo/quickly-annotate/testutil"
)

func assign(t *testing.T, handler *AssignmentHandler, formID, token string, answers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body := models.AssignRequest{SessionToken: token, DemographicAnswers: answers}
	req := testutil.MakeRequest("POST", "/forms/"+formID+"/assign", body, nil)
	req.SetPathValue("id", formID)
	w := httptest.NewRecorder()
	handler.Assign(w, req)
	return w
}

func complete(t *testing.T, handler *AssignmentHandler, formID, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := testutil.MakeRequest("POST", "/forms/"+formID+"/complete", models.SessionTokenRequest{SessionToken: token}, nil)
	req.SetPathValue("id", formID)
	w := httptest.NewRecorder()
	handler.Complete(w, req)
	return w
}

func TestAssign_Assigned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewAssignmentHandler(assignment.NewEngine(db))
	formID := testutil.CreateTestForm(t, db, models.StrategyIndividual, 2, testutil.EthnicitySettings(1))
	testutil.ImportTestArticles(t, db, formID, 2)
	token := testutil.StartTestSession(t, db, formID)

	w := assign(t, handler, formID, token, map[string]string{"ethnicity": "Nederlands", "birthDate": "1990-05-01"})
	testutil.AssertStatus(t, w, http.StatusOK)

	var result models.AssignmentResult
	testutil.AssertJSON(t, w, &result)

	if !result.Assigned || len(result.Articles) != 2 {
		t.Fatalf("Expected 2 assigned articles, got %+v", result)
	}
	if result.DemographicGroup != "dutch" {
		t.Errorf("Expected group dutch, got %s", result.DemographicGroup)
	}
	if result.Session.Status != models.StatusAnnotating {
		t.Errorf("Expected session annotating, got %s", result.Session.Status)
	}
	for _, a := range result.Articles {
		if a.Text == "" || a.ShortID == "" {
			t.Errorf("Expected article text and short_id, got %+v", a)
		}
	}

	// Asking again returns the same articles
	w = assign(t, handler, formID, token, map[string]string{"ethnicity": "Turks"})
	testutil.AssertStatus(t, w, http.StatusOK)

	var again models.AssignmentResult
	testutil.AssertJSON(t, w, &again)
	if !again.Resumed || again.DemographicGroup != "dutch" || len(again.Articles) != 2 {
		t.Errorf("Expected resumed dutch assignment, got %+v", again)
	}
}

func TestAssign_ScreenOutResponses(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewAssignmentHandler(assignment.NewEngine(db))

	screenOutURL := "https://panel.example/out"
	formID := testutil.CreateTestForm(t, db, models.StrategyIndividual, 2, testutil.EthnicitySettings(1))
	db.Exec(`UPDATE form SET screen_out_url = $1 WHERE id = $2`, screenOutURL, formID)
	testutil.ImportTestArticles(t, db, formID, 1)

	tests := []struct {
		name      string
		answers   map[string]string
		reason    string
		available bool
	}{
		{"under age", map[string]string{"ethnicity": "Nederlands", "birthDate": "2020-01-01"}, models.ReasonUnderAge, false},
		{"no matching group", map[string]string{"ethnicity": "Belgisch"}, models.ReasonNoMatchingGroup, false},
		{"not enough articles", map[string]string{"ethnicity": "Turks"}, models.ReasonQuotaFull, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := testutil.StartTestSession(t, db, formID)

			w := assign(t, handler, formID, token, tt.answers)
			testutil.AssertStatus(t, w, http.StatusConflict)

			var result models.AssignmentResult
			testutil.AssertJSON(t, w, &result)

			if result.Assigned || result.Reason != tt.reason {
				t.Errorf("Expected screen-out %s, got %+v", tt.reason, result)
			}
			if result.RedirectURL != screenOutURL {
				t.Errorf("Expected redirect %s, got %s", screenOutURL, result.RedirectURL)
			}
			if tt.available {
				if result.AvailableCount == nil || *result.AvailableCount != 1 {
					t.Errorf("Expected available_count 1, got %v", result.AvailableCount)
				}
				if result.Required == nil || *result.Required != 2 {
					t.Errorf("Expected required 2, got %v", result.Required)
				}
			}
			if got := testutil.SessionStatus(t, db, token); got != models.StatusScreenedOut {
				t.Errorf("Expected session screened_out, got %s", got)
			}
		})
	}
}

func TestAssign_Errors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewAssignmentHandler(assignment.NewEngine(db))
	formID := testutil.CreateTestForm(t, db, models.StrategyIndividual, 1, testutil.EthnicitySettings(1))
	testutil.ImportTestArticles(t, db, formID, 1)
	token := testutil.StartTestSession(t, db, formID)
	expiredToken := testutil.StartTestSession(t, db, formID)
	db.Exec(`UPDATE participant_session SET status = $1 WHERE session_token = $2`, models.StatusExpired, expiredToken)

	tests := []struct {
		name     string
		formID   string
		token    string
		answers  map[string]string
		expected int
	}{
		{"missing token", formID, "", map[string]string{"ethnicity": "Turks"}, http.StatusBadRequest},
		{"invalid birth date", formID, token, map[string]string{"ethnicity": "Turks", "birth_date": "31/31/2000"}, http.StatusBadRequest},
		{"unknown form", "missing", token, map[string]string{"ethnicity": "Turks"}, http.StatusNotFound},
		{"unknown session", formID, "nope", map[string]string{"ethnicity": "Turks"}, http.StatusNotFound},
		{"expired session", formID, expiredToken, map[string]string{"ethnicity": "Turks"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := assign(t, handler, tt.formID, tt.token, tt.answers)
			testutil.AssertStatus(t, w, tt.expected)
		})
	}

	// The invalid birth date left nothing behind
	if got := testutil.SessionStatus(t, db, token); got != models.StatusStarted {
		t.Errorf("Expected session to stay started, got %s", got)
	}
}

func TestAssign_InvalidJSON(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewAssignmentHandler(assignment.NewEngine(db))

	req := httptest.NewRequest("POST", "/forms/f/assign", strings.NewReader("{not json"))
	req.SetPathValue("id", "f")
	w := httptest.NewRecorder()
	handler.Assign(w, req)

	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestComplete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	handler := NewAssignmentHandler(assignment.NewEngine(db))
	formID := testutil.CreateTestForm(t, db, models.StrategyIndividual, 1, testutil.EthnicitySettings(1))
	articleIDs := testutil.ImportTestArticles(t, db, formID, 1)

	token := testutil.StartTestSession(t, db, formID)
	unassigned := testutil.StartTestSession(t, db, formID)

	w := assign(t, handler, formID, token, map[string]string{"ethnicity": "Surinaams"})
	testutil.AssertStatus(t, w, http.StatusOK)

	// Nothing to complete yet
	w = complete(t, handler, formID, unassigned)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = complete(t, handler, formID, token)
	testutil.AssertStatus(t, w, http.StatusOK)

	var view models.SessionView
	testutil.AssertJSON(t, w, &view)
	if view.Status != models.StatusCompleted || view.CompletedAt == nil {
		t.Errorf("Expected completed session view, got %+v", view)
	}

	// A second completion does not count twice
	w = complete(t, handler, formID, token)
	testutil.AssertStatus(t, w, http.StatusOK)

	reserved, completed := testutil.QuotaCount(t, db, articleIDs[0], "minority")
	if reserved != 1 || completed != 1 {
		t.Errorf("Expected reserved=1 completed=1, got %d/%d", reserved, completed)
	}

	w = complete(t, handler, formID, "")
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestWriteEngineError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		errText string
		message string
	}{
		{"missing token", assignment.ErrMissingSessionToken, http.StatusBadRequest, "Bad Request", "session_token is required"},
		{"wrapped birth date", fmt.Errorf("answer birthDate: %w", quota.ErrInvalidBirthDate), http.StatusBadRequest, "Bad Request", "Invalid birth date"},
		{"form", assignment.ErrFormNotFound, http.StatusNotFound, "Not Found", "Form not found"},
		{"wrapped session", fmt.Errorf("session abc: %w", assignment.ErrSessionNotFound), http.StatusNotFound, "Not Found", "Session not found"},
		{"expired", assignment.ErrSessionExpired, http.StatusConflict, "Conflict", "Session expired"},
		{"nothing to complete", assignment.ErrNotAssigned, http.StatusConflict, "Conflict", "Session has no assignment to complete"},
		{"unexpected", errors.New("pq: connection reset by peer"), http.StatusInternalServerError, "Internal Server Error", "Internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeEngineError(w, tt.err)

			testutil.AssertStatus(t, w, tt.status)

			var resp models.ErrorResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Error != tt.errText || resp.Message != tt.message {
				t.Errorf("Expected %q/%q, got %q/%q", tt.errText, tt.message, resp.Error, resp.Message)
			}
			if strings.Contains(resp.Message, "pq:") {
				t.Errorf("Driver error leaked into response: %s", resp.Message)
			}
		})
	}
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-annotate/assignment"
	"github.com/danielhkuo/quickly-annotate/models"
	"github.com/danielhkuo/quickly-annotate/testutil"
)

// TestFullAnnotationWorkflow tests the complete end-to-end workflow:
// 1. Create a job_set form with quota settings
// 2. Import articles into job sets
// 3. Participants start sessions
// 4. Two participants fill both sets, a third is screened out
// 5. One participant completes, one goes silent
// 6. The sweep expires the silent session and frees its set
// 7. A new participant gets the freed set
// 8. Verify quota status
func TestFullAnnotationWorkflow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer db.Close()

	cfg := testutil.GetTestConfig()
	engine := assignment.NewEngine(db)
	formHandler := NewFormHandler(db, engine)
	sessionHandler := NewSessionHandler(db, cfg, engine)
	assignmentHandler := NewAssignmentHandler(engine)

	// Step 1: Create a form
	createReq := models.CreateFormRequest{
		Title:              "Integration Test Form",
		AssignmentStrategy: models.StrategyJobSet,
		ArticlesPerSession: 2,
		SessionTimeoutMins: 30,
		QuotaSettings:      json.RawMessage(testutil.EthnicitySettings(1)),
	}
	req := testutil.MakeRequest("POST", "/forms", createReq, nil)
	w := httptest.NewRecorder()
	formHandler.CreateForm(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Step 1 - Create form failed: %d - %s", w.Code, w.Body.String())
	}

	var createResp models.CreateFormResponse
	json.NewDecoder(w.Body).Decode(&createResp)
	formID := createResp.FormID
	t.Logf("Step 1 - Created form: %s", formID)

	// Step 2: Import 4 articles, giving 2 job sets
	w = importArticles(t, formHandler, formID, models.ImportArticlesRequest{Records: records("N1", "N2", "N3", "N4")})
	if w.Code != http.StatusCreated {
		t.Fatalf("Step 2 - Import failed: %d - %s", w.Code, w.Body.String())
	}

	var importResp models.ImportArticlesResponse
	json.NewDecoder(w.Body).Decode(&importResp)
	if importResp.JobSets != 2 {
		t.Fatalf("Step 2 - Expected 2 job sets, got %d", importResp.JobSets)
	}
	t.Logf("Step 2 - Imported %d articles in %d job sets", importResp.Articles, importResp.JobSets)

	// Step 3: Start sessions
	startSession := func() string {
		req := testutil.MakeRequest("POST", "/forms/"+formID+"/sessions", nil, nil)
		req.SetPathValue("id", formID)
		w := httptest.NewRecorder()
		sessionHandler.StartSession(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Step 3 - Start session failed: %d - %s", w.Code, w.Body.String())
		}
		var resp models.StartSessionResponse
		json.NewDecoder(w.Body).Decode(&resp)
		return resp.SessionToken
	}

	alice, bob, carol := startSession(), startSession(), startSession()
	t.Log("Step 3 - Started 3 sessions")

	// Step 4: Alice and Bob take both sets, Carol finds nothing left
	dutch := map[string]string{"ethnicity": "Nederlands", "birthDate": "1985-03-14"}
	held := make(map[string]string)

	for name, token := range map[string]string{"alice": alice, "bob": bob} {
		w := assign(t, assignmentHandler, formID, token, dutch)
		if w.Code != http.StatusOK {
			t.Fatalf("Step 4 - Assign %s failed: %d - %s", name, w.Code, w.Body.String())
		}
		var result models.AssignmentResult
		json.NewDecoder(w.Body).Decode(&result)
		if len(result.Articles) != 2 {
			t.Fatalf("Step 4 - Expected %s to get 2 articles, got %d", name, len(result.Articles))
		}
		held[name] = result.Articles[0].ShortID
	}
	if held["alice"] == held["bob"] {
		t.Fatalf("Step 4 - Alice and Bob got the same job set")
	}

	w = assign(t, assignmentHandler, formID, carol, dutch)
	if w.Code != http.StatusConflict {
		t.Fatalf("Step 4 - Expected Carol to be screened out, got %d - %s", w.Code, w.Body.String())
	}
	var carolResult models.AssignmentResult
	json.NewDecoder(w.Body).Decode(&carolResult)
	if carolResult.Reason != models.ReasonQuotaFull {
		t.Errorf("Step 4 - Expected quota_full, got %s", carolResult.Reason)
	}
	t.Log("Step 4 - Both sets taken, third participant screened out")

	// Step 5: Alice completes; Bob goes quiet
	w = complete(t, assignmentHandler, formID, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("Step 5 - Complete failed: %d - %s", w.Code, w.Body.String())
	}
	t.Log("Step 5 - Alice completed")

	// Step 6: Run the sweep past Bob's timeout
	expired, err := engine.ExpireStaleSessions(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Step 6 - Sweep failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("Step 6 - Expected 1 expired session, got %d", expired)
	}
	if got := testutil.SessionStatus(t, db, bob); got != models.StatusExpired {
		t.Errorf("Step 6 - Expected Bob expired, got %s", got)
	}
	if got := testutil.SessionStatus(t, db, alice); got != models.StatusCompleted {
		t.Errorf("Step 6 - Expected Alice to stay completed, got %s", got)
	}

	w = assign(t, assignmentHandler, formID, bob, dutch)
	if w.Code != http.StatusConflict {
		t.Errorf("Step 6 - Expected expired session to be refused, got %d", w.Code)
	}
	t.Logf("Step 6 - Expired %d session", expired)

	// Step 7: A newcomer gets Bob's set
	dave := startSession()
	w = assign(t, assignmentHandler, formID, dave, dutch)
	if w.Code != http.StatusOK {
		t.Fatalf("Step 7 - Assign after expiry failed: %d - %s", w.Code, w.Body.String())
	}
	var daveResult models.AssignmentResult
	json.NewDecoder(w.Body).Decode(&daveResult)
	if daveResult.Articles[0].ShortID != held["bob"] {
		t.Errorf("Step 7 - Expected the freed set starting with %s, got %s", held["bob"], daveResult.Articles[0].ShortID)
	}
	t.Log("Step 7 - Freed set reassigned")

	// Step 8: Check the counters
	req = testutil.MakeRequest("GET", "/forms/"+formID+"/quota", nil, nil)
	req.SetPathValue("id", formID)
	w = httptest.NewRecorder()
	formHandler.GetQuota(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Step 8 - Get quota failed: %d - %s", w.Code, w.Body.String())
	}

	var quotaResp models.QuotaStatusResponse
	json.NewDecoder(w.Body).Decode(&quotaResp)

	var totalReserved, totalCompleted int
	for _, u := range quotaResp.Units {
		if u.Reserved["dutch"] > 1 {
			t.Errorf("Step 8 - Unit %s over target: %d", u.ShortID, u.Reserved["dutch"])
		}
		if u.Remaining["dutch"] != 0 {
			t.Errorf("Step 8 - Unit %s should be full, has %d remaining", u.ShortID, u.Remaining["dutch"])
		}
		totalReserved += u.Reserved["dutch"]
		totalCompleted += u.Completed["dutch"]
	}
	if totalReserved != 2 || totalCompleted != 1 {
		t.Errorf("Step 8 - Expected 2 reserved and 1 completed, got %d and %d", totalReserved, totalCompleted)
	}
	t.Log("Step 8 - Quota counters verified")
}

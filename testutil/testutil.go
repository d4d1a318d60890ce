// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielhkuo/quickly-annotate/auth"
	"github.com/danielhkuo/quickly-annotate/cliparse"
	"github.com/danielhkuo/quickly-annotate/db"
	"github.com/danielhkuo/quickly-annotate/models"
)

// TestDBEnv names the variable that points tests at a PostgreSQL database
// instead of a throwaway SQLite file.
const TestDBEnv = "TEST_DATABASE_URL"

// SetupTestDB creates a fresh test database with the full schema
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if url := os.Getenv(TestDBEnv); url != "" {
		dbConn, err := sql.Open(db.DriverPostgres, url)
		if err != nil {
			t.Fatalf("Failed to open test database: %v", err)
		}

		// Clean up tables before each test
		if err := db.DropSchema(dbConn); err != nil {
			t.Fatalf("Failed to clean database: %v", err)
		}
		if err := db.CreateSchema(dbConn); err != nil {
			t.Fatalf("Failed to create schema: %v", err)
		}
		return dbConn
	}

	path := filepath.Join(t.TempDir(), "test.db")
	dbConn, err := sql.Open(db.DriverSQLite, db.SQLiteDSN(path))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// SQLite allows one writer; a single connection serializes transactions
	dbConn.SetMaxOpenConns(1)

	if err := db.CreateSchema(dbConn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return dbConn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:              3318,
		DatabaseURL:       "file:test.db",
		DatabaseType:      db.DriverSQLite,
		IPHashSalt:        "test-ip-salt",
		NATSSubject:       cliparse.DefaultNATSSubject,
		MaxAssignAttempts: cliparse.DefaultMaxAssignAttempts,
		SweepInterval:     cliparse.DefaultSweepInterval,
	}
}

// EthnicitySettings returns quota settings with a "dutch" and a "minority"
// group, each with the given per-unit target.
func EthnicitySettings(target int) string {
	return fmt.Sprintf(`{
		"version": 1,
		"group_by_field": "ethnicity",
		"groups": {
			"dutch": {"values": ["Nederlands"], "target": %d},
			"minority": {"values": ["Surinaams", "Turks", "Marokkaans"], "target": %d}
		}
	}`, target, target)
}

// CreateTestForm creates a form and returns its ID.
// strategy should be "individual" or "job_set".
func CreateTestForm(t *testing.T, dbConn *sql.DB, strategy string, articlesPerSession int, quotaSettings string) string {
	t.Helper()

	formID, _ := auth.GenerateID(16)
	_, err := dbConn.Exec(`
		INSERT INTO form (id, title, description, assignment_strategy, articles_per_session,
		                  session_timeout_mins, minimum_age, quota_settings, settings_version, created_at)
		VALUES ($1, 'Test Form', 'A test form', $2, $3, 60, 18, $4, 1, $5)
	`, formID, strategy, articlesPerSession, quotaSettings, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test form: %v", err)
	}

	return formID
}

// ImportTestArticles adds n individually assigned articles and returns their IDs
func ImportTestArticles(t *testing.T, dbConn *sql.DB, formID string, n int) []string {
	t.Helper()

	ids := make([]string, n)
	for i := range n {
		ids[i] = insertArticle(t, dbConn, formID, nil, fmt.Sprintf("A%03d", i+1), i)
	}
	return ids
}

// ImportTestJobSets adds sets job sets of size articles each and returns the job set IDs
func ImportTestJobSets(t *testing.T, dbConn *sql.DB, formID string, sets, size int) []string {
	t.Helper()

	ids := make([]string, sets)
	for s := range sets {
		setID, _ := auth.GenerateID(12)
		_, err := dbConn.Exec(`
			INSERT INTO job_set (id, form_id, short_id, batch_id, created_at)
			VALUES ($1, $2, $3, 'test-batch', $4)
		`, setID, formID, fmt.Sprintf("JS%03d", s+1), time.Now().UTC())
		if err != nil {
			t.Fatalf("Failed to create test job set: %v", err)
		}

		for i := range size {
			insertArticle(t, dbConn, formID, &setID, fmt.Sprintf("JS%03d-%d", s+1, i+1), i)
		}
		ids[s] = setID
	}
	return ids
}

func insertArticle(t *testing.T, dbConn *sql.DB, formID string, jobSetID *string, shortID string, position int) string {
	t.Helper()

	articleID, _ := auth.GenerateID(12)
	text := "Text of article " + shortID
	_, err := dbConn.Exec(`
		INSERT INTO article (id, form_id, job_set_id, short_id, content, content_hash, position, batch_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'test-batch', $8)
	`, articleID, formID, jobSetID, shortID, text, auth.ContentHash(shortID, text), position, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test article: %v", err)
	}
	return articleID
}

// StartTestSession creates a session in the started state and returns its token
func StartTestSession(t *testing.T, dbConn *sql.DB, formID string) string {
	t.Helper()

	sessionID, _ := auth.GenerateID(16)
	token, _ := auth.GenerateSessionToken()
	now := time.Now().UTC()
	_, err := dbConn.Exec(`
		INSERT INTO participant_session (id, form_id, session_token, status, started_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sessionID, formID, token, models.StatusStarted, now, now)
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return token
}

// QuotaCount returns the reserved and completed counters of a unit for a group
func QuotaCount(t *testing.T, dbConn *sql.DB, unitID, group string) (reserved, completed int) {
	t.Helper()

	err := dbConn.QueryRow(`
		SELECT reserved, completed FROM unit_quota WHERE unit_id = $1 AND group_name = $2
	`, unitID, group).Scan(&reserved, &completed)
	if err == sql.ErrNoRows {
		return 0, 0
	}
	if err != nil {
		t.Fatalf("Failed to read unit quota: %v", err)
	}
	return reserved, completed
}

// SessionStatus returns the stored status of the session holding token
func SessionStatus(t *testing.T, dbConn *sql.DB, token string) string {
	t.Helper()

	var status string
	err := dbConn.QueryRow(`
		SELECT status FROM participant_session WHERE session_token = $1
	`, token).Scan(&status)
	if err != nil {
		t.Fatalf("Failed to read session status: %v", err)
	}
	return status
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/quickly-annotate/assignment"
	"github.com/danielhkuo/quickly-annotate/cliparse"
	"github.com/danielhkuo/quickly-annotate/handlers"
	"github.com/danielhkuo/quickly-annotate/middleware"
)

// NewRouter registers every endpoint. metricsHandler serves GET /metrics and
// may be nil, in which case the route is not registered.
func NewRouter(db *sql.DB, cfg cliparse.Config, engine *assignment.Engine, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	formHandler := handlers.NewFormHandler(db, engine)
	sessionHandler := handlers.NewSessionHandler(db, cfg, engine)
	assignmentHandler := handlers.NewAssignmentHandler(engine)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// Form management
	mux.HandleFunc("POST /forms", middleware.WithLogging(formHandler.CreateForm))
	mux.HandleFunc("GET /forms/{id}", middleware.WithLogging(formHandler.GetForm))
	mux.HandleFunc("PUT /forms/{id}/quota-settings", middleware.WithLogging(formHandler.UpdateQuotaSettings))
	mux.HandleFunc("POST /forms/{id}/articles", middleware.WithLogging(formHandler.ImportArticles))
	mux.HandleFunc("GET /forms/{id}/quota", middleware.WithLogging(formHandler.GetQuota))

	// Participant sessions
	mux.HandleFunc("POST /forms/{id}/sessions", middleware.WithLogging(sessionHandler.StartSession))
	mux.HandleFunc("GET /forms/{id}/sessions/{token}", middleware.WithLogging(sessionHandler.GetSession))
	mux.HandleFunc("POST /forms/{id}/sessions/{token}/heartbeat", middleware.WithLogging(sessionHandler.Heartbeat))

	// Assignment
	mux.HandleFunc("POST /forms/{id}/assign", middleware.WithLogging(assignmentHandler.Assign))
	mux.HandleFunc("POST /forms/{id}/complete", middleware.WithLogging(assignmentHandler.Complete))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quickly-annotate API v1"))
	})

	return mux
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Quickly Annotate API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, engine, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

# Endpoints

Health and metrics:

	GET /health
	GET /metrics

Form management:

	POST /forms                     - Create form
	GET  /forms/{id}                - Get form
	PUT  /forms/{id}/quota-settings - Replace quota settings
	POST /forms/{id}/articles       - Import articles
	GET  /forms/{id}/quota          - Per-unit quota counters

Participant sessions:

	POST /forms/{id}/sessions                   - Start session
	GET  /forms/{id}/sessions/{token}           - Session status
	POST /forms/{id}/sessions/{token}/heartbeat - Keep session alive

Assignment:

	POST /forms/{id}/assign   - Submit demographics, get articles
	POST /forms/{id}/complete - Finish annotating

Every API route is wrapped in middleware.WithLogging.
*/
package router

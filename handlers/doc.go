// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Quickly Annotate API.

# Handler Types

  - FormHandler: Form creation, quota settings, article import, quota status
  - SessionHandler: Participant sessions and heartbeats
  - AssignmentHandler: Assignment and completion

Handlers are created via constructor functions:

	formHandler := handlers.NewFormHandler(db, engine)
	assignmentHandler := handlers.NewAssignmentHandler(engine)

# Participant Flow

	POST /forms/{id}/sessions  → StartSession (returns session_token)
	POST /forms/{id}/assign    → Assign (200 with articles, or 409 screen-out)
	POST /forms/{id}/complete  → Complete

A screen-out is answered with 409 and the full result, so the client can
follow redirect_url. Repeating a request returns the stored outcome.

# Importing Articles

POST /forms/{id}/articles de-duplicates records by (short_id, text). On
job_set forms, records are chunked into sets of articles_per_session in
input order. replace=true is refused while any session holds an assignment.
*/
package handlers

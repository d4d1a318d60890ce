// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Quickly Annotate API server.

Quickly Annotate hands survey participants a set of news articles to
annotate. Every article (or job set of articles) has a per-group target, and
participants are only given units that still have room for their
demographic group.

# Starting the Server

The server reads CLI flags, environment variables, an optional .env file and
an optional YAML file, in that order:

	DATABASE_URL=annotate.db IP_HASH_SALT=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..."

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - IP_HASH_SALT (--ip-salt): Secret for hashing participant IPs

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - NATS_URL (--nats): publish assignment events to NATS
  - NATS_SUBJECT (--nats-subject): subject prefix (default: annotate.assignments)
  - MAX_ASSIGN_ATTEMPTS (--max-attempts): commit retries (default: 5)
  - SWEEP_INTERVAL (--sweep-interval): stale session sweep (default: 1m)
  - CONFIG_FILE (-c): YAML config file

# Architecture

  - assignment: the assignment engine, completion and the expiry sweep
  - quota: quota settings, classification and the age gate
  - handlers: HTTP request handlers (forms, sessions, assignment)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, request IDs, JSON helpers
  - models: Request/response and domain types
  - metrics: Prometheus collector
  - events: NATS publisher for assignment events
  - auth: ID, token and hash generation
  - db: Schema creation
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main

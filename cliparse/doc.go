// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL: PostgreSQL connection string or SQLite path (required)
  - DatabaseType: "sqlite" (default) or "postgres"
  - IPHashSalt: Secret for hashing participant IPs (required)
  - NATSURL: NATS server for assignment events (optional, events disabled when empty)
  - NATSSubject: Subject events are published on (default: annotate.assignments)
  - MaxAssignAttempts: Commit retries after a lost slot (default: 5)
  - SweepInterval: How often stale sessions are expired (default: 1m)

# CLI Flags

	-p              Server port
	-d              Database URL
	-t              Database type
	-nats           NATS URL
	-nats-subject   NATS subject
	-max-attempts   Commit attempts
	-sweep-interval Sweep interval
	-ip-salt        IP hash salt
	-c              YAML config file
	-env            dotenv file (default: .env)

# Environment Variables

Flags fall back to environment variables:

	PORT                → -p
	DATABASE_URL        → -d
	DATABASE_TYPE       → -t
	NATS_URL            → -nats
	NATS_SUBJECT        → -nats-subject
	MAX_ASSIGN_ATTEMPTS → -max-attempts
	SWEEP_INTERVAL      → -sweep-interval
	IP_HASH_SALT        → -ip-salt
	CONFIG_FILE         → -c

A .env file is loaded before the environment is read. Variables already set
in the environment win over the file.

# Config File

Anything still unset is taken from the YAML file, then from the defaults:

	port: 3318
	database:
	  url: file:annotate.db
	  type: sqlite
	ip_hash_salt: change-me
	nats:
	  url: nats://127.0.0.1:4222
	  subject: annotate.assignments
	assignment:
	  max_attempts: 5
	  sweep_interval: 1m

CLI flags take precedence over environment variables, which take precedence
over the file.

# Validation

ParseFlags returns an error if:

  - DATABASE_URL is missing
  - IP_HASH_SALT is missing
  - DATABASE_TYPE is not sqlite or postgres
  - MAX_ASSIGN_ATTEMPTS is below 1
  - the config file cannot be read or parsed

# Example

	// In main.go
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open(cfg.DatabaseType, dsn)
	// ...
	mux := router.NewRouter(db, cfg, engine, collector)
*/
package cliparse

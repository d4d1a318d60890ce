package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielhkuo/quickly-annotate/assignment"
	"github.com/danielhkuo/quickly-annotate/cliparse"
	"github.com/danielhkuo/quickly-annotate/db"
	"github.com/danielhkuo/quickly-annotate/events"
	"github.com/danielhkuo/quickly-annotate/metrics"
	"github.com/danielhkuo/quickly-annotate/middleware"
	"github.com/danielhkuo/quickly-annotate/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to the database
	dsn := cfg.DatabaseURL
	if cfg.DatabaseType == db.DriverSQLite {
		dsn = db.SQLiteDSN(dsn)
	}
	dbConn, err := sql.Open(cfg.DatabaseType, dsn)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// SQLite allows one writer at a time
	if cfg.DatabaseType == db.DriverSQLite {
		dbConn.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := dbConn.Ping(); err != nil {
		slog.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "driver", cfg.DatabaseType)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(reg, metrics.DefaultNamespace)

	// Assignment events
	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nats, err := events.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			slog.Error("nats connection failed", "error", err)
			os.Exit(1)
		}
		defer nats.Close()
		publisher = nats
		slog.Info("Publishing assignment events", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
	}

	engine := assignment.NewEngine(dbConn,
		assignment.WithMetrics(collector),
		assignment.WithEvents(publisher),
		assignment.WithMaxAttempts(cfg.MaxAssignAttempts),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.RunSweeper(ctx, cfg.SweepInterval)

	// Create router
	mux := router.NewRouter(dbConn, cfg, engine, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Create server
	server := http.Server{
		Handler: middleware.CORS(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		cancel()
		server.Close()
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the obligation settlement ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire queue, adapters, engine, notification dispatcher, service
  5. Configure HTTP router with prometheus metrics
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: ledger.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Drain the notification dispatcher
  4. Close database connection
  5. Exit

ENVIRONMENT:
  LOG_LEVEL  debug | info | warn | error (default: info)

SEE ALSO:
  - api/server.go: Router configuration
  - ledger/service.go: The operations behind the routes
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliyura/braverock-ledger/api"
	"github.com/aliyura/braverock-ledger/ledger"
	"github.com/aliyura/braverock-ledger/obligation"
	"github.com/aliyura/braverock-ledger/pkg/logging"
	"github.com/aliyura/braverock-ledger/pkg/metrics"
	"github.com/aliyura/braverock-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	flag.Parse()

	logging.Setup()
	log := slog.Default()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("failed to initialize database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire the settlement pipeline
	queue := ledger.NewQueue()
	dispatcher := ledger.NewDispatcher(ledger.LogSender{Log: log}, 2, 256, log)
	engine := ledger.NewEngine(store, obligation.Registry(), queue, dispatcher, log)
	collector := metrics.NewCollector()
	service := ledger.NewService(store, engine, queue, ledger.AllowAll{}, collector, log)

	// Create router
	handler := api.NewHandler(service)
	router := api.NewRouter(handler, collector.Handler())

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "err", err)
	}
	dispatcher.Close()

	log.Info("server stopped")
}

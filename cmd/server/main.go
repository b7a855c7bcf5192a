/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rewards engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire the redemption engine, ledger service, and session cache
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags override environment variables:
    -port    HTTP server port          (env PORT, default 8080)
    -db      SQLite database path      (env DATABASE_PATH, default rewards.db)
             Use ":memory:" for an in-memory database
    -demo    Enable scenario/reset endpoints (env DEMO_MODE)
    -audit-every  Consistency audit interval (default 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/rewards.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/rewards-engine/api"
	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/client"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/redemption"
	"github.com/warp/rewards-engine/store/sqlite"
)

const (
	sessionCacheSize = 1024
	sessionCacheTTL  = 10 * time.Minute
)

func main() {
	// .env is optional; flags and real env win.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "rewards.db"), "SQLite database path")
	demoMode := flag.Bool("demo", envStr("DEMO_MODE", "") != "", "enable scenario/reset endpoints")
	auditEvery := flag.Duration("audit-every", time.Hour, "consistency audit interval")
	catalogPath := flag.String("catalog", envStr("CATALOG_PATH", ""), "JSON catalog file to import on startup")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *catalogPath != "" {
		if err := catalog.LoadFile(context.Background(), *catalogPath, store); err != nil {
			log.Fatalf("Failed to import catalog: %v", err)
		}
		log.Printf("Imported catalog from %s", *catalogPath)
	}

	engine := redemption.NewEngine(store)
	svc := ledger.NewService(store)
	sessions := client.NewSessions(sessionCacheSize, sessionCacheTTL)

	handler := api.NewHandler(store, store, svc, engine, sessions)
	if *demoMode {
		handler.Demo = store
	}
	router := api.NewRouter(handler)

	auditor := api.NewAuditScheduler(engine)
	auditor.CheckInterval = *auditEvery
	auditor.Start()
	defer auditor.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

/*
auditor.go - Automated consistency audit scheduler

PURPOSE:
  Periodically runs the ownership/ledger consistency audit and logs any
  faults. With purchases committing both mutations in one storage
  transaction the audit should always come back clean; a fault means the
  stores were mutated outside the engine and someone must look.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Records the last run result for the admin endpoint and metrics
  - Never repairs automatically; detection only

CONFIGURATION:
  - CheckInterval: How often to audit (default: 1 hour)
  - Enabled: Whether the auditor is active (default: true)

USAGE:
  auditor := NewAuditScheduler(engine)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - handlers.go: Audit endpoint (manual audit)
  - redemption/engine.go: Engine.Audit
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/rewards-engine/redemption"
)

// AuditScheduler runs the consistency audit on a timer.
type AuditScheduler struct {
	Engine        *redemption.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun    time.Time
	lastFaults []redemption.Fault
}

// NewAuditScheduler creates a new scheduler.
func NewAuditScheduler(engine *redemption.Engine) *AuditScheduler {
	return &AuditScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Auditor] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Auditor] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[Auditor] Stopped")
	}
}

func (as *AuditScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.check()

	for {
		select {
		case <-as.ticker.C:
			as.check()
		case <-as.stop:
			return
		}
	}
}

func (as *AuditScheduler) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	faults, err := as.Engine.Audit(ctx)
	if err != nil {
		log.Printf("[Auditor] Audit failed: %v", err)
		return
	}

	as.mu.Lock()
	as.lastRun = time.Now()
	as.lastFaults = faults
	as.mu.Unlock()

	auditFaults.Set(float64(len(faults)))

	if len(faults) == 0 {
		return
	}
	log.Printf("[Auditor] %d consistency fault(s) detected", len(faults))
	for _, f := range faults {
		log.Printf("[Auditor] FAULT: %s", f)
	}
}

// RunNow triggers an immediate audit (for testing/admin).
func (as *AuditScheduler) RunNow() {
	as.check()
}

// LastResult returns the time and faults of the most recent run.
func (as *AuditScheduler) LastResult() (time.Time, []redemption.Fault) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.lastRun, as.lastFaults
}

package services

import (
	"context"
	"sync"
	"time"

	"github.com/yeremiapane/pos-integrity/utils"
)

// ReconciliationMonitor sweeps the store on a fixed interval. A tick that
// fires while the previous sweep is still running is skipped.
type ReconciliationMonitor struct {
	Service  *ReconciliationService
	StopChan chan struct{}
	Interval time.Duration

	mu      sync.Mutex
	running bool
	stopped sync.Once
}

func NewReconciliationMonitor(svc *ReconciliationService, interval time.Duration) *ReconciliationMonitor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ReconciliationMonitor{
		Service:  svc,
		StopChan: make(chan struct{}),
		Interval: interval,
	}
}

func (rm *ReconciliationMonitor) Start() {
	go func() {
		ticker := time.NewTicker(rm.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rm.Sweep()
			case <-rm.StopChan:
				return
			}
		}
	}()
	utils.InfoLogger.Infof("Reconciliation monitor started, interval %s", rm.Interval)
}

func (rm *ReconciliationMonitor) Stop() {
	rm.stopped.Do(func() { close(rm.StopChan) })
}

// Sweep runs one scheduled pass. It reports false when a pass was already in
// progress.
func (rm *ReconciliationMonitor) Sweep() bool {
	rm.mu.Lock()
	if rm.running {
		rm.mu.Unlock()
		utils.InfoLogger.Warn("Reconciliation sweep skipped, previous sweep still running")
		return false
	}
	rm.running = true
	rm.mu.Unlock()

	defer func() {
		rm.mu.Lock()
		rm.running = false
		rm.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), rm.Interval)
	defer cancel()

	if _, err := rm.Service.RunAll(ctx, TriggerSchedule); err != nil {
		utils.ErrorLogger.Errorf("Error recording scheduled reconciliation: %v", err)
	}
	return true
}

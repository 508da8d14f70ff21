// Package integrity sweeps the POS store for invariant violations and repairs
// the ones that have a deterministic fix. Everything else is reported for
// manual review and left untouched.
package integrity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/pos-integrity/metrics"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

const defaultLockTTL = 5 * time.Minute

// ErrUnknownCheck is returned by RunCheck for a name no check answers to.
var ErrUnknownCheck = fmt.Errorf("unknown integrity check: %w", utils.ErrNotFound)

type checkFunc func(ctx context.Context) (CheckResult, error)

type check struct {
	name string
	run  checkFunc
}

type Engine struct {
	db      *gorm.DB
	locker  Locker
	metrics *metrics.Metrics
	lockTTL time.Duration
	now     func() time.Time
	checks  []check
}

type Option func(*Engine)

// WithLocker replaces the default process-local locker.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.lockTTL = ttl }
}

// WithClock sets the time source used for timestamps and age based repairs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		locker:  NewMemoryLocker(),
		lockTTL: defaultLockTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	// order matters: statuses are repaired before totals are rebuilt
	e.checks = []check{
		{CheckTableOrderConsistency, e.checkTableOrderConsistency},
		{CheckOrderLineProduct, e.checkOrderLineProduct},
		{CheckDuplicateTableLabel, e.checkDuplicateTableLabel},
		{CheckOrderStatus, e.checkOrderStatus},
		{CheckTotals, e.checkTotals},
		{CheckTableGroupMembership, e.checkTableGroupMembership},
	}
	return e
}

// CheckNames lists the checks in the order RunAllChecks runs them.
func (e *Engine) CheckNames() []string {
	names := make([]string, 0, len(e.checks))
	for _, c := range e.checks {
		names = append(names, c.name)
	}
	return names
}

// RunAllChecks runs every check once. A check that fails or panics is
// reported as error and the remaining checks still run.
func (e *Engine) RunAllChecks(ctx context.Context) *Report {
	report := e.newReport()
	for _, c := range e.checks {
		report.add(e.runOne(ctx, c))
	}
	return report
}

// RunCheck runs a single check by name.
func (e *Engine) RunCheck(ctx context.Context, name string) (*Report, error) {
	for _, c := range e.checks {
		if c.name == name {
			report := e.newReport()
			report.add(e.runOne(ctx, c))
			return report, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCheck, name)
}

func (e *Engine) newReport() *Report {
	return &Report{
		RunID:        uuid.NewString(),
		Timestamp:    e.now().UTC(),
		Checks:       []CheckResult{},
		ManualReview: []ReviewItem{},
	}
}

func (e *Engine) runOne(ctx context.Context, c check) (res CheckResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			utils.ErrorLogger.Errorf("integrity check %s panicked: %v", c.name, r)
			res = CheckResult{
				Name:    c.name,
				Status:  StatusError,
				Message: "check aborted",
				Error:   fmt.Sprint(r),
			}
		}
		e.metrics.CheckFinished(res.Name, res.Status, res.FixedCount)
		utils.InfoLogger.WithFields(logrus.Fields{
			"check":  res.Name,
			"status": res.Status,
			"fixed":  res.FixedCount,
			"took":   time.Since(start).String(),
		}).Info("integrity check finished")
	}()

	release, ok, err := e.locker.TryLock(ctx, c.name, e.lockTTL)
	if err != nil {
		return CheckResult{Name: c.name, Status: StatusError, Message: "could not acquire check lock", Error: err.Error()}
	}
	if !ok {
		return CheckResult{Name: c.name, Status: StatusError, Message: "already running", Error: "check lock is held by another run"}
	}
	defer release()

	res, err = c.run(ctx)
	res.Name = c.name
	if err != nil {
		utils.ErrorLogger.Errorf("integrity check %s failed: %v", c.name, err)
		res.Status = StatusError
		res.Message = "check aborted"
		res.Error = err.Error()
	}
	return res
}

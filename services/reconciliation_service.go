package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/integrity"
	"github.com/yeremiapane/pos-integrity/kds"
	"github.com/yeremiapane/pos-integrity/metrics"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

// Triggers recorded on every run.
const (
	TriggerSchedule = "schedule"
	TriggerAdmin    = "admin"
	TriggerCLI      = "cli"
)

// ReportArchiver stores the full JSON report outside the database.
type ReportArchiver interface {
	PutReport(ctx context.Context, runID string, startedAt time.Time, body []byte) (string, error)
}

type Notifier interface {
	Publish(tenantID uint, event string, data interface{})
}

// ReconciliationService runs the integrity engine and keeps a history of
// every run. Archiving and notification failures are logged and never fail
// the run itself.
type ReconciliationService struct {
	DB       *gorm.DB
	engine   *integrity.Engine
	archiver ReportArchiver
	notifier Notifier
	metrics  *metrics.Metrics
}

type ServiceOption func(*ReconciliationService)

func WithArchiver(a ReportArchiver) ServiceOption {
	return func(s *ReconciliationService) { s.archiver = a }
}

func WithNotifier(n Notifier) ServiceOption {
	return func(s *ReconciliationService) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *ReconciliationService) { s.metrics = m }
}

func NewReconciliationService(db *gorm.DB, engine *integrity.Engine, opts ...ServiceOption) *ReconciliationService {
	s := &ReconciliationService{DB: db, engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckNames lists the checks the engine knows.
func (s *ReconciliationService) CheckNames() []string {
	return s.engine.CheckNames()
}

// RunAll runs every check and records the run. The repairs are already
// committed when the run is recorded, so a failure to record it is logged and
// the report is still returned.
func (s *ReconciliationService) RunAll(ctx context.Context, trigger string) (*integrity.Report, error) {
	started := time.Now()
	report := s.engine.RunAllChecks(ctx)
	s.finish(ctx, trigger, started, report)
	return report, nil
}

// RunCheck runs one check by name and records the run.
func (s *ReconciliationService) RunCheck(ctx context.Context, trigger, name string) (*integrity.Report, error) {
	started := time.Now()
	report, err := s.engine.RunCheck(ctx, name)
	if err != nil {
		return nil, err
	}
	s.finish(ctx, trigger, started, report)
	return report, nil
}

// finish records, archives and announces a run. None of these steps can undo
// the repairs, so their failures are logged rather than returned.
func (s *ReconciliationService) finish(ctx context.Context, trigger string, started time.Time, report *integrity.Report) {
	took := time.Since(started)
	s.metrics.RunFinished(trigger, took)

	utils.InfoLogger.Infof("Reconciliation run %s (%s): %d checks, %d passed, %d fixed, %d failed, %d for review",
		report.RunID, trigger, report.Summary.Total, report.Summary.Passed, report.Summary.Fixed,
		report.Summary.Failed, len(report.ManualReview))

	s.publishRun(trigger, report)

	body, err := json.Marshal(report)
	if err != nil {
		utils.ErrorLogger.Errorf("Error encoding reconciliation report %s: %v", report.RunID, err)
		return
	}

	run := models.ReconciliationRun{
		RunID:      report.RunID,
		Trigger:    trigger,
		StartedAt:  report.Timestamp,
		FinishedAt: report.Timestamp.Add(took),
		Total:      report.Summary.Total,
		Passed:     report.Summary.Passed,
		Failed:     report.Summary.Failed,
		Fixed:      report.Summary.Fixed,
		Report:     string(body),
	}
	err = database.RunInTx(ctx, s.DB, "save reconciliation run", func(tx *gorm.DB) error {
		return tx.Create(&run).Error
	})
	if err != nil {
		utils.ErrorLogger.Errorf("Error saving reconciliation run %s: %v", report.RunID, err)
	}

	if s.archiver != nil {
		if key, err := s.archiver.PutReport(ctx, report.RunID, report.Timestamp, body); err != nil {
			utils.ErrorLogger.Errorf("Error archiving reconciliation report %s: %v", report.RunID, err)
		} else {
			utils.InfoLogger.Debugf("Reconciliation report %s archived at %s", report.RunID, key)
		}
	}
}

func (s *ReconciliationService) publishRun(trigger string, report *integrity.Report) {
	if s.notifier != nil {
		s.notifier.Publish(0, kds.EventReconciliationFinished, map[string]interface{}{
			"runId":   report.RunID,
			"trigger": trigger,
			"summary": report.Summary,
		})
		if len(report.ManualReview) > 0 {
			s.notifier.Publish(0, kds.EventManualReview, map[string]interface{}{
				"runId": report.RunID,
				"items": report.ManualReview,
			})
		}
	}
}

// ListRuns pages through recorded runs, newest first.
func (s *ReconciliationService) ListRuns(ctx context.Context, limit, offset int) ([]models.ReconciliationRun, int64, error) {
	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.ReconciliationRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	runs := []models.ReconciliationRun{}
	err := s.DB.WithContext(ctx).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error
	return runs, total, err
}

// GetRun loads one recorded run and decodes its report.
func (s *ReconciliationService) GetRun(ctx context.Context, runID string) (*integrity.Report, error) {
	var run models.ReconciliationRun
	err := s.DB.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reconciliation run %s: %w", runID, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var report integrity.Report
	if err := json.Unmarshal([]byte(run.Report), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return &report, nil
}

package Controllers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/pos-integrity/config"
	"github.com/yeremiapane/pos-integrity/integrity"
	"github.com/yeremiapane/pos-integrity/models"
)

func TestRunAll_RepairsAndRecords(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	table := createTable(t, s, 1)
	product := createProduct(t, s, "Salad", "6.00")
	order := createOrder(t, s, table.ID)
	addLine(t, s, order.ID, product.ID, 2)

	// drift the denormalized totals behind the API's back
	require.NoError(t, s.db.Model(&models.Order{}).Where("id = ?", order.ID).Update("total", decimal.NewFromInt(99)).Error)
	require.NoError(t, s.db.Model(&models.Table{}).Where("id = ?", table.ID).Update("accumulated_total", decimal.NewFromInt(1)).Error)

	w, env := s.do(t, http.MethodPost, "/admin/integrity/run", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report integrity.Report
	decode(t, env, &report)
	assert.Equal(t, 6, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Fixed)
	assert.Equal(t, 5, report.Summary.Passed)

	totals, ok := report.Result(integrity.CheckTotals)
	require.True(t, ok)
	assert.Equal(t, integrity.StatusFixed, totals.Status)

	var stored models.Order
	require.NoError(t, s.db.First(&stored, order.ID).Error)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(12)))

	w, env = s.do(t, http.MethodGet, "/admin/integrity/runs?limit=5", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Runs  []models.ReconciliationRun `json:"runs"`
		Total int64                      `json:"total"`
		Limit int                        `json:"limit"`
	}
	decode(t, env, &page)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 5, page.Limit)
	require.Len(t, page.Runs, 1)
	assert.Equal(t, report.RunID, page.Runs[0].RunID)
	assert.Equal(t, "admin", page.Runs[0].Trigger)

	w, env = s.do(t, http.MethodGet, "/admin/integrity/runs/"+report.RunID, s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stored2 integrity.Report
	decode(t, env, &stored2)
	assert.Equal(t, report.Summary, stored2.Summary)

	w, _ = s.do(t, http.MethodGet, "/admin/integrity/runs/missing", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunAll_ReportsEvenWhenHistoryUnavailable(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	table := createTable(t, s, 1)
	product := createProduct(t, s, "Salad", "6.00")
	order := createOrder(t, s, table.ID)
	addLine(t, s, order.ID, product.ID, 1)

	require.NoError(t, s.db.Model(&models.Order{}).Where("id = ?", order.ID).Update("total", decimal.NewFromInt(40)).Error)
	require.NoError(t, s.db.Migrator().DropTable(&models.ReconciliationRun{}))

	w, env := s.do(t, http.MethodPost, "/admin/integrity/run", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report integrity.Report
	decode(t, env, &report)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Summary.Fixed)

	var stored models.Order
	require.NoError(t, s.db.First(&stored, order.ID).Error)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(6)))
}

func TestRunCheck(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})

	w, env := s.do(t, http.MethodPost, "/admin/integrity/checks/"+integrity.CheckDuplicateTableLabel, s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report integrity.Report
	decode(t, env, &report)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Passed)

	w, _ = s.do(t, http.MethodPost, "/admin/integrity/checks/nope", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(t, http.MethodGet, "/admin/integrity/checks", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var names []string
	decode(t, env, &names)
	assert.Contains(t, names, integrity.CheckTotals)
}

func TestIntegrity_RequiresAdmin(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})

	w, _ := s.do(t, http.MethodPost, "/admin/integrity/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/admin/integrity/run", s.staff, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPost, "/admin/integrity/run", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIntegrity_TriggerRateLimited(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{TriggerPerMinute: 1})

	w, _ := s.do(t, http.MethodPost, "/admin/integrity/run", s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/admin/integrity/run", s.admin, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// reads are not throttled
	w, _ = s.do(t, http.MethodGet, "/admin/integrity/runs", s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPingAndMetrics(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})

	w, env := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", env.Message)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	s.do(t, http.MethodPost, "/admin/integrity/run", s.admin, nil)

	w, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "pos_reconcile_runs_total"), w.Body.String())
}

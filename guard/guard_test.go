package guard

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/metrics"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

func setupGuard(t *testing.T) (*Guard, *gorm.DB, *prometheus.Registry) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	reg := prometheus.NewRegistry()
	return New(db, metrics.New(reg)), db, reg
}

func rejections(t *testing.T, reg *prometheus.Registry, invariant string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != metrics.MetricGuardRejectionsTotal {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "invariant" && l.GetValue() == invariant {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestValidateOrder_BranchMismatch(t *testing.T) {
	g, db, reg := setupGuard(t)
	table := models.Table{Label: 1, BranchID: 1, TenantID: 1, Status: models.TableStatusFree}
	require.NoError(t, db.Create(&table).Error)

	err := g.ValidateOrder(context.Background(), OrderDraft{
		TableID: table.ID, BranchID: 2, TenantID: 1, Status: models.OrderStatusReceived,
	})
	require.Error(t, err)
	assert.True(t, utils.IsValidation(err))
	assert.Equal(t, InvariantTableBranchMismatch, utils.InvariantOf(err))
	assert.Equal(t, float64(1), rejections(t, reg, InvariantTableBranchMismatch))

	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestValidateOrder_TenantMismatch(t *testing.T) {
	g, db, _ := setupGuard(t)
	table := models.Table{Label: 1, BranchID: 1, TenantID: 1, Status: models.TableStatusFree}
	require.NoError(t, db.Create(&table).Error)

	err := g.ValidateOrder(context.Background(), OrderDraft{
		TableID: table.ID, BranchID: 1, TenantID: 9, Status: models.OrderStatusReceived,
	})
	assert.Equal(t, InvariantTableBranchMismatch, utils.InvariantOf(err))
}

func TestValidateOrder(t *testing.T) {
	g, db, _ := setupGuard(t)
	table := models.Table{Label: 1, BranchID: 1, TenantID: 1, Status: models.TableStatusFree}
	require.NoError(t, db.Create(&table).Error)

	tests := []struct {
		name      string
		draft     OrderDraft
		invariant string
	}{
		{"valid", OrderDraft{TableID: table.ID, BranchID: 1, TenantID: 1, Status: models.OrderStatusReceived}, ""},
		{"bad status", OrderDraft{TableID: table.ID, BranchID: 1, TenantID: 1, Status: "en_cocina"}, InvariantInvalidOrderStatus},
		{"missing table", OrderDraft{TableID: 999, BranchID: 1, TenantID: 1, Status: models.OrderStatusOpen}, InvariantTableNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateOrder(context.Background(), tt.draft)
			if tt.invariant == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.invariant, utils.InvariantOf(err))
		})
	}
}

func TestValidateOrderLine(t *testing.T) {
	g, db, _ := setupGuard(t)
	own := models.Product{TenantID: 1, Name: "Soup", Price: decimal.NewFromInt(12)}
	foreign := models.Product{TenantID: 2, Name: "Salad", Price: decimal.NewFromInt(8)}
	require.NoError(t, db.Create(&own).Error)
	require.NoError(t, db.Create(&foreign).Error)
	order := models.Order{TableID: 1, BranchID: 1, TenantID: 1, Status: models.OrderStatusReceived}
	require.NoError(t, db.Create(&order).Error)

	tests := []struct {
		name      string
		draft     LineDraft
		invariant string
	}{
		{"valid", LineDraft{order.ID, own.ID, 2, decimal.NewFromInt(12), decimal.NewFromInt(24)}, ""},
		{"within tolerance", LineDraft{order.ID, own.ID, 1, decimal.RequireFromString("12.00"), decimal.RequireFromString("12.005")}, ""},
		{"foreign product", LineDraft{order.ID, foreign.ID, 1, decimal.NewFromInt(8), decimal.NewFromInt(8)}, InvariantProductTenantMismatch},
		{"unknown product", LineDraft{order.ID, 999, 1, decimal.NewFromInt(8), decimal.NewFromInt(8)}, InvariantProductTenantMismatch},
		{"unknown order", LineDraft{999, own.ID, 1, decimal.NewFromInt(12), decimal.NewFromInt(12)}, InvariantOrderNotFound},
		{"zero quantity", LineDraft{order.ID, own.ID, 0, decimal.NewFromInt(12), decimal.Zero}, InvariantInvalidQuantity},
		{"negative price", LineDraft{order.ID, own.ID, 1, decimal.NewFromInt(-1), decimal.NewFromInt(-1)}, InvariantNegativePrice},
		{"bad subtotal", LineDraft{order.ID, own.ID, 3, decimal.NewFromInt(12), decimal.NewFromInt(24)}, InvariantSubtotalMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateOrderLine(context.Background(), tt.draft)
			if tt.invariant == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.invariant, utils.InvariantOf(err))
		})
	}
}

func TestValidateTable_DuplicateLabel(t *testing.T) {
	g, db, reg := setupGuard(t)
	existing := models.Table{Label: 5, BranchID: 1, TenantID: 1, Status: models.TableStatusFree}
	require.NoError(t, db.Create(&existing).Error)

	err := g.ValidateTable(context.Background(), TableDraft{Label: 5, BranchID: 2, TenantID: 1})
	assert.Equal(t, InvariantDuplicateLabel, utils.InvariantOf(err))
	assert.Equal(t, float64(1), rejections(t, reg, InvariantDuplicateLabel))

	// same label in another tenant is fine
	assert.NoError(t, g.ValidateTable(context.Background(), TableDraft{Label: 5, BranchID: 1, TenantID: 2}))

	// updating the row itself does not collide with its own label
	assert.NoError(t, g.ValidateTable(context.Background(), TableDraft{
		ID: existing.ID, Label: 5, BranchID: 1, TenantID: 1, Status: models.TableStatusOccupied,
	}))
}

func TestValidateTable_Fields(t *testing.T) {
	g, _, _ := setupGuard(t)
	ctx := context.Background()

	assert.Equal(t, InvariantInvalidLabel, utils.InvariantOf(g.ValidateTable(ctx, TableDraft{TenantID: 1})))
	assert.Equal(t, InvariantTenantRequired, utils.InvariantOf(g.ValidateTable(ctx, TableDraft{Label: 1})))
	assert.Equal(t, InvariantInvalidTableStatus, utils.InvariantOf(g.ValidateTable(ctx, TableDraft{Label: 1, TenantID: 1, Status: "broken"})))
}

func TestValidateProduct(t *testing.T) {
	g, _, reg := setupGuard(t)
	ctx := context.Background()

	assert.NoError(t, g.ValidateProduct(ctx, ProductDraft{TenantID: 1, Price: decimal.Zero}))

	err := g.ValidateProduct(ctx, ProductDraft{TenantID: 1, Price: decimal.RequireFromString("-0.50")})
	assert.Equal(t, InvariantNegativePrice, utils.InvariantOf(err))
	assert.Equal(t, float64(1), rejections(t, reg, InvariantNegativePrice))

	assert.Equal(t, InvariantTenantRequired, utils.InvariantOf(g.ValidateProduct(ctx, ProductDraft{Price: decimal.NewFromInt(1)})))
}

func TestValidateOrderTotal(t *testing.T) {
	g := New(nil, nil)
	lines := []models.OrderLine{
		{Quantity: 1, UnitPrice: decimal.NewFromInt(10), Subtotal: decimal.NewFromInt(10)},
		{Quantity: 2, UnitPrice: decimal.NewFromInt(5), Subtotal: decimal.NewFromInt(10)},
	}

	assert.NoError(t, g.ValidateOrderTotal(decimal.NewFromInt(20), lines))
	assert.NoError(t, g.ValidateOrderTotal(decimal.RequireFromString("20.01"), lines))

	err := g.ValidateOrderTotal(decimal.NewFromInt(25), lines)
	assert.Equal(t, InvariantOrderTotalMismatch, utils.InvariantOf(err))
}

func TestGuardWithoutMetrics(t *testing.T) {
	g := New(nil, nil)
	err := g.ValidateProduct(context.Background(), ProductDraft{TenantID: 1, Price: decimal.NewFromInt(-1)})
	assert.True(t, utils.IsValidation(err))
}

func TestValidateOrderOpen(t *testing.T) {
	g := New(nil, nil)

	assert.NoError(t, g.ValidateOrderOpen(models.Order{ID: 1, Status: models.OrderStatusPreparing}))

	for _, status := range []string{models.OrderStatusPaid, models.OrderStatusCompleted, models.OrderStatusCancelled} {
		err := g.ValidateOrderOpen(models.Order{ID: 1, Status: status})
		assert.Equal(t, InvariantOrderNotOpen, utils.InvariantOf(err), status)
		assert.True(t, utils.IsConflict(err))
	}
}

// Package guard validates single-entity POS writes before they commit.
//
// Every check uses primary-key or indexed lookups only and never scans the
// store. The guard accepts or rejects; it never repairs existing rows.
package guard

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/pos-integrity/metrics"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/totals"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

// Invariant names carried by rejected writes.
const (
	InvariantTableNotFound         = "table not found"
	InvariantTableBranchMismatch   = "table/branch mismatch"
	InvariantInvalidOrderStatus    = "invalid order status"
	InvariantOrderNotFound         = "order not found"
	InvariantProductTenantMismatch = "product/tenant mismatch"
	InvariantInvalidQuantity       = "invalid quantity"
	InvariantNegativePrice         = "negative price"
	InvariantSubtotalMismatch      = "subtotal mismatch"
	InvariantOrderTotalMismatch    = "order total mismatch"
	InvariantDuplicateLabel        = "duplicate label in tenant"
	InvariantInvalidLabel          = "invalid table label"
	InvariantInvalidTableStatus    = "invalid table status"
	InvariantTenantRequired        = "tenant required"
	InvariantOrderNotOpen          = "order is not open"
)

type Guard struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

func New(db *gorm.DB, m *metrics.Metrics) *Guard {
	return &Guard{db: db, metrics: m}
}

// On returns a guard that reads through tx, so validation sees the same
// snapshot as the write it protects.
func (g *Guard) On(tx *gorm.DB) *Guard {
	return &Guard{db: tx, metrics: g.metrics}
}

type OrderDraft struct {
	TableID  uint
	BranchID uint
	TenantID uint
	Status   string
}

// ValidateOrder checks that the order's branch and tenant match its table and
// that its status is in the enumeration.
func (g *Guard) ValidateOrder(ctx context.Context, d OrderDraft) error {
	if !models.IsValidOrderStatus(d.Status) {
		return g.reject(InvariantInvalidOrderStatus, "status %q is not allowed", d.Status)
	}

	var table models.Table
	err := g.db.WithContext(ctx).Select("id", "branch_id", "tenant_id").First(&table, d.TableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return g.reject(InvariantTableNotFound, "table %d does not exist", d.TableID)
	}
	if err != nil {
		return err
	}

	if table.BranchID != d.BranchID || table.TenantID != d.TenantID {
		return g.reject(InvariantTableBranchMismatch,
			"table %d belongs to branch %d / tenant %d, order declares branch %d / tenant %d",
			table.ID, table.BranchID, table.TenantID, d.BranchID, d.TenantID)
	}
	return nil
}

type LineDraft struct {
	OrderID   uint
	ProductID uint
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// ValidateOrderLine checks quantity, price and subtotal of a proposed line and
// that its product belongs to the tenant of the order.
func (g *Guard) ValidateOrderLine(ctx context.Context, d LineDraft) error {
	if d.Quantity <= 0 {
		return g.reject(InvariantInvalidQuantity, "quantity must be positive, got %d", d.Quantity)
	}
	if d.UnitPrice.IsNegative() {
		return g.reject(InvariantNegativePrice, "unit price %s is negative", d.UnitPrice)
	}
	if want := totals.LineSubtotal(d.Quantity, d.UnitPrice); totals.Drifted(d.Subtotal, want) {
		return g.reject(InvariantSubtotalMismatch, "subtotal %s, expected %s", d.Subtotal, want)
	}

	var order models.Order
	err := g.db.WithContext(ctx).Select("id", "tenant_id").First(&order, d.OrderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return g.reject(InvariantOrderNotFound, "order %d does not exist", d.OrderID)
	}
	if err != nil {
		return err
	}

	var product models.Product
	err = g.db.WithContext(ctx).Select("id", "tenant_id").First(&product, d.ProductID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && product.TenantID != order.TenantID) {
		return g.reject(InvariantProductTenantMismatch,
			"product %d is not available to tenant %d", d.ProductID, order.TenantID)
	}
	return err
}

// ValidateOrderTotal checks a proposed order total against its lines.
func (g *Guard) ValidateOrderTotal(total decimal.Decimal, lines []models.OrderLine) error {
	if want := totals.OrderTotal(lines); totals.Drifted(total, want) {
		return g.reject(InvariantOrderTotalMismatch, "total %s, lines sum to %s", total, want)
	}
	return nil
}

// ValidateOrderOpen rejects changes to an order that is already paid,
// completed or cancelled.
func (g *Guard) ValidateOrderOpen(o models.Order) error {
	if !o.IsOpen() {
		return g.reject(InvariantOrderNotOpen, "order %d is %s", o.ID, o.Status)
	}
	return nil
}

type TableDraft struct {
	ID       uint // zero for a new table
	Label    uint
	BranchID uint
	TenantID uint
	Status   string
}

// ValidateTable checks the label is unique within the tenant and the status
// is one of the table statuses.
func (g *Guard) ValidateTable(ctx context.Context, d TableDraft) error {
	if d.TenantID == 0 {
		return g.reject(InvariantTenantRequired, "table must belong to a tenant")
	}
	if d.Label == 0 {
		return g.reject(InvariantInvalidLabel, "label must be a positive number")
	}
	if d.Status != "" && !models.IsValidTableStatus(d.Status) {
		return g.reject(InvariantInvalidTableStatus, "status %q is not allowed", d.Status)
	}

	var ids []uint
	err := g.db.WithContext(ctx).Model(&models.Table{}).
		Where("tenant_id = ? AND label = ? AND id <> ?", d.TenantID, d.Label, d.ID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return g.reject(InvariantDuplicateLabel,
			"label %d already used by table %d in tenant %d", d.Label, ids[0], d.TenantID)
	}
	return nil
}

type ProductDraft struct {
	ID       uint
	TenantID uint
	Price    decimal.Decimal
}

func (g *Guard) ValidateProduct(_ context.Context, d ProductDraft) error {
	if d.TenantID == 0 {
		return g.reject(InvariantTenantRequired, "product must belong to a tenant")
	}
	if d.Price.IsNegative() {
		return g.reject(InvariantNegativePrice, "price %s is negative", d.Price)
	}
	return nil
}

func (g *Guard) reject(invariant, format string, args ...interface{}) error {
	g.metrics.GuardRejected(invariant)
	err := utils.NewValidationError(invariant, format, args...)
	utils.InfoLogger.Debugf("guard rejected write: %v", err)
	return err
}

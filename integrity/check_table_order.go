package integrity

import (
	"context"
	"fmt"

	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/models"
	"gorm.io/gorm"
)

const CheckTableOrderConsistency = "table-order-consistency"

type orderTableRow struct {
	OrderID     uint
	TableID     uint
	OrderBranch uint
	OrderTenant uint
	TableBranch *uint
	TableTenant *uint
}

// checkTableOrderConsistency copies branch and tenant from the table onto
// every order that disagrees with it. The table is the authoritative side.
func (e *Engine) checkTableOrderConsistency(ctx context.Context) (CheckResult, error) {
	var rows []orderTableRow
	err := e.db.WithContext(ctx).
		Table("orders AS o").
		Select("o.id AS order_id, o.table_id, o.branch_id AS order_branch, o.tenant_id AS order_tenant, " +
			"t.branch_id AS table_branch, t.tenant_id AS table_tenant").
		Joins("LEFT JOIN tables t ON t.id = o.table_id").
		Where("t.id IS NULL OR o.branch_id <> t.branch_id OR o.tenant_id <> t.tenant_id").
		Order("o.id").
		Scan(&rows).Error
	if err != nil {
		return CheckResult{}, err
	}

	var f finding
	for _, r := range rows {
		if r.TableBranch == nil || r.TableTenant == nil {
			f.flag(ReviewItem{
				Check:    CheckTableOrderConsistency,
				Entity:   "order",
				EntityID: r.OrderID,
				Reason:   fmt.Sprintf("order references missing table %d", r.TableID),
			})
			continue
		}

		err := database.RunInTx(ctx, e.db, "repair order branch", func(tx *gorm.DB) error {
			return tx.Model(&models.Order{}).
				Where("id = ? AND table_id = ?", r.OrderID, r.TableID).
				Updates(map[string]interface{}{
					"branch_id": *r.TableBranch,
					"tenant_id": *r.TableTenant,
				}).Error
		})
		if err != nil {
			return f.result(CheckTableOrderConsistency, "", "", ""), err
		}
		f.fixed++
		f.detail = append(f.detail, map[string]interface{}{
			"orderId":    r.OrderID,
			"tableId":    r.TableID,
			"fromBranch": r.OrderBranch,
			"fromTenant": r.OrderTenant,
			"toBranch":   *r.TableBranch,
			"toTenant":   *r.TableTenant,
		})
	}

	return f.result(CheckTableOrderConsistency,
		"every order matches the branch and tenant of its table",
		fmt.Sprintf("%d orders realigned with their table", f.fixed),
		fmt.Sprintf("%d orders need manual review", f.failed),
	), nil
}

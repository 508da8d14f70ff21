package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/totals"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const CheckTotals = "totals"

const batchSize = 500

// checkTotals repairs the derived money fields bottom up: line subtotals,
// then order totals, then a rebuild of every table's accumulated total and
// status from its open orders. The scans only nominate tables; the rebuild
// itself reads the orders again under the table's row lock, so a sale that
// lands between the two passes is never overwritten.
func (e *Engine) checkTotals(ctx context.Context) (CheckResult, error) {
	var f finding
	var lineFixes, orderFixes, tableFixes int

	lineSums := make(map[uint]decimal.Decimal)
	var lines []models.OrderLine
	err := e.db.WithContext(ctx).FindInBatches(&lines, batchSize, func(_ *gorm.DB, _ int) error {
		for _, l := range lines {
			want := totals.LineSubtotal(l.Quantity, l.UnitPrice)
			if totals.Drifted(l.Subtotal, want) {
				err := database.RunInTx(ctx, e.db, "repair line subtotal", func(tx *gorm.DB) error {
					return tx.Model(&models.OrderLine{}).Where("id = ?", l.ID).Update("subtotal", want).Error
				})
				if err != nil {
					return err
				}
				lineFixes++
				l.Subtotal = want
			}
			lineSums[l.OrderID] = lineSums[l.OrderID].Add(l.Subtotal)
		}
		return nil
	}).Error
	if err != nil {
		return f.result(CheckTotals, "", "", ""), err
	}

	tableSums := make(map[uint]decimal.Decimal)
	var orders []models.Order
	err = e.db.WithContext(ctx).Select("id", "table_id", "status", "total").
		FindInBatches(&orders, batchSize, func(_ *gorm.DB, _ int) error {
			for _, o := range orders {
				want := lineSums[o.ID]
				if totals.Drifted(o.Total, want) {
					fixed, err := e.repairOrderTotal(ctx, o.ID)
					if err != nil {
						return err
					}
					orderFixes++
					o.Total = fixed
				}
				if o.IsOpen() {
					tableSums[o.TableID] = tableSums[o.TableID].Add(o.Total)
				}
			}
			return nil
		}).Error
	if err != nil {
		return f.result(CheckTotals, "", "", ""), err
	}

	var tables []models.Table
	err = e.db.WithContext(ctx).Select("id", "status", "accumulated_total").
		FindInBatches(&tables, batchSize, func(_ *gorm.DB, _ int) error {
			for _, t := range tables {
				acc := tableSums[t.ID]
				status := totals.TableStatusFor(t.Status, acc)
				if t.AccumulatedTotal.Equal(acc) && t.Status == status {
					continue
				}
				changed, err := e.repairTableTotal(ctx, t.ID)
				if err != nil {
					return err
				}
				if !changed {
					continue
				}
				tableFixes++
			}
			return nil
		}).Error

	f.fixed = lineFixes + orderFixes + tableFixes
	f.detail = append(f.detail, map[string]interface{}{
		"lineSubtotals": lineFixes,
		"orderTotals":   orderFixes,
		"tables":        tableFixes,
	})
	if f.fixed == 0 {
		f.detail = nil
	}
	if err != nil {
		return f.result(CheckTotals, "", "", ""), err
	}

	return f.result(CheckTotals,
		"order and table totals are consistent",
		fmt.Sprintf("%d line subtotals, %d order totals and %d tables rebuilt", lineFixes, orderFixes, tableFixes),
		"",
	), nil
}

// repairOrderTotal rewrites the order total from its lines inside one
// transaction and returns the value written.
func (e *Engine) repairOrderTotal(ctx context.Context, orderID uint) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := database.RunInTx(ctx, e.db, "repair order total", func(tx *gorm.DB) error {
		var lines []models.OrderLine
		if err := tx.Where("order_id = ?", orderID).Find(&lines).Error; err != nil {
			return err
		}
		total = totals.OrderTotal(lines)
		return tx.Model(&models.Order{}).Where("id = ?", orderID).Update("total", total).Error
	})
	return total, err
}

// repairTableTotal rebuilds one table's balance and status from the open
// orders as they are inside the transaction. It reports whether the row had
// to change.
func (e *Engine) repairTableTotal(ctx context.Context, tableID uint) (bool, error) {
	var changed bool
	err := database.RunInTx(ctx, e.db, "rebuild table total", func(tx *gorm.DB) error {
		var table models.Table
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status", "accumulated_total").
			First(&table, tableID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var open []models.Order
		err = tx.Select("id", "status", "total").
			Where("table_id = ? AND status IN ?", tableID, models.OpenOrderStatuses).
			Find(&open).Error
		if err != nil {
			return err
		}

		acc := totals.TableAccumulated(open)
		status := totals.TableStatusFor(table.Status, acc)
		if table.AccumulatedTotal.Equal(acc) && table.Status == status {
			return nil
		}
		changed = true
		return tx.Model(&models.Table{}).Where("id = ?", tableID).Updates(map[string]interface{}{
			"accumulated_total": acc,
			"status":            status,
		}).Error
	})
	return changed, err
}

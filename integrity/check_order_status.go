package integrity

import (
	"context"
	"fmt"

	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/totals"
	"gorm.io/gorm"
)

const CheckOrderStatus = "order-status"

// checkOrderStatus maps statuses outside the enumeration to a default picked
// from the order's age. See totals.DefaultStatusForAge.
func (e *Engine) checkOrderStatus(ctx context.Context) (CheckResult, error) {
	var orders []models.Order
	err := e.db.WithContext(ctx).
		Select("id", "status", "created_at").
		Where("status NOT IN ?", models.OrderStatuses).
		Order("id").
		Find(&orders).Error
	if err != nil {
		return CheckResult{}, err
	}

	var f finding
	now := e.now()
	for _, o := range orders {
		next := totals.DefaultStatusForAge(o.CreatedAt, now)
		err := database.RunInTx(ctx, e.db, "repair order status", func(tx *gorm.DB) error {
			return tx.Model(&models.Order{}).
				Where("id = ? AND status = ?", o.ID, o.Status).
				Update("status", next).Error
		})
		if err != nil {
			return f.result(CheckOrderStatus, "", "", ""), err
		}
		f.fixed++
		f.detail = append(f.detail, map[string]interface{}{
			"orderId": o.ID,
			"from":    o.Status,
			"to":      next,
		})
	}

	return f.result(CheckOrderStatus,
		"every order status is valid",
		fmt.Sprintf("%d order statuses reset by age", f.fixed),
		"",
	), nil
}

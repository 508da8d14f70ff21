package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/totals"
	"gorm.io/gorm"
)

const CheckOrderLineProduct = "order-line-product-consistency"

type lineProductRow struct {
	LineID    uint
	OrderID   uint
	TenantID  uint
	ProductID *uint
	Quantity  int
}

// checkOrderLineProduct repairs lines whose product is missing or belongs to
// another tenant. The lowest-id product of the order's tenant is substituted
// and the order total recomputed. Each substitution is still listed for
// review since the original product is unknown.
func (e *Engine) checkOrderLineProduct(ctx context.Context) (CheckResult, error) {
	var rows []lineProductRow
	err := e.db.WithContext(ctx).
		Table("order_lines AS l").
		Select("l.id AS line_id, l.order_id, o.tenant_id, l.product_id, l.quantity").
		Joins("JOIN orders o ON o.id = l.order_id").
		Joins("LEFT JOIN products p ON p.id = l.product_id").
		Where("l.product_id IS NULL OR p.id IS NULL OR p.tenant_id <> o.tenant_id").
		Order("l.id").
		Scan(&rows).Error
	if err != nil {
		return CheckResult{}, err
	}

	var f finding
	candidates := make(map[uint]*models.Product)
	for _, r := range rows {
		candidate, seen := candidates[r.TenantID]
		if !seen {
			candidate, err = e.substituteProduct(ctx, r.TenantID)
			if err != nil {
				return f.result(CheckOrderLineProduct, "", "", ""), err
			}
			candidates[r.TenantID] = candidate
		}

		if candidate == nil {
			f.flag(ReviewItem{
				Check:    CheckOrderLineProduct,
				Entity:   "order_line",
				EntityID: r.LineID,
				Reason:   fmt.Sprintf("no product available in tenant %d to substitute", r.TenantID),
				Details:  map[string]interface{}{"orderId": r.OrderID, "productId": r.ProductID},
			})
			continue
		}

		if err := e.substituteLineProduct(ctx, r, candidate); err != nil {
			return f.result(CheckOrderLineProduct, "", "", ""), err
		}
		f.fixed++
		f.note(ReviewItem{
			Check:    CheckOrderLineProduct,
			Entity:   "order_line",
			EntityID: r.LineID,
			Reason:   fmt.Sprintf("product substituted with %d (%s)", candidate.ID, candidate.Name),
			Details: map[string]interface{}{
				"orderId":         r.OrderID,
				"previousProduct": r.ProductID,
				"newProduct":      candidate.ID,
			},
		})
	}

	return f.result(CheckOrderLineProduct,
		"every order line references a product of its tenant",
		fmt.Sprintf("%d order lines received a substitute product", f.fixed),
		fmt.Sprintf("%d order lines have no product to substitute", f.failed),
	), nil
}

func (e *Engine) substituteProduct(ctx context.Context, tenantID uint) (*models.Product, error) {
	var p models.Product
	err := e.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("id").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (e *Engine) substituteLineProduct(ctx context.Context, r lineProductRow, p *models.Product) error {
	return database.RunInTx(ctx, e.db, "substitute line product", func(tx *gorm.DB) error {
		err := tx.Model(&models.OrderLine{}).Where("id = ?", r.LineID).Updates(map[string]interface{}{
			"product_id": p.ID,
			"unit_price": p.Price,
			"subtotal":   totals.LineSubtotal(r.Quantity, p.Price),
		}).Error
		if err != nil {
			return err
		}

		var lines []models.OrderLine
		if err := tx.Where("order_id = ?", r.OrderID).Find(&lines).Error; err != nil {
			return err
		}
		return tx.Model(&models.Order{}).Where("id = ?", r.OrderID).
			Update("total", totals.OrderTotal(lines)).Error
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/guard"
	"github.com/yeremiapane/pos-integrity/kds"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/totals"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PosService applies POS writes. Every write passes the guard inside the
// same transaction that stores it, and keeps the order total and the table
// accumulated total in step with the lines.
type PosService struct {
	db       *gorm.DB
	guard    *guard.Guard
	notifier Notifier
	now      func() time.Time
}

type PosOption func(*PosService)

func WithPosNotifier(n Notifier) PosOption {
	return func(s *PosService) { s.notifier = n }
}

func WithPosClock(now func() time.Time) PosOption {
	return func(s *PosService) { s.now = now }
}

func NewPosService(db *gorm.DB, g *guard.Guard, opts ...PosOption) *PosService {
	s := &PosService{db: db, guard: g, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type TableInput struct {
	Label    uint `json:"label" binding:"required"`
	BranchID uint `json:"branch_id" binding:"required"`
	TenantID uint `json:"tenant_id" binding:"required"`
}

type TablePatch struct {
	Label  *uint   `json:"label"`
	Status *string `json:"status"`
}

type ProductInput struct {
	TenantID uint            `json:"tenant_id" binding:"required"`
	Name     string          `json:"name" binding:"required"`
	Price    decimal.Decimal `json:"price"`
}

type ProductPatch struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

type OrderInput struct {
	TableID  uint   `json:"table_id" binding:"required"`
	BranchID uint   `json:"branch_id" binding:"required"`
	TenantID uint   `json:"tenant_id" binding:"required"`
	Status   string `json:"status"`
}

type LineInput struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// LineResult is the stored line with the order and table it changed.
type LineResult struct {
	Line  models.OrderLine `json:"line"`
	Order models.Order     `json:"order"`
	Table models.Table     `json:"table"`
}

// CloseResult is the closed order with its rebuilt table.
type CloseResult struct {
	Order models.Order `json:"order"`
	Table models.Table `json:"table"`
}

func (s *PosService) CreateTable(ctx context.Context, in TableInput) (*models.Table, error) {
	table := models.Table{
		Label:            in.Label,
		BranchID:         in.BranchID,
		TenantID:         in.TenantID,
		Status:           models.TableStatusFree,
		AccumulatedTotal: decimal.Zero,
	}

	err := database.RunInTx(ctx, s.db, "create table", func(tx *gorm.DB) error {
		if err := s.guard.On(tx).ValidateTable(ctx, guard.TableDraft{
			Label: table.Label, BranchID: table.BranchID, TenantID: table.TenantID, Status: table.Status,
		}); err != nil {
			return err
		}
		return tx.Create(&table).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(table.TenantID, kds.EventTableUpdate, table)
	return &table, nil
}

// UpdateTable changes the label or status of a table. A status that
// contradicts the balance is rejected: only a table with an unpaid balance
// can be occupied or pending payment.
func (s *PosService) UpdateTable(ctx context.Context, id uint, p TablePatch) (*models.Table, error) {
	var table models.Table
	err := database.RunInTx(ctx, s.db, "update table", func(tx *gorm.DB) error {
		if err := lockRow(tx, &table, id, "table"); err != nil {
			return err
		}
		if p.Label != nil {
			table.Label = *p.Label
		}
		if p.Status != nil {
			table.Status = *p.Status
		}

		if err := s.guard.On(tx).ValidateTable(ctx, guard.TableDraft{
			ID: table.ID, Label: table.Label, BranchID: table.BranchID, TenantID: table.TenantID, Status: table.Status,
		}); err != nil {
			return err
		}
		if p.Status != nil && totals.TableStatusFor(table.Status, table.AccumulatedTotal) != table.Status {
			return utils.NewValidationError(guard.InvariantInvalidTableStatus,
				"table %d with balance %s cannot be %s", table.ID, table.AccumulatedTotal, table.Status)
		}

		return tx.Model(&table).Updates(map[string]interface{}{
			"label":  table.Label,
			"status": table.Status,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(table.TenantID, kds.EventTableUpdate, table)
	return &table, nil
}

func (s *PosService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	product := models.Product{TenantID: in.TenantID, Name: in.Name, Price: in.Price}

	err := database.RunInTx(ctx, s.db, "create product", func(tx *gorm.DB) error {
		if err := s.guard.On(tx).ValidateProduct(ctx, guard.ProductDraft{TenantID: product.TenantID, Price: product.Price}); err != nil {
			return err
		}
		return tx.Create(&product).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct changes name or price. Existing lines keep the price they
// were sold at.
func (s *PosService) UpdateProduct(ctx context.Context, id uint, p ProductPatch) (*models.Product, error) {
	var product models.Product
	err := database.RunInTx(ctx, s.db, "update product", func(tx *gorm.DB) error {
		if err := lockRow(tx, &product, id, "product"); err != nil {
			return err
		}
		if p.Name != nil {
			product.Name = *p.Name
		}
		if p.Price != nil {
			product.Price = *p.Price
		}

		if err := s.guard.On(tx).ValidateProduct(ctx, guard.ProductDraft{
			ID: product.ID, TenantID: product.TenantID, Price: product.Price,
		}); err != nil {
			return err
		}
		return tx.Model(&product).Updates(map[string]interface{}{
			"name":  product.Name,
			"price": product.Price,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *PosService) CreateOrder(ctx context.Context, in OrderInput) (*models.Order, error) {
	order := models.Order{
		TableID:   in.TableID,
		BranchID:  in.BranchID,
		TenantID:  in.TenantID,
		Status:    in.Status,
		Total:     decimal.Zero,
		CreatedAt: s.now(),
	}
	if order.Status == "" {
		order.Status = models.OrderStatusReceived
	}

	err := database.RunInTx(ctx, s.db, "create order", func(tx *gorm.DB) error {
		if err := s.guard.On(tx).ValidateOrder(ctx, guard.OrderDraft{
			TableID: order.TableID, BranchID: order.BranchID, TenantID: order.TenantID, Status: order.Status,
		}); err != nil {
			return err
		}
		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(order.TenantID, kds.EventOrderUpdate, order)
	return &order, nil
}

// AddOrderLine sells a product on an open order at the product's current
// price, then refreshes the order total and the table balance.
func (s *PosService) AddOrderLine(ctx context.Context, orderID uint, in LineInput) (*LineResult, error) {
	var res LineResult
	err := database.RunInTx(ctx, s.db, "add order line", func(tx *gorm.DB) error {
		g := s.guard.On(tx)

		if err := lockRow(tx, &res.Order, orderID, "order"); err != nil {
			return err
		}
		if err := g.ValidateOrderOpen(res.Order); err != nil {
			return err
		}

		var product models.Product
		err := tx.Select("id", "price").First(&product, in.ProductID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		productID := in.ProductID
		res.Line = models.OrderLine{
			OrderID:   orderID,
			ProductID: &productID,
			Quantity:  in.Quantity,
			UnitPrice: product.Price,
			Subtotal:  totals.LineSubtotal(in.Quantity, product.Price),
			CreatedAt: s.now(),
		}
		if err := g.ValidateOrderLine(ctx, guard.LineDraft{
			OrderID:   orderID,
			ProductID: productID,
			Quantity:  res.Line.Quantity,
			UnitPrice: res.Line.UnitPrice,
			Subtotal:  res.Line.Subtotal,
		}); err != nil {
			return err
		}
		if err := tx.Create(&res.Line).Error; err != nil {
			return err
		}

		var lines []models.OrderLine
		if err := tx.Where("order_id = ?", orderID).Find(&lines).Error; err != nil {
			return err
		}
		total := totals.OrderTotal(lines)
		if err := g.ValidateOrderTotal(total, lines); err != nil {
			return err
		}
		if err := tx.Model(&res.Order).Update("total", total).Error; err != nil {
			return err
		}
		res.Order.Total = total

		table, err := refreshTable(tx, res.Order.TableID)
		if err != nil {
			return err
		}
		res.Table = *table
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(res.Order.TenantID, kds.EventOrderUpdate, res.Order)
	s.publish(res.Table.TenantID, kds.EventTableUpdate, res.Table)
	return &res, nil
}

// CloseOrder settles (paid) or cancels an open order and rebuilds the table
// balance without it.
func (s *PosService) CloseOrder(ctx context.Context, orderID uint, status string) (*CloseResult, error) {
	if status != models.OrderStatusPaid && status != models.OrderStatusCancelled {
		return nil, utils.NewValidationError(guard.InvariantInvalidOrderStatus,
			"an order closes as %s or %s, got %q", models.OrderStatusPaid, models.OrderStatusCancelled, status)
	}

	var res CloseResult
	err := database.RunInTx(ctx, s.db, "close order", func(tx *gorm.DB) error {
		if err := lockRow(tx, &res.Order, orderID, "order"); err != nil {
			return err
		}
		if err := s.guard.On(tx).ValidateOrderOpen(res.Order); err != nil {
			return err
		}
		if err := tx.Model(&res.Order).Update("status", status).Error; err != nil {
			return err
		}
		res.Order.Status = status

		table, err := refreshTable(tx, res.Order.TableID)
		if err != nil {
			return err
		}
		res.Table = *table
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(res.Order.TenantID, kds.EventOrderUpdate, res.Order)
	s.publish(res.Table.TenantID, kds.EventTableUpdate, res.Table)
	return &res, nil
}

func (s *PosService) publish(tenantID uint, event string, data interface{}) {
	if s.notifier != nil {
		s.notifier.Publish(tenantID, event, data)
	}
}

func lockRow(tx *gorm.DB, dest interface{}, id uint, entity string) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", entity, id, utils.ErrNotFound)
	}
	return err
}

// refreshTable recomputes the accumulated total and status of a table from
// its open orders.
func refreshTable(tx *gorm.DB, tableID uint) (*models.Table, error) {
	var table models.Table
	if err := lockRow(tx, &table, tableID, "table"); err != nil {
		return nil, err
	}

	var orders []models.Order
	if err := tx.Select("id", "status", "total").
		Where("table_id = ? AND status IN ?", tableID, models.OpenOrderStatuses).
		Find(&orders).Error; err != nil {
		return nil, err
	}

	table.AccumulatedTotal = totals.TableAccumulated(orders)
	table.Status = totals.TableStatusFor(table.Status, table.AccumulatedTotal)
	if err := tx.Model(&table).Updates(map[string]interface{}{
		"accumulated_total": table.AccumulatedTotal,
		"status":            table.Status,
	}).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

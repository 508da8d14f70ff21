package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is one product entry of an order. ProductID is nullable because
// lines imported from older systems may have lost their product.
type OrderLine struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	ProductID *uint           `gorm:"index" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	CreatedAt time.Time       `gorm:"not null;index" json:"created_at"`
}

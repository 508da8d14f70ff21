package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusReceived       = "received"
	OrderStatusPreparing      = "preparing"
	OrderStatusReadyToServe   = "ready_to_serve"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
	OrderStatusOpen           = "open"
	OrderStatusInUse          = "in_use"
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusCompleted      = "completed"
	OrderStatusPending        = "pending"
	OrderStatusPaid           = "paid"
)

// OrderStatuses is the fixed enumeration accepted for orders.
var OrderStatuses = []string{
	OrderStatusReceived,
	OrderStatusPreparing,
	OrderStatusReadyToServe,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusOpen,
	OrderStatusInUse,
	OrderStatusPendingPayment,
	OrderStatusCompleted,
	OrderStatusPending,
	OrderStatusPaid,
}

// OpenOrderStatuses are the statuses of orders that are neither paid nor
// cancelled. Only these count toward a table's accumulated total.
var OpenOrderStatuses = []string{
	OrderStatusReceived,
	OrderStatusPreparing,
	OrderStatusReadyToServe,
	OrderStatusDelivered,
	OrderStatusOpen,
	OrderStatusInUse,
	OrderStatusPendingPayment,
	OrderStatusPending,
}

type Order struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	TableID   uint            `gorm:"not null;index" json:"table_id"`
	BranchID  uint            `gorm:"not null;index" json:"branch_id"`
	TenantID  uint            `gorm:"not null;index" json:"tenant_id"`
	Status    string          `gorm:"type:varchar(30);not null;default:'received'" json:"status"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	CreatedAt time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Lines     []OrderLine     `gorm:"-" json:"lines,omitempty"`
}

// IsOpen reports whether the order still counts as unpaid consumption.
func (o Order) IsOpen() bool {
	return IsOpenOrderStatus(o.Status)
}

func IsValidOrderStatus(status string) bool {
	return contains(OrderStatuses, status)
}

func IsOpenOrderStatus(status string) bool {
	return contains(OpenOrderStatuses, status)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TableStatusFree           = "free"
	TableStatusOccupied       = "occupied"
	TableStatusPendingPayment = "pending_payment"
)

// TableStatuses is the closed set of values a table status may take.
var TableStatuses = []string{TableStatusFree, TableStatusOccupied, TableStatusPendingPayment}

// Table is a physical table. Labels are meant to be unique per tenant but the
// column is not constrained: duplicates coming from imports must stay
// representable so the reconciliation sweep can report them.
type Table struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Label            uint            `gorm:"not null;index:idx_tables_tenant_label" json:"label"`
	BranchID         uint            `gorm:"not null;index" json:"branch_id"`
	TenantID         uint            `gorm:"not null;index:idx_tables_tenant_label" json:"tenant_id"`
	Status           string          `gorm:"type:varchar(20);not null;default:'free'" json:"status"`
	AccumulatedTotal decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"accumulated_total"`
	GroupID          *uint           `gorm:"index" json:"group_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsFree reports whether the table can be merged into a group.
func (t Table) IsFree() bool {
	return t.Status == TableStatusFree
}

// IsValidTableStatus checks status against TableStatuses.
func IsValidTableStatus(status string) bool {
	for _, s := range TableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

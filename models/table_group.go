package models

import "time"

const (
	GroupStatusOpen   = "OPEN"
	GroupStatusClosed = "CLOSED"

	CloseReasonSettled   = "settled"
	CloseReasonDissolved = "dissolved"
)

// TableGroup merges several physical tables under one bill. CLOSED is
// terminal: a closed group is never reopened.
type TableGroup struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	TenantID       uint       `gorm:"not null;index" json:"tenant_id"`
	BranchID       uint       `gorm:"not null;index" json:"branch_id"`
	Status         string     `gorm:"type:varchar(10);not null;default:'OPEN';index" json:"status"`
	StaffID        uint       `gorm:"not null" json:"staff_id"`
	PrimaryOrderID *uint      `json:"primary_order_id,omitempty"`
	CloseReason    string     `gorm:"type:varchar(20)" json:"close_reason,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (g TableGroup) IsOpen() bool {
	return g.Status == GroupStatusOpen
}

// GroupMembership is the forward side of the table <-> group relation; the
// back side is Table.GroupID. Both are always written in the same transaction.
type GroupMembership struct {
	GroupID uint `gorm:"primaryKey;autoIncrement:false" json:"group_id"`
	TableID uint `gorm:"primaryKey;autoIncrement:false;index" json:"table_id"`
}

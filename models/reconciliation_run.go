package models

import "time"

// ReconciliationRun keeps the outcome of one sweep so the operations
// dashboard can page through history. Report holds the full JSON report.
type ReconciliationRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"run_id"`
	Trigger    string    `gorm:"type:varchar(20);not null" json:"trigger"`
	StartedAt  time.Time `gorm:"not null;index" json:"started_at"`
	FinishedAt time.Time `gorm:"not null" json:"finished_at"`
	Total      int       `gorm:"not null" json:"total"`
	Passed     int       `gorm:"not null" json:"passed"`
	Failed     int       `gorm:"not null" json:"failed"`
	Fixed      int       `gorm:"not null" json:"fixed"`
	Report     string    `gorm:"type:text;not null" json:"-"`
}

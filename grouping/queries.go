package grouping

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

// GroupDetails is a group with its current member tables. AccumulatedTotal
// is the sum of the members' accumulated totals.
type GroupDetails struct {
	models.TableGroup
	Tables           []models.Table  `json:"tables"`
	AccumulatedTotal decimal.Decimal `json:"accumulated_total"`
}

func (m *Manager) GetGroup(ctx context.Context, groupID uint) (*GroupDetails, error) {
	db := m.db.WithContext(ctx)

	var group models.TableGroup
	err := db.First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("table group %d: %w", groupID, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.details(db, group)
}

// ActiveGroups lists the OPEN groups of a tenant, oldest first.
func (m *Manager) ActiveGroups(ctx context.Context, tenantID uint) ([]GroupDetails, error) {
	db := m.db.WithContext(ctx)

	var groups []models.TableGroup
	err := db.Where("tenant_id = ? AND status = ?", tenantID, models.GroupStatusOpen).
		Order("created_at, id").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}

	out := make([]GroupDetails, 0, len(groups))
	for _, g := range groups {
		d, err := m.details(db, g)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// GroupForTable returns the OPEN group the table is a member of.
func (m *Manager) GroupForTable(ctx context.Context, tableID uint) (*GroupDetails, error) {
	db := m.db.WithContext(ctx)

	var group models.TableGroup
	err := db.Joins("JOIN group_memberships ON group_memberships.group_id = table_groups.id").
		Where("group_memberships.table_id = ? AND table_groups.status = ?", tableID, models.GroupStatusOpen).
		Order("table_groups.id").
		First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("open group for table %d: %w", tableID, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.details(db, group)
}

func (m *Manager) details(db *gorm.DB, group models.TableGroup) (*GroupDetails, error) {
	tables, err := memberTables(db, group.ID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, t := range tables {
		total = total.Add(t.AccumulatedTotal)
	}
	return &GroupDetails{TableGroup: group, Tables: tables, AccumulatedTotal: total}, nil
}

func memberTables(db *gorm.DB, groupID uint) ([]models.Table, error) {
	tables := []models.Table{}
	err := db.Joins("JOIN group_memberships ON group_memberships.table_id = tables.id").
		Where("group_memberships.group_id = ?", groupID).
		Order("tables.label, tables.id").
		Find(&tables).Error
	return tables, err
}

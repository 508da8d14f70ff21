// Package grouping manages merged-bill table groups: creation from free
// tables, membership changes, closing and the consolidated pre-bill.
//
// Every mutation runs in one transaction and writes both sides of the
// table <-> group link, the membership row and Table.GroupID, together.
package grouping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/metrics"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	EventGroupCreated = "table_group_created"
	EventGroupUpdated = "table_group_updated"
	EventGroupClosed  = "table_group_closed"
)

const (
	InvariantTooFewTables     = "group needs at least two tables"
	InvariantDuplicateMember  = "duplicate table in group"
	InvariantStaffRequired    = "staff required"
	InvariantTableNotFound    = "table not found"
	InvariantTableUnavailable = "table not available"
	InvariantGroupClosed      = "group is closed"
	InvariantNotMember        = "table not in group"
	InvariantPrimaryOrder     = "primary order outside group"
)

// Notifier receives group lifecycle events after they commit.
type Notifier interface {
	Publish(tenantID uint, event string, data interface{})
}

type Manager struct {
	db       *gorm.DB
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(db *gorm.DB, opts ...Option) *Manager {
	m := &Manager{db: db, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type CreateGroupInput struct {
	TenantID       uint   `json:"tenant_id" binding:"required"`
	BranchID       uint   `json:"branch_id" binding:"required"`
	TableIDs       []uint `json:"table_ids" binding:"required"`
	StaffID        uint   `json:"staff_id"`
	PrimaryOrderID *uint  `json:"primary_order_id"`
}

// CreateGroup merges the given free, ungrouped tables into a new OPEN group.
// All members are validated under row locks before anything is written, so
// a rejected request leaves no partial group behind.
func (m *Manager) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.TableGroup, error) {
	if in.StaffID == 0 {
		return nil, utils.NewValidationError(InvariantStaffRequired, "a responsible staff member is required")
	}
	seen := make(map[uint]bool, len(in.TableIDs))
	for _, id := range in.TableIDs {
		if seen[id] {
			return nil, utils.NewValidationError(InvariantDuplicateMember, "table %d is listed twice", id)
		}
		seen[id] = true
	}
	if len(in.TableIDs) < 2 {
		return nil, utils.NewValidationError(InvariantTooFewTables, "got %d", len(in.TableIDs))
	}

	var group models.TableGroup
	err := database.RunInTx(ctx, m.db, "create table group", func(tx *gorm.DB) error {
		var tables []models.Table
		if err := lockForUpdate(tx).Where("id IN ?", in.TableIDs).Find(&tables).Error; err != nil {
			return err
		}
		byID := make(map[uint]models.Table, len(tables))
		for _, t := range tables {
			byID[t.ID] = t
		}

		grouped, err := openMemberships(tx, in.TableIDs)
		if err != nil {
			return err
		}

		// reject on the first offending table, in the order given
		for _, id := range in.TableIDs {
			t, ok := byID[id]
			if !ok || t.TenantID != in.TenantID || t.BranchID != in.BranchID {
				return utils.NewValidationError(InvariantTableNotFound,
					"table %d does not exist in branch %d of tenant %d", id, in.BranchID, in.TenantID)
			}
			if err := eligible(t, grouped); err != nil {
				return err
			}
		}

		if in.PrimaryOrderID != nil {
			if err := primaryOrderOnTables(tx, *in.PrimaryOrderID, in.TableIDs); err != nil {
				return err
			}
		}

		group = models.TableGroup{
			TenantID:       in.TenantID,
			BranchID:       in.BranchID,
			Status:         models.GroupStatusOpen,
			StaffID:        in.StaffID,
			PrimaryOrderID: in.PrimaryOrderID,
			CreatedAt:      m.now(),
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		memberships := make([]models.GroupMembership, 0, len(in.TableIDs))
		for _, id := range in.TableIDs {
			memberships = append(memberships, models.GroupMembership{GroupID: group.ID, TableID: id})
		}
		if err := tx.Create(&memberships).Error; err != nil {
			return err
		}
		return tx.Model(&models.Table{}).Where("id IN ?", in.TableIDs).Update("group_id", group.ID).Error
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.Infof("Table group %d created with tables %v by staff %d", group.ID, in.TableIDs, in.StaffID)
	m.metrics.GroupTransition("create")
	m.publish(group.TenantID, EventGroupCreated, map[string]interface{}{
		"group_id":  group.ID,
		"tenant_id": group.TenantID,
		"table_ids": in.TableIDs,
	})
	return &group, nil
}

// AddTable adds a free, ungrouped table to an OPEN group.
func (m *Manager) AddTable(ctx context.Context, groupID, tableID uint) error {
	var tenantID uint
	err := database.RunInTx(ctx, m.db, "add table to group", func(tx *gorm.DB) error {
		group, err := lockOpenGroup(tx, groupID)
		if err != nil {
			return err
		}
		tenantID = group.TenantID

		var t models.Table
		err = lockForUpdate(tx).First(&t, tableID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && (t.TenantID != group.TenantID || t.BranchID != group.BranchID)) {
			return utils.NewValidationError(InvariantTableNotFound,
				"table %d does not exist in branch %d of tenant %d", tableID, group.BranchID, group.TenantID)
		}
		if err != nil {
			return err
		}

		grouped, err := openMemberships(tx, []uint{tableID})
		if err != nil {
			return err
		}
		if err := eligible(t, grouped); err != nil {
			return err
		}

		if err := tx.Create(&models.GroupMembership{GroupID: groupID, TableID: tableID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Table{}).Where("id = ?", tableID).Update("group_id", groupID).Error
	})
	if err != nil {
		return err
	}

	m.metrics.GroupTransition("add_table")
	m.publish(tenantID, EventGroupUpdated, map[string]interface{}{"group_id": groupID, "tenant_id": tenantID, "added_table_id": tableID})
	return nil
}

// RemoveTable takes a member out of an OPEN group. A group never drops below
// two members this way; closing it is the way to release the last pair.
func (m *Manager) RemoveTable(ctx context.Context, groupID, tableID uint) error {
	var tenantID uint
	err := database.RunInTx(ctx, m.db, "remove table from group", func(tx *gorm.DB) error {
		group, err := lockOpenGroup(tx, groupID)
		if err != nil {
			return err
		}
		tenantID = group.TenantID

		var members int64
		if err := tx.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Count(&members).Error; err != nil {
			return err
		}

		res := tx.Where("group_id = ? AND table_id = ?", groupID, tableID).Delete(&models.GroupMembership{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.NewValidationError(InvariantNotMember, "table %d is not a member of group %d", tableID, groupID)
		}
		if members-1 < 2 {
			return utils.NewValidationError(InvariantTooFewTables,
				"removing table %d would leave group %d with %d table, close the group instead", tableID, groupID, members-1)
		}

		return tx.Model(&models.Table{}).
			Where("id = ? AND group_id = ?", tableID, groupID).
			Update("group_id", nil).Error
	})
	if err != nil {
		return err
	}

	m.metrics.GroupTransition("remove_table")
	m.publish(tenantID, EventGroupUpdated, map[string]interface{}{"group_id": groupID, "tenant_id": tenantID, "removed_table_id": tableID})
	return nil
}

// CloseGroup closes a group on settlement.
func (m *Manager) CloseGroup(ctx context.Context, groupID uint) error {
	return m.close(ctx, groupID, models.CloseReasonSettled)
}

// DissolveGroup closes a group by hand without settling it.
func (m *Manager) DissolveGroup(ctx context.Context, groupID uint) error {
	return m.close(ctx, groupID, models.CloseReasonDissolved)
}

// close marks the group CLOSED, drops every membership and clears every
// back-reference. Orders are left as they are.
func (m *Manager) close(ctx context.Context, groupID uint, reason string) error {
	var (
		released []uint
		tenantID uint
	)
	err := database.RunInTx(ctx, m.db, "close table group", func(tx *gorm.DB) error {
		group, err := lockOpenGroup(tx, groupID)
		if err != nil {
			return err
		}
		tenantID = group.TenantID

		closedAt := m.now()
		err = tx.Model(&models.TableGroup{}).Where("id = ?", groupID).Updates(map[string]interface{}{
			"status":       models.GroupStatusClosed,
			"close_reason": reason,
			"closed_at":    closedAt,
		}).Error
		if err != nil {
			return err
		}

		if err := tx.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Pluck("table_id", &released).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Table{}).Where("group_id = ?", groupID).Update("group_id", nil).Error
	})
	if err != nil {
		return err
	}

	utils.InfoLogger.Infof("Table group %d closed (%s), released tables %v", groupID, reason, released)
	m.metrics.GroupTransition("close_" + reason)
	m.publish(tenantID, EventGroupClosed, map[string]interface{}{
		"group_id":  groupID,
		"tenant_id": tenantID,
		"reason":    reason,
		"table_ids": released,
	})
	return nil
}

func (m *Manager) publish(tenantID uint, event string, data interface{}) {
	if m.notifier != nil {
		m.notifier.Publish(tenantID, event, data)
	}
}

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func lockOpenGroup(tx *gorm.DB, groupID uint) (*models.TableGroup, error) {
	var group models.TableGroup
	err := lockForUpdate(tx).First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("table group %d: %w", groupID, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !group.IsOpen() {
		return nil, utils.NewValidationError(InvariantGroupClosed, "group %d is closed", groupID)
	}
	return &group, nil
}

// openMemberships maps each of tableIDs that already belongs to an OPEN group
// to that group.
func openMemberships(tx *gorm.DB, tableIDs []uint) (map[uint]uint, error) {
	var rows []models.GroupMembership
	err := tx.Model(&models.GroupMembership{}).
		Select("group_memberships.group_id, group_memberships.table_id").
		Joins("JOIN table_groups ON table_groups.id = group_memberships.group_id").
		Where("group_memberships.table_id IN ? AND table_groups.status = ?", tableIDs, models.GroupStatusOpen).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	grouped := make(map[uint]uint, len(rows))
	for _, r := range rows {
		grouped[r.TableID] = r.GroupID
	}
	return grouped, nil
}

func eligible(t models.Table, grouped map[uint]uint) error {
	if !t.IsFree() {
		return utils.NewValidationError(InvariantTableUnavailable, "table %d is %s", t.ID, t.Status)
	}
	if t.GroupID != nil {
		return utils.NewValidationError(InvariantTableUnavailable, "table %d already belongs to group %d", t.ID, *t.GroupID)
	}
	if g, ok := grouped[t.ID]; ok {
		return utils.NewValidationError(InvariantTableUnavailable, "table %d is a member of open group %d", t.ID, g)
	}
	return nil
}

func primaryOrderOnTables(tx *gorm.DB, orderID uint, tableIDs []uint) error {
	var order models.Order
	err := tx.Select("id", "table_id").First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewValidationError(InvariantPrimaryOrder, "order %d does not exist", orderID)
	}
	if err != nil {
		return err
	}
	for _, id := range tableIDs {
		if order.TableID == id {
			return nil
		}
	}
	return utils.NewValidationError(InvariantPrimaryOrder, "order %d is on table %d", orderID, order.TableID)
}

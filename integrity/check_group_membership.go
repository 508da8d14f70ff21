package integrity

import (
	"context"
	"fmt"

	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/models"
	"gorm.io/gorm"
)

const CheckTableGroupMembership = "table-group-membership"

// checkTableGroupMembership keeps the two sides of table grouping in step:
// membership rows and Table.GroupID. Membership of closed or missing groups
// is dropped; a one-sided link to an open group is completed from the side
// that exists. A table claimed by more than one open group is left alone.
// The scans only nominate candidates: every repair re-reads the rows it
// touches inside its own transaction, so a group opened while the check is
// running is left intact.
func (e *Engine) checkTableGroupMembership(ctx context.Context) (CheckResult, error) {
	db := e.db.WithContext(ctx)

	var groups []models.TableGroup
	if err := db.Select("id", "status").Find(&groups).Error; err != nil {
		return CheckResult{}, err
	}
	open := make(map[uint]bool, len(groups))
	for _, g := range groups {
		open[g.ID] = g.IsOpen()
	}

	var memberships []models.GroupMembership
	if err := db.Order("group_id, table_id").Find(&memberships).Error; err != nil {
		return CheckResult{}, err
	}

	var tables []models.Table
	if err := db.Select("id", "group_id").
		Where("group_id IS NOT NULL OR id IN (?)", db.Model(&models.GroupMembership{}).Select("table_id")).
		Order("id").
		Find(&tables).Error; err != nil {
		return CheckResult{}, err
	}
	byID := make(map[uint]models.Table, len(tables))
	for _, t := range tables {
		byID[t.ID] = t
	}

	var f finding
	claims := make(map[uint][]uint)
	for _, m := range memberships {
		_, tableExists := byID[m.TableID]
		if open[m.GroupID] && tableExists {
			claims[m.TableID] = append(claims[m.TableID], m.GroupID)
			continue
		}
		dropped, err := e.dropStaleMembership(ctx, m.GroupID, m.TableID)
		if err != nil {
			return f.result(CheckTableGroupMembership, "", "", ""), err
		}
		if !dropped {
			continue
		}
		f.fixed++
		f.detail = append(f.detail, map[string]interface{}{
			"action": "membership removed", "groupId": m.GroupID, "tableId": m.TableID,
		})
	}

	for _, t := range tables {
		groupIDs := claims[t.ID]
		switch {
		case len(groupIDs) > 1:
			f.flag(ReviewItem{
				Check:    CheckTableGroupMembership,
				Entity:   "table",
				EntityID: t.ID,
				Reason:   fmt.Sprintf("table is a member of %d open groups", len(groupIDs)),
				Details:  map[string]interface{}{"groupIds": groupIDs},
			})

		case len(groupIDs) == 1:
			g := groupIDs[0]
			if t.GroupID != nil && *t.GroupID == g {
				continue
			}
			if t.GroupID != nil && open[*t.GroupID] {
				f.flag(ReviewItem{
					Check:    CheckTableGroupMembership,
					Entity:   "table",
					EntityID: t.ID,
					Reason:   fmt.Sprintf("table points at open group %d but is a member of open group %d", *t.GroupID, g),
				})
				continue
			}
			restored, err := e.restoreGroupRef(ctx, t.ID, g, t.GroupID)
			if err != nil {
				return f.result(CheckTableGroupMembership, "", "", ""), err
			}
			if !restored {
				continue
			}
			f.fixed++
			f.detail = append(f.detail, map[string]interface{}{
				"action": "group reference restored", "groupId": g, "tableId": t.ID,
			})

		case t.GroupID != nil && open[*t.GroupID]:
			g := *t.GroupID
			restored, err := e.restoreMembership(ctx, t.ID, g)
			if err != nil {
				return f.result(CheckTableGroupMembership, "", "", ""), err
			}
			if !restored {
				continue
			}
			f.fixed++
			f.detail = append(f.detail, map[string]interface{}{
				"action": "membership restored", "groupId": g, "tableId": t.ID,
			})

		case t.GroupID != nil:
			stale := *t.GroupID
			cleared, err := e.clearGroupRef(ctx, t.ID, stale)
			if err != nil {
				return f.result(CheckTableGroupMembership, "", "", ""), err
			}
			if !cleared {
				continue
			}
			f.fixed++
			f.detail = append(f.detail, map[string]interface{}{
				"action": "group reference cleared", "groupId": stale, "tableId": t.ID,
			})
		}
	}

	return f.result(CheckTableGroupMembership,
		"group memberships and table references agree",
		fmt.Sprintf("%d group links repaired", f.fixed),
		fmt.Sprintf("%d tables need manual review", f.failed),
	), nil
}

// dropStaleMembership deletes a membership whose group is no longer open or
// whose table is gone.
func (e *Engine) dropStaleMembership(ctx context.Context, groupID, tableID uint) (bool, error) {
	var dropped bool
	err := database.RunInTx(ctx, e.db, "drop stale membership", func(tx *gorm.DB) error {
		isOpen, err := groupIsOpen(tx, groupID)
		if err != nil {
			return err
		}
		var tables int64
		if err := tx.Model(&models.Table{}).Where("id = ?", tableID).Count(&tables).Error; err != nil {
			return err
		}
		if isOpen && tables > 0 {
			return nil
		}
		res := tx.Where("group_id = ? AND table_id = ?", groupID, tableID).Delete(&models.GroupMembership{})
		dropped = res.RowsAffected > 0
		return res.Error
	})
	return dropped, err
}

// restoreGroupRef points a table at the open group it is a member of. The
// table must still hold the reference seen by the scan, and that reference
// must not have become an open group in the meantime.
func (e *Engine) restoreGroupRef(ctx context.Context, tableID, groupID uint, seen *uint) (bool, error) {
	var restored bool
	err := database.RunInTx(ctx, e.db, "restore table group reference", func(tx *gorm.DB) error {
		isOpen, err := groupIsOpen(tx, groupID)
		if err != nil || !isOpen {
			return err
		}
		var members int64
		err = tx.Model(&models.GroupMembership{}).
			Where("group_id = ? AND table_id = ?", groupID, tableID).
			Count(&members).Error
		if err != nil || members == 0 {
			return err
		}

		q := tx.Model(&models.Table{}).Where("id = ?", tableID)
		if seen == nil {
			q = q.Where("group_id IS NULL")
		} else {
			seenOpen, err := groupIsOpen(tx, *seen)
			if err != nil || seenOpen {
				return err
			}
			q = q.Where("group_id = ?", *seen)
		}
		res := q.Update("group_id", groupID)
		restored = res.RowsAffected > 0
		return res.Error
	})
	return restored, err
}

// restoreMembership recreates the membership of a table that points at an
// open group but is not a member of any open group.
func (e *Engine) restoreMembership(ctx context.Context, tableID, groupID uint) (bool, error) {
	var restored bool
	err := database.RunInTx(ctx, e.db, "restore membership", func(tx *gorm.DB) error {
		isOpen, err := groupIsOpen(tx, groupID)
		if err != nil || !isOpen {
			return err
		}
		var pointing int64
		err = tx.Model(&models.Table{}).Where("id = ? AND group_id = ?", tableID, groupID).Count(&pointing).Error
		if err != nil || pointing == 0 {
			return err
		}
		var claimed int64
		err = tx.Model(&models.GroupMembership{}).
			Where("table_id = ? AND group_id IN (?)", tableID,
				tx.Model(&models.TableGroup{}).Select("id").Where("status = ?", models.GroupStatusOpen)).
			Count(&claimed).Error
		if err != nil || claimed > 0 {
			return err
		}
		if err := tx.Create(&models.GroupMembership{GroupID: groupID, TableID: tableID}).Error; err != nil {
			return err
		}
		restored = true
		return nil
	})
	return restored, err
}

// clearGroupRef drops a table's reference to a group that is closed or
// missing. Nothing changes if the group is open by now or the table has
// moved on to another group.
func (e *Engine) clearGroupRef(ctx context.Context, tableID, staleID uint) (bool, error) {
	var cleared bool
	err := database.RunInTx(ctx, e.db, "clear table group reference", func(tx *gorm.DB) error {
		isOpen, err := groupIsOpen(tx, staleID)
		if err != nil || isOpen {
			return err
		}
		res := tx.Model(&models.Table{}).
			Where("id = ? AND group_id = ?", tableID, staleID).
			Update("group_id", nil)
		cleared = res.RowsAffected > 0
		return res.Error
	})
	return cleared, err
}

func groupIsOpen(tx *gorm.DB, groupID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.TableGroup{}).
		Where("id = ? AND status = ?", groupID, models.GroupStatusOpen).
		Count(&n).Error
	return n > 0, err
}

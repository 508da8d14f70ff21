package integrity

import (
	"context"
	"fmt"

	"github.com/yeremiapane/pos-integrity/models"
)

const CheckDuplicateTableLabel = "duplicate-table-label"

type labelGroup struct {
	Label    uint
	TenantID uint
	N        int
}

type labeledTable struct {
	ID       uint `json:"id"`
	BranchID uint `json:"branchId"`
}

// checkDuplicateTableLabel only reports. Which of the tables keeps the label
// is a business decision.
func (e *Engine) checkDuplicateTableLabel(ctx context.Context) (CheckResult, error) {
	var groups []labelGroup
	err := e.db.WithContext(ctx).Model(&models.Table{}).
		Select("label, tenant_id, COUNT(*) AS n").
		Group("label, tenant_id").
		Having("COUNT(*) > 1").
		Order("tenant_id, label").
		Scan(&groups).Error
	if err != nil {
		return CheckResult{}, err
	}

	var f finding
	for _, g := range groups {
		var tables []labeledTable
		err := e.db.WithContext(ctx).Model(&models.Table{}).
			Select("id, branch_id").
			Where("tenant_id = ? AND label = ?", g.TenantID, g.Label).
			Order("id").
			Scan(&tables).Error
		if err != nil {
			return CheckResult{}, err
		}

		details := map[string]interface{}{
			"label":    g.Label,
			"tenantId": g.TenantID,
			"tables":   tables,
		}
		f.detail = append(f.detail, details)
		f.flag(ReviewItem{
			Check:   CheckDuplicateTableLabel,
			Entity:  "table_label",
			Reason:  fmt.Sprintf("label %d is used by %d tables in tenant %d", g.Label, len(tables), g.TenantID),
			Details: details,
		})
	}

	return f.result(CheckDuplicateTableLabel,
		"table labels are unique within every tenant",
		"",
		fmt.Sprintf("%d duplicated labels need manual review", f.failed),
	), nil
}

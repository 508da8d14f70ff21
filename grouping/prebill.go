package grouping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/totals"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

// unknownProduct names merged lines that lost their product.
const unknownProduct = "Unknown product"

type PreBillLine struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// TableBreakdown splits one member's open consumption at the group's
// creation time. Only DuringTotal is part of the group bill.
type TableBreakdown struct {
	TableID     uint            `json:"table_id"`
	Label       uint            `json:"label"`
	BeforeTotal decimal.Decimal `json:"before_total"`
	DuringTotal decimal.Decimal `json:"during_total"`
	BeforeLines int             `json:"before_lines"`
	DuringLines int             `json:"during_lines"`
}

type PreBill struct {
	GroupID        uint             `json:"group_id"`
	TenantID       uint             `json:"tenant_id"`
	BranchID       uint             `json:"branch_id"`
	GroupCreatedAt time.Time        `json:"group_created_at"`
	GeneratedAt    time.Time        `json:"generated_at"`
	Lines          []PreBillLine    `json:"lines"`
	Tables         []TableBreakdown `json:"tables"`
	GrandTotal     decimal.Decimal  `json:"grand_total"`
}

// ConsolidatedPreBill builds the pending bill of an OPEN group. Lines created
// before the group existed stay on their own table's bill; lines created at
// or after that moment are merged by product and unit price across every
// member, so a price change inside the window yields one line per price.
func (m *Manager) ConsolidatedPreBill(ctx context.Context, groupID uint) (*PreBill, error) {
	var bill *PreBill
	err := database.RunInTx(ctx, m.db, "consolidated pre-bill", func(tx *gorm.DB) error {
		var group models.TableGroup
		err := tx.First(&group, groupID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("table group %d: %w", groupID, utils.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !group.IsOpen() {
			return utils.NewValidationError(InvariantGroupClosed, "group %d is closed and has no pre-bill", groupID)
		}

		tables, err := memberTables(tx, group.ID)
		if err != nil {
			return err
		}
		tableIDs := make([]uint, 0, len(tables))
		for _, t := range tables {
			tableIDs = append(tableIDs, t.ID)
		}

		var orders []models.Order
		if len(tableIDs) > 0 {
			err = tx.Select("id", "table_id").
				Where("table_id IN ? AND status IN ?", tableIDs, models.OpenOrderStatuses).
				Find(&orders).Error
			if err != nil {
				return err
			}
		}
		orderTable := make(map[uint]uint, len(orders))
		orderIDs := make([]uint, 0, len(orders))
		for _, o := range orders {
			orderTable[o.ID] = o.TableID
			orderIDs = append(orderIDs, o.ID)
		}

		var lines []models.OrderLine
		if len(orderIDs) > 0 {
			if err := tx.Where("order_id IN ?", orderIDs).Order("id").Find(&lines).Error; err != nil {
				return err
			}
		}

		names, err := productNames(tx, lines)
		if err != nil {
			return err
		}

		bill = buildPreBill(group, tables, orderTable, lines, names)
		bill.GeneratedAt = m.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

type lineKey struct {
	productID uint
	unitPrice string
}

func buildPreBill(group models.TableGroup, tables []models.Table, orderTable map[uint]uint, lines []models.OrderLine, names map[uint]string) *PreBill {
	breakdown := make(map[uint]*TableBreakdown, len(tables))
	bill := &PreBill{
		GroupID:        group.ID,
		TenantID:       group.TenantID,
		BranchID:       group.BranchID,
		GroupCreatedAt: group.CreatedAt,
		Lines:          []PreBillLine{},
		Tables:         make([]TableBreakdown, 0, len(tables)),
		GrandTotal:     decimal.Zero,
	}
	for _, t := range tables {
		breakdown[t.ID] = &TableBreakdown{TableID: t.ID, Label: t.Label, BeforeTotal: decimal.Zero, DuringTotal: decimal.Zero}
	}

	merged := make(map[lineKey]*PreBillLine)
	for _, l := range lines {
		b := breakdown[orderTable[l.OrderID]]
		amount := totals.LineSubtotal(l.Quantity, l.UnitPrice)

		if l.CreatedAt.Before(group.CreatedAt) {
			b.BeforeTotal = b.BeforeTotal.Add(amount)
			b.BeforeLines++
			continue
		}
		b.DuringTotal = b.DuringTotal.Add(amount)
		b.DuringLines++

		var productID uint
		if l.ProductID != nil {
			productID = *l.ProductID
		}
		key := lineKey{productID: productID, unitPrice: l.UnitPrice.String()}
		ml, ok := merged[key]
		if !ok {
			name, found := names[productID]
			if !found {
				name = unknownProduct
			}
			ml = &PreBillLine{ProductID: productID, Name: name, UnitPrice: l.UnitPrice, Subtotal: decimal.Zero}
			merged[key] = ml
		}
		ml.Quantity += l.Quantity
		ml.Subtotal = ml.Subtotal.Add(amount)
	}

	for _, ml := range merged {
		bill.Lines = append(bill.Lines, *ml)
		bill.GrandTotal = bill.GrandTotal.Add(ml.Subtotal)
	}
	sort.Slice(bill.Lines, func(i, j int) bool {
		a, b := bill.Lines[i], bill.Lines[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		return a.UnitPrice.LessThan(b.UnitPrice)
	})

	for _, t := range tables {
		bill.Tables = append(bill.Tables, *breakdown[t.ID])
	}
	return bill
}

func productNames(tx *gorm.DB, lines []models.OrderLine) (map[uint]string, error) {
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		if l.ProductID != nil {
			ids = append(ids, *l.ProductID)
		}
	}
	names := make(map[uint]string)
	if len(ids) == 0 {
		return names, nil
	}

	var products []models.Product
	if err := tx.Select("id", "name").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		names[p.ID] = p.Name
	}
	return names, nil
}

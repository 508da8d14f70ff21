package grouping

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"
	"github.com/yeremiapane/pos-integrity/utils"
)

// RenderPreBillPDF lays out a pre-bill as a printable A4 document.
func RenderPreBillPDF(bill *PreBill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, fmt.Sprintf("Pre-bill for table group %d", bill.GroupID), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Group opened: %s", bill.GroupCreatedAt.Format("2006-01-02 15:04")), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Printed: %s", bill.GeneratedAt.Format("2006-01-02 15:04")), "", 1, "C", false, 0, "")

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(110, 6, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 6, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(0, 6, "Subtotal", "B", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, l := range bill.Lines {
		pdf.CellFormat(110, 5, l.Name, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 5, fmt.Sprintf("%d", l.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 5, utils.FormatMoney(l.Subtotal), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Total: %s", utils.FormatMoney(bill.GrandTotal)), "T", 1, "R", false, 0, "")

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Tables", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, t := range bill.Tables {
		pdf.CellFormat(0, 5, fmt.Sprintf("Table %d: %s in group, %s on own bill",
			t.Label, utils.FormatMoney(t.DuringTotal), utils.FormatMoney(t.BeforeTotal)), "", 1, "L", false, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

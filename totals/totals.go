// Package totals derives the denormalized money fields of the POS store.
// Every function is pure: same inputs, same result, no I/O.
package totals

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/pos-integrity/models"
)

// Tolerance is the largest difference between a persisted and a derived
// amount that is still treated as consistent.
var Tolerance = decimal.NewFromFloat(0.01)

// LineSubtotal is quantity x unit price.
func LineSubtotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// OrderTotal sums the persisted subtotals of the lines.
func OrderTotal(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// TableAccumulated sums the totals of the orders that are still open.
// Paid, completed and cancelled orders are ignored.
func TableAccumulated(orders []models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		if o.IsOpen() {
			total = total.Add(o.Total)
		}
	}
	return total
}

// Drifted reports whether persisted differs from derived by more than
// Tolerance.
func Drifted(persisted, derived decimal.Decimal) bool {
	return persisted.Sub(derived).Abs().GreaterThan(Tolerance)
}

// TableStatusFor returns the status a table must have for the given
// accumulated total. A table with a balance keeps pending_payment if it is
// already there; otherwise it is occupied. A zero balance is always free.
func TableStatusFor(current string, accumulated decimal.Decimal) string {
	if !accumulated.IsPositive() {
		return models.TableStatusFree
	}
	if current == models.TableStatusPendingPayment {
		return models.TableStatusPendingPayment
	}
	return models.TableStatusOccupied
}

// DefaultStatusForAge is the fallback status for an order whose stored status
// is not in the enumeration. It picks by age only and does not try to guess
// what the original value meant.
func DefaultStatusForAge(createdAt, now time.Time) string {
	age := now.Sub(createdAt)
	switch {
	case age > 24*time.Hour:
		return models.OrderStatusCompleted
	case age > 2*time.Hour:
		return models.OrderStatusDelivered
	default:
		return models.OrderStatusReceived
	}
}

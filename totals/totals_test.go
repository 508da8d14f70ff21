package totals

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/yeremiapane/pos-integrity/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineSubtotal(t *testing.T) {
	assert.True(t, d("37.50").Equal(LineSubtotal(3, d("12.50"))))
	assert.True(t, decimal.Zero.Equal(LineSubtotal(0, d("9.99"))))
}

func TestOrderTotal(t *testing.T) {
	lines := []models.OrderLine{
		{Subtotal: d("10.10")},
		{Subtotal: d("0.20")},
		{Subtotal: d("4.70")},
	}
	assert.True(t, d("15").Equal(OrderTotal(lines)))
	assert.True(t, decimal.Zero.Equal(OrderTotal(nil)))
}

func TestTableAccumulated_OnlyOpenOrders(t *testing.T) {
	orders := []models.Order{
		{Status: models.OrderStatusReceived, Total: d("20")},
		{Status: models.OrderStatusPendingPayment, Total: d("5.50")},
		{Status: models.OrderStatusPaid, Total: d("100")},
		{Status: models.OrderStatusCancelled, Total: d("7")},
		{Status: models.OrderStatusCompleted, Total: d("3")},
	}
	assert.True(t, d("25.50").Equal(TableAccumulated(orders)))
}

func TestDrifted(t *testing.T) {
	assert.False(t, Drifted(d("10.00"), d("10.00")))
	assert.False(t, Drifted(d("10.00"), d("10.01")))
	assert.True(t, Drifted(d("10.00"), d("10.02")))
	assert.True(t, Drifted(d("0"), d("-1")))
}

func TestTableStatusFor(t *testing.T) {
	tests := []struct {
		name        string
		current     string
		accumulated string
		want        string
	}{
		{"zero balance frees occupied", models.TableStatusOccupied, "0", models.TableStatusFree},
		{"zero balance frees pending payment", models.TableStatusPendingPayment, "0", models.TableStatusFree},
		{"balance occupies free table", models.TableStatusFree, "12", models.TableStatusOccupied},
		{"balance keeps pending payment", models.TableStatusPendingPayment, "12", models.TableStatusPendingPayment},
		{"unknown status with balance", "dirty", "1", models.TableStatusOccupied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TableStatusFor(tt.current, d(tt.accumulated)))
		})
	}
}

func TestDefaultStatusForAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, models.OrderStatusCompleted, DefaultStatusForAge(now.Add(-25*time.Hour), now))
	assert.Equal(t, models.OrderStatusDelivered, DefaultStatusForAge(now.Add(-3*time.Hour), now))
	assert.Equal(t, models.OrderStatusReceived, DefaultStatusForAge(now.Add(-30*time.Minute), now))
	assert.Equal(t, models.OrderStatusDelivered, DefaultStatusForAge(now.Add(-24*time.Hour), now))
}

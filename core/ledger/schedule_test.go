package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedule(t *testing.T) {
	tests := []struct {
		name       string
		netOwed    int64
		count      int
		wantLen    int
		wantAmount int64
	}{
		{name: "even", netOwed: 1000000, count: 10, wantLen: 10, wantAmount: 100000},
		{name: "rounds down", netOwed: 1000004, count: 10, wantLen: 10, wantAmount: 100000},
		{name: "rounds half up", netOwed: 1000005, count: 10, wantLen: 10, wantAmount: 100001},
		{name: "graduating", netOwed: 1000000, count: 9, wantLen: 9, wantAmount: 111111},
		{name: "nothing owed", netOwed: 0, count: 10, wantLen: 10, wantAmount: 0},
		{name: "negative half", netOwed: -25, count: 10, wantLen: 10, wantAmount: -2},
		{name: "zero count", netOwed: 1000000, count: 0, wantLen: 0},
		{name: "negative count", netOwed: 1000000, count: -3, wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := BuildSchedule(tt.netOwed, tt.count)
			require.Len(t, schedule, tt.wantLen)
			for i, inst := range schedule {
				assert.Equal(t, i+1, inst.Number)
				assert.Equal(t, tt.wantAmount, inst.ExpectedAmount)
				assert.False(t, inst.Paid)
				assert.Empty(t, inst.PartialPayments)
			}
		})
	}
}

// The per-installment amount is rounded and the remainder is not absorbed anywhere,
// so sum(expected) == netOwed only holds for evenly divisible amounts.
// Historical ledgers depend on this; the drift is reported, not fixed.
func TestBuildSchedule_roundingDrift(t *testing.T) {
	tests := []struct {
		netOwed   int64
		count     int
		wantDrift int64
	}{
		{netOwed: 1000000, count: 10, wantDrift: 0},
		{netOwed: 1265000, count: 10, wantDrift: 0},
		{netOwed: 1000000, count: 9, wantDrift: -1}, // 9 x 111111
		{netOwed: 1000005, count: 10, wantDrift: 5}, // 10 x 100001
		{netOwed: 1138500, count: 9, wantDrift: 0},  // 9 x 126500
		{netOwed: 1000007, count: 9, wantDrift: 1},  // 9 x 111112
	}
	for _, tt := range tests {
		schedule := BuildSchedule(tt.netOwed, tt.count)
		drift := ScheduleDrift(tt.netOwed, schedule)
		assert.Equal(t, tt.wantDrift, drift, "netOwed=%d count=%d", tt.netOwed, tt.count)
		if drift != 0 {
			t.Logf("rounding drift: netOwed=%s count=%d sum(expected)=%s",
				FormatCurrency(tt.netOwed), tt.count, FormatCurrency(tt.netOwed+drift))
		}
	}
}

func TestInstallment_amounts(t *testing.T) {
	inst := Installment{Number: 1, ExpectedAmount: 100000}
	assert.Equal(t, int64(0), inst.Credited())
	assert.Equal(t, int64(100000), inst.Outstanding())

	inst.PartialPayments = []PartialPayment{{Amount: 30000}, {Amount: 20000}}
	assert.Equal(t, int64(50000), inst.Credited())
	assert.Equal(t, int64(50000), inst.CreditedTotal())
	assert.Equal(t, int64(50000), inst.Outstanding())

	inst.Paid = true
	assert.Equal(t, int64(100000), inst.CreditedTotal())
	assert.Equal(t, int64(0), inst.Outstanding())
}

func TestDueDate(t *testing.T) {
	assert.Equal(t, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), DueDate(1, 2025, 5))
	assert.Equal(t, time.Date(2025, time.December, 5, 0, 0, 0, 0, time.UTC), DueDate(10, 2025, 5))
	assert.Equal(t, "Marzo", MonthName(1))
	assert.Equal(t, "Diciembre", MonthName(10))
	assert.Equal(t, "N/A", MonthName(11))
}

package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(name, class, tuition, scholarship, reported string, raw ...string) InputRow {
	payments := make([]string, RawInstallmentColumns)
	copy(payments, raw)
	return InputRow{
		Name:                   name,
		NationalID:             "12.345.678-9",
		ClassName:              class,
		SchoolYear:             2025,
		TuitionGross:           tuition,
		Scholarship:            scholarship,
		RawInstallmentPayments: payments,
		ReportedTotalPaid:      reported,
	}
}

func TestReconcile(t *testing.T) {
	res := Reconcile(row("AGUAYO LARA ISIDORA", "3 BASICO A", "$1.265.000", "$126.500", "379500",
		"$113.850", "$113.850", "151800", "-", ""), DefaultPolicy)

	acc := res.Account
	assert.Equal(t, "123456789", acc.ID)
	assert.Equal(t, 2025, acc.SchoolYear)
	assert.Equal(t, int64(1265000), acc.TuitionGross)
	assert.Equal(t, int64(126500), acc.Scholarship)
	assert.Equal(t, 10, acc.InstallmentCount)
	require.Len(t, acc.Installments, 10)

	// 113850 + 113850 complete 1 and 2; 151800 completes 3 and leaves 37950 on 4
	assert.Equal(t, []int{1, 2, 3}, paidNumbers(acc.Installments))
	assert.Equal(t, []int64{37950}, partials(acc.Installments[3]))
	assert.Equal(t, int64(379500), acc.TotalPaidReal)
	assert.Equal(t, int64(759000), acc.Pending)
	assert.Equal(t, StatusPending, acc.Status)

	assert.Equal(t, int64(379500), res.Discrepancy.RawTotal)
	assert.Equal(t, int64(379500), res.Discrepancy.Reported)
	assert.Equal(t, int64(379500), res.Discrepancy.Credited)
	assert.False(t, res.Discrepancy.Flagged(1))
	assert.False(t, res.NeedsReview())
}

func TestReconcile_graduatingClassIgnoresLastColumn(t *testing.T) {
	raw := []string{"100000", "100000", "100000", "100000", "100000", "100000", "100000", "100000", "100000", "100000"}
	res := Reconcile(row("ARANCIBIA ALVAREZ", "4 MEDIO B", "900000", "0", "1000000", raw...), DefaultPolicy)

	assert.Equal(t, 9, res.Account.InstallmentCount)
	assert.Equal(t, []Overflow{{Origin: 10, Amount: 100000}}, res.IgnoredColumns)
	assert.Equal(t, int64(900000), res.Account.TotalPaidReal)
	assert.Equal(t, StatusCurrent, res.Account.Status)
	assert.Equal(t, int64(0), res.Allocation.LeftoverOverflow)
	assert.False(t, res.Discrepancy.Flagged(1))
	assert.True(t, res.NeedsReview())
}

func TestReconcile_overflow(t *testing.T) {
	res := Reconcile(row("X", "1 BASICO A", "$1.000.000", "0", "1200000", "", "", "", "", "", "", "", "", "", "$1.200.000"), DefaultPolicy)

	assert.Equal(t, []int{10}, paidNumbers(res.Account.Installments))
	assert.Equal(t, int64(1100000), res.Allocation.LeftoverOverflow)
	assert.Equal(t, int64(100000), res.Account.TotalPaidReal)
	assert.True(t, res.NeedsReview())
	assert.Equal(t, StatusLateEnrollment, res.Account.Status)

	// the uncredited money is reported as overflow, not as a discrepancy
	assert.Equal(t, int64(100000), res.Discrepancy.Credited)
	assert.Equal(t, int64(1200000), res.Discrepancy.Reported)
	assert.Equal(t, int64(0), res.Discrepancy.Difference)
	assert.False(t, res.Discrepancy.Flagged(1))
}

func TestReconcile_discrepancy(t *testing.T) {
	tests := []struct {
		name     string
		reported string
		wantDiff int64
		flagged  bool
	}{
		{name: "matches", reported: "200000", wantDiff: 0},
		{name: "within tolerance", reported: "199999", wantDiff: 1},
		{name: "over tolerance", reported: "$150.000", wantDiff: 50000, flagged: true},
		{name: "reported more", reported: "250000", wantDiff: -50000, flagged: true},
		{name: "missing total", reported: "", wantDiff: 200000, flagged: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(row("X", "1 MEDIO A", "1000000", "0", tt.reported, "100000", "100000"), DefaultPolicy)
			assert.Equal(t, tt.wantDiff, res.Discrepancy.Difference)
			assert.Equal(t, tt.flagged, res.Discrepancy.Flagged(1))
		})
	}
}

func TestReconcile_fullScholarship(t *testing.T) {
	res := Reconcile(row("X", "2 BASICO A", "$1.000.000", "$1.000.000", "0"), FixedPolicy(10))

	assert.Equal(t, StatusFullyExempt, res.Account.Status)
	assert.Equal(t, int64(0), res.Account.Pending)
	for _, inst := range res.Account.Installments {
		assert.Equal(t, int64(0), inst.ExpectedAmount)
	}
}

func TestClassPolicy(t *testing.T) {
	assert.Equal(t, 10, DefaultPolicy.InstallmentCount("3 MEDIO A"))
	assert.Equal(t, 9, DefaultPolicy.InstallmentCount("4 MEDIO A"))
	assert.Equal(t, 9, DefaultPolicy.InstallmentCount(" 4 medio c"))
	assert.Equal(t, 10, DefaultPolicy.InstallmentCount("4 BASICO A"))
	assert.Equal(t, 10, ClassPolicy{Regular: 10, Graduating: 0, GraduatingPrefix: "4 MEDIO"}.InstallmentCount("4 MEDIO A"))
	assert.Equal(t, 12, FixedPolicy(12).InstallmentCount("anything"))
}

func TestReconcileBatch(t *testing.T) {
	rows := make([]InputRow, 50)
	for i := range rows {
		rows[i] = row(fmt.Sprintf("STUDENT %02d", i), "1 BASICO A", "1000000", "0", "", fmt.Sprint(i*10000))
		rows[i].Line = i + 2
	}

	results, err := ReconcileBatch(context.Background(), rows, DefaultPolicy, 4)
	require.NoError(t, err)
	require.Len(t, results, len(rows))
	for i, res := range results {
		assert.Equal(t, i+2, res.Line)
		assert.Equal(t, rows[i].Name, res.Account.Name)
		assert.Equal(t, int64(i*10000), res.Account.TotalPaidReal)
		assert.Equal(t, Reconcile(rows[i], DefaultPolicy), res)
	}

	totals := InstallmentTotals(accountsOf(results))
	require.Len(t, totals, 10)
	var want, got int64
	for i := range rows {
		want += int64(i * 10000)
	}
	for _, total := range totals {
		got += total
	}
	assert.Equal(t, want, got)
	assert.Equal(t, int64(40*100000+450000), totals[0]) // rows 10..49 complete it, rows 1..9 leave partials
}

func TestReconcileBatch_canceled(t *testing.T) {
	rows := []InputRow{row("A", "1 BASICO A", "1000000", "0", ""), row("B", "1 BASICO A", "1000000", "0", "")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := ReconcileBatch(ctx, rows, DefaultPolicy, 0)
	assert.Equal(t, context.Canceled, err)
	assert.Len(t, results, 2)
}

func accountsOf(results []Result) []Account {
	accounts := make([]Account, 0, len(results))
	for _, res := range results {
		accounts = append(accounts, res.Account)
	}
	return accounts
}

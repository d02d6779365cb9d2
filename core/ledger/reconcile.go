package ledger

import (
	"context"
	"sync"
)

// RawInstallmentColumns is the number of installment columns of a ledger export row.
const RawInstallmentColumns = 10

type (
	// InputRow is one student row of a ledger export, still as text.
	InputRow struct {
		Line                   int
		Name                   string
		NationalID             string
		ClassName              string
		SchoolYear             int
		TuitionGross           string
		Scholarship            string
		RawInstallmentPayments []string
		ReportedTotalPaid      string
	}

	// Discrepancy compares the engine totals with the total reported by the export.
	// It is a signal for operators and is never corrected automatically.
	// Only RawTotal is compared with Reported: money in RawTotal that was not credited is
	// listed as overflow or ignored columns, so Credited is informative and never flagged.
	Discrepancy struct {
		RawTotal   int64 `json:"rawTotal"` // sum of every installment column
		Credited   int64 `json:"credited"`
		Reported   int64 `json:"reported"`
		Difference int64 `json:"difference"` // RawTotal - Reported
	}

	Result struct {
		Line           int         `json:"line"`
		Account        Account     `json:"account"`
		Allocation     Allocation  `json:"allocation"`
		Discrepancy    Discrepancy `json:"discrepancy"`
		IgnoredColumns []Overflow  `json:"ignoredColumns,omitempty"` // amounts in columns past the installment count
	}
)

// Flagged reports whether the raw installment columns disagree with the reported total
// by more than tolerance pesos.
func (d Discrepancy) Flagged(tolerance int64) bool {
	diff := d.Difference
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

// NeedsReview reports whether the row needs manual review: money was left over or ignored.
func (r Result) NeedsReview() bool {
	return r.Allocation.LeftoverOverflow > 0 || len(r.IgnoredColumns) > 0
}

// Reconcile rebuilds the account of one row from scratch:
// parse, build the schedule, allocate the raw payments and classify.
func Reconcile(row InputRow, policy CountPolicy) Result {
	if policy == nil {
		policy = DefaultPolicy
	}

	acc := Account{
		ID:           CleanRUT(row.NationalID),
		Name:         row.Name,
		ClassName:    row.ClassName,
		SchoolYear:   row.SchoolYear,
		TuitionGross: ParseCurrency(row.TuitionGross),
		Scholarship:  ParseCurrency(row.Scholarship),
	}
	acc.InstallmentCount = policy.InstallmentCount(row.ClassName)
	acc.Installments = BuildSchedule(acc.NetOwed(), acc.InstallmentCount)

	res := Result{Line: row.Line}
	var raw []RawPayment
	for i, text := range row.RawInstallmentPayments {
		amount := ParseCurrency(text)
		res.Discrepancy.RawTotal += amount
		if amount <= 0 {
			continue
		}
		origin := i + 1
		if origin > acc.InstallmentCount {
			res.IgnoredColumns = append(res.IgnoredColumns, Overflow{Origin: origin, Amount: amount})
			continue
		}
		raw = append(raw, RawPayment{Origin: origin, Amount: amount, Source: SourceImport})
	}

	res.Allocation = Allocate(acc.Installments, raw)
	acc.Recompute()
	res.Account = acc

	res.Discrepancy.Credited = acc.TotalPaidReal
	res.Discrepancy.Reported = ParseCurrency(row.ReportedTotalPaid)
	res.Discrepancy.Difference = res.Discrepancy.RawTotal - res.Discrepancy.Reported
	return res
}

// ReconcileBatch reconciles rows concurrently with up to workers goroutines.
// Results keep the order of rows. Once ctx is done no new row is started and ctx.Err()
// is returned along with the rows reconciled so far (the others are left zero).
func ReconcileBatch(ctx context.Context, rows []InputRow, policy CountPolicy, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(rows))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = Reconcile(rows[i], policy)
			}
		}()
	}

	var err error
dispatch:
	for i := range rows {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return results, err
}

// InstallmentTotals sums, per installment number, what was credited across accounts.
// The returned slice is indexed by installment number - 1.
func InstallmentTotals(accounts []Account) []int64 {
	var totals []int64
	for _, acc := range accounts {
		for _, inst := range acc.Installments {
			for len(totals) < inst.Number {
				totals = append(totals, 0)
			}
			totals[inst.Number-1] += inst.CreditedTotal()
		}
	}
	return totals
}

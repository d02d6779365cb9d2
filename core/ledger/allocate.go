package ledger

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNothingSelected = errors.New("no installment selected")
	ErrNonPositive     = errors.New("amount must be greater than zero")
	ErrExceedsDebt     = errors.New("amount exceeds the outstanding debt of the selected installments")
)

type (
	// RawPayment is an amount recorded against an installment column of the source ledger.
	// Origin is where it was recorded, not necessarily where it ends up credited.
	RawPayment struct {
		Origin int
		Amount int64
		Source string
		Date   time.Time
	}

	// Overflow is money left after a raw payment ran past the last installment.
	Overflow struct {
		Origin int   `json:"origin"`
		Amount int64 `json:"amount"`
	}

	Allocation struct {
		TotalCredited    int64      `json:"totalCredited"`
		LeftoverOverflow int64      `json:"leftoverOverflow"`
		Overflows        []Overflow `json:"overflows,omitempty"`
	}
)

// Allocate distributes raw payments over the schedule, mutating it in place.
//
// Payments are applied in ascending origin order. Each one starts at its origin
// installment and only moves forward: paid installments are skipped, a payment that
// covers the shortfall completes the installment (dropping its partials) and the rest
// spills into the next one, and a payment short of the shortfall becomes a partial
// payment and is fully consumed. Earlier unpaid installments are never touched.
// Money left after the last installment is reported, never credited.
func Allocate(schedule []Installment, raw []RawPayment) Allocation {
	payments := make([]RawPayment, len(raw))
	copy(payments, raw)
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].Origin < payments[j].Origin })

	var alloc Allocation
	for _, p := range payments {
		if p.Amount <= 0 {
			continue
		}
		if left := apply(schedule, p); left > 0 {
			alloc.LeftoverOverflow += left
			alloc.Overflows = append(alloc.Overflows, Overflow{Origin: p.Origin, Amount: left})
		}
	}
	alloc.TotalCredited = TotalCredited(schedule)
	return alloc
}

// apply credits one raw payment and returns the amount that could not be credited.
func apply(schedule []Installment, p RawPayment) int64 {
	amount := p.Amount
	source := p.Source
	if source == "" {
		source = SourceImport
	}

	cursor := p.Origin
	if cursor < 1 {
		cursor = 1
	}
	for amount > 0 && cursor <= len(schedule) {
		inst := &schedule[cursor-1]
		if inst.Paid {
			cursor++
			continue
		}

		shortfall := inst.ExpectedAmount - inst.Credited()
		if amount >= shortfall {
			inst.Paid = true
			inst.PartialPayments = []PartialPayment{}
			inst.PaidAt = p.Date
			amount -= shortfall
			cursor++
		} else {
			inst.PartialPayments = append(inst.PartialPayments, PartialPayment{
				Amount: amount,
				Source: source,
				Date:   p.Date,
			})
			amount = 0
		}
	}
	return amount
}

// TotalCredited sums the expected amount of paid installments and the partials of the others.
func TotalCredited(schedule []Installment) int64 {
	var sum int64
	for _, inst := range schedule {
		sum += inst.CreditedTotal()
	}
	return sum
}

// Pending returns what is still owed, never negative.
func Pending(netOwed, totalPaid int64) int64 {
	if p := netOwed - totalPaid; p > 0 {
		return p
	}
	return 0
}

// PaidCount returns the number of fully paid installments.
func PaidCount(schedule []Installment) int {
	var n int
	for _, inst := range schedule {
		if inst.Paid {
			n++
		}
	}
	return n
}

// ApplyDeskPayment credits a payment taken at the treasury desk to the selected installments.
//
// The amount may not exceed the outstanding total of the selection. When it covers it,
// every selected installment is completed with the given methods; otherwise the amount is
// spread in selection order, each installment getting at most its outstanding amount.
// It returns the installment numbers that were credited.
func ApplyDeskPayment(schedule []Installment, numbers []int, methods []PaymentMethod, at time.Time) ([]int, error) {
	var selected []*Installment
	var owed int64
	seen := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > len(schedule) || seen[n] {
			continue
		}
		seen[n] = true
		inst := &schedule[n-1]
		if inst.Outstanding() == 0 {
			continue
		}
		selected = append(selected, inst)
		owed += inst.Outstanding()
	}
	if len(selected) == 0 {
		return nil, ErrNothingSelected
	}

	var amount int64
	for _, m := range methods {
		amount += m.Amount
	}
	switch {
	case amount <= 0:
		return nil, ErrNonPositive
	case amount > owed:
		return nil, ErrExceedsDebt
	}

	var credited []int
	for _, inst := range selected {
		if amount <= 0 {
			break
		}
		part := inst.Outstanding()
		if amount < part {
			part = amount
		}
		amount -= part
		credited = append(credited, inst.Number)

		if part == inst.Outstanding() {
			inst.Paid = true
			inst.PaidAt = at
			inst.Methods = methods
			inst.PartialPayments = []PartialPayment{}
			continue
		}
		inst.PartialPayments = append(inst.PartialPayments, PartialPayment{
			Amount:  part,
			Source:  SourceDesk,
			Date:    at,
			Methods: methods,
		})
	}
	return credited, nil
}

package ledger

import (
	"time"
)

// Payment method kinds accepted at the treasury desk.
const (
	MethodCash     = "cash"
	MethodDebit    = "debit"
	MethodCredit   = "credit"
	MethodCheck    = "check"
	MethodTransfer = "transfer"
	MethodGateway  = "gateway"
)

// Partial payment sources.
const (
	SourceImport = "import"
	SourceDesk   = "desk"
)

var MethodKinds = []string{MethodCash, MethodDebit, MethodCredit, MethodCheck, MethodTransfer, MethodGateway}

type (
	PaymentMethod struct {
		Kind      string `json:"kind"`
		Amount    int64  `json:"amount"`
		Reference string `json:"reference,omitempty"` // check number, transfer id...
	}

	PartialPayment struct {
		Amount  int64           `json:"amount"`
		Source  string          `json:"source"`
		Date    time.Time       `json:"date"`
		Methods []PaymentMethod `json:"methods,omitempty"`
	}

	// Installment is one "cuota" of the yearly tuition.
	// It is Paid only when fully covered; until then PartialPayments holds what was credited.
	Installment struct {
		Number          int              `json:"number"`
		ExpectedAmount  int64            `json:"expectedAmount"`
		Paid            bool             `json:"paid"`
		PartialPayments []PartialPayment `json:"partialPayments"`
		PaidAt          time.Time        `json:"paidAt,omitempty"`
		Methods         []PaymentMethod  `json:"methods,omitempty"`
	}
)

// Credited returns the partial amounts credited to an unpaid installment.
func (inst Installment) Credited() int64 {
	var sum int64
	for _, p := range inst.PartialPayments {
		sum += p.Amount
	}
	return sum
}

// CreditedTotal returns what the installment contributes to the account total.
func (inst Installment) CreditedTotal() int64 {
	if inst.Paid {
		return inst.ExpectedAmount
	}
	return inst.Credited()
}

// Outstanding returns what is still owed on the installment.
func (inst Installment) Outstanding() int64 {
	if inst.Paid {
		return 0
	}
	if o := inst.ExpectedAmount - inst.Credited(); o > 0 {
		return o
	}
	return 0
}

// ExpectedAmount rounds netOwed / count half-up.
func ExpectedAmount(netOwed int64, count int) int64 {
	if count <= 0 {
		return 0
	}
	n := int64(count)
	return floorDiv(2*netOwed+n, 2*n)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// BuildSchedule returns count empty installments, all expecting the same rounded amount.
// The rounding remainder is not absorbed by any installment (see ScheduleDrift).
func BuildSchedule(netOwed int64, count int) []Installment {
	if count <= 0 {
		return []Installment{}
	}
	amount := ExpectedAmount(netOwed, count)
	schedule := make([]Installment, count)
	for i := range schedule {
		schedule[i] = Installment{
			Number:          i + 1,
			ExpectedAmount:  amount,
			PartialPayments: []PartialPayment{},
		}
	}
	return schedule
}

// ScheduleDrift returns sum(expected amounts) - netOwed. Non-zero when netOwed is not
// evenly divisible by the installment count.
func ScheduleDrift(netOwed int64, schedule []Installment) int64 {
	var sum int64
	for _, inst := range schedule {
		sum += inst.ExpectedAmount
	}
	return sum - netOwed
}

// DueDate returns the due date of the installment: installment k is due on dueDay of
// month k+2 of the school year (installment 1 is due in March).
func DueDate(number, schoolYear, dueDay int) time.Time {
	return time.Date(schoolYear, time.Month(number+2), dueDay, 0, 0, 0, 0, time.UTC)
}

// MonthName returns the spanish name of the month the installment is due in.
func MonthName(number int) string {
	months := [...]string{"", "Marzo", "Abril", "Mayo", "Junio", "Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre"}
	if number < 1 || number >= len(months) {
		return "N/A"
	}
	return months[number]
}

package ledger

import (
	"time"
)

// AccountStatus is the derived state of a student account.
type AccountStatus string

const (
	StatusFullyExempt    AccountStatus = "fully-exempt"
	StatusCurrent        AccountStatus = "current"
	StatusPending        AccountStatus = "pending"
	StatusLateEnrollment AccountStatus = "late-enrollment"
	StatusDelinquent     AccountStatus = "delinquent"
)

var AccountStatuses = []AccountStatus{
	StatusFullyExempt, StatusCurrent, StatusPending, StatusLateEnrollment, StatusDelinquent,
}

func (s AccountStatus) Valid() bool {
	for _, st := range AccountStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// InstallmentState is what an operator sees for a single installment.
type InstallmentState string

const (
	StatePaid           InstallmentState = "paid"
	StatePartialCurrent InstallmentState = "partial-current"
	StatePartialOverdue InstallmentState = "partial-overdue"
	StateOverdue        InstallmentState = "overdue"
	StatePending        InstallmentState = "pending"
	StateUnassigned     InstallmentState = "unassigned"
)

// the first paid installment after this one suggests a mid-year enrollment
const lateEnrollmentAfter = 3

// Account is the ledger of one student for one school year.
type Account struct {
	ID               string        `json:"rut"`
	Name             string        `json:"name"`
	ClassName        string        `json:"className"`
	SchoolYear       int           `json:"schoolYear"`
	TuitionGross     int64         `json:"tuitionGross"`
	Scholarship      int64         `json:"scholarship"`
	InstallmentCount int           `json:"installmentCount"`
	Installments     []Installment `json:"installments"`
	TotalPaidReal    int64         `json:"totalPaidReal"`
	Pending          int64         `json:"pending"`
	Status           AccountStatus `json:"status"`
}

// NetOwed is always derived from tuition and scholarship.
func (a Account) NetOwed() int64 {
	return a.TuitionGross - a.Scholarship
}

// Recompute refreshes the totals and status from the installments.
func (a *Account) Recompute() {
	a.TotalPaidReal = TotalCredited(a.Installments)
	a.Pending = Pending(a.NetOwed(), a.TotalPaidReal)
	a.Status = Classify(*a)
}

// Classify derives the account status; the first matching rule wins.
func Classify(a Account) AccountStatus {
	switch {
	case a.Scholarship >= a.TuitionGross:
		return StatusFullyExempt
	case a.NetOwed() <= 0, a.Pending <= 0:
		return StatusCurrent
	}

	late := DetectLateEnrollment(a.Installments, a.InstallmentCount)
	if late {
		return StatusLateEnrollment
	}
	if a.TotalPaidReal == 0 {
		return StatusDelinquent
	}
	return StatusPending
}

// DetectLateEnrollment reports whether the first paid installment comes after the third one.
func DetectLateEnrollment(schedule []Installment, count int) bool {
	for i := 0; i < len(schedule) && i < count; i++ {
		if schedule[i].Paid {
			return i+1 > lateEnrollmentAfter
		}
	}
	return false
}

// IsOverdue reports whether today is past the due date. On the due date itself the
// installment is not yet overdue.
func IsOverdue(due, today time.Time) bool {
	y, m, d := today.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).After(due)
}

// StateOf derives the display state of an installment.
func StateOf(inst Installment, due, today time.Time) InstallmentState {
	if inst.Paid {
		return StatePaid
	}
	if inst.ExpectedAmount == 0 {
		return StateUnassigned
	}

	overdue := IsOverdue(due, today)
	if credited := inst.Credited(); credited > 0 && credited < inst.ExpectedAmount {
		if overdue {
			return StatePartialOverdue
		}
		return StatePartialCurrent
	}
	if overdue {
		return StateOverdue
	}
	return StatePending
}

package student

import (
	"time"

	"github.com/tesoreria/backend/core/ledger"
)

// Notice kinds
const (
	NoticeDelinquent = "delinquent"
	NoticeStatement  = "statement"
)

// Student is a student account of the roster with its reconciled ledger.
type Student struct {
	ledger.Account

	Guardian          string    `json:"guardian"`
	GuardianEmail     string    `json:"guardianEmail"`
	ReportedTotalPaid int64     `json:"reportedTotalPaid"` // as found in the imported ledger
	RawTotal          int64     `json:"rawTotal"`          // sum of the imported installment columns
	ImportedAt        time.Time `json:"importedAt"`        // UTC
	UpdatedAt         time.Time `json:"updatedAt"`         // UTC
}

// PaidInstallments returns the number of fully paid installments.
func (s Student) PaidInstallments() int {
	return ledger.PaidCount(s.Installments)
}

// InstallmentView is an installment with its display state at a given day.
type InstallmentView struct {
	ledger.Installment

	Month       string                  `json:"month"`
	DueDate     time.Time               `json:"dueDate"`
	Credited    int64                   `json:"credited"`
	Outstanding int64                   `json:"outstanding"`
	State       ledger.InstallmentState `json:"state"`
}

// StudentView is what operators see of a student at a given day.
type StudentView struct {
	Student

	NetOwed      int64             `json:"netOwed"`
	Installments []InstallmentView `json:"installments"`
}

// Contact is the guardian contact of a student.
type Contact struct {
	RUT         string `json:"rut"`
	StudentName string `json:"studentName"`
	Guardian    string `json:"guardian"`
	Email       string `json:"email"`
}

// Receipt is issued for every payment taken at the treasury desk.
type Receipt struct {
	ID           string                 `json:"id"`
	Number       string                 `json:"number"` // YYYYMM + 6 digit sequence
	RUT          string                 `json:"rut"`
	StudentName  string                 `json:"studentName"`
	Amount       int64                  `json:"amount"`
	Partial      bool                   `json:"partial"`
	Installments []int                  `json:"installments"`
	Methods      []ledger.PaymentMethod `json:"methods"`
	IssuedAt     time.Time              `json:"issuedAt"` // UTC
}

// Notice records an email sent to a guardian.
type Notice struct {
	ID           string    `json:"id"`
	RUT          string    `json:"rut"`
	Kind         string    `json:"kind"`
	Email        string    `json:"email"`
	Amount       int64     `json:"amount"`
	Installments []int     `json:"installments"`
	SentAt       time.Time `json:"sentAt"` // UTC
}

// NewPayment is a payment taken at the treasury desk over the selected installments.
type NewPayment struct {
	Installments []int       `json:"installments" validate:"required,min=1,dive,min=1"`
	Methods      []NewMethod `json:"methods" validate:"required,min=1,dive"`
}

type NewMethod struct {
	Kind      string `json:"kind" validate:"required,paymethod"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Reference string `json:"reference"`
}

func (np *NewPayment) Total() int64 {
	var sum int64
	for _, m := range np.Methods {
		sum += m.Amount
	}
	return sum
}

func (np *NewPayment) methods() []ledger.PaymentMethod {
	methods := make([]ledger.PaymentMethod, 0, len(np.Methods))
	for _, m := range np.Methods {
		methods = append(methods, ledger.PaymentMethod{Kind: m.Kind, Amount: m.Amount, Reference: m.Reference})
	}
	return methods
}

type QueryFilter struct {
	Search     string `query:"search"`
	Class      string `query:"class"`
	Status     string `query:"status"`
	SchoolYear int    `query:"year"`
}

// Match reports whether s passes every set field of the filter.
// Search is a case-insensitive match on the name or the RUT.
func (f *QueryFilter) Match(s Student) bool {
	if f == nil {
		return true
	}
	if f.Search != "" && !containsFold(s.Name, f.Search) && !rutContains(s.ID, f.Search) {
		return false
	}
	if f.Class != "" && s.ClassName != f.Class {
		return false
	}
	if f.Status != "" && string(s.Status) != f.Status {
		return false
	}
	if f.SchoolYear != 0 && s.SchoolYear != f.SchoolYear {
		return false
	}
	return true
}

// OrderingFields maps the api ordering fields to storage columns.
var OrderingFields = map[string]string{
	"name":    "name",
	"rut":     "rut",
	"class":   "class_name",
	"pending": "pending",
	"paid":    "total_paid",
	"status":  "status",
}

// ImportIssue is a row of an import needing manual review.
type ImportIssue struct {
	Line   int    `json:"line"`
	RUT    string `json:"rut"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Detail string `json:"detail"`
}

type ImportReport struct {
	ID            string        `json:"id"`
	Source        string        `json:"source"`
	SchoolYear    int           `json:"schoolYear"`
	Imported      int           `json:"imported"`
	Skipped       int           `json:"skipped"`
	Overflows     []ImportIssue `json:"overflows"`
	Discrepancies []ImportIssue `json:"discrepancies"`
	Warnings      []string      `json:"warnings"`
	ImportedAt    time.Time     `json:"importedAt"`
}

type Stats struct {
	Students    int                          `json:"students"`
	Collected   int64                        `json:"collected"`
	Outstanding int64                        `json:"outstanding"` // fully exempt students excluded
	Delinquent  int                          `json:"delinquent"`
	ByStatus    map[ledger.AccountStatus]int `json:"byStatus"`
}

// DiscrepancyEntry compares what the imported ledger reports with what was credited.
type DiscrepancyEntry struct {
	RUT       string `json:"rut"`
	Name      string `json:"name"`
	ClassName string `json:"className"`
	RawTotal  int64  `json:"rawTotal"`
	Reported  int64  `json:"reported"`
	Credited  int64  `json:"credited"`
	// RawTotal - Reported
	Difference int64 `json:"difference"`
}

// InstallmentTotal is the amount credited to an installment number across the roster.
type InstallmentTotal struct {
	Number   int    `json:"number"`
	Month    string `json:"month"`
	Credited int64  `json:"credited"`
	Paid     int    `json:"paid"` // students that fully paid it
}

// ClassSummary totals the accounts of a class.
type ClassSummary struct {
	ClassName  string `json:"className" boil:"class_name"`
	Students   int    `json:"students" boil:"students"`
	NetOwed    int64  `json:"netOwed" boil:"net_owed"`
	Collected  int64  `json:"collected" boil:"collected"`
	Pending    int64  `json:"pending" boil:"pending"`
	Delinquent int    `json:"delinquent" boil:"delinquent"`
	Exempt     int    `json:"exempt" boil:"exempt"`
}

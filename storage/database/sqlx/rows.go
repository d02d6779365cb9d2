package sqlxrepos

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
)

type (
	studentRow struct {
		RUT               string      `db:"rut"`
		Name              string      `db:"name"`
		ClassName         string      `db:"class_name"`
		SchoolYear        int         `db:"school_year"`
		TuitionGross      int64       `db:"tuition_gross"`
		Scholarship       int64       `db:"scholarship"`
		InstallmentCount  int         `db:"installment_count"`
		TotalPaid         int64       `db:"total_paid"`
		Pending           int64       `db:"pending"`
		Status            string      `db:"status"`
		Guardian          null.String `db:"guardian"`
		GuardianEmail     null.String `db:"guardian_email"`
		ReportedTotalPaid int64       `db:"reported_total_paid"`
		RawTotal          int64       `db:"raw_total"`
		ImportedAt        null.Time   `db:"imported_at"`
		UpdatedAt         null.Time   `db:"updated_at"`
	}

	installmentRow struct {
		RUT            string    `db:"rut"`
		Number         int       `db:"number"`
		ExpectedAmount int64     `db:"expected_amount"`
		Paid           bool      `db:"paid"`
		PaidAt         null.Time `db:"paid_at"`
		Methods        null.JSON `db:"methods"`
	}

	partialRow struct {
		ID      int64     `db:"id"`
		RUT     string    `db:"rut"`
		Number  int       `db:"number"`
		Amount  int64     `db:"amount"`
		Source  string    `db:"source"`
		PaidOn  null.Time `db:"paid_on"`
		Methods null.JSON `db:"methods"`
	}

	contactRow struct {
		RUT         string      `db:"rut"`
		StudentName string      `db:"student_name"`
		Guardian    null.String `db:"guardian"`
		Email       string      `db:"email"`
	}

	receiptRow struct {
		ID           string         `db:"id"`
		Number       string         `db:"number"`
		RUT          string         `db:"rut"`
		StudentName  string         `db:"student_name"`
		Amount       int64          `db:"amount"`
		Partial      bool           `db:"partial"`
		Installments pq.Int64Array  `db:"installments"`
		Methods      types.JSONText `db:"methods"`
		IssuedAt     time.Time      `db:"issued_at"`
	}
)

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullMethods(methods []ledger.PaymentMethod) (null.JSON, error) {
	if len(methods) == 0 {
		return null.JSON{}, nil
	}
	b, err := json.Marshal(methods)
	if err != nil {
		return null.JSON{}, errors.Wrap(err, "encoding payment methods")
	}
	return null.JSONFrom(b), nil
}

func unmarshalMethods(j null.JSON) ([]ledger.PaymentMethod, error) {
	if !j.Valid || len(j.JSON) == 0 {
		return nil, nil
	}
	var methods []ledger.PaymentMethod
	if err := json.Unmarshal(j.JSON, &methods); err != nil {
		return nil, errors.Wrap(err, "decoding payment methods")
	}
	return methods, nil
}

func newStudentRow(s student.Student) studentRow {
	return studentRow{
		RUT:               s.ID,
		Name:              s.Name,
		ClassName:         s.ClassName,
		SchoolYear:        s.SchoolYear,
		TuitionGross:      s.TuitionGross,
		Scholarship:       s.Scholarship,
		InstallmentCount:  s.InstallmentCount,
		TotalPaid:         s.TotalPaidReal,
		Pending:           s.Pending,
		Status:            string(s.Status),
		Guardian:          null.NewString(s.Guardian, s.Guardian != ""),
		GuardianEmail:     null.NewString(s.GuardianEmail, s.GuardianEmail != ""),
		ReportedTotalPaid: s.ReportedTotalPaid,
		RawTotal:          s.RawTotal,
		ImportedAt:        nullTime(s.ImportedAt),
		UpdatedAt:         nullTime(s.UpdatedAt),
	}
}

func (row studentRow) student(installments []ledger.Installment) student.Student {
	if installments == nil {
		installments = []ledger.Installment{}
	}
	return student.Student{
		Account: ledger.Account{
			ID:               row.RUT,
			Name:             row.Name,
			ClassName:        row.ClassName,
			SchoolYear:       row.SchoolYear,
			TuitionGross:     row.TuitionGross,
			Scholarship:      row.Scholarship,
			InstallmentCount: row.InstallmentCount,
			Installments:     installments,
			TotalPaidReal:    row.TotalPaid,
			Pending:          row.Pending,
			Status:           ledger.AccountStatus(row.Status),
		},
		Guardian:          row.Guardian.String,
		GuardianEmail:     row.GuardianEmail.String,
		ReportedTotalPaid: row.ReportedTotalPaid,
		RawTotal:          row.RawTotal,
		ImportedAt:        row.ImportedAt.Time,
		UpdatedAt:         row.UpdatedAt.Time,
	}
}

func (row installmentRow) installment() (ledger.Installment, error) {
	methods, err := unmarshalMethods(row.Methods)
	if err != nil {
		return ledger.Installment{}, err
	}
	return ledger.Installment{
		Number:          row.Number,
		ExpectedAmount:  row.ExpectedAmount,
		Paid:            row.Paid,
		PartialPayments: []ledger.PartialPayment{},
		PaidAt:          row.PaidAt.Time,
		Methods:         methods,
	}, nil
}

func (row partialRow) partialPayment() (ledger.PartialPayment, error) {
	methods, err := unmarshalMethods(row.Methods)
	if err != nil {
		return ledger.PartialPayment{}, err
	}
	return ledger.PartialPayment{
		Amount:  row.Amount,
		Source:  row.Source,
		Date:    row.PaidOn.Time,
		Methods: methods,
	}, nil
}

func (row contactRow) contact() student.Contact {
	return student.Contact{
		RUT:         row.RUT,
		StudentName: row.StudentName,
		Guardian:    row.Guardian.String,
		Email:       row.Email,
	}
}

func newReceiptRow(r student.Receipt) (receiptRow, error) {
	methods, err := json.Marshal(r.Methods)
	if err != nil {
		return receiptRow{}, errors.Wrap(err, "encoding payment methods")
	}
	numbers := make(pq.Int64Array, 0, len(r.Installments))
	for _, n := range r.Installments {
		numbers = append(numbers, int64(n))
	}
	return receiptRow{
		ID:           r.ID,
		Number:       r.Number,
		RUT:          r.RUT,
		StudentName:  r.StudentName,
		Amount:       r.Amount,
		Partial:      r.Partial,
		Installments: numbers,
		Methods:      types.JSONText(methods),
		IssuedAt:     r.IssuedAt.UTC(),
	}, nil
}

func (row receiptRow) receipt() (student.Receipt, error) {
	var methods []ledger.PaymentMethod
	if err := row.Methods.Unmarshal(&methods); err != nil {
		return student.Receipt{}, errors.Wrap(err, "decoding payment methods")
	}
	numbers := make([]int, 0, len(row.Installments))
	for _, n := range row.Installments {
		numbers = append(numbers, int(n))
	}
	return student.Receipt{
		ID:           row.ID,
		Number:       row.Number,
		RUT:          row.RUT,
		StudentName:  row.StudentName,
		Amount:       row.Amount,
		Partial:      row.Partial,
		Installments: numbers,
		Methods:      methods,
		IssuedAt:     row.IssuedAt,
	}, nil
}

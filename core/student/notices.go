package student

import (
	"strings"
	"time"

	"github.com/tesoreria/backend/core/ledger"
)

const dateLayout = "02/01/2006"

// email template data; amounts are already formatted
type (
	noticeLine struct {
		Number  int
		Month   string
		DueDate string
		Amount  string
		State   string
	}

	noticeData struct {
		StudentName string
		RUT         string
		ClassName   string
		Guardian    string
		Date        string
		Lines       []noticeLine
		Total       string
		Pending     string

		total int64
	}

	receiptTemplateData struct {
		Number       string
		StudentName  string
		RUT          string
		Amount       string
		Partial      bool
		Installments string
		Methods      []string
		Date         string
		Pending      string
	}
)

var stateLabels = map[ledger.InstallmentState]string{
	ledger.StatePaid:           "Pagada",
	ledger.StatePartialCurrent: "Abono parcial",
	ledger.StatePartialOverdue: "Abono parcial vencido",
	ledger.StateOverdue:        "Vencida",
	ledger.StatePending:        "Pendiente",
	ledger.StateUnassigned:     "Sin asignar",
}

var methodLabels = map[string]string{
	ledger.MethodCash:     "Efectivo",
	ledger.MethodDebit:    "Tarjeta de débito",
	ledger.MethodCredit:   "Tarjeta de crédito",
	ledger.MethodCheck:    "Cheque",
	ledger.MethodTransfer: "Transferencia",
	ledger.MethodGateway:  "Pago en línea",
}

// newNoticeData lists the given installments with what is still owed on each of them.
func newNoticeData(v StudentView, lines []InstallmentView, today time.Time) noticeData {
	data := noticeData{
		StudentName: v.Name,
		RUT:         ledger.FormatRUT(v.ID),
		ClassName:   v.ClassName,
		Guardian:    v.Guardian,
		Date:        today.Format(dateLayout),
		Lines:       make([]noticeLine, 0, len(lines)),
		Pending:     ledger.FormatCurrency(v.Pending),
	}
	for _, iv := range lines {
		data.total += iv.Outstanding
		data.Lines = append(data.Lines, noticeLine{
			Number:  iv.Number,
			Month:   iv.Month,
			DueDate: iv.DueDate.Format(dateLayout),
			Amount:  ledger.FormatCurrency(iv.Outstanding),
			State:   stateLabels[iv.State],
		})
	}
	data.Total = ledger.FormatCurrency(data.total)
	return data
}

func receiptData(r Receipt, s Student) receiptTemplateData {
	numbers := make([]string, 0, len(r.Installments))
	for _, n := range r.Installments {
		numbers = append(numbers, ledger.MonthName(n))
	}
	methods := make([]string, 0, len(r.Methods))
	for _, m := range r.Methods {
		label := methodLabels[m.Kind] + ": " + ledger.FormatCurrency(m.Amount)
		if m.Reference != "" {
			label += " (" + m.Reference + ")"
		}
		methods = append(methods, label)
	}
	return receiptTemplateData{
		Number:       r.Number,
		StudentName:  r.StudentName,
		RUT:          ledger.FormatRUT(r.RUT),
		Amount:       ledger.FormatCurrency(r.Amount),
		Partial:      r.Partial,
		Installments: strings.Join(numbers, ", "),
		Methods:      methods,
		Date:         r.IssuedAt.Format(dateLayout),
		Pending:      ledger.FormatCurrency(s.Pending),
	}
}

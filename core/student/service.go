package student

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
)

var (
	// errors
	ErrNotFound     = errors.New("student not found")
	ErrNothingToPay = errors.New("the selected installments are already paid")
	ErrOverpayment  = errors.New("the payment exceeds the outstanding amount of the selected installments")
	ErrNoContact    = errors.New("no contact email for this student")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// ReplaceAll drops the roster of the school year and stores students in its place.
		ReplaceAll(ctx context.Context, schoolYear int, students []Student, exec ...core.DBExecutor) error
		Upsert(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		Get(ctx context.Context, rut string, exec ...core.DBExecutor) (Student, error)
		// Update locks the student, applies fn to it and stores the result. Nothing is
		// stored when fn fails.
		Update(ctx context.Context, rut string, fn func(*Student) error, exec ...core.DBExecutor) (Student, error)
		// Query applies AND operation on the set QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on the name or the RUT.
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		Delete(ctx context.Context, rut string, exec ...core.DBExecutor) error

		SaveContacts(ctx context.Context, contacts []Contact, exec ...core.DBExecutor) error
		GetContact(ctx context.Context, rut string, exec ...core.DBExecutor) (Contact, error)
		QueryContacts(ctx context.Context, exec ...core.DBExecutor) ([]Contact, error)

		SaveReceipt(ctx context.Context, r Receipt, exec ...core.DBExecutor) (Receipt, error)
		QueryReceipts(ctx context.Context, rut string, exec ...core.DBExecutor) ([]Receipt, error)
		SaveNotice(ctx context.Context, n Notice, exec ...core.DBExecutor) (Notice, error)
	}

	// Reporter aggregates the roster in storage.
	Reporter interface {
		ClassSummaries(ctx context.Context, schoolYear int, exec ...core.DBExecutor) ([]ClassSummary, error)
	}

	// Sequencer hands out increasing numbers per key.
	Sequencer interface {
		Next(ctx context.Context, key string) (int64, error)
	}

	ServiceInterface interface {
		Import(ctx context.Context, batch ImportBatch) (ImportReport, error)
		Verify(ctx context.Context, rows []ledger.InputRow) ([]ledger.Result, error)
		Get(ctx context.Context, rut string) (Student, error)
		View(ctx context.Context, rut string, today time.Time) (StudentView, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		Delete(ctx context.Context, rut string) error
		Save(ctx context.Context, s Student) (Student, error)
		RegisterPayment(ctx context.Context, rut string, np NewPayment) (Receipt, error)
		QueryReceipts(ctx context.Context, rut string) ([]Receipt, error)
		Stats(ctx context.Context, filter *QueryFilter) (Stats, error)
		Discrepancies(ctx context.Context) ([]DiscrepancyEntry, error)
		InstallmentTotals(ctx context.Context) ([]InstallmentTotal, error)
		ClassSummaries(ctx context.Context) ([]ClassSummary, error)
		NotifyDelinquent(ctx context.Context, ruts []string, today time.Time) ([]Notice, error)
		NotifyStatement(ctx context.Context, rut string, today time.Time) (Notice, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		reporter Reporter
		mailSvc  core.EmailService
		seq      Sequencer
		conf     *core.Config
		logger   core.Logger
		policy   ledger.CountPolicy
	}

	// ImportBatch is a parsed ledger export ready to be reconciled.
	ImportBatch struct {
		Source   string
		Rows     []ledger.InputRow
		Skipped  int // rows dropped while parsing
		Contacts []Contact
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

// NewService returns the roster service. db may be nil when the repository is not SQL backed.
func NewService(
	db core.DB,
	repo Repository,
	reporter Reporter,
	mailSvc core.EmailService,
	seq Sequencer,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		reporter: reporter,
		mailSvc:  mailSvc,
		seq:      seq,
		conf:     conf,
		logger:   logger,
		policy: ledger.ClassPolicy{
			Regular:          conf.Treasury.InstallmentCount,
			Graduating:       conf.Treasury.GraduatingCount,
			GraduatingPrefix: conf.Treasury.GraduatingPrefix,
		},
	}
}

// Policy returns the installment count policy of the school.
func (svc *Service) Policy() ledger.CountPolicy { return svc.policy }

// Import reconciles every row of the batch from scratch and replaces the roster of the
// school year with the result. Rows with an invalid or repeated RUT are skipped; money
// that could not be credited and discrepancies with the reported totals are listed in the
// report for manual review.
func (svc *Service) Import(ctx context.Context, batch ImportBatch) (ImportReport, error) {
	now := NowFunc().UTC()
	tolerance := svc.conf.Treasury.DiscrepancyTolerance
	report := ImportReport{
		ID:            uuid.New().String(),
		Source:        batch.Source,
		SchoolYear:    svc.conf.Treasury.SchoolYear,
		Skipped:       batch.Skipped,
		Overflows:     []ImportIssue{},
		Discrepancies: []ImportIssue{},
		Warnings:      []string{},
		ImportedAt:    now,
	}

	results, err := ledger.ReconcileBatch(ctx, batch.Rows, svc.policy, svc.conf.Treasury.ImportWorkers)
	if err != nil {
		return ImportReport{}, errors.Wrap(err, "reconciling rows")
	}

	book := NewContactBook(batch.Contacts)
	students := make([]Student, 0, len(results))
	seen := make(map[string]int, len(results))
	for i, res := range results {
		row, acc := batch.Rows[i], res.Account

		if acc.Name == "" || !ledger.ValidRUT(acc.ID) {
			report.Skipped++
			report.Warnings = append(report.Warnings, fmt.Sprintf("línea %d: RUT inválido %q", row.Line, row.NationalID))
			continue
		}
		if line, dup := seen[acc.ID]; dup {
			report.Skipped++
			report.Warnings = append(report.Warnings, fmt.Sprintf("línea %d: RUT %s repetido (línea %d)", row.Line, acc.ID, line))
			continue
		}
		seen[acc.ID] = row.Line

		for _, ovf := range res.Allocation.Overflows {
			svc.logger.Warn("payment overflow", map[string]interface{}{
				"rut": acc.ID, "line": row.Line, "origin": ovf.Origin, "amount": ovf.Amount,
			})
			report.Overflows = append(report.Overflows, ImportIssue{
				Line:   row.Line,
				RUT:    acc.ID,
				Name:   acc.Name,
				Amount: ovf.Amount,
				Detail: fmt.Sprintf("cuota %d: excedente sin cuota donde abonarse", ovf.Origin),
			})
		}
		for _, ign := range res.IgnoredColumns {
			report.Overflows = append(report.Overflows, ImportIssue{
				Line:   row.Line,
				RUT:    acc.ID,
				Name:   acc.Name,
				Amount: ign.Amount,
				Detail: fmt.Sprintf("cuota %d fuera del plan de %d cuotas", ign.Origin, acc.InstallmentCount),
			})
		}
		if d := res.Discrepancy; d.Flagged(tolerance) {
			report.Discrepancies = append(report.Discrepancies, ImportIssue{
				Line:   row.Line,
				RUT:    acc.ID,
				Name:   acc.Name,
				Amount: d.Difference,
				Detail: fmt.Sprintf("suma de cuotas %s, total informado %s",
					ledger.FormatCurrency(d.RawTotal), ledger.FormatCurrency(d.Reported)),
			})
		}

		if acc.SchoolYear == 0 {
			acc.SchoolYear = report.SchoolYear
		}
		s := Student{
			Account:           acc,
			ReportedTotalPaid: res.Discrepancy.Reported,
			RawTotal:          res.Discrepancy.RawTotal,
			ImportedAt:        now,
			UpdatedAt:         now,
		}
		if c, ok := book.Match(acc.ID, acc.Name); ok {
			s.Guardian = c.Guardian
			s.GuardianEmail = c.Email
		}
		students = append(students, s)
	}

	err = core.WithTx(ctx, svc.db, func(exec ...core.DBExecutor) error {
		if err := svc.repo.ReplaceAll(ctx, report.SchoolYear, students, exec...); err != nil {
			return errors.Wrap(err, "replacing roster")
		}
		if len(batch.Contacts) > 0 {
			return errors.Wrap(svc.repo.SaveContacts(ctx, batch.Contacts, exec...), "saving contacts")
		}
		return nil
	})
	if err != nil {
		return ImportReport{}, err
	}

	report.Imported = len(students)
	svc.logger.Info("roster imported", map[string]interface{}{
		"id":            report.ID,
		"source":        report.Source,
		"imported":      report.Imported,
		"skipped":       report.Skipped,
		"overflows":     len(report.Overflows),
		"discrepancies": len(report.Discrepancies),
	})
	return report, nil
}

// Verify reconciles rows without storing anything.
func (svc *Service) Verify(ctx context.Context, rows []ledger.InputRow) ([]ledger.Result, error) {
	return ledger.ReconcileBatch(ctx, rows, svc.policy, svc.conf.Treasury.ImportWorkers)
}

func (svc *Service) Get(ctx context.Context, rut string) (Student, error) {
	return svc.repo.Get(ctx, ledger.CleanRUT(rut))
}

// View returns the student with the display state of every installment at `today`.
func (svc *Service) View(ctx context.Context, rut string, today time.Time) (StudentView, error) {
	s, err := svc.Get(ctx, rut)
	if err != nil {
		return StudentView{}, err
	}
	return svc.view(s, today), nil
}

func (svc *Service) view(s Student, today time.Time) StudentView {
	v := StudentView{
		Student:      s,
		NetOwed:      s.NetOwed(),
		Installments: make([]InstallmentView, 0, len(s.Installments)),
	}
	for _, inst := range s.Installments {
		due := ledger.DueDate(inst.Number, s.SchoolYear, svc.conf.Treasury.DueDay)
		v.Installments = append(v.Installments, InstallmentView{
			Installment: inst,
			Month:       ledger.MonthName(inst.Number),
			DueDate:     due,
			Credited:    inst.CreditedTotal(),
			Outstanding: inst.Outstanding(),
			State:       ledger.StateOf(inst, due, today),
		})
	}
	return v
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.Query(ctx, filter, ordering)
}

func (svc *Service) Delete(ctx context.Context, rut string) error {
	return svc.repo.Delete(ctx, ledger.CleanRUT(rut))
}

// Save recomputes the totals and status of s before storing it.
func (svc *Service) Save(ctx context.Context, s Student) (Student, error) {
	s.ID = ledger.CleanRUT(s.ID)
	s.Recompute()
	s.UpdatedAt = NowFunc().UTC()
	if s.ImportedAt.IsZero() {
		s.ImportedAt = s.UpdatedAt
	}
	return svc.repo.Upsert(ctx, s)
}

// RegisterPayment credits a payment taken at the treasury desk to the selected installments
// and issues its receipt.
func (svc *Service) RegisterPayment(ctx context.Context, rut string, np NewPayment) (Receipt, error) {
	var rcpt Receipt
	var s Student

	err := core.WithTx(ctx, svc.db, func(exec ...core.DBExecutor) error {
		now := NowFunc().UTC()
		methods := np.methods()
		var credited []int
		var err error
		s, err = svc.repo.Update(ctx, ledger.CleanRUT(rut), func(st *Student) error {
			var err error
			if credited, err = ledger.ApplyDeskPayment(st.Installments, np.Installments, methods, now); err != nil {
				return paymentError(err)
			}
			st.Recompute()
			st.UpdatedAt = now
			return nil
		}, exec...)
		if err != nil {
			return err
		}

		number, err := svc.receiptNumber(ctx, now)
		if err != nil {
			return err
		}
		var partial bool
		for _, n := range credited {
			if !s.Installments[n-1].Paid {
				partial = true
			}
		}
		rcpt, err = svc.repo.SaveReceipt(ctx, Receipt{
			ID:           uuid.New().String(),
			Number:       number,
			RUT:          s.ID,
			StudentName:  s.Name,
			Amount:       np.Total(),
			Partial:      partial,
			Installments: credited,
			Methods:      methods,
			IssuedAt:     now,
		}, exec...)
		return errors.Wrap(err, "saving receipt")
	})
	if err != nil {
		return Receipt{}, err
	}

	svc.logger.Info("payment registered", map[string]interface{}{
		"rut": rcpt.RUT, "receipt": rcpt.Number, "amount": rcpt.Amount, "installments": rcpt.Installments,
	})
	if s.GuardianEmail != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: s.Guardian, Address: s.GuardianEmail}},
			Subject:      "Comprobante de pago N° " + rcpt.Number,
			TemplateName: "receipt",
			TemplateData: receiptData(rcpt, s),
		})
	}
	return rcpt, nil
}

func paymentError(err error) error {
	switch err {
	case ledger.ErrNothingSelected:
		return ErrNothingToPay
	case ledger.ErrExceedsDebt:
		return ErrOverpayment
	case ledger.ErrNonPositive:
		return core.NewValidationError(err, core.FieldError{Field: "methods", Error: "el monto debe ser mayor a cero"})
	}
	return err
}

// receiptNumber returns YYYYMM followed by the 6 digit sequence of the month.
func (svc *Service) receiptNumber(ctx context.Context, at time.Time) (string, error) {
	month := at.Format("200601")
	n, err := svc.seq.Next(ctx, "receipt:"+month)
	if err != nil {
		return "", errors.Wrap(err, "next receipt number")
	}
	return fmt.Sprintf("%s%06d", month, n), nil
}

func (svc *Service) QueryReceipts(ctx context.Context, rut string) ([]Receipt, error) {
	rut = ledger.CleanRUT(rut)
	if _, err := svc.repo.Get(ctx, rut); err != nil {
		return nil, err
	}
	return svc.repo.QueryReceipts(ctx, rut)
}

// Stats summarizes the students matching filter. Fully exempt students owe nothing and
// are left out of the outstanding total.
func (svc *Service) Stats(ctx context.Context, filter *QueryFilter) (Stats, error) {
	students, err := svc.repo.Query(ctx, filter, nil)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{ByStatus: make(map[ledger.AccountStatus]int, len(ledger.AccountStatuses))}
	for _, status := range ledger.AccountStatuses {
		st.ByStatus[status] = 0
	}
	for _, s := range students {
		st.Students++
		st.Collected += s.TotalPaidReal
		st.ByStatus[s.Status]++
		if s.Status != ledger.StatusFullyExempt {
			st.Outstanding += s.Pending
		}
		if s.Status == ledger.StatusDelinquent {
			st.Delinquent++
		}
	}
	return st, nil
}

// Discrepancies lists the students whose imported installment columns do not add up to the
// reported total, largest difference first.
func (svc *Service) Discrepancies(ctx context.Context) ([]DiscrepancyEntry, error) {
	students, err := svc.repo.Query(ctx, nil, []core.DBOrdering{{Field: "name", Ascending: true}})
	if err != nil {
		return nil, err
	}

	tolerance := svc.conf.Treasury.DiscrepancyTolerance
	entries := make([]DiscrepancyEntry, 0)
	for _, s := range students {
		d := ledger.Discrepancy{
			RawTotal:   s.RawTotal,
			Credited:   s.TotalPaidReal,
			Reported:   s.ReportedTotalPaid,
			Difference: s.RawTotal - s.ReportedTotalPaid,
		}
		if !d.Flagged(tolerance) {
			continue
		}
		entries = append(entries, DiscrepancyEntry{
			RUT:        s.ID,
			Name:       s.Name,
			ClassName:  s.ClassName,
			RawTotal:   d.RawTotal,
			Reported:   d.Reported,
			Credited:   d.Credited,
			Difference: d.Difference,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return abs(entries[i].Difference) > abs(entries[j].Difference)
	})
	return entries, nil
}

// InstallmentTotals sums what was credited to each installment number across the roster.
func (svc *Service) InstallmentTotals(ctx context.Context) ([]InstallmentTotal, error) {
	students, err := svc.repo.Query(ctx, nil, nil)
	if err != nil {
		return nil, err
	}

	accounts := make([]ledger.Account, 0, len(students))
	for _, s := range students {
		accounts = append(accounts, s.Account)
	}
	totals := make([]InstallmentTotal, 0, ledger.RawInstallmentColumns)
	for i, credited := range ledger.InstallmentTotals(accounts) {
		totals = append(totals, InstallmentTotal{Number: i + 1, Month: ledger.MonthName(i + 1), Credited: credited})
	}
	for _, s := range students {
		for _, inst := range s.Installments {
			if inst.Paid {
				totals[inst.Number-1].Paid++
			}
		}
	}
	return totals, nil
}

// ClassSummaries totals the roster of the school year per class.
func (svc *Service) ClassSummaries(ctx context.Context) ([]ClassSummary, error) {
	summaries, err := svc.reporter.ClassSummaries(ctx, svc.conf.Treasury.SchoolYear)
	if err != nil {
		return nil, errors.Wrap(err, "summarizing classes")
	}
	return summaries, nil
}

// NotifyDelinquent emails the guardians of the given students the installments they owe
// past due at `today`. Without ruts every student with an overdue installment is notified.
// Students without contact email or overdue installment are skipped.
func (svc *Service) NotifyDelinquent(ctx context.Context, ruts []string, today time.Time) ([]Notice, error) {
	var students []Student
	if len(ruts) == 0 {
		all, err := svc.repo.Query(ctx, nil, []core.DBOrdering{{Field: "name", Ascending: true}})
		if err != nil {
			return nil, err
		}
		students = all
	} else {
		for _, rut := range ruts {
			s, err := svc.Get(ctx, rut)
			if err != nil {
				return nil, errors.Wrapf(err, "getting student %s", rut)
			}
			students = append(students, s)
		}
	}

	notices := make([]Notice, 0)
	messages := make([]*core.EmailMessage, 0)
	for _, s := range students {
		if s.Status == ledger.StatusFullyExempt {
			continue
		}
		v := svc.view(s, today)
		overdue := make([]InstallmentView, 0, len(v.Installments))
		for _, iv := range v.Installments {
			if iv.State == ledger.StateOverdue || iv.State == ledger.StatePartialOverdue {
				overdue = append(overdue, iv)
			}
		}
		if len(overdue) == 0 {
			continue
		}

		to, err := svc.recipient(ctx, s)
		if err != nil {
			svc.logger.Warn("delinquency notice not sent", err, map[string]interface{}{"rut": s.ID})
			continue
		}

		data := newNoticeData(v, overdue, today)
		notices = append(notices, svc.newNotice(s, NoticeDelinquent, to, data))
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{to},
			Subject:      "Aviso de cuotas vencidas - " + s.Name,
			TemplateName: "delinquent",
			TemplateData: data,
		})
	}

	if err := svc.saveNotices(ctx, notices); err != nil {
		return nil, err
	}
	svc.mailSvc.SendMessages(messages...)
	svc.logger.Info("delinquency notices sent", map[string]interface{}{"count": len(notices)})
	return notices, nil
}

// NotifyStatement emails the guardian of the student the state of every installment.
func (svc *Service) NotifyStatement(ctx context.Context, rut string, today time.Time) (Notice, error) {
	s, err := svc.Get(ctx, rut)
	if err != nil {
		return Notice{}, err
	}
	to, err := svc.recipient(ctx, s)
	if err != nil {
		return Notice{}, err
	}

	v := svc.view(s, today)
	data := newNoticeData(v, v.Installments, today)
	notice := svc.newNotice(s, NoticeStatement, to, data)
	if notice, err = svc.repo.SaveNotice(ctx, notice); err != nil {
		return Notice{}, errors.Wrap(err, "saving notice")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Estado de cuenta - " + s.Name,
		TemplateName: "statement",
		TemplateData: data,
	})
	return notice, nil
}

// recipient returns the guardian address of s, looking it up in the contacts when the
// student has none.
func (svc *Service) recipient(ctx context.Context, s Student) (mail.Address, error) {
	if s.GuardianEmail != "" {
		return mail.Address{Name: s.Guardian, Address: s.GuardianEmail}, nil
	}
	c, err := svc.repo.GetContact(ctx, s.ID)
	switch {
	case errors.Cause(err) == ErrNotFound, err == nil && c.Email == "":
		return mail.Address{}, ErrNoContact
	case err != nil:
		return mail.Address{}, err
	}
	return mail.Address{Name: c.Guardian, Address: c.Email}, nil
}

func (svc *Service) newNotice(s Student, kind string, to mail.Address, data noticeData) Notice {
	numbers := make([]int, 0, len(data.Lines))
	for _, l := range data.Lines {
		numbers = append(numbers, l.Number)
	}
	return Notice{
		ID:           uuid.New().String(),
		RUT:          s.ID,
		Kind:         kind,
		Email:        to.Address,
		Amount:       data.total,
		Installments: numbers,
		SentAt:       NowFunc().UTC(),
	}
}

func (svc *Service) saveNotices(ctx context.Context, notices []Notice) error {
	return core.WithTx(ctx, svc.db, func(exec ...core.DBExecutor) error {
		for i, n := range notices {
			saved, err := svc.repo.SaveNotice(ctx, n, exec...)
			if err != nil {
				return errors.Wrap(err, "saving notice")
			}
			notices[i] = saved
		}
		return nil
	})
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
)

const (
	studentColumns = `rut, name, class_name, school_year, tuition_gross, scholarship, installment_count,
		total_paid, pending, status, guardian, guardian_email, reported_total_paid, raw_total, imported_at, updated_at`

	upsertStudentQuery = `INSERT INTO students (` + studentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (rut) DO UPDATE SET
			name = EXCLUDED.name,
			class_name = EXCLUDED.class_name,
			school_year = EXCLUDED.school_year,
			tuition_gross = EXCLUDED.tuition_gross,
			scholarship = EXCLUDED.scholarship,
			installment_count = EXCLUDED.installment_count,
			total_paid = EXCLUDED.total_paid,
			pending = EXCLUDED.pending,
			status = EXCLUDED.status,
			guardian = EXCLUDED.guardian,
			guardian_email = EXCLUDED.guardian_email,
			reported_total_paid = EXCLUDED.reported_total_paid,
			raw_total = EXCLUDED.raw_total,
			imported_at = EXCLUDED.imported_at,
			updated_at = EXCLUDED.updated_at`

	insertInstallmentQuery = `INSERT INTO installments (rut, number, expected_amount, paid, paid_at, methods)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertPartialQuery = `INSERT INTO partial_payments (rut, number, amount, source, paid_on, methods)
		VALUES ($1, $2, $3, $4, $5, $6)`

	upsertContactQuery = `INSERT INTO contacts (rut, student_name, guardian, email) VALUES ($1, $2, $3, $4)
		ON CONFLICT (rut) DO UPDATE SET
			student_name = EXCLUDED.student_name, guardian = EXCLUDED.guardian, email = EXCLUDED.email`

	insertReceiptQuery = `INSERT INTO receipts
		(id, number, rut, student_name, amount, partial, installments, methods, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertNoticeQuery = `INSERT INTO notices (id, rut, kind, email, amount, installments, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

// getExec returns the transaction of the service when there is one.
func (repo studentRepository) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		switch exec := svcExec[0].(type) {
		case sqlx.ExtContext:
			return exec
		case *sql.Tx:
			return &sqlx.Tx{Tx: exec, Mapper: repo.db.Mapper}
		}
	}
	return repo.db
}

// trapNoRowsErr maps psql "no rows" err to student.ErrNotFound
func (repo studentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return student.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo studentRepository) ReplaceAll(ctx context.Context, schoolYear int, students []student.Student, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if _, err := exe.ExecContext(ctx, "DELETE FROM students WHERE school_year = $1", schoolYear); err != nil {
		return errors.Wrap(err, "deleting roster")
	}
	for _, s := range students {
		if err := repo.save(ctx, exe, s); err != nil {
			return errors.Wrapf(err, "saving student %s", s.ID)
		}
	}
	return nil
}

func (repo studentRepository) Upsert(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	if err := repo.save(ctx, repo.getExec(exec), s); err != nil {
		return student.Student{}, errors.Wrap(err, "upserting student")
	}
	return s, nil
}

// save writes the student row and replaces its installments and partial payments.
func (repo studentRepository) save(ctx context.Context, exe sqlx.ExtContext, s student.Student) error {
	row := newStudentRow(s)
	_, err := exe.ExecContext(ctx, upsertStudentQuery,
		row.RUT, row.Name, row.ClassName, row.SchoolYear, row.TuitionGross, row.Scholarship, row.InstallmentCount,
		row.TotalPaid, row.Pending, row.Status, row.Guardian, row.GuardianEmail, row.ReportedTotalPaid, row.RawTotal,
		row.ImportedAt, row.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "writing student")
	}

	// partial payments cascade
	if _, err = exe.ExecContext(ctx, "DELETE FROM installments WHERE rut = $1", s.ID); err != nil {
		return errors.Wrap(err, "deleting installments")
	}
	for _, inst := range s.Installments {
		methods, err := nullMethods(inst.Methods)
		if err != nil {
			return err
		}
		_, err = exe.ExecContext(ctx, insertInstallmentQuery,
			s.ID, inst.Number, inst.ExpectedAmount, inst.Paid, nullTime(inst.PaidAt), methods)
		if err != nil {
			return errors.Wrapf(err, "inserting installment %d", inst.Number)
		}

		for _, p := range inst.PartialPayments {
			methods, err := nullMethods(p.Methods)
			if err != nil {
				return err
			}
			_, err = exe.ExecContext(ctx, insertPartialQuery,
				s.ID, inst.Number, p.Amount, p.Source, nullTime(p.Date), methods)
			if err != nil {
				return errors.Wrapf(err, "inserting partial payment of installment %d", inst.Number)
			}
		}
	}
	return nil
}

func (repo studentRepository) Get(ctx context.Context, rut string, exec ...core.DBExecutor) (student.Student, error) {
	return repo.get(ctx, repo.getExec(exec), rut, "")
}

// Update runs in the transaction of the service, or in its own one, holding the row lock of
// the student until it ends.
func (repo studentRepository) Update(ctx context.Context, rut string, fn func(*student.Student) error, exec ...core.DBExecutor) (student.Student, error) {
	if len(exec) == 0 {
		var s student.Student
		err := core.WithTx(ctx, repo.db, func(exec ...core.DBExecutor) error {
			var err error
			s, err = repo.Update(ctx, rut, fn, exec...)
			return err
		})
		return s, err
	}

	exe := repo.getExec(exec)
	s, err := repo.get(ctx, exe, rut, " FOR UPDATE")
	if err != nil {
		return student.Student{}, err
	}
	if err = fn(&s); err != nil {
		return student.Student{}, err
	}
	if err = repo.save(ctx, exe, s); err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	return s, nil
}

// get reads the student row with the given locking clause, then its installments.
func (repo studentRepository) get(ctx context.Context, exe sqlx.ExtContext, rut, lock string) (student.Student, error) {
	var row studentRow
	q := "SELECT " + studentColumns + " FROM students WHERE rut = $1" + lock
	if err := sqlx.GetContext(ctx, exe, &row, q, rut); err != nil {
		return student.Student{}, repo.trapNoRowsErr(err, "getting student")
	}

	installments, err := repo.installments(ctx, exe, []string{rut})
	if err != nil {
		return student.Student{}, err
	}
	return row.student(installments[rut]), nil
}

func (repo studentRepository) Query(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	exe := repo.getExec(exec)

	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			cond := "name ILIKE " + arg("%"+filter.Search+"%")
			if strings.IndexFunc(filter.Search, unicode.IsDigit) >= 0 {
				cond += " OR rut LIKE " + arg("%"+ledger.CleanRUT(filter.Search)+"%")
			}
			where = append(where, "("+cond+")")
		}
		if filter.Class != "" {
			where = append(where, "class_name = "+arg(filter.Class))
		}
		if filter.Status != "" {
			where = append(where, "status = "+arg(filter.Status))
		}
		if filter.SchoolYear != 0 {
			where = append(where, "school_year = "+arg(filter.SchoolYear))
		}
	}

	q := "SELECT " + studentColumns + " FROM students"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "class_name", Ascending: true}, {Field: "name", Ascending: true}}
	}
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	q += " ORDER BY " + strings.Join(append(orderList, "rut ASC"), ", ")

	var rows []studentRow
	if err := sqlx.SelectContext(ctx, exe, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	ruts := make([]string, 0, len(rows))
	for _, row := range rows {
		ruts = append(ruts, row.RUT)
	}
	installments, err := repo.installments(ctx, exe, ruts)
	if err != nil {
		return nil, err
	}

	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student(installments[row.RUT]))
	}
	return students, nil
}

// installments loads the schedules of the given students, by RUT.
func (repo studentRepository) installments(ctx context.Context, exe sqlx.ExtContext, ruts []string) (map[string][]ledger.Installment, error) {
	schedules := make(map[string][]ledger.Installment, len(ruts))
	if len(ruts) == 0 {
		return schedules, nil
	}

	var instRows []installmentRow
	q := `SELECT rut, number, expected_amount, paid, paid_at, methods
		FROM installments WHERE rut = ANY($1) ORDER BY rut, number`
	if err := sqlx.SelectContext(ctx, exe, &instRows, q, pq.Array(ruts)); err != nil {
		return nil, errors.Wrap(err, "querying installments")
	}
	var partRows []partialRow
	q = `SELECT id, rut, number, amount, source, paid_on, methods
		FROM partial_payments WHERE rut = ANY($1) ORDER BY rut, number, id`
	if err := sqlx.SelectContext(ctx, exe, &partRows, q, pq.Array(ruts)); err != nil {
		return nil, errors.Wrap(err, "querying partial payments")
	}

	for _, row := range instRows {
		inst, err := row.installment()
		if err != nil {
			return nil, err
		}
		schedules[row.RUT] = append(schedules[row.RUT], inst)
	}
	for _, row := range partRows {
		p, err := row.partialPayment()
		if err != nil {
			return nil, err
		}
		schedule := schedules[row.RUT]
		if row.Number < 1 || row.Number > len(schedule) {
			return nil, errors.Errorf("partial payment %d of %s has no installment %d", row.ID, row.RUT, row.Number)
		}
		schedule[row.Number-1].PartialPayments = append(schedule[row.Number-1].PartialPayments, p)
	}
	return schedules, nil
}

func (repo studentRepository) Delete(ctx context.Context, rut string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM students WHERE rut = $1", rut)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo studentRepository) SaveContacts(ctx context.Context, contacts []student.Contact, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	for _, c := range contacts {
		guardian := null.NewString(c.Guardian, c.Guardian != "")
		if _, err := exe.ExecContext(ctx, upsertContactQuery, c.RUT, c.StudentName, guardian, c.Email); err != nil {
			return errors.Wrapf(err, "saving contact %s", c.RUT)
		}
	}
	return nil
}

func (repo studentRepository) GetContact(ctx context.Context, rut string, exec ...core.DBExecutor) (student.Contact, error) {
	var row contactRow
	q := "SELECT rut, student_name, guardian, email FROM contacts WHERE rut = $1"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, rut); err != nil {
		return student.Contact{}, repo.trapNoRowsErr(err, "getting contact")
	}
	return row.contact(), nil
}

func (repo studentRepository) QueryContacts(ctx context.Context, exec ...core.DBExecutor) ([]student.Contact, error) {
	var rows []contactRow
	q := "SELECT rut, student_name, guardian, email FROM contacts ORDER BY rut"
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying contacts")
	}
	contacts := make([]student.Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, row.contact())
	}
	return contacts, nil
}

func (repo studentRepository) SaveReceipt(ctx context.Context, r student.Receipt, exec ...core.DBExecutor) (student.Receipt, error) {
	row, err := newReceiptRow(r)
	if err != nil {
		return student.Receipt{}, err
	}
	_, err = repo.getExec(exec).ExecContext(ctx, insertReceiptQuery,
		row.ID, row.Number, row.RUT, row.StudentName, row.Amount, row.Partial, row.Installments, row.Methods, row.IssuedAt)
	if err != nil {
		return student.Receipt{}, errors.Wrap(err, "inserting receipt")
	}
	return r, nil
}

// QueryReceipts returns the receipts of the student, latest first.
func (repo studentRepository) QueryReceipts(ctx context.Context, rut string, exec ...core.DBExecutor) ([]student.Receipt, error) {
	var rows []receiptRow
	q := `SELECT id, number, rut, student_name, amount, partial, installments, methods, issued_at
		FROM receipts WHERE rut = $1 ORDER BY issued_at DESC, number DESC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, rut); err != nil {
		return nil, errors.Wrap(err, "querying receipts")
	}
	receipts := make([]student.Receipt, 0, len(rows))
	for _, row := range rows {
		r, err := row.receipt()
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func (repo studentRepository) SaveNotice(ctx context.Context, n student.Notice, exec ...core.DBExecutor) (student.Notice, error) {
	numbers := make(pq.Int64Array, 0, len(n.Installments))
	for _, i := range n.Installments {
		numbers = append(numbers, int64(i))
	}
	_, err := repo.getExec(exec).ExecContext(ctx, insertNoticeQuery,
		n.ID, n.RUT, n.Kind, n.Email, n.Amount, numbers, n.SentAt.UTC())
	if err != nil {
		return student.Notice{}, errors.Wrap(err, "inserting notice")
	}
	return n, nil
}

package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db.student}
}

// copyStudent returns s with its own installments, so callers never share state with the table.
func copyStudent(s student.Student) student.Student {
	insts := make([]ledger.Installment, len(s.Installments))
	for i, inst := range s.Installments {
		inst.PartialPayments = append([]ledger.PartialPayment{}, inst.PartialPayments...)
		if inst.Methods != nil {
			inst.Methods = append([]ledger.PaymentMethod{}, inst.Methods...)
		}
		insts[i] = inst
	}
	s.Installments = insts
	return s
}

func (repo *studentRepository) ReplaceAll(_ context.Context, schoolYear int, students []student.Student, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for rut, s := range repo.db.table {
		if s.SchoolYear == schoolYear {
			delete(repo.db.table, rut)
		}
	}
	for _, s := range students {
		s := copyStudent(s)
		repo.db.table[s.ID] = &s
	}
	return nil
}

func (repo *studentRepository) Upsert(_ context.Context, s student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored := copyStudent(s)
	repo.db.table[s.ID] = &stored
	return copyStudent(stored), nil
}

func (repo *studentRepository) Get(_ context.Context, rut string, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.table[rut]; ok {
		return copyStudent(*s), nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) Update(_ context.Context, rut string, fn func(*student.Student) error, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[rut]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	s := copyStudent(*stored)
	if err := fn(&s); err != nil {
		return student.Student{}, err
	}
	updated := copyStudent(s)
	repo.db.table[rut] = &updated
	return s, nil
}

func (repo *studentRepository) Query(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]student.Student, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		if filter.Match(*s) {
			students = append(students, copyStudent(*s))
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "class_name", Ascending: true}, {Field: "name", Ascending: true}}
	}
	sort.SliceStable(students, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compare(students[i], students[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

// compare orders a and b on the given storage column.
func compare(a, b student.Student, column string) int {
	switch column {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "rut":
		return strings.Compare(a.ID, b.ID)
	case "class_name":
		return strings.Compare(a.ClassName, b.ClassName)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "pending":
		return compareInt(a.Pending, b.Pending)
	case "total_paid":
		return compareInt(a.TotalPaidReal, b.TotalPaidReal)
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (repo *studentRepository) Delete(_ context.Context, rut string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[rut]; !ok {
		return student.ErrNotFound
	}
	delete(repo.db.table, rut)
	return nil
}

func (repo *studentRepository) SaveContacts(_ context.Context, contacts []student.Contact, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range contacts {
		repo.db.contacts[c.RUT] = c
	}
	return nil
}

func (repo *studentRepository) GetContact(_ context.Context, rut string, _ ...core.DBExecutor) (student.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.contacts[rut]; ok {
		return c, nil
	}
	return student.Contact{}, student.ErrNotFound
}

func (repo *studentRepository) QueryContacts(_ context.Context, _ ...core.DBExecutor) ([]student.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	contacts := make([]student.Contact, 0, len(repo.db.contacts))
	for _, c := range repo.db.contacts {
		contacts = append(contacts, c)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].RUT < contacts[j].RUT })
	return contacts, nil
}

func (repo *studentRepository) SaveReceipt(_ context.Context, r student.Receipt, _ ...core.DBExecutor) (student.Receipt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.receipts = append(repo.db.receipts, r)
	return r, nil
}

// QueryReceipts returns the receipts of the student, latest first.
func (repo *studentRepository) QueryReceipts(_ context.Context, rut string, _ ...core.DBExecutor) ([]student.Receipt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	receipts := make([]student.Receipt, 0)
	for i := len(repo.db.receipts) - 1; i >= 0; i-- {
		if r := repo.db.receipts[i]; r.RUT == rut {
			receipts = append(receipts, r)
		}
	}
	return receipts, nil
}

func (repo *studentRepository) SaveNotice(_ context.Context, n student.Notice, _ ...core.DBExecutor) (student.Notice, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.notices = append(repo.db.notices, n)
	return n, nil
}

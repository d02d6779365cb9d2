package student_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
	"github.com/tesoreria/backend/services/email"
	"github.com/tesoreria/backend/services/sequence"
	"github.com/tesoreria/backend/storage/database/inmem"
	"github.com/tesoreria/backend/tests"
)

const (
	aguayo   = "123456785"
	bravo    = "98765432"
	carrasco = "111111111"
	diaz     = "222222222"
	espinoza = "131313131"
	fuentes  = "141414141"
)

func setup(t *testing.T) (*student.Service, student.ImportReport) {
	student.NowFunc = func() time.Time { return testutil.Today }
	t.Cleanup(func() { student.NowFunc = time.Now })

	conf := core.NewTestConfig()
	svc, _ := testutil.NewStudentService(t, conf)
	report := testutil.ImportRoster(t, svc, conf.Treasury.SchoolYear)
	return svc, report
}

func TestService_Import(t *testing.T) {
	svc, report := setup(t)
	ctx := context.Background()

	assert.Equal(t, "roster.csv", report.Source)
	assert.Equal(t, 2025, report.SchoolYear)
	assert.Equal(t, 6, report.Imported)
	assert.Equal(t, 3, report.Skipped, "totals line, invalid and repeated RUT")
	assert.Len(t, report.Warnings, 2)

	require.Len(t, report.Overflows, 2)
	assert.Equal(t, bravo, report.Overflows[0].RUT)
	assert.Equal(t, int64(50000), report.Overflows[0].Amount, "column past the 9 installments of 4 MEDIO")
	assert.Equal(t, fuentes, report.Overflows[1].RUT)
	assert.Equal(t, int64(5000), report.Overflows[1].Amount)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, espinoza, report.Discrepancies[0].RUT)
	assert.Equal(t, int64(-100000), report.Discrepancies[0].Amount)

	tests := []struct {
		rut        string
		wantStatus ledger.AccountStatus
		wantPaid   int64
		wantCount  int
		wantEmail  string
	}{
		{aguayo, ledger.StatusPending, 227700, 10, "mmolina@mail.cl"},
		{bravo, ledger.StatusPending, 100000, 9, ""},
		{carrasco, ledger.StatusDelinquent, 0, 10, "pcarrasco@mail.cl"},
		{diaz, ledger.StatusFullyExempt, 0, 10, ""},
		{espinoza, ledger.StatusPending, 100000, 10, ""},
		{fuentes, ledger.StatusLateEnrollment, 10000, 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.rut, func(t *testing.T) {
			s, err := svc.Get(ctx, tt.rut)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Equal(t, tt.wantPaid, s.TotalPaidReal)
			assert.Equal(t, tt.wantCount, s.InstallmentCount)
			assert.Equal(t, tt.wantEmail, s.GuardianEmail)
			assert.Equal(t, testutil.Today, s.ImportedAt)
		})
	}
}

func TestService_Import_ReplacesRoster(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	rows, skipped, err := student.ParseCSV(strings.NewReader(testutil.LedgerCSV(
		testutil.LedgerLine("AGUAYO MOLINA TOMÁS", "12.345.678-5", "1 BASICO A", "$1.265.000", "$126.500",
			map[int]string{1: "$113.850", 2: "$113.850", 3: "$113.850"}, "$341.550"),
	)), 2025)
	require.NoError(t, err)

	report, err := svc.Import(ctx, student.ImportBatch{Source: "again.csv", Rows: rows, Skipped: skipped})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)

	students, err := svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, int64(341550), students[0].TotalPaidReal, "rebuilt from scratch")
}

func TestService_Import_Canceled(t *testing.T) {
	svc, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, _, err := student.ParseCSV(strings.NewReader(testutil.Roster), 2025)
	require.NoError(t, err)
	_, err = svc.Import(ctx, student.ImportBatch{Rows: rows})
	assert.Equal(t, context.Canceled, errors.Cause(err))

	students, err := svc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, students, 6, "roster left untouched")
}

func TestService_View(t *testing.T) {
	svc, _ := setup(t)

	v, err := svc.View(context.Background(), "12.345.678-5", testutil.Today)
	require.NoError(t, err)
	assert.Equal(t, int64(1138500), v.NetOwed)
	require.Len(t, v.Installments, 10)

	wantStates := []ledger.InstallmentState{
		ledger.StatePaid, ledger.StatePaid, ledger.StateOverdue, ledger.StateOverdue, ledger.StatePending,
	}
	for i, want := range wantStates {
		assert.Equal(t, want, v.Installments[i].State, "installment %d", i+1)
	}
	assert.Equal(t, "Marzo", v.Installments[0].Month)
	assert.Equal(t, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), v.Installments[0].DueDate)
	assert.Equal(t, int64(113850), v.Installments[0].Credited)
	assert.Equal(t, int64(113850), v.Installments[2].Outstanding)

	_, err = svc.View(context.Background(), "1-9", testutil.Today)
	assert.Equal(t, student.ErrNotFound, err)
}

func TestService_Query(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		filter   *student.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{
			name: "default ordering: class then name",
			want: []string{aguayo, espinoza, fuentes, carrasco, diaz, bravo},
		},
		{
			name:   "by class",
			filter: &student.QueryFilter{Class: "1 BASICO A"},
			want:   []string{aguayo, espinoza, fuentes},
		},
		{
			name:   "by status",
			filter: &student.QueryFilter{Status: "pending"},
			want:   []string{aguayo, espinoza, bravo},
		},
		{
			name:   "search name without accents",
			filter: &student.QueryFilter{Search: "jose"},
			want:   []string{fuentes},
		},
		{
			name:     "most pending first",
			filter:   &student.QueryFilter{Class: "1 BASICO A"},
			ordering: core.ParseOrdering("-pending", student.OrderingFields),
			want:     []string{aguayo, espinoza, fuentes},
		},
		{
			name:     "least paid first, then name",
			ordering: core.ParseOrdering("paid,name", student.OrderingFields),
			want:     []string{carrasco, diaz, fuentes, bravo, espinoza, aguayo},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students, err := svc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ruts(students))
		})
	}
}

func TestService_RegisterPayment(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	cash := func(amount int64) []student.NewMethod {
		return []student.NewMethod{{Kind: ledger.MethodCash, Amount: amount}}
	}

	// full payment of installment 3
	rcpt, err := svc.RegisterPayment(ctx, aguayo, student.NewPayment{Installments: []int{3}, Methods: cash(113850)})
	require.NoError(t, err)
	assert.Equal(t, "202506000001", rcpt.Number)
	assert.Equal(t, int64(113850), rcpt.Amount)
	assert.False(t, rcpt.Partial)
	assert.Equal(t, []int{3}, rcpt.Installments)

	// installment 4 completed, 5 partially paid with two methods
	rcpt, err = svc.RegisterPayment(ctx, aguayo, student.NewPayment{
		Installments: []int{4, 5},
		Methods: []student.NewMethod{
			{Kind: ledger.MethodDebit, Amount: 100000},
			{Kind: ledger.MethodTransfer, Amount: 50000, Reference: "TRX-1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "202506000002", rcpt.Number)
	assert.True(t, rcpt.Partial)
	assert.Equal(t, []int{4, 5}, rcpt.Installments)

	s, err := svc.Get(ctx, aguayo)
	require.NoError(t, err)
	assert.Equal(t, 4, s.PaidInstallments())
	assert.Equal(t, int64(227700+113850+150000), s.TotalPaidReal)
	assert.Equal(t, int64(1138500-491550), s.Pending)
	require.Len(t, s.Installments[4].PartialPayments, 1)
	assert.Equal(t, int64(36150), s.Installments[4].PartialPayments[0].Amount)
	assert.Equal(t, ledger.SourceDesk, s.Installments[4].PartialPayments[0].Source)
	assert.Equal(t, testutil.Today, s.Installments[3].PaidAt)

	receipts, err := svc.QueryReceipts(ctx, aguayo)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "202506000002", receipts[0].Number, "latest first")

	// receipts are emailed to the guardian
	sent := emailsvc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "mmolina@mail.cl", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "202506000001")
	assert.Contains(t, sent[1].TextContent, "(abono parcial)")
}

func TestService_RegisterPayment_Errors(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		rut     string
		payment student.NewPayment
		wantErr error
	}{
		{
			name:    "unknown student",
			rut:     "1-9",
			payment: student.NewPayment{Installments: []int{1}, Methods: []student.NewMethod{{Kind: "cash", Amount: 1}}},
			wantErr: student.ErrNotFound,
		},
		{
			name:    "already paid",
			rut:     aguayo,
			payment: student.NewPayment{Installments: []int{1, 2}, Methods: []student.NewMethod{{Kind: "cash", Amount: 1}}},
			wantErr: student.ErrNothingToPay,
		},
		{
			name:    "out of range",
			rut:     bravo,
			payment: student.NewPayment{Installments: []int{10}, Methods: []student.NewMethod{{Kind: "cash", Amount: 1}}},
			wantErr: student.ErrNothingToPay,
		},
		{
			name:    "more than owed",
			rut:     aguayo,
			payment: student.NewPayment{Installments: []int{3}, Methods: []student.NewMethod{{Kind: "cash", Amount: 113851}}},
			wantErr: student.ErrOverpayment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterPayment(ctx, tt.rut, tt.payment)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}

	_, err := svc.RegisterPayment(ctx, aguayo, student.NewPayment{Installments: []int{3}})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "no amount")
	assert.Equal(t, "methods", verr.Fields[0].Field)

	s, err := svc.Get(ctx, aguayo)
	require.NoError(t, err)
	assert.Equal(t, int64(227700), s.TotalPaidReal, "failed payments leave the account untouched")
}

// slowRepository holds every update long enough for concurrent payments to overlap.
type slowRepository struct {
	student.Repository
}

func (repo slowRepository) Update(ctx context.Context, rut string, fn func(*student.Student) error, exec ...core.DBExecutor) (student.Student, error) {
	return repo.Repository.Update(ctx, rut, func(s *student.Student) error {
		time.Sleep(20 * time.Millisecond)
		return fn(s)
	}, exec...)
}

func TestService_RegisterPayment_Concurrent(t *testing.T) {
	student.NowFunc = func() time.Time { return testutil.Today }
	t.Cleanup(func() { student.NowFunc = time.Now })

	conf := core.NewTestConfig()
	emailsvc.ClearSentMessages()
	db := inmemdb.Open()
	repo := slowRepository{inmemdb.NewStudentRepository(db)}
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewEmailTemplates(t, conf))
	svc := student.NewService(nil, repo, inmemdb.NewReportRepository(db), mailSvc, seqsvc.NewMemorySequencer(), conf, testutil.NewLogger(conf))
	testutil.ImportRoster(t, svc, conf.Treasury.SchoolYear)
	ctx := context.Background()

	var wg sync.WaitGroup
	receipts := make([]student.Receipt, 2)
	errs := make([]error, 2)
	for i, n := range []int{3, 4} {
		wg.Add(1)
		go func(i, n int) {
			defer wg.Done()
			receipts[i], errs[i] = svc.RegisterPayment(ctx, aguayo, student.NewPayment{
				Installments: []int{n},
				Methods:      []student.NewMethod{{Kind: ledger.MethodCash, Amount: 113850}},
			})
		}(i, n)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, receipts[0].Number, receipts[1].Number)

	s, err := svc.Get(ctx, aguayo)
	require.NoError(t, err)
	assert.True(t, s.Installments[2].Paid)
	assert.True(t, s.Installments[3].Paid)
	assert.Equal(t, int64(455400), s.TotalPaidReal, "every receipt is credited")

	stored, err := svc.QueryReceipts(ctx, aguayo)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// the same installment twice: only one payment goes through
	errs[0], errs[1] = nil, nil
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RegisterPayment(ctx, aguayo, student.NewPayment{
				Installments: []int{5},
				Methods:      []student.NewMethod{{Kind: ledger.MethodCash, Amount: 113850}},
			})
		}(i)
	}
	wg.Wait()
	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.Equal(t, student.ErrNothingToPay, errors.Cause(err))
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	s, err = svc.Get(ctx, aguayo)
	require.NoError(t, err)
	assert.Equal(t, int64(569250), s.TotalPaidReal)
}

func TestService_Stats(t *testing.T) {
	svc, _ := setup(t)

	st, err := svc.Stats(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Students)
	assert.Equal(t, int64(227700+100000+100000+10000), st.Collected)
	assert.Equal(t, int64(910800+800000+1000000+900000+90000), st.Outstanding)
	assert.Equal(t, 1, st.Delinquent)
	assert.Equal(t, 3, st.ByStatus[ledger.StatusPending])
	assert.Equal(t, 1, st.ByStatus[ledger.StatusFullyExempt])
	assert.Equal(t, 1, st.ByStatus[ledger.StatusLateEnrollment])
	assert.Equal(t, 0, st.ByStatus[ledger.StatusCurrent])

	st, err = svc.Stats(context.Background(), &student.QueryFilter{Class: "4 MEDIO B"})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Students)
	assert.Equal(t, int64(800000), st.Outstanding)
}

func TestService_ClassSummaries(t *testing.T) {
	svc, _ := setup(t)

	summaries, err := svc.ClassSummaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []student.ClassSummary{
		{ClassName: "1 BASICO A", Students: 3, NetOwed: 1138500 + 1000000 + 100000, Collected: 227700 + 100000 + 10000, Pending: 910800 + 900000 + 90000},
		{ClassName: "2 BASICO A", Students: 1, NetOwed: 1000000, Pending: 1000000, Delinquent: 1},
		{ClassName: "3 BASICO A", Students: 1, Exempt: 1},
		{ClassName: "4 MEDIO B", Students: 1, NetOwed: 900000, Collected: 100000, Pending: 800000},
	}, summaries)
}

func TestService_Reports(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	entries, err := svc.Discrepancies(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, student.DiscrepancyEntry{
		RUT:        espinoza,
		Name:       "ESPINOZA ROJAS PEDRO",
		ClassName:  "1 BASICO A",
		RawTotal:   100000,
		Reported:   200000,
		Credited:   100000,
		Difference: -100000,
	}, entries[0])

	totals, err := svc.InstallmentTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 10)
	assert.Equal(t, student.InstallmentTotal{Number: 1, Month: "Marzo", Credited: 313850, Paid: 3}, totals[0])
	assert.Equal(t, student.InstallmentTotal{Number: 2, Month: "Abril", Credited: 113850, Paid: 1}, totals[1])
	assert.Equal(t, student.InstallmentTotal{Number: 10, Month: "Diciembre", Credited: 10000, Paid: 1}, totals[9])
}

func TestService_NotifyDelinquent(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	notices, err := svc.NotifyDelinquent(ctx, nil, testutil.Today)
	require.NoError(t, err)
	require.Len(t, notices, 2, "only students with overdue installments and a contact email")

	assert.Equal(t, aguayo, notices[0].RUT)
	assert.Equal(t, student.NoticeDelinquent, notices[0].Kind)
	assert.Equal(t, []int{3, 4}, notices[0].Installments)
	assert.Equal(t, int64(2*113850), notices[0].Amount)

	assert.Equal(t, carrasco, notices[1].RUT)
	assert.Equal(t, "pcarrasco@mail.cl", notices[1].Email)
	assert.Equal(t, []int{1, 2, 3, 4}, notices[1].Installments)

	sent := emailsvc.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextContent, "Cuota 3 (Mayo, vence 05/05/2025): $113.850")
	assert.NotContains(t, sent[0].TextContent, "Cuota 5", "installments not yet due are not listed")
	assert.Contains(t, sent[0].TextContent, "Total vencido: $227.700")
	assert.Contains(t, sent[0].HTMLContent, "AGUAYO MOLINA TOMÁS")

	// explicit selection
	emailsvc.ClearSentMessages()
	notices, err = svc.NotifyDelinquent(ctx, []string{"11.111.111-1", "22.222.222-2"}, testutil.Today)
	require.NoError(t, err)
	require.Len(t, notices, 1, "fully exempt students owe nothing")
	assert.Equal(t, carrasco, notices[0].RUT)

	// before the first due date nothing is overdue
	notices, err = svc.NotifyDelinquent(ctx, nil, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestService_NotifyStatement(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	notice, err := svc.NotifyStatement(ctx, aguayo, testutil.Today)
	require.NoError(t, err)
	assert.Equal(t, student.NoticeStatement, notice.Kind)
	assert.Len(t, notice.Installments, 10)
	assert.Equal(t, int64(910800), notice.Amount)

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Saldo pendiente: $910.800")
	assert.Contains(t, sent[0].TextContent, "Pagada")

	_, err = svc.NotifyStatement(ctx, bravo, testutil.Today)
	assert.Equal(t, student.ErrNoContact, err)
}

func TestService_SaveAndDelete(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	s := student.Student{Account: ledger.Account{
		ID:               "15.151.515-1",
		Name:             "GARCÍA NUEVA ELENA",
		ClassName:        "PRE KINDER A",
		SchoolYear:       2025,
		TuitionGross:     1000000,
		InstallmentCount: 10,
		Installments:     ledger.BuildSchedule(1000000, 10),
	}}
	saved, err := svc.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "151515151", saved.ID)
	assert.Equal(t, ledger.StatusDelinquent, saved.Status)
	assert.Equal(t, int64(1000000), saved.Pending)

	require.NoError(t, svc.Delete(ctx, "15.151.515-1"))
	_, err = svc.Get(ctx, "151515151")
	assert.Equal(t, student.ErrNotFound, err)
	assert.Equal(t, student.ErrNotFound, svc.Delete(ctx, "151515151"))
}

func ruts(students []student.Student) []string {
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	return ids
}

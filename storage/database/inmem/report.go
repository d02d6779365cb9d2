package inmemdb

import (
	"context"
	"sort"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
)

type reportRepository struct {
	db *studentTable
}

var _ student.Reporter = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) *reportRepository {
	return &reportRepository{db: db.student}
}

func (repo *reportRepository) ClassSummaries(_ context.Context, schoolYear int, _ ...core.DBExecutor) ([]student.ClassSummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byClass := make(map[string]*student.ClassSummary)
	for _, s := range repo.db.table {
		if s.SchoolYear != schoolYear {
			continue
		}
		sum, ok := byClass[s.ClassName]
		if !ok {
			sum = &student.ClassSummary{ClassName: s.ClassName}
			byClass[s.ClassName] = sum
		}
		sum.Students++
		sum.Collected += s.TotalPaidReal
		switch s.Status {
		case ledger.StatusFullyExempt:
			sum.Exempt++
			continue
		case ledger.StatusDelinquent:
			sum.Delinquent++
		}
		sum.NetOwed += s.NetOwed()
		sum.Pending += s.Pending
	}

	summaries := make([]student.ClassSummary, 0, len(byClass))
	for _, sum := range byClass {
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ClassName < summaries[j].ClassName })
	return summaries, nil
}

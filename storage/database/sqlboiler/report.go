package boiledrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
)

const classSummariesQuery = `
SELECT class_name,
	COUNT(*) AS students,
	COALESCE(SUM(CASE WHEN status <> $2 THEN tuition_gross - scholarship ELSE 0 END), 0) AS net_owed,
	COALESCE(SUM(total_paid), 0) AS collected,
	COALESCE(SUM(CASE WHEN status <> $2 THEN pending ELSE 0 END), 0) AS pending,
	COUNT(*) FILTER (WHERE status = $3) AS delinquent,
	COUNT(*) FILTER (WHERE status = $2) AS exempt
FROM students
WHERE school_year = $1
GROUP BY class_name
ORDER BY class_name`

type reportRepository struct {
	exec boil.ContextExecutor
}

var _ student.Reporter = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(exec boil.ContextExecutor) *reportRepository {
	return &reportRepository{exec: exec}
}

func (repo reportRepository) getExec(svcExec []core.DBExecutor) boil.ContextExecutor {
	if len(svcExec) > 0 {
		if exec, ok := svcExec[0].(boil.ContextExecutor); ok {
			return exec
		}
	}
	return repo.exec
}

func (repo reportRepository) ClassSummaries(ctx context.Context, schoolYear int, exec ...core.DBExecutor) ([]student.ClassSummary, error) {
	summaries := make([]student.ClassSummary, 0)
	err := queries.Raw(classSummariesQuery, schoolYear, string(ledger.StatusFullyExempt), string(ledger.StatusDelinquent)).
		Bind(ctx, repo.getExec(exec), &summaries)
	if err != nil {
		return nil, errors.Wrap(err, "summarizing classes")
	}
	return summaries, nil
}

package enrollment

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
)

var ErrAlreadyEnrolled = errors.New("the student is already enrolled this school year")

type (
	// NewEnrollment enrolls a new student, or re-enrolls a student of a previous year when
	// RUT is on the roster (Name and Class default to the roster ones, promoted).
	NewEnrollment struct {
		RUT           string `json:"rut" validate:"required,rut"`
		Name          string `json:"name"`
		Class         string `json:"class"`
		Guardian      string `json:"guardian"`
		GuardianEmail string `json:"guardianEmail" validate:"omitempty,email"`
		Scholarship   int64  `json:"scholarship" validate:"gte=0"`
	}

	// Enrollment is the record of an enrollment.
	Enrollment struct {
		Number  string          `json:"number"` // MAT-YYYY-NNNN
		Student student.Student `json:"student"`
		Quote   Quote           `json:"quote"`
		Renewal bool            `json:"renewal"`
	}

	ServiceInterface interface {
		Quote(class string) (Quote, error)
		Enroll(ctx context.Context, ne NewEnrollment) (Enrollment, error)
	}

	Service struct {
		students student.ServiceInterface
		seq      student.Sequencer
		policy   ledger.CountPolicy
		conf     *core.Config
		logger   core.Logger
		ufValue  decimal.Decimal
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

func NewService(students *student.Service, seq student.Sequencer, conf *core.Config, logger core.Logger) *Service {
	uf, err := parseUF(conf.Treasury.UFValue)
	if err != nil {
		if conf.Treasury.UFValue != "" {
			logger.Warn("invalid UF value, using the monthly fees", err)
		}
		uf = decimal.Zero
	}
	return &Service{
		students: students,
		seq:      seq,
		policy:   students.Policy(),
		conf:     conf,
		logger:   logger,
		ufValue:  uf,
	}
}

// parseUF accepts "38000.50" as well as the local "38.000,50".
func parseUF(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, ",") {
		value = strings.Replace(strings.ReplaceAll(value, ".", ""), ",", ".", 1)
	}
	return decimal.NewFromString(value)
}

// Quote prices the school year of class at the configured UF value.
func (svc *Service) Quote(class string) (Quote, error) {
	return NewQuote(class, svc.ufValue, svc.policy)
}

// Enroll adds a student to the roster of the school year with an unpaid schedule.
func (svc *Service) Enroll(ctx context.Context, ne NewEnrollment) (Enrollment, error) {
	year := svc.conf.Treasury.SchoolYear
	rut := ledger.CleanRUT(ne.RUT)

	var renewal bool
	prev, err := svc.students.Get(ctx, rut)
	switch errors.Cause(err) {
	case nil:
		if prev.SchoolYear >= year {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		renewal = true
		if ne.Class == "" {
			ne.Class = Promote(prev.ClassName)
		}
		if ne.Name == "" {
			ne.Name = prev.Name
		}
		if ne.Guardian == "" && ne.GuardianEmail == "" {
			ne.Guardian, ne.GuardianEmail = prev.Guardian, prev.GuardianEmail
		}
	case student.ErrNotFound:
	default:
		return Enrollment{}, errors.Wrap(err, "getting student")
	}

	if strings.TrimSpace(ne.Name) == "" {
		return Enrollment{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "este campo es obligatorio"})
	}
	if ne.Class == "" {
		return Enrollment{}, core.NewValidationError(nil, core.FieldError{Field: "class", Error: "este campo es obligatorio"})
	}

	q, err := svc.Quote(ne.Class)
	switch errors.Cause(err) {
	case nil:
	case ErrGraduated:
		return Enrollment{}, ErrGraduated
	case ErrUnknownClass:
		return Enrollment{}, core.NewValidationError(err, core.FieldError{Field: "class", Error: "curso desconocido"})
	default:
		return Enrollment{}, err
	}
	if ne.Scholarship > q.Tuition {
		return Enrollment{}, core.NewValidationError(nil, core.FieldError{Field: "scholarship", Error: "la beca no puede superar el arancel"})
	}

	s := student.Student{
		Account: ledger.Account{
			ID:               rut,
			Name:             strings.ToUpper(strings.TrimSpace(ne.Name)),
			ClassName:        q.Class,
			SchoolYear:       year,
			TuitionGross:     q.Tuition,
			Scholarship:      ne.Scholarship,
			InstallmentCount: q.Installments,
		},
		Guardian:      ne.Guardian,
		GuardianEmail: strings.ToLower(strings.TrimSpace(ne.GuardianEmail)),
	}
	s.Installments = ledger.BuildSchedule(s.NetOwed(), s.InstallmentCount)

	number, err := svc.seq.Next(ctx, fmt.Sprintf("enrollment:%d", year))
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "next enrollment number")
	}
	if s, err = svc.students.Save(ctx, s); err != nil {
		return Enrollment{}, errors.Wrap(err, "saving student")
	}

	enr := Enrollment{
		Number:  fmt.Sprintf("MAT-%d-%04d", year, number),
		Student: s,
		Quote:   q,
		Renewal: renewal,
	}
	svc.logger.Info("student enrolled", map[string]interface{}{
		"number": enr.Number, "rut": s.ID, "class": s.ClassName, "tuition": s.TuitionGross, "renewal": renewal,
	})
	return enr, nil
}

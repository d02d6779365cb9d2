package enrollment

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/closestmatch"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/tesoreria/backend/core/ledger"
)

// Graduated is where 4° Medio classes are promoted to.
const Graduated = "EGRESADO"

// Tuition categories
const (
	CategoryBasica  = "BASICA"
	CategoryMediaNT = "MEDIA_NT"
)

var (
	ErrUnknownClass = errors.New("unknown class")
	ErrGraduated    = errors.New("the student already graduated")
)

// Tariff is the yearly tuition of a category, in UF.
type Tariff struct {
	Category     string
	TotalUF      decimal.Decimal
	Installments int
}

var tariffs = map[string]Tariff{
	CategoryBasica:  {Category: CategoryBasica, TotalUF: decimal.RequireFromString("28.731"), Installments: 10},
	CategoryMediaNT: {Category: CategoryMediaNT, TotalUF: decimal.RequireFromString("32.717"), Installments: 10},
}

// enrollmentFee is charged to Media classes only.
const enrollmentFee int64 = 3500

// promotions maps every class of the school to the class of the following year.
var promotions = map[string]string{
	"NT1":   "NT2",
	"NT1 A": "NT2 A",
	"NT1 B": "NT2 B",
	"NT2":   "1 BASICO A",
	"NT2 A": "1 BASICO A",
	"NT2 B": "1 BASICO B",

	"1 BASICO A": "2 BASICO A",
	"1 BASICO B": "2 BASICO B",
	"2 BASICO A": "3 BASICO A",
	"2 BASICO B": "3 BASICO B",
	"3 BASICO A": "4 BASICO A",
	"3 BASICO B": "4 BASICO B",
	"4 BASICO A": "5 BASICO A",
	"4 BASICO B": "5 BASICO B",
	"5 BASICO A": "6 BASICO A",
	"5 BASICO B": "6 BASICO B",
	"6 BASICO A": "7 BASICO A",
	"6 BASICO B": "7 BASICO B",
	"7 BASICO A": "8 BASICO A",
	"7 BASICO B": "8 BASICO B",
	"8 BASICO A": "1 MEDIO A",
	"8 BASICO B": "1 MEDIO B",

	"1 MEDIO A": "2 MEDIO A",
	"1 MEDIO B": "2 MEDIO B",
	"2 MEDIO A": "3 MEDIO A",
	"2 MEDIO B": "3 MEDIO B",
	"3 MEDIO A": "4 MEDIO A",
	"3 MEDIO B": "4 MEDIO B",
	"4 MEDIO A": Graduated,
	"4 MEDIO B": Graduated,
	"4 MEDIO C": Graduated,
}

// monthlyFees are the CLP installments charged while the UF value of the year is unknown.
var monthlyFees = map[string]int64{
	"NT1": 120000, "NT2": 120000,
	"1 BASICO": 140000, "2 BASICO": 140000, "3 BASICO": 140000, "4 BASICO": 140000,
	"5 BASICO": 150000, "6 BASICO": 150000,
	"7 BASICO": 160000, "8 BASICO": 160000,
	"1 MEDIO": 180000, "2 MEDIO": 180000,
	"3 MEDIO": 200000, "4 MEDIO": 200000,
}

var classes = func() []string {
	names := make([]string, 0, len(promotions))
	for class := range promotions {
		names = append(names, class)
	}
	sort.Strings(names)
	return names
}()

var classMatcher = closestmatch.New(classes, []int{2, 3})

// Classes returns the class names known to the school.
func Classes() []string {
	return append([]string(nil), classes...)
}

// NormalizeClass maps a class name as typed by an operator ("1° Básico a") to the name
// used by the school. Misspelled names are matched to the closest class of the same grade.
func NormalizeClass(name string) (string, error) {
	class := cleanClass(name)
	if class == "" {
		return "", ErrUnknownClass
	}
	if class == Graduated {
		return class, nil
	}
	if _, ok := promotions[class]; ok {
		return class, nil
	}

	match := classMatcher.Closest(class)
	if match == "" || grade(match) != grade(class) {
		return "", errors.Wrapf(ErrUnknownClass, "%q", name)
	}
	return match, nil
}

func cleanClass(name string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(name) {
		switch {
		case r == '°' || r == 'º' || r == '.':
			continue
		case r >= 0x300 && r <= 0x36f: // combining marks
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(strings.ToUpper(b.String())), " ")
}

// level is the grade of a class without its letter: "1 MEDIO", "NT2".
func level(class string) string {
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}
	if strings.HasPrefix(fields[0], "NT") || len(fields) == 1 {
		return fields[0]
	}
	return fields[0] + " " + fields[1]
}

// grade is the leading number of a class: "1", "NT2".
func grade(class string) string {
	if fields := strings.Fields(class); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// Promote returns the class of the following year. Classes missing from the promotion
// table stay where they are.
func Promote(class string) string {
	if next, ok := promotions[class]; ok {
		return next
	}
	return class
}

// TariffOf returns the tariff of a normalized class name.
func TariffOf(class string, policy ledger.CountPolicy) (Tariff, error) {
	lvl := level(class)
	var t Tariff
	switch {
	case strings.HasPrefix(lvl, "NT"), strings.HasSuffix(lvl, "MEDIO"):
		t = tariffs[CategoryMediaNT]
	case strings.HasSuffix(lvl, "BASICO"):
		t = tariffs[CategoryBasica]
	default:
		return Tariff{}, errors.Wrapf(ErrUnknownClass, "%q", class)
	}
	if policy != nil {
		t.Installments = policy.InstallmentCount(class)
	}
	return t, nil
}

// EnrollmentFee returns the enrollment fee of a class.
func EnrollmentFee(class string) int64 {
	if strings.Contains(class, "MEDIO") {
		return enrollmentFee
	}
	return 0
}

// Quote is the cost of a school year for a class.
type Quote struct {
	Class         string          `json:"class"`
	Category      string          `json:"category"`
	Installments  int             `json:"installments"`
	TotalUF       decimal.Decimal `json:"totalUF"`
	InstallmentUF decimal.Decimal `json:"installmentUF"`
	UFValue       decimal.Decimal `json:"ufValue"`
	// Tuition in CLP; when the UF value is not yet published it comes from the monthly fees.
	Tuition           int64 `json:"tuition"`
	InstallmentAmount int64 `json:"installmentAmount"`
	EnrollmentFee     int64 `json:"enrollmentFee"`
	UFPending         bool  `json:"ufPending"`
}

// NewQuote prices a school year of class. uf is the CLP value of one UF; zero when the
// value of the year is not yet known.
func NewQuote(class string, uf decimal.Decimal, policy ledger.CountPolicy) (Quote, error) {
	class, err := NormalizeClass(class)
	if err != nil {
		return Quote{}, err
	}
	if class == Graduated {
		return Quote{}, ErrGraduated
	}
	t, err := TariffOf(class, policy)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		Class:         class,
		Category:      t.Category,
		Installments:  t.Installments,
		TotalUF:       t.TotalUF,
		InstallmentUF: t.TotalUF.DivRound(decimal.NewFromInt(int64(t.Installments)), 3),
		UFValue:       uf,
		EnrollmentFee: EnrollmentFee(class),
	}
	if uf.IsPositive() {
		// Round rounds half away from zero; amounts are positive.
		q.Tuition = t.TotalUF.Mul(uf).Round(0).IntPart()
		q.InstallmentAmount = ledger.ExpectedAmount(q.Tuition, q.Installments)
		return q, nil
	}

	q.UFPending = true
	q.InstallmentAmount = monthlyFees[level(class)]
	q.Tuition = q.InstallmentAmount * int64(q.Installments)
	return q, nil
}

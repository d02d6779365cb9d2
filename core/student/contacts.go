package student

import (
	"io"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
)

// minimum similarity of two folded names to be considered the same student
var nameMatchRatio = .85

// fold upper-cases s, strips its accents and collapses whitespace.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(out)), " ")
}

func containsFold(s, substr string) bool {
	return strings.Contains(fold(s), fold(substr))
}

// rutContains reports whether search, holding at least one digit, is part of rut.
func rutContains(rut, search string) bool {
	if !strings.ContainsAny(search, "0123456789") {
		return false
	}
	return strings.Contains(rut, ledger.CleanRUT(search))
}

func nameRatio(a, b string) float64 {
	a, b = fold(a), fold(b)
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// ParseContactsCSV reads a `rut;student;guardian;email` file. The first row is a header.
// Rows without RUT or email are ignored.
func ParseContactsCSV(r io.Reader) ([]Contact, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading contacts")
	}

	contacts := make([]Contact, 0, len(records))
	for i, rec := range records {
		if i == 0 || len(rec) < 4 {
			continue
		}
		rut := ledger.CleanRUT(rec[0])
		email := core.CleanString(rec[3], true /* lower */)
		if rut == "" || email == "" {
			continue
		}
		contacts = append(contacts, Contact{
			RUT:         rut,
			StudentName: core.CleanString(rec[1]),
			Guardian:    core.CleanString(rec[2]),
			Email:       email,
		})
	}
	return contacts, nil
}

// ContactBook finds the contact of a student by RUT, falling back to a fuzzy name match.
type ContactBook struct {
	byRUT map[string]Contact
	all   []Contact
}

func NewContactBook(contacts []Contact) *ContactBook {
	book := &ContactBook{byRUT: make(map[string]Contact, len(contacts)), all: contacts}
	for _, c := range contacts {
		book.byRUT[ledger.CleanRUT(c.RUT)] = c
	}
	return book
}

func (b *ContactBook) Len() int { return len(b.all) }

func (b *ContactBook) Match(rut, name string) (Contact, bool) {
	if c, ok := b.byRUT[ledger.CleanRUT(rut)]; ok {
		return c, true
	}

	var best Contact
	var bestRatio float64
	for _, c := range b.all {
		if ratio := nameRatio(name, c.StudentName); ratio > bestRatio {
			best, bestRatio = c, ratio
		}
	}
	if bestRatio >= nameMatchRatio {
		return best, true
	}
	return Contact{}, false
}

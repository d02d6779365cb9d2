package ledger

import (
	"strings"
)

// CountPolicy tells how many installments a class pays in a school year.
type CountPolicy interface {
	InstallmentCount(className string) int
}

// ClassPolicy is the school's default policy: graduating classes pay fewer installments.
type ClassPolicy struct {
	Regular          int
	Graduating       int
	GraduatingPrefix string
}

var _ CountPolicy = ClassPolicy{}

// DefaultPolicy is 10 installments, 9 for "4 MEDIO" classes.
var DefaultPolicy = ClassPolicy{Regular: 10, Graduating: 9, GraduatingPrefix: "4 MEDIO"}

func (p ClassPolicy) InstallmentCount(className string) int {
	class := strings.ToUpper(strings.TrimSpace(className))
	if p.GraduatingPrefix != "" && p.Graduating > 0 && strings.HasPrefix(class, strings.ToUpper(p.GraduatingPrefix)) {
		return p.Graduating
	}
	return p.Regular
}

// FixedPolicy gives every class the same installment count.
type FixedPolicy int

func (p FixedPolicy) InstallmentCount(string) int { return int(p) }

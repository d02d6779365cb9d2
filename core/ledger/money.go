package ledger

import (
	"strconv"
	"strings"
)

const currencySymbol = "$"

// ParseCurrency converts the textual amounts found in ledger exports into pesos.
// "$1.265.000" and "1265000" both yield 1265000; "", "-" and "0" mean unpaid.
// Dots are always thousands separators. Unparseable text yields 0.
func ParseCurrency(text string) int64 {
	s := strings.TrimSpace(text)
	if s == "" || s == "-" || s == "0" {
		return 0
	}
	if strings.Contains(s, currencySymbol) {
		s = strings.Replace(s, currencySymbol, "", 1)
		s = strings.ReplaceAll(s, ".", "")
	}
	return leadingInt(s)
}

// leadingInt parses an optional sign followed by digits, ignoring whatever follows them.
func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// FormatCurrency renders pesos the way they are displayed to operators: $1.265.000
func FormatCurrency(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + currencySymbol + groupThousands(strconv.FormatInt(amount, 10))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// CleanRUT keeps only the digits and the check digit (upper-cased) of a national ID.
func CleanRUT(rut string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(rut) {
		if (r >= '0' && r <= '9') || r == 'K' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidRUT reports whether rut looks like a national ID. The check digit is not verified.
func ValidRUT(rut string) bool {
	clean := CleanRUT(rut)
	if len(clean) < 7 || len(clean) > 9 {
		return false
	}
	return !strings.ContainsRune(clean[:len(clean)-1], 'K')
}

// FormatRUT renders a national ID as 12.345.678-9.
func FormatRUT(rut string) string {
	clean := CleanRUT(rut)
	if len(clean) < 2 {
		return rut
	}
	return groupThousands(clean[:len(clean)-1]) + "-" + clean[len(clean)-1:]
}

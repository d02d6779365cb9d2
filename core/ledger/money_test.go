package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int64
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace", text: "   ", want: 0},
		{name: "dash", text: "-", want: 0},
		{name: "padded dash", text: " - ", want: 0},
		{name: "zero", text: "0", want: 0},
		{name: "symbol with separators", text: "$1.265.000", want: 1265000},
		{name: "symbol with space", text: "$ 126.500", want: 126500},
		{name: "negative symbol", text: "-$5.000", want: -5000},
		{name: "plain integer", text: "379500", want: 379500},
		{name: "plain integer with spaces", text: " 126500 ", want: 126500},
		{name: "dots without symbol stop parsing", text: "1.265.000", want: 1},
		{name: "trailing residue", text: "126500abc", want: 126500},
		{name: "garbage", text: "abc", want: 0},
		{name: "symbol only", text: "$", want: 0},
		{name: "overflow", text: "99999999999999999999999", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCurrency(tt.text))
		})
	}
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "$0"},
		{500, "$500"},
		{3500, "$3.500"},
		{126500, "$126.500"},
		{1265000, "$1.265.000"},
		{-5000, "-$5.000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCurrency(tt.amount))
		})
	}
}

func TestParseCurrency_idempotence(t *testing.T) {
	for _, x := range []string{"", "-", "0", "$1.265.000", "$ 126.500", "379500", "-$5.000", "12abc", "$0", "1"} {
		t.Run(x, func(t *testing.T) {
			parsed := ParseCurrency(x)
			assert.Equal(t, parsed, ParseCurrency(FormatCurrency(parsed)))
		})
	}
}

func TestRUT(t *testing.T) {
	tests := []struct {
		in        string
		clean     string
		formatted string
		valid     bool
	}{
		{in: "12.345.678-9", clean: "123456789", formatted: "12.345.678-9", valid: true},
		{in: "12345678k", clean: "12345678K", formatted: "12.345.678-K", valid: true},
		{in: " 9.876.543-2 ", clean: "98765432", formatted: "9.876.543-2", valid: true},
		{in: "1-9", clean: "19", formatted: "1-9", valid: false},
		{in: "12K45678-9", clean: "12K456789", valid: false},
		{in: "x", clean: "", formatted: "x", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.clean, CleanRUT(tt.in))
			assert.Equal(t, tt.valid, ValidRUT(tt.in))
			if tt.formatted != "" {
				assert.Equal(t, tt.formatted, FormatRUT(tt.in))
			}
		})
	}
}

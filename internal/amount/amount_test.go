package amount

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "plain integer", in: "1500", want: "1500", ok: true},
		{name: "vietnamese thousands", in: "1.000", want: "1000", ok: true},
		{name: "us thousands with decimal", in: "1,000.50", want: "1000.5", ok: true},
		{name: "eu thousands with decimal", in: "1.000,50", want: "1000.5", ok: true},
		{name: "parenthesis negative", in: "(1500)", want: "-1500", ok: true},
		{name: "em dash placeholder", in: "—", ok: false},
		{name: "hyphen placeholder", in: "-", ok: false},
		{name: "en dash placeholder", in: "–", ok: false},
		{name: "minus sign placeholder", in: "−", ok: false},
		{name: "blank", in: "   ", ok: false},
		{name: "empty", in: "", ok: false},
		{name: "negative sign", in: "-250.75", want: "-250.75", ok: true},
		{name: "unicode minus number", in: "−42", want: "-42", ok: true},
		{name: "dong glyph", in: "₫1.500.000", want: "1500000", ok: true},
		{name: "dollar glyph", in: "$1,234.56", want: "1234.56", ok: true},
		{name: "euro glyph", in: "€99,95", want: "99.95", ok: true},
		{name: "repeated dots are thousands", in: "12.345.678", want: "12345678", ok: true},
		{name: "repeated commas are thousands", in: "12,345,678", want: "12345678", ok: true},
		{name: "single comma two digits is decimal", in: "10,50", want: "10.5", ok: true},
		{name: "single dot two digits is decimal", in: "10.50", want: "10.5", ok: true},
		{name: "single comma three digits is thousands", in: "5,000", want: "5000", ok: true},
		{name: "spaces inside number", in: "1 500 000", want: "1500000", ok: true},
		{name: "parenthesis with separators", in: "(1.234,56)", want: "-1234.56", ok: true},
		{name: "free text", in: "xem chi tiết", ok: false},
		{name: "both separators repeated", in: "1.234.567,89", want: "1234567.89", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			want, err := decimal.NewFromString(tt.want)
			if err != nil {
				t.Fatalf("bad want value %q: %v", tt.want, err)
			}
			if !got.Equal(want) {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

// Formatting a decimal in any supported locale style and re-parsing it must
// return the original value.
func TestParseRoundTrip(t *testing.T) {
	values := []string{"0", "1", "-1", "999", "1000", "1234567.89", "-50000", "0.5"}
	formats := []func(decimal.Decimal) string{
		func(d decimal.Decimal) string { return d.String() },
		func(d decimal.Decimal) string {
			if d.IsNegative() {
				return "(" + d.Neg().String() + ")"
			}
			return d.String()
		},
		func(d decimal.Decimal) string { return "₫" + d.String() },
	}

	for _, v := range values {
		want := decimal.RequireFromString(v)
		for i, format := range formats {
			in := format(want)
			got, ok := Parse(in)
			if !ok {
				t.Fatalf("format %d: Parse(%q) not ok", i, in)
			}
			if !got.Equal(want) {
				t.Errorf("format %d: Parse(%q) = %s, want %s", i, in, got, want)
			}
		}
	}
}

func TestParseOptional(t *testing.T) {
	if got := ParseOptional("—"); got != nil {
		t.Errorf("ParseOptional(dash) = %v, want nil", got)
	}
	got := ParseOptional("1.000")
	if got == nil || !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("ParseOptional(1.000) = %v, want 1000", got)
	}
}

package dateparse

import (
	"testing"
	"time"
)

func TestDetectFormatUnambiguous(t *testing.T) {
	det := DetectFormat([]string{"31/01/2024", "15/02/2024"})
	if det.Format != TagDMY {
		t.Fatalf("Format = %s, want %s", det.Format, TagDMY)
	}
	if det.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", det.Confidence)
	}
	if len(det.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", det.Warnings)
	}
}

func TestDetectFormatAmbiguous(t *testing.T) {
	det := DetectFormat([]string{"01/02/2024", "03/04/2024"})
	if det.Format != TagDMY && det.Format != TagMDY {
		t.Fatalf("Format = %s, want a day/month ordering", det.Format)
	}
	if len(det.Warnings) == 0 {
		t.Error("expected a disambiguation warning")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		samples []string
		want    Tag
	}{
		{name: "iso dates", samples: []string{"2024-01-31", "2024-02-15"}, want: TagYMD},
		{name: "datetime values", samples: []string{"31/01/2024 09:15:00", "28/02/2024 17:40:21"}, want: TagDMY},
		{name: "dotted day first", samples: []string{"31.01.2024", "15.02.2024"}, want: TagDMY},
		{name: "short year", samples: []string{"31/01/24", "15/02/24"}, want: TagDMYShort},
		{name: "month names", samples: []string{"5 Jan 2024", "17 Mar 2024"}, want: TagDMonY},
		{name: "month first only valid reading", samples: []string{"01/31/2024", "02/15/2024"}, want: TagMDY},
		{name: "blanks are skipped", samples: []string{"", "  ", "31/01/2024"}, want: TagDMY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := DetectFormat(tt.samples)
			if det.Format != tt.want {
				t.Errorf("DetectFormat(%v) = %s, want %s", tt.samples, det.Format, tt.want)
			}
		})
	}
}

func TestDetectFormatEmpty(t *testing.T) {
	det := DetectFormat(nil)
	if det.Format != "" || det.Confidence != 0 {
		t.Errorf("DetectFormat(nil) = %+v, want zero detection", det)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		format Tag
		want   time.Time
		ok     bool
	}{
		{name: "day first", value: "31/01/2024", format: TagDMY, want: date(2024, 1, 31), ok: true},
		{name: "month first", value: "01/31/2024", format: TagMDY, want: date(2024, 1, 31), ok: true},
		{name: "iso", value: "2024-01-31", format: TagYMD, want: date(2024, 1, 31), ok: true},
		{name: "datetime under date tag", value: "31/01/2024 14:05", format: TagDMY, want: date(2024, 1, 31), ok: true},
		{name: "short year 2000s", value: "15/06/07", format: TagDMYShort, want: date(2007, 6, 15), ok: true},
		{name: "short year boundary low", value: "01/01/29", format: TagDMYShort, want: date(2029, 1, 1), ok: true},
		{name: "short year boundary high", value: "01/01/30", format: TagDMYShort, want: date(1930, 1, 1), ok: true},
		{name: "catalogue fallback", value: "2024-01-31", format: TagDMY, want: date(2024, 1, 31), ok: true},
		{name: "impossible date", value: "30/02/2024", format: TagDMY, ok: false},
		{name: "free text", value: "Số dư đầu kỳ", format: TagDMY, ok: false},
		{name: "blank", value: "", format: TagDMY, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.value, tt.format)
			if ok != tt.ok {
				t.Fatalf("Parse(%q, %s) ok = %v, want %v", tt.value, tt.format, ok, tt.ok)
			}
			if tt.ok && !got.Equal(tt.want) {
				t.Errorf("Parse(%q, %s) = %s, want %s", tt.value, tt.format, got, tt.want)
			}
		})
	}
}

// Parsing never panics or errors on garbage; it reports ok=false.
func TestParseGarbage(t *testing.T) {
	for _, v := range []string{"99/99/9999", "0/0/2024", "13/13/13", "//", "2024", "-"} {
		if _, ok := Parse(v, TagDMY); ok {
			t.Errorf("Parse(%q) unexpectedly ok", v)
		}
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

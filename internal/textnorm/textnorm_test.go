package textnorm

import "testing"

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ngày", "ngay"},
		{"  Ghi nợ ", "ghi no"},
		{"GHI CÓ", "ghi co"},
		{"Số dư", "so du"},
		{"Diễn  giải", "dien giai"},
		{"Đơn vị", "don vi"},
		{"Description", "description"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

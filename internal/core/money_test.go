package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"dot separator", "12.34", 1234, false},
		{"comma separator", "12,34", 1234, false},
		{"no fraction", "12", 1200, false},
		{"single fraction digit", "12.3", 1230, false},
		{"third digit rounds down", "12.344", 1234, false},
		{"third digit rounds up", "12.346", 1235, false},
		{"leading dot", ".50", 50, false},
		{"whitespace trimmed", " 8.00 ", 800, false},
		{"empty", "", 0, true},
		{"zero", "0", 0, true},
		{"negative", "-5", 0, true},
		{"explicit plus", "+5", 0, true},
		{"letters", "abc", 0, true},
		{"two dots", "1.2.3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDecimalToCents(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoney_Format(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{1234, "12.34"},
		{5, "0.05"},
		{0, "0.00"},
		{-3000, "-30.00"},
		{100000, "1000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := (Money{Cents: tt.cents}).Format(); got != tt.want {
				t.Errorf("Money{%d}.Format() = %q, want %q", tt.cents, got, tt.want)
			}
		})
	}
}

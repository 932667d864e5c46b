package money

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Micros
	}{
		{"$0.01", 10000},
		{"0.01", 10000},
		{"$1", 1000000},
		{"$0.50", 500000},
		{"$0.001", 1000},
	}
	for _, c := range cases {
		got, err := Parse(c.in, RoundAwayFromZero)
		if err != nil {
			t.Fatalf("money_test - Parse(%q) unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("money_test - Parse(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseRoundingDirection(t *testing.T) {
	// $0.0015 rounded away from zero -> 1500 micros exactly (no remainder past 6 digits).
	// Use a value with a 7th digit to exercise rounding.
	got, err := Parse("$0.0000015", RoundAwayFromZero)
	if err != nil {
		t.Fatalf("money_test - unexpected error: %v", err)
	}
	if got != 2 {
		t.Errorf("money_test - RoundAwayFromZero got %d, want 2", got)
	}

	got, err = Parse("$0.0000015", RoundTowardZero)
	if err != nil {
		t.Fatalf("money_test - unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("money_test - RoundTowardZero got %d, want 1", got)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in   Micros
		want string
	}{
		{10000, "$0.01"},
		{1000000, "$1.00"},
		{500000, "$0.50"},
		{1500, "$0.0015"},
	}
	for _, c := range cases {
		got := Format(c.in)
		if got != c.want {
			t.Errorf("money_test - Format(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMarkUp(t *testing.T) {
	cases := []struct {
		provider Micros
		want     Micros
	}{
		{1000, 6000},    // $0.001 -> max(0.002, 0.006) = 0.006
		{100000, 200000}, // $0.10 -> max(0.20, 0.105) = 0.20
		{250000, 500000}, // $0.25 -> max(0.50, 0.255) = 0.50
	}
	for _, c := range cases {
		got := MarkUp(c.provider)
		if got != c.want {
			t.Errorf("money_test - MarkUp(%d) = %d, want %d", c.provider, got, c.want)
		}
		if got%1000 != 0 {
			t.Errorf("money_test - MarkUp(%d) = %d not a multiple of 0.001", c.provider, got)
		}
	}
}

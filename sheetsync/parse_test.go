package sheetsync

import "testing"

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1500", "1500", true},
		{"1500.50", "1500.5", true},
		{"1.500,50", "1500.5", true},
		{"1500,50", "1500.5", true},
		{" 1 500,50 ", "1500.5", true},
		{"", "", false},
		{"abc", "", false},
		{"12,5 TL", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseDecimal(tc.in)
		if ok != tc.ok {
			t.Errorf("ParseDecimal(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && got.String() != tc.want {
			t.Errorf("ParseDecimal(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseInt_Truncates(t *testing.T) {
	if n, ok := ParseInt("12,7"); !ok || n != 12 {
		t.Errorf("ParseInt(12,7) = %d, %v", n, ok)
	}
	if _, ok := ParseInt("on iki"); ok {
		t.Errorf("ParseInt should reject non-numeric input")
	}
}

func TestParseStopSale(t *testing.T) {
	truthy := []string{"true", "1", "yes", "X", "Evet", "KAPALI", "kapalı", "stop"}
	for _, in := range truthy {
		if v, ok := ParseStopSale(in); !ok || !v {
			t.Errorf("ParseStopSale(%q) = %v, %v; want true, true", in, v, ok)
		}
	}

	if v, ok := ParseStopSale("hayir"); !ok || v {
		t.Errorf("unrecognized token should read as present-but-false, got %v, %v", v, ok)
	}
	if _, ok := ParseStopSale("  "); ok {
		t.Errorf("empty cell must report ok=false")
	}
}

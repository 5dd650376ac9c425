package dto

import "testing"

func TestParseUSD(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"250", "250000000000000000000", true},
		{"99.50", "99500000000000000000", true},
		{"0.01", "10000000000000000", true},
		{"0", "0", true},
		{".5", "500000000000000000", true},
		{" 42 ", "42000000000000000000", true},
		{"", "", false},
		{"-5", "", false},
		{"abc", "", false},
		{"1.0000000000000000001", "", false}, // 19 fractional digits
	}
	for _, c := range cases {
		got, err := ParseUSD(c.in)
		if c.ok != (err == nil) {
			t.Errorf("ParseUSD(%q) err = %v, want ok=%v", c.in, err, c.ok)
			continue
		}
		if c.ok && got.String() != c.want {
			t.Errorf("ParseUSD(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7}, // no trimming
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		name             string
		pageRaw, sizeRaw string
		wantPage         int
		wantSize         int
	}{
		{"defaults", "", "", 1, 20},
		{"explicit", "3", "50", 3, 50},
		{"garbage", "abc", "def", 1, 20},
		{"negative page", "-2", "10", 1, 10},
		{"zero size", "2", "0", 2, 1},
		{"size over cap", "1", "500", 1, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, size := ClampPage(tc.pageRaw, tc.sizeRaw, 20, 100)
			if page != tc.wantPage || size != tc.wantSize {
				t.Fatalf("ClampPage(%q, %q) = (%d, %d); want (%d, %d)",
					tc.pageRaw, tc.sizeRaw, page, size, tc.wantPage, tc.wantSize)
			}
		})
	}
}

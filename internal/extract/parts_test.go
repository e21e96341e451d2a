package extract

import "testing"

func TestSplitPartIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantIdx int
		wantOK  bool
	}{
		{name: "first part", in: "bundle.7z.001", wantIdx: 1, wantOK: true},
		{name: "later part", in: "bundle.7z.017", wantIdx: 17, wantOK: true},
		{name: "plain archive", in: "bundle.7z", wantIdx: 0, wantOK: false},
		{name: "two digit suffix", in: "bundle.7z.01", wantIdx: 0, wantOK: false},
		{name: "zero part is invalid", in: "bundle.7z.000", wantIdx: 0, wantOK: false},
		{name: "suffix not at end", in: "bundle.001.7z", wantIdx: 0, wantOK: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			idx, ok := SplitPartIndex(tc.in)
			if idx != tc.wantIdx || ok != tc.wantOK {
				t.Errorf("SplitPartIndex(%q) = (%d, %v), want (%d, %v)",
					tc.in, idx, ok, tc.wantIdx, tc.wantOK)
			}
		})
	}
}

func TestEntryPoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want string
	}{
		{name: "empty", in: nil, want: ""},
		{name: "single file", in: []string{"bundle.7z"}, want: "bundle.7z"},
		{
			name: "split parts pick first",
			in:   []string{"bundle.7z.003", "bundle.7z.001", "bundle.7z.002"},
			want: "bundle.7z.001",
		},
		{
			name: "no part suffix falls back to sorted first",
			in:   []string{"b.7z", "a.7z"},
			want: "a.7z",
		},
		{
			name: "mixed names still find first part",
			in:   []string{"readme.txt", "bundle.7z.002", "bundle.7z.001"},
			want: "bundle.7z.001",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := EntryPoint(tc.in); got != tc.want {
				t.Errorf("EntryPoint(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

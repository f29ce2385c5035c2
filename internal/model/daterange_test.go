package model

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRange_Months(t *testing.T) {
	tests := []struct {
		name string
		r    DateRange
		want []string
	}{
		{
			name: "single partial month",
			r:    NewDateRange(date(2026, 3, 5), date(2026, 3, 20)),
			want: []string{"2026-03-05..2026-03-20"},
		},
		{
			name: "spans year boundary",
			r:    NewDateRange(date(2025, 11, 15), date(2026, 1, 10)),
			want: []string{"2025-11-15..2025-11-30", "2025-12-01..2025-12-31", "2026-01-01..2026-01-10"},
		},
		{
			name: "leap february",
			r:    NewDateRange(date(2028, 2, 1), date(2028, 3, 1)),
			want: []string{"2028-02-01..2028-02-29", "2028-03-01..2028-03-01"},
		},
		{
			name: "single day",
			r:    NewDateRange(date(2026, 1, 31), date(2026, 1, 31)),
			want: []string{"2026-01-31..2026-01-31"},
		},
		{
			name: "inverted range",
			r:    DateRange{From: date(2026, 2, 1), To: date(2026, 1, 1)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.r.Months()
			if len(got) != len(tt.want) {
				t.Fatalf("Months() returned %d chunks, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("chunk %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	r := NewDateRange(time.Date(2026, 1, 10, 23, 59, 0, 0, time.UTC), date(2026, 1, 20))

	t.Run("truncates to days", func(t *testing.T) {
		if !r.From.Equal(date(2026, 1, 10)) {
			t.Errorf("From = %v, want 2026-01-10", r.From)
		}
	})

	t.Run("contains is inclusive", func(t *testing.T) {
		for _, d := range []time.Time{date(2026, 1, 10), date(2026, 1, 20), time.Date(2026, 1, 20, 18, 0, 0, 0, time.UTC)} {
			if !r.Contains(d) {
				t.Errorf("Contains(%v) = false", d)
			}
		}
		if r.Contains(date(2026, 1, 21)) {
			t.Error("Contains(2026-01-21) = true")
		}
	})

	t.Run("overlaps", func(t *testing.T) {
		if !r.Overlaps(NewDateRange(date(2026, 1, 20), date(2026, 2, 1))) {
			t.Error("ranges sharing the last day should overlap")
		}
		if r.Overlaps(NewDateRange(date(2026, 1, 21), date(2026, 2, 1))) {
			t.Error("adjacent ranges should not overlap")
		}
	})

	t.Run("lookback", func(t *testing.T) {
		lb := LookbackRange(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 10)
		if lb.String() != "2026-02-19..2026-03-01" {
			t.Errorf("LookbackRange() = %s", lb)
		}
	})

	t.Run("zero", func(t *testing.T) {
		if !(DateRange{}).IsZero() || r.IsZero() {
			t.Error("IsZero() mismatch")
		}
	})
}

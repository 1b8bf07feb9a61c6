package calc

import (
	"errors"
	"testing"
)

func TestAdvise_Branches(t *testing.T) {
	cases := []struct {
		name      string
		total     int
		attended  int
		target    float64
		pct       float64
		dir       Direction
		count     int
		projected float64
	}{
		{"above", 100, 80, 75, 80.00, CanSkip, 6, 75.47},
		{"below", 100, 70, 75, 70.00, MustAttend, 20, 75.00},
		{"exactly at target", 100, 75, 75, 75.00, AtExactTarget, 0, 75.00},
		{"small numbers", 10, 8, 75, 80.00, CanSkip, 0, 80.00},
		{"row count register", 3, 2, 75, 66.67, MustAttend, 1, 75.00},
		{"custom target", 40, 30, 60, 75.00, CanSkip, 10, 60.00},
		{"perfect attendance", 20, 20, 100, 100.00, AtExactTarget, 0, 100.00},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adv, err := Advise(tc.total, tc.attended, tc.target)
			if err != nil {
				t.Fatalf("advise: %v", err)
			}
			if adv.CurrentPercentage != tc.pct {
				t.Fatalf("pct=%v, want %v", adv.CurrentPercentage, tc.pct)
			}
			if adv.Direction != tc.dir || adv.Count != tc.count {
				t.Fatalf("got %s %d, want %s %d", adv.Direction, adv.Count, tc.dir, tc.count)
			}
			if adv.ProjectedPercentage != tc.projected {
				t.Fatalf("projected=%v, want %v", adv.ProjectedPercentage, tc.projected)
			}
		})
	}
}

func TestAdvise_AboveIncludesExactTarget(t *testing.T) {
	adv, err := Advise(100, 75, 75)
	if err != nil {
		t.Fatal(err)
	}
	if !adv.Above() || adv.Count != 0 {
		t.Fatalf("expected above branch with zero count, got %+v", adv)
	}
	below, _ := Advise(100, 70, 75)
	if below.Above() {
		t.Fatalf("70/100 at 75 must not be above")
	}
}

// The skip count is the largest x keeping attended/(total+x) at or above
// target, and the attend count the smallest x reaching it.
func TestAdvise_CountsAreTight(t *testing.T) {
	for total := 1; total <= 60; total++ {
		for attended := 0; attended <= total; attended++ {
			for _, target := range []float64{50, 66.5, 75, 85} {
				adv, err := Advise(total, attended, target)
				if err != nil {
					t.Fatalf("advise(%d,%d,%v): %v", total, attended, target, err)
				}
				ok := func(a, n int) bool { return 100*float64(a) >= target*float64(n)-1e-9 }
				x := adv.Count
				if adv.Above() {
					if !ok(attended, total+x) || ok(attended, total+x+1) {
						t.Fatalf("skip count not tight for %d/%d @%v: %d", attended, total, target, x)
					}
					continue
				}
				if !ok(attended+x, total+x) || (x > 0 && ok(attended+x-1, total+x-1)) {
					t.Fatalf("attend count not tight for %d/%d @%v: %d", attended, total, target, x)
				}
			}
		}
	}
}

func TestAdvise_Guards(t *testing.T) {
	cases := []struct {
		name            string
		total, attended int
		target          float64
		want            error
	}{
		{"zero total", 0, 0, 75, ErrZeroTotal},
		{"negative attended", 10, -1, 75, ErrNegativeAttended},
		{"attended exceeds total", 10, 11, 75, ErrAttendedExceedsTotal},
		{"zero target", 10, 5, 0, ErrInvalidTarget},
		{"target above 100", 10, 5, 101, ErrInvalidTarget},
		{"unreachable", 10, 9, 100, ErrUnreachableTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Advise(tc.total, tc.attended, tc.target)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestPercentAndFormat(t *testing.T) {
	p, err := Percent(3, 2)
	if err != nil || p != 66.67 {
		t.Fatalf("Percent(3,2)=%v,%v", p, err)
	}
	// 0.125 rounds away from zero.
	if p, _ := Percent(800, 1); p != 0.13 {
		t.Fatalf("Percent(800,1)=%v, want 0.13", p)
	}
	if got := FormatPercent(80); got != "80.00" {
		t.Fatalf("FormatPercent(80)=%q", got)
	}
	if got := FormatPercent(66.67); got != "66.67" {
		t.Fatalf("FormatPercent(66.67)=%q", got)
	}
	if _, err := Percent(0, 0); !errors.Is(err, ErrZeroTotal) {
		t.Fatalf("expected ErrZeroTotal, got %v", err)
	}
}

func TestSkipCountAlt(t *testing.T) {
	alt, err := SkipCountAlt(100, 80, 75)
	if err != nil || alt != 6 {
		t.Fatalf("alt=%d err=%v", alt, err)
	}
	if alt, _ := SkipCountAlt(100, 70, 75); alt != 0 {
		t.Fatalf("below target clamps to zero, got %d", alt)
	}
}

// Package calc turns a (total, attended) pair into skip/attend guidance.
//
// All arithmetic runs on exact decimals so threshold comparisons never
// suffer from binary floating point drift; only the reported percentages are
// converted back to float64.
package calc

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultTarget is the attendance percentage most institutions require.
const DefaultTarget = 75.0

var (
	ErrZeroTotal            = errors.New("total classes must be positive")
	ErrNegativeAttended     = errors.New("attended classes must not be negative")
	ErrAttendedExceedsTotal = errors.New("attended classes exceed total classes")
	ErrInvalidTarget        = errors.New("target percentage must be in (0, 100]")
	ErrUnreachableTarget    = errors.New("target percentage is unreachable")
)

// Direction says which branch of the guidance applies.
type Direction string

const (
	CanSkip       Direction = "can_skip"
	MustAttend    Direction = "must_attend"
	AtExactTarget Direction = "at_exact_target"
)

// Advice is the guidance for one record and target.
type Advice struct {
	Total             int       `json:"totalClasses"`
	Attended          int       `json:"attendedClasses"`
	Target            float64   `json:"targetPercentage"`
	CurrentPercentage float64   `json:"currentPercentage"`
	Direction         Direction `json:"direction"`
	// Count is the number of classes that may be skipped when Above, or
	// that must be attended otherwise.
	Count               int     `json:"count"`
	ProjectedTotal      int     `json:"projectedTotal"`
	ProjectedAttended   int     `json:"projectedAttended"`
	ProjectedPercentage float64 `json:"projectedPercentage"`
}

// Above reports the skip branch. Being exactly at target counts as above
// with a count of zero.
func (a Advice) Above() bool {
	return a.Direction == CanSkip || a.Direction == AtExactTarget
}

var hundred = decimal.NewFromInt(100)

func check(total, attended int, target float64) error {
	switch {
	case total <= 0:
		return ErrZeroTotal
	case attended < 0:
		return ErrNegativeAttended
	case attended > total:
		return ErrAttendedExceedsTotal
	case math.IsNaN(target) || target <= 0 || target > 100:
		return ErrInvalidTarget
	}
	return nil
}

// Advise computes the current percentage and either the largest number of
// further classes that may be missed while staying at or above target, or
// the smallest number of consecutive classes that must be attended to reach
// it.
func Advise(total, attended int, target float64) (Advice, error) {
	if err := check(total, attended, target); err != nil {
		return Advice{}, err
	}
	t := decimal.NewFromInt(int64(total))
	a := decimal.NewFromInt(int64(attended))
	tgt := decimal.NewFromFloat(target)

	adv := Advice{
		Total:             total,
		Attended:          attended,
		Target:            target,
		CurrentPercentage: percent(a, t),
	}
	// Compare 100*attended with target*total to avoid dividing first.
	have := hundred.Mul(a)
	need := tgt.Mul(t)
	switch have.Cmp(need) {
	case 0:
		adv.Direction = AtExactTarget
	case 1:
		adv.Direction = CanSkip
		// x = floor(100*attended/target - total)
		x := have.Div(tgt).Sub(t).Floor()
		if x.IsNegative() {
			x = decimal.Zero
		}
		adv.Count = int(x.IntPart())
	default:
		if target >= 100 {
			return Advice{}, ErrUnreachableTarget
		}
		adv.Direction = MustAttend
		// x = ceil((target*total - 100*attended) / (100 - target))
		x := need.Sub(have).Div(hundred.Sub(tgt)).Ceil()
		adv.Count = int(x.IntPart())
	}

	adv.ProjectedTotal = total + adv.Count
	adv.ProjectedAttended = attended
	if adv.Direction == MustAttend {
		adv.ProjectedAttended = attended + adv.Count
	}
	adv.ProjectedPercentage = percent(
		decimal.NewFromInt(int64(adv.ProjectedAttended)),
		decimal.NewFromInt(int64(adv.ProjectedTotal)),
	)
	return adv, nil
}

// Percent returns 100*attended/total rounded half away from zero to two
// places.
func Percent(total, attended int) (float64, error) {
	if err := check(total, attended, DefaultTarget); err != nil {
		return 0, err
	}
	return percent(decimal.NewFromInt(int64(attended)), decimal.NewFromInt(int64(total))), nil
}

func percent(a, t decimal.Decimal) float64 {
	if t.IsZero() {
		return 0
	}
	return a.Mul(hundred).Div(t).Round(2).InexactFloat64()
}

// FormatPercent renders p with exactly two decimals regardless of locale.
func FormatPercent(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(2)
}

// SkipCountAlt is the second skip formula seen in older calculators,
// floor((100*attended - target*total) / target), evaluated in binary
// floating point. It can differ from Advise by one near threshold
// boundaries and is kept only for comparison.
func SkipCountAlt(total, attended int, target float64) (int, error) {
	if err := check(total, attended, target); err != nil {
		return 0, err
	}
	x := math.Floor((100*float64(attended) - target*float64(total)) / target)
	if x < 0 {
		return 0, nil
	}
	return int(x), nil
}

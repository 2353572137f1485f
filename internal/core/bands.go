package core

import (
	"fmt"
	"math"
	"slices"

	"oqt_service/internal/domain/model"
)

// Band maps the half open interval [Lower, Upper) to a class.
type Band struct {
	Lower float64
	Upper float64
	Class model.Class
}

func (b Band) contains(v float64) bool {
	return v >= b.Lower && v < b.Upper
}

// Bands is an ordered list of non-overlapping bands, best class first.
type Bands []Band

// Thresholds builds the common three band scale: [green, +Inf) is green,
// [yellow, green) is yellow and [0, yellow) is red. Negative values match no
// band.
func Thresholds(green, yellow float64) Bands {
	return Bands{
		{Lower: green, Upper: math.Inf(1), Class: model.ClassGreen},
		{Lower: yellow, Upper: green, Class: model.ClassYellow},
		{Lower: 0, Upper: yellow, Class: model.ClassRed},
	}
}

// Classify returns the class of the first band containing v. NaN and values
// outside every band are invariant violations.
func (bs Bands) Classify(v float64) (model.Class, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: value is NaN", ErrInvariantViolation)
	}
	for _, b := range bs {
		if b.contains(v) {
			return b.Class, nil
		}
	}
	return 0, fmt.Errorf("%w: value %g matches no band", ErrInvariantViolation, v)
}

// Validate checks that bands are ordered best to worst, non-empty, carry
// valid classes and do not overlap.
func (bs Bands) Validate() error {
	if len(bs) == 0 {
		return fmt.Errorf("%w: no bands", ErrConfiguration)
	}
	for i, b := range bs {
		if !b.Class.Valid() {
			return fmt.Errorf("%w: band %d has class %d", ErrConfiguration, i, b.Class)
		}
		if !(b.Lower < b.Upper) {
			return fmt.Errorf("%w: band %d is empty", ErrConfiguration, i)
		}
		if i > 0 && b.Class > bs[i-1].Class {
			return fmt.Errorf("%w: band %d is not ordered best to worst", ErrConfiguration, i)
		}
	}
	sorted := slices.Clone(bs)
	slices.SortFunc(sorted, func(a, b Band) int {
		switch {
		case a.Lower < b.Lower:
			return -1
		case a.Lower > b.Lower:
			return 1
		}
		return 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Lower < sorted[i-1].Upper {
			return fmt.Errorf("%w: bands [%g, %g) and [%g, %g) overlap", ErrConfiguration,
				sorted[i-1].Lower, sorted[i-1].Upper, sorted[i].Lower, sorted[i].Upper)
		}
	}
	return nil
}

package candy

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrNonNumericScore = errors.New("score is not a whole number")

// scoreTable is the exact score to drop-count lookup. It is not a formula.
var scoreTable = map[int]int{
	20:  2,
	40:  4,
	60:  6,
	80:  8,
	100: 10,
}

// ScoreToCount maps a score to the number of candies to drop.
// Scores outside the table drop a single candy.
func ScoreToCount(score int) int {
	if n, ok := scoreTable[score]; ok {
		return n
	}
	return 1
}

// ParseScore turns the scoring service's value into an integer.
// "40" and "40.0" are both 40; "forty" and "40.5" are rejected.
func ParseScore(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, ErrNonNumericScore
	}
	// -math.MinInt is 2^63 (or 2^31) and exact as a float64.
	if f < math.MinInt || f >= -math.MinInt {
		return 0, ErrNonNumericScore
	}
	return int(f), nil
}

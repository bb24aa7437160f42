package catalog

import (
	"math"
	"slices"
	"strconv"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// Currency is the fixed label prices are displayed and charged in.
const Currency = "BYN"

// RemainingStagePrice sums the prices of courses not present in owned.
func RemainingStagePrice(courses []models.Course, owned []int) float64 {
	var total float64
	for _, c := range courses {
		if !slices.Contains(owned, c.ID) {
			total += c.Price
		}
	}
	return total
}

// FullAccessPrice sums the prices of every catalog course not present in owned.
func (idx *Index) FullAccessPrice(owned []int) float64 {
	var total float64
	for _, c := range idx.courses {
		if !slices.Contains(owned, c.ID) {
			total += c.Price
		}
	}
	return total
}

// DeclaredStagePrice returns the bundle price stored in the dataset, or the sum
// of all course prices when none is declared.
func DeclaredStagePrice(st models.Stage) float64 {
	if st.Price != nil {
		return *st.Price
	}
	return RemainingStagePrice(st.Courses, nil)
}

// FormatPrice renders whole values without decimals and others with two.
func FormatPrice(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

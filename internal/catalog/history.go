package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// Summary splits enrollment history into finished and upcoming workshops.
type Summary struct {
	Completed []types.Enrollment
	Upcoming  []types.Enrollment
	Credits   int
	Tuition   decimal.Decimal
	Unrated   int
}

var RatingLabels = [...]string{"", "Poor", "Fair", "Good", "Very Good", "Excellent"}

func Summarize(history []types.Enrollment) Summary {
	s := Summary{Tuition: decimal.Zero}
	for _, e := range history {
		if e.IsCompleted {
			s.Completed = append(s.Completed, e)
			if e.Rating == 0 {
				s.Unrated++
			}
		} else {
			s.Upcoming = append(s.Upcoming, e)
		}
		s.Credits += e.Credits
		s.Tuition = s.Tuition.Add(e.Tuition)
	}
	return s
}

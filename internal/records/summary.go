package records

import (
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
)

// SportTotals aggregates activities of a single sport type.
type SportTotals struct {
	Type       string
	Count      int
	Distance   float64
	MovingTime int
}

// Summary aggregates an activity window.
type Summary struct {
	Count         int
	Distance      float64
	MovingTime    int
	ElevationGain float64
	BySport       []SportTotals
}

// Summarize totals activities overall and per sport. Sports are ordered by
// distance, largest first.
func Summarize(activities []domain.Activity) Summary {
	var s Summary
	index := make(map[string]int)
	for _, a := range activities {
		s.Count++
		s.Distance += a.Distance
		s.MovingTime += a.MovingTime
		s.ElevationGain += a.ElevationGain

		i, ok := index[a.Type]
		if !ok {
			i = len(s.BySport)
			index[a.Type] = i
			s.BySport = append(s.BySport, SportTotals{Type: a.Type})
		}
		s.BySport[i].Count++
		s.BySport[i].Distance += a.Distance
		s.BySport[i].MovingTime += a.MovingTime
	}
	sort.SliceStable(s.BySport, func(i, j int) bool {
		return s.BySport[i].Distance > s.BySport[j].Distance
	})
	return s
}

// SummaryDisplay is the localised rendering of a Summary.
type SummaryDisplay struct {
	Activities string `json:"activities"`
	Distance   string `json:"distance"`
	MovingTime string `json:"moving_time"`
	Elevation  string `json:"elevation"`
}

// Display formats the summary with the number conventions of tag.
func (s Summary) Display(tag language.Tag) SummaryDisplay {
	p := message.NewPrinter(tag)
	return SummaryDisplay{
		Activities: p.Sprintf("%d", s.Count),
		Distance:   p.Sprintf("%.1f km", s.Distance/1000),
		MovingTime: FormatDuration(s.MovingTime),
		Elevation:  p.Sprintf("%d m", int(s.ElevationGain)),
	}
}

package analytics

import (
	"strings"
	"time"

	"github.com/noah-isme/toko-sales/internal/common"
)

// Granularity is the bucket width of a time series.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// ParseGranularity accepts day, week, month or year in any case. Empty input means Day.
func ParseGranularity(raw string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(raw))); g {
	case "":
		return Day, nil
	case Day, Week, Month, Year:
		return g, nil
	default:
		return "", common.Errorf(common.KindValidation, "groupBy must be one of day, week, month, year")
	}
}

// Start returns the UTC start of the bucket holding t. Weeks start on Monday.
func (g Granularity) Start(t time.Time) time.Time {
	d := startOfDay(t)
	switch g {
	case Week:
		return d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))
	case Month:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

func (g Granularity) next(t time.Time) time.Time {
	switch g {
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	case Year:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// buckets lists every bucket start touching [r.From, r.To).
func (g Granularity) buckets(r Range) []time.Time {
	var out []time.Time
	for b := g.Start(r.From); b.Before(r.To); b = g.next(b) {
		out = append(out, b)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Range is a half-open UTC interval [From, To).
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DayRange turns the inclusive calendar days first..last into a Range.
func DayRange(first, last time.Time) (Range, error) {
	from, to := startOfDay(first), startOfDay(last)
	if from.After(to) {
		return Range{}, common.Errorf(common.KindValidation, "from must not be after to")
	}
	return Range{From: from, To: to.AddDate(0, 0, 1)}, nil
}

// maxSeriesBuckets caps how many points one series may hold.
const maxSeriesBuckets = 1000

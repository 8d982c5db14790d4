package weather

import (
	"math"
	"sort"
	"time"
)

// maxForecastDays caps the aggregated output; the provider's free feed
// covers five days.
const maxForecastDays = 5

// DailySummary is one calendar day condensed from its forecast points.
//
// Date is the representative instant for the day: the calendar date at
// 12:00:00 UTC, regardless of the timestamps of the contributing points.
type DailySummary struct {
	Date              time.Time
	TempMin           float64
	TempMax           float64
	PrecipProbability *int // %, nil when no point carried pop data
	Description       string
	IconCode          string
}

// dayBucket accumulates points belonging to one UTC calendar date.
// descOrder/iconOrder remember first-seen order so mode ties resolve to
// the value that appeared first in the input.
type dayBucket struct {
	tempMin, tempMax float64
	popSum           float64
	popCount         int
	descCounts       map[string]int
	descOrder        []string
	iconCounts       map[string]int
	iconOrder        []string
}

// AggregateDaily converts a sequence of fine-grained forecast points into
// at most five daily summaries, sorted ascending by date.
//
// Per day: TempMin/TempMax are the extremes of the grouped temperatures;
// PrecipProbability is round(100 × mean) over the points that carried pop
// data, or nil when none did; Description and IconCode are the most
// frequent values in the group, ties broken by first appearance.
//
// The function is pure: the same input always yields the same output,
// so re-running a fetch and upserting is idempotent.
func AggregateDaily(points []ForecastPoint) []DailySummary {
	if len(points) == 0 {
		return nil
	}

	buckets := make(map[string]*dayBucket)
	for _, p := range points {
		ts := p.Timestamp.UTC()
		key := ts.Format("2006-01-02")

		b, ok := buckets[key]
		if !ok {
			b = &dayBucket{
				tempMin:    p.Temperature,
				tempMax:    p.Temperature,
				descCounts: make(map[string]int),
				iconCounts: make(map[string]int),
			}
			buckets[key] = b
		} else {
			b.tempMin = math.Min(b.tempMin, p.Temperature)
			b.tempMax = math.Max(b.tempMax, p.Temperature)
		}

		if p.Pop != nil {
			b.popSum += *p.Pop
			b.popCount++
		}

		if _, seen := b.descCounts[p.Description]; !seen {
			b.descOrder = append(b.descOrder, p.Description)
		}
		b.descCounts[p.Description]++

		if _, seen := b.iconCounts[p.IconCode]; !seen {
			b.iconOrder = append(b.iconOrder, p.IconCode)
		}
		b.iconCounts[p.IconCode]++
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxForecastDays {
		keys = keys[:maxForecastDays]
	}

	summaries := make([]DailySummary, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]

		day, _ := time.Parse("2006-01-02", k)
		noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC)

		var pop *int
		if b.popCount > 0 {
			pct := int(math.Round(100 * b.popSum / float64(b.popCount)))
			pop = &pct
		}

		summaries = append(summaries, DailySummary{
			Date:              noon,
			TempMin:           b.tempMin,
			TempMax:           b.tempMax,
			PrecipProbability: pop,
			Description:       mode(b.descCounts, b.descOrder),
			IconCode:          mode(b.iconCounts, b.iconOrder),
		})
	}

	return summaries
}

// mode returns the value with the highest count; order carries the values
// in first-seen order, which makes the tie-break deterministic.
func mode(counts map[string]int, order []string) string {
	best := ""
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

package features

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MonthlyMean is the mean target value over all entities for one month.
type MonthlyMean struct {
	Month    string  `json:"month"`
	Mean     float64 `json:"mean"`
	Entities int     `json:"entities"`
}

// Summary describes a historical table.
type Summary struct {
	Entities int           `json:"entities"`
	Months   int           `json:"months"`
	Rows     int           `json:"rows"`
	Mean     float64       `json:"mean"`
	StdDev   float64       `json:"stdDev"`
	Monthly  []MonthlyMean `json:"monthly"`
}

// Summarize computes entity and month counts and the mean target over time.
func Summarize(records []Record) Summary {
	if len(records) == 0 {
		return Summary{}
	}

	entities := make(map[string]struct{})
	byMonth := make(map[string][]float64)
	for _, r := range records {
		entities[r.EntityID] = struct{}{}
		key := MonthKey(r.Time)
		byMonth[key] = append(byMonth[key], r.Value)
	}

	keys := make([]string, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	monthly := make([]MonthlyMean, len(keys))
	for i, k := range keys {
		monthly[i] = MonthlyMean{
			Month:    k,
			Mean:     stat.Mean(byMonth[k], nil),
			Entities: len(byMonth[k]),
		}
	}

	mean, std := stat.MeanStdDev(Values(records), nil)
	if len(records) < 2 {
		std = 0
	}

	return Summary{
		Entities: len(entities),
		Months:   len(keys),
		Rows:     len(records),
		Mean:     mean,
		StdDev:   std,
		Monthly:  monthly,
	}
}

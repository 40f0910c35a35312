package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type StatField string

const (
	StatSubmissions StatField = "submissions"
	StatVerified    StatField = "verified"
	StatRejected    StatField = "rejected"
	StatExported    StatField = "exported"
)

var statColumns = map[StatField]string{
	StatSubmissions: "total_submissions",
	StatVerified:    "total_verified",
	StatRejected:    "total_rejected",
	StatExported:    "total_exported",
}

var Categories = []string{"corruption", "fraud", "safety", "other"}

// categoryColumns maps submission categories onto the four counters.
var categoryColumns = map[string]string{
	"financial_fraud": "fraud",
	"fraud":           "fraud",
	"corruption":      "corruption",
	"safety":          "safety",
	"environmental":   "safety",
}

type DailyStats struct {
	Date             string         `json:"date"`
	TotalSubmissions int            `json:"totalSubmissions"`
	TotalVerified    int            `json:"totalVerified"`
	TotalRejected    int            `json:"totalRejected"`
	TotalExported    int            `json:"totalExported"`
	CategoryCounts   map[string]int `json:"categoryCounts"`
}

// DayKey is the YYYY-MM-DD bucket for t in UTC.
func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// CategoryColumn maps a submission category to its counter column. Unknown
// categories count as other; an empty category counts nowhere.
func CategoryColumn(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return ""
	}
	if col, ok := categoryColumns[c]; ok {
		return col
	}
	return "other"
}

func (s *Store) IncrementStats(ctx context.Context, day string, field StatField, category string) error {
	col, ok := statColumns[field]
	if !ok {
		return fmt.Errorf("unknown stat field %q", field)
	}
	set := col + "=backend_system_stats." + col + "+1"
	insertCols := "day," + col
	insertVals := "$1,1"
	if cat := CategoryColumn(category); cat != "" {
		set += "," + cat + "=backend_system_stats." + cat + "+1"
		insertCols += "," + cat
		insertVals += ",1"
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_system_stats(`+insertCols+`) VALUES(`+insertVals+`)
ON CONFLICT (day) DO UPDATE SET `+set, day)
	return err
}

// GetStats returns the buckets with from <= day <= to, oldest first.
func (s *Store) GetStats(ctx context.Context, from, to string) ([]DailyStats, error) {
	rows, err := s.DB.Query(ctx, `
SELECT day,total_submissions,total_verified,total_rejected,total_exported,corruption,fraud,safety,other
FROM backend_system_stats
WHERE day >= $1 AND day <= $2
ORDER BY day ASC
`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DailyStats{}
	for rows.Next() {
		var d DailyStats
		var corruption, fraud, safety, other int
		if err := rows.Scan(&d.Date, &d.TotalSubmissions, &d.TotalVerified, &d.TotalRejected, &d.TotalExported,
			&corruption, &fraud, &safety, &other); err != nil {
			return nil, err
		}
		d.CategoryCounts = map[string]int{"corruption": corruption, "fraud": fraud, "safety": safety, "other": other}
		out = append(out, d)
	}
	return out, rows.Err()
}

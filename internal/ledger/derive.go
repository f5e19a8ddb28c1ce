package ledger

import (
	"math"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ParseDate accepts a calendar date or an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Recompute derives Total and DateISO from the raw fields.
func (w *WorkSession) Recompute() {
	if w.WorkType == WorkFlat {
		w.Total = round(w.Rate, 2)
	} else {
		w.Total = round(w.Hours*w.Rate, 2)
	}
	if t, err := ParseDate(w.Date); err == nil {
		w.DateISO = t.Format(time.RFC3339)
	}
}

// LetterGrade maps a percentage onto the A-F scale.
func LetterGrade(pct float64) string {
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}

// Recompute derives Percentage (one decimal) and Grade from Score and Max.
func (g *GradeRecord) Recompute() {
	if g.Max <= 0 {
		g.Percentage = 0
		g.Grade = LetterGrade(0)
		return
	}
	g.Percentage = round(g.Score*100/g.Max, 1)
	g.Grade = LetterGrade(g.Percentage)
}

// dedupe keeps the first occurrence of each id.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

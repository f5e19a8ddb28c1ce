package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkSessionTotal(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkSession
		want float64
	}{
		{name: "hourly", ws: WorkSession{WorkType: WorkHourly, Hours: 3, Rate: 20}, want: 60.00},
		{name: "hourly fractional", ws: WorkSession{WorkType: WorkHourly, Hours: 1.5, Rate: 30}, want: 45.00},
		{name: "flat ignores hours", ws: WorkSession{WorkType: WorkFlat, Hours: 7, Rate: 50}, want: 50.00},
		{name: "flat without hours", ws: WorkSession{WorkType: WorkFlat, Rate: 50}, want: 50.00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ws.Recompute()
			assert.Equal(t, tt.want, tt.ws.Total)
		})
	}
}

func TestWorkSessionDateISO(t *testing.T) {
	ws := WorkSession{WorkType: WorkHourly, Hours: 1, Rate: 10, Date: "2024-02-29"}
	ws.Recompute()
	assert.Equal(t, "2024-02-29T00:00:00Z", ws.DateISO)
}

func TestGradeBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		max       float64
		wantPct   float64
		wantGrade string
	}{
		{name: "72 of 90", score: 72, max: 90, wantPct: 80.0, wantGrade: "B"},
		{name: "exactly 90", score: 90, max: 100, wantPct: 90.0, wantGrade: "A"},
		{name: "exactly 60", score: 60, max: 100, wantPct: 60.0, wantGrade: "D"},
		{name: "59.9", score: 599, max: 1000, wantPct: 59.9, wantGrade: "F"},
		{name: "exactly 70", score: 14, max: 20, wantPct: 70.0, wantGrade: "C"},
		{name: "full marks", score: 45, max: 45, wantPct: 100.0, wantGrade: "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := GradeRecord{Score: tt.score, Max: tt.max}
			g.Recompute()
			assert.Equal(t, tt.wantPct, g.Percentage)
			assert.Equal(t, tt.wantGrade, g.Grade)
		})
	}
}

func TestLetterGrade(t *testing.T) {
	assert.Equal(t, "A", LetterGrade(90))
	assert.Equal(t, "B", LetterGrade(89.9))
	assert.Equal(t, "D", LetterGrade(60))
	assert.Equal(t, "F", LetterGrade(59.9))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"s1", "s2"}, dedupe([]string{"s1", " s2", "s1", ""}))
}

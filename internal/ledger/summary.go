package ledger

// StudentTotals aggregates one student's marks and payments.
type StudentTotals struct {
	StudentID    string  `json:"studentId"`
	Name         string  `json:"name"`
	Marks        int     `json:"marks"`
	AveragePct   float64 `json:"averagePercentage"`
	Paid         float64 `json:"paid"`
	Attended     int     `json:"attended"`
	LastPaidDate string  `json:"lastPaidDate,omitempty"`
}

// Summary is the dashboard view of a snapshot.
type Summary struct {
	Students      int             `json:"students"`
	Sessions      int             `json:"sessions"`
	Hours         float64         `json:"hours"`
	Earnings      float64         `json:"earnings"`
	PaymentsTotal float64         `json:"paymentsTotal"`
	AveragePct    float64         `json:"averagePercentage"`
	Lessons       int             `json:"lessons"`
	PerStudent    []StudentTotals `json:"perStudent"`
}

// Summarize computes totals over a snapshot. Grades and payments reference
// students by id or by name.
func Summarize(s Snapshot) Summary {
	sum := Summary{
		Students:   len(s.Students),
		Sessions:   len(s.Hours),
		Lessons:    len(s.Attendance),
		PerStudent: make([]StudentTotals, 0, len(s.Students)),
	}
	for _, ws := range s.Hours {
		if ws.WorkType == WorkHourly {
			sum.Hours += ws.Hours
		}
		sum.Earnings += ws.Total
	}
	for _, p := range s.Payments {
		sum.PaymentsTotal += p.Amount
	}
	var pctTotal float64
	for _, m := range s.Marks {
		pctTotal += m.Percentage
	}
	if len(s.Marks) > 0 {
		sum.AveragePct = round(pctTotal/float64(len(s.Marks)), 1)
	}

	for _, st := range s.Students {
		refs := func(ref string) bool { return ref == st.StudentID || ref == st.Name }
		t := StudentTotals{StudentID: st.StudentID, Name: st.Name}
		var pct float64
		for _, m := range s.Marks {
			if refs(m.Student) {
				t.Marks++
				pct += m.Percentage
			}
		}
		if t.Marks > 0 {
			t.AveragePct = round(pct/float64(t.Marks), 1)
		}
		for _, p := range s.Payments {
			if refs(p.Student) {
				t.Paid += p.Amount
				if p.Date > t.LastPaidDate {
					t.LastPaidDate = p.Date
				}
			}
		}
		for _, a := range s.Attendance {
			for _, id := range a.Present {
				if refs(id) {
					t.Attended++
					break
				}
			}
		}
		t.Paid = round(t.Paid, 2)
		sum.PerStudent = append(sum.PerStudent, t)
	}
	sum.Hours = round(sum.Hours, 2)
	sum.Earnings = round(sum.Earnings, 2)
	sum.PaymentsTotal = round(sum.PaymentsTotal, 2)
	return sum
}

package ledger

import (
	"encoding/json"
	"time"
)

// WorkType controls how a session total is derived.
type WorkType string

const (
	WorkHourly WorkType = "hourly"
	WorkFlat   WorkType = "flat"
)

// Student is a tutored student. StudentID is assigned by the tutor and is
// unique within one snapshot.
type Student struct {
	StudentID string    `json:"studentId" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Gender    string    `json:"gender,omitempty"`
	Email     string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string    `json:"phone,omitempty"`
	Rate      float64   `json:"rate" validate:"gte=0"`
	CreatedAt time.Time `json:"createdAt"`
}

// WorkSession is one logged block of tutoring work.
type WorkSession struct {
	ID           string   `json:"id"`
	Organization string   `json:"organization" validate:"required"`
	WorkType     WorkType `json:"workType" validate:"required,oneof=hourly flat"`
	Date         string   `json:"date" validate:"required"`
	DateISO      string   `json:"dateIso"`
	Hours        float64  `json:"hours" validate:"gte=0"`
	Rate         float64  `json:"rate" validate:"gt=0"`
	Total        float64  `json:"total"`
	Notes        string   `json:"notes,omitempty"`
}

// GradeRecord is a scored piece of work for a student.
type GradeRecord struct {
	ID         string  `json:"id"`
	Student    string  `json:"student" validate:"required"`
	Subject    string  `json:"subject" validate:"required"`
	Topic      string  `json:"topic,omitempty"`
	Date       string  `json:"date" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0"`
	Max        float64 `json:"max" validate:"gt=0"`
	Percentage float64 `json:"percentage"`
	Grade      string  `json:"grade"`
	Notes      string  `json:"notes,omitempty"`
}

// AttendanceRecord lists the students present at one lesson.
type AttendanceRecord struct {
	ID      string   `json:"id"`
	Date    string   `json:"date" validate:"required"`
	Subject string   `json:"subject" validate:"required"`
	Topic   string   `json:"topic,omitempty"`
	Present []string `json:"present"`
}

// PaymentRecord is money received from or on behalf of a student.
type PaymentRecord struct {
	ID      string  `json:"id"`
	Student string  `json:"student" validate:"required"`
	Amount  float64 `json:"amount" validate:"gt=0"`
	Date    string  `json:"date" validate:"required"`
	Method  string  `json:"method"`
	Notes   string  `json:"notes,omitempty"`
}

// Settings holds free-form user options such as defaultRate.
type Settings map[string]any

// Snapshot is the full data set of one user and the unit of synchronization.
type Snapshot struct {
	Students    []Student          `json:"students"`
	Hours       []WorkSession      `json:"hours"`
	Marks       []GradeRecord      `json:"marks"`
	Attendance  []AttendanceRecord `json:"attendance"`
	Payments    []PaymentRecord    `json:"payments"`
	Settings    Settings           `json:"settings"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

const (
	SettingDefaultRate    = "defaultRate"
	SettingPaymentMethods = "paymentMethods"

	MethodCash = "Cash"
)

// DefaultSettings returns the settings a new snapshot starts with. Values are
// kept in their JSON-decoded shapes so a stored copy compares equal.
func DefaultSettings() Settings {
	return Settings{
		SettingDefaultRate:    25.0,
		SettingPaymentMethods: []any{MethodCash, "Bank Transfer", "Card", "Other"},
	}
}

// DefaultRate returns the configured default hourly rate.
func (s Settings) DefaultRate() float64 {
	if v, ok := s[SettingDefaultRate].(float64); ok {
		return v
	}
	return DefaultSettings()[SettingDefaultRate].(float64)
}

// PaymentMethods returns the configured payment methods.
func (s Settings) PaymentMethods() []string {
	var out []string
	switch v := s[SettingPaymentMethods].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, m := range v {
			if str, ok := m.(string); ok {
				out = append(out, str)
			}
		}
	}
	if len(out) == 0 {
		return []string{MethodCash}
	}
	return out
}

// NewSnapshot returns an empty snapshot with default settings.
func NewSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Students:    []Student{},
		Hours:       []WorkSession{},
		Marks:       []GradeRecord{},
		Attendance:  []AttendanceRecord{},
		Payments:    []PaymentRecord{},
		Settings:    DefaultSettings(),
		LastUpdated: now.UTC(),
	}
}

// Normalize fills absent collections and settings and stamps LastUpdated.
func (s *Snapshot) Normalize(now time.Time) {
	if s.Students == nil {
		s.Students = []Student{}
	}
	if s.Hours == nil {
		s.Hours = []WorkSession{}
	}
	if s.Marks == nil {
		s.Marks = []GradeRecord{}
	}
	if s.Attendance == nil {
		s.Attendance = []AttendanceRecord{}
	}
	if s.Payments == nil {
		s.Payments = []PaymentRecord{}
	}
	if s.Settings == nil {
		s.Settings = Settings{}
	}
	for k, v := range DefaultSettings() {
		if _, ok := s.Settings[k]; !ok {
			s.Settings[k] = v
		}
	}
	s.LastUpdated = now.UTC()
}

// Clone returns a deep copy through the JSON representation, the same shape
// every store persists.
func (s Snapshot) Clone() (Snapshot, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return Snapshot{}, err
	}
	var out Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return Snapshot{}, err
	}
	return out, nil
}

// Encode marshals the snapshot as stored by local and remote backends.
func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a stored snapshot. Missing collections stay nil; callers
// normalize when they need the defaults.
func Decode(raw []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

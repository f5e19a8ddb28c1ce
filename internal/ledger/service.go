package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a record to delete does not exist.
var ErrNotFound = errors.New("record not found")

// LocalStore is durable per-user snapshot storage reachable offline. Read
// returns a fresh snapshot when nothing is stored for the user.
type LocalStore interface {
	Read(ctx context.Context, userID string) (Snapshot, error)
	Write(ctx context.Context, userID string, snap Snapshot) error
}

// Service applies record edits to a user's local snapshot.
type Service struct {
	store LocalStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates a service backed by a local store.
func NewService(store LocalStore, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "ledger").Logger(),
		now:   time.Now,
	}
}

// Snapshot returns the user's current local snapshot.
func (s *Service) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	return s.store.Read(ctx, userID)
}

// mutate reads, edits and writes back the whole snapshot, stamping LastUpdated.
func (s *Service) mutate(ctx context.Context, userID string, fn func(*Snapshot) error) (Snapshot, error) {
	snap, err := s.store.Read(ctx, userID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read snapshot")
	}
	if err := fn(&snap); err != nil {
		return Snapshot{}, err
	}
	snap.LastUpdated = s.now().UTC()
	if err := s.store.Write(ctx, userID, snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "write snapshot")
	}
	return snap, nil
}

// UpsertStudent adds a student or overwrites the one with the same StudentID
// in place.
func (s *Service) UpsertStudent(ctx context.Context, userID string, st Student) (Student, error) {
	st.StudentID = strings.TrimSpace(st.StudentID)
	st.Name = strings.TrimSpace(st.Name)
	if err := check(st); err != nil {
		return Student{}, err
	}
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		for i, existing := range snap.Students {
			if existing.StudentID == st.StudentID {
				if st.CreatedAt.IsZero() {
					st.CreatedAt = existing.CreatedAt
				}
				snap.Students[i] = st
				return nil
			}
		}
		if st.CreatedAt.IsZero() {
			st.CreatedAt = s.now().UTC()
		}
		snap.Students = append(snap.Students, st)
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	return st, nil
}

// DeleteStudent removes a student by StudentID.
func (s *Service) DeleteStudent(ctx context.Context, userID, studentID string) error {
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		for i, st := range snap.Students {
			if st.StudentID == studentID {
				snap.Students = append(snap.Students[:i], snap.Students[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
	return err
}

// AddSession logs a work session. A zero rate falls back to the default rate
// from settings.
func (s *Service) AddSession(ctx context.Context, userID string, ws WorkSession) (WorkSession, error) {
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		if ws.Rate == 0 {
			ws.Rate = snap.Settings.DefaultRate()
		}
		if ws.WorkType == "" {
			ws.WorkType = WorkHourly
		}
		if err := check(ws); err != nil {
			return err
		}
		if _, err := ParseDate(ws.Date); err != nil {
			return &ValidationError{Fields: []string{"Date (date)"}}
		}
		ws.ID = uuid.NewString()
		ws.Recompute()
		snap.Hours = append(snap.Hours, ws)
		return nil
	})
	if err != nil {
		return WorkSession{}, err
	}
	return ws, nil
}

// DeleteSession removes a session by id.
func (s *Service) DeleteSession(ctx context.Context, userID, id string) error {
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		for i, ws := range snap.Hours {
			if ws.ID == id {
				snap.Hours = append(snap.Hours[:i], snap.Hours[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
	return err
}

// FixStats recomputes every derived field and reports how many records
// changed. The snapshot is written only when something changed.
func (s *Service) FixStats(ctx context.Context, userID string) (int, error) {
	snap, err := s.store.Read(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "read snapshot")
	}
	changed := 0
	for i := range snap.Hours {
		before := snap.Hours[i]
		snap.Hours[i].Recompute()
		if before != snap.Hours[i] {
			changed++
		}
	}
	for i := range snap.Marks {
		before := snap.Marks[i]
		snap.Marks[i].Recompute()
		if before != snap.Marks[i] {
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	snap.LastUpdated = s.now().UTC()
	if err := s.store.Write(ctx, userID, snap); err != nil {
		return 0, errors.Wrap(err, "write snapshot")
	}
	s.log.Info().Str("user_id", userID).Int("changed", changed).Msg("derived fields recomputed")
	return changed, nil
}

// AddMark records a grade.
func (s *Service) AddMark(ctx context.Context, userID string, g GradeRecord) (GradeRecord, error) {
	if err := check(g); err != nil {
		return GradeRecord{}, err
	}
	g.ID = uuid.NewString()
	g.Recompute()
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		snap.Marks = append(snap.Marks, g)
		return nil
	})
	if err != nil {
		return GradeRecord{}, err
	}
	return g, nil
}

// DeleteMark removes a grade by id.
func (s *Service) DeleteMark(ctx context.Context, userID, id string) error {
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		for i, g := range snap.Marks {
			if g.ID == id {
				snap.Marks = append(snap.Marks[:i], snap.Marks[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
	return err
}

// RecordAttendance stores a lesson's attendance list.
func (s *Service) RecordAttendance(ctx context.Context, userID string, a AttendanceRecord) (AttendanceRecord, error) {
	if err := check(a); err != nil {
		return AttendanceRecord{}, err
	}
	a.ID = uuid.NewString()
	a.Present = dedupe(a.Present)
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		snap.Attendance = append(snap.Attendance, a)
		return nil
	})
	if err != nil {
		return AttendanceRecord{}, err
	}
	return a, nil
}

// DeleteAttendance removes an attendance record by id.
func (s *Service) DeleteAttendance(ctx context.Context, userID, id string) error {
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		for i, a := range snap.Attendance {
			if a.ID == id {
				snap.Attendance = append(snap.Attendance[:i], snap.Attendance[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
	return err
}

// AddPayment records a payment. The method must be one of the configured
// payment methods; empty means Cash.
func (s *Service) AddPayment(ctx context.Context, userID string, p PaymentRecord) (PaymentRecord, error) {
	if err := check(p); err != nil {
		return PaymentRecord{}, err
	}
	if p.Method == "" {
		p.Method = MethodCash
	}
	p.ID = uuid.NewString()
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		for _, m := range snap.Settings.PaymentMethods() {
			if strings.EqualFold(m, p.Method) {
				p.Method = m
				snap.Payments = append(snap.Payments, p)
				return nil
			}
		}
		return &ValidationError{Fields: []string{"Method (oneof)"}}
	})
	if err != nil {
		return PaymentRecord{}, err
	}
	return p, nil
}

// DeletePayment removes a payment by id.
func (s *Service) DeletePayment(ctx context.Context, userID, id string) error {
	_, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		for i, p := range snap.Payments {
			if p.ID == id {
				snap.Payments = append(snap.Payments[:i], snap.Payments[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
	return err
}

// UpdateSettings merges the given keys into the settings. A nil value
// removes the key.
func (s *Service) UpdateSettings(ctx context.Context, userID string, patch Settings) (Settings, error) {
	snap, err := s.mutate(ctx, userID, func(snap *Snapshot) error {
		if snap.Settings == nil {
			snap.Settings = DefaultSettings()
		}
		for k, v := range patch {
			if v == nil {
				delete(snap.Settings, k)
				continue
			}
			snap.Settings[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap.Settings, nil
}

// Import replaces the user's snapshot with a backup file. Invalid files are
// rejected before anything is written.
func (s *Service) Import(ctx context.Context, userID string, raw []byte) (Snapshot, error) {
	snap, err := ParseImport(raw, s.now())
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.store.Write(ctx, userID, snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "write snapshot")
	}
	s.log.Info().Str("user_id", userID).Int("students", len(snap.Students)).Msg("backup imported")
	return snap, nil
}

// Export returns the user's snapshot as a backup file.
func (s *Service) Export(ctx context.Context, userID string) ([]byte, error) {
	snap, err := s.store.Read(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot")
	}
	return Export(snap)
}

// Clear resets the user's local snapshot to an empty one.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.Write(ctx, userID, NewSnapshot(s.now()))
}

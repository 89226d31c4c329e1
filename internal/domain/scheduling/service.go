package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HansFred87/Mindease/internal/platform/apperror"
	"github.com/HansFred87/Mindease/internal/platform/auth"
)

// Transactor runs fn inside one atomic unit; every repository call made with
// the context it passes to fn shares that unit. Production wiring uses
// db.Transactor, tests an in-memory fake.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	slots    SlotRepository
	appts    AppointmentRepository
	tx       Transactor
	notifier Notifier
	log      zerolog.Logger
}

func NewService(slots SlotRepository, appts AppointmentRepository, tx Transactor, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{slots: slots, appts: appts, tx: tx, notifier: notifier, log: log}
}

// -- Slots --

type CreateSlotInput struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Capacity  int    `json:"total_capacity"`
}

func (s *Service) CreateSlot(ctx context.Context, actor auth.Actor, in CreateSlotInput) (*Slot, error) {
	date, err := ParseDate(in.Date)
	if err != nil {
		return nil, apperror.New(apperror.CodeValidation, "%s", err)
	}
	start, err := ParseClock(in.StartTime)
	if err != nil {
		return nil, apperror.New(apperror.CodeValidation, "%s", err)
	}
	end, err := ParseClock(in.EndTime)
	if err != nil {
		return nil, apperror.New(apperror.CodeValidation, "%s", err)
	}
	if end <= start {
		return nil, apperror.New(apperror.CodeValidation, "end_time must be after start_time")
	}
	if in.Capacity < 1 {
		return nil, apperror.New(apperror.CodeValidation, "total_capacity must be at least 1")
	}
	sl := &Slot{
		CounselorID:   actor.ID,
		Date:          date,
		Weekday:       date.Weekday().String(),
		StartTime:     start,
		EndTime:       end,
		TotalCapacity: in.Capacity,
	}
	if err := s.slots.Create(ctx, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

func (s *Service) DeleteSlot(ctx context.Context, actor auth.Actor, slotID uuid.UUID) error {
	sl, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return err
	}
	if sl.CounselorID != actor.ID && actor.Role != auth.RoleAdmin {
		return apperror.New(apperror.CodeUnauthorized, "slot belongs to another counselor")
	}
	// Existing appointments copied their date and time at booking; they
	// survive the slot's removal.
	return s.slots.Delete(ctx, slotID)
}

// ListSlots returns the counselor's own schedule page, vacation marks and
// fully booked slots included.
func (s *Service) ListSlots(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Slot, int, error) {
	return s.slots.ListByCounselor(ctx, actor.ID, limit, offset)
}

// ListBookable returns a counselor's open slots in [from, to]. Zero bounds
// default to the next 30 days.
func (s *Service) ListBookable(ctx context.Context, counselorID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	today := DateOnly(time.Now())
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = today.AddDate(0, 0, 30)
	}
	if to.Before(from) {
		return nil, apperror.New(apperror.CodeValidation, "date range end precedes start")
	}
	return s.slots.ListBookable(ctx, counselorID, from, to)
}

// -- Schedule maintenance --

// CopyLastWeek duplicates the counselor's slots from the previous seven days
// one week forward with fresh booking counts. Slots that already exist at the
// destination are skipped rather than aborting the batch.
func (s *Service) CopyLastWeek(ctx context.Context, actor auth.Actor) (int64, error) {
	today := DateOnly(time.Now())
	from := today.AddDate(0, 0, -7)
	to := today.AddDate(0, 0, -1)
	n, err := s.slots.CopyRange(ctx, actor.ID, from, to, 7)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("counselor_id", actor.ID.String()).Int64("created", n).Msg("copied last week's slots")
	return n, nil
}

// ClearWeek deletes the counselor's slots for the coming seven days.
func (s *Service) ClearWeek(ctx context.Context, actor auth.Actor) (int64, error) {
	today := DateOnly(time.Now())
	return s.slots.DeleteRange(ctx, actor.ID, today, today.AddDate(0, 0, 6))
}

type VacationInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SetVacation marks the counselor's slots in the range as vacation. Marked
// slots disappear from bookable listings and reject bookings but keep their
// history, unlike ClearWeek which removes rows.
func (s *Service) SetVacation(ctx context.Context, actor auth.Actor, in VacationInput) (int64, error) {
	from, err := ParseDate(in.Start)
	if err != nil {
		return 0, apperror.New(apperror.CodeValidation, "%s", err)
	}
	to, err := ParseDate(in.End)
	if err != nil {
		return 0, apperror.New(apperror.CodeValidation, "%s", err)
	}
	if to.Before(from) {
		return 0, apperror.New(apperror.CodeValidation, "vacation end precedes start")
	}
	return s.slots.MarkVacation(ctx, actor.ID, from, to)
}

// -- Appointment views --

// AppointmentDashboard is the actor's appointments grouped for display.
// Counselors see today and upcoming; the past bucket feeds the patient
// history view.
type AppointmentDashboard struct {
	Today    []*Appointment `json:"today"`
	Upcoming []*Appointment `json:"upcoming"`
	Past     []*Appointment `json:"past,omitempty"`
}

func (s *Service) Appointments(ctx context.Context, actor auth.Actor) (*AppointmentDashboard, error) {
	var (
		items []*Appointment
		err   error
	)
	if actor.Role == auth.RoleCounselor {
		items, err = s.appts.ListByCounselor(ctx, actor.ID)
	} else {
		items, err = s.appts.ListByPatient(ctx, actor.ID)
	}
	if err != nil {
		return nil, err
	}

	today := DateOnly(time.Now())
	dash := &AppointmentDashboard{
		Today:    []*Appointment{},
		Upcoming: []*Appointment{},
	}
	for _, a := range items {
		d := DateOnly(a.Date)
		switch {
		case d.Equal(today):
			dash.Today = append(dash.Today, a)
		case d.After(today):
			dash.Upcoming = append(dash.Upcoming, a)
		case actor.Role != auth.RoleCounselor:
			dash.Past = append(dash.Past, a)
		}
	}
	return dash, nil
}

// GetAppointment returns one appointment, visible only to its patient, its
// counselor, or an admin. Feeds the join page and lets a reconnecting client
// poll session status.
func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.PatientID != actor.ID && a.CounselorID != actor.ID && actor.Role != auth.RoleAdmin {
		return nil, apperror.New(apperror.CodeUnauthorized, "not a participant of this appointment")
	}
	return a, nil
}

type CounselorStats struct {
	TotalAppointments int `json:"total_appointments"`
	CompletedSessions int `json:"completed_sessions"`
}

func (s *Service) Stats(ctx context.Context, actor auth.Actor) (*CounselorStats, error) {
	total, completed, err := s.appts.CounselorStats(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return &CounselorStats{TotalAppointments: total, CompletedSessions: completed}, nil
}

package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SlotRepository interface {
	Create(ctx context.Context, sl *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// GetForUpdate locks the slot row for the duration of the surrounding
	// transaction so concurrent bookings serialize on it.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCounselor(ctx context.Context, counselorID uuid.UUID, limit, offset int) ([]*Slot, int, error)
	// ListBookable returns slots in [from, to] with spare capacity that are not
	// vacation-marked, ordered by date then start time.
	ListBookable(ctx context.Context, counselorID uuid.UUID, from, to time.Time) ([]*Slot, error)
	IncrementBooked(ctx context.Context, id uuid.UUID) error
	// DecrementBooked floors at zero and is a no-op when the slot row is gone.
	DecrementBooked(ctx context.Context, id uuid.UUID) error
	// CopyRange duplicates the counselor's slots dated in [from, to] shifted
	// forward by offsetDays with booked counts reset; slots that would collide
	// with an existing (date, start, end) are skipped. Returns rows created.
	CopyRange(ctx context.Context, counselorID uuid.UUID, from, to time.Time, offsetDays int) (int64, error)
	DeleteRange(ctx context.Context, counselorID uuid.UUID, from, to time.Time) (int64, error)
	MarkVacation(ctx context.Context, counselorID uuid.UUID, from, to time.Time) (int64, error)
}

type AppointmentRepository interface {
	// Create inserts the appointment and reports duplicate_daily_booking when
	// the patient already holds an appointment on that date.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the appointment row for the duration of the
	// surrounding transaction so concurrent cancellations serialize on it.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Start is a compare-and-set from pending to started that assigns the meet
	// link in the same statement; it reports whether the transition was taken.
	Start(ctx context.Context, id uuid.UUID, meetLink string) (bool, error)
	// Complete is a compare-and-set from started to completed storing notes.
	Complete(ctx context.Context, id uuid.UUID, notes string) (bool, error)
	// CountActiveByPatientAndDate counts the patient's non-cancelled
	// appointments on the given date, across all counselors.
	CountActiveByPatientAndDate(ctx context.Context, patientID uuid.UUID, date time.Time) (int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	ListByCounselor(ctx context.Context, counselorID uuid.UUID) ([]*Appointment, error)
	// CounselorStats returns total and completed appointment counts.
	CounselorStats(ctx context.Context, counselorID uuid.UUID) (total, completed int, err error)
}

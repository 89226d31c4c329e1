package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Appointment lifecycle. Transitions are pending -> started -> completed;
// cancellation removes the record and releases slot capacity, so no stored row
// ever carries the cancelled status.
const (
	StatusPending   = "pending"
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Slot is one bookable window of a counselor's availability. Capacity is
// multi-unit: booked_count tracks claims against total_capacity.
type Slot struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CounselorID   uuid.UUID `db:"counselor_id" json:"counselor_id"`
	Date          time.Time `db:"slot_date" json:"date"`
	Weekday       string    `db:"-" json:"weekday"`
	StartTime     string    `db:"start_time" json:"start_time"`
	EndTime       string    `db:"end_time" json:"end_time"`
	TotalCapacity int       `db:"total_capacity" json:"total_capacity"`
	BookedCount   int       `db:"booked_count" json:"booked_count"`
	IsVacation    bool      `db:"is_vacation" json:"is_vacation"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Available reports how many units are still claimable.
func (s *Slot) Available() int {
	if n := s.TotalCapacity - s.BookedCount; n > 0 {
		return n
	}
	return 0
}

// Appointment is a patient's claim on one unit of a slot's capacity. Date and
// start time are copied from the slot at booking time, not read through it, so
// later slot deletion leaves the appointment intact.
type Appointment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	CounselorID    uuid.UUID `db:"counselor_id" json:"counselor_id"`
	SlotID         uuid.UUID `db:"slot_id" json:"slot_id"`
	Date           time.Time `db:"session_date" json:"date"`
	StartTime      string    `db:"start_time" json:"start_time"`
	Status         string    `db:"status" json:"status"`
	MeetLink       *string   `db:"meet_link" json:"meet_link,omitempty"`
	CounselorNotes *string   `db:"counselor_notes" json:"counselor_notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Cancellable reports whether the appointment may still be cancelled.
// Completed sessions are history and stay put.
func (a *Appointment) Cancellable() bool {
	return a.Status == StatusPending || a.Status == StatusStarted
}

// ParseDate parses a calendar date in YYYY-MM-DD form, normalized to UTC
// midnight so date equality is exact.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseClock validates an HH:MM clock value and returns it normalized.
func ParseClock(s string) (string, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return t.Format(timeLayout), nil
}

// DateOnly truncates t to UTC midnight, the canonical form for slot and
// appointment dates.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/HansFred87/Mindease/internal/platform/apperror"
	"github.com/HansFred87/Mindease/internal/platform/auth"
)

// BookSlot claims one unit of a slot's capacity for the calling patient and
// creates a pending appointment, copying date, time and counselor from the
// slot. The whole sequence runs in one transaction with the slot row locked,
// so two concurrent calls against the last remaining unit yield exactly one
// success. The one-session-per-day rule is checked up front for a friendly
// message and guaranteed by the unique (patient, date) index at insert time,
// which also covers concurrent bookings of different slots on the same date.
func (s *Service) BookSlot(ctx context.Context, actor auth.Actor, slotID uuid.UUID) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sl, err := s.slots.GetForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if sl.IsVacation {
			return apperror.New(apperror.CodeSlotUnavailable, "counselor is on vacation that day")
		}
		if sl.BookedCount >= sl.TotalCapacity {
			return apperror.New(apperror.CodeSlotFull, "slot is fully booked")
		}
		n, err := s.appts.CountActiveByPatientAndDate(ctx, actor.ID, sl.Date)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperror.New(apperror.CodeDuplicateDaily, "you already have a session on %s", sl.Date.Format(dateLayout))
		}
		if err := s.slots.IncrementBooked(ctx, sl.ID); err != nil {
			return err
		}
		appt = &Appointment{
			PatientID:   actor.ID,
			CounselorID: sl.CounselorID,
			SlotID:      sl.ID,
			Date:        sl.Date,
			StartTime:   sl.StartTime,
			Status:      StatusPending,
		}
		return s.appts.Create(ctx, appt)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", actor.ID.String()).
		Str("slot_id", slotID.String()).
		Msg("slot booked")
	return appt, nil
}

// CancelBooking releases the appointment's capacity unit and removes the
// appointment. Allowed to the owning patient while the session is pending or
// started; the slot decrement floors at zero and is skipped when the slot has
// since been deleted. The appointment row is locked for the transaction, so
// of two concurrent cancels one deletes and the other reads the committed
// absence as not_found instead of decrementing a second time.
func (s *Service) CancelBooking(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.PatientID != actor.ID && actor.Role != auth.RoleAdmin {
			return apperror.New(apperror.CodeUnauthorized, "appointment belongs to another patient")
		}
		if !a.Cancellable() {
			return apperror.New(apperror.CodeInvalidState, "cannot cancel a %s session", a.Status)
		}
		if err := s.slots.DecrementBooked(ctx, a.SlotID); err != nil {
			return err
		}
		return s.appts.Delete(ctx, a.ID)
	})
}

// StartSession moves a pending appointment to started, assigns its meet link
// and notifies the patient. The transition is a compare-and-set: a concurrent
// duplicate trigger gets an invalid-transition rejection and the link is
// assigned exactly once. Notification is fire-and-forget and never delays or
// fails the response.
func (s *Service) StartSession(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (string, error) {
	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return "", err
	}
	if a.CounselorID != actor.ID && actor.Role != auth.RoleAdmin {
		return "", apperror.New(apperror.CodeUnauthorized, "appointment belongs to another counselor")
	}
	link := newMeetLink()
	ok, err := s.appts.Start(ctx, a.ID, link)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperror.New(apperror.CodeInvalidState, "session is not pending")
	}
	go s.notifier.SessionStarted(context.WithoutCancel(ctx), a.PatientID, SessionStartedEvent{
		AppointmentID: a.ID,
		CounselorName: actor.Name,
	})
	return link, nil
}

// CompleteSession moves a started appointment to completed and stores the
// counselor's notes permanently.
func (s *Service) CompleteSession(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, notes string) error {
	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.CounselorID != actor.ID && actor.Role != auth.RoleAdmin {
		return apperror.New(apperror.CodeUnauthorized, "appointment belongs to another counselor")
	}
	ok, err := s.appts.Complete(ctx, a.ID, notes)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.New(apperror.CodeInvalidState, "session is not started")
	}
	return nil
}

func newMeetLink() string {
	return "https://meet.mindease.app/session/" + uuid.NewString()
}

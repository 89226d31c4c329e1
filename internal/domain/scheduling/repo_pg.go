package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HansFred87/Mindease/internal/platform/apperror"
	"github.com/HansFred87/Mindease/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `id, counselor_id, slot_date, start_time, end_time,
	total_capacity, booked_count, is_vacation, created_at, updated_at`

func (r *slotRepoPG) scanSlot(row pgx.Row) (*Slot, error) {
	var sl Slot
	err := row.Scan(&sl.ID, &sl.CounselorID, &sl.Date, &sl.StartTime, &sl.EndTime,
		&sl.TotalCapacity, &sl.BookedCount, &sl.IsVacation, &sl.CreatedAt, &sl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sl.Weekday = sl.Date.Weekday().String()
	return &sl, nil
}

func (r *slotRepoPG) Create(ctx context.Context, sl *Slot) error {
	sl.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_slot (id, counselor_id, slot_date, start_time, end_time,
			total_capacity, booked_count, is_vacation)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sl.ID, sl.CounselorID, sl.Date, sl.StartTime, sl.EndTime,
		sl.TotalCapacity, sl.BookedCount, sl.IsVacation)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperror.New(apperror.CodeDuplicateSlot, "slot already exists for %s %s-%s",
			sl.Date.Format("2006-01-02"), sl.StartTime, sl.EndTime)
	}
	return err
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	sl, err := r.scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM availability_slot WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.CodeNotFound, "slot not found")
	}
	return sl, err
}

func (r *slotRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error) {
	sl, err := r.scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM availability_slot WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.CodeNotFound, "slot not found")
	}
	return sl, err
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_slot WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.New(apperror.CodeNotFound, "slot not found")
	}
	return nil
}

func (r *slotRepoPG) ListByCounselor(ctx context.Context, counselorID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM availability_slot WHERE counselor_id = $1`, counselorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+slotCols+` FROM availability_slot
		WHERE counselor_id = $1
		ORDER BY slot_date, start_time
		LIMIT $2 OFFSET $3`, counselorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *slotRepoPG) ListBookable(ctx context.Context, counselorID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+slotCols+` FROM availability_slot
		WHERE counselor_id = $1
		  AND slot_date BETWEEN $2 AND $3
		  AND booked_count < total_capacity
		  AND NOT is_vacation
		ORDER BY slot_date, start_time`, counselorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *slotRepoPG) collect(rows pgx.Rows) ([]*Slot, error) {
	var items []*Slot
	for rows.Next() {
		sl, err := r.scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sl)
	}
	return items, rows.Err()
}

func (r *slotRepoPG) IncrementBooked(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_slot
		SET booked_count = booked_count + 1, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *slotRepoPG) DecrementBooked(ctx context.Context, id uuid.UUID) error {
	// Zero rows affected means the slot was deleted since booking; the
	// decrement is simply skipped.
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_slot
		SET booked_count = GREATEST(booked_count - 1, 0), updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *slotRepoPG) CopyRange(ctx context.Context, counselorID uuid.UUID, from, to time.Time, offsetDays int) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_slot (id, counselor_id, slot_date, start_time, end_time,
			total_capacity, booked_count, is_vacation)
		SELECT gen_random_uuid(), counselor_id, slot_date + $4::int, start_time, end_time,
			total_capacity, 0, FALSE
		FROM availability_slot
		WHERE counselor_id = $1 AND slot_date BETWEEN $2 AND $3 AND NOT is_vacation
		ON CONFLICT (counselor_id, slot_date, start_time, end_time) DO NOTHING`,
		counselorID, from, to, offsetDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *slotRepoPG) DeleteRange(ctx context.Context, counselorID uuid.UUID, from, to time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM availability_slot
		WHERE counselor_id = $1 AND slot_date BETWEEN $2 AND $3`,
		counselorID, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *slotRepoPG) MarkVacation(ctx context.Context, counselorID uuid.UUID, from, to time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_slot
		SET is_vacation = TRUE, updated_at = NOW()
		WHERE counselor_id = $1 AND slot_date BETWEEN $2 AND $3 AND NOT is_vacation`,
		counselorID, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// =========== Appointment Repository ===========

type apptRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository { return &apptRepoPG{pool: pool} }

func (r *apptRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, patient_id, counselor_id, slot_id, session_date, start_time,
	status, meet_link, counselor_notes, created_at, updated_at`

func (r *apptRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.CounselorID, &a.SlotID, &a.Date, &a.StartTime,
		&a.Status, &a.MeetLink, &a.CounselorNotes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *apptRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusPending
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, counselor_id, slot_id, session_date,
			start_time, status, meet_link, counselor_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.PatientID, a.CounselorID, a.SlotID, a.Date,
		a.StartTime, a.Status, a.MeetLink, a.CounselorNotes)
	// The (patient_id, session_date) unique index backstops the in-transaction
	// count: a concurrent booking of a different slot on the same date commits
	// first and this insert trips the constraint instead of double-booking.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperror.New(apperror.CodeDuplicateDaily, "you already have a session on %s",
			a.Date.Format(dateLayout))
	}
	return err
}

func (r *apptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.CodeNotFound, "appointment not found")
	}
	return a, err
}

func (r *apptRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.CodeNotFound, "appointment not found")
	}
	return a, err
}

func (r *apptRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	return err
}

func (r *apptRepoPG) Start(ctx context.Context, id uuid.UUID, meetLink string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment
		SET status = $3, meet_link = $2, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, meetLink, StatusStarted, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *apptRepoPG) Complete(ctx context.Context, id uuid.UUID, notes string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment
		SET status = $3, counselor_notes = $2, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, notes, StatusCompleted, StatusStarted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *apptRepoPG) CountActiveByPatientAndDate(ctx context.Context, patientID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE patient_id = $1 AND session_date = $2 AND status <> $3`,
		patientID, date, StatusCancelled).Scan(&n)
	return n, err
}

func (r *apptRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1
		ORDER BY session_date, start_time`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *apptRepoPG) ListByCounselor(ctx context.Context, counselorID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE counselor_id = $1
		ORDER BY session_date, start_time`, counselorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *apptRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *apptRepoPG) CounselorStats(ctx context.Context, counselorID uuid.UUID) (int, int, error) {
	var total, completed int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2)
		FROM appointment WHERE counselor_id = $1`,
		counselorID, StatusCompleted).Scan(&total, &completed)
	return total, completed, err
}

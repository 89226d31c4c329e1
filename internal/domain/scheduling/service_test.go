package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HansFred87/Mindease/internal/platform/apperror"
	"github.com/HansFred87/Mindease/internal/platform/auth"
)

// -- In-memory fakes --
//
// One shared store backs both fake repositories so the fake transactor can
// snapshot and restore the whole state. The transactor serializes transactional
// sections through the store mutex, mirroring the row-lock contract of the
// Postgres implementation; repository calls made inside a transaction detect
// the marker on the context and skip re-locking.

type txMarkerKey struct{}

type memStore struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot
	appts map[uuid.UUID]*Appointment
}

func newMemStore() *memStore {
	return &memStore{
		slots: make(map[uuid.UUID]*Slot),
		appts: make(map[uuid.UUID]*Appointment),
	}
}

func (s *memStore) lock(ctx context.Context) func() {
	if ctx.Value(txMarkerKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) snapshot() (map[uuid.UUID]*Slot, map[uuid.UUID]*Appointment) {
	slots := make(map[uuid.UUID]*Slot, len(s.slots))
	for k, v := range s.slots {
		cp := *v
		slots[k] = &cp
	}
	appts := make(map[uuid.UUID]*Appointment, len(s.appts))
	for k, v := range s.appts {
		cp := *v
		appts[k] = &cp
	}
	return slots, appts
}

type memTransactor struct{ store *memStore }

func (t *memTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	slots, appts := t.store.snapshot()
	if err := fn(context.WithValue(ctx, txMarkerKey{}, true)); err != nil {
		t.store.slots, t.store.appts = slots, appts
		return err
	}
	return nil
}

type memSlotRepo struct{ store *memStore }

func (m *memSlotRepo) Create(ctx context.Context, sl *Slot) error {
	defer m.store.lock(ctx)()
	for _, other := range m.store.slots {
		if other.CounselorID == sl.CounselorID && other.Date.Equal(sl.Date) &&
			other.StartTime == sl.StartTime && other.EndTime == sl.EndTime {
			return apperror.New(apperror.CodeDuplicateSlot, "slot already exists")
		}
	}
	sl.ID = uuid.New()
	sl.CreatedAt = time.Now()
	sl.UpdatedAt = sl.CreatedAt
	cp := *sl
	m.store.slots[sl.ID] = &cp
	return nil
}

func (m *memSlotRepo) get(id uuid.UUID) (*Slot, error) {
	sl, ok := m.store.slots[id]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "slot not found")
	}
	cp := *sl
	cp.Weekday = cp.Date.Weekday().String()
	return &cp, nil
}

func (m *memSlotRepo) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	defer m.store.lock(ctx)()
	return m.get(id)
}

func (m *memSlotRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error) {
	defer m.store.lock(ctx)()
	return m.get(id)
}

func (m *memSlotRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer m.store.lock(ctx)()
	if _, ok := m.store.slots[id]; !ok {
		return apperror.New(apperror.CodeNotFound, "slot not found")
	}
	delete(m.store.slots, id)
	return nil
}

func sortSlots(items []*Slot) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].StartTime < items[j].StartTime
	})
}

func (m *memSlotRepo) ListByCounselor(ctx context.Context, counselorID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	defer m.store.lock(ctx)()
	var items []*Slot
	for id := range m.store.slots {
		sl, _ := m.get(id)
		if sl.CounselorID == counselorID {
			items = append(items, sl)
		}
	}
	sortSlots(items)
	total := len(items)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (m *memSlotRepo) ListBookable(ctx context.Context, counselorID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	defer m.store.lock(ctx)()
	var items []*Slot
	for id := range m.store.slots {
		sl, _ := m.get(id)
		if sl.CounselorID != counselorID || sl.IsVacation || sl.BookedCount >= sl.TotalCapacity {
			continue
		}
		if sl.Date.Before(from) || sl.Date.After(to) {
			continue
		}
		items = append(items, sl)
	}
	sortSlots(items)
	return items, nil
}

func (m *memSlotRepo) IncrementBooked(ctx context.Context, id uuid.UUID) error {
	defer m.store.lock(ctx)()
	if sl, ok := m.store.slots[id]; ok {
		sl.BookedCount++
	}
	return nil
}

func (m *memSlotRepo) DecrementBooked(ctx context.Context, id uuid.UUID) error {
	defer m.store.lock(ctx)()
	if sl, ok := m.store.slots[id]; ok && sl.BookedCount > 0 {
		sl.BookedCount--
	}
	return nil
}

func (m *memSlotRepo) CopyRange(ctx context.Context, counselorID uuid.UUID, from, to time.Time, offsetDays int) (int64, error) {
	defer m.store.lock(ctx)()
	exists := func(date time.Time, start, end string) bool {
		for _, other := range m.store.slots {
			if other.CounselorID == counselorID && other.Date.Equal(date) &&
				other.StartTime == start && other.EndTime == end {
				return true
			}
		}
		return false
	}
	var created int64
	var sources []*Slot
	for _, sl := range m.store.slots {
		if sl.CounselorID == counselorID && !sl.IsVacation &&
			!sl.Date.Before(from) && !sl.Date.After(to) {
			sources = append(sources, sl)
		}
	}
	for _, src := range sources {
		dest := src.Date.AddDate(0, 0, offsetDays)
		if exists(dest, src.StartTime, src.EndTime) {
			continue
		}
		cp := *src
		cp.ID = uuid.New()
		cp.Date = dest
		cp.BookedCount = 0
		cp.IsVacation = false
		m.store.slots[cp.ID] = &cp
		created++
	}
	return created, nil
}

func (m *memSlotRepo) DeleteRange(ctx context.Context, counselorID uuid.UUID, from, to time.Time) (int64, error) {
	defer m.store.lock(ctx)()
	var deleted int64
	for id, sl := range m.store.slots {
		if sl.CounselorID == counselorID && !sl.Date.Before(from) && !sl.Date.After(to) {
			delete(m.store.slots, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memSlotRepo) MarkVacation(ctx context.Context, counselorID uuid.UUID, from, to time.Time) (int64, error) {
	defer m.store.lock(ctx)()
	var marked int64
	for _, sl := range m.store.slots {
		if sl.CounselorID == counselorID && !sl.IsVacation &&
			!sl.Date.Before(from) && !sl.Date.After(to) {
			sl.IsVacation = true
			marked++
		}
	}
	return marked, nil
}

type memApptRepo struct {
	store *memStore
	// failCreate, when set, makes Create fail so transactional rollback of
	// the slot increment can be exercised.
	failCreate error
}

func (m *memApptRepo) Create(ctx context.Context, a *Appointment) error {
	defer m.store.lock(ctx)()
	if m.failCreate != nil {
		return m.failCreate
	}
	// Mirrors the (patient_id, session_date) unique index.
	for _, other := range m.store.appts {
		if other.PatientID == a.PatientID && other.Date.Equal(a.Date) {
			return apperror.New(apperror.CodeDuplicateDaily, "you already have a session on %s",
				a.Date.Format(dateLayout))
		}
	}
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusPending
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.store.appts[a.ID] = &cp
	return nil
}

func (m *memApptRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer m.store.lock(ctx)()
	a, ok := m.store.appts[id]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memApptRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer m.store.lock(ctx)()
	delete(m.store.appts, id)
	return nil
}

func (m *memApptRepo) Start(ctx context.Context, id uuid.UUID, meetLink string) (bool, error) {
	defer m.store.lock(ctx)()
	a, ok := m.store.appts[id]
	if !ok || a.Status != StatusPending {
		return false, nil
	}
	a.Status = StatusStarted
	a.MeetLink = &meetLink
	return true, nil
}

func (m *memApptRepo) Complete(ctx context.Context, id uuid.UUID, notes string) (bool, error) {
	defer m.store.lock(ctx)()
	a, ok := m.store.appts[id]
	if !ok || a.Status != StatusStarted {
		return false, nil
	}
	a.Status = StatusCompleted
	a.CounselorNotes = &notes
	return true, nil
}

func (m *memApptRepo) CountActiveByPatientAndDate(ctx context.Context, patientID uuid.UUID, date time.Time) (int, error) {
	defer m.store.lock(ctx)()
	n := 0
	for _, a := range m.store.appts {
		if a.PatientID == patientID && a.Date.Equal(date) && a.Status != StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (m *memApptRepo) list(match func(*Appointment) bool) []*Appointment {
	var items []*Appointment
	for _, a := range m.store.appts {
		if match(a) {
			cp := *a
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].StartTime < items[j].StartTime
	})
	return items
}

func (m *memApptRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	defer m.store.lock(ctx)()
	return m.list(func(a *Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *memApptRepo) ListByCounselor(ctx context.Context, counselorID uuid.UUID) ([]*Appointment, error) {
	defer m.store.lock(ctx)()
	return m.list(func(a *Appointment) bool { return a.CounselorID == counselorID }), nil
}

func (m *memApptRepo) CounselorStats(ctx context.Context, counselorID uuid.UUID) (int, int, error) {
	defer m.store.lock(ctx)()
	total, completed := 0, 0
	for _, a := range m.store.appts {
		if a.CounselorID != counselorID {
			continue
		}
		total++
		if a.Status == StatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}

type notifiedEvent struct {
	PatientID uuid.UUID
	Event     SessionStartedEvent
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
	ch     chan notifiedEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan notifiedEvent, 8)}
}

func (n *recordingNotifier) SessionStarted(_ context.Context, patientID uuid.UUID, ev SessionStartedEvent) {
	n.mu.Lock()
	n.events = append(n.events, notifiedEvent{PatientID: patientID, Event: ev})
	n.mu.Unlock()
	n.ch <- notifiedEvent{PatientID: patientID, Event: ev}
}

// wait blocks until a notification arrives; dispatch is asynchronous.
func (n *recordingNotifier) wait(t *testing.T) notifiedEvent {
	t.Helper()
	select {
	case ev := <-n.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
		return notifiedEvent{}
	}
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// -- Test helpers --

type testEnv struct {
	svc      *Service
	store    *memStore
	appts    *memApptRepo
	notifier *recordingNotifier
}

func newTestEnv() *testEnv {
	store := newMemStore()
	appts := &memApptRepo{store: store}
	notifier := newRecordingNotifier()
	svc := NewService(&memSlotRepo{store: store}, appts, &memTransactor{store: store}, notifier, zerolog.Nop())
	return &testEnv{svc: svc, store: store, appts: appts, notifier: notifier}
}

func counselorActor() auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "Dr. Ellis", Role: auth.RoleCounselor}
}

func patientActor(name string) auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: name, Role: auth.RolePatient}
}

func mustCreateSlot(t *testing.T, env *testEnv, actor auth.Actor, date, start, end string, capacity int) *Slot {
	t.Helper()
	sl, err := env.svc.CreateSlot(context.Background(), actor, CreateSlotInput{
		Date: date, StartTime: start, EndTime: end, Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	return sl
}

func slotState(t *testing.T, env *testEnv, id uuid.UUID) *Slot {
	t.Helper()
	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	sl, ok := env.store.slots[id]
	if !ok {
		t.Fatalf("slot %s not in store", id)
	}
	cp := *sl
	return &cp
}

func dateStr(t time.Time) string { return t.Format("2006-01-02") }

// -- Slot store --

func TestCreateSlot(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()

	sl := mustCreateSlot(t, env, counselor, "2027-04-12", "09:00", "09:30", 2)

	if sl.ID == uuid.Nil {
		t.Error("expected slot id assigned")
	}
	if sl.CounselorID != counselor.ID {
		t.Error("slot not owned by creating counselor")
	}
	if sl.Weekday != "Monday" {
		t.Errorf("weekday = %s, want Monday", sl.Weekday)
	}
	if sl.TotalCapacity != 2 || sl.BookedCount != 0 {
		t.Errorf("capacity = %d/%d, want 0/2", sl.BookedCount, sl.TotalCapacity)
	}
}

func TestCreateSlot_Validation(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()

	cases := []struct {
		name string
		in   CreateSlotInput
	}{
		{"bad date", CreateSlotInput{Date: "12/04/2027", StartTime: "09:00", EndTime: "09:30", Capacity: 1}},
		{"bad start", CreateSlotInput{Date: "2027-04-12", StartTime: "9am", EndTime: "09:30", Capacity: 1}},
		{"bad end", CreateSlotInput{Date: "2027-04-12", StartTime: "09:00", EndTime: "half past", Capacity: 1}},
		{"end before start", CreateSlotInput{Date: "2027-04-12", StartTime: "10:00", EndTime: "09:30", Capacity: 1}},
		{"zero capacity", CreateSlotInput{Date: "2027-04-12", StartTime: "09:00", EndTime: "09:30", Capacity: 0}},
		{"negative capacity", CreateSlotInput{Date: "2027-04-12", StartTime: "09:00", EndTime: "09:30", Capacity: -3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateSlot(context.Background(), counselor, tc.in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
	if len(env.store.slots) != 0 {
		t.Errorf("%d slots created by rejected inputs", len(env.store.slots))
	}
}

func TestCreateSlot_Duplicate(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()

	mustCreateSlot(t, env, counselor, "2027-04-12", "09:00", "09:30", 2)
	_, err := env.svc.CreateSlot(context.Background(), counselor, CreateSlotInput{
		Date: "2027-04-12", StartTime: "09:00", EndTime: "09:30", Capacity: 5,
	})
	if !errors.Is(err, apperror.ErrDuplicateSlot) {
		t.Errorf("err = %v, want duplicate_slot", err)
	}

	// Another counselor may offer the same window.
	other := counselorActor()
	if _, err := env.svc.CreateSlot(context.Background(), other, CreateSlotInput{
		Date: "2027-04-12", StartTime: "09:00", EndTime: "09:30", Capacity: 1,
	}); err != nil {
		t.Errorf("other counselor's identical window rejected: %v", err)
	}
}

func TestDeleteSlot(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	sl := mustCreateSlot(t, env, counselor, "2027-04-12", "09:00", "09:30", 1)

	if err := env.svc.DeleteSlot(context.Background(), patientActor("Sam"), sl.ID); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("stranger delete err = %v, want unauthorized", err)
	}
	if err := env.svc.DeleteSlot(context.Background(), counselor, uuid.New()); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing slot err = %v, want not_found", err)
	}
	if err := env.svc.DeleteSlot(context.Background(), counselor, sl.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if len(env.store.slots) != 0 {
		t.Error("slot still present after delete")
	}
}

func TestDeleteSlot_AppointmentsSurvive(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	patient := patientActor("Sam")
	sl := mustCreateSlot(t, env, counselor, "2027-04-12", "09:00", "09:30", 1)

	appt, err := env.svc.BookSlot(context.Background(), patient, sl.ID)
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if err := env.svc.DeleteSlot(context.Background(), counselor, sl.ID); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}

	got, err := env.svc.GetAppointment(context.Background(), patient, appt.ID)
	if err != nil {
		t.Fatalf("appointment lost with its slot: %v", err)
	}
	if dateStr(got.Date) != "2027-04-12" || got.StartTime != "09:00" {
		t.Errorf("appointment date/time drifted: %s %s", dateStr(got.Date), got.StartTime)
	}
}

func TestListSlots_Pagination(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	other := counselorActor()
	for day := 1; day <= 5; day++ {
		mustCreateSlot(t, env, counselor, fmt.Sprintf("2027-04-%02d", day), "09:00", "09:30", 1)
	}
	mustCreateSlot(t, env, other, "2027-04-01", "09:00", "09:30", 1)

	page, total, err := env.svc.ListSlots(context.Background(), counselor, 2, 2)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5 (own slots only)", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if dateStr(page[0].Date) != "2027-04-03" || dateStr(page[1].Date) != "2027-04-04" {
		t.Errorf("page = %s, %s; want 2027-04-03, 2027-04-04", dateStr(page[0].Date), dateStr(page[1].Date))
	}
}

func TestListBookable(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	patient := patientActor("Sam")
	today := DateOnly(time.Now())

	open := mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, 2)), "10:00", "10:30", 2)
	full := mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, 3)), "10:00", "10:30", 1)
	if _, err := env.svc.BookSlot(context.Background(), patient, full.ID); err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, 4)), "10:00", "10:30", 1)
	if _, err := env.svc.SetVacation(context.Background(), counselor, VacationInput{
		Start: dateStr(today.AddDate(0, 0, 4)), End: dateStr(today.AddDate(0, 0, 4)),
	}); err != nil {
		t.Fatalf("SetVacation: %v", err)
	}
	// Outside the default 30-day window.
	mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, 45)), "10:00", "10:30", 1)

	items, err := env.svc.ListBookable(context.Background(), counselor.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ListBookable: %v", err)
	}
	if len(items) != 1 || items[0].ID != open.ID {
		t.Fatalf("bookable = %d slots, want only the open one", len(items))
	}
	if items[0].Available() != 2 {
		t.Errorf("available = %d, want 2", items[0].Available())
	}

	if _, err := env.svc.ListBookable(context.Background(), counselor.ID, today.AddDate(0, 0, 5), today); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("inverted range err = %v, want validation", err)
	}
}

// -- Schedule maintenance --

func TestCopyLastWeek(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	patient := patientActor("Sam")
	today := DateOnly(time.Now())

	src := mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, -3)), "09:00", "09:30", 2)
	if _, err := env.svc.BookSlot(context.Background(), patient, src.ID); err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	// Already present at the destination: must be skipped, not an error.
	mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, 4)), "11:00", "11:30", 1)
	mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, -3)), "11:00", "11:30", 1)
	// Outside the source week.
	mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, -10)), "09:00", "09:30", 1)

	created, err := env.svc.CopyLastWeek(context.Background(), counselor)
	if err != nil {
		t.Fatalf("CopyLastWeek: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1 (duplicate skipped, old week ignored)", created)
	}

	items, err := env.svc.ListBookable(context.Background(), counselor.ID, today.AddDate(0, 0, 4), today.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("ListBookable: %v", err)
	}
	var copied *Slot
	for _, sl := range items {
		if sl.StartTime == "09:00" {
			copied = sl
		}
	}
	if copied == nil {
		t.Fatal("copied slot not found a week after its source")
	}
	if copied.BookedCount != 0 || copied.TotalCapacity != 2 {
		t.Errorf("copied slot = %d/%d, want capacity duplicated and bookings reset", copied.BookedCount, copied.TotalCapacity)
	}
}

func TestClearWeek(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	other := counselorActor()
	today := DateOnly(time.Now())

	mustCreateSlot(t, env, counselor, dateStr(today), "09:00", "09:30", 1)
	mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, 6)), "09:00", "09:30", 1)
	keepLater := mustCreateSlot(t, env, counselor, dateStr(today.AddDate(0, 0, 7)), "09:00", "09:30", 1)
	keepOther := mustCreateSlot(t, env, other, dateStr(today), "09:00", "09:30", 1)

	deleted, err := env.svc.ClearWeek(context.Background(), counselor)
	if err != nil {
		t.Fatalf("ClearWeek: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, ok := env.store.slots[keepLater.ID]; !ok {
		t.Error("slot beyond the week was deleted")
	}
	if _, ok := env.store.slots[keepOther.ID]; !ok {
		t.Error("another counselor's slot was deleted")
	}
}

func TestSetVacation(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	patient := patientActor("Sam")
	today := DateOnly(time.Now())
	day := dateStr(today.AddDate(0, 0, 5))

	sl := mustCreateSlot(t, env, counselor, day, "09:00", "09:30", 1)

	marked, err := env.svc.SetVacation(context.Background(), counselor, VacationInput{Start: day, End: day})
	if err != nil {
		t.Fatalf("SetVacation: %v", err)
	}
	if marked != 1 {
		t.Errorf("marked = %d, want 1", marked)
	}
	// The slot row survives, unlike ClearWeek.
	if got := slotState(t, env, sl.ID); !got.IsVacation {
		t.Error("slot not marked vacation")
	}
	if _, err := env.svc.BookSlot(context.Background(), patient, sl.ID); !errors.Is(err, apperror.ErrSlotUnavailable) {
		t.Errorf("booking vacation slot err = %v, want slot_unavailable", err)
	}

	if _, err := env.svc.SetVacation(context.Background(), counselor, VacationInput{Start: "soon", End: day}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("bad start err = %v, want validation", err)
	}
	if _, err := env.svc.SetVacation(context.Background(), counselor, VacationInput{Start: day, End: dateStr(today)}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("inverted range err = %v, want validation", err)
	}
}

// -- Appointment views --

func TestAppointments_PatientDashboard(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	patient := patientActor("Sam")
	today := DateOnly(time.Now())

	book := func(day string) {
		t.Helper()
		sl := mustCreateSlot(t, env, counselor, day, "09:00", "09:30", 1)
		if _, err := env.svc.BookSlot(context.Background(), patient, sl.ID); err != nil {
			t.Fatalf("BookSlot(%s): %v", day, err)
		}
	}
	book(dateStr(today.AddDate(0, 0, -2)))
	book(dateStr(today))
	book(dateStr(today.AddDate(0, 0, 3)))

	dash, err := env.svc.Appointments(context.Background(), patient)
	if err != nil {
		t.Fatalf("Appointments: %v", err)
	}
	if len(dash.Today) != 1 || len(dash.Upcoming) != 1 || len(dash.Past) != 1 {
		t.Errorf("grouping = today:%d upcoming:%d past:%d, want 1/1/1",
			len(dash.Today), len(dash.Upcoming), len(dash.Past))
	}

	// Counselor view of the same bookings: no past bucket.
	dash, err = env.svc.Appointments(context.Background(), counselor)
	if err != nil {
		t.Fatalf("Appointments (counselor): %v", err)
	}
	if len(dash.Today) != 1 || len(dash.Upcoming) != 1 || len(dash.Past) != 0 {
		t.Errorf("counselor grouping = today:%d upcoming:%d past:%d, want 1/1/0",
			len(dash.Today), len(dash.Upcoming), len(dash.Past))
	}
}

func TestGetAppointment_ParticipantsOnly(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	patient := patientActor("Sam")
	sl := mustCreateSlot(t, env, counselor, "2027-04-12", "09:00", "09:30", 1)
	appt, err := env.svc.BookSlot(context.Background(), patient, sl.ID)
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}

	for _, actor := range []auth.Actor{patient, counselor, {ID: uuid.New(), Name: "ops", Role: auth.RoleAdmin}} {
		if _, err := env.svc.GetAppointment(context.Background(), actor, appt.ID); err != nil {
			t.Errorf("%s denied: %v", actor.Role, err)
		}
	}
	stranger := patientActor("Eve")
	if _, err := env.svc.GetAppointment(context.Background(), stranger, appt.ID); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("stranger err = %v, want unauthorized", err)
	}
}

func TestCounselorStats(t *testing.T) {
	env := newTestEnv()
	counselor := counselorActor()
	pa, pb := patientActor("A"), patientActor("B")

	slA := mustCreateSlot(t, env, counselor, "2027-04-12", "09:00", "09:30", 1)
	slB := mustCreateSlot(t, env, counselor, "2027-04-13", "09:00", "09:30", 1)
	apptA, err := env.svc.BookSlot(context.Background(), pa, slA.ID)
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if _, err := env.svc.BookSlot(context.Background(), pb, slB.ID); err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if _, err := env.svc.StartSession(context.Background(), counselor, apptA.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	env.notifier.wait(t)
	if err := env.svc.CompleteSession(context.Background(), counselor, apptA.ID, "good progress"); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	stats, err := env.svc.Stats(context.Background(), counselor)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalAppointments != 2 || stats.CompletedSessions != 1 {
		t.Errorf("stats = %d total / %d completed, want 2/1", stats.TotalAppointments, stats.CompletedSessions)
	}
}

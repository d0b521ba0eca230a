package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediflow/go-booking-saga/internal/db"
	"github.com/mediflow/go-booking-saga/internal/models"
	"github.com/mediflow/go-booking-saga/internal/validate"
)

type fakeBookingStore struct {
	appointments map[uuid.UUID]*models.Appointment
	sagas        map[uuid.UUID]*models.SagaState
	slot         *models.Slot

	reserveErr error
	createErr  error

	reserved []uuid.UUID
	released []uuid.UUID
	created  []*models.OutboxEvent
	applied  []db.TransitionUpdate
}

func newFakeBookingStore() *fakeBookingStore {
	slotID := uuid.New()
	return &fakeBookingStore{
		appointments: make(map[uuid.UUID]*models.Appointment),
		sagas:        make(map[uuid.UUID]*models.SagaState),
		slot: &models.Slot{
			ID:          slotID,
			DoctorID:    uuid.New(),
			StartTime:   time.Now().Add(24 * time.Hour),
			EndTime:     time.Now().Add(25 * time.Hour),
			IsAvailable: true,
		},
	}
}

func (f *fakeBookingStore) ReserveSlot(_ context.Context, slotID, _ uuid.UUID) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reserved = append(f.reserved, slotID)
	return nil
}

func (f *fakeBookingStore) ReleaseSlot(_ context.Context, slotID uuid.UUID) error {
	f.released = append(f.released, slotID)
	return nil
}

func (f *fakeBookingStore) SlotByID(_ context.Context, slotID uuid.UUID) (*models.Slot, error) {
	if slotID != f.slot.ID {
		return nil, models.ErrSlotNotFound
	}
	cp := *f.slot
	return &cp, nil
}

func (f *fakeBookingStore) CreateBooking(_ context.Context, a *models.Appointment, st *models.SagaState, e *models.OutboxEvent) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.appointments[a.ID] = a
	f.sagas[a.ID] = st
	f.created = append(f.created, e)
	return nil
}

func (f *fakeBookingStore) AppointmentByID(_ context.Context, id uuid.UUID) (*models.Appointment, error) {
	a, ok := f.appointments[id]
	if !ok {
		return nil, models.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeBookingStore) SagaByAppointmentID(_ context.Context, appointmentID uuid.UUID) (*models.SagaState, error) {
	st, ok := f.sagas[appointmentID]
	if !ok {
		return nil, models.ErrSagaNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeBookingStore) ApplyTransition(_ context.Context, upd db.TransitionUpdate) error {
	f.applied = append(f.applied, upd)
	if upd.Appointment != nil {
		cp := *upd.Appointment
		f.appointments[cp.ID] = &cp
	}
	if upd.Saga != nil {
		cp := *upd.Saga
		f.sagas[cp.AppointmentID] = &cp
	}
	if upd.ReleaseSlot != nil {
		f.released = append(f.released, *upd.ReleaseSlot)
	}
	return nil
}

type fakeGate struct {
	info *validate.UserInfo
	err  error
}

func (f *fakeGate) Validate(context.Context, uuid.UUID, uuid.UUID) (*validate.UserInfo, error) {
	return f.info, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateAppointment_HappyPath(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	gate := &fakeGate{info: &validate.UserInfo{ConsultationFee: 200}}
	svc := NewBookingService(store, gate, testLogger())

	a, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		DoctorID:  store.slot.DoctorID,
		PatientID: uuid.New(),
		SlotID:    store.slot.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.AppointmentPending, a.Status)
	assert.Equal(t, 200.0, a.ConsultationFee)
	assert.Equal(t, []uuid.UUID{store.slot.ID}, store.reserved)
	assert.Empty(t, store.released)

	// Saga starts past the synchronous doctor pre-flight.
	assert.Equal(t, models.SagaDoctorValidated, store.sagas[a.ID].Status)

	// The created event goes out through the outbox, same commit.
	require.Len(t, store.created, 1)
	assert.Equal(t, models.EventAppointmentCreated, store.created[0].EventType)
	assert.Equal(t, a.ID, store.created[0].AggregateID)
}

func TestCreateAppointment_GateRejectionBlocksReservation(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	gate := &fakeGate{err: &validate.ValidationError{Code: "DOCTOR_SUSPENDED", Message: "suspended"}}
	svc := NewBookingService(store, gate, testLogger())

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		DoctorID: store.slot.DoctorID,
		SlotID:   store.slot.ID,
	})

	var vErr *validate.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, store.reserved)
}

func TestCreateAppointment_SlotConflictSurfaces(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	store.reserveErr = models.ErrSlotAlreadyBooked
	svc := NewBookingService(store, &fakeGate{info: &validate.UserInfo{}}, testLogger())

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		DoctorID: store.slot.DoctorID,
		SlotID:   store.slot.ID,
	})
	assert.ErrorIs(t, err, models.ErrSlotAlreadyBooked)
}

func TestCreateAppointment_CommitFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	store.createErr = errors.New("insert failed")
	svc := NewBookingService(store, &fakeGate{info: &validate.UserInfo{}}, testLogger())

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		DoctorID: store.slot.DoctorID,
		SlotID:   store.slot.ID,
	})
	require.Error(t, err)

	// The reservation is compensated, not leaked.
	assert.Equal(t, []uuid.UUID{store.slot.ID}, store.released)
}

// lockingSlotStore honors the row-lock contract of the real reservation: a
// mutex serializes reserve calls and the loser observes the flipped flag.
type lockingSlotStore struct {
	*fakeBookingStore
	mu        sync.Mutex
	available bool
}

func (s *lockingSlotStore) ReserveSlot(_ context.Context, _, _ uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return models.ErrSlotAlreadyBooked
	}
	s.available = false
	return nil
}

func TestCreateAppointment_ConcurrentReservesExactlyOneWinner(t *testing.T) {
	t.Parallel()

	store := &lockingSlotStore{fakeBookingStore: newFakeBookingStore(), available: true}
	gate := &fakeGate{info: &validate.UserInfo{ConsultationFee: 200}}
	svc := NewBookingService(store, gate, testLogger())

	const callers = 16
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
				DoctorID:  store.slot.DoctorID,
				PatientID: uuid.New(),
				SlotID:    store.slot.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, models.ErrSlotAlreadyBooked):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, won)
	assert.Equal(t, callers-1, lost)
}

func seedAppointment(store *fakeBookingStore, aStatus models.AppointmentStatus, sStatus models.SagaStatus, txID string) *models.Appointment {
	a := &models.Appointment{
		ID:            uuid.New(),
		DoctorID:      store.slot.DoctorID,
		SlotID:        store.slot.ID,
		Status:        aStatus,
		TransactionID: txID,
	}
	store.appointments[a.ID] = a
	store.sagas[a.ID] = &models.SagaState{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		Status:        sStatus,
	}
	return a
}

func TestCancelAppointment_UnpaidCancelsLocally(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	a := seedAppointment(store, models.AppointmentPending, models.SagaDoctorValidated, "")
	svc := NewBookingService(store, &fakeGate{}, testLogger())

	err := svc.CancelAppointment(context.Background(), a.ID, "patient request", "patient")
	require.NoError(t, err)

	assert.Equal(t, models.AppointmentCancelled, store.appointments[a.ID].Status)
	assert.Equal(t, models.SagaCompensated, store.sagas[a.ID].Status)
	assert.Equal(t, []uuid.UUID{a.SlotID}, store.released)

	require.Len(t, store.applied, 1)
	require.NotNil(t, store.applied[0].Event)
	assert.Equal(t, models.EventAppointmentCancelled, store.applied[0].Event.EventType)
}

func TestCancelAppointment_PaidInitiatesRefundFlow(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	a := seedAppointment(store, models.AppointmentConfirmed, models.SagaPaymentCompleted, "tx-123")
	svc := NewBookingService(store, &fakeGate{}, testLogger())

	err := svc.CancelAppointment(context.Background(), a.ID, "schedule conflict", "patient")
	require.NoError(t, err)

	// The slot stays booked until the refund result closes the saga.
	assert.Equal(t, models.AppointmentCancelling, store.appointments[a.ID].Status)
	assert.Equal(t, models.SagaCompensating, store.sagas[a.ID].Status)
	assert.Empty(t, store.released)

	require.Len(t, store.applied, 1)
	require.NotNil(t, store.applied[0].Event)
	assert.Equal(t, models.EventCancellationStarted, store.applied[0].Event.EventType)
}

func TestCancelAppointment_SecondRequestRejected(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	a := seedAppointment(store, models.AppointmentCancelling, models.SagaCompensating, "tx-123")
	svc := NewBookingService(store, &fakeGate{}, testLogger())

	err := svc.CancelAppointment(context.Background(), a.ID, "again", "patient")
	assert.ErrorIs(t, err, models.ErrSagaClosed)
}

func TestCompleteAppointment(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	a := seedAppointment(store, models.AppointmentConfirmed, models.SagaPaymentCompleted, "tx-123")
	svc := NewBookingService(store, &fakeGate{}, testLogger())

	err := svc.CompleteAppointment(context.Background(), a.ID)
	require.NoError(t, err)

	assert.Equal(t, models.AppointmentCompleted, store.appointments[a.ID].Status)
	assert.Equal(t, models.SagaCompleted, store.sagas[a.ID].Status)
}

func TestCompleteAppointment_PendingRejected(t *testing.T) {
	t.Parallel()

	store := newFakeBookingStore()
	a := seedAppointment(store, models.AppointmentPending, models.SagaDoctorValidated, "")
	svc := NewBookingService(store, &fakeGate{}, testLogger())

	err := svc.CompleteAppointment(context.Background(), a.ID)
	assert.ErrorIs(t, err, models.ErrSagaClosed)
}

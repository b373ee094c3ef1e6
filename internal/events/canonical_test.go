package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/bookings"
)

func TestNewEnvelope(t *testing.T) {
	created := time.Unix(0, 123456000).UTC()
	entry := OutboxEntry{
		ID:         uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8"),
		ProviderID: uuid.MustParse("1b7a4c3e-8f61-4c1e-9d4b-2f7a5e6c8d90"),
		Type:       TypeBookingConfirmed,
		Payload:    json.RawMessage(`{"booking_id":"x"}`),
		CreatedAt:  created,
	}
	env := NewEnvelope(entry)
	assert.Equal(t, entry.ID, env.EventID)
	assert.Equal(t, "provider:1b7a4c3e-8f61-4c1e-9d4b-2f7a5e6c8d90", env.Aggregate)
	assert.Equal(t, int64(123456), env.TimestampMicros)
	assert.JSONEq(t, `{"booking_id":"x"}`, string(env.Payload))
}

func TestNewEnvelopeFallsBackToNow(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = prev }()

	env := NewEnvelope(OutboxEntry{ID: uuid.New(), Type: TypeScheduleUpdated})
	assert.Equal(t, fixed.UnixMicro(), env.TimestampMicros)
}

func TestBookingEventRoundTrip(t *testing.T) {
	at := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)
	b := &bookings.Booking{
		ID: uuid.New(), ProviderID: uuid.New(), RequesterID: uuid.New(),
		Kind: bookings.KindAppointment, Status: bookings.StatusCancelled, ScheduledAt: &at,
		DurationMinutes: 30, CancelReason: "sick", CancelledBy: bookings.PartyRequester,
	}
	actor := uuid.New()
	evt := NewBookingEvent(TypeBookingCancelled, b, actor, "requester")
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	got, err := DecodeBookingEvent(OutboxEntry{Type: TypeBookingCancelled, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, TypeBookingCancelled, got.EventType())
	assert.Equal(t, b.ID, got.BookingID)
	assert.Equal(t, "sick", got.Reason)
	assert.Equal(t, actor, got.ActorID)

	_, err = DecodeBookingEvent(OutboxEntry{Type: TypeScheduleUpdated, Payload: payload})
	assert.Error(t, err)
}

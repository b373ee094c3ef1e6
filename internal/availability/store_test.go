package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caremarket-platform/internal/bookings"
)

func TestScheduleStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewScheduleStore(mock)
	providerID := uuid.New()

	mock.ExpectQuery(`SELECT timezone, slot_minutes FROM providers`).WithArgs(providerID).
		WillReturnRows(pgxmock.NewRows([]string{"timezone", "slot_minutes"}).AddRow("America/Denver", 45))
	mock.ExpectQuery(`FROM provider_schedules`).WithArgs(providerID).
		WillReturnRows(pgxmock.NewRows([]string{"weekday", "open_time", "close_time", "closed"}).
			AddRow(1, "08:00", "16:00", false).
			AddRow(0, "", "", true))

	sched, err := store.Get(context.Background(), providerID)
	require.NoError(t, err)
	assert.Equal(t, "America/Denver", sched.Timezone)
	assert.Equal(t, 45, sched.SlotMinutes)
	require.Len(t, sched.Days, 2)
	assert.Equal(t, time.Monday, sched.Days[0].Weekday)
	assert.True(t, sched.Days[1].Closed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreGetUnknownProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewScheduleStore(mock)

	mock.ExpectQuery(`FROM providers`).WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, bookings.ErrProviderNotFound)
}

func TestScheduleStoreReplaceIsTransactional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewScheduleStore(mock)

	sched := weekdaySchedule()
	sched.ProviderID = uuid.New()
	sched.Timezone = "UTC"

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE providers SET timezone`).WithArgs(sched.ProviderID, "UTC", 60).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM provider_schedules`).WithArgs(sched.ProviderID).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	for _, d := range sched.Days {
		mock.ExpectExec(`INSERT INTO provider_schedules`).
			WithArgs(sched.ProviderID, int(d.Weekday), d.Open, d.Close, d.Closed).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.Replace(context.Background(), sched))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreReplaceRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewScheduleStore(mock)

	sched := weekdaySchedule()
	sched.ProviderID = uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE providers`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM provider_schedules`).WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectExec(`INSERT INTO provider_schedules`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = store.Replace(context.Background(), sched)
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreReplaceRejectsInvalid(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewScheduleStore(mock)

	err = store.Replace(context.Background(), &Schedule{Days: []DayHours{{Weekday: time.Monday, Open: "10:00", Close: "09:00"}}})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	require.NoError(t, mock.ExpectationsWereMet())
}

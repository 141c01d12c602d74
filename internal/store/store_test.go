package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return New(db), mock
}

func TestGormStore_ListBeds(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `beds` WHERE room_id = \\? ORDER BY id").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "bed_number", "bed_name"}).
			AddRow(1, 7, "1", "Bed A").
			AddRow(2, 7, "2", "Bed B"))

	beds, err := s.ListBeds(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, beds, 2)
	assert.Equal(t, "Bed B", beds[1].BedName)
	require.NotNil(t, beds[0].RoomID)
	assert.Equal(t, uint(7), *beds[0].RoomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindRoomBySourceIP_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `rooms` WHERE system_ip = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ward_id", "room_number"}))

	room, err := s.FindRoomBySourceIP(context.Background(), "10.0.0.9")
	require.NoError(t, err)
	assert.Nil(t, room)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindActiveCallSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `call_sessions` WHERE .*bed_id = \\? AND status = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "bed_id", "current_event_type", "status"}).
			AddRow(4, 3, "Call", SessionActive))

	cs, err := s.FindActiveCallSession(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, uint(4), cs.ID)
	assert.Equal(t, "Call", cs.CurrentEventType)

	mock.ExpectQuery("SELECT \\* FROM `call_sessions`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	cs, err = s.FindActiveCallSession(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, cs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateCallSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `call_sessions`").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	cs, err := s.CreateCallSession(context.Background(), 3, "Call", time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint(11), cs.ID)
	assert.Equal(t, SessionActive, cs.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdateCallSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `call_sessions` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateCallSession(context.Background(), 4, map[string]interface{}{"current_event_type": "Accept"})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `call_sessions` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = s.UpdateCallSession(context.Background(), 99, map[string]interface{}{"status": SessionEnded})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_AppendEvent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `events`").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	ev := &Event{EventType: "Call", SystemTimestamp: time.Now(), RawHex: "02ff03"}
	require.NoError(t, s.AppendEvent(context.Background(), ev))
	assert.Equal(t, uint(5), ev.ID)
	assert.Equal(t, EventActive, ev.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_TransactionRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `call_sessions`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	err := s.Transaction(context.Background(), func(tx Store) error {
		if _, err := tx.CreateCallSession(context.Background(), 1, "Call", time.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_HasActiveCamera(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `cameras`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	ok, err := s.HasActiveCamera(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Stats(t *testing.T) {
	s, mock := newMockStore(t)

	for _, n := range []int{5, 2, 1, 3} {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `events`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
	}

	st, err := s.Stats(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalActive: 5, UrgentAlarms: 2, OngoingCalls: 1, RecentlyCleared: 3}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoom_DisplayName(t *testing.T) {
	assert.Equal(t, "ICU 1", Room{RoomNumber: "101", RoomName: "ICU 1"}.DisplayName())
	assert.Equal(t, "101", Room{RoomNumber: "101"}.DisplayName())
}

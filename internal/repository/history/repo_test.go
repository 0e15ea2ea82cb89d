package history

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/dbpg"

	"github.com/projectdesk/notify/internal/model"
)

func setupMockDB(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open mock db: %v", err)
	}

	wrappedDB := &dbpg.DB{Master: db}
	repo := NewRepository(wrappedDB)

	return repo, mock
}

func TestCreateNotification(t *testing.T) {
	repo, mock := setupMockDB(t)

	notificationID := uuid.New()
	n := model.Notification{
		Type:      model.TypeAttendanceReminder,
		Message:   "Time for your morning check-in",
		Payload:   model.AttendanceReminder{AttendanceType: string(model.MorningIn), ScheduledTime: "09:40"},
		CreatedAt: time.Now(),
	}

	payload, err := json.Marshal(n.Payload)
	assert.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO notification_history (
		    type, message, payload, created_at
		) VALUES ($1, $2, $3, $4)
		RETURNING id;
    `)).
		WithArgs(n.Type, n.Message, payload, n.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(notificationID))

	id, err := repo.CreateNotification(context.Background(), n)
	assert.NoError(t, err)
	assert.Equal(t, notificationID, id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotification_NilPayload(t *testing.T) {
	repo, mock := setupMockDB(t)

	notificationID := uuid.New()
	n := model.Notification{
		Type:      model.TypeWorkerStopped,
		Message:   "Attendance worker stopped",
		CreatedAt: time.Now(),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO notification_history (
		    type, message, payload, created_at
		) VALUES ($1, $2, $3, $4)
		RETURNING id;
    `)).
		WithArgs(n.Type, n.Message, nil, n.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(notificationID))

	id, err := repo.CreateNotification(context.Background(), n)
	assert.NoError(t, err)
	assert.Equal(t, notificationID, id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecent(t *testing.T) {
	repo, mock := setupMockDB(t)

	n1 := model.Notification{
		ID:        uuid.New(),
		Type:      model.TypeUpcomingEvent,
		Message:   "standup starts in 10 minutes",
		CreatedAt: time.Now(),
	}
	n2 := model.Notification{
		ID:        uuid.New(),
		Type:      model.TypeAttendanceReminder,
		Message:   "Time for your morning check-in",
		CreatedAt: time.Now().Add(-time.Minute),
	}

	rows := sqlmock.NewRows([]string{"id", "type", "message", "payload", "created_at"}).
		AddRow(n1.ID, n1.Type, n1.Message, []byte(`{"remaining":0}`), n1.CreatedAt).
		AddRow(n2.ID, n2.Type, n2.Message, nil, n2.CreatedAt)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, type, message, payload, created_at
		FROM notification_history
		ORDER BY created_at DESC
		LIMIT $1;
    `)).
		WithArgs(20).
		WillReturnRows(rows)

	list, err := repo.ListRecent(context.Background(), 20)
	assert.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, json.RawMessage(`{"remaining":0}`), list[0].Payload)
	assert.Nil(t, list[1].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, type, message, payload, created_at
		FROM notification_history
		ORDER BY created_at DESC
		LIMIT $1;
    `)).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "message", "payload", "created_at"}))

	_, err = repo.ListRecent(context.Background(), 20)
	assert.ErrorIs(t, err, ErrNoNotificationsFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

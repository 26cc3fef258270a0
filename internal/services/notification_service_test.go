package services

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peedutronix/credit-keeper/internal/models"
)

func newNotificationTestService(t *testing.T) (*NotificationService, sqlmock.Sqlmock, *fakePush) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	push := &fakePush{delivered: true}
	return NewNotificationService(db, push), mock, push
}

func TestNotificationService_Notify(t *testing.T) {
	t.Run("stores the row then pushes once", func(t *testing.T) {
		service, mock, push := newNotificationTestService(t)
		orderID := 7

		mock.ExpectQuery("INSERT INTO notifications").
			WithArgs(2, models.NotifyNewOrder, "New Credit Order", "hello", 7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, time.Now()))

		n, err := service.Notify(2, models.NotifyNewOrder, "New Credit Order", "hello", &orderID)
		require.NoError(t, err)
		assert.Equal(t, 11, n.ID)
		assert.False(t, n.Read)
		assert.Equal(t, []int{2}, push.sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missed push is not an error", func(t *testing.T) {
		service, mock, push := newNotificationTestService(t)
		push.delivered = false

		mock.ExpectQuery("INSERT INTO notifications").
			WithArgs(2, models.NotifyOrderUpdate, "Order Status Updated", "hello", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(12, time.Now()))

		_, err := service.Notify(2, models.NotifyOrderUpdate, "Order Status Updated", "hello", nil)
		assert.NoError(t, err)
		assert.Equal(t, []int{2}, push.sent)
	})

	t.Run("storage failure surfaces and skips the push", func(t *testing.T) {
		service, mock, push := newNotificationTestService(t)

		mock.ExpectQuery("INSERT INTO notifications").
			WillReturnError(errors.New("disk full"))

		_, err := service.Notify(2, models.NotifyOrderUpdate, "Order Status Updated", "hello", nil)
		assert.Error(t, err)
		assert.Empty(t, push.sent)
	})
}

func TestNotificationService_ReadState(t *testing.T) {
	t.Run("mark read scoped to the owner", func(t *testing.T) {
		service, mock, _ := newNotificationTestService(t)

		mock.ExpectExec("UPDATE notifications SET read = TRUE WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(11, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))

		r := asCustomer(httptest.NewRequest(http.MethodPatch, "/api/notifications/11/read", nil), 3)
		r = withURLParam(r, "id", "11")
		w := httptest.NewRecorder()

		service.MarkRead(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("marking someone else's notification is a no-op", func(t *testing.T) {
		service, mock, _ := newNotificationTestService(t)

		mock.ExpectExec("UPDATE notifications SET read = TRUE WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(11, 4).
			WillReturnResult(sqlmock.NewResult(0, 0))

		r := asCustomer(httptest.NewRequest(http.MethodPatch, "/api/notifications/11/read", nil), 4)
		r = withURLParam(r, "id", "11")
		w := httptest.NewRecorder()

		service.MarkRead(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mark all read targets unread rows only", func(t *testing.T) {
		service, mock, _ := newNotificationTestService(t)

		mock.ExpectExec("UPDATE notifications SET read = TRUE WHERE user_id = \\$1 AND read = FALSE").
			WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 5))

		r := asCustomer(httptest.NewRequest(http.MethodPatch, "/api/notifications/read-all", nil), 3)
		w := httptest.NewRecorder()

		service.MarkAllRead(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unread count", func(t *testing.T) {
		service, mock, _ := newNotificationTestService(t)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications WHERE user_id = \\$1 AND read = FALSE").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		r := asCustomer(httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil), 3)
		w := httptest.NewRecorder()

		service.UnreadCount(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"count":4}`, w.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationService_List(t *testing.T) {
	notificationColumns := []string{"id", "user_id", "type", "title", "message", "order_id", "read", "created_at"}

	t.Run("newest first with default cap", func(t *testing.T) {
		service, mock, _ := newNotificationTestService(t)

		mock.ExpectQuery("SELECT (.+) FROM notifications WHERE user_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT \\$2").
			WithArgs(3, 50).
			WillReturnRows(sqlmock.NewRows(notificationColumns).
				AddRow(12, 3, models.NotifyOrderUpdate, "Order Status Updated", "Your order #7 has been approved", 7, false, time.Now()).
				AddRow(11, 3, models.NotifyNewOrder, "New Credit Order", "hello", nil, true, time.Now()))

		r := asCustomer(httptest.NewRequest(http.MethodGet, "/api/notifications", nil), 3)
		w := httptest.NewRecorder()

		service.ListNotifications(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"order_id":7`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("oversized limit clamps to 50", func(t *testing.T) {
		service, mock, _ := newNotificationTestService(t)

		mock.ExpectQuery("SELECT (.+) FROM notifications WHERE user_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT \\$2").
			WithArgs(3, 50).
			WillReturnRows(sqlmock.NewRows(notificationColumns))

		r := asCustomer(httptest.NewRequest(http.MethodGet, "/api/notifications?limit=500", nil), 3)
		w := httptest.NewRecorder()

		service.ListNotifications(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

package services

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/peedutronix/credit-keeper/internal/metrics"
	mW "github.com/peedutronix/credit-keeper/internal/middleware"
	"github.com/peedutronix/credit-keeper/internal/models"
)

const maxNotificationPage = 50

// PushSender is the delivery hint consulted after the durable append. A false
// return means no usable channel; the stored row covers the recipient.
type PushSender interface {
	Send(userID int, payload any) bool
}

// NotificationService appends durable notification rows and makes one
// best-effort push attempt per row.
type NotificationService struct {
	db   *sql.DB
	push PushSender
}

func NewNotificationService(db *sql.DB, push PushSender) *NotificationService {
	return &NotificationService{db: db, push: push}
}

// Notify durably stores the notification, then tries the live channel once.
// Only the store failure is returned; a missed push is routine.
func (s *NotificationService) Notify(recipientID int, notifType, title, message string, orderID *int) (*models.Notification, error) {
	n := &models.Notification{
		RecipientID: recipientID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		OrderID:     orderID,
	}

	err := s.db.QueryRow(`
		INSERT INTO notifications (user_id, type, title, message, order_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		recipientID, notifType, title, message, orderID).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	metrics.NotificationsCreated.Inc()

	delivered := s.push.Send(recipientID, map[string]any{
		"type": "notification",
		"data": n,
	})
	if delivered {
		metrics.PushDelivered.Inc()
	} else {
		metrics.PushMissed.Inc()
	}
	log.Printf("[NOTIFY] Notification %d stored for user %d (type=%s, pushed=%t)",
		n.ID, recipientID, notifType, delivered)

	return n, nil
}

// ListNotifications handles GET /notifications
// @Summary List own notifications
// @Description Newest-first notifications for the authenticated user, capped at 50
// @Tags notifications
// @Produce json
// @Param limit query int false "Rows to return (default and max: 50)"
// @Success 200 {object} object{notifications=[]models.Notification}
// @Failure 500 {object} ErrorResponse
// @Router /notifications [get]
func (s *NotificationService) ListNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := maxNotificationPage
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxNotificationPage {
			limit = l
		}
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, type, title, message, order_id, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, identity.UserID, limit)
	if err != nil {
		log.Printf("[NOTIFY] Failed to fetch notifications for user %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.OrderID, &n.Read, &n.CreatedAt); err != nil {
			log.Printf("[NOTIFY] Failed to scan notification row: %v", err)
			SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
			return
		}
		notifications = append(notifications, n)
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// MarkRead handles PATCH /notifications/{id}/read
// @Summary Mark one notification read
// @Description Sets read=true if the notification belongs to the caller; a no-op otherwise
// @Tags notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /notifications/{id}/read [patch]
func (s *NotificationService) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	notificationID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid notification id", http.StatusBadRequest, nil)
		return
	}

	// Ownership is part of the predicate: marking someone else's row is a
	// silent no-op, same as marking an already-read row.
	_, err = s.db.Exec(`
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		notificationID, identity.UserID)
	if err != nil {
		log.Printf("[NOTIFY] Failed to mark notification %d read: %v", notificationID, err)
		SendErrorResponse(w, "Failed to update notification", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// MarkAllRead handles PATCH /notifications/read-all
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]string
// @Router /notifications/read-all [patch]
func (s *NotificationService) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	_, err := s.db.Exec(`
		UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`,
		identity.UserID)
	if err != nil {
		log.Printf("[NOTIFY] Failed to mark all read for user %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to update notifications", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}

// UnreadCount handles GET /notifications/unread-count
// @Summary Count unread notifications
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]int
// @Failure 500 {object} ErrorResponse
// @Router /notifications/unread-count [get]
func (s *NotificationService) UnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`,
		identity.UserID).Scan(&count)
	if err != nil {
		log.Printf("[NOTIFY] Failed to count unread for user %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to fetch unread count", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]int{"count": count})
}

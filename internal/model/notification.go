package model

import "time"

// Notification types used by the core when informing affected users.
const (
	NotificationClassChanged   = "clase_modificada"
	NotificationClassCancelled = "clase_cancelada"
	NotificationClassDeleted   = "clase_eliminada"
	NotificationSpotOpened     = "lugar_disponible"
	NotificationCreditRefund   = "credito_devuelto"
)

// Notification is the payload handed to the dispatch collaborator. Delivery
// (push/email) happens outside this service; the core only enqueues.
type Notification struct {
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Type           string    `json:"type"`
	IsImportant    bool      `json:"is_important"`
	RelatedClassID string    `json:"related_class_id,omitempty"`
	TenantID       string    `json:"tenant_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

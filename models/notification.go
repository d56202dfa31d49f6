package models

import "time"

type NotificationType string

const (
	NotificationSOSAlert          NotificationType = "sos-alert"
	NotificationEmergencyAssist   NotificationType = "emergency-assist"
	NotificationCounselingRequest NotificationType = "counseling-request"
)

// Notification is a durable inbox entry. (RecipientID, TransitionID) is
// unique so a transition lands in each inbox at most once.
type Notification struct {
	ID           string           `json:"id" gorm:"primaryKey;size:36"`
	RecipientID  string           `json:"recipient_id" gorm:"size:36;not null;uniqueIndex:idx_notifications_recipient_transition,priority:1;index:idx_notifications_recipient_created,priority:1"`
	TransitionID string           `json:"transition_id" gorm:"size:36;not null;uniqueIndex:idx_notifications_recipient_transition,priority:2"`
	Type         NotificationType `json:"type" gorm:"size:32;not null;index"`
	Title        string           `json:"title" gorm:"size:150;not null"`
	Body         string           `json:"body" gorm:"type:text;not null"`
	RelatedKind  Kind             `json:"related_kind" gorm:"size:24"`
	RelatedID    string           `json:"related_id" gorm:"size:36;index"`
	ActionURL    string           `json:"action_url,omitempty" gorm:"size:255"`
	Priority     Priority         `json:"priority" gorm:"size:16;not null"`
	IsRead       bool             `json:"is_read" gorm:"not null;index"`
	ReadAt       *time.Time       `json:"read_at,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt    time.Time        `json:"created_at" gorm:"index:idx_notifications_recipient_created,priority:2"`
}

package models

import "time"

// RequestMessage is one entry of a request's append-only thread. Rows are
// inserted and never updated or deleted.
type RequestMessage struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	RequestKind Kind      `json:"request_kind" gorm:"size:24;not null;index:idx_request_messages_request,priority:1"`
	RequestID   string    `json:"request_id" gorm:"size:36;not null;index:idx_request_messages_request,priority:2"`
	AuthorID    string    `json:"author_id" gorm:"size:36;not null"`
	AuthorRole  Role      `json:"author_role" gorm:"size:20;not null"`
	Text        string    `json:"text" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

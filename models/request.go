package models

import (
	"time"

	"gorm.io/datatypes"
)

// Kind tags the request variant. It doubles as the URL segment.
type Kind string

const (
	KindSOS             Kind = "sos"
	KindEmergencyAssist Kind = "emergency-assist"
	KindCounseling      Kind = "counseling"
)

var Kinds = []Kind{KindSOS, KindEmergencyAssist, KindCounseling}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
	StatusDeclined   Status = "declined"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusDeclined:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
	PriorityUrgent:   4,
}

// Rank orders priorities; unknown values rank 0.
func (p Priority) Rank() int { return priorityRank[p] }

// Request is implemented by every request variant. Callers switch on Kind()
// or type-assert when they need variant fields.
type Request interface {
	Kind() Kind
	Base() *RequestBase
	TableName() string
}

// RequestBase holds the lifecycle fields shared by all variants. RequesterID
// never changes after insert and Version increments on every status write.
type RequestBase struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	RequesterID     string     `json:"requester_id" gorm:"size:36;not null;index"`
	Category        string     `json:"category" gorm:"size:32;not null;index"`
	Description     string     `json:"description" gorm:"type:text;not null"`
	Priority        Priority   `json:"priority" gorm:"size:16;not null;index"`
	Status          Status     `json:"status" gorm:"size:16;not null;index"`
	AssigneeID      *string    `json:"assignee_id,omitempty" gorm:"size:36;index"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty" gorm:"type:text"`
	Rating          *int       `json:"rating,omitempty"`
	Feedback        string     `json:"feedback,omitempty" gorm:"type:text"`
	RatedAt         *time.Time `json:"rated_at,omitempty"`
	Version         int        `json:"version" gorm:"not null"`
	CreatedAt       time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (b *RequestBase) Base() *RequestBase { return b }

// AssignedTo reports whether userID is the current assignee.
func (b *RequestBase) AssignedTo(userID string) bool {
	return b.AssigneeID != nil && *b.AssigneeID == userID
}

type SOSLocation struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   string   `json:"address,omitempty"`
	Building  string   `json:"building,omitempty"`
	Room      string   `json:"room,omitempty"`
}

type SOSAlert struct {
	RequestBase
	Location datatypes.JSONType[SOSLocation] `json:"location"`
}

func (*SOSAlert) Kind() Kind        { return KindSOS }
func (*SOSAlert) TableName() string { return "sos_alerts" }

type AssistLocation struct {
	Current     string `json:"current,omitempty"`
	Destination string `json:"destination,omitempty"`
}

type EmergencyAssist struct {
	RequestBase
	Title    string                             `json:"title" gorm:"size:100;not null"`
	Consent  bool                               `json:"consent" gorm:"not null"`
	Location datatypes.JSONType[AssistLocation] `json:"location"`
}

func (*EmergencyAssist) Kind() Kind        { return KindEmergencyAssist }
func (*EmergencyAssist) TableName() string { return "emergency_assists" }

type CounselingRequest struct {
	RequestBase
	Title         string     `json:"title" gorm:"size:150;not null"`
	IsAnonymous   bool       `json:"is_anonymous" gorm:"not null;index"`
	DeclineReason string     `json:"decline_reason,omitempty" gorm:"type:text"`
	SessionCount  int        `json:"session_count" gorm:"not null"`
	LastSessionAt *time.Time `json:"last_session_at,omitempty"`
}

func (*CounselingRequest) Kind() Kind        { return KindCounseling }
func (*CounselingRequest) TableName() string { return "counseling_requests" }

// NewRequest returns an empty record of the given kind, for loading into.
func NewRequest(kind Kind) Request {
	switch kind {
	case KindSOS:
		return &SOSAlert{}
	case KindEmergencyAssist:
		return &EmergencyAssist{}
	case KindCounseling:
		return &CounselingRequest{}
	}
	return nil
}

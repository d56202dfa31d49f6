package services

import (
	"context"
	"errors"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultLedgerPageSize = 20
	maxLedgerPageSize     = 100
	// Rows per INSERT. Rows times columns must stay under the 65535 bind
	// parameters Postgres accepts in one statement.
	ledgerBatchSize = 500
)

// Ledger is the durable per-recipient notification inbox.
type Ledger struct {
	db        *gorm.DB
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func NewLedger(db *gorm.DB, ttl time.Duration) *Ledger {
	return &Ledger{
		db:        db,
		ttl:       ttl,
		batchSize: ledgerBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record inserts entries in batches inside one transaction. An entry whose
// (recipient, transition) pair already exists is skipped. It returns the
// number of rows actually inserted.
func (l *Ledger) Record(ctx context.Context, entries []models.Notification) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	now := l.now()
	for i := range entries {
		n := &entries[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.ExpiresAt == nil && l.ttl > 0 {
			exp := n.CreatedAt.Add(l.ttl)
			n.ExpiresAt = &exp
		}
	}

	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipient_id"}, {Name: "transition_id"}},
			DoNothing: true,
		}).
		CreateInBatches(&entries, l.batchSize)
	if res.Error != nil {
		return 0, persistenceError("record notifications", res.Error)
	}
	return res.RowsAffected, nil
}

type LedgerFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

type LedgerPage struct {
	Items  []models.Notification `json:"items"`
	Total  int64                 `json:"total"`
	Unread int64                 `json:"unread"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func (l *Ledger) visible(ctx context.Context, recipientID string) *gorm.DB {
	return l.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ?", recipientID).
		Where("(expires_at IS NULL OR expires_at > ?)", l.now())
}

// ListForRecipient returns unexpired entries, newest first.
func (l *Ledger) ListForRecipient(ctx context.Context, recipientID string, f LedgerFilter) (*LedgerPage, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLedgerPageSize
	}
	if f.Limit > maxLedgerPageSize {
		f.Limit = maxLedgerPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := l.visible(ctx, recipientID)
	if f.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}

	page := &LedgerPage{Items: []models.Notification{}, Limit: f.Limit, Offset: f.Offset}
	if err := q.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return nil, persistenceError("count notifications", err)
	}
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&page.Items).Error
	if err != nil {
		return nil, persistenceError("list notifications", err)
	}
	unread, err := l.UnreadCount(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	page.Unread = unread
	return page, nil
}

// MarkRead flips the read flag on one of the recipient's entries. Entries
// owned by someone else look absent. Marking twice keeps the first ReadAt.
func (l *Ledger) MarkRead(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	var n models.Notification
	err := l.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("notification")
		}
		return nil, persistenceError("load notification", err)
	}
	if n.IsRead {
		return &n, nil
	}

	now := l.now()
	err = l.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error
	if err != nil {
		return nil, persistenceError("mark notification read", err)
	}
	n.IsRead = true
	n.ReadAt = &now
	return &n, nil
}

func (l *Ledger) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res := l.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]any{"is_read": true, "read_at": l.now()})
	if res.Error != nil {
		return 0, persistenceError("mark notifications read", res.Error)
	}
	return res.RowsAffected, nil
}

func (l *Ledger) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := l.visible(ctx, recipientID).Where("is_read = ?", false).Count(&n).Error
	if err != nil {
		return 0, persistenceError("count unread notifications", err)
	}
	return n, nil
}

// CountForTransition reports how many inbox entries a transition produced.
func (l *Ledger) CountForTransition(ctx context.Context, transitionID string) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("transition_id = ?", transitionID).
		Count(&n).Error
	if err != nil {
		return 0, persistenceError("count notifications", err)
	}
	return n, nil
}

// PurgeExpired deletes entries whose expiry is at or before now.
func (l *Ledger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, persistenceError("purge notifications", res.Error)
	}
	return res.RowsAffected, nil
}

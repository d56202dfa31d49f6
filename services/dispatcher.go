package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/metrics"
	"github.com/FASALGAF00R/Campuscore-backend/models"
	"go.uber.org/zap"
)

const broadcastTimeout = 5 * time.Second

// Broadcaster delivers a live event to rooms. The local PresenceRegistry
// and the Kafka relay both implement it.
type Broadcaster interface {
	Broadcast(ctx context.Context, rooms []string, ev Event) error
}

// Audience is who hears about a transition: rooms for live push, user ids
// for durable inbox entries.
type Audience struct {
	Rooms   []string `json:"rooms"`
	UserIDs []string `json:"user_ids"`
}

func (a Audience) Empty() bool { return len(a.Rooms) == 0 && len(a.UserIDs) == 0 }

func (a *Audience) addUser(id string) {
	if id == "" {
		return
	}
	for _, u := range a.UserIDs {
		if u == id {
			return
		}
	}
	a.UserIDs = append(a.UserIDs, id)
	a.Rooms = append(a.Rooms, UserRoom(id))
}

// NotificationTemplate is stamped onto every inbox entry of one fanout.
type NotificationTemplate struct {
	Type        models.NotificationType
	Title       string
	Body        string
	RelatedKind models.Kind
	RelatedID   string
	ActionURL   string
	Priority    models.Priority
}

type Fanout struct {
	TransitionID string
	Audience     Audience
	Event        Event
	Notification NotificationTemplate
}

// Dispatcher writes the durable inbox entries for a transition and then
// pushes the live event without waiting for it.
type Dispatcher struct {
	ledger      *Ledger
	broadcaster Broadcaster
	logger      *zap.Logger
	metrics     *metrics.Metrics

	wg sync.WaitGroup
}

func NewDispatcher(ledger *Ledger, broadcaster Broadcaster, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		ledger:      ledger,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     m,
	}
}

// Dispatch records one ledger entry per distinct audience user, then starts
// the live broadcast. A ledger failure is returned as a persistence error
// but the broadcast is still attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, f Fanout) error {
	var ledgerErr error
	recipients := distinct(f.Audience.UserIDs)
	if len(recipients) > 0 {
		entries := make([]models.Notification, 0, len(recipients))
		for _, id := range recipients {
			entries = append(entries, models.Notification{
				RecipientID:  id,
				TransitionID: f.TransitionID,
				Type:         f.Notification.Type,
				Title:        f.Notification.Title,
				Body:         f.Notification.Body,
				RelatedKind:  f.Notification.RelatedKind,
				RelatedID:    f.Notification.RelatedID,
				ActionURL:    f.Notification.ActionURL,
				Priority:     f.Notification.Priority,
			})
		}
		n, err := d.ledger.Record(ctx, entries)
		if err != nil {
			d.metrics.LedgerFailed()
			d.logger.Error("ledger_write_failed",
				zap.String("transition", f.TransitionID),
				zap.Int("recipients", len(recipients)),
				zap.Error(err))
			ledgerErr = err
		} else {
			d.metrics.LedgerRecorded(n)
		}
	}

	if len(f.Audience.Rooms) > 0 && d.broadcaster != nil {
		d.wg.Add(1)
		go d.broadcast(f.TransitionID, distinct(f.Audience.Rooms), f.Event)
	}
	return ledgerErr
}

func (d *Dispatcher) broadcast(transitionID string, rooms []string, ev Event) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.BroadcastFailed()
			d.logger.Debug("live_broadcast_panic",
				zap.String("transition", transitionID), zap.String("panic", fmt.Sprint(r)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()
	if err := d.broadcaster.Broadcast(ctx, rooms, ev); err != nil {
		d.metrics.BroadcastFailed()
		d.logger.Debug("live_broadcast_failed",
			zap.String("transition", transitionID),
			zap.String("event", ev.Name),
			zap.Strings("rooms", rooms),
			zap.Error(err))
	}
}

// Wait blocks until in-flight broadcasts finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func distinct(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

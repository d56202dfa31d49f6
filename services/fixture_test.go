package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/FASALGAF00R/Campuscore-backend/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	registry   *PresenceRegistry
	ledger     *Ledger
	directory  *Directory
	dispatcher *Dispatcher
	engine     *Engine
}

func newFixture(t *testing.T, broadcaster ...Broadcaster) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	logger := zap.NewNop()
	registry := NewPresenceRegistry(logger)
	ledger := NewLedger(db, 0)
	directory := NewDirectory(db)

	var b Broadcaster = registry
	if len(broadcaster) > 0 {
		b = broadcaster[0]
	}
	dispatcher := NewDispatcher(ledger, b, logger, nil)
	t.Cleanup(dispatcher.Wait)

	return &fixture{
		db:         db,
		registry:   registry,
		ledger:     ledger,
		directory:  directory,
		dispatcher: dispatcher,
		engine:     NewEngine(db, directory, dispatcher, logger),
	}
}

func (f *fixture) user(t *testing.T, role models.Role) Actor {
	t.Helper()
	u := testutil.SeedUser(t, f.db, role, true)
	return Actor{ID: u.ID, Role: u.Role}
}

func (f *fixture) createSOS(t *testing.T, student Actor) *models.SOSAlert {
	t.Helper()
	res, err := f.engine.Create(context.Background(), student, &CreateSOSPayload{
		Category:    "medical",
		Description: "twisted ankle near the library stairs",
	})
	require.NoError(t, err)
	return res.Request.(*models.SOSAlert)
}

func (f *fixture) reload(t *testing.T, kind models.Kind, id string) models.Request {
	t.Helper()
	req, err := f.engine.load(context.Background(), f.db, kind, id)
	require.NoError(t, err)
	return req
}

func (f *fixture) notificationsFor(t *testing.T, transitionID string) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, f.db.Where("transition_id = ?", transitionID).Order("recipient_id").Find(&out).Error)
	return out
}

// drain collects every event queued for the session so far.
func drain(s *Session) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}

type broadcastCall struct {
	rooms []string
	event Event
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
	err   error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, rooms []string, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{rooms: rooms, event: ev})
	return b.err
}

func (b *recordingBroadcaster) Calls() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.calls...)
}

var errTransportDown = errors.New("transport down")

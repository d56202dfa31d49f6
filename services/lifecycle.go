package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/metrics"
	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Actor is the authenticated caller of a command.
type Actor struct {
	ID   string
	Role models.Role
}

const postCommitTimeout = 10 * time.Second

type ResultCode string

const (
	ResultCreated  ResultCode = "created"
	ResultAssigned ResultCode = "assigned"
	ResultMessage  ResultCode = "message"
	ResultStatus   ResultCode = "status"
	ResultRated    ResultCode = "rated"
)

// Result is what every successful command returns. LedgerErr is set when
// the transition was applied but its inbox entries could not be written.
type Result struct {
	Request      models.Request
	Code         ResultCode
	TransitionID string
	Audience     Audience
	Message      *models.RequestMessage
	LedgerErr    error
}

type AssignInput struct {
	// AssigneeID defaults to the actor.
	AssigneeID     string        `json:"assignee_id"`
	ObservedStatus models.Status `json:"observed_status"`
}

type StatusInput struct {
	Status         models.Status `json:"status"`
	ObservedStatus models.Status `json:"observed_status"`
	Notes          string        `json:"notes"`
	Reason         string        `json:"reason"`
}

type RateInput struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// Engine applies request transitions. Each command re-reads the request,
// checks the caller and the transition table, writes with a version guard
// and hands the resulting fanout to the dispatcher.
type Engine struct {
	db         *gorm.DB
	directory  *Directory
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(db *gorm.DB, directory *Directory, dispatcher *Dispatcher, logger *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		db:         db,
		directory:  directory,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// Create stores a new pending request and notifies every active eligible
// responder.
func (e *Engine) Create(ctx context.Context, actor Actor, payload CreatePayload) (res *Result, err error) {
	if payload == nil {
		return nil, validationError("missing request body", nil)
	}
	kind := payload.Kind()
	defer func() { e.observe(kind, res, err) }()

	p, ok := policyFor(kind)
	if !ok {
		return nil, notFound("request kind")
	}
	if actor.Role != models.RoleStudent {
		return nil, notAuthorized("only students can raise a %s", strings.ToLower(p.label))
	}
	if fields := payload.check(); len(fields) > 0 {
		return nil, validationError("invalid "+strings.ToLower(p.label), fields)
	}

	category, description, priority := payload.common()
	if priority == "" {
		priority = p.defaultPriority
	}
	now := e.clock()
	req := payload.build(models.RequestBase{
		ID:          e.newID(),
		RequesterID: actor.ID,
		Category:    category,
		Description: strings.TrimSpace(description),
		Priority:    priority,
		Status:      models.StatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err := e.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, persistenceError("create request", err)
	}
	ctx, cancel := committed(ctx)
	defer cancel()

	roles := EligibleResponders(kind)
	audience := Audience{}
	for _, r := range roles {
		audience.Rooms = append(audience.Rooms, RoleRoom(r))
	}
	responders, dirErr := e.directory.ActiveUsersWithRole(ctx, roles...)
	if dirErr != nil {
		e.logger.Error("responder_lookup_failed", zap.String("kind", string(kind)), zap.String("request", req.Base().ID), zap.Error(dirErr))
	}
	audience.UserIDs = responders

	res = &Result{Request: req, Code: ResultCreated, Audience: audience}
	e.fanout(ctx, res, e.createdNotice(ctx, req))
	res.Request = redact(res.Request, actor)
	if dirErr != nil && res.LedgerErr == nil {
		res.LedgerErr = dirErr
	}
	return res, nil
}

// Assign hands a pending or assigned request to an eligible, active
// responder. The assignee defaults to the actor.
func (e *Engine) Assign(ctx context.Context, actor Actor, kind models.Kind, id string, in AssignInput) (res *Result, err error) {
	defer func() { e.observe(kind, res, err) }()

	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	if !IsEligible(kind, actor.Role) {
		return nil, notAuthorized("role %s cannot take %s requests", actor.Role, kind)
	}
	req, err := e.load(ctx, e.db, kind, id)
	if err != nil {
		return nil, err
	}
	base := req.Base()
	if in.ObservedStatus != "" && in.ObservedStatus != base.Status {
		return nil, staleState(in.ObservedStatus, base.Status)
	}
	if !statusIn(base.Status, assignableFrom) {
		return nil, invalidTransition(string(base.Status), string(models.StatusAssigned))
	}

	assigneeID := in.AssigneeID
	if assigneeID == "" {
		assigneeID = actor.ID
	}
	assignee, err := e.directory.FindByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidAssignee("user %s does not exist", assigneeID)
		}
		return nil, err
	}
	if !IsEligible(kind, assignee.Role) {
		return nil, invalidAssignee("role %s cannot handle %s requests", assignee.Role, kind)
	}
	if !assignee.IsActive {
		return nil, invalidAssignee("user %s is not active", assigneeID)
	}

	now := e.clock()
	req, err = e.compareAndSwap(ctx, e.db, req, map[string]any{
		"status":      models.StatusAssigned,
		"assignee_id": assigneeID,
		"assigned_at": now,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := committed(ctx)
	defer cancel()

	audience := Audience{}
	audience.addUser(req.Base().RequesterID)
	if assigneeID != actor.ID {
		audience.addUser(assigneeID)
	}
	res = &Result{Request: req, Code: ResultAssigned, Audience: audience}
	e.fanout(ctx, res, e.assignedNotice(req, assignee))
	res.Request = redact(res.Request, actor)
	return res, nil
}

// AppendMessage adds an entry to the request thread. A message on a request
// that is pending or assigned moves it to in-progress.
func (e *Engine) AppendMessage(ctx context.Context, actor Actor, kind models.Kind, id, text string) (res *Result, err error) {
	defer func() { e.observe(kind, res, err) }()

	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, validationError("message text is required", map[string]string{"text": "required"})
	case len(text) > maxMessageLength:
		return nil, validationError("message text is too long", map[string]string{"text": "max=2000"})
	}

	var msg *models.RequestMessage
	var req models.Request
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := e.load(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		base := current.Base()
		if base.RequesterID != actor.ID && !base.AssignedTo(actor.ID) {
			return notAuthorized("only the requester or the assignee can post messages")
		}
		if base.Status.Terminal() {
			return &Error{Code: CodeInvalidTransition, Message: "request is " + string(base.Status) + " and takes no more messages"}
		}

		now := e.clock()
		msg = &models.RequestMessage{
			ID:          e.newID(),
			RequestKind: kind,
			RequestID:   id,
			AuthorID:    actor.ID,
			AuthorRole:  actor.Role,
			Text:        text,
			CreatedAt:   now,
		}
		if err := tx.Create(msg).Error; err != nil {
			return persistenceError("append message", err)
		}

		if statusIn(base.Status, messageAdvancePolicy.from) {
			updates := map[string]any{
				"status":     messageAdvancePolicy.to,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			}
			addEntryEffects(kind, messageAdvancePolicy.to, updates, now, StatusInput{})
			err := tx.Model(models.NewRequest(kind)).
				Where("id = ? AND status IN ?", id, statusStrings(messageAdvancePolicy.from)).
				Updates(updates).Error
			if err != nil {
				return persistenceError("advance request", err)
			}
		}

		req, err = e.load(ctx, tx, kind, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := committed(ctx)
	defer cancel()

	base := req.Base()
	audience := Audience{}
	if actor.ID == base.RequesterID {
		if base.AssigneeID != nil {
			audience.addUser(*base.AssigneeID)
		}
	} else {
		audience.addUser(base.RequesterID)
	}
	res = &Result{Request: req, Code: ResultMessage, Audience: audience, Message: msg}
	e.fanout(ctx, res, e.messageNotice(req, actor))
	res.Request = redact(res.Request, actor)
	return res, nil
}

// UpdateStatus moves a request along one of its UpdateStatus edges. Only the
// assignee or an admin may do it.
func (e *Engine) UpdateStatus(ctx context.Context, actor Actor, kind models.Kind, id string, in StatusInput) (res *Result, err error) {
	defer func() { e.observe(kind, res, err) }()

	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	if in.Status == "" {
		return nil, validationError("target status is required", map[string]string{"status": "required"})
	}
	req, err := e.load(ctx, e.db, kind, id)
	if err != nil {
		return nil, err
	}
	base := req.Base()
	if !base.AssignedTo(actor.ID) && actor.Role != models.RoleAdmin {
		return nil, notAuthorized("only the assignee or an admin can change the status")
	}
	if in.ObservedStatus != "" && in.ObservedStatus != base.Status {
		return nil, staleState(in.ObservedStatus, base.Status)
	}
	if !canMove(kind, base.Status, in.Status) {
		return nil, invalidTransition(string(base.Status), string(in.Status))
	}

	now := e.clock()
	updates := map[string]any{"status": in.Status}
	addEntryEffects(kind, in.Status, updates, now, in)
	req, err = e.compareAndSwap(ctx, e.db, req, updates)
	if err != nil {
		return nil, err
	}
	ctx, cancel := committed(ctx)
	defer cancel()

	b := req.Base()
	audience := Audience{}
	audience.addUser(b.RequesterID)
	if b.AssigneeID != nil && *b.AssigneeID != actor.ID {
		audience.addUser(*b.AssigneeID)
	}
	res = &Result{Request: req, Code: ResultStatus, Audience: audience}
	e.fanout(ctx, res, e.statusNotice(req))
	res.Request = redact(res.Request, actor)
	return res, nil
}

// Rate records the requester's rating of a completed request. It succeeds
// once per request.
func (e *Engine) Rate(ctx context.Context, actor Actor, kind models.Kind, id string, in RateInput) (res *Result, err error) {
	defer func() { e.observe(kind, res, err) }()

	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	if in.Rating < minRating || in.Rating > maxRating {
		return nil, validationError("rating must be between 1 and 5", map[string]string{"rating": "range=1-5"})
	}
	in.Feedback = strings.TrimSpace(in.Feedback)
	if len(in.Feedback) > maxFeedbackLength {
		return nil, validationError("feedback is too long", map[string]string{"feedback": "max=1000"})
	}

	req, err := e.load(ctx, e.db, kind, id)
	if err != nil {
		return nil, err
	}
	base := req.Base()
	if base.RequesterID != actor.ID {
		return nil, notAuthorized("only the requester can rate a request")
	}
	if base.Status != models.StatusCompleted {
		return nil, &Error{Code: CodeInvalidTransition, Message: "only completed requests can be rated"}
	}
	if base.Rating != nil {
		return nil, ErrAlreadyRated
	}

	now := e.clock()
	tx := e.db.WithContext(ctx).
		Model(models.NewRequest(kind)).
		Where("id = ? AND status = ? AND rating IS NULL", id, models.StatusCompleted).
		Updates(map[string]any{
			"rating":     in.Rating,
			"feedback":   in.Feedback,
			"rated_at":   now,
			"updated_at": now,
		})
	if tx.Error != nil {
		return nil, persistenceError("rate request", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, ErrAlreadyRated
	}
	ctx, cancel := committed(ctx)
	defer cancel()
	if req, err = e.load(ctx, e.db, kind, id); err != nil {
		return nil, err
	}

	audience := Audience{}
	if b := req.Base(); b.AssigneeID != nil {
		audience.addUser(*b.AssigneeID)
	}
	res = &Result{Request: req, Code: ResultRated, Audience: audience}
	e.fanout(ctx, res, e.ratedNotice(req, in.Rating))
	res.Request = redact(res.Request, actor)
	return res, nil
}

// addEntryEffects adds the columns a request gains on entering status.
func addEntryEffects(kind models.Kind, status models.Status, updates map[string]any, now time.Time, in StatusInput) {
	if status.Terminal() {
		updates["resolved_at"] = now
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			updates["resolution_notes"] = notes
		}
	}
	if kind != models.KindCounseling {
		return
	}
	switch status {
	case models.StatusInProgress:
		updates["session_count"] = gorm.Expr("session_count + 1")
		updates["last_session_at"] = now
	case models.StatusDeclined:
		if reason := strings.TrimSpace(in.Reason); reason != "" {
			updates["decline_reason"] = reason
		}
	}
}

// compareAndSwap writes updates only if the stored version still matches
// the one req was read at, then returns the fresh row.
func (e *Engine) compareAndSwap(ctx context.Context, db *gorm.DB, req models.Request, updates map[string]any) (models.Request, error) {
	base := req.Base()
	kind := req.Kind()
	updates["version"] = base.Version + 1
	updates["updated_at"] = e.clock()

	tx := db.WithContext(ctx).
		Model(models.NewRequest(kind)).
		Where("id = ? AND version = ?", base.ID, base.Version).
		Updates(updates)
	if tx.Error != nil {
		return nil, persistenceError("update request", tx.Error)
	}
	fresh, err := e.load(ctx, db, kind, base.ID)
	if err != nil {
		return nil, err
	}
	if tx.RowsAffected == 0 {
		return nil, staleState(base.Status, fresh.Base().Status)
	}
	return fresh, nil
}

func (e *Engine) load(ctx context.Context, db *gorm.DB, kind models.Kind, id string) (models.Request, error) {
	req := models.NewRequest(kind)
	if req == nil {
		return nil, notFound("request kind")
	}
	err := db.WithContext(ctx).Where("id = ?", id).First(req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(string(kind) + " request")
		}
		return nil, persistenceError("load request", err)
	}
	return req, nil
}

// committed detaches work that follows a successful write from the
// caller, so a dropped client cannot skip the inbox entries.
func committed(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
}

// fanout dispatches the transition's audience and records a ledger failure
// on res without failing the command.
func (e *Engine) fanout(ctx context.Context, res *Result, notice NotificationTemplate) {
	p, _ := policyFor(res.Request.Kind())
	base := res.Request.Base()
	res.TransitionID = e.newID()
	if res.Audience.Empty() {
		return
	}

	rooms := append([]string(nil), res.Audience.Rooms...)
	ev := Event{
		Name: p.eventName(string(res.Code)),
		Payload: EventPayload{
			RequestID:     base.ID,
			Type:          string(res.Request.Kind()),
			Status:        base.Status,
			AudienceRooms: rooms,
			Message:       notice.Body,
		},
	}
	err := e.dispatcher.Dispatch(ctx, Fanout{
		TransitionID: res.TransitionID,
		Audience:     res.Audience,
		Event:        ev,
		Notification: notice,
	})
	if err != nil {
		res.LedgerErr = err
	}
}

func (e *Engine) observe(kind models.Kind, res *Result, err error) {
	if err != nil {
		code := CodeOf(err)
		e.metrics.Rejected(string(kind), string(code))
		if code == CodePersistence {
			e.logger.Error("request_command_failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		return
	}
	if res != nil {
		e.metrics.Transition(string(kind), string(res.Code))
		e.logger.Debug("request_transition",
			zap.String("kind", string(kind)),
			zap.String("request", res.Request.Base().ID),
			zap.String("code", string(res.Code)),
			zap.String("status", string(res.Request.Base().Status)),
			zap.Int("audience", len(res.Audience.UserIDs)))
	}
}

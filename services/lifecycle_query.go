package services

import (
	"context"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"gorm.io/gorm"
)

const (
	defaultRequestPageSize = 20
	maxRequestPageSize     = 100

	priorityOrder = "CASE priority WHEN 'critical' THEN 4 WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC"
)

type ListFilter struct {
	Statuses   []models.Status
	Priority   models.Priority
	Category   string
	AssigneeID string
	Limit      int
	Offset     int
}

type RequestPage struct {
	Items  []models.Request `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type countRow struct {
	Bucket string
	Total  int64
}

type Stats struct {
	Kind          models.Kind      `json:"kind"`
	Total         int64            `json:"total"`
	ByStatus      map[string]int64 `json:"by_status"`
	ByCategory    map[string]int64 `json:"by_category"`
	ByPriority    map[string]int64 `json:"by_priority"`
	AverageRating *float64         `json:"average_rating,omitempty"`
}

// canView: the requester, the assignee and every eligible responder.
func canView(kind models.Kind, actor Actor, base *models.RequestBase) bool {
	return base.RequesterID == actor.ID || base.AssignedTo(actor.ID) || IsEligible(kind, actor.Role)
}

// redact hides who raised an anonymous counseling request from everyone
// but the requester and admins.
func redact(req models.Request, actor Actor) models.Request {
	if !hidesRequester(req, actor) {
		return req
	}
	req.Base().RequesterID = ""
	return req
}

func hidesRequester(req models.Request, actor Actor) bool {
	c, ok := req.(*models.CounselingRequest)
	return ok && c.IsAnonymous && c.RequesterID != actor.ID && actor.Role != models.RoleAdmin
}

// Get returns one request if the actor may see it.
func (e *Engine) Get(ctx context.Context, actor Actor, kind models.Kind, id string) (models.Request, error) {
	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	req, err := e.load(ctx, e.db, kind, id)
	if err != nil {
		return nil, err
	}
	if !canView(kind, actor, req.Base()) {
		return nil, notAuthorized("not allowed to view this request")
	}
	return redact(req, actor), nil
}

// List is the responder queue: every request of kind matching the filter,
// most urgent first.
func (e *Engine) List(ctx context.Context, actor Actor, kind models.Kind, f ListFilter) (*RequestPage, error) {
	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	if !IsEligible(kind, actor.Role) {
		return nil, notAuthorized("role %s cannot list %s requests", actor.Role, kind)
	}
	return e.page(ctx, actor, kind, e.db.WithContext(ctx).Model(models.NewRequest(kind)), f)
}

// ListMine returns the actor's own requests of kind.
func (e *Engine) ListMine(ctx context.Context, actor Actor, kind models.Kind, f ListFilter) (*RequestPage, error) {
	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	q := e.db.WithContext(ctx).Model(models.NewRequest(kind)).Where("requester_id = ?", actor.ID)
	return e.page(ctx, actor, kind, q, f)
}

func (e *Engine) page(ctx context.Context, actor Actor, kind models.Kind, q *gorm.DB, f ListFilter) (*RequestPage, error) {
	if f.Limit <= 0 {
		f.Limit = defaultRequestPageSize
	}
	if f.Limit > maxRequestPageSize {
		f.Limit = maxRequestPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(f.Statuses))
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.AssigneeID != "" {
		q = q.Where("assignee_id = ?", f.AssigneeID)
	}

	page := &RequestPage{Items: []models.Request{}, Limit: f.Limit, Offset: f.Offset}
	if err := q.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return nil, persistenceError("count requests", err)
	}
	q = q.Order(priorityOrder).Order("created_at DESC").Limit(f.Limit).Offset(f.Offset)

	var (
		items []models.Request
		err   error
	)
	switch kind {
	case models.KindSOS:
		items, err = findAs[models.SOSAlert](q)
	case models.KindEmergencyAssist:
		items, err = findAs[models.EmergencyAssist](q)
	case models.KindCounseling:
		items, err = findAs[models.CounselingRequest](q)
	}
	if err != nil {
		return nil, persistenceError("list requests", err)
	}
	for _, r := range items {
		page.Items = append(page.Items, redact(r, actor))
	}
	return page, nil
}

// findAs loads rows of the concrete variant T and returns them as Requests.
func findAs[T any, P interface {
	*T
	models.Request
}](q *gorm.DB) ([]models.Request, error) {
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Request, len(rows))
	for i := range rows {
		out[i] = P(&rows[i])
	}
	return out, nil
}

// Messages returns the request thread, oldest first. Entries written by an
// anonymous requester carry no author id for other viewers.
func (e *Engine) Messages(ctx context.Context, actor Actor, kind models.Kind, id string) ([]models.RequestMessage, error) {
	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	req, err := e.load(ctx, e.db, kind, id)
	if err != nil {
		return nil, err
	}
	if !canView(kind, actor, req.Base()) {
		return nil, notAuthorized("not allowed to view this request")
	}
	msgs := []models.RequestMessage{}
	err = e.db.WithContext(ctx).
		Where("request_kind = ? AND request_id = ?", kind, id).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, persistenceError("list messages", err)
	}
	if hidesRequester(req, actor) {
		requesterID := req.Base().RequesterID
		for i := range msgs {
			if msgs[i].AuthorID == requesterID {
				msgs[i].AuthorID = ""
			}
		}
	}
	return msgs, nil
}

// Stats summarises every request of kind. Admins only.
func (e *Engine) Stats(ctx context.Context, actor Actor, kind models.Kind) (*Stats, error) {
	if _, ok := policyFor(kind); !ok {
		return nil, notFound("request kind")
	}
	if actor.Role != models.RoleAdmin {
		return nil, notAuthorized("only admins can view statistics")
	}

	st := &Stats{Kind: kind}
	base := func() *gorm.DB { return e.db.WithContext(ctx).Model(models.NewRequest(kind)) }
	if err := base().Count(&st.Total).Error; err != nil {
		return nil, persistenceError("count requests", err)
	}

	var err error
	if st.ByStatus, err = e.countBy(base(), "status"); err != nil {
		return nil, err
	}
	if st.ByCategory, err = e.countBy(base(), "category"); err != nil {
		return nil, err
	}
	if st.ByPriority, err = e.countBy(base(), "priority"); err != nil {
		return nil, err
	}

	var avg struct{ Avg *float64 }
	err = base().Select("AVG(rating) AS avg").Where("rating IS NOT NULL").Scan(&avg).Error
	if err != nil {
		return nil, persistenceError("average rating", err)
	}
	st.AverageRating = avg.Avg
	return st, nil
}

func (e *Engine) countBy(q *gorm.DB, column string) (map[string]int64, error) {
	var rows []countRow
	err := q.Select(column + " AS bucket, COUNT(*) AS total").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, persistenceError("count by "+column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Bucket] = r.Total
	}
	return out, nil
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"go.uber.org/zap"
)

func actionURL(kind models.Kind, id string) string {
	return fmt.Sprintf("/requests/%s/%s", kind, id)
}

func (e *Engine) notice(req models.Request, title, body string) NotificationTemplate {
	p, _ := policyFor(req.Kind())
	base := req.Base()
	return NotificationTemplate{
		Type:        p.notification,
		Title:       title,
		Body:        body,
		RelatedKind: req.Kind(),
		RelatedID:   base.ID,
		ActionURL:   actionURL(req.Kind(), base.ID),
		Priority:    base.Priority,
	}
}

// requesterName hides the requester of an anonymous counseling request.
func (e *Engine) requesterName(ctx context.Context, req models.Request) string {
	if c, ok := req.(*models.CounselingRequest); ok && c.IsAnonymous {
		return "An anonymous student"
	}
	user, err := e.directory.FindByID(ctx, req.Base().RequesterID)
	if err != nil {
		e.logger.Debug("requester_lookup_failed", zap.String("request", req.Base().ID), zap.Error(err))
		return "A student"
	}
	return user.FullName()
}

func (e *Engine) createdNotice(ctx context.Context, req models.Request) NotificationTemplate {
	base := req.Base()
	name := e.requesterName(ctx, req)

	var title, body string
	switch req.Kind() {
	case models.KindSOS:
		title = "SOS Alert: " + base.Category
		body = name + " needs immediate assistance"
	case models.KindEmergencyAssist:
		title = "Emergency Assist: " + base.Category
		body = fmt.Sprintf("%s needs help with %s", name, base.Category)
	default:
		title = "New counseling request: " + base.Category
		body = fmt.Sprintf("%s requested %s counseling", name, base.Category)
	}
	if base.Priority.Rank() >= models.PriorityHigh.Rank() {
		title = fmt.Sprintf("[%s] %s", strings.ToUpper(string(base.Priority)), title)
	}
	return e.notice(req, title, body)
}

func (e *Engine) assignedNotice(req models.Request, assignee *models.User) NotificationTemplate {
	p, _ := policyFor(req.Kind())
	return e.notice(req,
		p.label+" assigned",
		fmt.Sprintf("%s has been assigned to this %s", assignee.FullName(), strings.ToLower(p.label)))
}

func (e *Engine) messageNotice(req models.Request, author Actor) NotificationTemplate {
	p, _ := policyFor(req.Kind())
	from := "the responder"
	if author.ID == req.Base().RequesterID {
		from = "the requester"
	}
	return e.notice(req,
		"New message",
		fmt.Sprintf("New message from %s on a %s", from, strings.ToLower(p.label)))
}

func (e *Engine) statusNotice(req models.Request) NotificationTemplate {
	p, _ := policyFor(req.Kind())
	status := req.Base().Status
	return e.notice(req,
		p.label+" update",
		fmt.Sprintf("The %s status has been updated to %s", strings.ToLower(p.label), status))
}

func (e *Engine) ratedNotice(req models.Request, rating int) NotificationTemplate {
	p, _ := policyFor(req.Kind())
	return e.notice(req,
		p.label+" rated",
		fmt.Sprintf("The requester rated your help %d out of %d", rating, maxRating))
}

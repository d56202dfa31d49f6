package services

import (
	"context"
	"sync"
	"testing"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/FASALGAF00R/Campuscore-backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreate_SOSNotifiesActiveResponders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	student := f.user(t, models.RoleStudent)
	faculty1 := f.user(t, models.RoleFaculty)
	faculty2 := f.user(t, models.RoleFaculty)
	admin := f.user(t, models.RoleAdmin)
	testutil.SeedUser(t, f.db, models.RoleFaculty, false)
	f.user(t, models.RoleStaff)

	res, err := f.engine.Create(ctx, student, &CreateSOSPayload{
		Category:    "medical",
		Description: "fainted in lecture hall B",
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	sos := res.Request.(*models.SOSAlert)
	assert.Equal(t, models.StatusPending, sos.Status)
	assert.Equal(t, models.PriorityHigh, sos.Priority)
	assert.Equal(t, student.ID, sos.RequesterID)
	assert.Nil(t, sos.AssigneeID)
	assert.Equal(t, ResultCreated, res.Code)
	assert.NoError(t, res.LedgerErr)
	assert.ElementsMatch(t, []string{"role:faculty", "role:admin"}, res.Audience.Rooms)
	assert.ElementsMatch(t, []string{faculty1.ID, faculty2.ID, admin.ID}, res.Audience.UserIDs)

	entries := f.notificationsFor(t, res.TransitionID)
	require.Len(t, entries, 3)
	for _, n := range entries {
		assert.Equal(t, models.NotificationSOSAlert, n.Type)
		assert.Equal(t, sos.ID, n.RelatedID)
		assert.Equal(t, models.KindSOS, n.RelatedKind)
		assert.False(t, n.IsRead)
		assert.Contains(t, n.Title, "medical")
	}
	assert.Equal(t, 0, f.registry.SessionCount())
}

func TestCreate_RoleRoomReceivesLiveEvent(t *testing.T) {
	f := newFixture(t)
	student := f.user(t, models.RoleStudent)
	counselor := f.user(t, models.RoleCounselor)
	faculty := f.user(t, models.RoleFaculty)

	counselorSession := f.registry.Connect(counselor.ID, counselor.Role)
	facultySession := f.registry.Connect(faculty.ID, faculty.Role)

	res, err := f.engine.Create(context.Background(), student, &CreateCounselingPayload{
		Category:    "career",
		Title:       "Internship choices",
		Description: "need help deciding between two offers",
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	events := drain(counselorSession)
	require.Len(t, events, 1)
	assert.Equal(t, "counseling:created", events[0].Name)
	payload := events[0].Payload.(EventPayload)
	assert.Equal(t, res.Request.Base().ID, payload.RequestID)
	assert.Equal(t, "counseling", payload.Type)
	assert.Equal(t, models.StatusPending, payload.Status)
	assert.NotEmpty(t, payload.Message)

	assert.Empty(t, drain(facultySession))
}

func TestCreate_ValidationPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	f.user(t, models.RoleStaff)

	cases := []struct {
		name    string
		payload CreatePayload
		field   string
	}{
		{"missing category", &CreateAssistPayload{Title: "Lost", Description: "where is B12", Consent: true}, "category"},
		{"consent false", &CreateAssistPayload{Category: "navigation", Title: "Lost", Description: "where is B12"}, "consent"},
		{"unknown category", &CreateAssistPayload{Category: "medical", Title: "Lost", Description: "where is B12", Consent: true}, "category"},
		{"priority outside kind", &CreateAssistPayload{Category: "forms", Title: "Form", Description: "x", Priority: models.PriorityCritical, Consent: true}, "priority"},
		{"missing title", &CreateAssistPayload{Category: "forms", Description: "x", Consent: true}, "title"},
		{"blank title", &CreateAssistPayload{Category: "forms", Title: "   ", Description: "x", Consent: true}, "title"},
		{"blank description", &CreateAssistPayload{Category: "forms", Title: "Form", Description: " \t\n ", Consent: true}, "description"},
		{"blank sos description", &CreateSOSPayload{Category: "medical", Description: "   "}, "description"},
		{"blank counseling title", &CreateCounselingPayload{Category: "career", Title: "  ", Description: "need advice"}, "title"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.engine.Create(ctx, student, tc.payload)
			require.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, res)

			var svcErr *Error
			require.ErrorAs(t, err, &svcErr)
			assert.Contains(t, svcErr.Fields, tc.field)
		})
	}

	for _, model := range []any{&models.EmergencyAssist{}, &models.SOSAlert{}, &models.CounselingRequest{}, &models.Notification{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Count(&count).Error)
		assert.Zero(t, count, "%T", model)
	}
}

func TestCreate_ClientHangupAfterCommitStillRecordsInbox(t *testing.T) {
	f := newFixture(t)
	student := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	admin := f.user(t, models.RoleAdmin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.db.Callback().Create().After("gorm:commit_or_rollback_transaction").
		Register("test:hangup_after_insert", func(tx *gorm.DB) {
			if tx.Statement.Table == "sos_alerts" {
				cancel()
			}
		}))

	res, err := f.engine.Create(ctx, student, &CreateSOSPayload{
		Category:    "safety",
		Description: "someone following me near the parking lot",
	})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.NoError(t, res.LedgerErr)
	assert.ElementsMatch(t, []string{faculty.ID, admin.ID}, res.Audience.UserIDs)

	entries := f.notificationsFor(t, res.TransitionID)
	assert.Len(t, entries, 2)
}

func TestAnonymousCounseling_CommandsAndThreadHideRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	counselor := f.user(t, models.RoleCounselor)
	admin := f.user(t, models.RoleAdmin)

	created, err := f.engine.Create(ctx, student, &CreateCounselingPayload{
		Category:    "personal",
		Title:       "Family trouble",
		Description: "hard to focus lately",
		IsAnonymous: true,
	})
	require.NoError(t, err)
	id := created.Request.Base().ID
	assert.Equal(t, student.ID, created.Request.Base().RequesterID, "requester sees itself")

	assigned, err := f.engine.Assign(ctx, counselor, models.KindCounseling, id, AssignInput{})
	require.NoError(t, err)
	assert.Empty(t, assigned.Request.Base().RequesterID)

	_, err = f.engine.AppendMessage(ctx, student, models.KindCounseling, id, "thanks for taking this")
	require.NoError(t, err)
	reply, err := f.engine.AppendMessage(ctx, counselor, models.KindCounseling, id, "happy to help")
	require.NoError(t, err)
	assert.Empty(t, reply.Request.Base().RequesterID)

	done, err := f.engine.UpdateStatus(ctx, counselor, models.KindCounseling, id, StatusInput{Status: models.StatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, done.Request.Base().RequesterID)

	authors := func(viewer Actor) map[string]string {
		thread, err := f.engine.Messages(ctx, viewer, models.KindCounseling, id)
		require.NoError(t, err)
		require.Len(t, thread, 2)
		out := make(map[string]string, len(thread))
		for _, m := range thread {
			out[m.Text] = m.AuthorID
		}
		return out
	}

	seen := authors(counselor)
	assert.Empty(t, seen["thanks for taking this"])
	assert.Equal(t, counselor.ID, seen["happy to help"])
	for _, viewer := range []Actor{student, admin} {
		assert.Equal(t, student.ID, authors(viewer)["thanks for taking this"])
	}

	stored := f.reload(t, models.KindCounseling, id)
	assert.Equal(t, student.ID, stored.Base().RequesterID, "redaction never reaches the row")
}

func TestCreate_OnlyStudents(t *testing.T) {
	f := newFixture(t)
	faculty := f.user(t, models.RoleFaculty)

	_, err := f.engine.Create(context.Background(), faculty, &CreateSOSPayload{Category: "safety", Description: "x"})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAssign_SelfAssignNotifiesRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)
	f.dispatcher.Wait()

	studentSession := f.registry.Connect(student.ID, student.Role)

	res, err := f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	require.NoError(t, err)
	f.dispatcher.Wait()

	b := res.Request.Base()
	assert.Equal(t, models.StatusAssigned, b.Status)
	require.NotNil(t, b.AssigneeID)
	assert.Equal(t, faculty.ID, *b.AssigneeID)
	assert.NotNil(t, b.AssignedAt)
	assert.Equal(t, 2, b.Version)
	assert.Equal(t, []string{student.ID}, res.Audience.UserIDs)

	events := drain(studentSession)
	require.Len(t, events, 1)
	assert.Equal(t, "sos:assigned", events[0].Name)
	assert.Equal(t, models.StatusAssigned, events[0].Payload.(EventPayload).Status)

	entries := f.notificationsFor(t, res.TransitionID)
	require.Len(t, entries, 1)
	assert.Equal(t, student.ID, entries[0].RecipientID)
}

func TestAssign_ByAdminNotifiesAssigneeToo(t *testing.T) {
	f := newFixture(t)
	student := f.user(t, models.RoleStudent)
	admin := f.user(t, models.RoleAdmin)
	faculty := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)

	res, err := f.engine.Assign(context.Background(), admin, models.KindSOS, sos.ID, AssignInput{AssigneeID: faculty.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{student.ID, faculty.ID}, res.Audience.UserIDs)
	assert.Len(t, f.notificationsFor(t, res.TransitionID), 2)
}

func TestAssign_Reassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	admin := f.user(t, models.RoleAdmin)
	faculty1 := f.user(t, models.RoleFaculty)
	faculty2 := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)

	_, err := f.engine.Assign(ctx, admin, models.KindSOS, sos.ID, AssignInput{AssigneeID: faculty1.ID})
	require.NoError(t, err)
	res, err := f.engine.Assign(ctx, admin, models.KindSOS, sos.ID, AssignInput{AssigneeID: faculty2.ID, ObservedStatus: models.StatusAssigned})
	require.NoError(t, err)

	b := res.Request.Base()
	assert.Equal(t, models.StatusAssigned, b.Status)
	assert.Equal(t, faculty2.ID, *b.AssigneeID)
	assert.Equal(t, 3, b.Version)
}

func TestAssign_InvalidAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	admin := f.user(t, models.RoleAdmin)
	staff := f.user(t, models.RoleStaff)
	inactive := testutil.SeedUser(t, f.db, models.RoleFaculty, false)
	sos := f.createSOS(t, student)

	for name, assignee := range map[string]string{
		"wrong role": staff.ID,
		"inactive":   inactive.ID,
		"unknown":    "no-such-user",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Assign(ctx, admin, models.KindSOS, sos.ID, AssignInput{AssigneeID: assignee})
			assert.ErrorIs(t, err, ErrInvalidAssignee)
		})
	}
	assert.Equal(t, models.StatusPending, f.reload(t, models.KindSOS, sos.ID).Base().Status)
}

func TestAssign_IneligibleActor(t *testing.T) {
	f := newFixture(t)
	student := f.user(t, models.RoleStudent)
	counselor := f.user(t, models.RoleCounselor)
	sos := f.createSOS(t, student)

	_, err := f.engine.Assign(context.Background(), counselor, models.KindSOS, sos.ID, AssignInput{})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAppendMessage_AdvancesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)

	_, err := f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	require.NoError(t, err)

	first, err := f.engine.AppendMessage(ctx, faculty, models.KindSOS, sos.ID, "On my way, stay where you are")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, first.Request.Base().Status)
	assert.Equal(t, 3, first.Request.Base().Version)
	require.NotNil(t, first.Message)
	assert.Equal(t, models.RoleFaculty, first.Message.AuthorRole)
	assert.Equal(t, []string{student.ID}, first.Audience.UserIDs)

	second, err := f.engine.AppendMessage(ctx, student, models.KindSOS, sos.ID, "ok thanks")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, second.Request.Base().Status)
	assert.Equal(t, 3, second.Request.Base().Version)
	assert.Equal(t, []string{faculty.ID}, second.Audience.UserIDs)

	msgs, err := f.engine.Messages(ctx, student, models.KindSOS, sos.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "On my way, stay where you are", msgs[0].Text)
	assert.Equal(t, faculty.ID, msgs[0].AuthorID)
	assert.Equal(t, "ok thanks", msgs[1].Text)
}

func TestAppendMessage_PendingWithoutAssigneeHasEmptyAudience(t *testing.T) {
	f := newFixture(t)
	student := f.user(t, models.RoleStudent)
	sos := f.createSOS(t, student)

	res, err := f.engine.AppendMessage(context.Background(), student, models.KindSOS, sos.ID, "please hurry")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, res.Request.Base().Status)
	assert.True(t, res.Audience.Empty())
	assert.Empty(t, f.notificationsFor(t, res.TransitionID))
}

func TestAppendMessage_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	other := f.user(t, models.RoleFaculty)
	admin := f.user(t, models.RoleAdmin)
	sos := f.createSOS(t, student)

	_, err := f.engine.AppendMessage(ctx, student, models.KindSOS, sos.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.AppendMessage(ctx, other, models.KindSOS, sos.ID, "hello")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	require.NoError(t, err)
	_, err = f.engine.UpdateStatus(ctx, admin, models.KindSOS, sos.ID, StatusInput{Status: models.StatusCancelled})
	require.NoError(t, err)

	_, err = f.engine.AppendMessage(ctx, student, models.KindSOS, sos.ID, "anyone?")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	msgs, err := f.engine.Messages(ctx, student, models.KindSOS, sos.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestUpdateStatus_NotAssigneeNotAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	staff1 := f.user(t, models.RoleStaff)
	staff2 := f.user(t, models.RoleStaff)

	created, err := f.engine.Create(ctx, student, &CreateAssistPayload{
		Category:    "navigation",
		Title:       "Find exam hall",
		Description: "cannot find hall 4",
		Consent:     true,
	})
	require.NoError(t, err)
	id := created.Request.Base().ID
	assert.Equal(t, models.PriorityMedium, created.Request.Base().Priority)

	_, err = f.engine.Assign(ctx, staff1, models.KindEmergencyAssist, id, AssignInput{})
	require.NoError(t, err)

	_, err = f.engine.UpdateStatus(ctx, staff2, models.KindEmergencyAssist, id, StatusInput{Status: models.StatusCompleted})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, models.StatusAssigned, f.reload(t, models.KindEmergencyAssist, id).Base().Status)
}

func TestUpdateStatus_IllegalEdgesLeaveStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	admin := f.user(t, models.RoleAdmin)
	faculty := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)

	for _, target := range []models.Status{models.StatusCompleted, models.StatusInProgress, models.StatusAssigned, models.StatusDeclined, models.StatusPending} {
		_, err := f.engine.UpdateStatus(ctx, admin, models.KindSOS, sos.ID, StatusInput{Status: target})
		assert.ErrorIs(t, err, ErrInvalidTransition, "pending -> %s", target)
	}
	assert.Equal(t, models.StatusPending, f.reload(t, models.KindSOS, sos.ID).Base().Status)

	_, err := f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	require.NoError(t, err)
	_, err = f.engine.UpdateStatus(ctx, faculty, models.KindSOS, sos.ID, StatusInput{Status: models.StatusInProgress})
	require.NoError(t, err)
	done, err := f.engine.UpdateStatus(ctx, faculty, models.KindSOS, sos.ID, StatusInput{Status: models.StatusCompleted, Notes: "escorted to clinic"})
	require.NoError(t, err)
	b := done.Request.Base()
	assert.Equal(t, models.StatusCompleted, b.Status)
	assert.NotNil(t, b.ResolvedAt)
	assert.Equal(t, "escorted to clinic", b.ResolutionNotes)

	_, err = f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.engine.UpdateStatus(ctx, admin, models.KindSOS, sos.ID, StatusInput{Status: models.StatusCancelled})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusCompleted, f.reload(t, models.KindSOS, sos.ID).Base().Status)
}

func TestUpdateStatus_StaleObservedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)

	_, err := f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	require.NoError(t, err)

	_, err = f.engine.UpdateStatus(ctx, faculty, models.KindSOS, sos.ID, StatusInput{
		Status:         models.StatusRejected,
		ObservedStatus: models.StatusPending,
	})
	assert.ErrorIs(t, err, ErrStaleState)
	assert.Equal(t, models.StatusAssigned, f.reload(t, models.KindSOS, sos.ID).Base().Status)
}

func TestUpdateStatus_ConcurrentWritersOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	admin := f.user(t, models.RoleAdmin)
	sos := f.createSOS(t, student)
	_, err := f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	require.NoError(t, err)

	type outcome struct {
		target models.Status
		err    error
	}
	attempts := []struct {
		actor  Actor
		target models.Status
	}{
		{faculty, models.StatusInProgress},
		{admin, models.StatusCancelled},
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan outcome, len(attempts))
	)
	for _, a := range attempts {
		wg.Add(1)
		go func(actor Actor, target models.Status) {
			defer wg.Done()
			<-start
			_, err := f.engine.UpdateStatus(ctx, actor, models.KindSOS, sos.ID, StatusInput{
				Status:         target,
				ObservedStatus: models.StatusAssigned,
			})
			results <- outcome{target: target, err: err}
		}(a.actor, a.target)
	}
	close(start)
	wg.Wait()
	close(results)

	var winners []models.Status
	var stale int
	for r := range results {
		if r.err == nil {
			winners = append(winners, r.target)
			continue
		}
		assert.ErrorIs(t, r.err, ErrStaleState)
		stale++
	}
	require.Len(t, winners, 1)
	assert.Equal(t, 1, stale)
	assert.Equal(t, winners[0], f.reload(t, models.KindSOS, sos.ID).Base().Status)
}

func TestRate_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)

	_, err := f.engine.Rate(ctx, student, models.KindSOS, sos.ID, RateInput{Rating: 5})
	assert.ErrorIs(t, err, ErrInvalidTransition, "not completed yet")

	_, err = f.engine.Assign(ctx, faculty, models.KindSOS, sos.ID, AssignInput{})
	require.NoError(t, err)
	_, err = f.engine.AppendMessage(ctx, faculty, models.KindSOS, sos.ID, "handled")
	require.NoError(t, err)
	_, err = f.engine.UpdateStatus(ctx, faculty, models.KindSOS, sos.ID, StatusInput{Status: models.StatusCompleted})
	require.NoError(t, err)

	_, err = f.engine.Rate(ctx, faculty, models.KindSOS, sos.ID, RateInput{Rating: 5})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.engine.Rate(ctx, student, models.KindSOS, sos.ID, RateInput{Rating: 6})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.engine.Rate(ctx, student, models.KindSOS, sos.ID, RateInput{Rating: 0})
	assert.ErrorIs(t, err, ErrValidation)

	res, err := f.engine.Rate(ctx, student, models.KindSOS, sos.ID, RateInput{Rating: 5, Feedback: "great"})
	require.NoError(t, err)
	assert.Equal(t, []string{faculty.ID}, res.Audience.UserIDs)

	_, err = f.engine.Rate(ctx, student, models.KindSOS, sos.ID, RateInput{Rating: 1, Feedback: "bad"})
	assert.ErrorIs(t, err, ErrAlreadyRated)

	b := f.reload(t, models.KindSOS, sos.ID).Base()
	require.NotNil(t, b.Rating)
	assert.Equal(t, 5, *b.Rating)
	assert.Equal(t, "great", b.Feedback)
	assert.NotNil(t, b.RatedAt)
}

func TestCounseling_SessionsAndDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	counselor := f.user(t, models.RoleCounselor)

	res, err := f.engine.Create(ctx, student, &CreateCounselingPayload{
		Category:    "mental-health",
		Title:       "Exam stress",
		Description: "cannot sleep before finals",
		Priority:    models.PriorityUrgent,
		IsAnonymous: true,
	})
	require.NoError(t, err)
	id := res.Request.Base().ID

	got, err := f.engine.Get(ctx, counselor, models.KindCounseling, id)
	require.NoError(t, err)
	assert.Empty(t, got.Base().RequesterID, "anonymous requester hidden from responders")

	mine, err := f.engine.Get(ctx, student, models.KindCounseling, id)
	require.NoError(t, err)
	assert.Equal(t, student.ID, mine.Base().RequesterID)

	_, err = f.engine.Assign(ctx, counselor, models.KindCounseling, id, AssignInput{})
	require.NoError(t, err)
	msg, err := f.engine.AppendMessage(ctx, counselor, models.KindCounseling, id, "Let's meet tomorrow at 10")
	require.NoError(t, err)
	c := msg.Request.(*models.CounselingRequest)
	assert.Equal(t, models.StatusInProgress, c.Status)
	assert.Equal(t, 1, c.SessionCount)
	assert.NotNil(t, c.LastSessionAt)

	second, err := f.engine.Create(ctx, student, &CreateCounselingPayload{
		Category: "career", Title: "CV review", Description: "please review my CV",
	})
	require.NoError(t, err)
	secondID := second.Request.Base().ID
	_, err = f.engine.Assign(ctx, counselor, models.KindCounseling, secondID, AssignInput{})
	require.NoError(t, err)
	declined, err := f.engine.UpdateStatus(ctx, counselor, models.KindCounseling, secondID, StatusInput{
		Status: models.StatusDeclined,
		Reason: "career office handles CV reviews",
	})
	require.NoError(t, err)
	d := declined.Request.(*models.CounselingRequest)
	assert.Equal(t, models.StatusDeclined, d.Status)
	assert.Equal(t, "career office handles CV reviews", d.DeclineReason)
	assert.NotNil(t, d.ResolvedAt)

	_, err = f.engine.UpdateStatus(ctx, counselor, models.KindCounseling, secondID, StatusInput{Status: models.StatusRejected})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	otherStudent := f.user(t, models.RoleStudent)
	staff := f.user(t, models.RoleStaff)
	faculty := f.user(t, models.RoleFaculty)
	sos := f.createSOS(t, student)

	_, err := f.engine.Get(ctx, student, models.KindSOS, sos.ID)
	assert.NoError(t, err)
	_, err = f.engine.Get(ctx, faculty, models.KindSOS, sos.ID)
	assert.NoError(t, err)
	_, err = f.engine.Get(ctx, otherStudent, models.KindSOS, sos.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.engine.Get(ctx, staff, models.KindSOS, sos.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.engine.Get(ctx, student, models.KindSOS, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	other := f.user(t, models.RoleStudent)
	faculty := f.user(t, models.RoleFaculty)
	admin := f.user(t, models.RoleAdmin)

	low, err := f.engine.Create(ctx, student, &CreateSOSPayload{Category: "other", Description: "minor", Priority: models.PriorityLow})
	require.NoError(t, err)
	critical, err := f.engine.Create(ctx, other, &CreateSOSPayload{Category: "disaster", Description: "flooding", Priority: models.PriorityCritical})
	require.NoError(t, err)
	_, err = f.engine.Create(ctx, student, &CreateSOSPayload{Category: "medical", Description: "dizzy"})
	require.NoError(t, err)
	_, err = f.engine.Assign(ctx, faculty, models.KindSOS, low.Request.Base().ID, AssignInput{})
	require.NoError(t, err)

	page, err := f.engine.List(ctx, faculty, models.KindSOS, ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, critical.Request.Base().ID, page.Items[0].Base().ID)

	assigned, err := f.engine.List(ctx, faculty, models.KindSOS, ListFilter{AssigneeID: faculty.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, assigned.Total)

	pending, err := f.engine.List(ctx, faculty, models.KindSOS, ListFilter{Statuses: []models.Status{models.StatusPending}, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending.Total)
	assert.Len(t, pending.Items, 1)

	_, err = f.engine.List(ctx, student, models.KindSOS, ListFilter{})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	mine, err := f.engine.ListMine(ctx, student, models.KindSOS, ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, mine.Total)

	stats, err := f.engine.Stats(ctx, admin, models.KindSOS)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.ByStatus["pending"])
	assert.EqualValues(t, 1, stats.ByStatus["assigned"])
	assert.EqualValues(t, 1, stats.ByCategory["disaster"])
	assert.EqualValues(t, 1, stats.ByPriority["high"])
	assert.Nil(t, stats.AverageRating)

	_, err = f.engine.Stats(ctx, faculty, models.KindSOS)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestLedgerCountMatchesAudienceWhenBroadcastFails(t *testing.T) {
	b := &recordingBroadcaster{err: errTransportDown}
	f := newFixture(t, b)
	student := f.user(t, models.RoleStudent)
	for i := 0; i < 4; i++ {
		f.user(t, models.RoleStaff)
	}
	f.user(t, models.RoleAdmin)

	res, err := f.engine.Create(context.Background(), student, &CreateAssistPayload{
		Category: "facilities", Title: "Broken lift", Description: "lift stuck", Consent: true,
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Len(t, res.Audience.UserIDs, 5)
	assert.Len(t, f.notificationsFor(t, res.TransitionID), len(res.Audience.UserIDs))
	require.Len(t, b.Calls(), 1)
	assert.Equal(t, "emergency:created", b.Calls()[0].event.Name)
}

func TestLedgerFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, models.RoleStudent)
	f.user(t, models.RoleFaculty)
	require.NoError(t, f.db.Migrator().DropTable(&models.Notification{}))

	res, err := f.engine.Create(ctx, student, &CreateSOSPayload{Category: "safety", Description: "suspicious person"})
	require.NoError(t, err)
	assert.ErrorIs(t, res.LedgerErr, ErrPersistence)

	stored := f.reload(t, models.KindSOS, res.Request.Base().ID)
	assert.Equal(t, models.StatusPending, stored.Base().Status)
}

package calendar

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/repos/testutil"
	"github.com/prepcoach/backend/internal/types"
)

func newService(conn *gorm.DB, startHour int) Service {
	log := logger.Nop()
	return New(conn,
		repos.NewPlanRepo(conn, log),
		repos.NewTaskRepo(conn, log),
		repos.NewCalendarEventRepo(conn, log),
		startHour, log)
}

func TestProjectBuildsTimedEvents(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 1, 5)
	date := types.DateOnly(time.Now().UTC()).AddDate(0, 0, 1)
	_, day := testutil.SeedWeekDay(t, conn, plan.ID, 1, date)
	task := testutil.SeedTask(t, conn, plan, day.ID, date, 45)

	events, err := newService(conn, DefaultStartHour).Project(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	e := events[0]
	if e.TaskID != task.ID {
		t.Errorf("task id = %s", e.TaskID)
	}
	wantStart := time.Date(date.Year(), date.Month(), date.Day(), DefaultStartHour, 0, 0, 0, time.UTC)
	if !e.Start.Equal(wantStart) {
		t.Errorf("start = %s, want %s", e.Start, wantStart)
	}
	if !e.End.Equal(wantStart.Add(45 * time.Minute)) {
		t.Errorf("end = %s", e.End)
	}
	if e.SyncUID == "" {
		t.Error("sync uid is empty")
	}
}

func TestProjectIsIdempotentOnUnchangedPlan(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 1, 5)
	date := types.DateOnly(time.Now().UTC()).AddDate(0, 0, 1)
	_, day := testutil.SeedWeekDay(t, conn, plan.ID, 1, date)
	testutil.SeedTask(t, conn, plan, day.ID, date, 30)
	testutil.SeedTask(t, conn, plan, day.ID, date, 60)

	svc := newService(conn, DefaultStartHour)
	ctx := context.Background()
	first, err := svc.Project(ctx, plan.ID)
	if err != nil {
		t.Fatalf("first Project: %v", err)
	}
	second, err := svc.Project(ctx, plan.ID)
	if err != nil {
		t.Fatalf("second Project: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("events = %d/%d, want 2/2", len(first), len(second))
	}

	uids := map[string]bool{}
	for _, e := range first {
		uids[e.SyncUID] = true
	}
	for _, e := range second {
		if !uids[e.SyncUID] {
			t.Errorf("sync uid %s changed between projections", e.SyncUID)
		}
	}

	// Old events are replaced, not accumulated.
	stored, err := svc.ListForPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("ListForPlan: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored events = %d, want 2", len(stored))
	}
}

func TestProjectSkipsSkippedTasks(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 1, 5)
	date := types.DateOnly(time.Now().UTC()).AddDate(0, 0, 1)
	_, day := testutil.SeedWeekDay(t, conn, plan.ID, 1, date)
	kept := testutil.SeedTask(t, conn, plan, day.ID, date, 30)
	skipped := testutil.SeedTask(t, conn, plan, day.ID, date, 30)
	skipped.Status = types.TaskStatusSkipped
	if err := conn.Save(skipped).Error; err != nil {
		t.Fatalf("update task: %v", err)
	}

	events, err := newService(conn, DefaultStartHour).Project(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(events) != 1 || events[0].TaskID != kept.ID {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestProjectUsesFreshUIDsAfterEpochBump(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 1, 5)
	date := types.DateOnly(time.Now().UTC()).AddDate(0, 0, 1)
	_, day := testutil.SeedWeekDay(t, conn, plan.ID, 1, date)
	testutil.SeedTask(t, conn, plan, day.ID, date, 30)

	svc := newService(conn, DefaultStartHour)
	ctx := context.Background()
	before, err := svc.Project(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	// A plan mutation advances the epoch, invalidating earlier uids.
	plan.CalendarEpoch++
	if err := repos.NewPlanRepo(conn, logger.Nop()).Update(ctx, nil, plan); err != nil {
		t.Fatalf("update plan: %v", err)
	}
	after, err := svc.Project(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Project after bump: %v", err)
	}

	if before[0].SyncUID == after[0].SyncUID {
		t.Error("sync uid survived an epoch bump")
	}
	if after[0].SyncUID != SyncUID(after[0].TaskID, plan.CalendarEpoch) {
		t.Error("sync uid does not match the derivation")
	}
}

// Package testutil provides shared database fixtures for repo and
// service tests. Everything runs against an in-memory sqlite database
// so tests need no external services.
package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/prepcoach/backend/internal/db"
	"github.com/prepcoach/backend/internal/types"
)

// DB opens a fresh in-memory database, migrated and scoped to the test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	// A distinct DSN per call keeps parallel tests isolated.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

// SeedUser inserts a user with a minimal profile.
func SeedUser(tb testing.TB, conn *gorm.DB) *types.User {
	tb.Helper()
	now := time.Now().UTC()
	u := &types.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Name:      "Test User",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := conn.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedSkill inserts a skill under its canonical name.
func SeedSkill(tb testing.TB, conn *gorm.DB, name string, category types.SkillCategory) *types.Skill {
	tb.Helper()
	now := time.Now().UTC()
	s := &types.Skill{
		ID:            uuid.New(),
		CanonicalName: types.CanonicalSkillName(name),
		DisplayName:   name,
		Category:      category,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := conn.Create(s).Error; err != nil {
		tb.Fatalf("seed skill %q: %v", name, err)
	}
	return s
}

// SeedDocument inserts a document with a single section holding the text.
func SeedDocument(tb testing.TB, conn *gorm.DB, userID uuid.UUID, kind types.DocumentKind, text string) *types.Document {
	tb.Helper()
	sections, err := json.Marshal([]types.DocumentSection{{Name: "body", Text: text}})
	if err != nil {
		tb.Fatalf("marshal sections: %v", err)
	}
	d := &types.Document{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Content:   text,
		Sections:  sections,
		CreatedAt: time.Now().UTC(),
	}
	if err := conn.Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

// SeedPlan inserts an active plan starting today with the given horizon.
func SeedPlan(tb testing.TB, conn *gorm.DB, userID uuid.UUID, weeks int, hoursPerWeek float64) *types.StudyPlan {
	tb.Helper()
	now := time.Now().UTC()
	interview := types.DateOnly(now).AddDate(0, 0, weeks*7)
	p := &types.StudyPlan{
		ID:            uuid.New(),
		UserID:        userID,
		WeeksCount:    weeks,
		HoursPerWeek:  hoursPerWeek,
		InterviewDate: &interview,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := conn.Create(p).Error; err != nil {
		tb.Fatalf("seed plan: %v", err)
	}
	return p
}

// SeedTask inserts a pending task on the given date.
func SeedTask(tb testing.TB, conn *gorm.DB, plan *types.StudyPlan, dayID uuid.UUID, date time.Time, minutes int) *types.Task {
	tb.Helper()
	now := time.Now().UTC()
	task := &types.Task{
		ID:               uuid.New(),
		PlanID:           plan.ID,
		DayID:            dayID,
		UserID:           plan.UserID,
		Date:             types.DateOnly(date),
		Type:             types.TaskTypeLearn,
		Title:            "seeded task",
		EstimatedMinutes: minutes,
		Status:           types.TaskStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := conn.Create(task).Error; err != nil {
		tb.Fatalf("seed task: %v", err)
	}
	return task
}

// SeedWeekDay inserts one week with one day so tasks have a home.
func SeedWeekDay(tb testing.TB, conn *gorm.DB, planID uuid.UUID, weekNumber int, date time.Time) (*types.Week, *types.Day) {
	tb.Helper()
	w := &types.Week{
		ID:         uuid.New(),
		PlanID:     planID,
		WeekNumber: weekNumber,
		Theme:      "seeded week",
		CreatedAt:  time.Now().UTC(),
	}
	if err := conn.Create(w).Error; err != nil {
		tb.Fatalf("seed week: %v", err)
	}
	d := &types.Day{
		ID:        uuid.New(),
		WeekID:    w.ID,
		DayNumber: 1,
		Date:      types.DateOnly(date),
		CreatedAt: time.Now().UTC(),
	}
	if err := conn.Create(d).Error; err != nil {
		tb.Fatalf("seed day: %v", err)
	}
	return w, d
}

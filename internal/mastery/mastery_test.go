package mastery

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/repos/testutil"
	"github.com/prepcoach/backend/internal/types"
)

func TestWeightedMastery(t *testing.T) {
	cases := []struct {
		name      string
		history   []float64 // most recent first
		wantScore float64
		wantTrend types.MasteryTrend
	}{
		{
			name:      "recent and older blend",
			history:   []float64{1.0, 0.8, 0.9, 0.7, 0.6, 0.5, 0.4},
			wantScore: 0.695, // 0.7×0.80 + 0.3×0.45
			wantTrend: types.TrendImproving,
		},
		{
			name:      "single score taken directly",
			history:   []float64{0.6},
			wantScore: 0.6,
			wantTrend: types.TrendStable,
		},
		{
			name:      "two samples stay stable",
			history:   []float64{0.9, 0.1},
			wantScore: 0.5,
			wantTrend: types.TrendStable,
		},
		{
			name:      "three samples halve the window and can improve",
			history:   []float64{0.9, 0.5, 0.1},
			wantScore: 0.5,
			wantTrend: types.TrendImproving,
		},
		{
			name:      "three samples halve the window and can decline",
			history:   []float64{0.1, 0.5, 0.9},
			wantScore: 0.5,
			wantTrend: types.TrendDeclining,
		},
		{
			name:      "short history within threshold stays stable",
			history:   []float64{0.5, 0.48, 0.52},
			wantScore: 0.5,
			wantTrend: types.TrendStable,
		},
		{
			name:      "declining when older half scored higher",
			history:   []float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.9, 0.9},
			wantScore: 0.7*0.2 + 0.3*0.9,
			wantTrend: types.TrendDeclining,
		},
		{
			name:      "within threshold stays stable",
			history:   []float64{0.52, 0.52, 0.52, 0.52, 0.52, 0.50, 0.50},
			wantScore: 0.7*0.52 + 0.3*0.50,
			wantTrend: types.TrendStable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, trend := weightedMastery(tc.history)
			if math.Abs(score-tc.wantScore) > 1e-9 {
				t.Errorf("score = %v, want %v", score, tc.wantScore)
			}
			if trend != tc.wantTrend {
				t.Errorf("trend = %s, want %s", trend, tc.wantTrend)
			}
		})
	}
}

func seedScoredAttempt(t *testing.T, conn *gorm.DB, userID uuid.UUID, item *types.PracticeItem, score float64, submittedAt time.Time) *types.Attempt {
	t.Helper()
	a := &types.Attempt{
		ID:             uuid.New(),
		UserID:         userID,
		PracticeItemID: item.ID,
		Answer:         "answer",
		Score:          &score,
		SubmittedAt:    submittedAt,
	}
	if err := conn.Create(a).Error; err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	return a
}

func seedItem(t *testing.T, conn *gorm.DB, skillName string) *types.PracticeItem {
	t.Helper()
	refs, _ := json.Marshal([]string{skillName})
	item := &types.PracticeItem{
		ID:         uuid.New(),
		Type:       types.PracticeQuizShort,
		Title:      "seeded item",
		Question:   "q",
		SkillRefs:  refs,
		Difficulty: types.DifficultyBeginner,
		RubricID:   uuid.New(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := conn.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func newService(conn *gorm.DB) Service {
	log := logger.Nop()
	return New(conn,
		repos.NewSkillRepo(conn, log),
		repos.NewAttemptRepo(conn, log),
		repos.NewMasteryRepo(conn, log),
		log)
}

func TestUpdateBlendsHistory(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	skill := testutil.SeedSkill(t, conn, "TensorFlow", types.SkillCategoryFramework)
	item := seedItem(t, conn, "tensorflow")

	// Prior scores, most recent first: 0.8 0.9 0.7 0.6 0.5 0.4.
	prior := []float64{0.8, 0.9, 0.7, 0.6, 0.5, 0.4}
	base := time.Now().UTC().Add(-time.Hour)
	for i, score := range prior {
		seedScoredAttempt(t, conn, user.ID, item, score, base.Add(-time.Duration(i)*time.Minute))
	}
	fresh := 1.0
	newest := seedScoredAttempt(t, conn, user.ID, item, fresh, base.Add(time.Minute))

	svc := newService(conn)
	if err := svc.Update(context.Background(), user.ID, newest.ID, []string{"tensorflow"}, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}

	record, err := repos.NewMasteryRepo(conn, logger.Nop()).Get(context.Background(), nil, user.ID, skill.ID)
	if err != nil {
		t.Fatalf("load mastery: %v", err)
	}
	if record == nil {
		t.Fatal("mastery record was not created")
	}
	if math.Abs(record.Score-0.695) > 1e-9 {
		t.Errorf("score = %v, want 0.695", record.Score)
	}
	if record.Trend != types.TrendImproving {
		t.Errorf("trend = %s, want improving", record.Trend)
	}
	if record.PracticeCount != 1 {
		t.Errorf("practice count = %d, want 1", record.PracticeCount)
	}
	if record.LastPracticed == nil {
		t.Errorf("last practiced must be set")
	}
}

func TestUpdateIncrementsPracticeCount(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	skill := testutil.SeedSkill(t, conn, "Redis", types.SkillCategoryDatabase)
	item := seedItem(t, conn, "redis")

	svc := newService(conn)
	ctx := context.Background()
	first := seedScoredAttempt(t, conn, user.ID, item, 0.4, time.Now().UTC())
	if err := svc.Update(ctx, user.ID, first.ID, []string{"redis"}, 0.4); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	second := seedScoredAttempt(t, conn, user.ID, item, 0.8, time.Now().UTC().Add(time.Minute))
	if err := svc.Update(ctx, user.ID, second.ID, []string{"redis"}, 0.8); err != nil {
		t.Fatalf("second Update: %v", err)
	}

	record, err := repos.NewMasteryRepo(conn, logger.Nop()).Get(ctx, nil, user.ID, skill.ID)
	if err != nil {
		t.Fatalf("load mastery: %v", err)
	}
	if record.PracticeCount != 2 {
		t.Errorf("practice count = %d, want 2", record.PracticeCount)
	}

	var count int64
	if err := conn.Model(&types.Mastery{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count mastery rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single mastery row per (user, skill), got %d", count)
	}
}

func TestStatsSummarizes(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	low := testutil.SeedSkill(t, conn, "Kafka", types.SkillCategoryTool)
	high := testutil.SeedSkill(t, conn, "Go", types.SkillCategoryProgramming)

	now := time.Now().UTC()
	for _, m := range []*types.Mastery{
		{ID: uuid.New(), UserID: user.ID, SkillID: low.ID, Score: 0.2, Trend: types.TrendDeclining, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New(), UserID: user.ID, SkillID: high.ID, Score: 0.9, Trend: types.TrendImproving, CreatedAt: now, UpdatedAt: now},
	} {
		if err := conn.Create(m).Error; err != nil {
			t.Fatalf("seed mastery: %v", err)
		}
	}
	item := seedItem(t, conn, "go")
	seedScoredAttempt(t, conn, user.ID, item, 0.9, now)

	stats, err := newService(conn).Stats(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSkills != 2 {
		t.Errorf("total skills = %d, want 2", stats.TotalSkills)
	}
	if math.Abs(stats.Average-0.55) > 1e-9 {
		t.Errorf("average = %v, want 0.55", stats.Average)
	}
	if stats.ByLevel[types.DifficultyBeginner] != 1 || stats.ByLevel[types.DifficultyExpert] != 1 {
		t.Errorf("unexpected level buckets: %v", stats.ByLevel)
	}
	if stats.Trends[types.TrendDeclining] != 1 || stats.Trends[types.TrendImproving] != 1 {
		t.Errorf("unexpected trend counts: %v", stats.Trends)
	}
	if stats.RecentAttempts != 1 {
		t.Errorf("recent attempts = %d, want 1", stats.RecentAttempts)
	}
}

// Package mastery maintains the per-skill mastery scores that drive
// practice difficulty and adaptive replanning.
package mastery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

const (
	// historyWindow is how many scored attempts per skill feed the
	// weighted average.
	historyWindow = 10
	// recentSplit separates the recent slice from the older one.
	recentSplit = 5
	recentWeight = 0.7
	olderWeight  = 0.3
	// trendThreshold is the recent-vs-older difference needed before
	// the trend leaves stable.
	trendThreshold = 0.05
	// trendMinSamples is the minimum history size for a trend call.
	trendMinSamples = 3
)

// Stats summarizes a user's mastery records.
type Stats struct {
	TotalSkills    int                        `json:"total_skills"`
	Average        float64                    `json:"average"`
	ByLevel        map[types.Difficulty]int   `json:"by_level"`
	Trends         map[types.MasteryTrend]int `json:"trends"`
	RecentAttempts int64                      `json:"recent_count"`
}

type Service interface {
	// Update recomputes mastery for each skill the scored attempt
	// references. attemptID identifies the attempt that produced
	// newScore; it is excluded from the stored history so the fresh
	// score is counted exactly once.
	Update(ctx context.Context, userID, attemptID uuid.UUID, skillRefs []string, newScore float64) error
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*types.Mastery, error)
}

type service struct {
	db       *gorm.DB
	skills   repos.SkillRepo
	attempts repos.AttemptRepo
	mastery  repos.MasteryRepo
	log      *logger.Logger
}

func New(
	db *gorm.DB,
	skillRepo repos.SkillRepo,
	attemptRepo repos.AttemptRepo,
	masteryRepo repos.MasteryRepo,
	baseLog *logger.Logger,
) Service {
	return &service{
		db:       db,
		skills:   skillRepo,
		attempts: attemptRepo,
		mastery:  masteryRepo,
		log:      baseLog.With("service", "MasteryTracker"),
	}
}

func (s *service) Update(ctx context.Context, userID, attemptID uuid.UUID, skillRefs []string, newScore float64) error {
	if len(skillRefs) == 0 {
		return nil
	}

	// One read covers every skill on the item; per-skill histories are
	// carved out of it app-side since skill_refs live inside JSON.
	recent, err := s.attempts.ListRecentForUser(ctx, nil, userID, 0)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, name := range skillRefs {
		canonical := types.CanonicalSkillName(name)
		skill, err := s.skills.UpsertByCanonicalName(ctx, nil, name, types.SkillCategoryOther)
		if err != nil {
			return err
		}

		history := append([]float64{newScore}, priorScores(recent, attemptID, canonical, historyWindow-1)...)
		score, trend := weightedMastery(history)

		existing, err := s.mastery.Get(ctx, nil, userID, skill.ID)
		if err != nil {
			return err
		}
		record := &types.Mastery{
			UserID:        userID,
			SkillID:       skill.ID,
			Score:         score,
			LastPracticed: &now,
			PracticeCount: 1,
			Trend:         trend,
		}
		if existing != nil {
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
			record.PracticeCount = existing.PracticeCount + 1
		}
		if err := s.mastery.Upsert(ctx, nil, record); err != nil {
			return err
		}

		s.log.Info("Mastery updated",
			"user_id", userID, "skill", canonical,
			"score", score, "trend", trend, "samples", len(history))
	}
	return nil
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	records, err := s.mastery.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)
	recentCount, err := s.attempts.CountSince(ctx, nil, userID, weekAgo)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalSkills:    len(records),
		ByLevel:        map[types.Difficulty]int{},
		Trends:         map[types.MasteryTrend]int{},
		RecentAttempts: recentCount,
	}
	sum := 0.0
	for _, m := range records {
		sum += m.Score
		stats.ByLevel[types.DifficultyForMastery(m.Score)]++
		stats.Trends[m.Trend]++
	}
	if len(records) > 0 {
		stats.Average = sum / float64(len(records))
	}
	return stats, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*types.Mastery, error) {
	return s.mastery.ListByUser(ctx, nil, userID)
}

// priorScores walks the user's attempts newest first and collects up to
// max scores for items referencing the canonical skill, skipping the
// attempt whose score is supplied separately.
func priorScores(attempts []*types.Attempt, excludeAttempt uuid.UUID, canonical string, max int) []float64 {
	var scores []float64
	for _, a := range attempts {
		if len(scores) >= max {
			break
		}
		if a.ID == excludeAttempt || a.Score == nil || a.PracticeItem == nil {
			continue
		}
		if !itemReferencesSkill(a.PracticeItem, canonical) {
			continue
		}
		scores = append(scores, *a.Score)
	}
	return scores
}

func itemReferencesSkill(item *types.PracticeItem, canonical string) bool {
	if len(item.SkillRefs) == 0 {
		return false
	}
	var refs []string
	if err := json.Unmarshal(item.SkillRefs, &refs); err != nil {
		return false
	}
	for _, ref := range refs {
		if types.CanonicalSkillName(ref) == canonical {
			return true
		}
	}
	return false
}

// weightedMastery computes the 0.7/0.3 recent-vs-older blend over a
// most-recent-first history, plus the trend it implies.
func weightedMastery(history []float64) (float64, types.MasteryTrend) {
	if len(history) == 0 {
		return 0, types.TrendStable
	}
	if len(history) > historyWindow {
		history = history[:historyWindow]
	}

	split := recentSplit
	if split > len(history) {
		split = len(history)
	}
	recentMean := mean(history[:split])
	score := recentMean

	trend := types.TrendStable
	if len(history) > split {
		olderMean := mean(history[split:])
		score = recentWeight*recentMean + olderWeight*olderMean
		trend = trendOf(recentMean, olderMean)
	} else if len(history) >= trendMinSamples {
		// Short histories halve the window so a trend call is possible
		// from three samples on; the score stays the plain mean.
		mid := len(history) / 2
		trend = trendOf(mean(history[:mid]), mean(history[mid:]))
	}
	return score, trend
}

func trendOf(recentMean, olderMean float64) types.MasteryTrend {
	switch diff := recentMean - olderMean; {
	case diff > trendThreshold:
		return types.TrendImproving
	case diff < -trendThreshold:
		return types.TrendDeclining
	default:
		return types.TrendStable
	}
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

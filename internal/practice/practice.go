// Package practice generates typed practice items for a task, with
// difficulty adapted to the user's current mastery.
package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/apperr"
	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

const practiceMaxTokens = 2048

type Service interface {
	// Generate produces count practice items of the given type for the
	// task. Items that fail to parse after one retry are dropped.
	Generate(ctx context.Context, taskID uuid.UUID, practiceType types.PracticeType, count int) ([]*types.PracticeItem, error)
}

type service struct {
	db          *gorm.DB
	tasks       repos.TaskRepo
	skills      repos.SkillRepo
	mastery     repos.MasteryRepo
	practice    repos.PracticeRepo
	provider    llm.Provider
	genTemp     float64
	maxParallel int64
	log         *logger.Logger
}

func New(
	db *gorm.DB,
	taskRepo repos.TaskRepo,
	skillRepo repos.SkillRepo,
	masteryRepo repos.MasteryRepo,
	practiceRepo repos.PracticeRepo,
	provider llm.Provider,
	genTemp float64,
	maxParallel int,
	baseLog *logger.Logger,
) Service {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &service{
		db:          db,
		tasks:       taskRepo,
		skills:      skillRepo,
		mastery:     masteryRepo,
		practice:    practiceRepo,
		provider:    provider,
		genTemp:     genTemp,
		maxParallel: int64(maxParallel),
		log:         baseLog.With("service", "PracticeGenerator"),
	}
}

func (s *service) Generate(ctx context.Context, taskID uuid.UUID, practiceType types.PracticeType, count int) ([]*types.PracticeItem, error) {
	if count < 1 {
		return nil, apperr.InvalidInput("count must be at least 1, got %d", count)
	}

	task, err := s.tasks.GetByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task %s not found", taskID)
	}

	skillNames, err := taskSkillNames(task)
	if err != nil {
		return nil, err
	}

	difficulty, err := s.difficultyFor(ctx, task.UserID, skillNames)
	if err != nil {
		return nil, err
	}

	rubric, err := s.practice.GetOrCreateRubric(ctx, nil, practiceType, types.DefaultRubricCriteria(practiceType))
	if err != nil {
		return nil, err
	}

	items := s.generateAll(ctx, task, practiceType, skillNames, difficulty, rubric.ID, count)
	if len(items) == 0 {
		return nil, apperr.LLMUnavailable(nil, "no practice items could be generated")
	}

	if err := s.practice.CreateItems(ctx, nil, items); err != nil {
		return nil, err
	}

	s.log.Info("Generated practice items",
		"task_id", taskID, "type", practiceType,
		"requested", count, "created", len(items))
	return items, nil
}

// generateAll fans item generation out across a bounded semaphore and
// keeps whatever succeeded, in slot order.
func (s *service) generateAll(
	ctx context.Context,
	task *types.Task,
	practiceType types.PracticeType,
	skillNames []string,
	difficulty types.Difficulty,
	rubricID uuid.UUID,
	count int,
) []*types.PracticeItem {
	sem := semaphore.NewWeighted(s.maxParallel)
	slots := make([]*types.PracticeItem, count)
	var wg sync.WaitGroup

	for i := 0; i < count; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(slot int) {
			defer sem.Release(1)
			defer wg.Done()
			item, err := s.generateOne(ctx, task, practiceType, skillNames, difficulty, rubricID, slot)
			if err != nil {
				s.log.Warn("Dropping practice item", "slot", slot, "error", err)
				return
			}
			slots[slot] = item
		}(i)
	}
	wg.Wait()

	var items []*types.PracticeItem
	for _, item := range slots {
		if item != nil {
			items = append(items, item)
		}
	}
	return items
}

// generateOne makes a single model call; a parse failure gets one
// stricter retry before the item is abandoned.
func (s *service) generateOne(
	ctx context.Context,
	task *types.Task,
	practiceType types.PracticeType,
	skillNames []string,
	difficulty types.Difficulty,
	rubricID uuid.UUID,
	slot int,
) (*types.PracticeItem, error) {
	ctx = llm.WithPurpose(ctx, "practice-generation")

	req := llm.Request{
		System:      generationSystem(practiceType),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: generationPrompt(task, skillNames, difficulty, slot)}},
		Schema:      itemSchema(practiceType),
		MaxTokens:   practiceMaxTokens,
		Temperature: s.genTemp,
	}

	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	item, err := decodeItem(resp.Content, practiceType)
	if err != nil {
		req.Messages = append(req.Messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Return ONLY the JSON object, with no commentary or markdown.",
		})
		resp, err = s.provider.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		item, err = decodeItem(resp.Content, practiceType)
		if err != nil {
			return nil, err
		}
	}

	refs, err := json.Marshal(skillNames)
	if err != nil {
		return nil, err
	}

	item.TaskID = &task.ID
	item.SkillRefs = refs
	item.Difficulty = difficulty
	item.RubricID = rubricID
	item.CreatedAt = time.Now().UTC()
	return item, nil
}

// difficultyFor buckets the minimum mastery across the task's skills.
// Unpracticed skills count as zero.
func (s *service) difficultyFor(ctx context.Context, userID uuid.UUID, skillNames []string) (types.Difficulty, error) {
	minScore := 0.0
	first := true
	for _, name := range skillNames {
		skill, err := s.skills.GetByCanonicalName(ctx, nil, types.CanonicalSkillName(name))
		if err != nil {
			return "", err
		}
		score := 0.0
		if skill != nil {
			m, err := s.mastery.Get(ctx, nil, userID, skill.ID)
			if err != nil {
				return "", err
			}
			if m != nil {
				score = m.Score
			}
		}
		if first || score < minScore {
			minScore = score
			first = false
		}
	}
	return types.DifficultyForMastery(minScore), nil
}

func taskSkillNames(task *types.Task) ([]string, error) {
	var names []string
	if len(task.SkillRefs) > 0 {
		if err := json.Unmarshal(task.SkillRefs, &names); err != nil {
			return nil, fmt.Errorf("decode task skill refs: %w", err)
		}
	}
	if len(names) == 0 {
		names = []string{strings.ToLower(task.Title)}
	}
	return names, nil
}

func generationSystem(t types.PracticeType) string {
	switch t {
	case types.PracticeQuizMCQ:
		return "You write multiple-choice interview questions. Each question has exactly 4 options, " +
			"exactly one correct, and a short explanation of the correct option."
	case types.PracticeQuizShort:
		return "You write short-answer interview questions. Each question comes with 3 to 6 key points " +
			"a complete answer must cover."
	case types.PracticeFlashcard:
		return "You write study flashcards. The front is a question, the back is an answer of at most " +
			"3 short sentences."
	case types.PracticeBehavioral:
		return "You write behavioral interview questions with STAR guidance " +
			"(Situation, Task, Action, Result) and evaluation criteria."
	default:
		return "You write system design interview prompts with explicit requirements, constraints, " +
			"and an evaluation framework covering functional needs, non-functional needs, architecture, " +
			"trade-offs and completeness."
	}
}

func generationPrompt(task *types.Task, skillNames []string, difficulty types.Difficulty, slot int) string {
	return fmt.Sprintf(
		"Skills: %s\nDifficulty: %s\nTask context: %s\nVariant: %d\n\nWrite one item.",
		strings.Join(skillNames, ", "), difficulty, task.Title, slot+1)
}

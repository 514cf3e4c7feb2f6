// Package gaps classifies how well a resume covers the skills a job
// description requires. Classification is fully deterministic; the
// model only participates upstream in extraction.
package gaps

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/apperr"
	"github.com/prepcoach/backend/internal/db"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

// coveredConfidence is the resume confidence at or above which a
// matched skill counts as covered.
const coveredConfidence = 0.7

// weakSections hold skill mentions that do not demonstrate working
// proficiency; evidence found only there downgrades coverage to partial.
var weakSections = map[string]bool{
	"interests": true,
	"hobbies":   true,
	"summary":   true,
	"objective": true,
}

// baseHours is the learning-time estimate for a missing skill by
// category. Partial coverage halves it.
var baseHours = map[types.SkillCategory]float64{
	types.SkillCategoryProgramming: 40,
	types.SkillCategoryFramework:   20,
	types.SkillCategoryDatabase:    15,
	types.SkillCategoryCloud:       30,
	types.SkillCategoryTool:        10,
	types.SkillCategorySoftSkill:   20,
	types.SkillCategoryDomain:      40,
	types.SkillCategoryOther:       15,
}

// Report is the result of a gap analysis.
type Report struct {
	Gaps       []*types.Gap `json:"gaps"`
	TotalHours float64      `json:"total_hours"`
}

type Service interface {
	// Analyze replaces the user's gap set from the given resume and job
	// description documents.
	Analyze(ctx context.Context, userID, resumeDocID, jdDocID uuid.UUID) (*Report, error)
}

type service struct {
	db        *gorm.DB
	documents repos.DocumentRepo
	skills    repos.SkillRepo
	evidence  repos.EvidenceRepo
	gaps      repos.GapRepo
	log       *logger.Logger
}

func New(
	db *gorm.DB,
	documents repos.DocumentRepo,
	skills repos.SkillRepo,
	evidence repos.EvidenceRepo,
	gaps repos.GapRepo,
	baseLog *logger.Logger,
) Service {
	return &service{
		db:        db,
		documents: documents,
		skills:    skills,
		evidence:  evidence,
		gaps:      gaps,
		log:       baseLog.With("service", "GapAnalyzer"),
	}
}

// skillEvidence aggregates a document's evidence per skill.
type skillEvidence struct {
	skill         *types.Skill
	maxConfidence float64
	evidenceIDs   []uuid.UUID
	strongSection bool // any evidence outside a weak section
}

func (s *service) Analyze(ctx context.Context, userID, resumeDocID, jdDocID uuid.UUID) (*Report, error) {
	resume, err := s.loadDocument(ctx, resumeDocID, types.DocumentKindResume)
	if err != nil {
		return nil, err
	}
	jd, err := s.loadDocument(ctx, jdDocID, types.DocumentKindJD)
	if err != nil {
		return nil, err
	}

	resumeSkills, err := s.collectEvidence(ctx, resume.ID)
	if err != nil {
		return nil, err
	}
	jdSkills, err := s.collectEvidence(ctx, jd.ID)
	if err != nil {
		return nil, err
	}

	var gaps []*types.Gap
	for canonical, required := range jdSkills {
		coverage := classify(resumeSkills[canonical])
		priority := prioritize(coverage, required.maxConfidence)
		hours := estimateHours(required.skill.Category, coverage)

		refs, err := json.Marshal(evidenceRefIDs(resumeSkills[canonical]))
		if err != nil {
			return nil, err
		}

		gaps = append(gaps, &types.Gap{
			UserID:             userID,
			SkillID:            required.skill.ID,
			RequiredConfidence: required.maxConfidence,
			Coverage:           coverage,
			Priority:           priority,
			Reason:             reason(required.skill.DisplayName, coverage, resumeSkills[canonical]),
			EstimatedHours:     hours,
			EvidenceRefs:       refs,
		})
	}

	sortGaps(gaps, jdSkills)

	err = db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		return s.gaps.ReplaceForUser(ctx, tx, userID, gaps)
	})
	if err != nil {
		return nil, err
	}

	total := 0.0
	for _, g := range gaps {
		total += g.EstimatedHours
	}
	s.log.Info("Gap analysis complete", "user_id", userID, "gaps", len(gaps), "total_hours", total)
	return &Report{Gaps: gaps, TotalHours: total}, nil
}

func (s *service) loadDocument(ctx context.Context, id uuid.UUID, kind types.DocumentKind) (*types.Document, error) {
	doc, err := s.documents.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", id)
	}
	if doc.Kind != kind {
		return nil, apperr.InvalidInput("document %s is a %s, expected %s", id, doc.Kind, kind)
	}
	return doc, nil
}

func (s *service) collectEvidence(ctx context.Context, documentID uuid.UUID) (map[string]*skillEvidence, error) {
	rows, err := s.evidence.ListByDocument(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*skillEvidence)
	for _, ev := range rows {
		skill, err := s.skills.GetByID(ctx, nil, ev.SkillID)
		if err != nil {
			return nil, err
		}
		if skill == nil {
			continue
		}
		agg, ok := out[skill.CanonicalName]
		if !ok {
			agg = &skillEvidence{skill: skill}
			out[skill.CanonicalName] = agg
		}
		if ev.Confidence > agg.maxConfidence {
			agg.maxConfidence = ev.Confidence
		}
		if !weakSections[ev.SectionName] {
			agg.strongSection = true
		}
		agg.evidenceIDs = append(agg.evidenceIDs, ev.ID)
	}
	return out, nil
}

// classify maps the resume's evidence for one required skill onto a
// coverage status.
func classify(resume *skillEvidence) types.CoverageStatus {
	if resume == nil || len(resume.evidenceIDs) == 0 {
		return types.CoverageMissing
	}
	if resume.maxConfidence >= coveredConfidence && resume.strongSection {
		return types.CoverageCovered
	}
	return types.CoveragePartial
}

// prioritize walks the priority ladder, first match wins.
func prioritize(coverage types.CoverageStatus, required float64) types.GapPriority {
	switch {
	case coverage == types.CoverageMissing && required >= 0.8:
		return types.PriorityCritical
	case coverage == types.CoverageMissing && required >= 0.5:
		return types.PriorityHigh
	case coverage == types.CoveragePartial && required >= 0.8:
		return types.PriorityHigh
	case coverage == types.CoveragePartial && required >= 0.5:
		return types.PriorityMedium
	case coverage == types.CoverageMissing:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

func estimateHours(category types.SkillCategory, coverage types.CoverageStatus) float64 {
	base, ok := baseHours[category]
	if !ok {
		base = baseHours[types.SkillCategoryOther]
	}
	switch coverage {
	case types.CoverageCovered:
		return 0
	case types.CoveragePartial:
		return base / 2
	default:
		return base
	}
}

func reason(name string, coverage types.CoverageStatus, resume *skillEvidence) string {
	count := 0
	if resume != nil {
		count = len(resume.evidenceIDs)
	}
	switch coverage {
	case types.CoverageCovered:
		return fmt.Sprintf("%s is demonstrated by %d resume evidence snippet(s).", name, count)
	case types.CoveragePartial:
		return fmt.Sprintf("%s appears in the resume (%d snippet(s)) but without strong supporting evidence.", name, count)
	default:
		return fmt.Sprintf("%s is required by the job description but has no resume evidence.", name)
	}
}

func sortGaps(gaps []*types.Gap, jdSkills map[string]*skillEvidence) {
	names := make(map[uuid.UUID]string, len(jdSkills))
	for canonical, agg := range jdSkills {
		names[agg.skill.ID] = canonical
	}
	sort.Slice(gaps, func(i, j int) bool {
		ri, rj := types.PriorityRank(gaps[i].Priority), types.PriorityRank(gaps[j].Priority)
		if ri != rj {
			return ri < rj
		}
		if gaps[i].RequiredConfidence != gaps[j].RequiredConfidence {
			return gaps[i].RequiredConfidence > gaps[j].RequiredConfidence
		}
		return names[gaps[i].SkillID] < names[gaps[j].SkillID]
	})
}

func evidenceRefIDs(resume *skillEvidence) []uuid.UUID {
	if resume == nil {
		return []uuid.UUID{}
	}
	return resume.evidenceIDs
}

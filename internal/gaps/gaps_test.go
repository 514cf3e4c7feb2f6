package gaps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/repos/testutil"
	"github.com/prepcoach/backend/internal/types"
)

func newService(conn *gorm.DB) Service {
	log := logger.Nop()
	return New(conn,
		repos.NewDocumentRepo(conn, log),
		repos.NewSkillRepo(conn, log),
		repos.NewEvidenceRepo(conn, log),
		repos.NewGapRepo(conn, log),
		log)
}

func seedEvidence(t *testing.T, conn *gorm.DB, docID, skillID uuid.UUID, section string, confidence float64) *types.SkillEvidence {
	t.Helper()
	ev := &types.SkillEvidence{
		ID:          uuid.New(),
		DocumentID:  docID,
		SkillID:     skillID,
		SnippetText: "mentioned in document",
		SectionName: section,
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
	}
	if err := conn.Create(ev).Error; err != nil {
		t.Fatalf("seed evidence: %v", err)
	}
	return ev
}

func TestAnalyzeMissingRequiredSkill(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	resume := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindResume, "python everywhere")
	jd := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindJD, "kubernetes required")

	python := testutil.SeedSkill(t, conn, "Python", types.SkillCategoryProgramming)
	kubernetes := testutil.SeedSkill(t, conn, "Kubernetes", types.SkillCategoryDomain)

	seedEvidence(t, conn, resume.ID, python.ID, "experience", 0.9)
	seedEvidence(t, conn, jd.ID, kubernetes.ID, "requirements", 0.85)

	report, err := newService(conn).Analyze(context.Background(), user.ID, resume.ID, jd.ID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(report.Gaps))
	}

	gap := report.Gaps[0]
	if gap.SkillID != kubernetes.ID {
		t.Fatalf("gap is for the wrong skill")
	}
	if gap.Coverage != types.CoverageMissing {
		t.Errorf("coverage = %s, want missing", gap.Coverage)
	}
	if gap.Priority != types.PriorityCritical {
		t.Errorf("priority = %s, want critical", gap.Priority)
	}
	if gap.EstimatedHours != 40 {
		t.Errorf("estimated hours = %v, want 40", gap.EstimatedHours)
	}
	if gap.Reason == "" {
		t.Errorf("missing gap must carry a reason")
	}
}

func TestAnalyzeWeakSectionIsPartial(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	resume := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindResume, "golang in interests")
	jd := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindJD, "golang required")

	golang := testutil.SeedSkill(t, conn, "Go", types.SkillCategoryProgramming)

	// High confidence, but only in a section that does not demonstrate
	// working proficiency.
	seedEvidence(t, conn, resume.ID, golang.ID, "interests", 0.95)
	seedEvidence(t, conn, jd.ID, golang.ID, "requirements", 0.9)

	report, err := newService(conn).Analyze(context.Background(), user.ID, resume.ID, jd.ID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(report.Gaps))
	}

	gap := report.Gaps[0]
	if gap.Coverage != types.CoveragePartial {
		t.Errorf("coverage = %s, want partial", gap.Coverage)
	}
	if gap.Priority != types.PriorityHigh {
		t.Errorf("priority = %s, want high", gap.Priority)
	}
	if gap.EstimatedHours != 20 {
		t.Errorf("partial coverage should halve the estimate, got %v", gap.EstimatedHours)
	}
}

func TestAnalyzeCoveredSkillIsLowPriorityZeroHours(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	resume := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindResume, "postgres expert")
	jd := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindJD, "postgres required")

	postgres := testutil.SeedSkill(t, conn, "PostgreSQL", types.SkillCategoryDatabase)
	seedEvidence(t, conn, resume.ID, postgres.ID, "experience", 0.9)
	seedEvidence(t, conn, jd.ID, postgres.ID, "requirements", 0.8)

	report, err := newService(conn).Analyze(context.Background(), user.ID, resume.ID, jd.ID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	gap := report.Gaps[0]
	if gap.Coverage != types.CoverageCovered {
		t.Errorf("coverage = %s, want covered", gap.Coverage)
	}
	if gap.Priority != types.PriorityLow {
		t.Errorf("priority = %s, want low", gap.Priority)
	}
	if gap.EstimatedHours != 0 {
		t.Errorf("covered skill should cost 0 hours, got %v", gap.EstimatedHours)
	}
}

func TestAnalyzeReplacesPreviousGaps(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	resume := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindResume, "resume")
	jd := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindJD, "jd")

	terraform := testutil.SeedSkill(t, conn, "Terraform", types.SkillCategoryTool)
	seedEvidence(t, conn, jd.ID, terraform.ID, "requirements", 0.6)

	svc := newService(conn)
	if _, err := svc.Analyze(context.Background(), user.ID, resume.ID, jd.ID); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	if _, err := svc.Analyze(context.Background(), user.ID, resume.ID, jd.ID); err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	stored, err := repos.NewGapRepo(conn, logger.Nop()).ListByUser(context.Background(), nil, user.ID)
	if err != nil {
		t.Fatalf("list gaps: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("re-analysis must replace the gap set, got %d rows", len(stored))
	}
}

func TestAnalyzeRejectsWrongDocumentKind(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	resume := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindResume, "resume")

	_, err := newService(conn).Analyze(context.Background(), user.ID, resume.ID, resume.ID)
	if err == nil {
		t.Fatal("expected an error when the jd document is a resume")
	}
}

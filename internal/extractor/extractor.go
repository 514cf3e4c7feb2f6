// Package extractor turns parsed documents into evidence-backed skill
// records. Every snippet it persists appears in the source document;
// model output that cannot be verified is dropped.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/apperr"
	"github.com/prepcoach/backend/internal/db"
	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
	"github.com/prepcoach/backend/internal/vector"
)

// minSnippetLen is the shortest evidence snippet stored as-is; shorter
// matches get a synthesized snippet instead.
const minSnippetLen = 10

const extractMaxTokens = 4096

type Service interface {
	// Extract runs skill extraction over the document and persists the
	// resulting skills and evidence. Returns the created evidence.
	Extract(ctx context.Context, documentID uuid.UUID) ([]*types.SkillEvidence, error)
	// ExtractDocument is Extract with the document already loaded.
	ExtractDocument(ctx context.Context, doc *types.Document) ([]*types.SkillEvidence, error)
}

type service struct {
	db        *gorm.DB
	documents repos.DocumentRepo
	skills    repos.SkillRepo
	evidence  repos.EvidenceRepo
	provider  llm.Provider
	vectors   vector.Store
	genTemp   float64
	log       *logger.Logger
}

func New(
	db *gorm.DB,
	documents repos.DocumentRepo,
	skills repos.SkillRepo,
	evidence repos.EvidenceRepo,
	provider llm.Provider,
	vectors vector.Store,
	genTemp float64,
	baseLog *logger.Logger,
) Service {
	return &service{
		db:        db,
		documents: documents,
		skills:    skills,
		evidence:  evidence,
		provider:  provider,
		vectors:   vectors,
		genTemp:   genTemp,
		log:       baseLog.With("service", "Extractor"),
	}
}

// extractedRecord is the shape the model is asked to produce per skill.
type extractedRecord struct {
	SkillName    string  `json:"skill_name"`
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	EvidenceText string  `json:"evidence_text"`
	SectionName  string  `json:"section_name"`
}

type extractionResult struct {
	Skills []extractedRecord `json:"skills"`
}

var extractionSchema = &llm.Schema{
	Name:        "skill-extraction",
	Description: "Skills found in a document, each backed by a verbatim snippet.",
	Definition: map[string]any{
		"type":     "object",
		"required": []any{"skills"},
		"properties": map[string]any{
			"skills": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"skill_name", "category", "confidence", "evidence_text"},
					"properties": map[string]any{
						"skill_name":    map[string]any{"type": "string"},
						"category":      map[string]any{"type": "string"},
						"confidence":    map[string]any{"type": "number"},
						"evidence_text": map[string]any{"type": "string"},
						"section_name":  map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}

func (s *service) Extract(ctx context.Context, documentID uuid.UUID) ([]*types.SkillEvidence, error) {
	doc, err := s.documents.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", documentID)
	}
	return s.ExtractDocument(ctx, doc)
}

func (s *service) ExtractDocument(ctx context.Context, doc *types.Document) ([]*types.SkillEvidence, error) {
	records, err := s.callModel(ctx, doc)
	if err != nil {
		return nil, err
	}

	normalizedDoc := normalizeText(doc.Content)

	var created []*types.SkillEvidence
	err = db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		for _, rec := range records {
			snippet, ok := verifySnippet(rec.EvidenceText, doc.Content, normalizedDoc)
			if !ok {
				s.log.Debug("Dropping unverifiable evidence", "skill", rec.SkillName)
				continue
			}
			name := strings.TrimSpace(rec.SkillName)
			if name == "" {
				continue
			}

			skill, err := s.skills.UpsertByCanonicalName(ctx, tx, name, types.ParseSkillCategory(rec.Category))
			if err != nil {
				return err
			}

			created = append(created, &types.SkillEvidence{
				DocumentID:  doc.ID,
				SkillID:     skill.ID,
				SnippetText: snippet,
				SectionName: strings.ToLower(strings.TrimSpace(rec.SectionName)),
				Confidence:  clamp01(rec.Confidence),
			})
		}
		return s.evidence.CreateBatch(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}

	s.indexChunks(ctx, doc)

	s.log.Info("Extracted skills", "document_id", doc.ID, "evidence", len(created))
	return created, nil
}

// callModel prompts for structured extraction; a parse failure gets one
// stricter retry, a second failure yields an empty set.
func (s *service) callModel(ctx context.Context, doc *types.Document) ([]extractedRecord, error) {
	ctx = llm.WithPurpose(ctx, "skill-extraction")

	prompt := buildPrompt(doc)
	req := llm.Request{
		System:      systemPrompt(doc.Kind),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Schema:      extractionSchema,
		MaxTokens:   extractMaxTokens,
		Temperature: s.genTemp,
	}

	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var result extractionResult
	if err := llm.DecodeInto(resp.Content, &result); err != nil {
		s.log.Warn("Extraction output unparseable, retrying stricter", "error", err)
		req.Messages = append(req.Messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Return ONLY the JSON object, with no commentary or markdown.",
		})
		resp, err = s.provider.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := llm.DecodeInto(resp.Content, &result); err != nil {
			s.log.Warn("Extraction output unparseable after retry, emitting no skills", "error", err)
			return nil, nil
		}
	}
	return result.Skills, nil
}

// indexChunks pushes document chunks to the vector store. Best-effort.
func (s *service) indexChunks(ctx context.Context, doc *types.Document) {
	if len(doc.Chunks) == 0 {
		return
	}
	var chunks []string
	if err := json.Unmarshal(doc.Chunks, &chunks); err != nil {
		return
	}
	for i, chunk := range chunks {
		id := fmt.Sprintf("%s:%d", doc.ID, i)
		// Embedding happens store-side; the text rides along in metadata.
		meta := map[string]string{
			"document_id": doc.ID.String(),
			"kind":        string(doc.Kind),
			"chunk_index": fmt.Sprintf("%d", i),
			"text":        chunk,
		}
		if err := s.vectors.Upsert(ctx, id, nil, meta); err != nil {
			s.log.Debug("Chunk indexing failed", "id", id, "error", err)
			return
		}
	}
}

func systemPrompt(kind types.DocumentKind) string {
	if kind == types.DocumentKindJD {
		return "You analyze job descriptions. Identify every skill the role requires. " +
			"For each skill report how strongly the posting requires it as a confidence in [0,1], " +
			"and quote the exact text that mentions it."
	}
	return "You analyze resumes. Identify every skill the candidate demonstrates. " +
		"For each skill report how strongly the resume evidences it as a confidence in [0,1], " +
		"and quote the exact text that mentions it."
}

func buildPrompt(doc *types.Document) string {
	var b strings.Builder
	b.WriteString("Document text:\n\n")
	b.WriteString(doc.Content)
	b.WriteString("\n\nCategories: programming, framework, database, cloud, tool, soft_skill, domain, other.\n")
	b.WriteString("evidence_text must be copied verbatim from the document. ")
	b.WriteString("section_name is the document section the evidence appears in, lowercase.")
	return b.String()
}

// verifySnippet checks the claimed evidence appears in the document,
// verbatim or under case-folding and whitespace-collapsing. Snippets
// shorter than minSnippetLen are replaced by a synthesized note so a
// two-character match never becomes stored evidence on its own.
func verifySnippet(snippet, docText, normalizedDoc string) (string, bool) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return "", false
	}
	found := strings.Contains(docText, snippet) ||
		strings.Contains(normalizedDoc, normalizeText(snippet))
	if !found {
		return "", false
	}
	if len(snippet) < minSnippetLen {
		return fmt.Sprintf("%q mentioned in document", snippet), true
	}
	return snippet, true
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

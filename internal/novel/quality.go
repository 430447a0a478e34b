package novel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// Dimension weights. They sum to 1.
const (
	weightPlotLogic            = 0.30
	weightCharacterConsistency = 0.25
	weightLanguageQuality      = 0.25
	weightStyleConsistency     = 0.20
)

// QualityAssessor scores text on four weighted dimensions and maps the
// overall score to a letter grade.
type QualityAssessor struct {
	gen    TextGenerator
	logger *slog.Logger
}

func NewQualityAssessor(gen TextGenerator) *QualityAssessor {
	return &QualityAssessor{
		gen:    gen,
		logger: slog.Default().With("component", "quality_assessor"),
	}
}

type qualityScores struct {
	PlotLogic            float64  `json:"plot_logic" validate:"min=0,max=10"`
	CharacterConsistency float64  `json:"character_consistency" validate:"min=0,max=10"`
	LanguageQuality      float64  `json:"language_quality" validate:"min=0,max=10"`
	StyleConsistency     float64  `json:"style_consistency" validate:"min=0,max=10"`
	Notes                []string `json:"notes"`
}

// AssessChapter scores a single chapter. Like the consistency check it is
// advisory; a failure is surfaced to the caller to log and move on.
func (a *QualityAssessor) AssessChapter(ctx context.Context, chapter ChapterContent) (QualityReport, error) {
	return a.assess(ctx, fmt.Sprintf("Assess chapter %d of a novel.", chapter.Number), chapter.Content)
}

// AssessNovel scores the assembled manuscript. Chapter summaries stand in
// for the full text so the prompt stays within model limits.
func (a *QualityAssessor) AssessNovel(ctx context.Context, chapters []ChapterContent) (QualityReport, error) {
	var b strings.Builder
	for _, ch := range chapters {
		fmt.Fprintf(&b, "Chapter %d (%s): %s\n", ch.Number, ch.Title, ch.Summary)
	}
	return a.assess(ctx, "Assess a complete novel from its chapter summaries.", b.String())
}

func (a *QualityAssessor) assess(ctx context.Context, instruction, text string) (QualityReport, error) {
	resp, err := a.gen.Generate(ctx, provider.Request{
		Prompt:       a.buildPrompt(instruction, text),
		SystemPrompt: "You are a fiction editor scoring manuscripts. You always answer with valid JSON.",
		MaxTokens:    800,
		Temperature:  0.2,
	})
	if err != nil {
		return QualityReport{}, fmt.Errorf("quality assessment: %w", err)
	}

	var scores qualityScores
	if err := ParseStructured(resp.Content, &scores); err != nil {
		return QualityReport{}, fmt.Errorf("quality assessment: %w", err)
	}

	report := ScoreReport(scores.PlotLogic, scores.CharacterConsistency, scores.LanguageQuality, scores.StyleConsistency)
	report.Notes = scores.Notes
	a.logger.Info("quality assessed", "overall", report.Overall, "grade", report.Grade)
	return report, nil
}

// ScoreReport combines the four dimension scores into the weighted overall
// and its grade.
func ScoreReport(plot, character, language, style float64) QualityReport {
	overall := plot*weightPlotLogic +
		character*weightCharacterConsistency +
		language*weightLanguageQuality +
		style*weightStyleConsistency
	return QualityReport{
		PlotLogic:            plot,
		CharacterConsistency: character,
		LanguageQuality:      language,
		StyleConsistency:     style,
		Overall:              overall,
		Grade:                GradeFor(overall),
	}
}

// GradeFor maps an overall score to its letter grade.
func GradeFor(overall float64) string {
	switch {
	case overall >= 9.0:
		return "A"
	case overall >= 7.5:
		return "B"
	case overall >= 6.0:
		return "C"
	case overall >= 4.0:
		return "D"
	default:
		return "F"
	}
}

func (a *QualityAssessor) buildPrompt(instruction, text string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString(" Score each dimension from 0 to 10.\n\nText:\n")
	b.WriteString(text)
	b.WriteString("\n\nRespond with JSON:\n")
	b.WriteString(`{
  "plot_logic": 0,
  "character_consistency": 0,
  "language_quality": 0,
  "style_consistency": 0,
  "notes": ["specific observations"]
}`)
	return b.String()
}

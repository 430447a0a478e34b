package novel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

const conceptMaxAttempts = 3

// Complexity bands by target length.
const (
	ComplexitySimple  = "simple"
	ComplexityMedium  = "medium"
	ComplexityComplex = "complex"
	ComplexityEpic    = "epic"
)

// ConceptExpander turns a free-form premise into a structured creative brief.
type ConceptExpander struct {
	gen    TextGenerator
	logger *slog.Logger
}

func NewConceptExpander(gen TextGenerator) *ConceptExpander {
	return &ConceptExpander{
		gen:    gen,
		logger: slog.Default().With("component", "concept_expander"),
	}
}

// Expand derives theme, genre, conflict, world type and tone from the raw
// premise. A non-empty style preference steers the brief. Parse failures are
// retried with an explicit format reminder; after conceptMaxAttempts the run
// fails with a ConceptError.
func (e *ConceptExpander) Expand(ctx context.Context, premise, style string, targetWords int) (ConceptExpansion, error) {
	if strings.TrimSpace(premise) == "" {
		return ConceptExpansion{}, &ConceptError{Cause: fmt.Errorf("empty premise")}
	}

	prompt := e.buildPrompt(premise, style)
	var lastErr error

	for attempt := 1; attempt <= conceptMaxAttempts; attempt++ {
		if attempt > 1 {
			prompt = e.buildPrompt(premise, style) + "\n\nIMPORTANT: Respond with a single JSON object only. No prose before or after."
			select {
			case <-ctx.Done():
				return ConceptExpansion{}, &ConceptError{Cause: ctx.Err()}
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, err := e.gen.Generate(ctx, provider.Request{
			Prompt:       prompt,
			SystemPrompt: "You are a story development assistant. You always answer with valid JSON.",
			MaxTokens:    1200,
			Temperature:  0.7,
		})
		if err != nil {
			lastErr = err
			e.logger.Warn("concept generation failed", "attempt", attempt, "error", err)
			continue
		}

		var expansion ConceptExpansion
		if err := ParseStructured(resp.Content, &expansion); err != nil {
			lastErr = err
			e.logger.Warn("concept response unparseable", "attempt", attempt, "error", err)
			continue
		}

		expansion.Confidence = conceptConfidence(expansion)
		expansion.Complexity = ComplexityForLength(targetWords)
		e.logger.Info("concept expanded",
			"genre", expansion.Genre,
			"confidence", expansion.Confidence,
			"complexity", expansion.Complexity)
		return expansion, nil
	}

	return ConceptExpansion{}, &ConceptError{Cause: lastErr}
}

func (e *ConceptExpander) buildPrompt(premise, style string) string {
	var b strings.Builder
	b.WriteString("Expand the following novel premise into a structured creative brief.\n\n")
	b.WriteString("Premise: ")
	b.WriteString(premise)
	if style != "" {
		b.WriteString("\nPreferred style: ")
		b.WriteString(style)
	}
	b.WriteString("\n\nRespond with JSON containing exactly these fields:\n")
	b.WriteString(`{
  "theme": "the central thematic idea",
  "genre": "primary genre",
  "main_conflict": "the driving conflict",
  "world_type": "contemporary, historical, secondary world, etc.",
  "tone": "overall tone",
  "protagonist_type": "who carries the story",
  "setting": "where and when it takes place",
  "core_message": "what the story says"
}`)
	return b.String()
}

// conceptConfidence scores field completeness. Required fields passed
// validation already; the optional fields move the score above the floor.
func conceptConfidence(c ConceptExpansion) float64 {
	score := 0.6
	if c.ProtagonistType != "" {
		score += 0.1
	}
	if c.Setting != "" {
		score += 0.1
	}
	if c.CoreMessage != "" {
		score += 0.1
	}
	if len(c.MainConflict) > 40 {
		score += 0.1
	}
	return score
}

// ComplexityForLength maps target word count to a complexity band, which in
// turn drives strategy depth and chapter sizing.
func ComplexityForLength(targetWords int) string {
	switch {
	case targetWords <= 5000:
		return ComplexitySimple
	case targetWords <= 30000:
		return ComplexityMedium
	case targetWords <= 100000:
		return ComplexityComplex
	default:
		return ComplexityEpic
	}
}

package novel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

const characterMaxAttempts = 3

// CharacterGenerator creates the cast and its relationship graph before
// chapter generation begins.
type CharacterGenerator struct {
	gen    TextGenerator
	logger *slog.Logger
}

func NewCharacterGenerator(gen TextGenerator) *CharacterGenerator {
	return &CharacterGenerator{
		gen:    gen,
		logger: slog.Default().With("component", "character_generator"),
	}
}

type characterSheet struct {
	Characters    []CharacterProfile `json:"characters" validate:"min=1,dive"`
	Relationships []Relationship     `json:"relationships" validate:"dive"`
}

// Generate produces the cast sized to the strategy's character depth, plus
// the relationship edges between them. Edges referring to characters outside
// the cast are kept; the consistency checker flags them as orphans instead
// of silently dropping story information.
func (g *CharacterGenerator) Generate(ctx context.Context, concept ConceptExpansion, strategy Strategy, world WorldBuilding) ([]CharacterProfile, []Relationship, error) {
	prompt := g.buildPrompt(concept, strategy, world)
	var lastErr error

	for attempt := 1; attempt <= characterMaxAttempts; attempt++ {
		if attempt > 1 {
			prompt += "\n\nIMPORTANT: Respond with a single JSON object only."
			select {
			case <-ctx.Done():
				return nil, nil, &CharacterError{Cause: ctx.Err()}
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, err := g.gen.Generate(ctx, provider.Request{
			Prompt:       prompt,
			SystemPrompt: "You are a character design assistant. You always answer with valid JSON.",
			MaxTokens:    2500,
			Temperature:  0.8,
		})
		if err != nil {
			lastErr = err
			g.logger.Warn("character generation failed", "attempt", attempt, "error", err)
			continue
		}

		var sheet characterSheet
		if err := ParseStructured(resp.Content, &sheet); err != nil {
			lastErr = err
			g.logger.Warn("character response unparseable", "attempt", attempt, "error", err)
			continue
		}

		if orphans := OrphanRelationships(sheet.Characters, sheet.Relationships); len(orphans) > 0 {
			g.logger.Warn("relationships reference unknown characters", "count", len(orphans))
		}
		g.logger.Info("cast generated",
			"characters", len(sheet.Characters),
			"relationships", len(sheet.Relationships))
		return sheet.Characters, sheet.Relationships, nil
	}

	return nil, nil, &CharacterError{Cause: lastErr}
}

func (g *CharacterGenerator) buildPrompt(concept ConceptExpansion, strategy Strategy, world WorldBuilding) string {
	count := castSizeFor(strategy.CharacterDepth)

	var b strings.Builder
	fmt.Fprintf(&b, "Design a cast of %d characters for a novel.\n\n", count)
	fmt.Fprintf(&b, "Genre: %s\nMain conflict: %s\nSetting: %s\nTone: %s\n",
		concept.Genre, concept.MainConflict, world.Setting, concept.Tone)
	b.WriteString("\nInclude exactly one protagonist and at least one antagonist. ")
	if strategy.CharacterDepth == DepthDeep {
		b.WriteString("Give every character a distinct inner life, history and agenda. ")
	}
	b.WriteString("\nRespond with JSON:\n")
	b.WriteString(`{
  "characters": [
    {
      "name": "full name",
      "role": "protagonist, antagonist or supporting",
      "age": 0,
      "personality": ["traits"],
      "background": "history in one or two sentences",
      "goals": ["what they want"],
      "skills": ["what they can do"]
    }
  ],
  "relationships": [
    {"from": "name", "to": "name", "kind": "ally, rival, family, etc.", "description": "one sentence"}
  ]
}`)
	return b.String()
}

func castSizeFor(depth string) int {
	switch depth {
	case DepthBasic:
		return 3
	case DepthMedium:
		return 5
	default:
		return 8
	}
}

// OrphanRelationships returns edges whose endpoints are not in the cast.
func OrphanRelationships(cast []CharacterProfile, edges []Relationship) []Relationship {
	known := make(map[string]bool, len(cast))
	for _, c := range cast {
		known[c.Name] = true
	}
	var orphans []Relationship
	for _, r := range edges {
		if !known[r.From] || !known[r.To] {
			orphans = append(orphans, r)
		}
	}
	return orphans
}

package novel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

const outlineMaxAttempts = 3

// Act boundaries as fractions of the estimated chapter count.
const (
	openingActEnd = 0.3
	middleActEnd  = 0.7
)

// OutlineEngine bootstraps the story skeleton and then refines one chapter
// outline at a time, always reacting to what was actually written rather
// than to what was planned.
type OutlineEngine struct {
	gen    TextGenerator
	logger *slog.Logger
}

func NewOutlineEngine(gen TextGenerator) *OutlineEngine {
	return &OutlineEngine{
		gen:    gen,
		logger: slog.Default().With("component", "outline_engine"),
	}
}

// Bootstrap establishes the world and the rough outline in two model calls.
// Each is retried up to outlineMaxAttempts; a persistent failure aborts the
// session with an OutlineError naming the stage.
func (e *OutlineEngine) Bootstrap(ctx context.Context, concept ConceptExpansion, strategy Strategy) (WorldBuilding, RoughOutline, error) {
	var world WorldBuilding
	if err := e.generateInto(ctx, e.worldPrompt(concept), 1500, &world); err != nil {
		return WorldBuilding{}, RoughOutline{}, &OutlineError{Stage: "world_building", Cause: err}
	}
	e.logger.Info("world established", "setting", world.Setting, "locations", len(world.Locations))

	var rough RoughOutline
	if err := e.generateInto(ctx, e.roughPrompt(concept, strategy, world), 2000, &rough); err != nil {
		return WorldBuilding{}, RoughOutline{}, &OutlineError{Stage: "rough_outline", Cause: err}
	}
	if rough.EstimatedChapters != strategy.ChapterCount {
		// The strategy's count is authoritative; the model's estimate is
		// advisory only.
		rough.EstimatedChapters = strategy.ChapterCount
	}
	e.logger.Info("rough outline established",
		"plot_points", len(rough.MajorPlotPoints),
		"estimated_chapters", rough.EstimatedChapters)

	return world, rough, nil
}

// RefineNextChapter produces the outline for the next uncommitted chapter.
// It reads only the committed state: the rough skeleton, the act the story
// is in, open plot threads, and the most recent chapter summaries.
func (e *OutlineEngine) RefineNextChapter(ctx context.Context, view View, strategy Strategy) (ChapterOutline, error) {
	number := view.CommittedCount + 1
	act := actFor(number, view.Rough.EstimatedChapters)

	var outline ChapterOutline
	if err := e.generateInto(ctx, e.chapterPrompt(view, strategy, number, act), 1200, &outline); err != nil {
		return ChapterOutline{}, &OutlineError{Stage: fmt.Sprintf("chapter_%d_outline", number), Cause: err}
	}

	// Number and target come from the loop, not the model.
	outline.Number = number
	if outline.TargetWordCount <= 0 {
		outline.TargetWordCount = strategy.WordsPerChapter
	}
	e.logger.Info("chapter outline refined", "chapter", number, "act", act, "title", outline.Title)
	return outline, nil
}

func (e *OutlineEngine) generateInto(ctx context.Context, prompt string, maxTokens int, v any) error {
	var lastErr error
	for attempt := 1; attempt <= outlineMaxAttempts; attempt++ {
		if attempt > 1 {
			prompt += "\n\nIMPORTANT: Respond with a single JSON object only."
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, err := e.gen.Generate(ctx, provider.Request{
			Prompt:       prompt,
			SystemPrompt: "You are a novel outlining assistant. You always answer with valid JSON.",
			MaxTokens:    maxTokens,
			Temperature:  0.7,
		})
		if err != nil {
			lastErr = err
			e.logger.Warn("outline generation failed", "attempt", attempt, "error", err)
			continue
		}
		if err := ParseStructured(resp.Content, v); err != nil {
			lastErr = err
			e.logger.Warn("outline response unparseable", "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}

func (e *OutlineEngine) worldPrompt(concept ConceptExpansion) string {
	var b strings.Builder
	b.WriteString("Design the world for a novel.\n\n")
	fmt.Fprintf(&b, "Genre: %s\nTheme: %s\nWorld type: %s\nTone: %s\nMain conflict: %s\n",
		concept.Genre, concept.Theme, concept.WorldType, concept.Tone, concept.MainConflict)
	b.WriteString("\nRespond with JSON:\n")
	b.WriteString(`{
  "setting": "where the story unfolds",
  "time_period": "when",
  "locations": ["key locations"],
  "social_structure": "how society is organized",
  "technology_level": "available technology or magic",
  "rules": ["rules of this world that must never be broken"]
}`)
	return b.String()
}

func (e *OutlineEngine) roughPrompt(concept ConceptExpansion, strategy Strategy, world WorldBuilding) string {
	var b strings.Builder
	b.WriteString("Create a rough outline for a novel. Major beats only; individual chapters are planned later, one at a time.\n\n")
	fmt.Fprintf(&b, "Genre: %s\nTheme: %s\nMain conflict: %s\nSetting: %s\n",
		concept.Genre, concept.Theme, concept.MainConflict, world.Setting)
	fmt.Fprintf(&b, "Structure: %s\nPlanned chapters: %d\nPacing: %s\n",
		strategy.StructureType, strategy.ChapterCount, strategy.Pacing)
	b.WriteString("\nRespond with JSON:\n")
	b.WriteString(`{
  "story_arc": "the overall arc in two or three sentences",
  "themes": ["themes to weave through"],
  "act_structure": ["what each act accomplishes"],
  "major_plot_points": ["the beats the story must hit, in order"],
  "estimated_chapters": 0
}`)
	return b.String()
}

func (e *OutlineEngine) chapterPrompt(view View, strategy Strategy, number int, act string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan chapter %d of %d for a novel in progress.\n\n", number, view.Rough.EstimatedChapters)
	fmt.Fprintf(&b, "Story arc: %s\n", view.Rough.StoryArc)
	fmt.Fprintf(&b, "Current act: %s\n", act)

	if points := plotPointsFor(view.Rough.MajorPlotPoints, number, view.Rough.EstimatedChapters); len(points) > 0 {
		b.WriteString("Plot points in play:\n")
		for _, p := range points {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(view.OpenThreads) > 0 {
		b.WriteString("Open plot threads that must eventually resolve:\n")
		for _, t := range view.OpenThreads {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if recent := lastN(view.Summaries, 2); len(recent) > 0 {
		b.WriteString("What just happened:\n")
		for _, s := range recent {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	for name, cs := range view.CharacterStates {
		fmt.Fprintf(&b, "Character %s: %s (mood: %s, at: %s)\n", name, cs.LastDevelopment, cs.Mood, cs.Location)
	}

	fmt.Fprintf(&b, "\nTarget length: about %d words.\n", strategy.WordsPerChapter)
	b.WriteString("\nRespond with JSON:\n")
	b.WriteString(`{
  "title": "chapter title",
  "summary": "what this chapter accomplishes",
  "key_events": ["events in order"],
  "target_word_count": 0,
  "characters": ["characters who appear"],
  "plot_advancement": "how the main conflict moves"
}`)
	return b.String()
}

// actFor places a chapter inside the three-act structure by its position in
// the estimated total.
func actFor(number, estimated int) string {
	if estimated <= 0 {
		return "development"
	}
	progress := float64(number) / float64(estimated)
	switch {
	case progress < openingActEnd:
		return "opening"
	case progress < middleActEnd:
		return "development"
	default:
		return "climax"
	}
}

// plotPointsFor maps the chapter's progress onto the rough outline's beat
// list so early chapters see early beats and late chapters see the ending.
func plotPointsFor(points []string, number, estimated int) []string {
	if len(points) == 0 || estimated <= 0 {
		return nil
	}
	progress := float64(number) / float64(estimated)
	idx := int(progress * float64(len(points)))
	if idx >= len(points) {
		idx = len(points) - 1
	}
	end := idx + 2
	if end > len(points) {
		end = len(points)
	}
	return points[idx:end]
}

func lastN(items []string, n int) []string {
	if n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}

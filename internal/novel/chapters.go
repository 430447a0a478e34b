package novel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// ErrCancelled is returned when a run is stopped between chapters. Chapters
// committed before the stop are preserved.
var ErrCancelled = errors.New("generation cancelled")

const (
	chapterMaxAttempts = 3

	// Accept bounds on generated length relative to the outline target.
	wordRatioMin = 0.8
	wordRatioMax = 1.2

	// Floor below which a chapter is rejected regardless of its target.
	minChapterWords = 100

	// Extra chapters allowed past the estimate when plot threads remain
	// open at the planned end.
	overrunAllowance = 2
)

// ChapterLoop drives sequential chapter generation: outline, generate,
// validate, check, commit, one chapter at a time. Strict ordering is the
// point; there is no look-ahead and no parallel chapter work.
type ChapterLoop struct {
	gen      TextGenerator
	outliner *OutlineEngine
	checker  *ConsistencyChecker
	assessor *QualityAssessor
	logger   *slog.Logger

	// Style is the caller's prose style preference, threaded into every
	// draft prompt when set.
	Style string

	// QualityFloor, when positive, marks chapters scoring below it. The
	// mark is advisory; low-scoring chapters still commit.
	QualityFloor float64

	// Cast and Relationships feed the consistency checker so it can catch
	// contradictions against character profiles, not just rolling state.
	Cast          []CharacterProfile
	Relationships []Relationship

	// Cancelled is consulted only at chapter boundaries; in-flight model
	// calls run to completion.
	Cancelled func() bool

	// OnChapter fires after each commit. Failures in the callback must not
	// affect the loop, so callers typically persist asynchronously.
	OnChapter func(ChapterContent, ConsistencyReport, QualityReport)

	// OnProgress reports committed and planned chapter counts.
	OnProgress func(done, planned int)
}

func NewChapterLoop(gen TextGenerator) *ChapterLoop {
	return &ChapterLoop{
		gen:      gen,
		outliner: NewOutlineEngine(gen),
		checker:  NewConsistencyChecker(gen),
		assessor: NewQualityAssessor(gen),
		logger:   slog.Default().With("component", "chapter_loop"),
	}
}

// Run generates chapters until the estimate is met, extending past it by at
// most overrunAllowance chapters when plot threads remain open. A chapter
// that fails validation chapterMaxAttempts times aborts the run with a
// ChapterError; everything committed before it survives.
func (l *ChapterLoop) Run(ctx context.Context, state *NarrativeState, strategy Strategy) error {
	planned := state.View().Rough.EstimatedChapters
	hardCap := planned + overrunAllowance

	for {
		done := state.CommittedCount()
		if done >= planned {
			if done >= hardCap || state.OpenThreadCount() == 0 {
				break
			}
			planned++
			l.logger.Info("extending past estimate to resolve open threads",
				"planned", planned, "open_threads", state.OpenThreadCount())
		}

		if l.Cancelled != nil && l.Cancelled() {
			l.logger.Info("cancelled at chapter boundary", "committed", done)
			return ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.generateOne(ctx, state, strategy, planned); err != nil {
			return err
		}
		if l.OnProgress != nil {
			l.OnProgress(state.CommittedCount(), planned)
		}
	}

	l.logger.Info("chapter loop complete", "chapters", state.CommittedCount())
	return nil
}

func (l *ChapterLoop) generateOne(ctx context.Context, state *NarrativeState, strategy Strategy, planned int) error {
	view := state.View()
	outline, err := l.outliner.RefineNextChapter(ctx, view, strategy)
	if err != nil {
		return err
	}

	content, err := l.draftChapter(ctx, view, outline, planned)
	if err != nil {
		return err
	}

	// Both checks are advisory. A failed check is logged and the chapter
	// commits anyway; stopping the run over a reviewer error would cost
	// more than an unreviewed chapter.
	consistency, err := l.checker.Check(ctx, view, l.Cast, l.Relationships, content)
	if err != nil {
		l.logger.Warn("consistency check skipped", "chapter", outline.Number, "error", err)
	} else {
		for _, issue := range consistency.Issues {
			content.ConsistencyNotes = append(content.ConsistencyNotes,
				fmt.Sprintf("[%s/%s] %s", issue.Category, issue.Severity, issue.Description))
		}
	}
	quality, err := l.assessor.AssessChapter(ctx, content)
	switch {
	case err != nil:
		l.logger.Warn("quality assessment skipped", "chapter", outline.Number, "error", err)
	case l.QualityFloor > 0 && quality.Overall < l.QualityFloor:
		l.logger.Warn("chapter quality below floor",
			"chapter", outline.Number,
			"score", quality.Overall,
			"floor", l.QualityFloor,
			"grade", quality.Grade)
		content.QualityNotes = append(content.QualityNotes,
			fmt.Sprintf("scored %.1f (%s), below the %.1f floor", quality.Overall, quality.Grade, l.QualityFloor))
	}

	delta := l.extractDelta(ctx, outline, &content)
	if err := state.CommitChapter(outline, content, delta); err != nil {
		return &ChapterError{Chapter: outline.Number, Attempts: 1, Cause: err}
	}
	l.logger.Info("chapter committed",
		"chapter", outline.Number,
		"words", content.WordCount,
		"open_threads", state.OpenThreadCount())

	if l.OnChapter != nil {
		l.OnChapter(content, consistency, quality)
	}
	return nil
}

// draftChapter generates prose and validates it, retrying with feedback up
// to chapterMaxAttempts.
func (l *ChapterLoop) draftChapter(ctx context.Context, view View, outline ChapterOutline, planned int) (ChapterContent, error) {
	var lastErr error

	for attempt := 1; attempt <= chapterMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ChapterContent{}, &ChapterError{Chapter: outline.Number, Attempts: attempt - 1, Cause: ctx.Err()}
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, err := l.gen.Generate(ctx, provider.Request{
			Prompt:       l.chapterPrompt(view, outline, planned, lastErr),
			SystemPrompt: "You are a novelist. Write immersive prose. Output only the chapter text, no headings or commentary.",
			MaxTokens:    outline.TargetWordCount * 2,
			Temperature:  0.85,
		})
		if err != nil {
			lastErr = err
			l.logger.Warn("chapter generation failed", "chapter", outline.Number, "attempt", attempt, "error", err)
			continue
		}

		text := strings.TrimSpace(resp.Content)
		if err := ValidateChapter(text, outline.TargetWordCount); err != nil {
			lastErr = err
			l.logger.Warn("chapter rejected", "chapter", outline.Number, "attempt", attempt, "reason", err)
			continue
		}

		return ChapterContent{
			Number:    outline.Number,
			Title:     outline.Title,
			Content:   text,
			WordCount: CountWords(text),
		}, nil
	}

	return ChapterContent{}, &ChapterError{Chapter: outline.Number, Attempts: chapterMaxAttempts, Cause: lastErr}
}

// ValidateChapter applies the structural gates: length within ratio bounds
// of the target, above the absolute floor, and shaped like narrative prose.
func ValidateChapter(text string, targetWords int) error {
	words := CountWords(text)
	if words < minChapterWords {
		return fmt.Errorf("only %d words, below the %d-word floor", words, minChapterWords)
	}
	if targetWords > 0 {
		ratio := float64(words) / float64(targetWords)
		if ratio < wordRatioMin || ratio > wordRatioMax {
			return fmt.Errorf("%d words is %.2fx the %d-word target, outside [%.1f, %.1f]",
				words, ratio, targetWords, wordRatioMin, wordRatioMax)
		}
	}
	if !strings.Contains(text, "\n") && words > 300 {
		return errors.New("no paragraph breaks in long text")
	}
	return nil
}

func (l *ChapterLoop) chapterPrompt(view View, outline ChapterOutline, planned int, prevErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write chapter %d of %d of a novel.\n\n", outline.Number, planned)
	fmt.Fprintf(&b, "Title: %s\nChapter goal: %s\n", outline.Title, outline.Summary)
	for _, ev := range outline.KeyEvents {
		fmt.Fprintf(&b, "- %s\n", ev)
	}

	fmt.Fprintf(&b, "\nSetting: %s\n", view.World.Setting)
	if len(view.World.Rules) > 0 {
		b.WriteString("World rules:\n")
		for _, r := range view.World.Rules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if recent := lastN(view.Summaries, 2); len(recent) > 0 {
		b.WriteString("What just happened:\n")
		for _, s := range recent {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(view.OpenThreads) > 0 {
		b.WriteString("Ongoing plot threads:\n")
		for _, t := range view.OpenThreads {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	for _, name := range outline.Characters {
		if cs, ok := view.CharacterStates[name]; ok {
			fmt.Fprintf(&b, "%s was last: %s (mood: %s, at: %s)\n",
				name, cs.LastDevelopment, cs.Mood, cs.Location)
		}
	}

	if l.Style != "" {
		fmt.Fprintf(&b, "\nWrite in this style: %s\n", l.Style)
	}
	fmt.Fprintf(&b, "\nWrite about %d words of prose.", outline.TargetWordCount)
	if prevErr != nil {
		fmt.Fprintf(&b, " The previous draft was rejected: %v.", prevErr)
	}
	return b.String()
}

// extractDelta asks the model what the chapter changed: summary, threads
// opened and resolved, character movement, new world facts. Extraction
// failures degrade to a summary-only delta so the commit can proceed.
func (l *ChapterLoop) extractDelta(ctx context.Context, outline ChapterOutline, content *ChapterContent) StateDelta {
	var parsed struct {
		Summary         string                    `json:"summary" validate:"required"`
		KeyEvents       []string                  `json:"key_events"`
		NewPlotThreads  []string                  `json:"new_plot_threads"`
		ResolvedThreads []string                  `json:"resolved_threads"`
		CharacterStates map[string]CharacterState `json:"character_states"`
		WorldFacts      []string                  `json:"world_facts"`
	}

	resp, err := l.gen.Generate(ctx, provider.Request{
		Prompt:       l.deltaPrompt(content.Content),
		SystemPrompt: "You are a continuity editor. You always answer with valid JSON.",
		MaxTokens:    1000,
		Temperature:  0.2,
	})
	if err == nil {
		err = ParseStructured(resp.Content, &parsed)
	}
	if err != nil {
		l.logger.Warn("delta extraction failed, committing with fallback summary",
			"chapter", outline.Number, "error", err)
		content.Summary = fallbackSummary(outline, content.Content)
		return StateDelta{}
	}

	content.Summary = parsed.Summary
	content.KeyEventsCovered = parsed.KeyEvents
	developments := make(map[string]string, len(parsed.CharacterStates))
	for name, cs := range parsed.CharacterStates {
		developments[name] = cs.LastDevelopment
	}
	content.CharacterDevelopments = developments

	return StateDelta{
		NewPlotThreads:  parsed.NewPlotThreads,
		ResolvedThreads: parsed.ResolvedThreads,
		CharacterStates: parsed.CharacterStates,
		WorldFacts:      parsed.WorldFacts,
	}
}

func (l *ChapterLoop) deltaPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Summarize this chapter and list what it changed in the story.\n\nChapter:\n")
	b.WriteString(text)
	b.WriteString("\n\nRespond with JSON:\n")
	b.WriteString(`{
  "summary": "two or three sentences",
  "key_events": ["events that occurred"],
  "new_plot_threads": ["threads this chapter opened"],
  "resolved_threads": ["threads this chapter closed"],
  "character_states": {"Name": {"last_development": "", "mood": "", "location": ""}},
  "world_facts": ["newly established facts about the world"]
}`)
	return b.String()
}

// fallbackSummary keeps the state usable when extraction fails: the outline
// goal plus the opening of the prose.
func fallbackSummary(outline ChapterOutline, text string) string {
	head := text
	if fields := strings.Fields(text); len(fields) > 40 {
		head = strings.Join(fields[:40], " ") + "…"
	}
	return fmt.Sprintf("%s. Opens: %s", outline.Summary, head)
}

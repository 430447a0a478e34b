package novel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// scriptedGen answers each pipeline call by recognizing its prompt. It
// stands in for the universal client the way the real loop uses it.
type scriptedGen struct {
	mu          sync.Mutex
	draftCalls  map[int]int
	failChapter int      // this chapter's prose always comes back too short
	openThreads []string // threads the first chapter's delta opens
	lowQuality  bool     // every assessment comes back far below any floor
	onDraft     func(chapter int)
	lastDraft   string
}

func newScriptedGen() *scriptedGen {
	return &scriptedGen{draftCalls: make(map[int]int)}
}

func (g *scriptedGen) Generate(_ context.Context, req provider.Request) (provider.Response, error) {
	p := req.Prompt
	switch {
	case strings.HasPrefix(p, "Plan chapter"):
		var n, total int
		fmt.Sscanf(p, "Plan chapter %d of %d", &n, &total)
		return jsonResp(fmt.Sprintf(`{
			"title": "Chapter %d",
			"summary": "chapter %d of %d happens",
			"key_events": ["an event"],
			"target_word_count": 200,
			"characters": ["Mara"]
		}`, n, n, total)), nil

	case strings.HasPrefix(p, "Write chapter"):
		var n int
		fmt.Sscanf(p, "Write chapter %d", &n)
		g.mu.Lock()
		g.draftCalls[n]++
		g.lastDraft = p
		g.mu.Unlock()
		if g.onDraft != nil {
			g.onDraft(n)
		}
		if n == g.failChapter {
			return textResp("far too short to pass"), nil
		}
		return textResp(strings.Repeat("steady narrative prose flows onward ", 40)), nil

	case strings.HasPrefix(p, "Review chapter"):
		return jsonResp(`{"issues": []}`), nil

	case strings.HasPrefix(p, "Assess chapter"):
		if g.lowQuality {
			return jsonResp(`{"plot_logic": 3, "character_consistency": 3, "language_quality": 2, "style_consistency": 3, "notes": []}`), nil
		}
		return jsonResp(`{"plot_logic": 8, "character_consistency": 8, "language_quality": 7, "style_consistency": 8, "notes": []}`), nil

	case strings.HasPrefix(p, "Summarize this chapter"):
		g.mu.Lock()
		threads := ""
		if len(g.openThreads) > 0 {
			quoted := make([]string, len(g.openThreads))
			for i, t := range g.openThreads {
				quoted[i] = fmt.Sprintf("%q", t)
			}
			threads = strings.Join(quoted, ",")
			g.openThreads = nil
		}
		g.mu.Unlock()
		return jsonResp(fmt.Sprintf(`{"summary": "things happened", "new_plot_threads": [%s]}`, threads)), nil
	}
	return provider.Response{}, fmt.Errorf("unexpected prompt: %.60s", p)
}

func (g *scriptedGen) drafts(chapter int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.draftCalls[chapter]
}

func jsonResp(s string) provider.Response {
	return provider.Response{Content: s, Provider: "test", TokensUsed: 10}
}

func textResp(s string) provider.Response {
	return provider.Response{Content: s, Provider: "test", TokensUsed: 10}
}

func loopFixture(t *testing.T, estimated int) (*NarrativeState, Strategy) {
	t.Helper()
	state := NewNarrativeState()
	if err := state.SetWorldBuilding(WorldBuilding{Setting: "a canal city", Locations: []string{"the archive"}}); err != nil {
		t.Fatal(err)
	}
	if err := state.SetRoughOutline(RoughOutline{
		StoryArc:          "a clerk uncovers a conspiracy",
		ActStructure:      []string{"setup", "pursuit", "reckoning"},
		MajorPlotPoints:   []string{"the letter", "the betrayal", "the flood"},
		EstimatedChapters: estimated,
	}); err != nil {
		t.Fatal(err)
	}
	return state, Strategy{ChapterCount: estimated, WordsPerChapter: 200, Pacing: PacingModerate}
}

func TestChapterLoopRunsToCompletion(t *testing.T) {
	gen := newScriptedGen()
	state, strategy := loopFixture(t, 4)
	loop := NewChapterLoop(gen)

	var progress []int
	loop.OnProgress = func(done, planned int) { progress = append(progress, done) }

	if err := loop.Run(context.Background(), state, strategy); err != nil {
		t.Fatalf("Run: %v", err)
	}

	chapters := state.Chapters()
	if len(chapters) != 4 {
		t.Fatalf("committed %d chapters, want 4", len(chapters))
	}
	for i, ch := range chapters {
		if ch.Number != i+1 {
			t.Errorf("chapter %d has number %d", i, ch.Number)
		}
		ratio := float64(ch.WordCount) / 200
		if ratio < wordRatioMin || ratio > wordRatioMax {
			t.Errorf("chapter %d word ratio %.2f outside bounds", ch.Number, ratio)
		}
		if ch.Summary == "" {
			t.Errorf("chapter %d committed without summary", ch.Number)
		}
	}
	if len(progress) != 4 || progress[3] != 4 {
		t.Errorf("progress callbacks = %v", progress)
	}
}

func TestChapterLoopFailsAfterExhaustedRetries(t *testing.T) {
	gen := newScriptedGen()
	gen.failChapter = 3
	state, strategy := loopFixture(t, 4)
	loop := NewChapterLoop(gen)

	err := loop.Run(context.Background(), state, strategy)
	var chErr *ChapterError
	if !errors.As(err, &chErr) {
		t.Fatalf("want *ChapterError, got %v", err)
	}
	if chErr.Chapter != 3 || chErr.Attempts != chapterMaxAttempts {
		t.Errorf("error = %+v, want chapter 3 after %d attempts", chErr, chapterMaxAttempts)
	}
	if gen.drafts(3) != chapterMaxAttempts {
		t.Errorf("chapter 3 drafted %d times, want %d", gen.drafts(3), chapterMaxAttempts)
	}

	// Everything committed before the failure survives.
	if got := state.CommittedCount(); got != 2 {
		t.Errorf("committed = %d, want 2", got)
	}
	if got := len(state.View().Summaries); got != 2 {
		t.Errorf("summaries = %d, want 2", got)
	}
}

func TestChapterLoopCancelsAtBoundary(t *testing.T) {
	gen := newScriptedGen()
	state, strategy := loopFixture(t, 5)
	loop := NewChapterLoop(gen)

	var cancelled bool
	loop.Cancelled = func() bool { return cancelled }
	loop.OnProgress = func(done, planned int) {
		if done == 2 {
			cancelled = true
		}
	}

	err := loop.Run(context.Background(), state, strategy)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("want ErrCancelled, got %v", err)
	}
	// The flag was raised after chapter 2 committed; chapter 3 never starts.
	if got := state.CommittedCount(); got != 2 {
		t.Errorf("committed = %d, want 2", got)
	}
	if gen.drafts(3) != 0 {
		t.Errorf("chapter 3 drafted %d times after cancel, want 0", gen.drafts(3))
	}
}

func TestChapterLoopFinishesInFlightChapterOnCancel(t *testing.T) {
	gen := newScriptedGen()
	state, strategy := loopFixture(t, 5)
	loop := NewChapterLoop(gen)

	// The stop request arrives while chapter 3's draft call is running.
	// That chapter must still commit; the loop cancels at the next boundary.
	var cancelled bool
	loop.Cancelled = func() bool { return cancelled }
	gen.onDraft = func(chapter int) {
		if chapter == 3 {
			cancelled = true
		}
	}

	err := loop.Run(context.Background(), state, strategy)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("want ErrCancelled, got %v", err)
	}
	if got := state.CommittedCount(); got != 3 {
		t.Errorf("committed = %d, want 3 (in-flight chapter finishes)", got)
	}
	if gen.drafts(4) != 0 {
		t.Errorf("chapter 4 drafted %d times after cancel, want 0", gen.drafts(4))
	}
}

func TestChapterLoopMarksChaptersBelowQualityFloor(t *testing.T) {
	gen := newScriptedGen()
	gen.lowQuality = true
	state, strategy := loopFixture(t, 2)
	loop := NewChapterLoop(gen)
	loop.QualityFloor = 6.0

	if err := loop.Run(context.Background(), state, strategy); err != nil {
		t.Fatalf("Run: %v", err)
	}

	chapters := state.Chapters()
	if len(chapters) != 2 {
		t.Fatalf("committed %d chapters, want 2 (low scores never block)", len(chapters))
	}
	for _, ch := range chapters {
		if len(ch.QualityNotes) == 0 {
			t.Errorf("chapter %d has no quality note despite scoring below the floor", ch.Number)
		}
	}
}

func TestChapterPromptCarriesStyle(t *testing.T) {
	gen := newScriptedGen()
	state, strategy := loopFixture(t, 1)
	loop := NewChapterLoop(gen)
	loop.Style = "sparse hardboiled noir"

	if err := loop.Run(context.Background(), state, strategy); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(gen.lastDraft, "sparse hardboiled noir") {
		t.Error("style preference missing from the draft prompt")
	}
}

func TestChapterLoopExtendsForOpenThreads(t *testing.T) {
	gen := newScriptedGen()
	gen.openThreads = []string{"an unresolved mystery"}
	state, strategy := loopFixture(t, 2)
	loop := NewChapterLoop(gen)

	if err := loop.Run(context.Background(), state, strategy); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The thread never resolves, so the loop runs to the hard cap and stops.
	want := 2 + overrunAllowance
	if got := state.CommittedCount(); got != want {
		t.Errorf("committed = %d, want %d", got, want)
	}
}

func TestValidateChapter(t *testing.T) {
	longProse := strings.Repeat("words keep arriving in order ", 40) // 200 words

	tests := []struct {
		name   string
		text   string
		target int
		wantOK bool
	}{
		{"on target", longProse, 200, true},
		{"slightly under", longProse, 240, true},
		{"far under target", longProse, 300, false},
		{"far over target", longProse, 120, false},
		{"below absolute floor", "a few words", 10, false},
		{"no target still needs floor", longProse, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChapter(tt.text, tt.target)
			if (err == nil) != tt.wantOK {
				t.Errorf("ValidateChapter = %v, wantOK %v", err, tt.wantOK)
			}
		})
	}

	t.Run("long unbroken text is rejected", func(t *testing.T) {
		wall := strings.Repeat("word ", 400)
		if err := ValidateChapter(strings.TrimSpace(wall), 400); err == nil {
			t.Error("400 words with no line breaks should fail")
		}
	})
}

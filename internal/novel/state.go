package novel

import (
	"errors"
	"fmt"
)

// NarrativeState is the evolving record of everything established so far in
// one session. It is owned exclusively by the session's chapter loop: other
// components read via View and hand back a StateDelta for the loop to apply,
// so no locking is needed inside a session.
type NarrativeState struct {
	world           WorldBuilding
	worldSet        bool
	rough           RoughOutline
	roughSet        bool
	plotThreads     []string
	resolvedThreads map[string]bool
	characterStates map[string]CharacterState
	summaries       []string
	chapters        []ChapterContent
	outlines        []ChapterOutline
}

// StateDelta is the set of narrative changes extracted from one committed
// chapter.
type StateDelta struct {
	NewPlotThreads  []string                  `json:"new_plot_threads"`
	ResolvedThreads []string                  `json:"resolved_threads"`
	CharacterStates map[string]CharacterState `json:"character_states"`
	WorldFacts      []string                  `json:"world_facts"`
}

// View is a read-only copy of the state handed to the outline engine and
// the checkers.
type View struct {
	World           WorldBuilding
	Rough           RoughOutline
	OpenThreads     []string
	CharacterStates map[string]CharacterState
	Summaries       []string
	CommittedCount  int
	LastChapter     *ChapterContent
}

func NewNarrativeState() *NarrativeState {
	return &NarrativeState{
		resolvedThreads: make(map[string]bool),
		characterStates: make(map[string]CharacterState),
	}
}

// SetWorldBuilding establishes the world. It may be called once; afterwards
// only AppendWorldFact may extend it.
func (s *NarrativeState) SetWorldBuilding(world WorldBuilding) error {
	if s.worldSet {
		return errors.New("world building already established")
	}
	s.world = world
	s.worldSet = true
	return nil
}

// SetRoughOutline records the write-once story skeleton.
func (s *NarrativeState) SetRoughOutline(rough RoughOutline) error {
	if s.roughSet {
		return errors.New("rough outline already established")
	}
	s.rough = rough
	s.roughSet = true
	return nil
}

// AppendWorldFact extends the established rules. Facts are append-only;
// contradiction detection is the consistency checker's job.
func (s *NarrativeState) AppendWorldFact(fact string) {
	if fact == "" {
		return
	}
	s.world.Rules = append(s.world.Rules, fact)
}

// CommitChapter appends a validated chapter and applies its delta. The
// summaries list grows by exactly one per call and never shrinks, so its
// length always equals the committed-chapter count.
func (s *NarrativeState) CommitChapter(outline ChapterOutline, content ChapterContent, delta StateDelta) error {
	if content.Summary == "" {
		return fmt.Errorf("chapter %d: refusing to commit without a summary", outline.Number)
	}

	s.outlines = append(s.outlines, outline)
	s.chapters = append(s.chapters, content)
	s.summaries = append(s.summaries, content.Summary)

	for _, thread := range delta.NewPlotThreads {
		if thread != "" && !s.hasThread(thread) {
			s.plotThreads = append(s.plotThreads, thread)
		}
	}
	for _, thread := range delta.ResolvedThreads {
		s.resolvedThreads[thread] = true
	}
	for name, cs := range delta.CharacterStates {
		s.characterStates[name] = cs
	}
	for _, fact := range delta.WorldFacts {
		s.AppendWorldFact(fact)
	}

	return nil
}

// ReplaceChapter swaps a committed chapter wholesale, preserving position.
// Entries are never patched in place.
func (s *NarrativeState) ReplaceChapter(number int, content ChapterContent) error {
	idx := number - 1
	if idx < 0 || idx >= len(s.chapters) {
		return fmt.Errorf("chapter %d not committed", number)
	}
	s.chapters[idx] = content
	s.summaries[idx] = content.Summary
	return nil
}

// View snapshots the state for read-only consumers.
func (s *NarrativeState) View() View {
	open := make([]string, 0, len(s.plotThreads))
	for _, thread := range s.plotThreads {
		if !s.resolvedThreads[thread] {
			open = append(open, thread)
		}
	}

	states := make(map[string]CharacterState, len(s.characterStates))
	for name, cs := range s.characterStates {
		states[name] = cs
	}

	view := View{
		World:           s.world,
		Rough:           s.rough,
		OpenThreads:     open,
		CharacterStates: states,
		Summaries:       append([]string(nil), s.summaries...),
		CommittedCount:  len(s.chapters),
	}
	if len(s.chapters) > 0 {
		last := s.chapters[len(s.chapters)-1]
		view.LastChapter = &last
	}
	return view
}

// Chapters returns a copy of the committed chapters in order.
func (s *NarrativeState) Chapters() []ChapterContent {
	return append([]ChapterContent(nil), s.chapters...)
}

// CommittedCount reports how many chapters have passed validation and been
// committed.
func (s *NarrativeState) CommittedCount() int {
	return len(s.chapters)
}

// OpenThreadCount reports how many plot threads remain unresolved.
func (s *NarrativeState) OpenThreadCount() int {
	count := 0
	for _, thread := range s.plotThreads {
		if !s.resolvedThreads[thread] {
			count++
		}
	}
	return count
}

// RecentSummaries returns the last n chapter summaries, newest last. Only
// the most recent one or two are passed verbatim into prompts; older
// chapters survive as plot-thread existence facts.
func (s *NarrativeState) RecentSummaries(n int) []string {
	if n <= 0 || len(s.summaries) == 0 {
		return nil
	}
	if n > len(s.summaries) {
		n = len(s.summaries)
	}
	return append([]string(nil), s.summaries[len(s.summaries)-n:]...)
}

func (s *NarrativeState) hasThread(thread string) bool {
	for _, t := range s.plotThreads {
		if t == thread {
			return true
		}
	}
	return false
}

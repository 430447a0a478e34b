package novel

import "fmt"

// OutlineError means outline bootstrapping failed after its retry budget.
// Session-fatal.
type OutlineError struct {
	Stage string // world_building or rough_outline
	Cause error
}

func (e *OutlineError) Error() string {
	return fmt.Sprintf("outline bootstrap failed at %s: %v", e.Stage, e.Cause)
}

func (e *OutlineError) Unwrap() error {
	return e.Cause
}

// ChapterError means one chapter exhausted its generation attempts.
// Session-fatal: no partial novel is ever reported as complete.
type ChapterError struct {
	Chapter  int
	Attempts int
	Cause    error
}

func (e *ChapterError) Error() string {
	return fmt.Sprintf("chapter %d generation failed after %d attempts: %v", e.Chapter, e.Attempts, e.Cause)
}

func (e *ChapterError) Unwrap() error {
	return e.Cause
}

// ConceptError means concept expansion failed after its retry budget.
type ConceptError struct {
	Cause error
}

func (e *ConceptError) Error() string {
	return fmt.Sprintf("concept expansion failed: %v", e.Cause)
}

func (e *ConceptError) Unwrap() error {
	return e.Cause
}

// CharacterError means the character phase failed after its retry budget.
type CharacterError struct {
	Cause error
}

func (e *CharacterError) Error() string {
	return fmt.Sprintf("character generation failed: %v", e.Cause)
}

func (e *CharacterError) Unwrap() error {
	return e.Cause
}

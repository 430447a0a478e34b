package novel

import (
	"context"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// TextGenerator is the narrow view of the universal client the pipeline
// components depend on. Owning the interface here keeps every pipeline
// package a leaf with respect to the client layer.
type TextGenerator interface {
	Generate(ctx context.Context, req provider.Request) (provider.Response, error)
}

// ConceptExpansion is the structured reading of the user's one-line idea.
type ConceptExpansion struct {
	Theme           string `json:"theme" validate:"required"`
	Genre           string `json:"genre" validate:"required"`
	MainConflict    string `json:"main_conflict" validate:"required"`
	WorldType       string `json:"world_type" validate:"required"`
	Tone            string `json:"tone" validate:"required"`
	ProtagonistType string `json:"protagonist_type"`
	Setting         string `json:"setting"`
	CoreMessage     string `json:"core_message"`

	// Derived locally, never parsed from the model.
	Confidence float64 `json:"-"`
	Complexity string  `json:"-"`
}

// Strategy is the locally computed generation plan. No LLM call is involved
// in producing it.
type Strategy struct {
	NovelType       string
	StructureType   string
	ChapterCount    int
	WordsPerChapter int
	CharacterDepth  string
	Pacing          string
	VolumeCount     int
}

// WorldBuilding is written once at session start. Facts may be appended but
// never contradicted afterwards.
type WorldBuilding struct {
	Setting         string   `json:"setting" validate:"required"`
	TimePeriod      string   `json:"time_period"`
	Locations       []string `json:"locations" validate:"min=1"`
	SocialStructure string   `json:"social_structure"`
	TechnologyLevel string   `json:"technology_level"`
	Rules           []string `json:"rules"`
}

// RoughOutline is the write-once story skeleton the progressive engine
// refines one chapter at a time.
type RoughOutline struct {
	StoryArc          string   `json:"story_arc" validate:"required"`
	Themes            []string `json:"themes"`
	ActStructure      []string `json:"act_structure" validate:"min=1"`
	MajorPlotPoints   []string `json:"major_plot_points" validate:"min=1"`
	EstimatedChapters int      `json:"estimated_chapters" validate:"min=1"`
}

// ChapterOutline is produced immediately before its chapter is generated,
// never in bulk, so later outlines can react to what was actually written.
type ChapterOutline struct {
	Number          int      `json:"number"`
	Title           string   `json:"title" validate:"required"`
	Summary         string   `json:"summary" validate:"required"`
	KeyEvents       []string `json:"key_events"`
	TargetWordCount int      `json:"target_word_count" validate:"min=1"`
	Characters      []string `json:"characters"`
	PlotAdvancement string   `json:"plot_advancement"`
}

// ChapterContent is immutable once committed. A regenerated chapter
// replaces the entry wholesale, never patches it in place.
type ChapterContent struct {
	Number                int               `json:"number"`
	Title                 string            `json:"title"`
	Content               string            `json:"content"`
	WordCount             int               `json:"word_count"`
	Summary               string            `json:"summary"`
	KeyEventsCovered      []string          `json:"key_events_covered"`
	CharacterDevelopments map[string]string `json:"character_developments"`
	ConsistencyNotes      []string          `json:"consistency_notes"`
	QualityNotes          []string          `json:"quality_notes"`
}

// CharacterProfile is created once during the character phase.
type CharacterProfile struct {
	Name        string   `json:"name" validate:"required"`
	Role        string   `json:"role" validate:"required"`
	Age         int      `json:"age"`
	Personality []string `json:"personality"`
	Background  string   `json:"background"`
	Goals       []string `json:"goals"`
	Skills      []string `json:"skills"`
}

// Relationship is an edge in the character graph, keyed by the name pair
// and owned jointly by both ends. Removing a character orphans its edges;
// the consistency checker flags orphans rather than cascading deletes.
type Relationship struct {
	From        string `json:"from" validate:"required"`
	To          string `json:"to" validate:"required"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// CharacterState is the per-character rolling state upserted after every
// committed chapter.
type CharacterState struct {
	LastDevelopment string `json:"last_development"`
	Mood            string `json:"mood"`
	Location        string `json:"location"`
}

// ConsistencyIssue is one detected contradiction.
type ConsistencyIssue struct {
	Category    string `json:"category"` // character, plot, world
	Description string `json:"description"`
	Severity    string `json:"severity"` // low, medium, high
}

// ConsistencyReport aggregates issues for one chapter. It is advisory and
// never blocks a commit.
type ConsistencyReport struct {
	Issues   []ConsistencyIssue `json:"issues"`
	Severity string             `json:"severity"`
	Score    float64            `json:"score"`
}

// QualityReport scores text across the four assessment dimensions.
type QualityReport struct {
	PlotLogic            float64  `json:"plot_logic"`
	CharacterConsistency float64  `json:"character_consistency"`
	LanguageQuality      float64  `json:"language_quality"`
	StyleConsistency     float64  `json:"style_consistency"`
	Overall              float64  `json:"overall"`
	Grade                string   `json:"grade"`
	Notes                []string `json:"notes"`
}

// Novel is the assembled result of one completed session.
type Novel struct {
	Concept       ConceptExpansion   `json:"concept"`
	Strategy      Strategy           `json:"strategy"`
	WorldBuilding WorldBuilding      `json:"world_building"`
	RoughOutline  RoughOutline       `json:"rough_outline"`
	Characters    []CharacterProfile `json:"characters"`
	Relationships []Relationship     `json:"relationships"`
	Chapters      []ChapterContent   `json:"chapters"`
	TotalWords    int                `json:"total_words"`
	Quality       QualityReport      `json:"quality"`
}

// CountWords counts whitespace-separated tokens. Word-count gates and
// chapter targets all use this one definition.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

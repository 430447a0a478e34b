package novel

import (
	"log/slog"
	"strings"
)

// Strategy depth and pacing values.
const (
	DepthBasic  = "basic"
	DepthMedium = "medium"
	DepthDeep   = "deep"

	PacingFast     = "fast"
	PacingModerate = "moderate"
	PacingSlow     = "slow"
)

// SelectStrategy derives a generation plan from the concept and target
// length. It is deterministic and makes no model calls: the same concept and
// length always produce the same plan.
func SelectStrategy(concept ConceptExpansion, targetWords int) Strategy {
	chapters := chapterCountFor(targetWords)

	strategy := Strategy{
		NovelType:       novelTypeFor(targetWords),
		StructureType:   structureFor(concept),
		ChapterCount:    chapters,
		WordsPerChapter: targetWords / chapters,
		CharacterDepth:  depthFor(concept.Complexity),
		Pacing:          pacingFor(concept, targetWords),
		VolumeCount:     volumeCountFor(targetWords),
	}

	slog.Default().With("component", "strategy").Info("strategy selected",
		"novel_type", strategy.NovelType,
		"chapters", strategy.ChapterCount,
		"words_per_chapter", strategy.WordsPerChapter,
		"depth", strategy.CharacterDepth,
		"pacing", strategy.Pacing)
	return strategy
}

func chapterCountFor(targetWords int) int {
	switch {
	case targetWords <= 10000:
		return clamp(targetWords/2000, 2, 8)
	case targetWords <= 100000:
		return clamp(targetWords/4000, 5, 30)
	default:
		return clamp(targetWords/5000, 20, 60)
	}
}

func novelTypeFor(targetWords int) string {
	switch {
	case targetWords <= 10000:
		return "short_story"
	case targetWords <= 50000:
		return "novella"
	case targetWords <= 150000:
		return "novel"
	default:
		return "epic"
	}
}

func volumeCountFor(targetWords int) int {
	if targetWords <= 150000 {
		return 1
	}
	return clamp(targetWords/150000, 2, 10)
}

func structureFor(concept ConceptExpansion) string {
	genre := strings.ToLower(concept.Genre)
	switch {
	case strings.Contains(genre, "mystery"), strings.Contains(genre, "thriller"):
		return "question_driven"
	case strings.Contains(genre, "romance"):
		return "relationship_arc"
	default:
		return "three_act"
	}
}

func depthFor(complexity string) string {
	switch complexity {
	case ComplexitySimple:
		return DepthBasic
	case ComplexityMedium:
		return DepthMedium
	default:
		return DepthDeep
	}
}

func pacingFor(concept ConceptExpansion, targetWords int) string {
	genre := strings.ToLower(concept.Genre)
	switch {
	case strings.Contains(genre, "thriller"), strings.Contains(genre, "action"):
		return PacingFast
	case strings.Contains(genre, "literary"), strings.Contains(genre, "drama"):
		return PacingSlow
	case targetWords <= 10000:
		return PacingFast
	default:
		return PacingModerate
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

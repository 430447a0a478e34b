package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/semaphore"

	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/provider"
	"github.com/vampirenirmal/novelforge/internal/storage"
)

var requestValidator = validator.New()

// ErrSessionNotFound is returned for lookups of unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ErrBusy is returned when all generation slots are taken.
var ErrBusy = errors.New("generation capacity exhausted")

// Manager owns all sessions and runs their pipelines on a bounded number of
// worker goroutines.
type Manager struct {
	gen    novel.TextGenerator
	store  storage.Store
	sem    *semaphore.Weighted
	logger *slog.Logger

	qualityFloor float64

	sessions sync.Map // id -> *Session
	wg       sync.WaitGroup
}

// Option customizes a Manager.
type Option func(*Manager)

// WithQualityFloor marks chapters whose assessed score falls below floor.
// The mark is advisory; low-scoring chapters still commit.
func WithQualityFloor(floor float64) Option {
	return func(m *Manager) {
		m.qualityFloor = floor
	}
}

func NewManager(gen novel.TextGenerator, store storage.Store, maxConcurrent int64, opts ...Option) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	m := &Manager{
		gen:    gen,
		store:  store,
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: slog.Default().With("component", "session_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers a session and launches its pipeline. It returns ErrBusy
// instead of queueing when every slot is taken, so callers can apply
// backpressure.
func (m *Manager) Start(req Request) (*Session, error) {
	if err := requestValidator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if !m.sem.TryAcquire(1) {
		return nil, ErrBusy
	}

	s := newSession(req)
	m.sessions.Store(s.ID, s)
	m.logger.Info("session started", "session", s.ID, "target_words", req.TargetWords)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.sem.Release(1)
		m.run(s)
	}()
	return s, nil
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return v.(*Session), nil
}

// Cancel requests a cooperative stop of a running session.
func (m *Manager) Cancel(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Cancel()
	m.logger.Info("cancellation requested", "session", id)
	return nil
}

// Wait blocks until every running pipeline has finished. Used on shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// run executes the full pipeline. The context is detached from any HTTP
// request: generation outlives the call that started it.
func (m *Manager) run(s *Session) {
	ctx := context.Background()
	logger := m.logger.With("session", s.ID)
	s.setStatus(StatusRunning)

	result, err := m.pipeline(ctx, s, logger)
	switch {
	case errors.Is(err, novel.ErrCancelled):
		s.setStatus(StatusCancelled)
		logger.Info("session cancelled")
	case err != nil:
		s.fail(err)
		logger.Error("session failed", "error", err)
	default:
		s.finish(result)
		logger.Info("session completed", "words", result.TotalWords, "grade", result.Quality.Grade)
	}
}

// pinnedGenerator stamps the session's preferred provider onto every
// request that does not name one, leaving routing to decide the rest.
type pinnedGenerator struct {
	gen      novel.TextGenerator
	provider string
}

func (p pinnedGenerator) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	if req.Provider == "" {
		req.Provider = p.provider
	}
	return p.gen.Generate(ctx, req)
}

func (m *Manager) pipeline(ctx context.Context, s *Session, logger *slog.Logger) (*novel.Novel, error) {
	req := s.Request
	gen := m.gen
	if req.Provider != "" {
		gen = pinnedGenerator{gen: m.gen, provider: req.Provider}
	}

	s.setStage("concept", progressConcept)
	concept, err := novel.NewConceptExpander(gen).Expand(ctx, req.Premise, req.Style, req.TargetWords)
	if err != nil {
		return nil, err
	}

	s.setStage("strategy", progressStrategy)
	strategy := novel.SelectStrategy(concept, req.TargetWords)

	s.setStage("outline", progressOutline)
	engine := novel.NewOutlineEngine(gen)
	world, rough, err := engine.Bootstrap(ctx, concept, strategy)
	if err != nil {
		return nil, err
	}

	state := novel.NewNarrativeState()
	if err := state.SetWorldBuilding(world); err != nil {
		return nil, err
	}
	if err := state.SetRoughOutline(rough); err != nil {
		return nil, err
	}

	s.setStage("characters", progressCharacters)
	cast, relationships, err := novel.NewCharacterGenerator(gen).Generate(ctx, concept, strategy, world)
	if err != nil {
		return nil, err
	}
	m.persist(logger, "characters", func(ctx context.Context) error {
		return m.store.SaveCharacters(ctx, s.ID, cast)
	})

	s.setStage("chapters", progressCharacters)
	loop := novel.NewChapterLoop(gen)
	loop.Style = req.Style
	loop.QualityFloor = m.qualityFloor
	loop.Cast = cast
	loop.Relationships = relationships
	loop.Cancelled = s.Cancelled
	loop.OnProgress = func(done, planned int) {
		s.setStage(fmt.Sprintf("chapter %d/%d", done, planned), chapterProgress(done, planned))
	}
	loop.OnChapter = func(ch novel.ChapterContent, consistency novel.ConsistencyReport, quality novel.QualityReport) {
		logger.Info("chapter ready",
			"chapter", ch.Number,
			"consistency_score", consistency.Score,
			"quality_score", quality.Overall)
		m.persist(logger, fmt.Sprintf("chapter %d", ch.Number), func(ctx context.Context) error {
			return m.store.SaveChapter(ctx, s.ID, ch)
		})
	}
	if err := loop.Run(ctx, state, strategy); err != nil {
		return nil, err
	}

	s.setStage("quality", progressQuality)
	chapters := state.Chapters()
	quality, err := novel.NewQualityAssessor(gen).AssessNovel(ctx, chapters)
	if err != nil {
		// Advisory. A finished manuscript without a grade beats no
		// manuscript.
		logger.Warn("final quality assessment skipped", "error", err)
	}

	total := 0
	for _, ch := range chapters {
		total += ch.WordCount
	}
	result := &novel.Novel{
		Concept:       concept,
		Strategy:      strategy,
		WorldBuilding: world,
		RoughOutline:  rough,
		Characters:    cast,
		Relationships: relationships,
		Chapters:      chapters,
		TotalWords:    total,
		Quality:       quality,
	}
	m.persist(logger, "novel", func(ctx context.Context) error {
		return m.store.SaveNovel(ctx, s.ID, *result)
	})
	return result, nil
}

// persist runs a storage write in the background. A failed write loses
// nothing but durability; generation never waits on the store.
func (m *Manager) persist(logger *slog.Logger, what string, fn func(context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := fn(context.Background()); err != nil {
			logger.Warn("persistence failed", "artifact", what, "error", err)
		}
	}()
}

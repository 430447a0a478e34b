package storage

import (
	"context"
	"sync"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// MemoryStore keeps everything in process memory. It backs tests and runs
// where persistence is disabled.
type MemoryStore struct {
	mu         sync.RWMutex
	chapters   map[string][]novel.ChapterContent
	characters map[string][]novel.CharacterProfile
	novels     map[string]novel.Novel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chapters:   make(map[string][]novel.ChapterContent),
		characters: make(map[string][]novel.CharacterProfile),
		novels:     make(map[string]novel.Novel),
	}
}

func (m *MemoryStore) SaveChapter(_ context.Context, sessionID string, chapter novel.ChapterContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A chapter saved again under the same number replaces the earlier copy.
	for i, ch := range m.chapters[sessionID] {
		if ch.Number == chapter.Number {
			m.chapters[sessionID][i] = chapter
			return nil
		}
	}
	m.chapters[sessionID] = append(m.chapters[sessionID], chapter)
	return nil
}

func (m *MemoryStore) SaveCharacters(_ context.Context, sessionID string, cast []novel.CharacterProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.characters[sessionID] = append([]novel.CharacterProfile(nil), cast...)
	return nil
}

func (m *MemoryStore) SaveNovel(_ context.Context, sessionID string, n novel.Novel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.novels[sessionID] = n
	return nil
}

func (m *MemoryStore) LoadNovel(_ context.Context, sessionID string) (novel.Novel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.novels[sessionID]
	if !ok {
		return novel.Novel{}, ErrNotFound
	}
	return n, nil
}

func (m *MemoryStore) LoadChapters(_ context.Context, sessionID string) ([]novel.ChapterContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chapters, ok := m.chapters[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]novel.ChapterContent(nil), chapters...), nil
}

package storage

import (
	"context"
	"errors"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// ErrNotFound is returned when a session has no stored artifact of the
// requested kind.
var ErrNotFound = errors.New("not found")

// Store persists generation artifacts per session. Writes happen while
// generation continues, so implementations must tolerate concurrent calls
// for different sessions; within one session writes are sequential.
type Store interface {
	SaveChapter(ctx context.Context, sessionID string, chapter novel.ChapterContent) error
	SaveCharacters(ctx context.Context, sessionID string, cast []novel.CharacterProfile) error
	SaveNovel(ctx context.Context, sessionID string, n novel.Novel) error
	LoadNovel(ctx context.Context, sessionID string) (novel.Novel, error)
	LoadChapters(ctx context.Context, sessionID string) ([]novel.ChapterContent, error)
}

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// Status is the lifecycle state of one generation session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Pipeline progress marks, in percent.
const (
	progressConcept    = 5
	progressStrategy   = 15
	progressOutline    = 20
	progressCharacters = 30
	progressChaptersTo = 90
	progressQuality    = 95
	progressDone       = 100
)

// Request describes one novel to generate. Style is a free-form prose
// preference carried into the concept and chapter prompts.
type Request struct {
	Premise     string `json:"premise" validate:"required,min=10"`
	TargetWords int    `json:"target_words" validate:"required,min=1000,max=1000000"`
	Style       string `json:"style" validate:"omitempty,max=200"`
	Provider    string `json:"provider"`
}

// Session tracks one generation run. Progress is monotonic: a stage that
// retries internally never makes the number go backwards.
type Session struct {
	ID        string
	Request   Request
	CreatedAt time.Time

	// Cancellation is cooperative: the flag is observed between chapters,
	// never mid-call.
	cancelled atomic.Bool

	mu        sync.RWMutex
	status    Status
	stage     string
	progress  int
	errMsg    string
	result    *novel.Novel
	updatedAt time.Time
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newSession(req Request) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Request:   req,
		CreatedAt: now,
		status:    StatusPending,
		updatedAt: now,
	}
}

// Cancel requests a cooperative stop. It returns immediately; the session
// reaches StatusCancelled at the next chapter boundary.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether a stop was requested.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// Snapshot returns a copy of the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:        s.ID,
		Status:    s.status,
		Stage:     s.stage,
		Progress:  s.progress,
		Error:     s.errMsg,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
	}
}

// Result returns the finished novel, or false while the session is still
// running or ended without one.
func (s *Session) Result() (*novel.Novel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil, false
	}
	return s.result, true
}

func (s *Session) setStage(stage string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
	if progress > s.progress {
		s.progress = progress
	}
	s.updatedAt = time.Now()
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.updatedAt = time.Now()
}

func (s *Session) finish(result *novel.Novel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusCompleted
	s.stage = "complete"
	s.progress = progressDone
	s.result = result
	s.updatedAt = time.Now()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.errMsg = err.Error()
	s.updatedAt = time.Now()
}

// chapterProgress maps committed-chapter counts onto the 30 to 90 percent
// band the chapter phase owns.
func chapterProgress(done, planned int) int {
	if planned <= 0 {
		return progressCharacters
	}
	span := progressChaptersTo - progressCharacters
	p := progressCharacters + done*span/planned
	if p > progressChaptersTo {
		p = progressChaptersTo
	}
	return p
}

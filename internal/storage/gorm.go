package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// ChapterRecord is one committed chapter row.
type ChapterRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;index:idx_session_chapter,unique"`
	Number    int    `gorm:"index:idx_session_chapter,unique"`
	Title     string `gorm:"size:255"`
	Content   string `gorm:"type:longtext"`
	WordCount int
	Summary   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CharacterRecord is one cast member; the profile is stored as JSON since
// it is read back whole, never queried by field.
type CharacterRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;index"`
	Name      string `gorm:"size:255"`
	Role      string `gorm:"size:64"`
	Profile   string `gorm:"type:text"`
	CreatedAt time.Time
}

// NovelRecord is the assembled manuscript for a completed session.
type NovelRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"size:64;uniqueIndex"`
	TotalWords int
	Grade      string `gorm:"size:8"`
	Payload    string `gorm:"type:longtext"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GormStore persists artifacts to MySQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the MySQL connection and migrates the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connecting to mysql: %w", err)
	}
	if err := db.AutoMigrate(&ChapterRecord{}, &CharacterRecord{}, &NovelRecord{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveChapter(ctx context.Context, sessionID string, chapter novel.ChapterContent) error {
	record := ChapterRecord{
		SessionID: sessionID,
		Number:    chapter.Number,
		Title:     chapter.Title,
		Content:   chapter.Content,
		WordCount: chapter.WordCount,
		Summary:   chapter.Summary,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "number"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("saving chapter %d: %w", chapter.Number, err)
	}
	return nil
}

func (s *GormStore) SaveCharacters(ctx context.Context, sessionID string, cast []novel.CharacterProfile) error {
	records := make([]CharacterRecord, 0, len(cast))
	for _, c := range cast {
		profile, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding character %s: %w", c.Name, err)
		}
		records = append(records, CharacterRecord{
			SessionID: sessionID,
			Name:      c.Name,
			Role:      c.Role,
			Profile:   string(profile),
		})
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("saving characters: %w", err)
	}
	return nil
}

func (s *GormStore) SaveNovel(ctx context.Context, sessionID string, n novel.Novel) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding novel: %w", err)
	}
	record := NovelRecord{
		SessionID:  sessionID,
		TotalWords: n.TotalWords,
		Grade:      n.Quality.Grade,
		Payload:    string(payload),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("saving novel: %w", err)
	}
	return nil
}

func (s *GormStore) LoadNovel(ctx context.Context, sessionID string) (novel.Novel, error) {
	var record NovelRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return novel.Novel{}, ErrNotFound
	}
	if err != nil {
		return novel.Novel{}, fmt.Errorf("loading novel: %w", err)
	}

	var n novel.Novel
	if err := json.Unmarshal([]byte(record.Payload), &n); err != nil {
		return novel.Novel{}, fmt.Errorf("decoding novel: %w", err)
	}
	return n, nil
}

func (s *GormStore) LoadChapters(ctx context.Context, sessionID string) ([]novel.ChapterContent, error) {
	var records []ChapterRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("number asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("loading chapters: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	chapters := make([]novel.ChapterContent, 0, len(records))
	for _, r := range records {
		chapters = append(chapters, novel.ChapterContent{
			Number:    r.Number,
			Title:     r.Title,
			Content:   r.Content,
			WordCount: r.WordCount,
			Summary:   r.Summary,
		})
	}
	return chapters, nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

// FileSystemStore writes session artifacts as JSON under a base directory:
//
//	<base>/sessions/<id>/chapters/chapter_003.json
//	<base>/sessions/<id>/characters.json
//	<base>/sessions/<id>/novel.json
type FileSystemStore struct {
	baseDir string
}

func NewFileSystemStore(baseDir string) *FileSystemStore {
	return &FileSystemStore{baseDir: baseDir}
}

// sessionDir validates the session ID and resolves its directory. IDs are
// caller-supplied strings, so path traversal has to be rejected here.
func (fs *FileSystemStore) sessionDir(sessionID string) (string, error) {
	cleaned := filepath.Clean(sessionID)
	if cleaned == "" || cleaned == "." || strings.Contains(cleaned, "..") ||
		filepath.IsAbs(cleaned) || strings.ContainsRune(cleaned, filepath.Separator) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}

	dir := filepath.Join(fs.baseDir, "sessions", cleaned)
	if !strings.HasPrefix(dir, fs.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return dir, nil
}

func (fs *FileSystemStore) SaveChapter(_ context.Context, sessionID string, chapter novel.ChapterContent) error {
	dir, err := fs.sessionDir(sessionID)
	if err != nil {
		return err
	}
	name := filepath.Join(dir, "chapters", fmt.Sprintf("chapter_%03d.json", chapter.Number))
	return writeJSON(name, chapter)
}

func (fs *FileSystemStore) SaveCharacters(_ context.Context, sessionID string, cast []novel.CharacterProfile) error {
	dir, err := fs.sessionDir(sessionID)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "characters.json"), cast)
}

func (fs *FileSystemStore) SaveNovel(_ context.Context, sessionID string, n novel.Novel) error {
	dir, err := fs.sessionDir(sessionID)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "novel.json"), n)
}

func (fs *FileSystemStore) LoadNovel(_ context.Context, sessionID string) (novel.Novel, error) {
	dir, err := fs.sessionDir(sessionID)
	if err != nil {
		return novel.Novel{}, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "novel.json"))
	if os.IsNotExist(err) {
		return novel.Novel{}, ErrNotFound
	}
	if err != nil {
		return novel.Novel{}, fmt.Errorf("reading novel: %w", err)
	}

	var n novel.Novel
	if err := json.Unmarshal(data, &n); err != nil {
		return novel.Novel{}, fmt.Errorf("decoding novel: %w", err)
	}
	return n, nil
}

func (fs *FileSystemStore) LoadChapters(_ context.Context, sessionID string) ([]novel.ChapterContent, error) {
	dir, err := fs.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "chapters", "chapter_*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	sort.Strings(matches)

	chapters := make([]novel.ChapterContent, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		var ch novel.ChapterContent
		if err := json.Unmarshal(data, &ch); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

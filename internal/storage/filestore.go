package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const stagePrefix = ".upload-"

// Layout maps a user to their on-disk directories:
//
//	<root>/<user_id>/files     uploaded originals
//	<root>/<user_id>/vectors   the user's vector collection
//
// Every path is a function of the user id only.
type Layout struct {
	root string
}

func NewLayout(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

func (l Layout) Root() string { return l.root }

func (l Layout) UserDir(userID uint) string {
	return filepath.Join(l.root, strconv.FormatUint(uint64(userID), 10))
}

func (l Layout) FilesDir(userID uint) string {
	return filepath.Join(l.UserDir(userID), "files")
}

func (l Layout) VectorDir(userID uint) string {
	return filepath.Join(l.UserDir(userID), "vectors")
}

// FileStore keeps the raw copies of uploaded files.
type FileStore struct {
	layout Layout
}

func NewFileStore(layout Layout) *FileStore {
	return &FileStore{layout: layout}
}

// EnsureUserDir creates the user's data directory.
func (s *FileStore) EnsureUserDir(userID uint) error {
	if err := os.MkdirAll(s.layout.UserDir(userID), 0o750); err != nil {
		return fmt.Errorf("create user dir failed: %w", err)
	}
	return nil
}

// List returns the names of the user's stored files, sorted.
func (s *FileStore) List(userID uint) ([]string, error) {
	entries, err := os.ReadDir(s.layout.FilesDir(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list user files failed: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), stagePrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Count returns how many files the user has stored.
func (s *FileStore) Count(userID uint) (int, error) {
	names, err := s.List(userID)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Path returns where name is stored for the user.
func (s *FileStore) Path(userID uint, name string) (string, error) {
	clean, err := CleanFilename(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.layout.FilesDir(userID), clean), nil
}

// Save writes content under the user's files dir and returns its path. An
// existing file with the same name is replaced.
func (s *FileStore) Save(userID uint, name string, content []byte) (string, error) {
	if _, err := CleanFilename(name); err != nil {
		return "", err
	}
	tmp, err := s.Stage(userID, content)
	if err != nil {
		return "", err
	}
	path, err := s.Commit(userID, name, tmp)
	if err != nil {
		_ = s.Remove(tmp)
		return "", err
	}
	return path, nil
}

// Stage writes content to a hidden temporary file in the user's files dir.
// Staged files are not listed or counted until Commit moves them into place.
func (s *FileStore) Stage(userID uint, content []byte) (string, error) {
	dir := s.layout.FilesDir(userID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create files dir failed: %w", err)
	}
	f, err := os.CreateTemp(dir, stagePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create staged file failed: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write staged file failed: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close staged file failed: %w", err)
	}
	return f.Name(), nil
}

// Commit renames a staged file over name, replacing any previous copy.
func (s *FileStore) Commit(userID uint, name, staged string) (string, error) {
	path, err := s.Path(userID, name)
	if err != nil {
		return "", err
	}
	if err := os.Chmod(staged, 0o640); err != nil {
		return "", fmt.Errorf("chmod staged file failed: %w", err)
	}
	if err := os.Rename(staged, path); err != nil {
		return "", fmt.Errorf("commit file failed: %w", err)
	}
	return path, nil
}

// Remove deletes a stored file; a missing file is not an error.
func (s *FileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file failed: %w", err)
	}
	return nil
}

// CleanFilename strips any directory part so uploads cannot escape the
// user's files dir. Names that would collide with staged files are rejected.
func CleanFilename(name string) (string, error) {
	clean := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if clean == "" || clean == "." || clean == ".." || clean == string(filepath.Separator) ||
		strings.HasPrefix(clean, stagePrefix) {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	return clean, nil
}

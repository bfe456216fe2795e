package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DeadlineStore persists attempt deadlines in a small YAML file so a taker can
// close the terminal and resume later. Every write replaces the file atomically.
type DeadlineStore struct {
	path string
	mu   sync.Mutex
}

type deadlineFile struct {
	Deadlines map[string]time.Time `yaml:"deadlines"`
}

func NewDeadlineStore(path string) *DeadlineStore {
	return &DeadlineStore{path: path}
}

func (s *DeadlineStore) LoadDeadline(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return time.Time{}, false, err
	}
	deadline, ok := f.Deadlines[key]
	return deadline, ok, nil
}

func (s *DeadlineStore) SaveDeadline(_ context.Context, key string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	f.Deadlines[key] = deadline.UTC()
	return s.write(f)
}

func (s *DeadlineStore) ClearDeadline(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Deadlines[key]; !ok {
		return nil
	}
	delete(f.Deadlines, key)
	return s.write(f)
}

func (s *DeadlineStore) read() (deadlineFile, error) {
	f := deadlineFile{Deadlines: make(map[string]time.Time)}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read deadlines: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode deadlines: %w", err)
	}
	if f.Deadlines == nil {
		f.Deadlines = make(map[string]time.Time)
	}
	return f, nil
}

func (s *DeadlineStore) write(f deadlineFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode deadlines: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".deadlines-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write deadlines: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close deadlines: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	jsonFileName = "projects.json"
	jsonMetaName = "projects.meta"
)

// JSONStore keeps the catalog as one JSON array in projects.json. Every write
// replaces the file through a rename, so a failed write leaves the old document.
//
// The largest id ever handed out is kept in projects.meta and written before
// the document, so a deleted id is not reused after a restart either.
type JSONStore struct {
	mu       sync.Mutex
	path     string
	metaPath string
	// highWater is the largest id handed out, here or by an earlier process.
	highWater int64

	createTemp func(dir, pattern string) (*os.File, error)
}

type jsonMeta struct {
	HighWater int64 `json:"high_water"`
}

// OpenJSON prepares projects.json in dataDir, writing "[]" if the file is absent.
func OpenJSON(dataDir string) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fail("open", fmt.Errorf("creating data directory: %w", err))
	}
	s := &JSONStore{
		path:       filepath.Join(dataDir, jsonFileName),
		metaPath:   filepath.Join(dataDir, jsonMetaName),
		createTemp: os.CreateTemp,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readMeta(); err != nil {
		return nil, fail("open", err)
	}
	projects, err := s.read()
	if err != nil {
		return nil, fail("open", err)
	}
	if projects == nil {
		if err := s.write([]Project{}); err != nil {
			return nil, fail("open", err)
		}
	}
	s.observe(projects)
	return s, nil
}

// Path returns the location of the JSON document.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Close() error { return nil }

// read returns nil (not an empty slice) when the file does not exist.
func (s *JSONStore) read() ([]Project, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	projects := []Project{}
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return projects, nil
}

func (s *JSONStore) readMeta() error {
	data, err := os.ReadFile(s.metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.metaPath, err)
	}
	var m jsonMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing %s: %w", s.metaPath, err)
	}
	if m.HighWater > s.highWater {
		s.highWater = m.HighWater
	}
	return nil
}

func (s *JSONStore) write(projects []Project) error {
	if projects == nil {
		projects = []Project{}
	}
	data, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding projects: %w", err)
	}
	return s.replaceFile(s.path, ".projects-*.json", data)
}

// reserve hands out n fresh ids and persists the new high-water mark. On
// failure nothing is reserved.
func (s *JSONStore) reserve(n int) ([]int64, error) {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = s.highWater + int64(i) + 1
	}
	if n == 0 {
		return ids, nil
	}
	data, err := json.Marshal(jsonMeta{HighWater: ids[n-1]})
	if err != nil {
		return nil, fmt.Errorf("encoding meta: %w", err)
	}
	if err := s.replaceFile(s.metaPath, ".projects-*.meta", data); err != nil {
		return nil, err
	}
	s.highWater = ids[n-1]
	return ids, nil
}

// replaceFile writes data to a temp file next to path and renames it over path.
func (s *JSONStore) replaceFile(path, pattern string, data []byte) error {
	tmp, err := s.createTemp(filepath.Dir(path), pattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func (s *JSONStore) observe(projects []Project) {
	for _, p := range projects {
		if p.ID > s.highWater {
			s.highWater = p.ID
		}
	}
}

func (s *JSONStore) LoadAll() ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.read()
	if err != nil {
		return nil, fail("load", err)
	}
	if projects == nil {
		if err := s.write([]Project{}); err != nil {
			return nil, fail("load", err)
		}
		return []Project{}, nil
	}
	s.observe(projects)
	return projects, nil
}

func (s *JSONStore) Insert(p Project) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.read()
	if err != nil {
		return 0, fail("insert", err)
	}
	s.observe(projects)

	ids, err := s.reserve(1)
	if err != nil {
		return 0, fail("insert", err)
	}
	p = p.Clone()
	p.ID = ids[0]
	if err := s.write(append(projects, p)); err != nil {
		return 0, fail("insert", err)
	}
	return p.ID, nil
}

// Update writes every field of p. An unknown id leaves the file untouched.
func (s *JSONStore) Update(p Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.read()
	if err != nil {
		return fail("update", err)
	}
	for i := range projects {
		if projects[i].ID == p.ID {
			projects[i] = p.Clone()
			return fail("update", s.write(projects))
		}
	}
	return nil
}

func (s *JSONStore) DeleteByID(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.read()
	if err != nil {
		return fail("delete", err)
	}
	for i := range projects {
		if projects[i].ID == id {
			projects = append(projects[:i], projects[i+1:]...)
			return fail("delete", s.write(projects))
		}
	}
	return nil
}

// ReplaceAll writes projects as the whole document with freshly assigned ids.
func (s *JSONStore) ReplaceAll(projects []Project) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return nil, fail("replace", err)
	}
	s.observe(current)

	ids, err := s.reserve(len(projects))
	if err != nil {
		return nil, fail("replace", err)
	}
	out := make([]Project, len(projects))
	for i, p := range projects {
		out[i] = p.Clone()
		out[i].ID = ids[i]
	}
	if err := s.write(out); err != nil {
		return nil, fail("replace", err)
	}
	return ids, nil
}

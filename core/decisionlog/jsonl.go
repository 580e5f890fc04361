package decisionlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/busalloc/core/model"
)

// JSONLStore appends a full snapshot of a decision on every write to a
// rotating JSONL file. The files are read once when the store opens, with the
// last snapshot of each id winning; reads are then served from memory.
type JSONLStore struct {
	mu     sync.Mutex
	mem    *MemoryStore
	logger *lumberjack.Logger
	path   string
}

// NewJSONLStore creates a store with rotation options in megabytes and days.
func NewJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*JSONLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	s := &JSONLStore{mem: NewMemoryStore(), path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.logger = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return s, nil
}

func (s *JSONLStore) Append(ctx context.Context, d model.Decision) error {
	if d.ID == "" {
		return fmt.Errorf("decision id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.mem.Get(ctx, d.ID); err == nil {
		return fmt.Errorf("decision %s already exists", d.ID)
	}
	if err := s.write(d); err != nil {
		return err
	}
	return s.mem.Append(ctx, d)
}

func (s *JSONLStore) Get(ctx context.Context, id string) (model.Decision, error) {
	return s.mem.Get(ctx, id)
}

func (s *JSONLStore) Update(ctx context.Context, id string, fn func(*model.Decision) error) (model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.mem.Get(ctx, id)
	if err != nil {
		return model.Decision{}, err
	}
	if err := fn(&d); err != nil {
		return model.Decision{}, err
	}
	d.ID = id
	if err := s.write(d); err != nil {
		return model.Decision{}, err
	}
	return s.mem.Update(ctx, id, func(cur *model.Decision) error {
		*cur = d
		return nil
	})
}

func (s *JSONLStore) Query(ctx context.Context, q Query) ([]model.Decision, error) {
	return s.mem.Query(ctx, q)
}

// Close closes the underlying writer.
func (s *JSONLStore) Close() error {
	return s.logger.Close()
}

func (s *JSONLStore) write(d model.Decision) error {
	return json.NewEncoder(s.logger).Encode(d)
}

// files returns rotated backups oldest first followed by the active file.
func (s *JSONLStore) files() ([]string, error) {
	ext := filepath.Ext(s.path)
	prefix := strings.TrimSuffix(s.path, ext)
	files, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil, err
	}
	var backups []string
	active := false
	for _, f := range files {
		if f == s.path {
			active = true
			continue
		}
		backups = append(backups, f)
	}
	sort.Strings(backups)
	if active {
		backups = append(backups, s.path)
	}
	return backups, nil
}

// load folds every snapshot on disk into the in-memory index.
func (s *JSONLStore) load() error {
	files, err := s.files()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, f := range files {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var d model.Decision
			if err := json.Unmarshal(scanner.Bytes(), &d); err != nil || d.ID == "" {
				continue
			}
			if _, err := s.mem.Update(ctx, d.ID, func(cur *model.Decision) error {
				*cur = d
				return nil
			}); err != nil {
				_ = s.mem.Append(ctx, d)
			}
		}
		serr := scanner.Err()
		_ = file.Close()
		if serr != nil {
			return serr
		}
	}
	return nil
}

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modq-go/internal/modq"
)

// FileStore is the default DecisionStore backend: the full record set lives
// in one JSON document, rewritten atomically on every mutation. The scale of
// a moderation queue (tens of records) makes whole-file rewrites cheap, and a
// single document keeps the cache trivially inspectable and portable.
type FileStore struct {
	mu      sync.Mutex
	path    string
	pending map[string]modq.PendingRequest
}

var _ modq.DecisionStore = (*FileStore)(nil)

// fileDocument is the on-disk layout.
type fileDocument struct {
	Pending map[string]modq.PendingRequest `json:"pending"`
}

// NewFileStore opens or creates the JSON decision cache at path. A missing
// file is an empty store; a corrupt file is an error so a damaged cache never
// silently loses decisions.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		pending: make(map[string]modq.PendingRequest),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading decision cache: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing decision cache %s: %w", path, err)
	}
	if doc.Pending != nil {
		s.pending = doc.Pending
	}
	return s, nil
}

// persist writes the document to a temp file in the cache directory and
// renames it over the target, so a crash mid-write never truncates the cache.
// Callers hold the lock.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(fileDocument{Pending: s.pending}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding decision cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".decisions-*.json")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing decision cache: %w", err)
	}
	return nil
}

func (s *FileStore) Insert(req modq.PendingRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := req.Identity()
	if _, ok := s.pending[key]; ok {
		return false, nil
	}
	s.pending[key] = cloneRequest(req)
	if err := s.persist(); err != nil {
		delete(s.pending, key)
		return false, err
	}
	return true, nil
}

func (s *FileStore) SetDecision(name string, d modq.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modq.NormalizeIdentity(name)
	req, ok := s.pending[key]
	if !ok {
		return modq.ErrUnknownIdentity
	}
	prev := req.Decision
	req.Decision = d
	s.pending[key] = req
	if err := s.persist(); err != nil {
		req.Decision = prev
		s.pending[key] = req
		return err
	}
	return nil
}

func (s *FileStore) ListPending() ([]modq.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []modq.PendingRequest
	for _, req := range s.pending {
		if req.Decision != modq.DecisionNone && !req.Executed {
			out = append(out, cloneRequest(req))
		}
	}
	return out, nil
}

func (s *FileStore) MarkExecuted(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modq.NormalizeIdentity(name)
	req, ok := s.pending[key]
	if !ok {
		return modq.ErrUnknownIdentity
	}
	delete(s.pending, key)
	if err := s.persist(); err != nil {
		s.pending[key] = req
		return err
	}
	return nil
}

func (s *FileStore) Get(name string) (*modq.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.pending[modq.NormalizeIdentity(name)]
	if !ok {
		return nil, nil
	}
	out := cloneRequest(req)
	return &out, nil
}

func (s *FileStore) SimilarFingerprint(fp string, maxDistance int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make(map[string]string, len(s.pending))
	for key, req := range s.pending {
		candidates[key] = req.Fingerprint
	}
	identity, ok := closestFingerprint(fp, maxDistance, candidates)
	return identity, ok, nil
}

func (s *FileStore) Cleanup(now time.Time, policy modq.CleanupPolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, req := range s.pending {
		if expired(req, now, policy) {
			delete(s.pending, key)
			removed++
		}
	}
	if removed > 0 {
		if err := s.persist(); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

func (s *FileStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the cache file location.
func (s *FileStore) Path() string { return s.path }

package store

import (
	"sync"
	"time"

	"modq-go/internal/modq"
)

// MemoryStore is an in-memory DecisionStore for tests and dry runs. Nothing
// survives process restart.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]modq.PendingRequest
}

var _ modq.DecisionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pending: make(map[string]modq.PendingRequest)}
}

func (s *MemoryStore) Insert(req modq.PendingRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := req.Identity()
	if _, ok := s.pending[key]; ok {
		return false, nil
	}
	s.pending[key] = cloneRequest(req)
	return true, nil
}

func (s *MemoryStore) SetDecision(name string, d modq.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modq.NormalizeIdentity(name)
	req, ok := s.pending[key]
	if !ok {
		return modq.ErrUnknownIdentity
	}
	req.Decision = d
	s.pending[key] = req
	return nil
}

func (s *MemoryStore) ListPending() ([]modq.PendingRequest, error) {
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

func (s *MemoryStore) MarkExecuted(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modq.NormalizeIdentity(name)
	if _, ok := s.pending[key]; !ok {
		return modq.ErrUnknownIdentity
	}
	delete(s.pending, key)
	return nil
}

func (s *MemoryStore) Get(name string) (*modq.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.pending[modq.NormalizeIdentity(name)]
	if !ok {
		return nil, nil
	}
	out := cloneRequest(req)
	return &out, nil
}

func (s *MemoryStore) SimilarFingerprint(fp string, maxDistance int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make(map[string]string, len(s.pending))
	for key, req := range s.pending {
		candidates[key] = req.Fingerprint
	}
	identity, ok := closestFingerprint(fp, maxDistance, candidates)
	return identity, ok, nil
}

func (s *MemoryStore) Cleanup(now time.Time, policy modq.CleanupPolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, req := range s.pending {
		if expired(req, now, policy) {
			delete(s.pending, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), nil
}

func (s *MemoryStore) Close() error { return nil }

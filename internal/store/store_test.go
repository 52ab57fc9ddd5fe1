package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modq-go/internal/modq"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// newBackends returns a fresh instance of every DecisionStore backend, each
// with its own temp location.
func newBackends(t *testing.T) map[string]modq.DecisionStore {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "decisions.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "decisions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	return map[string]modq.DecisionStore{
		"memory": NewMemoryStore(),
		"json":   fileStore,
		"sqlite": sqliteStore,
	}
}

func baseRequest(name string) modq.PendingRequest {
	return modq.PendingRequest{
		Name:       name,
		NotifiedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ExtraInfo:  "3 amici in comune",
		Buttons: map[string]modq.CardPoint{
			modq.ActionApprove: {X: 120, Y: 240},
			modq.ActionDecline: {X: 320, Y: 240},
		},
	}
}

func TestInsertGatesDuplicates(t *testing.T) {
	t.Parallel()

	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			inserted, err := s.Insert(baseRequest("Mario Rossi"))
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if !inserted {
				t.Fatal("first insert reported not-inserted")
			}

			if err := s.SetDecision("Mario Rossi", modq.DecisionApprove); err != nil {
				t.Fatalf("SetDecision: %v", err)
			}

			// Same identity under different casing: reject and preserve the
			// decision already made.
			inserted, err = s.Insert(baseRequest("MARIO ROSSI"))
			if err != nil {
				t.Fatalf("duplicate Insert: %v", err)
			}
			if inserted {
				t.Fatal("duplicate insert reported inserted")
			}

			got, err := s.Get("mario rossi")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil {
				t.Fatal("record missing after duplicate insert")
			}
			if got.Decision != modq.DecisionApprove {
				t.Fatalf("decision %q, want approve", got.Decision)
			}

			n, err := s.Count()
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != 1 {
				t.Fatalf("count %d, want 1", n)
			}
		})
	}
}

func TestDecisionLifecycle(t *testing.T) {
	t.Parallel()

	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			if _, err := s.Insert(baseRequest("Anna Bianchi")); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if _, err := s.Insert(baseRequest("Luca Verdi")); err != nil {
				t.Fatalf("Insert: %v", err)
			}

			// Undecided records are not pending work.
			pending, err := s.ListPending()
			if err != nil {
				t.Fatalf("ListPending: %v", err)
			}
			if len(pending) != 0 {
				t.Fatalf("got %d pending before any decision", len(pending))
			}

			if err := s.SetDecision("anna bianchi", modq.DecisionDecline); err != nil {
				t.Fatalf("SetDecision: %v", err)
			}

			pending, err = s.ListPending()
			if err != nil {
				t.Fatalf("ListPending: %v", err)
			}
			if len(pending) != 1 {
				t.Fatalf("got %d pending, want 1", len(pending))
			}
			if pending[0].Name != "Anna Bianchi" {
				t.Fatalf("pending name %q", pending[0].Name)
			}
			if pending[0].Decision != modq.DecisionDecline {
				t.Fatalf("pending decision %q", pending[0].Decision)
			}
			if pending[0].Buttons[modq.ActionDecline] != (modq.CardPoint{X: 320, Y: 240}) {
				t.Fatalf("buttons not preserved: %v", pending[0].Buttons)
			}

			if err := s.MarkExecuted("Anna Bianchi"); err != nil {
				t.Fatalf("MarkExecuted: %v", err)
			}
			got, err := s.Get("Anna Bianchi")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != nil {
				t.Fatal("record still present after MarkExecuted")
			}

			if err := s.MarkExecuted("Anna Bianchi"); !errors.Is(err, modq.ErrUnknownIdentity) {
				t.Fatalf("second MarkExecuted: %v, want ErrUnknownIdentity", err)
			}
			if err := s.SetDecision("nobody", modq.DecisionApprove); !errors.Is(err, modq.ErrUnknownIdentity) {
				t.Fatalf("SetDecision on absent: %v, want ErrUnknownIdentity", err)
			}
		})
	}
}

func TestGetAbsent(t *testing.T) {
	t.Parallel()

	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			got, err := s.Get("nobody")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != nil {
				t.Fatalf("got %+v for absent identity", got)
			}
		})
	}
}

func TestSimilarFingerprint(t *testing.T) {
	t.Parallel()

	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			req := baseRequest("Mario Rossi")
			req.Fingerprint = "00000000000000ff"
			if _, err := s.Insert(req); err != nil {
				t.Fatalf("Insert: %v", err)
			}

			tests := []struct {
				name        string
				fp          string
				maxDistance int
				wantOK      bool
			}{
				{name: "exact", fp: "00000000000000ff", maxDistance: 3, wantOK: true},
				{name: "within distance", fp: "00000000000000fe", maxDistance: 3, wantOK: true},
				{name: "at distance", fp: "00000000000000f8", maxDistance: 3, wantOK: true},
				{name: "beyond distance", fp: "0000000000000000", maxDistance: 3, wantOK: false},
				{name: "disabled", fp: "00000000000000ff", maxDistance: 0, wantOK: false},
				{name: "empty probe", fp: "", maxDistance: 3, wantOK: false},
			}
			for _, tt := range tests {
				identity, ok, err := s.SimilarFingerprint(tt.fp, tt.maxDistance)
				if err != nil {
					t.Fatalf("%s: SimilarFingerprint: %v", tt.name, err)
				}
				if ok != tt.wantOK {
					t.Errorf("%s: ok=%v, want %v", tt.name, ok, tt.wantOK)
				}
				if ok && identity != "mario rossi" {
					t.Errorf("%s: identity %q", tt.name, identity)
				}
			}
		})
	}
}

func TestSimilarFingerprintPicksClosest(t *testing.T) {
	t.Parallel()

	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			near := baseRequest("Near Match")
			near.Fingerprint = "00000000000000ff"
			far := baseRequest("Far Match")
			far.Fingerprint = "000000000000ffff"
			for _, req := range []modq.PendingRequest{near, far} {
				if _, err := s.Insert(req); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}

			identity, ok, err := s.SimilarFingerprint("00000000000000fe", 10)
			if err != nil {
				t.Fatalf("SimilarFingerprint: %v", err)
			}
			if !ok || identity != "near match" {
				t.Fatalf("got %q ok=%v, want near match", identity, ok)
			}
		})
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	policy := modq.DefaultCleanupPolicy

	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			fresh := baseRequest("Fresh Undecided")
			fresh.NotifiedAt = now.Add(-359 * time.Hour)

			stale := baseRequest("Stale Undecided")
			stale.NotifiedAt = now.Add(-361 * time.Hour)

			staleDecided := baseRequest("Stale Decided")
			staleDecided.NotifiedAt = now.Add(-361 * time.Hour)

			for _, req := range []modq.PendingRequest{fresh, stale, staleDecided} {
				if _, err := s.Insert(req); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}
			if err := s.SetDecision("Stale Decided", modq.DecisionApprove); err != nil {
				t.Fatalf("SetDecision: %v", err)
			}

			removed, err := s.Cleanup(now, policy)
			if err != nil {
				t.Fatalf("Cleanup: %v", err)
			}
			if removed != 2 {
				t.Fatalf("removed %d, want 2", removed)
			}

			got, err := s.Get("Fresh Undecided")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil {
				t.Fatal("fresh record was removed")
			}
			for _, name := range []string{"Stale Undecided", "Stale Decided"} {
				got, err := s.Get(name)
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if got != nil {
					t.Fatalf("%s survived cleanup", name)
				}
			}
		})
	}
}

func TestFileStoreReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "decisions.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	req := baseRequest("Mario Rossi")
	req.Fingerprint = "00000000000000ff"
	if _, err := s.Insert(req); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SetDecision("Mario Rossi", modq.DecisionApprove); err != nil {
		t.Fatalf("SetDecision: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("Mario Rossi")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("record missing after reopen")
	}
	if got.Decision != modq.DecisionApprove {
		t.Fatalf("decision %q after reopen", got.Decision)
	}
	if got.Fingerprint != "00000000000000ff" {
		t.Fatalf("fingerprint %q after reopen", got.Fingerprint)
	}
	if got.Buttons[modq.ActionApprove] != (modq.CardPoint{X: 120, Y: 240}) {
		t.Fatalf("buttons %v after reopen", got.Buttons)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "decisions.json")
	if err := writeFile(path, "not json"); err != nil {
		t.Fatalf("seeding corrupt file: %v", err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Fatal("expected error for corrupt cache file")
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "decisions.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	if _, err := s.Insert(baseRequest("Mario Rossi")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	n, err := reopened.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count %d after reopen, want 1", n)
	}
}

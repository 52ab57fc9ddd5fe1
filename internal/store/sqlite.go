package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modq-go/internal/modq"
	"modq-go/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore is the DecisionStore backend for deployments that want the
// cache queryable with standard tools. The schema is managed by embedded
// migrations.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ modq.DecisionStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the decision cache at path and brings its
// schema up to date. path may be ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer; the scan loop and the messaging channel both
	// mutate the store, so serialize instead of surfacing SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating decision cache: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Insert(req modq.PendingRequest) (bool, error) {
	buttons, err := encodeButtons(req.Buttons)
	if err != nil {
		return false, err
	}

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO pending_requests
			(identity, name, notified_at, decision, executed, extra_info,
			 fingerprint, buttons, crop_key, preview_key, unanswered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Identity(), req.Name, req.NotifiedAt, string(req.Decision), req.Executed,
		req.ExtraInfo, req.Fingerprint, buttons, req.CropKey, req.PreviewKey, req.Unanswered)
	if err != nil {
		return false, fmt.Errorf("inserting request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert result: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetDecision(name string, d modq.Decision) error {
	res, err := s.db.Exec(`UPDATE pending_requests SET decision = ? WHERE identity = ?`,
		string(d), modq.NormalizeIdentity(name))
	if err != nil {
		return fmt.Errorf("updating decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return modq.ErrUnknownIdentity
	}
	return nil
}

func (s *SQLiteStore) ListPending() ([]modq.PendingRequest, error) {
	rows, err := s.db.Query(selectColumns + ` WHERE decision != '' AND NOT executed`)
	if err != nil {
		return nil, fmt.Errorf("listing pending requests: %w", err)
	}
	defer rows.Close()

	var out []modq.PendingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing pending requests: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) MarkExecuted(name string) error {
	res, err := s.db.Exec(`DELETE FROM pending_requests WHERE identity = ?`,
		modq.NormalizeIdentity(name))
	if err != nil {
		return fmt.Errorf("removing executed request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return modq.ErrUnknownIdentity
	}
	return nil
}

func (s *SQLiteStore) Get(name string) (*modq.PendingRequest, error) {
	row := s.db.QueryRow(selectColumns+` WHERE identity = ?`, modq.NormalizeIdentity(name))
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (s *SQLiteStore) SimilarFingerprint(fp string, maxDistance int) (string, bool, error) {
	if maxDistance <= 0 || fp == "" {
		return "", false, nil
	}

	rows, err := s.db.Query(`SELECT identity, fingerprint FROM pending_requests WHERE fingerprint != ''`)
	if err != nil {
		return "", false, fmt.Errorf("loading fingerprints: %w", err)
	}
	defer rows.Close()

	candidates := make(map[string]string)
	for rows.Next() {
		var identity, candidate string
		if err := rows.Scan(&identity, &candidate); err != nil {
			return "", false, fmt.Errorf("scanning fingerprint row: %w", err)
		}
		candidates[identity] = candidate
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("loading fingerprints: %w", err)
	}

	identity, ok := closestFingerprint(fp, maxDistance, candidates)
	return identity, ok, nil
}

func (s *SQLiteStore) Cleanup(now time.Time, policy modq.CleanupPolicy) (int, error) {
	rows, err := s.db.Query(selectColumns)
	if err != nil {
		return 0, fmt.Errorf("loading requests for cleanup: %w", err)
	}

	var stale []string
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if expired(req, now, policy) {
			stale = append(stale, req.Identity())
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("loading requests for cleanup: %w", err)
	}
	rows.Close()

	for _, identity := range stale {
		if _, err := s.db.Exec(`DELETE FROM pending_requests WHERE identity = ?`, identity); err != nil {
			return 0, fmt.Errorf("removing stale request %s: %w", identity, err)
		}
	}
	return len(stale), nil
}

func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting requests: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

const selectColumns = `
	SELECT name, notified_at, decision, executed, extra_info,
	       fingerprint, buttons, crop_key, preview_key, unanswered
	FROM pending_requests`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (modq.PendingRequest, error) {
	var req modq.PendingRequest
	var decision, buttons string
	err := row.Scan(&req.Name, &req.NotifiedAt, &decision, &req.Executed, &req.ExtraInfo,
		&req.Fingerprint, &buttons, &req.CropKey, &req.PreviewKey, &req.Unanswered)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return req, err
		}
		return req, fmt.Errorf("scanning request row: %w", err)
	}
	req.Decision = modq.Decision(decision)
	req.Buttons, err = decodeButtons(buttons)
	if err != nil {
		return req, err
	}
	return req, nil
}

func encodeButtons(buttons map[string]modq.CardPoint) (string, error) {
	if len(buttons) == 0 {
		return "", nil
	}
	data, err := json.Marshal(buttons)
	if err != nil {
		return "", fmt.Errorf("encoding buttons: %w", err)
	}
	return string(data), nil
}

func decodeButtons(s string) (map[string]modq.CardPoint, error) {
	if s == "" {
		return nil, nil
	}
	var buttons map[string]modq.CardPoint
	if err := json.Unmarshal([]byte(s), &buttons); err != nil {
		return nil, fmt.Errorf("decoding buttons: %w", err)
	}
	return buttons, nil
}

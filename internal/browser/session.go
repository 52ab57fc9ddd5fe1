package browser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"modq-go/internal/modq"
)

// SessionState is everything needed to resume a logged-in browser: the
// cookie jar plus the user agent the cookies were issued under. Reusing the
// same user agent keeps the session from looking like a device change.
type SessionState struct {
	Cookies   []*network.Cookie `json:"cookies"`
	UserAgent string            `json:"user_agent"`
	SavedAt   time.Time         `json:"saved_at"`
}

// CookieParams converts the saved cookies into the form SetCookies accepts.
// Session cookies (no expiry) are carried over without one.
func (s *SessionState) CookieParams() []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// SessionStore persists SessionState encrypted at rest. A stolen session file
// is a logged-in account, so plaintext never touches disk.
type SessionStore struct {
	path      string
	encryptor modq.Encryptor
}

func NewSessionStore(path string, encryptor modq.Encryptor) *SessionStore {
	return &SessionStore{path: path, encryptor: encryptor}
}

// Exists reports whether a saved session is present.
func (s *SessionStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save encrypts and writes the session atomically.
func (s *SessionStore) Save(state *SessionState) error {
	plain, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	var encrypted bytes.Buffer
	if err := s.encryptor.Encrypt(bytes.NewReader(plain), &encrypted); err != nil {
		return fmt.Errorf("encrypting session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(encrypted.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp session file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("restricting session permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// ErrNoSession is returned by Load when no session has been saved yet.
var ErrNoSession = errors.New("no saved session")

// Load decrypts and parses the saved session.
func (s *SessionStore) Load(dec modq.DecryptionContext) (*SessionState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var plain bytes.Buffer
	if err := dec.Decrypt(bytes.NewReader(data), &plain); err != nil {
		return nil, fmt.Errorf("decrypting session: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(plain.Bytes(), &state); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &state, nil
}

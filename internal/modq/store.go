package modq

import (
	"errors"
	"strings"
	"time"
)

// Decision is the operator's verdict on a membership request.
type Decision string

const (
	DecisionNone    Decision = ""
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

// Valid reports whether d is a settable decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionDecline
}

// ErrUnknownIdentity is returned by store mutations targeting an identity
// that is not (or no longer) in the store. Callers treat "already gone" as an
// acceptable outcome: a second moderator may have resolved the request
// through the page's native UI.
var ErrUnknownIdentity = errors.New("identity not in store")

// NormalizeIdentity derives the store key from a display name.
func NormalizeIdentity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PendingRequest is the durable record of one moderation item, keyed by
// normalized identity.
type PendingRequest struct {
	Name       string    `json:"name"`
	NotifiedAt time.Time `json:"notified_at"`
	Decision   Decision  `json:"decision,omitempty"`
	Executed   bool      `json:"executed,omitempty"`
	ExtraInfo  string    `json:"extra_info,omitempty"`

	// Fingerprint is the card crop's perceptual hash as a 16-digit hex
	// string, empty when extraction never produced one.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Buttons maps action names ("approve", "decline") to card-local click
	// points discovered by OCR.
	Buttons map[string]CardPoint `json:"buttons,omitempty"`

	CropKey    string `json:"crop_key,omitempty"`
	PreviewKey string `json:"preview_key,omitempty"`
	Unanswered bool   `json:"unanswered,omitempty"`
}

// Identity returns the record's normalized key.
func (r PendingRequest) Identity() string { return NormalizeIdentity(r.Name) }

// CleanupPolicy holds the two independent age thresholds for dropping stale
// records: one for records the operator never decided, one for decided
// records whose click was never executed (the request may have been resolved
// out of band, making the queued decision permanently stale).
type CleanupPolicy struct {
	UndecidedMaxAge  time.Duration
	UnexecutedMaxAge time.Duration
}

// DefaultCleanupPolicy keeps records for 15 days in either state.
var DefaultCleanupPolicy = CleanupPolicy{
	UndecidedMaxAge:  360 * time.Hour,
	UnexecutedMaxAge: 360 * time.Hour,
}

// DecisionStore is the durable decision cache. It is the single owner of all
// PendingRequest records and of the derived fingerprint index; every mutation
// is flushed to durable storage before the call returns. Implementations must
// be safe for use from the scan loop and the messaging channel concurrently.
type DecisionStore interface {
	// Insert adds a record if its identity is absent. It returns true when
	// the record was newly inserted; false means the identity was already
	// known and the existing record (and any decision on it) was preserved.
	// The return value gates duplicate notifications.
	Insert(req PendingRequest) (bool, error)

	// SetDecision records the operator's verdict. Returns ErrUnknownIdentity
	// if the name does not resolve to a record.
	SetDecision(name string, d Decision) error

	// ListPending returns records with a decision set and not yet executed.
	ListPending() ([]PendingRequest, error)

	// MarkExecuted removes the record after its click has been performed.
	// Returns ErrUnknownIdentity if the name does not resolve to a record.
	MarkExecuted(name string) error

	// Get returns the record for a name, or nil when absent.
	Get(name string) (*PendingRequest, error)

	// SimilarFingerprint returns the identity of a stored record whose
	// fingerprint is within maxDistance (Hamming) of fp. A maxDistance of 0
	// disables matching entirely and always reports no match.
	SimilarFingerprint(fp string, maxDistance int) (string, bool, error)

	// Cleanup drops records older than the policy allows, measured from
	// NotifiedAt against now. Returns the number of records removed.
	Cleanup(now time.Time, policy CleanupPolicy) (int, error)

	// Count returns the number of stored records.
	Count() (int, error)

	Close() error
}

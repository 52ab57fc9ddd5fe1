package modq

// OutcomeKind classifies what the scanner did with one card. "Why was this
// card skipped" is data the pass returns, not a suppressed error.
type OutcomeKind int

const (
	// OutcomeClicked: a pending decision was executed on this card. At most
	// one per pass.
	OutcomeClicked OutcomeKind = iota

	// OutcomeKnown: the fingerprint matched an already-notified identity with
	// no pending decision; the cached notification payload was re-queued and
	// OCR was skipped.
	OutcomeKnown

	// OutcomeNotified: a new identity was extracted and queued for
	// notification.
	OutcomeNotified

	// OutcomeSkipped: nothing actionable (no identity text, duplicate within
	// the pass).
	OutcomeSkipped

	// OutcomeFailed: extraction or execution failed; the card is abandoned
	// for this pass only.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeClicked:
		return "clicked"
	case OutcomeKnown:
		return "known"
	case OutcomeNotified:
		return "notified"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CardOutcome records the scanner's handling of one card.
type CardOutcome struct {
	Index    int
	Kind     OutcomeKind
	Identity string
	Reason   string
	Err      error
}

// PassResult summarizes one scan pass.
type PassResult struct {
	// Clicked lists identities whose pending decision was executed. Its
	// length is at most one.
	Clicked []string

	// Outcomes holds one entry per segmented card, in vertical order, up to
	// the point the pass stopped.
	Outcomes []CardOutcome

	// Notified counts notifications actually delivered.
	Notified int
}

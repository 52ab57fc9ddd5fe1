package modq

import "strings"

// Action names used as keys in button maps.
const (
	ActionApprove = "approve"
	ActionDecline = "decline"
)

// Labels holds the UI strings of the moderated page that the extractor keys
// on. They are tied to the page's display language, so they are configurable;
// the defaults match the Italian desktop UI the bot was built against.
type Labels struct {
	// Approve and Decline match the action buttons, substring of lowercased
	// span text.
	Approve []string
	Decline []string

	// Chrome lists label substrings excluded from extra info, so operator
	// notifications are not polluted with button captions.
	Chrome []string

	// Unanswered are the phrases indicating the applicant has not completed
	// the group's membership questions.
	Unanswered []string

	// Preview is the label of the link opening an applicant's pending post.
	Preview string
}

// DefaultLabels matches the Italian UI.
func DefaultLabels() Labels {
	return Labels{
		Approve:    []string{"approva", "approve"},
		Decline:    []string{"rifiuta", "decline"},
		Chrome:     []string{"approva", "rifiuta", "invia messaggio", "richiesta"},
		Unanswered: []string{"non ha ancora risposto", "in attesa della risposta"},
		Preview:    "anteprima",
	}
}

// previewRightInset is how far left of the span's right edge the preview
// click lands. The clickable word is the tail of a longer sentence, so its
// bbox center is the wrong target.
const previewRightInset = 35

// minSpanLen is the minimum text length for a span to count as content.
// Shorter spans are OCR noise (stray punctuation, icon glyphs).
const minSpanLen = 2

// Extraction is the result of text/button extraction over one card.
type Extraction struct {
	// DisplayName is the identity candidate: the first substantial text span
	// in reading order. Empty when the card yielded no usable text.
	DisplayName string

	// ExtraInfo is the newline-joined free text of the card.
	ExtraInfo string

	// Buttons maps action names to card-local click points, absent when OCR
	// did not see that button's caption.
	Buttons map[string]CardPoint

	// Unanswered is set when the card shows an incomplete questionnaire.
	Unanswered bool

	// PreviewClick is the card-local click point of the post-preview link,
	// nil when the card has none.
	PreviewClick *CardPoint

	// Spans are the raw OCR spans in reading order, kept for downstream
	// button resolution and crop-to-text trimming.
	Spans []TextSpan
}

// Extractor derives identity, extra info, button locations and flags from a
// card's OCR spans.
type Extractor struct {
	labels Labels
}

func NewExtractor(labels Labels) *Extractor {
	return &Extractor{labels: labels}
}

// Extract runs the heuristics over spans. The spans are re-sorted by vertical
// center so the first substantial one approximates the displayed name, which
// the page renders as the first text block of every card.
func (e *Extractor) Extract(spans []TextSpan) Extraction {
	sorted := make([]TextSpan, len(spans))
	copy(sorted, spans)
	SortSpans(sorted)

	out := Extraction{
		Buttons: map[string]CardPoint{},
		Spans:   sorted,
	}

	var extra []string
	for _, sp := range sorted {
		text := strings.TrimSpace(sp.Text)
		if len(text) < minSpanLen {
			continue
		}
		lower := strings.ToLower(text)

		if containsAny(lower, e.labels.Approve) {
			out.Buttons[ActionApprove] = sp.Center()
		} else if containsAny(lower, e.labels.Decline) {
			out.Buttons[ActionDecline] = sp.Center()
		}

		for _, phrase := range e.labels.Unanswered {
			if strings.Contains(lower, phrase) {
				out.Unanswered = true
			}
		}

		if out.DisplayName == "" {
			out.DisplayName = text
			continue
		}
		if !containsAny(lower, e.labels.Chrome) {
			extra = append(extra, text)
		}
	}
	out.ExtraInfo = strings.Join(extra, "\n")
	out.PreviewClick = e.findPreview(sorted)
	return out
}

// findPreview locates the preview link. An exact (or punctuation-trailing)
// match is preferred over a substring match: the label also appears as the
// tail of sentences like "Ha inviato un post. Anteprima", where the whole
// sentence's bbox is a much worse click target.
func (e *Extractor) findPreview(spans []TextSpan) *CardPoint {
	if e.labels.Preview == "" {
		return nil
	}
	var standalone, contains *TextSpan
	for i := range spans {
		lower := strings.ToLower(strings.TrimSpace(spans[i].Text))
		if lower == e.labels.Preview || lower == e.labels.Preview+"." {
			standalone = &spans[i]
			break
		}
		if contains == nil && strings.Contains(lower, e.labels.Preview) {
			contains = &spans[i]
		}
	}
	match := standalone
	if match == nil {
		match = contains
	}
	if match == nil {
		return nil
	}
	return &CardPoint{
		X: match.Box.Max.X - previewRightInset,
		Y: match.Center().Y,
	}
}

// IsChrome reports whether a span is page chrome rather than card content.
func (e *Extractor) IsChrome(sp TextSpan) bool {
	return containsAny(strings.ToLower(sp.Text), e.labels.Chrome)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package modq

import (
	"context"
	"fmt"
	"time"
)

// ScannerConfig tunes one scan pass.
type ScannerConfig struct {
	Layout PageLayout
	Labels Labels

	// HashThreshold is the maximum Hamming distance for the fingerprint
	// short-circuit; 0 disables it.
	HashThreshold int

	// MinCardHeight rejects segmented spans too short to be a real card.
	MinCardHeight int

	// LoadScrolls and LoadScrollStep control how the pass forces lazy-loaded
	// content to render before screenshotting.
	LoadScrolls    int
	LoadScrollStep int

	// DebugOverlay archives a marked viewport screenshot before every click.
	DebugOverlay bool
}

// DefaultScannerConfig mirrors the page the bot was built against.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Layout:         DefaultLayout,
		Labels:         DefaultLabels(),
		HashThreshold:  3,
		MinCardHeight:  100,
		LoadScrolls:    3,
		LoadScrollStep: 800,
	}
}

// Scanner drives one scan pass over the membership queue: load, segment,
// reconcile each card against the decision store, execute at most one click,
// then emit queued notifications. It owns no state across passes; everything
// durable lives in the DecisionStore.
type Scanner struct {
	renderer  PageRenderer
	vision    Vision
	ocr       Recognizer
	store     DecisionStore
	artifacts ArtifactStore
	notifier  Notifier
	waiter    Waiter
	extractor *Extractor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	cfg       ScannerConfig
}

// NewScanner creates a Scanner with the provided collaborators.
func NewScanner(renderer PageRenderer, vision Vision, ocr Recognizer, store DecisionStore, artifacts ArtifactStore, notifier Notifier, waiter Waiter, logger Logger, clock Clock, idgen IDGenerator, cfg ScannerConfig) *Scanner {
	return &Scanner{
		renderer:  renderer,
		vision:    vision,
		ocr:       ocr,
		store:     store,
		artifacts: artifacts,
		notifier:  notifier,
		waiter:    waiter,
		extractor: NewExtractor(cfg.Labels),
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		cfg:       cfg,
	}
}

// queuedNotification pairs a notification payload with the store record that
// gates it: the record is inserted at emit time, and only a fresh insert
// sends the notification.
type queuedNotification struct {
	note Notification
	req  PendingRequest
}

// RunPass performs one scan pass against the already-navigated queue page.
// pending maps normalized identity to the operator's queued decision. At most
// one click is executed per pass: a click may reflow the page, so continuing
// with coordinates derived from the pre-click screenshot is unsafe.
func (s *Scanner) RunPass(ctx context.Context, pending map[string]Decision) (PassResult, error) {
	var res PassResult

	if err := s.loadPage(ctx); err != nil {
		return res, err
	}

	page, err := s.renderer.CaptureFullPage(ctx)
	if err != nil {
		return res, fmt.Errorf("capturing page: %w", err)
	}

	cards, err := s.vision.Segment(page)
	if err != nil {
		return res, fmt.Errorf("segmenting page: %w", err)
	}
	if len(cards) == 0 {
		s.logger.Info("no cards on page, nothing to do")
		return res, nil
	}
	s.logger.Info("cards segmented", "count", len(cards), "pending", len(pending))

	var queue []queuedNotification
	seen := map[string]bool{}

	for _, card := range cards {
		if err := card.Validate(s.cfg.MinCardHeight); err != nil {
			s.logger.Warn("invalid card, abandoning", "card", card.Index, "error", err)
			res.Outcomes = append(res.Outcomes, CardOutcome{
				Index: card.Index, Kind: OutcomeFailed, Reason: "geometry", Err: err,
			})
			continue
		}
		outcome := s.processCard(ctx, card, pending, seen, &queue)
		res.Outcomes = append(res.Outcomes, outcome)
		if outcome.Kind == OutcomeClicked {
			res.Clicked = append(res.Clicked, outcome.Identity)
			s.logger.Info("click executed, stopping pass", "identity", outcome.Identity)
			break
		}
	}

	res.Notified = s.emit(ctx, queue)
	return res, nil
}

// loadPage scrolls down repeatedly to force lazy-loaded cards to render, then
// returns to the top before the full-page capture.
func (s *Scanner) loadPage(ctx context.Context) error {
	for i := 0; i < s.cfg.LoadScrolls; i++ {
		if err := s.renderer.ScrollBy(ctx, s.cfg.LoadScrollStep); err != nil {
			return fmt.Errorf("scrolling to load content: %w", err)
		}
		if err := s.waiter.Wait(ctx, 500*time.Millisecond, 800*time.Millisecond); err != nil {
			return err
		}
	}
	if err := s.renderer.ScrollTo(ctx, 0); err != nil {
		return fmt.Errorf("scrolling to top: %w", err)
	}
	return s.waiter.Wait(ctx, 2*time.Second, 3*time.Second)
}

func (s *Scanner) processCard(ctx context.Context, card Card, pending map[string]Decision, seen map[string]bool, queue *[]queuedNotification) CardOutcome {
	fp := s.fingerprint(card)
	if fp != "" {
		identity, ok, err := s.store.SimilarFingerprint(fp, s.cfg.HashThreshold)
		if err != nil {
			s.logger.Warn("fingerprint lookup failed", "card", card.Index, "error", err)
		} else if ok {
			if outcome, handled := s.handleFingerprintMatch(ctx, card, identity, pending, queue); handled {
				return outcome
			}
			// Decision pending but no cached buttons: the match alone is not
			// enough to click on. Fall through to OCR.
			s.logger.Info("fingerprint match without cached buttons, forcing extraction",
				"card", card.Index, "identity", identity)
		}
	}

	spans, err := s.ocr.Recognize(ctx, card.Image)
	if err != nil {
		s.logger.Warn("ocr failed, abandoning card this pass", "card", card.Index, "error", err)
		return CardOutcome{Index: card.Index, Kind: OutcomeFailed, Reason: "ocr", Err: err}
	}

	ext := s.extractor.Extract(spans)
	if ext.DisplayName == "" {
		return CardOutcome{Index: card.Index, Kind: OutcomeSkipped, Reason: "no identity text"}
	}
	identity := NormalizeIdentity(ext.DisplayName)
	if seen[identity] {
		return CardOutcome{Index: card.Index, Kind: OutcomeSkipped, Identity: identity, Reason: "duplicate in pass"}
	}
	seen[identity] = true

	if matched, d, ok := MatchPending(ext.DisplayName, pending); ok {
		pt := s.resolveButton(card, ext, matched, d)
		if err := s.executeClick(ctx, card, pt, d); err != nil {
			s.logger.Error("click failed, decision stays queued", "identity", matched, "error", err)
			return CardOutcome{Index: card.Index, Kind: OutcomeFailed, Identity: matched, Reason: "click", Err: err}
		}
		return CardOutcome{Index: card.Index, Kind: OutcomeClicked, Identity: matched}
	}

	*queue = append(*queue, s.buildNotification(ctx, card, ext, fp))
	return CardOutcome{Index: card.Index, Kind: OutcomeNotified, Identity: identity}
}

func (s *Scanner) fingerprint(card Card) string {
	if s.cfg.HashThreshold <= 0 {
		return ""
	}
	fp, err := s.vision.Fingerprint(card.Image)
	if err != nil {
		s.logger.Warn("fingerprinting failed", "card", card.Index, "error", err)
		return ""
	}
	return fp
}

// handleFingerprintMatch resolves a matched identity. handled is false only
// for the inconclusive case: a decision is pending but no cached button
// coordinates exist, so the caller must run OCR anyway. Correctness (not
// clicking blind) outranks cost avoidance there.
func (s *Scanner) handleFingerprintMatch(ctx context.Context, card Card, identity string, pending map[string]Decision, queue *[]queuedNotification) (CardOutcome, bool) {
	req, err := s.store.Get(identity)
	if err != nil || req == nil {
		return CardOutcome{}, false
	}

	d, isPending := pending[identity]
	if !isPending {
		// Known, already-notified item. Re-queue the cached payload; the
		// insert gate at emit time stops it from producing a duplicate
		// notification.
		*queue = append(*queue, queuedNotification{
			note: Notification{
				Identity:        identity,
				DisplayName:     req.Name,
				ExtraInfo:       req.ExtraInfo,
				CardImageKey:    req.CropKey,
				PreviewImageKey: req.PreviewKey,
				Unanswered:      req.Unanswered,
			},
			req: *req,
		})
		return CardOutcome{Index: card.Index, Kind: OutcomeKnown, Identity: identity}, true
	}

	pt, haveButtons := req.Buttons[string(d)]
	if !haveButtons {
		return CardOutcome{}, false
	}

	s.logger.Info("fingerprint match with cached buttons, clicking without extraction",
		"card", card.Index, "identity", identity, "decision", d)
	if err := s.executeClick(ctx, card, pt, d); err != nil {
		s.logger.Error("cached-coordinate click failed", "identity", identity, "error", err)
		return CardOutcome{Index: card.Index, Kind: OutcomeFailed, Identity: identity, Reason: "click", Err: err}, true
	}
	return CardOutcome{Index: card.Index, Kind: OutcomeClicked, Identity: identity}, true
}

// resolveButton picks the click target for a decision, most to least trusted:
// an OCR span from this pass whose text matched the action's label, then
// coordinates cached from an earlier extraction, then a fixed
// percentage-of-card-size estimate. OCR occasionally misses the button text
// entirely (low-contrast rendering) but the click must still be attempted.
func (s *Scanner) resolveButton(card Card, ext Extraction, identity string, d Decision) CardPoint {
	if pt, ok := ext.Buttons[string(d)]; ok {
		return pt
	}
	if req, err := s.store.Get(identity); err == nil && req != nil {
		if pt, ok := req.Buttons[string(d)]; ok {
			s.logger.Info("using cached button coordinates", "identity", identity, "decision", d)
			return pt
		}
	}

	w := card.Width()
	h := card.Image.Bounds().Dy()
	var pt CardPoint
	if d == DecisionApprove {
		pt = CardPoint{X: w * 15 / 100, Y: h * 85 / 100}
	} else {
		pt = CardPoint{X: w * 65 / 100, Y: h * 85 / 100}
	}
	s.logger.Warn("no button text found, using size-percentage estimate",
		"identity", identity, "decision", d, "x", pt.X, "y", pt.Y)
	return pt
}

// executeClick scrolls the target into the viewport center, re-reads the
// realized scroll position, and clicks. The re-read is mandatory: the browser
// clamps scroll requests past the page end, and computing the viewport point
// from the requested offset would click the wrong element.
func (s *Scanner) executeClick(ctx context.Context, card Card, pt CardPoint, d Decision) error {
	pagePt := s.cfg.Layout.ToPage(card, pt)

	target := pagePt.Y - s.renderer.ViewportHeight()/2
	if target < 0 {
		target = 0
	}
	if err := s.renderer.ScrollTo(ctx, target); err != nil {
		return fmt.Errorf("scrolling to click target: %w", err)
	}
	if err := s.waiter.Wait(ctx, 500*time.Millisecond, 800*time.Millisecond); err != nil {
		return err
	}
	actual, err := s.renderer.ScrollPosition(ctx)
	if err != nil {
		return fmt.Errorf("reading realized scroll position: %w", err)
	}

	viewPt := ToViewport(pagePt, actual)
	s.logger.Info("clicking", "decision", d, "page_x", pagePt.X, "page_y", pagePt.Y,
		"scroll_requested", target, "scroll_actual", actual, "viewport_y", viewPt.Y)

	if s.cfg.DebugOverlay {
		s.saveOverlay(ctx, viewPt, string(d), card.Index)
	}

	if err := s.renderer.ClickAt(ctx, viewPt); err != nil {
		return fmt.Errorf("clicking at (%d,%d): %w", viewPt.X, viewPt.Y, err)
	}
	if d == DecisionDecline {
		// The page takes longer to react to a decline (confirmation flow).
		if err := s.waiter.Wait(ctx, 2*time.Second, 3*time.Second); err != nil {
			return err
		}
	}
	return s.waiter.Wait(ctx, 2*time.Second, 3*time.Second)
}

// buildNotification archives the card's trimmed crop, captures a post
// preview when the card links one, and assembles the store record plus
// operator payload. Artifact failures degrade to a text-only notification.
func (s *Scanner) buildNotification(ctx context.Context, card Card, ext Extraction, fp string) queuedNotification {
	cropKey := ""
	trimmed := s.vision.TrimToText(card.Image, ext.Spans, s.extractor.IsChrome)
	key := "cards/" + s.idgen.New() + ".png"
	if err := s.artifacts.Put(key, trimmed); err != nil {
		s.logger.Warn("archiving card crop failed", "card", card.Index, "error", err)
	} else {
		cropKey = key
	}

	previewKey := ""
	if ext.PreviewClick != nil {
		previewKey = s.capturePreview(ctx, card, *ext.PreviewClick)
	}

	req := PendingRequest{
		Name:        ext.DisplayName,
		NotifiedAt:  s.clock.Now(),
		ExtraInfo:   ext.ExtraInfo,
		Fingerprint: fp,
		Buttons:     ext.Buttons,
		CropKey:     cropKey,
		PreviewKey:  previewKey,
		Unanswered:  ext.Unanswered,
	}
	return queuedNotification{
		note: Notification{
			Identity:        req.Identity(),
			DisplayName:     ext.DisplayName,
			ExtraInfo:       ext.ExtraInfo,
			CardImageKey:    cropKey,
			PreviewImageKey: previewKey,
			Unanswered:      ext.Unanswered,
		},
		req: req,
	}
}

// capturePreview clicks the card's preview link, screenshots the opened
// modal, archives its crop, and closes it. Any failure is non-fatal and
// yields no preview.
func (s *Scanner) capturePreview(ctx context.Context, card Card, pt CardPoint) string {
	pagePt := s.cfg.Layout.ToPage(card, pt)
	target := pagePt.Y - s.renderer.ViewportHeight()/2
	if target < 0 {
		target = 0
	}
	if err := s.renderer.ScrollTo(ctx, target); err != nil {
		s.logger.Warn("preview scroll failed", "card", card.Index, "error", err)
		return ""
	}
	if err := s.waiter.Wait(ctx, 300*time.Millisecond, 500*time.Millisecond); err != nil {
		return ""
	}
	actual, err := s.renderer.ScrollPosition(ctx)
	if err != nil {
		s.logger.Warn("preview scroll read failed", "card", card.Index, "error", err)
		return ""
	}
	viewPt := ToViewport(pagePt, actual)

	if s.cfg.DebugOverlay {
		s.saveOverlay(ctx, viewPt, "preview", card.Index)
	}
	if err := s.renderer.ClickAt(ctx, viewPt); err != nil {
		s.logger.Warn("preview click failed", "card", card.Index, "error", err)
		return ""
	}
	// The modal can take several seconds to render its media.
	if err := s.waiter.Wait(ctx, 5*time.Second, 6*time.Second); err != nil {
		return ""
	}

	key := ""
	shot, err := s.renderer.CaptureViewport(ctx)
	if err != nil {
		s.logger.Warn("preview capture failed", "card", card.Index, "error", err)
	} else {
		img := shot
		if modal, ok := s.vision.ExtractModal(shot); ok {
			img = modal
		}
		k := "previews/" + s.idgen.New() + ".png"
		if err := s.artifacts.Put(k, img); err != nil {
			s.logger.Warn("archiving preview failed", "card", card.Index, "error", err)
		} else {
			key = k
		}
	}

	if err := s.renderer.Dismiss(ctx); err != nil {
		s.logger.Warn("closing preview modal failed", "card", card.Index, "error", err)
	}
	return key
}

func (s *Scanner) saveOverlay(ctx context.Context, p ViewportPoint, step string, cardIndex int) {
	shot, err := s.renderer.CaptureViewport(ctx)
	if err != nil {
		s.logger.Debug("overlay capture failed", "error", err)
		return
	}
	marked := s.vision.MarkClick(shot, p)
	key := fmt.Sprintf("overlays/%s-card%d-%s.png", s.idgen.New(), cardIndex, step)
	if err := s.artifacts.Put(key, marked); err != nil {
		s.logger.Debug("overlay archive failed", "error", err)
	}
}

// emit inserts each queued record and delivers the notification only when
// the insert was fresh. One failed delivery never blocks the others.
func (s *Scanner) emit(ctx context.Context, queue []queuedNotification) int {
	sent := 0
	for _, q := range queue {
		inserted, err := s.store.Insert(q.req)
		if err != nil {
			s.logger.Error("storing request failed", "identity", q.note.Identity, "error", err)
			continue
		}
		if !inserted {
			s.logger.Debug("already notified, suppressing duplicate", "identity", q.note.Identity)
			continue
		}
		if err := s.notifier.Notify(ctx, q.note); err != nil {
			s.logger.Error("notification failed", "identity", q.note.Identity, "error", err)
			continue
		}
		sent++
	}
	return sent
}

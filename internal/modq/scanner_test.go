package modq_test

import (
	"context"
	"fmt"
	"image"
	"testing"

	"modq-go/internal/artifact"
	"modq-go/internal/modq"
	"modq-go/internal/store"
	"modq-go/internal/testutil"
)

func cardImage() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 600, 200))
}

func pageImage() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 1920, 2000))
}

func makeCards(n int) []modq.Card {
	cards := make([]modq.Card, n)
	for i := range cards {
		start := 300 + i*250
		cards[i] = modq.Card{Index: i, StartY: start, EndY: start + 200, Image: cardImage()}
	}
	return cards
}

func nameSpans(name string) []modq.TextSpan {
	return []modq.TextSpan{
		{Text: name, Box: image.Rect(20, 10, 220, 30), Confidence: 92},
	}
}

type scanEnv struct {
	renderer *testutil.ScriptedRenderer
	vis      *testutil.FakeVision
	rec      *testutil.FakeRecognizer
	store    *store.MemoryStore
	notifier *testutil.FakeNotifier
	scanner  *modq.Scanner
}

func newScanEnv(cards []modq.Card, fps []string, ocrResults ...[]modq.TextSpan) *scanEnv {
	env := &scanEnv{
		renderer: testutil.NewScriptedRenderer(pageImage(), 800),
		vis:      &testutil.FakeVision{Cards: cards, Fingerprints: fps},
		rec:      testutil.NewFakeRecognizer(ocrResults...),
		store:    store.NewMemoryStore(),
		notifier: testutil.NewFakeNotifier(),
	}
	env.scanner = modq.NewScanner(env.renderer, env.vis, env.rec, env.store,
		artifact.NewMemoryArchive(), env.notifier, modq.NopWaiter{},
		modq.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(),
		modq.DefaultScannerConfig())
	return env
}

func TestScanner_NotifiesNewCard(t *testing.T) {
	env := newScanEnv(makeCards(1), []string{"00000000000000aa"}, nameSpans("Mario Rossi"))

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if res.Notified != 1 {
		t.Errorf("Notified = %d, want 1", res.Notified)
	}
	if len(res.Clicked) != 0 {
		t.Errorf("Clicked = %v, want none", res.Clicked)
	}
	sent := env.notifier.Sent()
	if len(sent) != 1 || sent[0].Identity != "mario rossi" {
		t.Fatalf("sent = %+v, want one notification for mario rossi", sent)
	}
	if sent[0].CardImageKey == "" {
		t.Error("CardImageKey empty, want an archived crop key")
	}

	req, err := env.store.Get("mario rossi")
	if err != nil || req == nil {
		t.Fatalf("Get() = (%v, %v), want a stored record", req, err)
	}
	if req.Fingerprint != "00000000000000aa" {
		t.Errorf("stored fingerprint = %q, want 00000000000000aa", req.Fingerprint)
	}
}

func TestScanner_SuppressesDuplicateNotification(t *testing.T) {
	env := newScanEnv(makeCards(1), []string{"00000000000000aa"}, nameSpans("Mario Rossi"))
	if _, err := env.store.Insert(modq.PendingRequest{Name: "Mario Rossi"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if res.Notified != 0 {
		t.Errorf("Notified = %d, want 0", res.Notified)
	}
	if len(env.notifier.Sent()) != 0 {
		t.Errorf("sent = %+v, want none", env.notifier.Sent())
	}
}

func TestScanner_ExecutesPendingDecision(t *testing.T) {
	env := newScanEnv(makeCards(1), []string{"00000000000000aa"}, nameSpans("Mario Rossi"))
	pending := map[string]modq.Decision{"mario rossi": modq.DecisionApprove}

	res, err := env.scanner.RunPass(context.Background(), pending)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(res.Clicked) != 1 || res.Clicked[0] != "mario rossi" {
		t.Fatalf("Clicked = %v, want [mario rossi]", res.Clicked)
	}
	if len(env.renderer.Clicks) != 1 {
		t.Fatalf("clicks = %v, want exactly one", env.renderer.Clicks)
	}

	// No approve button text was recognized, so the click falls back to the
	// fixed size-percentage estimate: 15% across, 85% down the 600x200 crop,
	// shifted by the sidebar and the card's page offset, minus the realized
	// scroll.
	want := modq.ViewportPoint{X: 90 + 360, Y: 170 + 300 - 70}
	if env.renderer.Clicks[0] != want {
		t.Errorf("click = %+v, want %+v", env.renderer.Clicks[0], want)
	}
}

func TestScanner_AtMostOneClickPerPass(t *testing.T) {
	env := newScanEnv(makeCards(2),
		[]string{"00000000000000aa", "00000000000000bb"},
		nameSpans("Mario Rossi"), nameSpans("Anna Bianchi"))
	pending := map[string]modq.Decision{
		"mario rossi":  modq.DecisionApprove,
		"anna bianchi": modq.DecisionDecline,
	}

	res, err := env.scanner.RunPass(context.Background(), pending)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(res.Clicked) != 1 {
		t.Fatalf("Clicked = %v, want exactly one", res.Clicked)
	}
	if len(res.Outcomes) != 1 {
		t.Errorf("Outcomes = %d, want 1: the pass must stop at the click", len(res.Outcomes))
	}
	if len(env.renderer.Clicks) != 1 {
		t.Errorf("clicks = %d, want 1", len(env.renderer.Clicks))
	}
}

func TestScanner_FingerprintShortcutSkipsOCR(t *testing.T) {
	env := newScanEnv(makeCards(1), []string{"00000000000000ff"})
	_, err := env.store.Insert(modq.PendingRequest{
		Name:        "Mario Rossi",
		Fingerprint: "00000000000000fe", // Hamming distance 1 from the card's
		Buttons:     map[string]modq.CardPoint{modq.ActionApprove: {X: 80, Y: 160}},
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := env.store.SetDecision("Mario Rossi", modq.DecisionApprove); err != nil {
		t.Fatalf("SetDecision() error = %v", err)
	}
	pending := map[string]modq.Decision{"mario rossi": modq.DecisionApprove}

	res, err := env.scanner.RunPass(context.Background(), pending)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(res.Clicked) != 1 || res.Clicked[0] != "mario rossi" {
		t.Fatalf("Clicked = %v, want [mario rossi]", res.Clicked)
	}
	if env.rec.Calls() != 0 {
		t.Errorf("Recognize called %d times, want 0: cached buttons make OCR unnecessary", env.rec.Calls())
	}
}

func TestScanner_FingerprintMatchWithoutButtonsForcesOCR(t *testing.T) {
	spans := append(nameSpans("Mario Rossi"),
		modq.TextSpan{Text: "Approva", Box: image.Rect(60, 120, 180, 140), Confidence: 91})
	env := newScanEnv(makeCards(1), []string{"00000000000000ff"}, spans)

	// The stored record proves identity but carries no click geometry.
	_, err := env.store.Insert(modq.PendingRequest{
		Name:        "Mario Rossi",
		Fingerprint: "00000000000000fe",
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := env.store.SetDecision("Mario Rossi", modq.DecisionApprove); err != nil {
		t.Fatalf("SetDecision() error = %v", err)
	}
	pending := map[string]modq.Decision{"mario rossi": modq.DecisionApprove}

	res, err := env.scanner.RunPass(context.Background(), pending)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if env.rec.Calls() != 1 {
		t.Errorf("Recognize called %d times, want 1: identity alone is not enough to click on", env.rec.Calls())
	}
	if len(res.Clicked) != 1 || res.Clicked[0] != "mario rossi" {
		t.Fatalf("Clicked = %v, want [mario rossi]", res.Clicked)
	}

	// The click must come from the freshly extracted button span (center of
	// the Approva box, shifted into the viewport), not from the empty cache
	// and not from the percentage fallback.
	if len(env.renderer.Clicks) != 1 {
		t.Fatalf("clicks = %v, want exactly one", env.renderer.Clicks)
	}
	want := modq.ViewportPoint{X: 120 + 360, Y: 130 + 300 - 30}
	if env.renderer.Clicks[0] != want {
		t.Errorf("click = %+v, want %+v", env.renderer.Clicks[0], want)
	}
}

func TestScanner_InvalidCardAbandonedWithoutPanic(t *testing.T) {
	cards := makeCards(2)
	cards[0].Image = nil
	env := newScanEnv(cards,
		[]string{"00000000000000bb"},
		nameSpans("Anna Bianchi"))

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(res.Outcomes) != 2 {
		t.Fatalf("Outcomes = %d, want 2", len(res.Outcomes))
	}
	if res.Outcomes[0].Kind != modq.OutcomeFailed || res.Outcomes[0].Reason != "geometry" {
		t.Errorf("first outcome = %v (%s), want failed (geometry)", res.Outcomes[0].Kind, res.Outcomes[0].Reason)
	}
	if res.Outcomes[1].Kind != modq.OutcomeNotified {
		t.Errorf("second outcome = %v, want notified", res.Outcomes[1].Kind)
	}
}

func TestScanner_KnownFingerprintWithoutDecision(t *testing.T) {
	env := newScanEnv(makeCards(1), []string{"00000000000000ff"})
	if _, err := env.store.Insert(modq.PendingRequest{Name: "Mario Rossi", Fingerprint: "00000000000000ff"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if env.rec.Calls() != 0 {
		t.Errorf("Recognize called %d times, want 0", env.rec.Calls())
	}
	if res.Outcomes[0].Kind != modq.OutcomeKnown {
		t.Errorf("outcome = %v, want known", res.Outcomes[0].Kind)
	}
	if res.Notified != 0 {
		t.Errorf("Notified = %d, want 0: the record is already stored", res.Notified)
	}
}

func TestScanner_OCRFailureAbandonsCardOnly(t *testing.T) {
	env := newScanEnv(makeCards(2),
		[]string{"00000000000000aa", "00000000000000bb"},
		nil, nameSpans("Anna Bianchi"))

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if len(res.Outcomes) != 2 {
		t.Fatalf("Outcomes = %d, want 2", len(res.Outcomes))
	}
	if res.Outcomes[0].Kind != modq.OutcomeFailed {
		t.Errorf("first outcome = %v, want failed", res.Outcomes[0].Kind)
	}
	if res.Outcomes[1].Kind != modq.OutcomeNotified {
		t.Errorf("second outcome = %v, want notified", res.Outcomes[1].Kind)
	}
	if res.Notified != 1 {
		t.Errorf("Notified = %d, want 1", res.Notified)
	}
}

func TestScanner_DuplicateWithinPassSkipped(t *testing.T) {
	env := newScanEnv(makeCards(2),
		[]string{"00000000000000aa", "00000000000000bb"},
		nameSpans("Mario Rossi"), nameSpans("Mario Rossi"))

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if res.Outcomes[1].Kind != modq.OutcomeSkipped {
		t.Errorf("second outcome = %v, want skipped", res.Outcomes[1].Kind)
	}
	if res.Notified != 1 {
		t.Errorf("Notified = %d, want 1", res.Notified)
	}
}

func TestScanner_NotificationFailureIsIsolated(t *testing.T) {
	env := newScanEnv(makeCards(2),
		[]string{"00000000000000aa", "00000000000000bb"},
		nameSpans("Mario Rossi"), nameSpans("Anna Bianchi"))
	env.notifier.FailFor = map[string]error{"mario rossi": fmt.Errorf("chat unreachable")}

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if res.Notified != 1 {
		t.Errorf("Notified = %d, want 1", res.Notified)
	}
	sent := env.notifier.Sent()
	if len(sent) != 1 || sent[0].Identity != "anna bianchi" {
		t.Errorf("sent = %+v, want only anna bianchi", sent)
	}
}

func TestScanner_EmptyPage(t *testing.T) {
	env := newScanEnv(nil, nil)

	res, err := env.scanner.RunPass(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}
	if len(res.Outcomes) != 0 || res.Notified != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

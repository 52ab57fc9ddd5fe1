package testutil

import (
	"context"
	"fmt"
	"image"
	"sync"

	"modq-go/internal/modq"
)

// FakeRecognizer returns queued span lists in order, one per Recognize call.
// A nil entry in the queue produces an OCR failure for that call.
type FakeRecognizer struct {
	mu    sync.Mutex
	queue [][]modq.TextSpan
	calls int
}

var _ modq.Recognizer = (*FakeRecognizer)(nil)

func NewFakeRecognizer(results ...[]modq.TextSpan) *FakeRecognizer {
	return &FakeRecognizer{queue: results}
}

func (r *FakeRecognizer) Recognize(ctx context.Context, img image.Image) ([]modq.TextSpan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if len(r.queue) == 0 {
		return nil, fmt.Errorf("fake recognizer: no more queued results (call %d)", r.calls)
	}
	next := r.queue[0]
	r.queue = r.queue[1:]
	if next == nil {
		return nil, fmt.Errorf("fake recognizer: injected failure (call %d)", r.calls)
	}
	return next, nil
}

// Calls returns how many times Recognize was invoked.
func (r *FakeRecognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

package modq

import (
	"context"
	"image"
	"time"
)

// PageRenderer is the browser-automation collaborator. The pipeline's
// responsibility ends at producing a correct, current viewport coordinate;
// how the pointer gets there (motion simulation, typing cadence) is the
// renderer's concern.
type PageRenderer interface {
	// Navigate loads the given URL and waits for it to settle.
	Navigate(ctx context.Context, url string) error

	// ScrollTo requests an absolute vertical scroll position. The browser may
	// clamp the request; callers needing the realized position must follow up
	// with ScrollPosition.
	ScrollTo(ctx context.Context, y int) error

	// ScrollBy scrolls relative to the current position, used to force
	// lazy-loaded content to render.
	ScrollBy(ctx context.Context, delta int) error

	// ScrollPosition returns the realized vertical scroll offset.
	ScrollPosition(ctx context.Context) (int, error)

	// CaptureFullPage screenshots the entire page.
	CaptureFullPage(ctx context.Context) (image.Image, error)

	// CaptureViewport screenshots only the visible window.
	CaptureViewport(ctx context.Context) (image.Image, error)

	// ClickAt performs a click at a viewport coordinate.
	ClickAt(ctx context.Context, p ViewportPoint) error

	// TypeText fills the element matched by selector.
	TypeText(ctx context.Context, selector, text string) error

	// Dismiss closes any open popup or modal (escape key, outside click).
	Dismiss(ctx context.Context) error

	// ViewportHeight returns the window height in pixels.
	ViewportHeight() int
}

// Waiter inserts deliberate delays between actions. The production
// implementation draws human-plausible durations; tests use a no-op.
type Waiter interface {
	Wait(ctx context.Context, min, max time.Duration) error
}

// NopWaiter returns immediately. Use in tests.
type NopWaiter struct{}

func (NopWaiter) Wait(context.Context, time.Duration, time.Duration) error { return nil }

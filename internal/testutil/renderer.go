package testutil

import (
	"context"
	"fmt"
	"image"
	"sync"

	"modq-go/internal/modq"
)

// ScriptedRenderer is an in-memory modq.PageRenderer serving a fixed page
// image. It records every interaction and clamps scrolling the way a real
// browser does, so tests can assert on realized positions.
type ScriptedRenderer struct {
	mu sync.Mutex

	// Page is returned by CaptureFullPage; Viewport by CaptureViewport.
	Page     image.Image
	Viewport image.Image

	// ViewportH is the window height used for scroll clamping.
	ViewportH int

	// Errors to inject, keyed by method name ("Navigate", "ClickAt", ...).
	Errs map[string]error

	scrollY   int
	Navigated []string
	Clicks    []modq.ViewportPoint
	Typed     []string
	Dismissed int
	ScrollTos []int
	ScrollBys []int
}

var _ modq.PageRenderer = (*ScriptedRenderer)(nil)

func NewScriptedRenderer(page image.Image, viewportH int) *ScriptedRenderer {
	return &ScriptedRenderer{Page: page, ViewportH: viewportH}
}

func (r *ScriptedRenderer) fail(method string) error {
	if r.Errs == nil {
		return nil
	}
	return r.Errs[method]
}

// clampScroll bounds y to the scrollable range of the page.
func (r *ScriptedRenderer) clampScroll(y int) int {
	maxY := 0
	if r.Page != nil {
		maxY = r.Page.Bounds().Dy() - r.ViewportH
		if maxY < 0 {
			maxY = 0
		}
	}
	if y < 0 {
		return 0
	}
	if y > maxY {
		return maxY
	}
	return y
}

func (r *ScriptedRenderer) Navigate(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Navigated = append(r.Navigated, url)
	return r.fail("Navigate")
}

func (r *ScriptedRenderer) ScrollTo(ctx context.Context, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ScrollTos = append(r.ScrollTos, y)
	if err := r.fail("ScrollTo"); err != nil {
		return err
	}
	r.scrollY = r.clampScroll(y)
	return nil
}

func (r *ScriptedRenderer) ScrollBy(ctx context.Context, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ScrollBys = append(r.ScrollBys, delta)
	if err := r.fail("ScrollBy"); err != nil {
		return err
	}
	r.scrollY = r.clampScroll(r.scrollY + delta)
	return nil
}

func (r *ScriptedRenderer) ScrollPosition(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ScrollPosition"); err != nil {
		return 0, err
	}
	return r.scrollY, nil
}

func (r *ScriptedRenderer) CaptureFullPage(ctx context.Context) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CaptureFullPage"); err != nil {
		return nil, err
	}
	if r.Page == nil {
		return nil, fmt.Errorf("scripted renderer has no page image")
	}
	return r.Page, nil
}

func (r *ScriptedRenderer) CaptureViewport(ctx context.Context) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CaptureViewport"); err != nil {
		return nil, err
	}
	if r.Viewport != nil {
		return r.Viewport, nil
	}
	if r.Page == nil {
		return nil, fmt.Errorf("scripted renderer has no viewport image")
	}
	return r.Page, nil
}

func (r *ScriptedRenderer) ClickAt(ctx context.Context, p modq.ViewportPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Clicks = append(r.Clicks, p)
	return r.fail("ClickAt")
}

func (r *ScriptedRenderer) TypeText(ctx context.Context, selector, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Typed = append(r.Typed, selector+"="+text)
	return r.fail("TypeText")
}

func (r *ScriptedRenderer) Dismiss(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Dismissed++
	return r.fail("Dismiss")
}

func (r *ScriptedRenderer) ViewportHeight() int { return r.ViewportH }

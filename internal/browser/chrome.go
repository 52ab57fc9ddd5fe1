package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"modq-go/internal/config"
	"modq-go/internal/modq"
)

// ChromeRenderer implements modq.PageRenderer on a dedicated Chrome instance.
// All pointer movement is routed through Human so input timing never looks
// mechanical.
type ChromeRenderer struct {
	ctx     context.Context
	cancels []context.CancelFunc
	human   *Human
	logger  modq.Logger
	width   int
	height  int

	// mouse tracks the last pointer position so each move starts where the
	// previous one ended.
	mu    sync.Mutex
	mouse modq.ViewportPoint
}

var _ modq.PageRenderer = (*ChromeRenderer)(nil)

// NewChromeRenderer launches Chrome with the configured profile. The caller
// must Close the renderer to tear the browser down.
func NewChromeRenderer(cfg config.BrowserConfig, human *Human, logger modq.Logger) (*ChromeRenderer, error) {
	width := cfg.Width
	if width == 0 {
		width = 1920
	}
	height := cfg.Height
	if height == 0 {
		height = 1080
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(width, height),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	// Starting the browser eagerly surfaces launch failures at construction.
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	return &ChromeRenderer{
		ctx:     taskCtx,
		cancels: []context.CancelFunc{taskCancel, allocCancel},
		human:   human,
		logger:  logger,
		width:   width,
		height:  height,
		mouse:   modq.ViewportPoint{X: width / 2, Y: height / 2},
	}, nil
}

func (r *ChromeRenderer) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.logger.Debug("navigating", "url", url)
	err := chromedp.Run(r.ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return r.human.Wait(ctx, time.Second, 2*time.Second)
}

func (r *ChromeRenderer) ScrollTo(ctx context.Context, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := chromedp.Run(r.ctx,
		chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y), nil))
	if err != nil {
		return fmt.Errorf("scrolling to %d: %w", y, err)
	}
	return nil
}

// ScrollBy scrolls in wheel-sized increments with irregular pauses, the way a
// person spins a scroll wheel.
func (r *ChromeRenderer) ScrollBy(ctx context.Context, delta int) error {
	for _, chunk := range r.human.ScrollChunks(delta) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := chromedp.Run(r.ctx,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", chunk), nil))
		if err != nil {
			return fmt.Errorf("scrolling by %d: %w", chunk, err)
		}
		time.Sleep(r.human.Gauss(60*time.Millisecond, 25*time.Millisecond, 20*time.Millisecond, 200*time.Millisecond))
	}
	return nil
}

func (r *ChromeRenderer) ScrollPosition(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var y float64
	err := chromedp.Run(r.ctx, chromedp.Evaluate("window.scrollY", &y))
	if err != nil {
		return 0, fmt.Errorf("reading scroll position: %w", err)
	}
	return int(y), nil
}

func (r *ChromeRenderer) CaptureFullPage(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf []byte
	if err := chromedp.Run(r.ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("capturing full page: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoding full-page screenshot: %w", err)
	}
	return img, nil
}

func (r *ChromeRenderer) CaptureViewport(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf []byte
	if err := chromedp.Run(r.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing viewport: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoding viewport screenshot: %w", err)
	}
	return img, nil
}

// ClickAt moves the pointer along a curved path to a jittered point near p
// and clicks.
func (r *ChromeRenderer) ClickAt(ctx context.Context, p modq.ViewportPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := r.human.JitterPoint(p, 2)
	r.mu.Lock()
	from := r.mouse
	r.mu.Unlock()

	steps := 12 + abs(target.X-from.X)/60 + abs(target.Y-from.Y)/60
	path := r.human.MousePath(from, target, steps)

	move := chromedp.ActionFunc(func(actionCtx context.Context) error {
		for _, pt := range path {
			err := input.DispatchMouseEvent(input.MouseMoved, float64(pt.X), float64(pt.Y)).Do(actionCtx)
			if err != nil {
				return err
			}
			time.Sleep(r.human.Gauss(12*time.Millisecond, 5*time.Millisecond, 4*time.Millisecond, 40*time.Millisecond))
		}
		return nil
	})

	err := chromedp.Run(r.ctx,
		move,
		chromedp.MouseClickXY(float64(target.X), float64(target.Y)),
	)
	if err != nil {
		return fmt.Errorf("clicking at %d,%d: %w", target.X, target.Y, err)
	}

	r.mu.Lock()
	r.mouse = target
	r.mu.Unlock()
	r.logger.Debug("clicked", "x", target.X, "y", target.Y)
	return nil
}

// TypeText focuses the element matched by selector and types text one rune
// at a time with human cadence.
func (r *ChromeRenderer) TypeText(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := chromedp.Run(r.ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("focusing %s: %w", selector, err)
	}
	for _, ch := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := chromedp.Run(r.ctx, chromedp.SendKeys(selector, string(ch), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("typing into %s: %w", selector, err)
		}
		time.Sleep(r.human.TypingDelay())
	}
	return nil
}

// ClickSelector clicks the element matched by selector. Unlike ClickAt it
// targets by DOM query, which the login flow needs before any page geometry
// is known.
func (r *ChromeRenderer) ClickSelector(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := chromedp.Run(r.ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return r.human.Wait(ctx, 500*time.Millisecond, time.Second)
}

// Dismiss closes whatever modal is open by sending Escape.
func (r *ChromeRenderer) Dismiss(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(r.ctx, chromedp.KeyEvent(kb.Escape)); err != nil {
		return fmt.Errorf("dismissing modal: %w", err)
	}
	return r.human.Wait(ctx, 500*time.Millisecond, time.Second)
}

func (r *ChromeRenderer) ViewportHeight() int { return r.height }

// Cookies exports the browser's full cookie jar.
func (r *ChromeRenderer) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cookies []*network.Cookie
	err := chromedp.Run(r.ctx, chromedp.ActionFunc(func(actionCtx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(actionCtx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("exporting cookies: %w", err)
	}
	return cookies, nil
}

// SetCookies installs cookies into the browser before navigation.
func (r *ChromeRenderer) SetCookies(ctx context.Context, cookies []*network.CookieParam) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := chromedp.Run(r.ctx, chromedp.ActionFunc(func(actionCtx context.Context) error {
		return storage.SetCookies(cookies).Do(actionCtx)
	}))
	if err != nil {
		return fmt.Errorf("installing cookies: %w", err)
	}
	return nil
}

// Close tears down the browser.
func (r *ChromeRenderer) Close() error {
	for _, cancel := range r.cancels {
		cancel()
	}
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

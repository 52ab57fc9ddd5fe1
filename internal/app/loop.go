package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"modq-go/internal/modq"
)

const (
	// pausedRecheck is how often the loop re-checks a pause requested from
	// the operator chat.
	pausedRecheck = 1 * time.Minute

	// nightRecheck is how often the loop re-checks the clock outside
	// working hours.
	nightRecheck = 10 * time.Minute

	// maxConsecutiveFailures is how many passes may fail in a row before
	// the browser is restarted and the operator alerted.
	maxConsecutiveFailures = 3
)

// Run is the daemon loop: scan passes during working hours, jittered sleeps
// in between, browser closed overnight. It returns when ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.bot.Run(ctx)

	if err := a.bot.SendText("Bot avviato 🤖"); err != nil {
		a.logger.Warn("startup notice failed", "error", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	failures := 0
	night := false

	for {
		if err := ctx.Err(); err != nil {
			a.closeBrowser()
			return nil
		}

		now := time.Now()
		if !withinWorkingHours(now, a.cfg.WorkingHoursStart, a.cfg.WorkingHoursEnd) {
			if !night {
				night = true
				a.logger.Info("outside working hours, closing browser",
					"start", a.cfg.WorkingHoursStart, "end", a.cfg.WorkingHoursEnd)
				a.closeBrowser()
				if err := a.bot.SendText("Modalità notturna: scansioni sospese fino al mattino 🌙"); err != nil {
					a.logger.Warn("night notice failed", "error", err)
				}
			}
			if !sleep(ctx, nightRecheck) {
				return nil
			}
			continue
		}
		if night {
			night = false
			a.logger.Info("working hours resumed")
			if err := a.bot.SendText("Buongiorno, riprendo le scansioni ☀️"); err != nil {
				a.logger.Warn("morning notice failed", "error", err)
			}
		}

		if a.bot.Paused() {
			a.logger.Debug("paused by operator")
			if !sleep(ctx, pausedRecheck) {
				return nil
			}
			continue
		}

		a.Cleanup(now)

		res, err := a.scanOnce(ctx)
		if err != nil {
			failures++
			a.logger.Error("scan pass failed", "error", err, "consecutive", failures)
			if failures >= maxConsecutiveFailures {
				a.closeBrowser()
				failures = 0
				if err := a.bot.SendText("⚠️ Tre scansioni consecutive fallite: riavvio il browser. Se il problema persiste, la sessione potrebbe essere scaduta (usa il comando login)."); err != nil {
					a.logger.Warn("failure alert failed", "error", err)
				}
			}
		} else {
			failures = 0
			if len(res.Clicked) > 0 {
				// A click changes the page: rescan right away in case more
				// queued decisions are now actionable.
				a.logger.Info("decision executed, rescanning immediately")
				continue
			}
		}

		delay := jitteredInterval(rng,
			time.Duration(a.cfg.PollIntervalMinutes)*time.Minute, a.cfg.JitterFraction)
		a.logger.Info("pass complete, sleeping", "delay", delay.Round(time.Second))
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// scanOnce makes sure the browser is up, navigates back to the queue, and
// runs one pass. A fresh navigation per pass keeps the feed from going stale.
func (a *App) scanOnce(ctx context.Context) (modq.PassResult, error) {
	if err := a.openBrowser(ctx); err != nil {
		return modq.PassResult{}, err
	}
	if err := a.renderer.Navigate(ctx, a.cfg.GroupURL); err != nil {
		return modq.PassResult{}, fmt.Errorf("reloading queue: %w", err)
	}
	return a.runPass(ctx)
}

// withinWorkingHours reports whether t's local hour falls inside the
// [start, end) window. A window crossing midnight (start > end) is supported.
func withinWorkingHours(t time.Time, start, end int) bool {
	if start == end {
		return true
	}
	h := t.Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// jitteredInterval widens base by a uniform factor in
// [1-fraction, 1+fraction], never returning less than a minute. Fixed
// intervals are a bot signature.
func jitteredInterval(rng *rand.Rand, base time.Duration, fraction float64) time.Duration {
	if fraction < 0 {
		fraction = 0
	}
	factor := 1 + fraction*(2*rng.Float64()-1)
	d := time.Duration(float64(base) * factor)
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

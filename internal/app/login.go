package app

import (
	"context"
	"fmt"
	"time"

	"modq-go/internal/browser"
)

const (
	loginURL          = "https://www.facebook.com/login"
	emailSelector     = "#email"
	passwordSelector  = "#pass"
	loginButtonName   = "button[name=login]"
	sessionCookieName = "c_user"

	loginWait    = 5 * time.Second
	loginTimeout = 90 * time.Second
)

// Login drives an interactive credential login in the browser, waits for the
// session cookie to appear (surviving a manual 2FA challenge), and saves the
// resulting session encrypted. Run it with headless disabled so the operator
// can answer challenges.
func (a *App) Login(ctx context.Context, email, password string) error {
	if !a.encryptor.IsConfigured() {
		return fmt.Errorf("no session keys configured, run keys init first")
	}

	// Login always runs headful so the operator can answer challenges.
	bcfg := a.cfg.Browser
	bcfg.Headless = false
	r, err := browser.NewChromeRenderer(bcfg, a.human, a.logger)
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	a.renderer = r
	defer a.closeBrowser()

	if err := r.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}
	if err := r.TypeText(ctx, emailSelector, email); err != nil {
		return fmt.Errorf("entering email: %w", err)
	}
	if err := a.human.Wait(ctx, 500*time.Millisecond, time.Second); err != nil {
		return err
	}
	if err := r.TypeText(ctx, passwordSelector, password); err != nil {
		return fmt.Errorf("entering password: %w", err)
	}
	if err := r.ClickSelector(ctx, loginButtonName); err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}

	if err := a.waitForSessionCookie(ctx, r); err != nil {
		return err
	}

	if err := a.saveSession(ctx); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	a.logger.Info("login complete, session saved", "path", a.cfg.Browser.SessionPath)
	return nil
}

// waitForSessionCookie polls the cookie jar until the logged-in marker
// appears or the timeout elapses. The polling window leaves room for a
// manual checkpoint or 2FA prompt.
func (a *App) waitForSessionCookie(ctx context.Context, r *browser.ChromeRenderer) error {
	deadline := time.Now().Add(loginTimeout)
	for {
		if err := a.human.Wait(ctx, loginWait, loginWait+2*time.Second); err != nil {
			return err
		}
		cookies, err := r.Cookies(ctx)
		if err != nil {
			return fmt.Errorf("checking login state: %w", err)
		}
		for _, c := range cookies {
			if c.Name == sessionCookieName {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("login did not complete within %s", loginTimeout)
		}
		a.logger.Info("waiting for login to complete")
	}
}

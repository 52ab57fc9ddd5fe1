// Package app wires the daemon together: configuration in, running services
// out. It owns the process lifecycle (logger, store, browser, Telegram bot)
// and the outer scan loop.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"modq-go/internal/artifact"
	"modq-go/internal/browser"
	"modq-go/internal/config"
	"modq-go/internal/encryption"
	"modq-go/internal/modq"
	"modq-go/internal/ocr"
	"modq-go/internal/store"
	"modq-go/internal/telegram"
	"modq-go/internal/vision"
)

// App is the application layer between the CLI and the scan loop. It
// constructs all dependencies from config and manages their lifecycle on
// Close. The browser is opened lazily: night mode closes it and the next
// working-hours pass reopens it.
type App struct {
	cfg       *config.Config
	store     modq.DecisionStore
	artifacts modq.ArtifactStore
	encryptor modq.Encryptor
	sessions  *browser.SessionStore
	recog     modq.Recognizer
	bot       *telegram.Bot
	human     *browser.Human
	vision    *vision.Pipeline
	logger    modq.Logger
	logFile   *os.File

	// decctx is set once by Unlock and reused across browser restarts.
	decctx modq.DecryptionContext

	renderer *browser.ChromeRenderer
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "run", "scan") and tags every log line.
// The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	logger, logFile, err := newLogger(cfg.LogDir, operation)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	st, err := store.NewStoreFromConfig(cfg.Store, cfg.BaseDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating decision store: %w", err)
	}

	arch, err := artifact.NewArchiveFromConfig(context.Background(), cfg.Artifacts, cfg.BaseDir)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating artifact archive: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	rec, err := ocr.NewRecognizerFromConfig(cfg.OCR)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating recognizer: %w", err)
	}

	bot, err := telegram.New(cfg.Telegram, st, arch, log, modq.UUIDGenerator{})
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &App{
		cfg:       cfg,
		store:     st,
		artifacts: arch,
		encryptor: enc,
		sessions:  browser.NewSessionStore(cfg.Browser.SessionPath, enc),
		recog:     rec,
		bot:       bot,
		human:     browser.NewHuman(0),
		vision:    vision.NewPipeline(vision.DefaultConfig()),
		logger:    log,
		logFile:   logFile,
	}, nil
}

// Encryptor exposes the configured encryptor for key-management commands.
func (a *App) Encryptor() modq.Encryptor { return a.encryptor }

// Store exposes the decision store for cache-management commands.
func (a *App) Store() modq.DecisionStore { return a.store }

// Logger exposes the application logger.
func (a *App) Logger() modq.Logger { return a.logger }

// HasSession reports whether an encrypted browser session has been saved.
func (a *App) HasSession() bool { return a.sessions.Exists() }

// Unlock derives the decryption context needed to restore the saved browser
// session. It must be called before Run or Scan when a session exists.
func (a *App) Unlock(passphrase string) error {
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking session key: %w", err)
	}
	a.decctx = dec
	return nil
}

// openBrowser launches Chrome, restores the saved session when one exists,
// and navigates to the moderation queue.
func (a *App) openBrowser(ctx context.Context) error {
	if a.renderer != nil {
		return nil
	}

	r, err := browser.NewChromeRenderer(a.cfg.Browser, a.human, a.logger)
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	if a.sessions.Exists() {
		if a.decctx == nil {
			r.Close()
			return fmt.Errorf("saved session exists but the key is locked")
		}
		state, err := a.sessions.Load(a.decctx)
		if err != nil {
			r.Close()
			return fmt.Errorf("restoring session: %w", err)
		}
		if err := r.SetCookies(ctx, state.CookieParams()); err != nil {
			r.Close()
			return fmt.Errorf("installing session cookies: %w", err)
		}
		a.logger.Info("session restored", "cookies", len(state.Cookies), "saved_at", state.SavedAt)
	}

	if err := r.Navigate(ctx, a.cfg.GroupURL); err != nil {
		r.Close()
		return fmt.Errorf("navigating to queue: %w", err)
	}

	a.renderer = r
	return nil
}

func (a *App) closeBrowser() {
	if a.renderer == nil {
		return
	}
	if err := a.renderer.Close(); err != nil {
		a.logger.Warn("closing browser failed", "error", err)
	}
	a.renderer = nil
}

// saveSession snapshots the current cookie jar to the encrypted session file.
func (a *App) saveSession(ctx context.Context) error {
	cookies, err := a.renderer.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("reading cookies: %w", err)
	}
	state := &browser.SessionState{
		Cookies:   cookies,
		UserAgent: a.cfg.Browser.UserAgent,
		SavedAt:   time.Now().UTC(),
	}
	return a.sessions.Save(state)
}

func (a *App) newScanner() *modq.Scanner {
	scfg := modq.DefaultScannerConfig()
	scfg.HashThreshold = a.cfg.HashThreshold
	return modq.NewScanner(a.renderer, a.vision, a.recog, a.store, a.artifacts,
		a.bot, a.human, a.logger, modq.RealClock{}, modq.UUIDGenerator{}, scfg)
}

// Scan opens the browser if needed and runs a single scan pass, executing
// any queued decisions. It is the one-shot counterpart of Run.
func (a *App) Scan(ctx context.Context) (modq.PassResult, error) {
	if err := a.openBrowser(ctx); err != nil {
		return modq.PassResult{}, err
	}
	return a.runPass(ctx)
}

// runPass lists queued decisions, runs a scan pass, and finalizes executed
// clicks in the store.
func (a *App) runPass(ctx context.Context) (modq.PassResult, error) {
	pending, err := a.pendingDecisions()
	if err != nil {
		return modq.PassResult{}, err
	}

	res, err := a.newScanner().RunPass(ctx, pending)
	if err != nil {
		return res, err
	}

	for _, identity := range res.Clicked {
		if err := a.store.MarkExecuted(identity); err != nil {
			a.logger.Error("marking decision executed failed", "identity", identity, "error", err)
			continue
		}
		if err := a.bot.SendText(fmt.Sprintf("Eseguito: %s", identity)); err != nil {
			a.logger.Warn("executed notice failed", "identity", identity, "error", err)
		}
	}
	return res, nil
}

func (a *App) pendingDecisions() (map[string]modq.Decision, error) {
	reqs, err := a.store.ListPending()
	if err != nil {
		return nil, fmt.Errorf("listing queued decisions: %w", err)
	}
	pending := make(map[string]modq.Decision, len(reqs))
	for _, r := range reqs {
		pending[r.Identity()] = r.Decision
	}
	return pending, nil
}

// Cleanup applies the retention policy to the decision store and the
// artifact archive. Failures are logged, never fatal.
func (a *App) Cleanup(now time.Time) {
	policy := modq.DefaultCleanupPolicy
	if a.cfg.CleanupHours > 0 {
		age := time.Duration(a.cfg.CleanupHours) * time.Hour
		policy = modq.CleanupPolicy{UndecidedMaxAge: age, UnexecutedMaxAge: age}
	}

	removed, err := a.store.Cleanup(now, policy)
	if err != nil {
		a.logger.Warn("decision store cleanup failed", "error", err)
	} else if removed > 0 {
		a.logger.Info("stale decisions removed", "count", removed)
	}

	dropped, err := a.artifacts.Cleanup(now.Add(-policy.UndecidedMaxAge))
	if err != nil {
		a.logger.Warn("artifact cleanup failed", "error", err)
	} else if dropped > 0 {
		a.logger.Info("stale artifacts removed", "count", dropped)
	}
}

// Close shuts everything down: browser first (so a final session snapshot
// could have happened before), then store and log file.
func (a *App) Close() error {
	var firstErr error

	a.closeBrowser()

	if c, ok := a.recog.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing recognizer: %w", err)
		}
	}

	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing decision store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

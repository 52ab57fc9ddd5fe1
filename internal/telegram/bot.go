// Package telegram delivers moderation items to the operator and feeds their
// verdicts back into the decision store. It is one of the two actors sharing
// the store; it never talks to the scanner directly.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"modq-go/internal/config"
	"modq-go/internal/modq"
)

const (
	callbackApprove = "a:"
	callbackDecline = "d:"
)

// Bot is the operator-facing messaging channel. All traffic is restricted to
// the single configured chat; updates from anywhere else are dropped.
type Bot struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	store     modq.DecisionStore
	artifacts modq.ArtifactStore
	logger    modq.Logger
	idgen     modq.IDGenerator

	paused atomic.Bool

	// tokens maps short callback tokens to display names. Telegram limits
	// callback data to 64 bytes, too small for arbitrary names. The map is
	// in-memory only: buttons from before a restart resolve to "unknown" and
	// the item is re-notified on a later pass if still present.
	mu     sync.Mutex
	tokens map[string]string
}

var _ modq.Notifier = (*Bot)(nil)

func New(cfg config.TelegramConfig, store modq.DecisionStore, artifacts modq.ArtifactStore, logger modq.Logger, idgen modq.IDGenerator) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat_id required")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return &Bot{
		api:       api,
		chatID:    cfg.ChatID,
		store:     store,
		artifacts: artifacts,
		logger:    logger,
		idgen:     idgen,
		tokens:    make(map[string]string),
	}, nil
}

// Run consumes updates until ctx is cancelled. Call it in its own goroutine.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(update)
		}
	}
}

// Paused reports whether the operator has paused scanning.
func (b *Bot) Paused() bool { return b.paused.Load() }

// Notify delivers one moderation item with inline approve/decline buttons.
// When both the preview and the card crop are available they arrive as a
// single album, with the buttons on a follow-up message; media groups cannot
// carry reply markup. With only the card, the photo carries caption and
// buttons directly.
func (b *Bot) Notify(ctx context.Context, n modq.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	token := b.registerToken(n.DisplayName)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approva", callbackApprove+token),
			tgbotapi.NewInlineKeyboardButtonData("❌ Rifiuta", callbackDecline+token),
		),
	)
	caption := b.caption(n)

	if n.PreviewImageKey != "" && n.CardImageKey != "" {
		if err := b.sendAlbum(n, caption); err != nil {
			b.logger.Warn("sending album failed, falling back to single photo", "identity", n.Identity, "error", err)
		} else {
			msg := tgbotapi.NewMessage(b.chatID, "Decidi per "+n.DisplayName+":")
			msg.ReplyMarkup = keyboard
			if _, err := b.api.Send(msg); err != nil {
				return fmt.Errorf("sending decision buttons for %s: %w", n.Identity, err)
			}
			return nil
		}
	}

	if n.CardImageKey != "" {
		err := b.sendPhoto(n.CardImageKey, caption, &keyboard)
		if err == nil {
			return nil
		}
		b.logger.Warn("sending card image failed, falling back to text", "identity", n.Identity, "error", err)
	}

	msg := tgbotapi.NewMessage(b.chatID, caption)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("sending notification for %s: %w", n.Identity, err)
	}
	return nil
}

// SendText delivers a plain status message to the operator chat.
func (b *Bot) SendText(text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		return fmt.Errorf("sending status message: %w", err)
	}
	return nil
}

func (b *Bot) caption(n modq.Notification) string {
	var sb strings.Builder
	sb.WriteString("Nuova richiesta: ")
	sb.WriteString(n.DisplayName)
	if n.Unanswered {
		sb.WriteString("\n⚠️ Non ha risposto alle domande del gruppo")
	}
	if n.ExtraInfo != "" {
		sb.WriteString("\n")
		sb.WriteString(n.ExtraInfo)
	}
	return sb.String()
}

func (b *Bot) sendAlbum(n modq.Notification, caption string) error {
	preview, err := b.artifacts.Open(n.PreviewImageKey)
	if err != nil {
		return err
	}
	defer preview.Close()
	card, err := b.artifacts.Open(n.CardImageKey)
	if err != nil {
		return err
	}
	defer card.Close()

	media := albumMedia(
		tgbotapi.FileReader{Name: "preview.png", Reader: preview},
		tgbotapi.FileReader{Name: "card.png", Reader: card},
		caption,
	)
	if _, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(b.chatID, media)); err != nil {
		return fmt.Errorf("sending media group for %s: %w", n.Identity, err)
	}
	return nil
}

// albumMedia pairs the preview and the card crop into one album. Telegram
// shows a single caption per album, so it rides on the card photo.
func albumMedia(preview, card tgbotapi.RequestFileData, caption string) []interface{} {
	previewPhoto := tgbotapi.NewInputMediaPhoto(preview)
	cardPhoto := tgbotapi.NewInputMediaPhoto(card)
	cardPhoto.Caption = caption
	return []interface{}{previewPhoto, cardPhoto}
}

func (b *Bot) sendPhoto(key, caption string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	rc, err := b.artifacts.Open(key)
	if err != nil {
		return err
	}
	defer rc.Close()

	photo := tgbotapi.NewPhoto(b.chatID, tgbotapi.FileReader{Name: "card.png", Reader: rc})
	photo.Caption = caption
	if keyboard != nil {
		photo.ReplyMarkup = *keyboard
	}
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("sending photo %s: %w", key, err)
	}
	return nil
}

func (b *Bot) registerToken(name string) string {
	token := b.idgen.New()
	b.mu.Lock()
	b.tokens[token] = name
	b.mu.Unlock()
	return token
}

func (b *Bot) lookupToken(token string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name, ok := b.tokens[token]
	return name, ok
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		if update.Message.Chat.ID != b.chatID {
			b.logger.Warn("dropping message from unexpected chat", "chat_id", update.Message.Chat.ID)
			return
		}
		if update.Message.IsCommand() {
			b.handleCommand(update.Message)
		}
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	var reply string
	switch msg.Command() {
	case "start", "help":
		reply = "Comandi:\n/status - stato della coda\n/pause - sospendi la scansione\n/resume - riprendi la scansione"
	case "status":
		reply = b.statusText()
	case "pause":
		b.paused.Store(true)
		reply = "Scansione sospesa."
	case "resume":
		b.paused.Store(false)
		reply = "Scansione ripresa."
	default:
		reply = "Comando sconosciuto. Usa /help."
	}
	if err := b.SendText(reply); err != nil {
		b.logger.Error("replying to command failed", "command", msg.Command(), "error", err)
	}
}

func (b *Bot) statusText() string {
	total, err := b.store.Count()
	if err != nil {
		return fmt.Sprintf("Errore nel leggere la cache: %v", err)
	}
	pending, err := b.store.ListPending()
	if err != nil {
		return fmt.Sprintf("Errore nel leggere la cache: %v", err)
	}

	state := "attiva"
	if b.Paused() {
		state = "sospesa"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scansione %s. %d richieste in cache, %d decisioni da eseguire.", state, total, len(pending))
	for _, req := range pending {
		fmt.Fprintf(&sb, "\n- %s: %s", req.Name, req.Decision)
	}
	return sb.String()
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat.ID != b.chatID {
		b.logger.Warn("dropping callback from unexpected chat")
		return
	}

	decision, token, ok := parseCallback(cb.Data)
	if !ok {
		b.answerCallback(cb.ID, "Richiesta non riconosciuta.")
		return
	}

	name, known := b.lookupToken(token)
	if !known {
		b.answerCallback(cb.ID, "Richiesta non più valida.")
		return
	}

	if err := b.store.SetDecision(name, decision); err != nil {
		b.logger.Error("recording decision failed", "name", name, "decision", decision, "error", err)
		b.answerCallback(cb.ID, "Errore nel registrare la decisione.")
		return
	}

	b.logger.Info("decision recorded", "name", name, "decision", decision)
	verdict := "Approvazione"
	if decision == modq.DecisionDecline {
		verdict = "Rifiuto"
	}
	b.answerCallback(cb.ID, verdict+" registrata per "+name)

	// Strip the buttons so the item is visibly settled.
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Debug("clearing inline keyboard failed", "error", err)
	}
}

// parseCallback splits inline button data into a decision and a token.
func parseCallback(data string) (modq.Decision, string, bool) {
	switch {
	case strings.HasPrefix(data, callbackApprove):
		return modq.DecisionApprove, strings.TrimPrefix(data, callbackApprove), true
	case strings.HasPrefix(data, callbackDecline):
		return modq.DecisionDecline, strings.TrimPrefix(data, callbackDecline), true
	}
	return modq.DecisionNone, "", false
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Debug("answering callback failed", "error", err)
	}
}

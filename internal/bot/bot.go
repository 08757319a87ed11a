// Package bot implements the update routing, upload batching, and command
// handling on top of the Telegram client.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tgsforge/tgsforge/internal/config"
	"github.com/tgsforge/tgsforge/internal/converter"
	"github.com/tgsforge/tgsforge/internal/i18n"
	"github.com/tgsforge/tgsforge/internal/moderation"
	"github.com/tgsforge/tgsforge/internal/svg"
	"github.com/tgsforge/tgsforge/internal/telegram"
)

type Bot struct {
	api        telegram.BotAPI
	downloader telegram.FileDownloader
	converter  converter.Converter
	validator  *svg.Validator
	store      *moderation.Store
	translator *i18n.Translator
	cfg        *config.Config
	batcher    *Batcher
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// New creates a Bot. The moderation store and converter are injected so
// tests can substitute them.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	api telegram.BotAPI,
	downloader telegram.FileDownloader,
	conv converter.Converter,
	store *moderation.Store,
	translator *i18n.Translator,
) *Bot {
	b := &Bot{
		api:        api,
		downloader: downloader,
		converter:  conv,
		validator:  svg.NewValidator(cfg.Limits.MaxFileSize),
		store:      store,
		translator: translator,
		cfg:        cfg,
		logger:     logger.With("component", "bot"),
	}
	b.batcher = NewBatcher(logger, cfg.Bot.GetBatchWait(), cfg.Bot.MaxBatchSize, b.processBatch)
	return b
}

// ProcessUpdateAsync handles an update in its own goroutine so slow
// downloads do not stall the polling loop.
func (b *Bot) ProcessUpdateAsync(ctx context.Context, update telegram.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic while processing update",
					"update_id", update.UpdateID,
					"panic", r)
			}
		}()
		b.processUpdate(ctx, update)
	}()
}

// Stop drains pending batches and waits for in-flight updates.
func (b *Bot) Stop() {
	b.batcher.Stop()
	b.wg.Wait()
}

func (b *Bot) processUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		updatesTotal.WithLabelValues("other").Inc()
		return
	}

	userID := msg.From.ID
	if b.store.IsBanned(userID) {
		// Banned users get no reaction of any kind.
		updatesIgnoredBannedTotal.Inc()
		b.logger.Debug("Ignoring update from banned user", "user_id", userID)
		return
	}
	b.store.Touch(userID)

	lang := b.userLang(msg.From)

	if command, args, ok := parseCommand(msg.Text); ok {
		updatesTotal.WithLabelValues("command").Inc()
		b.handleCommand(ctx, msg, command, args)
		return
	}

	switch {
	case msg.Document != nil:
		updatesTotal.WithLabelValues("document").Inc()
		b.handleDocument(ctx, msg)
	case len(msg.Photo) > 0:
		updatesTotal.WithLabelValues("photo").Inc()
		b.reply(ctx, msg.Chat.ID, b.t(lang, "bot.hint_photo"))
	case msg.Text != "":
		updatesTotal.WithLabelValues("text").Inc()
		b.reply(ctx, msg.Chat.ID, b.t(lang, "bot.hint_text"))
	default:
		updatesTotal.WithLabelValues("other").Inc()
		b.reply(ctx, msg.Chat.ID, b.t(lang, "bot.hint_text"))
	}
}

// handleDocument rejects obviously invalid uploads before downloading, then
// places the file into the sender's batch.
func (b *Bot) handleDocument(ctx context.Context, msg *telegram.Message) {
	doc := msg.Document
	userID := msg.From.ID
	lang := b.userLang(msg.From)
	logger := b.logger.With("user_id", userID, "file", doc.FileName)

	if err := b.validator.CheckExtension(doc.FileName); err != nil {
		logger.Debug("Rejected upload", "reason", "extension")
		b.reply(ctx, msg.Chat.ID, b.t(lang, "validate.extension"))
		return
	}
	if err := b.validator.CheckSize(doc.FileSize); err != nil {
		logger.Debug("Rejected upload", "reason", "size", "size", doc.FileSize)
		b.reply(ctx, msg.Chat.ID, b.t(lang, "validate.too_large",
			float64(doc.FileSize)/(1024*1024),
			float64(b.validator.MaxFileSize())/(1024*1024)))
		return
	}

	data, err := b.downloader.DownloadFile(ctx, doc.FileID)
	if err != nil {
		logger.Warn("Failed to download file", "error", err)
		b.reply(ctx, msg.Chat.ID, b.t(lang, "validate.download_failed", doc.FileName))
		return
	}

	res := b.batcher.Add(userID, msg.Chat.ID, lang, UploadedFile{
		Name: doc.FileName,
		Data: data,
	})
	switch {
	case res.Stopped:
		// Shutting down; the upload is dropped without a reply.
		logger.Warn("Dropping upload during shutdown")
	case res.Full:
		b.reply(ctx, msg.Chat.ID, b.t(lang, "batch.full", b.cfg.Bot.MaxBatchSize))
	case res.Created:
		seconds := int(b.cfg.Bot.GetBatchWait().Seconds())
		status, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID: msg.Chat.ID,
			Text:   b.t(lang, "batch.collecting", seconds),
		})
		if err != nil {
			logger.Warn("Failed to send batch status message", "error", err)
			return
		}
		b.batcher.SetStatusMessage(userID, status.MessageID)
	case res.StatusMessageID != 0:
		// Best-effort running count on the existing status message.
		err := b.api.EditMessageText(ctx, telegram.EditMessageTextRequest{
			ChatID:    msg.Chat.ID,
			MessageID: res.StatusMessageID,
			Text:      b.t(lang, "batch.collecting_count", res.Count),
		})
		if err != nil {
			logger.Debug("Failed to update batch status message", "error", err)
		}
	}
}

// SetupCommands publishes the public command menu.
func (b *Bot) SetupCommands(ctx context.Context) error {
	return b.api.SetMyCommands(ctx, telegram.SetMyCommandsRequest{
		Commands: []telegram.BotCommand{
			{Command: "start", Description: "Show what the bot does"},
		},
	})
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		b.logger.Warn("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) t(lang, key string, args ...interface{}) string {
	return b.translator.Get(lang, key, args...)
}

// userLang picks the locale from the client language, keeping only the
// primary subtag ("ru-RU" becomes "ru").
func (b *Bot) userLang(u *telegram.User) string {
	if u == nil || u.LanguageCode == "" {
		return b.cfg.Bot.Language
	}
	lang, _, _ := strings.Cut(u.LanguageCode, "-")
	return lang
}

func (b *Bot) banErrorText(lang string, err error) string {
	switch err {
	case moderation.ErrTargetOwner:
		return b.t(lang, "admin.cannot_ban_owner")
	case moderation.ErrTargetSelf:
		return b.t(lang, "admin.cannot_ban_self")
	default:
		return b.t(lang, "admin.denied")
	}
}

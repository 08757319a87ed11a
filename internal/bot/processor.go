package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tgsforge/tgsforge/internal/converter"
	"github.com/tgsforge/tgsforge/internal/svg"
	"github.com/tgsforge/tgsforge/internal/telegram"
)

// processBatch runs the convert-and-deliver pipeline for one finalized
// batch. It is invoked from the batcher's timer goroutine; a panic here
// must not take down the bot, so the whole batch is fenced with recover.
func (b *Bot) processBatch(batch *Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Bot.GetBatchTimeout())
	defer cancel()

	logger := b.logger.With("user_id", batch.UserID, "files", len(batch.Files))
	start := time.Now()
	status := batchStatusCompleted

	defer func() {
		if r := recover(); r != nil {
			status = batchStatusPanic
			logger.Error("Panic while processing batch", "panic", r)
			b.editOrSendStatus(context.Background(), batch, b.t(batch.Lang, "batch.failed"))
		}
		batchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	logger.Info("Processing batch")
	b.editOrSendStatus(ctx, batch, b.t(batch.Lang, "batch.converting", len(batch.Files)))

	if err := b.api.SendChatAction(ctx, telegram.SendChatActionRequest{
		ChatID: batch.ChatID,
		Action: "upload_document",
	}); err != nil {
		logger.Debug("Failed to send chat action", "error", err)
	}

	converted, failed := 0, 0
	for i, file := range batch.Files {
		if ctx.Err() != nil {
			// The batch deadline counts everything not yet delivered
			// as failed.
			status = batchStatusTimeout
			remaining := len(batch.Files) - i
			failed += remaining
			batchFilesTotal.WithLabelValues(fileResultFailed).Add(float64(remaining))
			logger.Warn("Batch deadline exceeded", "remaining", remaining)
			break
		}

		if err := b.processFile(ctx, batch, file); err != nil {
			failed++
			batchFilesTotal.WithLabelValues(fileResultFailed).Inc()
			logger.Warn("File failed", "file", file.Name, "error", err)
		} else {
			converted++
			batchFilesTotal.WithLabelValues(fileResultConverted).Inc()
		}

		if i < len(batch.Files)-1 {
			select {
			case <-time.After(b.cfg.Bot.GetFileDelay()):
			case <-ctx.Done():
			}
		}
	}

	summary := b.t(batch.Lang, "batch.done", converted, failed)
	if converted == 0 {
		summary = b.t(batch.Lang, "batch.all_failed")
	}
	b.editOrSendStatus(context.Background(), batch, summary)

	logger.Info("Batch processed",
		"converted", converted,
		"failed", failed,
		"duration", time.Since(start))
}

// processFile validates, converts, and delivers a single file. On failure
// the user gets a per-file message and a non-nil error is returned.
func (b *Bot) processFile(ctx context.Context, batch *Batch, file UploadedFile) error {
	if err := b.validator.Validate(file.Data, file.Name); err != nil {
		b.reply(ctx, batch.ChatID, b.t(batch.Lang, "batch.file_failed",
			file.Name, b.validationReason(batch.Lang, file.Name, err)))
		return err
	}

	result, err := b.converter.Convert(ctx, file.Data, file.Name)
	if err != nil {
		reason := b.t(batch.Lang, "batch.conversion_failed")
		if errors.Is(err, context.DeadlineExceeded) {
			reason = b.t(batch.Lang, "batch.timed_out")
		}
		b.reply(ctx, batch.ChatID, b.t(batch.Lang, "batch.file_failed", file.Name, reason))
		return fmt.Errorf("convert %s: %w", file.Name, err)
	}

	outName := converter.OutputName(file.Name)
	caption := b.t(batch.Lang, "batch.success_caption", file.Name, outName)
	if result.SizeWarning {
		caption = b.t(batch.Lang, "batch.size_warning_caption", file.Name, outName)
	}

	if _, err := b.api.SendDocument(ctx, telegram.SendDocumentRequest{
		ChatID:   batch.ChatID,
		FileName: outName,
		Data:     result.TGS,
		Caption:  caption,
	}); err != nil {
		b.reply(ctx, batch.ChatID, b.t(batch.Lang, "batch.file_failed",
			file.Name, b.t(batch.Lang, "batch.send_failed")))
		return fmt.Errorf("send %s: %w", outName, err)
	}
	return nil
}

// validationReason maps a validation failure to a localized reason line.
func (b *Bot) validationReason(lang, name string, err error) string {
	var verr *svg.ValidationError
	if !errors.As(err, &verr) {
		return b.t(lang, "bot.error")
	}
	switch verr.Kind {
	case svg.ErrKindExtension:
		return b.t(lang, "validate.extension")
	case svg.ErrKindTooLarge:
		return b.t(lang, "validate.too_large",
			float64(verr.Size)/(1024*1024), float64(verr.Limit)/(1024*1024))
	default:
		return b.t(lang, "validate.malformed", name)
	}
}

// editOrSendStatus updates the batch status message, falling back to a
// fresh message if no status message was ever created.
func (b *Bot) editOrSendStatus(ctx context.Context, batch *Batch, text string) {
	if batch.StatusMessageID != 0 {
		err := b.api.EditMessageText(ctx, telegram.EditMessageTextRequest{
			ChatID:    batch.ChatID,
			MessageID: batch.StatusMessageID,
			Text:      text,
		})
		if err == nil {
			return
		}
		b.logger.Debug("Failed to edit status message",
			"chat_id", batch.ChatID,
			"message_id", batch.StatusMessageID,
			"error", err)
	}
	b.reply(ctx, batch.ChatID, text)
}

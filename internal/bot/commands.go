package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/tgsforge/tgsforge/internal/telegram"
)

const (
	outcomeOK     = "ok"
	outcomeDenied = "denied"
	outcomeError  = "error"
)

// parseCommand splits a "/command@botname args" message text into the bare
// command name and its argument string. It returns ok=false for non-command
// text.
func parseCommand(text string) (command, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	text = strings.TrimPrefix(text, "/")
	command, args, _ = strings.Cut(text, " ")
	if command == "" {
		return "", "", false
	}
	// Commands in groups arrive as /command@botname.
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args), true
}

func (b *Bot) handleCommand(ctx context.Context, msg *telegram.Message, command, args string) {
	userID := msg.From.ID
	lang := b.userLang(msg.From)
	logger := b.logger.With("command", command, "user_id", userID)

	outcome := outcomeOK
	defer func() {
		commandsTotal.WithLabelValues(command, outcome).Inc()
	}()

	switch command {
	case "start":
		b.reply(ctx, msg.Chat.ID, b.t(lang, "bot.greeting"))

	case "adminhelp":
		if !b.store.IsAdmin(userID) {
			outcome = outcomeDenied
			b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.denied"))
			return
		}
		help := b.t(lang, "admin.help")
		if b.store.IsOwner(userID) {
			help += "\n\n" + b.t(lang, "admin.help_owner")
		}
		b.reply(ctx, msg.Chat.ID, help)

	case "stats":
		stats, err := b.store.GetStats(userID)
		if err != nil {
			outcome = outcomeDenied
			b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.denied"))
			return
		}
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.stats",
			stats.Known, stats.Banned, stats.Active))

	case "ban":
		outcome = b.handleBan(ctx, msg, lang, args)

	case "unban":
		outcome = b.handleUnban(ctx, msg, lang, args)

	case "makeadmin":
		outcome = b.handleMakeAdmin(ctx, msg, lang, args)

	case "removeadmin":
		outcome = b.handleRemoveAdmin(ctx, msg, lang, args)

	case "broadcast":
		outcome = b.handleBroadcast(ctx, msg, lang, args)

	default:
		// Unknown commands get the generic text hint, matching plain text.
		b.reply(ctx, msg.Chat.ID, b.t(lang, "bot.hint_text"))
	}

	logger.Debug("Command handled", "outcome", outcome)
}

// parseTargetID parses the single user-ID argument of moderation commands.
func (b *Bot) parseTargetID(ctx context.Context, msg *telegram.Message, lang, args, usageKey string) (int64, bool) {
	if args == "" {
		b.reply(ctx, msg.Chat.ID, b.t(lang, usageKey))
		return 0, false
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.invalid_user_id"))
		return 0, false
	}
	return id, true
}

func (b *Bot) handleBan(ctx context.Context, msg *telegram.Message, lang, args string) string {
	if !b.store.IsAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.denied"))
		return outcomeDenied
	}
	target, ok := b.parseTargetID(ctx, msg, lang, args, "admin.ban_usage")
	if !ok {
		return outcomeError
	}
	switch err := b.store.Ban(msg.From.ID, target); err {
	case nil:
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.banned_ok", target))
		return outcomeOK
	default:
		b.reply(ctx, msg.Chat.ID, b.banErrorText(lang, err))
		return outcomeError
	}
}

func (b *Bot) handleUnban(ctx context.Context, msg *telegram.Message, lang, args string) string {
	if !b.store.IsAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.denied"))
		return outcomeDenied
	}
	target, ok := b.parseTargetID(ctx, msg, lang, args, "admin.unban_usage")
	if !ok {
		return outcomeError
	}
	if err := b.store.Unban(msg.From.ID, target); err != nil {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.denied"))
		return outcomeError
	}
	b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.unbanned_ok", target))
	return outcomeOK
}

func (b *Bot) handleMakeAdmin(ctx context.Context, msg *telegram.Message, lang, args string) string {
	if !b.store.IsOwner(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.owner_only"))
		return outcomeDenied
	}
	target, ok := b.parseTargetID(ctx, msg, lang, args, "admin.makeadmin_usage")
	if !ok {
		return outcomeError
	}
	if err := b.store.MakeAdmin(msg.From.ID, target); err != nil {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.owner_only"))
		return outcomeError
	}
	b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.make_admin_ok", target))
	return outcomeOK
}

func (b *Bot) handleRemoveAdmin(ctx context.Context, msg *telegram.Message, lang, args string) string {
	if !b.store.IsOwner(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.owner_only"))
		return outcomeDenied
	}
	target, ok := b.parseTargetID(ctx, msg, lang, args, "admin.removeadmin_usage")
	if !ok {
		return outcomeError
	}
	if err := b.store.RemoveAdmin(msg.From.ID, target); err != nil {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.cannot_remove_owner"))
		return outcomeError
	}
	b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.remove_admin_ok", target))
	return outcomeOK
}

func (b *Bot) handleBroadcast(ctx context.Context, msg *telegram.Message, lang, args string) string {
	targets, err := b.store.BroadcastTargets(msg.From.ID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.denied"))
		return outcomeDenied
	}
	if args == "" {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "admin.broadcast_usage"))
		return outcomeError
	}
	if len(targets) == 0 {
		b.reply(ctx, msg.Chat.ID, b.t(lang, "broadcast.empty"))
		return outcomeError
	}

	broadcastsTotal.Inc()
	progress, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: msg.Chat.ID,
		Text:   b.t(lang, "broadcast.starting", len(targets)),
	})
	if err != nil {
		b.logger.Warn("Failed to send broadcast progress message", "error", err)
	}

	sent, failed := 0, 0
	for i, target := range targets {
		if _, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID: target,
			Text:   args,
		}); err != nil {
			failed++
			broadcastMessagesTotal.WithLabelValues("failed").Inc()
			b.logger.Warn("Broadcast delivery failed", "target", target, "error", err)
		} else {
			sent++
			broadcastMessagesTotal.WithLabelValues("sent").Inc()
		}

		// Pacing keeps the fan-out under Telegram's rate limits.
		if i < len(targets)-1 {
			select {
			case <-time.After(b.cfg.Bot.GetBroadcastDelay()):
			case <-ctx.Done():
			}
		}
	}

	summary := b.t(lang, "broadcast.summary", sent, failed, len(targets))
	if progress != nil {
		if err := b.api.EditMessageText(ctx, telegram.EditMessageTextRequest{
			ChatID:    msg.Chat.ID,
			MessageID: progress.MessageID,
			Text:      summary,
		}); err == nil {
			return outcomeOK
		}
	}
	b.reply(ctx, msg.Chat.ID, summary)
	return outcomeOK
}

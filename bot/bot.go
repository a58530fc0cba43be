package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/pkg/logger"
	"github.com/Hussein135-coder/souriana-extract-bot/service"
)

// Bot owns the Telegram long-polling loop and the hourly check-in task.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler *Handler
	cfg     *config.TelegramConfig
}

func New(cfg *config.Config, vision *service.VisionService, website *service.WebsiteService, backup *service.BackupService, store *service.ConversationStore) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Bot{
		api:     api,
		handler: NewHandler(api, cfg, vision, website, backup, store),
		cfg:     &cfg.Telegram,
	}, nil
}

// Run polls for updates until the context is cancelled. Each update is
// handled on its own goroutine so one slow extraction does not stall the
// other chats.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30

	updates := b.api.GetUpdatesChan(updateConfig)
	logger.Info(ctx, "bot is running", "username", b.api.Self.UserName)

	if b.cfg.AdminChatID != 0 {
		go b.runHourlyNotifier(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handler.HandleUpdate(ctx, update)
		}
	}
}

// runHourlyNotifier sends the configured check-in message to the admin
// chat on a fixed wall-clock interval, independent of conversation state.
func (b *Bot) runHourlyNotifier(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := tgbotapi.NewMessage(b.cfg.AdminChatID, b.cfg.HourlyMessage)
			if _, err := b.api.Send(msg); err != nil {
				logger.Error(ctx, "failed to send hourly message", "chat_id", b.cfg.AdminChatID, "error", err)
				continue
			}
			logger.Info(ctx, "hourly message sent", "chat_id", b.cfg.AdminChatID)
		}
	}
}

// SendStartupNotice reports the startup health summary to the admin chat.
func (b *Bot) SendStartupNotice(ctx context.Context, geminiOK, websiteOK bool) {
	if b.cfg.AdminChatID == 0 {
		return
	}

	text := fmt.Sprintf(
		"🤖 تم بدء تشغيل البوت\n\n🔑 Gemini API: %s\n🌐 الاتصال بالموقع: %s\n🚀 حالة الخادم: ✅\n\nتاريخ بدء التشغيل: %s",
		okMark(geminiOK),
		okMark(websiteOK),
		time.Now().Format(time.RFC3339),
	)

	if _, err := b.api.Send(tgbotapi.NewMessage(b.cfg.AdminChatID, text)); err != nil {
		logger.Error(ctx, "failed to send startup notification", "error", err)
	}
}

func okMark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

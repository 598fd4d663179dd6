package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/wayfarer/internal/observability"
)

const telegramMaxText = 4096

type TelegramGateway struct {
	Bot *tgbotapi.BotAPI
	// Chat restricts commands to one chat ID; empty accepts every chat.
	Chat   string
	tasks  TaskService
	logger *observability.Logger

	stopOnce sync.Once
}

var (
	_ Messenger = (*TelegramGateway)(nil)
	_ Listener  = (*TelegramGateway)(nil)
)

func NewTelegramGateway(token, chat string, tasks TaskService, logger *observability.Logger) (*TelegramGateway, error) {
	return NewTelegramGatewayWithEndpoint(token, tgbotapi.APIEndpoint, chat, tasks, logger)
}

// NewTelegramGatewayWithEndpoint talks to a Bot API server other than the
// public one.
func NewTelegramGatewayWithEndpoint(token, endpoint, chat string, tasks TaskService, logger *observability.Logger) (*TelegramGateway, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.Info("telegram authorized", "account", bot.Self.UserName)
	return &TelegramGateway{Bot: bot, Chat: chat, tasks: tasks, logger: logger}, nil
}

func (tg *TelegramGateway) Name() string { return "telegram" }

func (tg *TelegramGateway) Start(ctx context.Context) error {
	if tg.tasks == nil {
		return nil
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return tg.Stop()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			if tg.Chat != "" && chatID != tg.Chat {
				tg.logger.Warn("telegram command from unknown chat ignored", "chat", chatID)
				continue
			}
			tg.logger.Info("telegram command", "chat", chatID, "text", update.Message.Text)
			if err := tg.Send(ctx, chatID, HandleCommand(tg.tasks, update.Message.Text)); err != nil {
				tg.logger.Error("telegram reply failed", "chat", chatID, "error", err)
			}
		}
	}
}

func (tg *TelegramGateway) Send(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	msg := tgbotapi.NewMessage(id, clip(text, telegramMaxText-3))
	_, err = tg.Bot.Send(msg)
	return err
}

// Stop ends the update loop. The bot library panics on a second stop.
func (tg *TelegramGateway) Stop() error {
	tg.stopOnce.Do(tg.Bot.StopReceivingUpdates)
	return nil
}

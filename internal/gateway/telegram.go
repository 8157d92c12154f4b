package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramLimit = 4096

type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Handler *Handler
}

func NewTelegramGateway(token string, engine Workflow) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:     bot,
		Handler: &Handler{Engine: engine, Platform: "telegram"},
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			tg.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
			go tg.reply(ctx, update.Message.Chat.ID, update.Message.Text)
		}
	}
}

func (tg *TelegramGateway) reply(ctx context.Context, chatID int64, text string) {
	_, _ = tg.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	id := strconv.FormatInt(chatID, 10)
	response := tg.Handler.Handle(ctx, id, text)
	if err := tg.Send(id, response); err != nil {
		log.Printf("Error sending reply to %s: %v", id, err)
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, chunk := range splitMessage(text, telegramLimit) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

package gateway

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

const discordLimit = 2000

type DiscordGateway struct {
	Session *discordgo.Session
	Handler *Handler
}

func NewDiscordGateway(token string, engine Workflow) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return &DiscordGateway{
		Session: s,
		Handler: &Handler{Engine: engine, Platform: "discord"},
	}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.Content == "" {
			return
		}
		log.Printf("[%s] %s", m.Author.Username, m.Content)
		go dg.reply(ctx, m.ChannelID, m.Content)
	})

	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	log.Printf("Authorized on account %s", dg.Session.State.User.Username)

	<-ctx.Done()
	return dg.Stop()
}

func (dg *DiscordGateway) reply(ctx context.Context, channelID, text string) {
	_ = dg.Session.ChannelTyping(channelID)

	response := dg.Handler.Handle(ctx, channelID, text)
	if err := dg.Send(channelID, response); err != nil {
		log.Printf("Error sending reply to %s: %v", channelID, err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, chunk := range splitMessage(text, discordLimit) {
		if _, err := dg.Session.ChannelMessageSend(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}

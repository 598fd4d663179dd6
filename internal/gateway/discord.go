package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rahul/wayfarer/internal/observability"
)

const discordMaxText = 2000

type DiscordGateway struct {
	Session *discordgo.Session
	// Channel restricts commands to one channel ID; empty accepts every channel.
	Channel string
	tasks   TaskService
	logger  *observability.Logger
}

var (
	_ Messenger = (*DiscordGateway)(nil)
	_ Listener  = (*DiscordGateway)(nil)
)

func NewDiscordGateway(token, channel string, tasks TaskService, logger *observability.Logger) (*DiscordGateway, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return &DiscordGateway{Session: s, Channel: channel, tasks: tasks, logger: logger}, nil
}

func (dg *DiscordGateway) Name() string { return "discord" }

// Start opens the websocket and answers commands until ctx ends.
func (dg *DiscordGateway) Start(ctx context.Context) error {
	if dg.tasks == nil {
		return nil
	}
	remove := dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || !strings.HasPrefix(m.Content, "/") {
			return
		}
		if dg.Channel != "" && m.ChannelID != dg.Channel {
			return
		}
		dg.logger.Info("discord command", "channel", m.ChannelID, "text", m.Content)
		if err := dg.Send(ctx, m.ChannelID, HandleCommand(dg.tasks, m.Content)); err != nil {
			dg.logger.Error("discord reply failed", "channel", m.ChannelID, "error", err)
		}
	})
	defer remove()

	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	<-ctx.Done()
	return dg.Session.Close()
}

func (dg *DiscordGateway) Send(ctx context.Context, channelID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channelID == "" {
		return fmt.Errorf("invalid channel ID: %q", channelID)
	}
	_, err := dg.Session.ChannelMessageSend(channelID, clip(text, discordMaxText-3), discordgo.WithContext(ctx))
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/irfndi/stock-monitor/internal/config"
)

// telegramClient is the part of *bot.Bot the check needs.
type telegramClient interface {
	GetMe(ctx context.Context) (*models.User, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

func main() {
	send := flag.Bool("send", false, "send a test message to the configured chat")
	flag.Parse()

	fmt.Println("🔧 Validating Telegram notification settings...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Telegram.BotToken == "" {
		fmt.Println("❌ TELEGRAM_BOT_TOKEN is not configured, notifications are disabled")
		os.Exit(1)
	}

	b, err := bot.New(cfg.Telegram.BotToken, bot.WithSkipGetMe())
	if err != nil {
		fmt.Printf("❌ Failed to create Telegram bot: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := validate(ctx, cfg.Telegram, b, *send, os.Stdout); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n🎉 All Telegram checks passed!")
}

// validate checks the chat id and the bot token, and optionally sends a test message.
func validate(ctx context.Context, cfg config.TelegramConfig, client telegramClient, send bool, out io.Writer) error {
	if cfg.ChatID == 0 {
		return errors.New("TELEGRAM_CHAT_ID is not configured")
	}
	fmt.Fprintf(out, "✅ TELEGRAM_BOT_TOKEN is configured (length: %d)\n", len(cfg.BotToken))
	fmt.Fprintf(out, "✅ Notifications go to chat %d\n", cfg.ChatID)

	fmt.Fprintln(out, "🔍 Testing bot API connection...")
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	fmt.Fprintf(out, "✅ Bot API connection successful: @%s (id %d)\n", me.Username, me.ID)

	if !send {
		return nil
	}
	_, err = client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    cfg.ChatID,
		Text:      bot.EscapeMarkdown("Stock monitor test message. Archive and Buy Ready notices will arrive here."),
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send test message: %w", err)
	}
	fmt.Fprintln(out, "✅ Test message sent")
	return nil
}

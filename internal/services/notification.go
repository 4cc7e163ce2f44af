package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/irfndi/stock-monitor/internal/config"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/sirupsen/logrus"
)

// messageSender is the part of *bot.Bot the notifier uses.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// NotificationService sends watchlist notices to one Telegram chat.
// Without a bot token it only logs.
type NotificationService struct {
	bot    messageSender
	chatID int64
	logger *logrus.Logger
}

// NewNotificationService creates a notifier from the telegram config.
// Extra bot options are passed to bot.New.
func NewNotificationService(cfg config.TelegramConfig, logger *logrus.Logger, opts ...bot.Option) *NotificationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ns := &NotificationService{chatID: cfg.ChatID, logger: logger}
	if cfg.BotToken == "" {
		return ns
	}

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	telegramBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		logger.WithError(err).Warn("Telegram bot unavailable, notifications disabled")
		return ns
	}
	ns.bot = telegramBot
	return ns
}

// Enabled reports whether messages are actually sent.
func (ns *NotificationService) Enabled() bool {
	return ns.bot != nil && ns.chatID != 0
}

// NotifyArchived reports a ticker removed by a failed health check.
func (ns *NotificationService) NotifyArchived(ctx context.Context, ticker string, stage models.Stage, reason string) error {
	return ns.send(ctx, formatArchivedMessage(ticker, stage, reason))
}

// NotifyBuyReady reports a ticker that just became Buy Ready.
func (ns *NotificationService) NotifyBuyReady(ctx context.Context, item models.WatchlistItem) error {
	return ns.send(ctx, formatBuyReadyMessage(item))
}

func (ns *NotificationService) send(ctx context.Context, text string) error {
	if !ns.Enabled() {
		ns.logger.WithField("message", text).Debug("Telegram disabled, notification skipped")
		return nil
	}
	_, err := ns.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    ns.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatArchivedMessage(ticker string, stage models.Stage, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *%s archived*\n", bot.EscapeMarkdown(ticker))
	fmt.Fprintf(&b, "Failed stage: `%s`\n", stage)
	if reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", bot.EscapeMarkdown(reason))
	}
	return b.String()
}

func formatBuyReadyMessage(item models.WatchlistItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🟢 *%s is Buy Ready*\n", bot.EscapeMarkdown(item.Ticker))
	if item.CurrentPrice != nil {
		fmt.Fprintf(&b, "Price: `%.2f`\n", *item.CurrentPrice)
	}
	if item.PivotPrice != nil {
		fmt.Fprintf(&b, "Pivot: `%.2f`\n", *item.PivotPrice)
	}
	if item.PivotProximityPercent != nil {
		fmt.Fprintf(&b, "Below pivot: `%.2f%%`\n", *item.PivotProximityPercent)
	}
	if item.IsLeader {
		b.WriteString("Leader ⭐\n")
	}
	return b.String()
}

// Package telegram pushes regime changes and loop health notices via the Telegram Bot API
// and answers a few read-only bot commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/scheduler"
)

// Source is the loop state the bot commands read.
type Source interface {
	Latest() *models.LoopResult
	Status() scheduler.Status
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	send           func(text string) error

	mu         sync.Mutex
	lastRegime string
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	c := &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
	c.send = c.sendMarkdownV2
	return c, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, src Source) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					reply := tgbotapi.NewMessage(update.Message.Chat.ID, commandReply(update.Message.Command(), src))
					reply.ParseMode = "MarkdownV2"
					if _, err := c.bot.Send(reply); err != nil {
						logger.Warn("Failed to answer /%s: %v", update.Message.Command(), err)
					}
				}
			}
		}
	}()
}

// commandReply renders the MarkdownV2 answer to a bot command.
func commandReply(cmd string, src Source) string {
	switch cmd {
	case "ping":
		return "Pong"
	case "status":
		return formatStatus(src.Status())
	case "regime":
		latest := src.Latest()
		if latest == nil {
			return escapeMarkdownV2("No result yet. The first cycle has not completed.")
		}
		return formatRegime(latest)
	}
	return escapeMarkdownV2("Commands: /ping /status /regime")
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a loop error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Agent loop error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.send(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Agent loop recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.send(text)
}

// SendRegimeChange announces a new market regime.
func (c *Client) SendRegimeChange(prevLabel string, r *models.LoopResult) error {
	return c.send(formatRegimeChange(prevLabel, r))
}

// HandleCycle is a scheduler cycle hook: error on the first failure, recovery after
// a failure streak, and a message whenever the synthesized regime changes.
func (c *Client) HandleCycle(ev scheduler.CycleEvent) {
	if ev.Err != nil {
		if ev.Failures == 1 {
			if err := c.SendError(ev.Err); err != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", err)
			}
		}
		return
	}
	if ev.PrevFailures > 0 {
		if err := c.SendRecovery(ev.PrevFailures); err != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", err)
		}
	}
	if ev.Result == nil {
		return
	}

	syn := ev.Result.Synthesis
	if syn.MarketRegime == models.RegimeUnknown {
		return
	}
	c.mu.Lock()
	prev := c.lastRegime
	c.lastRegime = syn.MarketRegime + "\x00" + syn.RegimeLabel
	c.mu.Unlock()

	prevRegime, prevLabel, _ := strings.Cut(prev, "\x00")
	if prev == "" || prevRegime == syn.MarketRegime {
		return
	}
	if err := c.SendRegimeChange(prevLabel, ev.Result); err != nil {
		logger.Error("Failed to send regime change to Telegram: %v", err)
		return
	}
	logger.Info("Sent regime change notification: %s -> %s", prevRegime, syn.MarketRegime)
}

func formatRegimeChange(prevLabel string, r *models.LoopResult) string {
	var b strings.Builder
	b.WriteString("🔄 *Regime change*\n")
	fmt.Fprintf(&b, "%s → *%s*\n\n", escapeMarkdownV2(prevLabel), escapeMarkdownV2(r.Synthesis.RegimeLabel))
	b.WriteString(regimeBody(r))
	return b.String()
}

func formatRegime(r *models.LoopResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s*\n\n", escapeMarkdownV2(r.Synthesis.RegimeLabel))
	b.WriteString(regimeBody(r))
	return b.String()
}

func regimeBody(r *models.LoopResult) string {
	syn := r.Synthesis
	var b strings.Builder
	if syn.Headline != "" {
		fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(syn.Headline))
	}
	fmt.Fprintf(&b, "Dominant: %s · Confidence: %s\n",
		escapeMarkdownV2(string(syn.DominantSignal)),
		escapeMarkdownV2(fmt.Sprintf("%.0f%%", syn.Confidence*100)))
	fmt.Fprintf(&b, "📅 Run \\#%d, %s \\(%s\\)",
		r.Loop.RunNumber,
		escapeMarkdownV2(r.Loop.Timestamp.Format("2006-01-02 15:04:05")),
		escapeMarkdownV2(r.Loop.Engine))
	return b.String()
}

func formatStatus(s scheduler.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛰 *Agent loop* %s\n", escapeMarkdownV2(string(s.State)))
	fmt.Fprintf(&b, "Runs: %d · Failures: %d · Subscribers: %d\n", s.RunCount, s.ConsecutiveFailures, s.Subscribers)
	if s.NextRun != nil {
		fmt.Fprintf(&b, "Next run: %s\n", escapeMarkdownV2(s.NextRun.Format("2006-01-02 15:04:05")))
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "Last error: `%s`\n", escapeMarkdownV2(s.LastError))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

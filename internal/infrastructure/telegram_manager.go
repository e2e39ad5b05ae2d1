package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"krishibondhu/internal/entities"
	"krishibondhu/internal/usecases"
)

const (
	maxMarketCrops   = 20
	telegramContext  = "The user is asking through the KrishiBondhu Telegram bot; keep answers short enough for a chat message."
	telegramHelpText = `🌱 KrishiBondhu advisory bot

Send any farming question and I will answer it.

Commands:
/crops <location>, <season>, <soil> - crop recommendations
  e.g. /crops Rangpur, rabi, loamy
/market <crop>, <crop>... - market prices and trends
  e.g. /market rice, potato, onion
/help - show this message`
	cropsUsage  = "Usage: /crops <location>, <season>, <soil>\nExample: /crops Rangpur, rabi, loamy"
	marketUsage = "Usage: /market <crop>, <crop>...\nExample: /market rice, potato"
	chatHint    = "Just type your question, for example: How do I protect my rice from stem borers?"
	busyText    = "⏳ Still working on your previous request. Please wait a moment."
	tooSoonText = "⏳ Please wait a moment before sending another request."
)

// Advisor is the subset of the advisory service the bot exposes.
type Advisor interface {
	GetChatResponse(ctx context.Context, userMessage, advisoryContext, model string) entities.AdvisoryReply
	GetCropRecommendations(ctx context.Context, location, season, soilType string, weather *entities.WeatherData) []entities.CropRecommendation
	GetMarketInsights(ctx context.Context, crops []string, location string) []entities.MarketInsight
}

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramAdvisor answers advisory questions over a Telegram bot.
type TelegramAdvisor struct {
	api      *tgbotapi.BotAPI
	bot      telegramSender
	botName  string
	advisor  Advisor
	limiter  *KeyedLimiter
	sessions *SessionManager
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	wg        sync.WaitGroup
}

// NewTelegramAdvisor validates token against the Bot API and builds the bot.
func NewTelegramAdvisor(token string, advisor Advisor, limiter *KeyedLimiter, logger *zap.Logger) (*TelegramAdvisor, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bot")
	}
	t := newTelegramAdvisor(api, api.Self.UserName, advisor, limiter, logger)
	t.api = api
	return t, nil
}

func newTelegramAdvisor(bot telegramSender, botName string, advisor Advisor, limiter *KeyedLimiter, logger *zap.Logger) *TelegramAdvisor {
	return &TelegramAdvisor{
		bot:      bot,
		botName:  botName,
		advisor:  advisor,
		limiter:  limiter,
		sessions: NewSessionManager(),
		logger:   logger.With(zap.String("bot", botName)),
	}
}

// Run polls for updates until ctx is done, then waits for in-flight replies.
func (t *TelegramAdvisor) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	t.setRunning(true)
	t.logger.Info("telegram bot started polling")
	defer func() {
		t.api.StopReceivingUpdates()
		t.wg.Wait()
		t.setRunning(false)
		t.logger.Info("telegram bot stopped polling")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.HandleUpdate(ctx, update)
			}()
		}
	}
}

// Status reports whether the bot is polling and its username.
func (t *TelegramAdvisor) Status() (connected bool, botName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning, t.botName
}

func (t *TelegramAdvisor) setRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isRunning = running
}

// HandleUpdate dispatches one update: callbacks, commands, or free text.
func (t *TelegramAdvisor) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		t.handleCallback(update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "crops":
			t.guarded(ctx, chatID, func(ctx context.Context) { t.handleCrops(ctx, chatID, msg.CommandArguments()) })
		case "market":
			t.guarded(ctx, chatID, func(ctx context.Context) { t.handleMarket(ctx, chatID, msg.CommandArguments()) })
		default:
			t.sendHelp(chatID)
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	t.guarded(ctx, chatID, func(ctx context.Context) { t.handleChat(ctx, chatID, text) })
}

// guarded runs fn under the per-chat rate limit and in-flight guard.
func (t *TelegramAdvisor) guarded(ctx context.Context, chatID int64, fn func(ctx context.Context)) {
	key := strconv.FormatInt(chatID, 10)
	if !t.limiter.Allow(key) {
		wait := t.limiter.WaitTime(key)
		t.send(chatID, fmt.Sprintf("🚦 Too many requests. Please try again in %d seconds.", int(wait.Seconds())+1))
		return
	}
	switch t.sessions.TryStart(chatID) {
	case Busy:
		t.send(chatID, busyText)
		return
	case TooSoon:
		t.send(chatID, tooSoonText)
		return
	}
	defer t.sessions.Finish(chatID)

	t.sendTyping(chatID)
	fn(usecases.WithUserID(ctx, "telegram:"+key))
}

func (t *TelegramAdvisor) handleChat(ctx context.Context, chatID int64, text string) {
	reply := t.advisor.GetChatResponse(ctx, text, telegramContext, "")
	t.send(chatID, FormatChatReply(reply))
}

func (t *TelegramAdvisor) handleCrops(ctx context.Context, chatID int64, args string) {
	parts := splitArgs(args)
	if len(parts) != 3 {
		t.send(chatID, cropsUsage)
		return
	}
	recs := t.advisor.GetCropRecommendations(ctx, parts[0], parts[1], parts[2], nil)
	t.sendWithMenu(chatID, FormatCropRecommendations(parts[0], parts[1], parts[2], recs))
}

func (t *TelegramAdvisor) handleMarket(ctx context.Context, chatID int64, args string) {
	crops := splitArgs(args)
	if len(crops) == 0 || len(crops) > maxMarketCrops {
		t.send(chatID, marketUsage)
		return
	}
	insights := t.advisor.GetMarketInsights(ctx, crops, "")
	t.sendWithMenu(chatID, FormatMarketInsights(insights))
}

func (t *TelegramAdvisor) handleCallback(callback *tgbotapi.CallbackQuery) {
	if _, err := t.bot.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		t.logger.Warn("failed to acknowledge callback", zap.Error(err))
	}
	if callback.Message == nil || callback.Message.Chat == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	switch callback.Data {
	case callbackHelpCrops:
		t.send(chatID, cropsUsage)
	case callbackHelpMarket:
		t.send(chatID, marketUsage)
	case callbackHelpChat:
		t.send(chatID, chatHint)
	default:
		t.sendHelp(chatID)
	}
}

func (t *TelegramAdvisor) sendHelp(chatID int64) {
	t.sendWithMenu(chatID, telegramHelpText)
}

func (t *TelegramAdvisor) sendTyping(chatID int64) {
	if _, err := t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		t.logger.Debug("failed to send typing action", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (t *TelegramAdvisor) send(chatID int64, text string) {
	t.deliver(tgbotapi.NewMessage(chatID, text))
}

func (t *TelegramAdvisor) sendWithMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = CreateFollowUpMenu()
	t.deliver(msg)
}

func (t *TelegramAdvisor) deliver(msg tgbotapi.MessageConfig) {
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("failed to send telegram message", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}

// splitArgs splits comma-separated command arguments, dropping blanks.
func splitArgs(args string) []string {
	parts := lo.Map(strings.Split(args, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Compact(parts)
}

func FormatChatReply(reply entities.AdvisoryReply) string {
	if len(reply.Suggestions) == 0 {
		return reply.Message
	}
	var sb strings.Builder
	sb.WriteString(reply.Message)
	sb.WriteString("\n\n💡 Quick tips:")
	for _, s := range reply.Suggestions {
		sb.WriteString("\n• ")
		sb.WriteString(s)
	}
	return sb.String()
}

func FormatCropRecommendations(location, season, soilType string, recs []entities.CropRecommendation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🌾 Recommended crops for %s (%s, %s soil):\n", location, season, soilType)
	for i, rec := range recs {
		fmt.Fprintf(&sb, "\n%d. %s (%d/100)\n   %s\n   Season: %s, expected yield: %s\n",
			i+1, rec.Crop, rec.Suitability, rec.Reason, rec.Season, rec.ExpectedYield)
	}
	return strings.TrimRight(sb.String(), "\n")
}

var trendIcons = map[entities.Trend]string{
	entities.TrendRising:  "📈",
	entities.TrendFalling: "📉",
	entities.TrendStable:  "➡️",
}

func FormatMarketInsights(insights []entities.MarketInsight) string {
	var sb strings.Builder
	sb.WriteString("💰 Market insights:\n")
	for _, in := range insights {
		fmt.Fprintf(&sb, "\n%s %s: %s (%s)\n   %s\n", trendIcons[in.Trend], in.Crop, in.CurrentPrice, in.Trend, in.Recommendation)
	}
	return strings.TrimRight(sb.String(), "\n")
}

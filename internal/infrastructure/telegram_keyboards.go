package infrastructure

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	callbackHelpCrops  = "help_crops"
	callbackHelpMarket = "help_market"
	callbackHelpChat   = "help_chat"
)

// CreateFollowUpMenu creates menu buttons shown with the help text and after advice
func CreateFollowUpMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌾 Crop advice", callbackHelpCrops),
			tgbotapi.NewInlineKeyboardButtonData("📈 Market prices", callbackHelpMarket),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❓ Ask a question", callbackHelpChat),
		),
	)
}

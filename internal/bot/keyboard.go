package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/contactbook/internal/domain"
)

const personButtonsLimit = 10

// Main menu keyboard
func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📇 Contacts", "menu:list"),
			tgbotapi.NewInlineKeyboardButtonData("☀️ Today", "menu:today"),
		),
	)
}

// One button per contact opening their upcoming schedule
func personListKeyboard(persons []*domain.Person) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	for i, p := range persons {
		if !p.HasSchedule() {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🗓 %d. %s", i+1, truncate(p.Name, 25)),
				fmt.Sprintf("sched:%d", i+1),
			),
		))
		if len(rows) >= personButtonsLimit {
			break
		}
	}

	if len(rows) == 0 {
		return nil
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

// Actions under a schedule view
func scheduleKeyboard(index int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Today", fmt.Sprintf("days:%d:0", index)),
			tgbotapi.NewInlineKeyboardButtonData("7 days", fmt.Sprintf("days:%d:7", index)),
			tgbotapi.NewInlineKeyboardButtonData("30 days", fmt.Sprintf("days:%d:30", index)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📤 Export .ics", fmt.Sprintf("export:%d", index)),
		),
	)
}

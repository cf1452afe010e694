package bot

import (
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/contactbook/internal/domain"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedUser(userID) {
		b.SendMessage(chatID, "⛔ Access denied")
		return
	}

	user, err := b.storage.GetUserByTelegramID(userID)
	if err != nil {
		log.Printf("Error getting user: %v", err)
		return
	}

	// Allowed users are registered on first contact
	if user == nil && !isStartCommand(msg) {
		user = b.autoRegisterUser(msg.From)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg, user)
		return
	}

	b.SendMessage(chatID, "Send a command. /help lists them")
}

func isStartCommand(msg *tgbotapi.Message) bool {
	return msg.IsCommand() && msg.Command() == "start"
}

// autoRegisterUser auto-registers an allowed user
func (b *Bot) autoRegisterUser(from *tgbotapi.User) *domain.User {
	name := from.FirstName
	if from.LastName != "" {
		name += " " + from.LastName
	}

	role := domain.RoleOwner
	if from.ID == b.cfg.PartnerTelegramID {
		role = domain.RolePartner
	}

	newUser := &domain.User{
		TelegramID: from.ID,
		Name:       name,
		Role:       role,
	}

	if err := b.storage.CreateUser(newUser); err != nil {
		log.Printf("Error auto-registering user: %v", err)
		return nil
	}

	log.Printf("Auto-registered user: %s (ID: %d)", name, from.ID)
	return newUser
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	if !b.cfg.IsAllowedUser(userID) {
		b.api.Request(tgbotapi.NewCallback(callback.ID, "⛔ Access denied"))
		return
	}

	user, _ := b.storage.GetUserByTelegramID(userID)
	if user == nil {
		user = b.autoRegisterUser(callback.From)
		if user == nil {
			b.api.Request(tgbotapi.NewCallback(callback.ID, "Registration failed"))
			return
		}
	}

	parts := strings.Split(callback.Data, ":")
	b.api.Request(tgbotapi.NewCallback(callback.ID, ""))

	switch parts[0] {
	case "menu":
		if len(parts) < 2 {
			return
		}
		switch parts[1] {
		case "list":
			b.showPeople(chatID, msgID, user.ID)
		case "today":
			b.showToday(chatID, msgID, user.ID)
		}

	case "sched":
		// sched:index
		if len(parts) < 2 {
			return
		}
		b.sendUpcoming(chatID, user, atoi(parts[1]), b.cfg.UpcomingDays)

	case "days":
		// days:index:days
		if len(parts) < 3 {
			return
		}
		b.showUpcoming(chatID, msgID, user, atoi(parts[1]), atoi(parts[2]))

	case "export":
		// export:index
		if len(parts) < 2 {
			return
		}
		b.sendExport(chatID, user, atoi(parts[1]))
	}
}

func (b *Bot) showPeople(chatID int64, msgID int, userID int64) {
	persons, _ := b.personService.List(userID)

	text := "<b>📇 Contacts</b>\n\n"
	if len(persons) == 0 {
		text += "The list is empty.\n\nAdd one: /addperson Alex Yeoh friend"
	} else {
		text += b.personService.FormatPersonList(persons)
	}

	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	if kb := personListKeyboard(persons); kb != nil {
		edit.ReplyMarkup = kb
	}
	b.api.Send(edit)
}

func (b *Bot) showToday(chatID int64, msgID int, userID int64) {
	agendas, err := b.personService.ListTodayAgendas(userID)
	if err != nil {
		log.Printf("Error getting today agendas: %v", err)
		return
	}

	text := b.scheduleService.FormatTodayDigest(agendas)
	if text == "" {
		text = "Nothing left today in your contacts' schedules 🎉"
	}

	kb := mainMenuKeyboard()
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = &kb
	b.api.Send(edit)
}

func (b *Bot) showUpcoming(chatID int64, msgID int, user *domain.User, index, days int) {
	person, upcoming, err := b.personService.Upcoming(user.ID, index, days)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	text := b.scheduleService.FormatUpcoming(person, upcoming, days, b.personService.Now())
	kb := scheduleKeyboard(index)
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = &kb
	b.api.Send(edit)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

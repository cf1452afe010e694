package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/contactbook/internal/domain"
	"github.com/tazhate/contactbook/internal/service"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message, user *domain.User) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start":
		b.cmdStart(msg)
	case "help":
		b.cmdHelp(chatID)
	case "list":
		b.cmdList(chatID, user)
	case "addperson":
		b.cmdAddPerson(chatID, user, args)
	case "delperson":
		b.cmdDeletePerson(chatID, user, args)
	case "edit":
		b.cmdEditPerson(chatID, user, args)
	case "addevent":
		b.cmdAddEvent(chatID, user, args)
	case "schedule":
		b.cmdSchedule(chatID, user, args)
	case "events":
		b.cmdEvents(chatID, user, args)
	case "free":
		b.cmdFree(chatID, user, args)
	case "export":
		b.cmdExport(chatID, user, args)
	default:
		b.SendMessage(chatID, "Unknown command. /help lists the commands")
	}
}

// errorText renders a service error for chat
func errorText(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrInvalidIndex):
		return "❌ " + service.MessageInvalidPersonIndex
	case errors.As(err, &verr) && verr.IsEventField():
		return "❌ " + html.EscapeString(err.Error()) + "\n" + domain.EventConstraints
	case errors.Is(err, domain.ErrValidation):
		return "❌ " + html.EscapeString(err.Error())
	default:
		return "❌ Error: " + html.EscapeString(err.Error())
	}
}

func (b *Bot) cmdStart(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	user, _ := b.storage.GetUserByTelegramID(msg.From.ID)
	if user != nil {
		b.SendMessage(chatID, fmt.Sprintf("👋 Welcome back, %s!", html.EscapeString(user.Name)))
		return
	}

	user = b.autoRegisterUser(msg.From)
	if user == nil {
		b.SendMessage(chatID, "❌ Registration failed")
		return
	}

	b.SendMessageWithKeyboard(chatID,
		fmt.Sprintf("👋 Hi, %s!\n\nI keep your contacts and their weekly schedules.\n\n/help lists the commands", html.EscapeString(user.Name)),
		mainMenuKeyboard())
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

<b>Contacts</b>
/list — numbered contact list
/addperson NAME [family|friend|colleague|contact] — add a contact
/edit INDEX [n/NAME] [p/PHONE] [e/EMAIL] [a/ADDRESS] [r/ROLE] [no/NOTES] [tg/TAG]... — edit a contact
/delperson INDEX — delete a contact

<b>Schedules</b>
/addevent INDEX ed/DESCRIPTION d/YYYY-MM-DD t/HH:MM du/HOURS — add a weekly event
/events INDEX — every recorded event of a contact
/schedule INDEX [DAYS] — upcoming events (0 = rest of today)
/free t/HH:MM [d/YYYY-MM-DD] — contacts free at that time
/export INDEX — schedule as an .ics file

💡 INDEX is the number shown by /list`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdList(chatID int64, user *domain.User) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	persons, err := b.personService.List(user.ID)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	text := "<b>📇 Contacts:</b>\n\n" + b.personService.FormatPersonList(persons)
	if kb := personListKeyboard(persons); kb != nil {
		b.SendMessageWithKeyboard(chatID, text, *kb)
		return
	}
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdAddPerson(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}
	if args == "" {
		b.SendMessage(chatID, "Give a name: /addperson Alex Yeoh friend")
		return
	}

	name, role := parsePersonArgs(args)
	person, err := b.personService.Create(user.ID, name, role)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	b.SendMessage(chatID, "✅ "+fmt.Sprintf(service.MessagePersonAdded, html.EscapeString(person.Name)))
}

// parsePersonArgs splits "NAME [role]". A trailing word is taken as the
// role only when it names one.
func parsePersonArgs(args string) (string, domain.PersonRole) {
	fields := strings.Fields(args)
	if len(fields) > 1 {
		if role, ok := domain.ParsePersonRole(fields[len(fields)-1]); ok {
			return strings.Join(fields[:len(fields)-1], " "), role
		}
	}
	return strings.Join(fields, " "), domain.RoleContact
}

func (b *Bot) cmdDeletePerson(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	index, err := service.ParseIndex(args)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	person, err := b.personService.Delete(user.ID, index)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	b.SendMessage(chatID, "🗑 "+fmt.Sprintf(service.MessagePersonDeleted, html.EscapeString(person.Name)))
}

func (b *Bot) cmdEditPerson(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	index, descriptor, err := b.scheduleService.ParseEditArgs(args)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	person, err := b.personService.Edit(user.ID, index, descriptor)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	b.SendMessage(chatID, "✏️ "+fmt.Sprintf(service.MessagePersonEdited, html.EscapeString(person.Name)))
}

func (b *Bot) cmdAddEvent(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	index, event, err := b.scheduleService.ParseAddEventArgs(args)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	res, err := b.personService.AddEvent(user.ID, index, event)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	log.Printf("User %d: %s", user.ID, res.Message)
	b.SendMessage(chatID, "✅ "+html.EscapeString(res.Message))

	if b.calendarService.IsConfigured() {
		go b.pushToCalendar(res.Person)
	}
}

// pushToCalendar exports one person's schedule right after it changed
func (b *Bot) pushToCalendar(person *domain.Person) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := b.calendarService.PushPerson(ctx, person)
	if err != nil {
		log.Printf("Calendar push for person %d failed: %v", person.ID, err)
		return
	}
	for _, e := range result.Errors {
		log.Printf("Calendar push error: %s", e)
	}
}

func (b *Bot) cmdEvents(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	index, err := service.ParseIndex(args)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	person, err := b.personService.Get(user.ID, index)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	b.SendMessageWithKeyboard(chatID, b.scheduleService.FormatSchedule(person), scheduleKeyboard(index))
}

func (b *Bot) cmdSchedule(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	index, days, err := b.scheduleService.ParseScheduleArgs(args, b.cfg.UpcomingDays)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	b.sendUpcoming(chatID, user, index, days)
}

func (b *Bot) sendUpcoming(chatID int64, user *domain.User, index, days int) {
	person, upcoming, err := b.personService.Upcoming(user.ID, index, days)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	text := b.scheduleService.FormatUpcoming(person, upcoming, days, b.personService.Now())
	b.SendMessageWithKeyboard(chatID, text, scheduleKeyboard(index))
}

func (b *Bot) cmdFree(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	at, date, err := b.scheduleService.ParseFreeArgs(args)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	res, err := b.personService.FreeSchedule(user.ID, at, date)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	b.SendMessage(chatID, b.scheduleService.FormatFree(res))
}

func (b *Bot) cmdExport(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	index, err := service.ParseIndex(args)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	b.sendExport(chatID, user, index)
}

func (b *Bot) sendExport(chatID int64, user *domain.User, index int) {
	person, err := b.personService.Get(user.ID, index)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	data, err := b.calendarService.ExportICS(person)
	if err != nil {
		b.SendMessage(chatID, errorText(err))
		return
	}

	name := icsFileName(person.Name)
	if err := b.SendDocument(chatID, name, data, person.Name+"'s weekly schedule"); err != nil {
		log.Printf("Error sending %s: %v", name, err)
		b.SendMessage(chatID, errorText(err))
	}
}

// icsFileName turns a person name into a safe file name
func icsFileName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteRune('-')
		}
	}
	if sb.Len() == 0 {
		return "schedule.ics"
	}
	return sb.String() + ".ics"
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}

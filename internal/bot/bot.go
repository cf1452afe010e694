package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/contactbook/config"
	"github.com/tazhate/contactbook/internal/service"
	"github.com/tazhate/contactbook/internal/storage"
)

const webhookPath = "/bot"

type Bot struct {
	api             *tgbotapi.BotAPI
	cfg             *config.Config
	storage         *storage.Storage
	personService   *service.PersonService
	scheduleService *service.ScheduleService
	calendarService *service.CalendarService
	mux             *http.ServeMux
	server          *http.Server
}

func New(cfg *config.Config, storage *storage.Storage, personSvc *service.PersonService, scheduleSvc *service.ScheduleService, calendarSvc *service.CalendarService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	bot := &Bot{
		api:             api,
		cfg:             cfg,
		storage:         storage,
		personService:   personSvc,
		scheduleService: scheduleSvc,
		calendarService: calendarSvc,
		mux:             http.NewServeMux(),
	}

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "list", Description: "📇 Contacts"},
		{Command: "addperson", Description: "➕ Add a contact"},
		{Command: "edit", Description: "✏️ Edit a contact"},
		{Command: "addevent", Description: "🗓 Add a weekly event"},
		{Command: "schedule", Description: "📅 Upcoming schedule"},
		{Command: "events", Description: "🗒 Recorded events"},
		{Command: "free", Description: "🟢 Who is free"},
		{Command: "help", Description: "❓ Command reference"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

// SetupWebhook registers the webhook when WebhookURL is configured and
// removes any stale one otherwise, so long polling can be used.
func (b *Bot) SetupWebhook() error {
	if b.cfg.WebhookURL == "" {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
		log.Println("Webhook disabled, using long polling")
		return nil
	}

	webhookURL := b.cfg.WebhookURL + webhookPath

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	_, err = b.api.Request(wh)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		log.Printf("Webhook last error: %s", info.LastErrorMessage)
	}

	log.Printf("Webhook set to: %s", webhookURL)
	return nil
}

func (b *Bot) updatesChannel() tgbotapi.UpdatesChannel {
	if b.cfg.WebhookURL == "" {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return b.api.GetUpdatesChan(u)
	}

	ch := make(chan tgbotapi.Update, b.api.Buffer)
	b.mux.HandleFunc(webhookPath, func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ch <- *update
	})
	return ch
}

func (b *Bot) Start(ctx context.Context) error {
	updates := b.updatesChannel()

	b.SetupAPI()

	b.server = &http.Server{
		Addr:    ":" + b.cfg.ServerPort,
		Handler: b.mux,
	}

	go func() {
		log.Printf("Starting HTTP server on :%s", b.cfg.ServerPort)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

// SendDocument sends a file, used for .ics exports
func (b *Bot) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := b.api.Send(doc)
	return err
}

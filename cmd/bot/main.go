package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/tazhate/contactbook/config"
	"github.com/tazhate/contactbook/internal/bot"
	"github.com/tazhate/contactbook/internal/clients/caldav"
	"github.com/tazhate/contactbook/internal/scheduler"
	"github.com/tazhate/contactbook/internal/service"
	"github.com/tazhate/contactbook/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	var caldavClient *caldav.Client
	if cfg.CalDAV.Enabled() {
		caldavClient = caldav.NewClient(cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password)
	}

	personSvc := service.NewPersonService(store, cfg.Timezone)
	scheduleSvc := service.NewScheduleService(cfg.Timezone)
	calendarSvc := service.NewCalendarService(store, caldavClient, cfg.Timezone)
	if calendarSvc.IsConfigured() {
		selectCalendar(calendarSvc, cfg.CalDAV.Calendar)
	}

	tgBot, err := bot.New(cfg, store, personSvc, scheduleSvc, calendarSvc)
	if err != nil {
		log.Fatalf("Failed to init bot: %v", err)
	}

	if err := tgBot.SetupWebhook(); err != nil {
		log.Fatalf("Failed to setup webhook: %v", err)
	}

	sched := scheduler.New(cfg, store, personSvc, scheduleSvc, calendarSvc)
	sched.SetSender(tgBot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Printf("Bot error: %v", err)
		}
	}()

	log.Println("ContactBook started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping bot: %v", err)
	}

	log.Println("ContactBook stopped")
}

// selectCalendar uses the configured calendar path, or the first calendar
// the server reports when none is configured.
func selectCalendar(svc *service.CalendarService, path string) {
	if path != "" {
		svc.SetCalendarPath(path)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	calendars, err := svc.DiscoverCalendars(ctx)
	if err != nil {
		log.Printf("CalDAV discovery failed, calendar export disabled: %v", err)
		return
	}
	if len(calendars) == 0 {
		log.Printf("CalDAV account has no calendars, calendar export disabled")
		return
	}

	svc.SetCalendarPath(calendars[0].URL)
	log.Printf("CalDAV export to %q (%s)", calendars[0].DisplayName, calendars[0].URL)
}

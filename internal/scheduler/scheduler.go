package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/contactbook/config"
	"github.com/tazhate/contactbook/internal/service"
	"github.com/tazhate/contactbook/internal/storage"
)

const syncTimeout = 5 * time.Minute

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

type Scheduler struct {
	cron            *cron.Cron
	cfg             *config.Config
	storage         *storage.Storage
	personService   *service.PersonService
	scheduleService *service.ScheduleService
	calendarService *service.CalendarService
	sender          MessageSender
}

func New(cfg *config.Config, storage *storage.Storage, personSvc *service.PersonService, scheduleSvc *service.ScheduleService, calendarSvc *service.CalendarService) *Scheduler {
	c := cron.New(cron.WithLocation(cfg.Timezone))

	return &Scheduler{
		cron:            c,
		cfg:             cfg,
		storage:         storage,
		personService:   personSvc,
		scheduleService: scheduleSvc,
		calendarService: calendarSvc,
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

func (s *Scheduler) Start(ctx context.Context) error {
	morningSpec, err := s.cfg.MorningSpec()
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(morningSpec, s.morningBriefing); err != nil {
		return fmt.Errorf("add morning briefing: %w", err)
	}

	if s.calendarService != nil && s.calendarService.IsConfigured() {
		if _, err := s.cron.AddFunc(s.cfg.CalDAV.SyncCron, func() { s.exportCalendars(ctx) }); err != nil {
			return fmt.Errorf("add calendar export: %w", err)
		}
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, morning: %s)", s.cfg.Timezone, s.cfg.MorningTime)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) allowedTelegramIDs() []int64 {
	ids := []int64{s.cfg.OwnerTelegramID}
	if s.cfg.PartnerTelegramID != 0 {
		ids = append(ids, s.cfg.PartnerTelegramID)
	}
	return ids
}

func (s *Scheduler) morningBriefing() {
	if s.sender == nil {
		return
	}

	for _, id := range s.allowedTelegramIDs() {
		s.sendBriefingTo(id)
	}
}

func (s *Scheduler) sendBriefingTo(telegramID int64) {
	user, err := s.storage.GetUserByTelegramID(telegramID)
	if err != nil || user == nil {
		return
	}

	agendas, err := s.personService.ListTodayAgendas(user.ID)
	if err != nil {
		log.Printf("Error getting today agendas: %v", err)
		return
	}
	if len(agendas) == 0 {
		return
	}

	text := s.scheduleService.FormatTodayDigest(agendas)
	if err := s.sender.SendMessage(telegramID, text); err != nil {
		log.Printf("Error sending morning briefing to %d: %v", telegramID, err)
	}
}

func (s *Scheduler) exportCalendars(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, syncTimeout)
	defer cancel()

	for _, id := range s.allowedTelegramIDs() {
		user, err := s.storage.GetUserByTelegramID(id)
		if err != nil || user == nil {
			continue
		}

		result, err := s.calendarService.SyncAll(ctx, user.ID)
		if err != nil {
			log.Printf("Calendar export for user %d failed: %v", user.ID, err)
			continue
		}
		log.Printf("Calendar export for user %d: %d persons, %d put, %d deleted, %d errors",
			user.ID, result.Persons, result.Put, result.Deleted, len(result.Errors))
		for _, e := range result.Errors {
			log.Printf("Calendar export error: %s", e)
		}
	}
}

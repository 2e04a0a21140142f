package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"vpn-access-bot/internal/constants"
	"vpn-access-bot/internal/models"
)

// Notifier delivers a renewal reminder to a user
type Notifier interface {
	SendReminder(userID int64, lang, kind string) error
}

// reminderStore is the persistence surface the scheduler drives
type reminderStore interface {
	ListDueReminders(now time.Time) ([]models.Reminder, error)
	MarkReminded(userID int64, kind string) error
	SetStatusExpired(userID int64) error
}

// ReminderScheduler periodically scans for subscriptions that crossed a
// reminder threshold and pushes each reminder at most once.
type ReminderScheduler struct {
	store    reminderStore
	notifier Notifier
	interval time.Duration
	cron     *cron.Cron
	logger   *logrus.Logger
}

// NewReminderScheduler creates a new scheduler polling at interval
func NewReminderScheduler(store reminderStore, notifier Notifier, interval time.Duration, logger *logrus.Logger) *ReminderScheduler {
	if interval <= 0 {
		interval = constants.DefaultReminderIntervalMinutes * time.Minute
	}
	return &ReminderScheduler{
		store:    store,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic polling in the background
func (s *ReminderScheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.RunCycle); err != nil {
		return fmt.Errorf("failed to schedule reminder job: %w", err)
	}
	s.cron.Start()
	s.logger.Infof("Reminder scheduler started, polling every %s", s.interval)
	return nil
}

// Stop stops the polling loop
func (s *ReminderScheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.logger.Info("Reminder scheduler stopped")
	}
}

// RunCycle performs one poll. A store failure fails the whole cycle and
// is retried on the next interval; a notification failure for one user
// never blocks the rest.
func (s *ReminderScheduler) RunCycle() {
	now := time.Now().UTC()

	due, err := s.store.ListDueReminders(now)
	if err != nil {
		s.logger.Errorf("Failed to list due reminders: %v", err)
		return
	}

	for _, reminder := range due {
		if reminder.Kind == models.ReminderExpired {
			// The status transition is not contingent on delivery.
			if err := s.store.SetStatusExpired(reminder.UserID); err != nil {
				s.logger.Errorf("Failed to mark subscription expired for user %d: %v", reminder.UserID, err)
			}
		}

		if err := s.notifier.SendReminder(reminder.UserID, reminder.Lang, reminder.Kind); err != nil {
			s.logger.Errorf("Failed to send %s reminder to user %d: %v", reminder.Kind, reminder.UserID, err)
			continue
		}

		if err := s.store.MarkReminded(reminder.UserID, reminder.Kind); err != nil {
			s.logger.Errorf("Failed to mark user %d reminded (%s): %v", reminder.UserID, reminder.Kind, err)
		}
	}
}

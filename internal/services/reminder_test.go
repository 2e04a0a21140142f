package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpn-access-bot/internal/models"
)

type sentReminder struct {
	userID int64
	lang   string
	kind   string
}

// recordingNotifier records deliveries and can fail for chosen users
type recordingNotifier struct {
	failFor map[int64]bool
	sent    []sentReminder
}

func (n *recordingNotifier) SendReminder(userID int64, lang, kind string) error {
	if n.failFor[userID] {
		return fmt.Errorf("chat not found")
	}
	n.sent = append(n.sent, sentReminder{userID, lang, kind})
	return nil
}

func newTestScheduler(t *testing.T, notifier Notifier) (*ReminderScheduler, *StorageService) {
	t.Helper()
	store := newTestStore(t)
	return NewReminderScheduler(store, notifier, time.Minute, testLogger()), store
}

func TestRunCycleSendsAndMarks(t *testing.T) {
	notifier := &recordingNotifier{}
	scheduler, store := newTestScheduler(t, notifier)

	require.NoError(t, store.UpsertUser(1, "ru"))
	require.NoError(t, store.SetSubscription(1, expiryIn(48*time.Hour), "1m"))

	scheduler.RunCycle()

	require.Equal(t, []sentReminder{{1, "ru", models.ReminderThreeDay}}, notifier.sent)

	// The flag is set, so an immediate second cycle sends nothing.
	scheduler.RunCycle()
	require.Len(t, notifier.sent, 1)
}

func TestRunCycleExpiredSetsStatusEvenWhenDeliveryFails(t *testing.T) {
	notifier := &recordingNotifier{failFor: map[int64]bool{1: true}}
	scheduler, store := newTestScheduler(t, notifier)

	require.NoError(t, store.UpsertUser(1, "ru"))
	require.NoError(t, store.SetSubscription(1, expiryIn(-time.Hour), "1m"))

	scheduler.RunCycle()

	// The status transition happened regardless of delivery.
	sub, err := store.GetSubscription(1)
	require.NoError(t, err)
	require.Equal(t, models.StatusExpired, sub.Status)

	// Delivery failed, so the reminder is not consumed and fires again.
	require.False(t, sub.RemindedExpired)
	require.Empty(t, notifier.sent)

	notifier.failFor = nil
	scheduler.RunCycle()
	require.Equal(t, []sentReminder{{1, "ru", models.ReminderExpired}}, notifier.sent)

	sub, err = store.GetSubscription(1)
	require.NoError(t, err)
	require.True(t, sub.RemindedExpired)
}

func TestRunCycleOneFailureDoesNotBlockOthers(t *testing.T) {
	notifier := &recordingNotifier{failFor: map[int64]bool{1: true}}
	scheduler, store := newTestScheduler(t, notifier)

	require.NoError(t, store.UpsertUser(1, "ru"))
	require.NoError(t, store.SetSubscription(1, expiryIn(48*time.Hour), "1m"))
	require.NoError(t, store.UpsertUser(2, "en"))
	require.NoError(t, store.SetSubscription(2, expiryIn(48*time.Hour), "1m"))

	scheduler.RunCycle()

	require.Equal(t, []sentReminder{{2, "en", models.ReminderThreeDay}}, notifier.sent)
}

func TestRunCycleNothingDue(t *testing.T) {
	notifier := &recordingNotifier{}
	scheduler, store := newTestScheduler(t, notifier)

	require.NoError(t, store.UpsertUser(1, "ru"))
	require.NoError(t, store.SetSubscription(1, expiryIn(30*24*time.Hour), "1m"))

	scheduler.RunCycle()
	require.Empty(t, notifier.sent)
}

package services

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"vpn-access-bot/internal/constants"
	"vpn-access-bot/internal/models"
)

// StorageService persists users, subscriptions and issued credentials
// in a local SQLite database, keyed by user id.
type StorageService struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logrus.Logger
}

const storageSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY,
	lang TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	user_id INTEGER PRIMARY KEY,
	plan_code TEXT,
	expires_at TEXT,
	status TEXT NOT NULL,
	reminded_3d INTEGER NOT NULL DEFAULT 0,
	reminded_1d INTEGER NOT NULL DEFAULT 0,
	reminded_0d INTEGER NOT NULL DEFAULT 0,
	reminded_expired INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_keys (
	user_id INTEGER PRIMARY KEY,
	vless_uri TEXT,
	sub_url TEXT,
	client_id TEXT,
	email TEXT,
	sub_id TEXT,
	updated_at TEXT NOT NULL
);`

// NewStorageService opens or creates the SQLite database at path
func NewStorageService(path string, logger *logrus.Logger) (*StorageService, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(storageSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &StorageService{db: db, logger: logger}, nil
}

// Close closes the underlying database
func (s *StorageService) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertUser creates or refreshes a user's language preference
func (s *StorageService) UpsertUser(userID int64, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowISO()
	_, err := s.db.Exec(`
		INSERT INTO users (user_id, lang, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			lang = excluded.lang,
			updated_at = excluded.updated_at`,
		userID, lang, now, now)
	return err
}

// GetUserLang returns a user's stored language preference, or fallback
// when the user is unknown
func (s *StorageService) GetUserLang(userID int64, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lang string
	err := s.db.QueryRow("SELECT lang FROM users WHERE user_id = ?", userID).Scan(&lang)
	if err != nil {
		return fallback
	}
	return lang
}

// SetSubscription upserts a user's subscription: status becomes active
// and every reminder flag is reset
func (s *StorageService) SetSubscription(userID int64, expiresAt, planCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO subscriptions (
			user_id, plan_code, expires_at, status,
			reminded_3d, reminded_1d, reminded_0d, reminded_expired, updated_at
		)
		VALUES (?, ?, ?, 'active', 0, 0, 0, 0, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan_code = excluded.plan_code,
			expires_at = excluded.expires_at,
			status = 'active',
			reminded_3d = 0,
			reminded_1d = 0,
			reminded_0d = 0,
			reminded_expired = 0,
			updated_at = excluded.updated_at`,
		userID, planCode, expiresAt, nowISO())
	return err
}

var remindedColumns = map[string]string{
	models.ReminderThreeDay: "reminded_3d",
	models.ReminderOneDay:   "reminded_1d",
	models.ReminderDayOf:    "reminded_0d",
	models.ReminderExpired:  "reminded_expired",
}

// MarkReminded sets the reminder flag for the given kind. Flags only
// ever flip to true here; a fresh issuance is the only reset path.
func (s *StorageService) MarkReminded(userID int64, kind string) error {
	column, ok := remindedColumns[kind]
	if !ok {
		return fmt.Errorf("unknown reminder kind: %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		fmt.Sprintf("UPDATE subscriptions SET %s = 1, updated_at = ? WHERE user_id = ?", column),
		nowISO(), userID)
	return err
}

// SetStatusExpired flips a subscription's status to expired
func (s *StorageService) SetStatusExpired(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE subscriptions SET status = 'expired', updated_at = ? WHERE user_id = ?",
		nowISO(), userID)
	return err
}

// SetUserKey upserts a user's issued credential record
func (s *StorageService) SetUserKey(key models.UserKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO user_keys (user_id, vless_uri, sub_url, client_id, email, sub_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			vless_uri = excluded.vless_uri,
			sub_url = excluded.sub_url,
			client_id = excluded.client_id,
			email = excluded.email,
			sub_id = excluded.sub_id,
			updated_at = excluded.updated_at`,
		key.UserID, key.VlessURI, key.SubURL, key.ClientID, key.Email, key.SubID, nowISO())
	return err
}

// GetUserKey returns a user's stored credential, or nil when absent
func (s *StorageService) GetUserKey(userID int64) (*models.UserKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.UserKey{UserID: userID}
	err := s.db.QueryRow(
		"SELECT vless_uri, sub_url, client_id, email, sub_id FROM user_keys WHERE user_id = ?",
		userID).Scan(&key.VlessURI, &key.SubURL, &key.ClientID, &key.Email, &key.SubID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetSubscription returns a user's subscription record, or nil when absent
func (s *StorageService) GetSubscription(userID int64) (*models.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := models.SubscriptionRecord{UserID: userID}
	err := s.db.QueryRow(`
		SELECT plan_code, expires_at, status,
			reminded_3d, reminded_1d, reminded_0d, reminded_expired
		FROM subscriptions WHERE user_id = ?`,
		userID).Scan(&rec.PlanCode, &rec.ExpiresAt, &rec.Status,
		&rec.Reminded3d, &rec.Reminded1d, &rec.Reminded0d, &rec.RemindedExpired)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDueReminders scans all subscriptions with an expiry and returns
// at most one due reminder per user. Precedence, first match wins:
// already expired, due within a day, due within three days.
func (s *StorageService) ListDueReminders(now time.Time) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT s.user_id, s.expires_at,
			s.reminded_3d, s.reminded_0d, s.reminded_expired,
			COALESCE(u.lang, 'en')
		FROM subscriptions s
		LEFT JOIN users u ON u.user_id = s.user_id
		WHERE s.expires_at IS NOT NULL AND s.expires_at != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		var (
			userID                               int64
			expiresAt, lang                      string
			reminded3d, reminded0d, remindedExpd bool
		)
		if err := rows.Scan(&userID, &expiresAt, &reminded3d, &reminded0d, &remindedExpd, &lang); err != nil {
			return nil, err
		}

		expires, err := time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			s.logger.Warnf("Skipping subscription with bad expiry for user %d: %v", userID, err)
			continue
		}

		remaining := expires.Sub(now)
		switch {
		case remaining <= 0:
			if !remindedExpd {
				reminders = append(reminders, models.Reminder{UserID: userID, Lang: lang, Kind: models.ReminderExpired})
			}
		case remaining <= constants.DueTodayHours*time.Hour:
			if !reminded0d {
				reminders = append(reminders, models.Reminder{UserID: userID, Lang: lang, Kind: models.ReminderDayOf})
			}
		case remaining <= constants.DueInThreeDays*time.Hour:
			if !reminded3d {
				reminders = append(reminders, models.Reminder{UserID: userID, Lang: lang, Kind: models.ReminderThreeDay})
			}
		}
	}

	return reminders, rows.Err()
}

package constants

const (
	// User naming constants
	LabelPrefix = "tg_"
	SubIDLength = 16

	// Traffic constants
	BytesInGB = 1024 * 1024 * 1024

	// Duration constants
	MillisecondsInDay = 24 * 60 * 60 * 1000
	HoursInDay        = 24

	// Reminder thresholds
	DueTodayHours  = 24
	DueInThreeDays = 72

	// Network constants
	DefaultTimeout = 30 // seconds
	DefaultAPIPath = "/panel/api"

	// Cache constants
	CacheExpiration      = 30 // minutes
	CacheCleanupInterval = 10 // minutes

	// Scheduling constants
	DefaultReminderIntervalMinutes = 60

	// Formatting constants
	TimestampFormat = "2006-01-02 15:04:05"
	DateFormat      = "2006-01-02"
)

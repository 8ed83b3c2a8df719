package business

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/antonbillionaire/staffix/internal/timezone"
)

// ErrNotFound is returned when a business (or one of its records) is absent.
var ErrNotFound = errors.New("business: not found")

// Supported prompt languages.
const (
	LanguageRussian = "ru"
	LanguageUzbek   = "uz"
	LanguageEnglish = "en"
)

// DayHours holds local opening hours for one weekday.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// Minutes returns open and close as minutes after local midnight.
func (d DayHours) Minutes() (open, close int, ok bool) {
	open, okOpen := ParseClock(d.Open)
	close, okClose := ParseClock(d.Close)
	if !okOpen || !okClose || close <= open {
		return 0, 0, false
	}
	return open, close, true
}

// BusinessHours maps weekdays to local hours. A nil day is closed.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// ForDay returns the hours for a given weekday.
func (b BusinessHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// Business is the tenant root.
type Business struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Timezone      string        `json:"timezone"`
	Language      string        `json:"language"`
	Hours         BusinessHours `json:"hours"`
	BufferMinutes int           `json:"buffer_minutes"`
	MessageQuota  int           `json:"message_quota"`
	MessagesUsed  int           `json:"messages_used"`
	PlanExpiresAt *time.Time    `json:"plan_expires_at,omitempty"`
	OwnerEmail    string        `json:"owner_email,omitempty"`
	BotToken      string        `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Usage is the live quota and plan state of a business.
type Usage struct {
	MessageQuota  int
	MessagesUsed  int
	PlanExpiresAt *time.Time
}

// ApplyUsage overwrites the quota and plan fields with u.
func (b *Business) ApplyUsage(u Usage) {
	b.MessageQuota = u.MessageQuota
	b.MessagesUsed = u.MessagesUsed
	b.PlanExpiresAt = u.PlanExpiresAt
}

// PlanActive reports whether the subscription allows automated sends at now.
func (b *Business) PlanActive(now time.Time) bool {
	return b.PlanExpiresAt == nil || b.PlanExpiresAt.After(now)
}

// QuotaExhausted reports whether the message quota is used up. A zero quota
// means unlimited.
func (b *Business) QuotaExhausted() bool {
	return b.MessageQuota > 0 && b.MessagesUsed >= b.MessageQuota
}

// Buffer is the mandatory gap after each booking.
func (b *Business) Buffer() time.Duration {
	if b.BufferMinutes <= 0 {
		return 0
	}
	return time.Duration(b.BufferMinutes) * time.Minute
}

// OpenInterval returns the UTC open interval for the local calendar date
// carried by day (only year, month and day are read).
func (b *Business) OpenInterval(day time.Time) (start, end time.Time, ok bool) {
	weekday := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).Weekday()
	hours := b.Hours.ForDay(weekday)
	if hours == nil {
		return time.Time{}, time.Time{}, false
	}
	open, close, ok := hours.Minutes()
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	start = timezone.LocalClockToUTC(day.Year(), day.Month(), day.Day(), open/60, open%60, b.Timezone)
	end = timezone.LocalClockToUTC(day.Year(), day.Month(), day.Day(), close/60, close%60, b.Timezone)
	return start, end, true
}

// Local converts t into the business's fixed-offset local time.
func (b *Business) Local(t time.Time) time.Time {
	return timezone.ToLocal(t, b.Timezone)
}

// Staff is a schedulable resource.
type Staff struct {
	ID         string   `json:"id"`
	BusinessID string   `json:"business_id"`
	Name       string   `json:"name"`
	Role       string   `json:"role,omitempty"`
	ServiceIDs []string `json:"service_ids,omitempty"`
	Position   int      `json:"position"`
	Active     bool     `json:"active"`
}

// Offers reports whether the staff member performs serviceID. An empty
// service list means every service.
func (s Staff) Offers(serviceID string) bool {
	if len(s.ServiceIDs) == 0 {
		return true
	}
	for _, id := range s.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Service is a bookable offering.
type Service struct {
	ID              string `json:"id"`
	BusinessID      string `json:"business_id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Active          bool   `json:"active"`
}

// Duration returns the slot width for this service.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// TimeOff blocks a staff member for [Start, End).
type TimeOff struct {
	ID      string    `json:"id"`
	StaffID string    `json:"staff_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Reason  string    `json:"reason,omitempty"`
}

// FAQEntry is a canned question and answer shown to the agent.
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is allowed.
func ParseClock(raw string) (int, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(raw), ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 24 {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	total := hour*60 + minute
	if total > 24*60 {
		return 0, false
	}
	return total, true
}

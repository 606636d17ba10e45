package models

import "time"

// PrayerNames lists the five canonical prayers in daily order.
var PrayerNames = []string{"fajr", "dhuhr", "asr", "maghrib", "isha"}

// IsCanonicalPrayer reports whether name is one of the five prayers.
func IsCanonicalPrayer(name string) bool {
	for _, p := range PrayerNames {
		if p == name {
			return true
		}
	}
	return false
}

type Location struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
}

type AudioProfile struct {
	File            string  `json:"file"`
	Volume          float64 `json:"volume"`
	FadeInMs        int     `json:"fadeInMs"`
	CooldownSeconds int     `json:"cooldownSeconds"`
}

type Preferences struct {
	Enabled             bool            `json:"enabled"`
	PerPrayer           map[string]bool `json:"perPrayer"`
	CalculationMethod   string          `json:"calculationMethod"`
	JurisprudenceSchool string          `json:"jurisprudenceSchool"`
	ReminderMinutes     int             `json:"reminderMinutes"`
	Audio               AudioProfile    `json:"audio"`
}

// Validate checks the preference invariants shared by subscribe and update.
func (p Preferences) Validate() error {
	if p.ReminderMinutes < 0 || p.ReminderMinutes > 60 {
		return &ValidationError{Field: "reminderMinutes", Reason: "must be between 0 and 60"}
	}
	for name := range p.PerPrayer {
		if !IsCanonicalPrayer(name) {
			return &ValidationError{Field: "perPrayer", Reason: "unknown prayer name: " + name}
		}
	}
	return nil
}

// DefaultPreferences enables all five prayers with a 10 minute reminder.
func DefaultPreferences() Preferences {
	perPrayer := make(map[string]bool, len(PrayerNames))
	for _, name := range PrayerNames {
		perPrayer[name] = true
	}
	return Preferences{
		Enabled:             true,
		PerPrayer:           perPrayer,
		CalculationMethod:   "auto",
		JurisprudenceSchool: "auto",
		ReminderMinutes:     10,
		Audio: AudioProfile{
			File:            "adhan.mp3",
			Volume:          0.8,
			FadeInMs:        1500,
			CooldownSeconds: 30,
		},
	}
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is one push-capable device of a user. The endpoint is the
// unique key; a user may hold any number of active subscriptions.
type Subscription struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id,omitempty"` // empty for anonymous
	Endpoint       string           `json:"endpoint"`
	Keys           SubscriptionKeys `json:"keys"`
	Timezone       string           `json:"tz"`
	Location       Location         `json:"location"`
	Preferences    Preferences      `json:"preferences"`
	IsActive       bool             `json:"is_active"`
	HealthFailures int              `json:"health_failures"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Deliverable reports whether the record is structurally usable as a push
// target. Guards against rows corrupted before the endpoint sweep existed.
func (s Subscription) Deliverable() bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

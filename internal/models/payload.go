package models

import (
	"fmt"
	"strings"
	"time"
)

// SnoozePrefix is prepended to the title of a snoozed re-delivery so the
// user can tell it apart from the original alert.
const SnoozePrefix = "Snooze: "

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type PayloadData struct {
	URL       string `json:"url,omitempty"`
	Prayer    string `json:"prayer,omitempty"`
	AudioFile string `json:"audioFile,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NotificationPayload is the JSON document handed to the push transport and
// ultimately to the client service worker.
type NotificationPayload struct {
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Icon               string               `json:"icon,omitempty"`
	Tag                string               `json:"tag"`
	RequireInteraction bool                 `json:"requireInteraction"`
	Actions            []NotificationAction `json:"actions,omitempty"`
	Data               PayloadData          `json:"data"`
	Priority           string               `json:"priority,omitempty"`
}

// TriggerKind distinguishes the advance reminder from the main alert.
type TriggerKind string

const (
	KindReminder TriggerKind = "reminder"
	KindMain     TriggerKind = "main"
)

// PrayerTag builds the identity the transport uses to dedupe and supersede
// alerts. Unique per (prayer, day, kind).
func PrayerTag(prayer, day string, kind TriggerKind) string {
	return fmt.Sprintf("prayer-%s-%s-%s", prayer, day, kind)
}

// WithoutSnoozePrefix strips any stacked "Snooze: " prefixes from the title.
func (p NotificationPayload) WithoutSnoozePrefix() NotificationPayload {
	for strings.HasPrefix(p.Title, SnoozePrefix) {
		p.Title = strings.TrimPrefix(p.Title, SnoozePrefix)
	}
	return p
}

// BuildPrayerPayload assembles the notification for one trigger.
func BuildPrayerPayload(prayer string, kind TriggerKind, day string, firesAt time.Time, prefs Preferences) NotificationPayload {
	display := strings.ToUpper(prayer[:1]) + prayer[1:]

	title := display + " Prayer"
	body := "It is time for " + display + " prayer."
	if kind == KindReminder {
		title = fmt.Sprintf("%s in %d minutes", display, prefs.ReminderMinutes)
		body = fmt.Sprintf("%s prayer is in %d minutes.", display, prefs.ReminderMinutes)
	}

	return NotificationPayload{
		Title:              title,
		Body:               body,
		Icon:               "/static/icons/mosque-192.png",
		Tag:                PrayerTag(prayer, day, kind),
		RequireInteraction: kind == KindMain,
		Actions: []NotificationAction{
			{Action: "open", Title: "Open"},
			{Action: "snooze", Title: "Snooze"},
		},
		Data: PayloadData{
			URL:       "/prayer-times",
			Prayer:    prayer,
			AudioFile: prefs.Audio.File,
			Timestamp: firesAt.Unix(),
		},
		Priority: priorityFor(kind),
	}
}

func priorityFor(kind TriggerKind) string {
	if kind == KindMain {
		return "high"
	}
	return "normal"
}

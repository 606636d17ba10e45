package models

import "time"

// WorshipWindow is a half-open interval [Start, End).
type WorshipWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type WorshipWindows struct {
	PreDawn          WorshipWindow `json:"preDawn"`
	Forenoon         WorshipWindow `json:"forenoon"`
	LastThirdOfNight WorshipWindow `json:"lastThirdOfNight"`
}

// PrayerInstant pairs a name from the daily sequence (the five prayers plus
// sunrise) with its absolute instant.
type PrayerInstant struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// PrayerTimesForDay holds the six instants of one local calendar day plus
// the derived worship windows. Immutable once computed for a given
// (location, date, method); recomputed on rollover or input change.
type PrayerTimesForDay struct {
	Date    string         `json:"date"` // YYYY-MM-DD in TZ
	TZ      string         `json:"tz"`
	Fajr    time.Time      `json:"fajr"`
	Sunrise time.Time      `json:"sunrise"`
	Dhuhr   time.Time      `json:"dhuhr"`
	Asr     time.Time      `json:"asr"`
	Maghrib time.Time      `json:"maghrib"`
	Isha    time.Time      `json:"isha"`
	Windows WorshipWindows `json:"worshipWindows"`
}

// Ordered returns the six instants of the day in chronological order.
func (p PrayerTimesForDay) Ordered() []PrayerInstant {
	return []PrayerInstant{
		{"fajr", p.Fajr},
		{"sunrise", p.Sunrise},
		{"dhuhr", p.Dhuhr},
		{"asr", p.Asr},
		{"maghrib", p.Maghrib},
		{"isha", p.Isha},
	}
}

// Instant looks up one named instant; the zero time for unknown names.
func (p PrayerTimesForDay) Instant(name string) time.Time {
	for _, pi := range p.Ordered() {
		if pi.Name == name {
			return pi.At
		}
	}
	return time.Time{}
}
